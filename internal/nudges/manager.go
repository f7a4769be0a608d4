// Package nudges owns the nudge collection: ordered in-memory state, ID
// assignment, persistence, and presentation strings.
//
// The manager is the single writer. Every mutation validates, updates the
// in-memory slice, persists the full collection, and then hands a fresh
// snapshot to the scheduler engine so timers follow the collection — the
// engine itself never mutates nudges.
package nudges

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"nudgeloop/internal/nudge"
	"nudgeloop/internal/recurrence"
	"nudgeloop/internal/storage"
)

var ErrNotFound = errors.New("nudge not found")

// Filter selects a view of the collection.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterActive Filter = "active"
	FilterPaused Filter = "paused"
)

// Engine receives collection snapshots after every mutation.
type Engine interface {
	Reconcile(items []nudge.Nudge)
}

type Manager struct {
	mu sync.Mutex

	log   *slog.Logger
	store storage.Store // nil means in-memory only
	calc  *recurrence.Engine

	engine Engine // attached after construction; nil until then

	items  []nudge.Nudge
	lastID int64
}

func New(store storage.Store, calc *recurrence.Engine, log *slog.Logger) *Manager {
	return &Manager{store: store, calc: calc, log: log}
}

// AttachEngine wires the scheduler in. The manager and the engine reference
// each other (snapshots one way, reconciles the other), so one side attaches
// late.
func (m *Manager) AttachEngine(e Engine) {
	m.mu.Lock()
	m.engine = e
	m.mu.Unlock()
}

// Load reads the collection from the store, seeding the default nudges when
// the store is empty or absent.
func (m *Manager) Load(ctx context.Context) error {
	var items []nudge.Nudge
	if m.store != nil {
		var err error
		items, err = m.store.LoadNudges(ctx)
		if err != nil {
			return err
		}
	}

	m.mu.Lock()
	seeded := false
	if len(items) == 0 {
		for _, n := range nudge.Defaults() {
			n.ID = m.nextIDLocked()
			items = append(items, n)
		}
		seeded = true
	}
	m.items = items
	for _, n := range m.items {
		if n.ID > m.lastID {
			m.lastID = n.ID
		}
	}
	m.refreshTextsLocked()
	m.mu.Unlock()

	if seeded {
		m.log.Info("seeded default nudges", slog.Int("count", len(items)))
		if err := m.persist(ctx); err != nil {
			return err
		}
	}
	m.log.Info("nudges loaded", slog.Int("count", len(items)))
	return nil
}

// Snapshot returns a copy of the collection in insertion order.
func (m *Manager) Snapshot() []nudge.Nudge {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyLocked()
}

// Filtered returns the nudges matching the filter, in insertion order.
// Unknown filter values behave like FilterAll.
func (m *Manager) Filtered(f Filter) []nudge.Nudge {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []nudge.Nudge
	for _, n := range m.items {
		switch f {
		case FilterActive:
			if !n.Active {
				continue
			}
		case FilterPaused:
			if n.Active {
				continue
			}
		}
		out = append(out, n)
	}
	return out
}

// Active returns only the enabled nudges.
func (m *Manager) Active() []nudge.Nudge {
	return m.Filtered(FilterActive)
}

func (m *Manager) Get(id int64) (nudge.Nudge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.items {
		if n.ID == id {
			return n, true
		}
	}
	return nudge.Nudge{}, false
}

// Add inserts a new nudge, assigning its ID. Title and schedule must be
// valid; the caller controls Active.
func (m *Manager) Add(ctx context.Context, n nudge.Nudge) (nudge.Nudge, error) {
	if n.Title == "" {
		return nudge.Nudge{}, errors.New("nudge title is required")
	}
	if err := n.Schedule.Validate(); err != nil {
		return nudge.Nudge{}, err
	}

	m.mu.Lock()
	n.ID = m.nextIDLocked()
	m.decorateLocked(&n)
	m.items = append(m.items, n)
	m.mu.Unlock()

	m.log.Info("nudge added", slog.Int64("id", n.ID), slog.String("title", n.Title))
	return n, m.commit(ctx)
}

// Update replaces the nudge with the same ID.
func (m *Manager) Update(ctx context.Context, n nudge.Nudge) (nudge.Nudge, error) {
	if n.Title == "" {
		return nudge.Nudge{}, errors.New("nudge title is required")
	}
	if err := n.Schedule.Validate(); err != nil {
		return nudge.Nudge{}, err
	}

	m.mu.Lock()
	idx := m.indexLocked(n.ID)
	if idx < 0 {
		m.mu.Unlock()
		return nudge.Nudge{}, ErrNotFound
	}
	m.decorateLocked(&n)
	m.items[idx] = n
	m.mu.Unlock()

	m.log.Info("nudge updated", slog.Int64("id", n.ID), slog.String("title", n.Title))
	return n, m.commit(ctx)
}

// Toggle flips the active flag and returns the new state.
func (m *Manager) Toggle(ctx context.Context, id int64) (nudge.Nudge, error) {
	m.mu.Lock()
	idx := m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return nudge.Nudge{}, ErrNotFound
	}
	m.items[idx].Active = !m.items[idx].Active
	m.decorateLocked(&m.items[idx])
	n := m.items[idx]
	m.mu.Unlock()

	m.log.Info("nudge toggled", slog.Int64("id", id), slog.Bool("active", n.Active))
	return n, m.commit(ctx)
}

// Remove deletes the nudge.
func (m *Manager) Remove(ctx context.Context, id int64) error {
	m.mu.Lock()
	idx := m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.items = append(m.items[:idx], m.items[idx+1:]...)
	m.mu.Unlock()

	m.log.Info("nudge removed", slog.Int64("id", id))
	return m.commit(ctx)
}

// RefreshTexts recomputes the presentation strings against the current clock.
// Called periodically so "in 12 min" style text does not go stale.
func (m *Manager) RefreshTexts() {
	m.mu.Lock()
	m.refreshTextsLocked()
	m.mu.Unlock()
}

// ---- internals ----

// commit persists the collection and pushes a snapshot to the engine. Runs
// outside m.mu: the engine takes its own lock and may call back into
// Snapshot from timer callbacks.
func (m *Manager) commit(ctx context.Context) error {
	err := m.persist(ctx)

	m.mu.Lock()
	eng := m.engine
	items := m.copyLocked()
	m.mu.Unlock()
	if eng != nil {
		eng.Reconcile(items)
	}
	return err
}

func (m *Manager) persist(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	m.mu.Lock()
	items := m.copyLocked()
	m.mu.Unlock()
	if err := m.store.SaveNudges(ctx, items); err != nil {
		m.log.Error("persisting nudges failed", slog.Any("err", err))
		return err
	}
	return nil
}

func (m *Manager) copyLocked() []nudge.Nudge {
	return append([]nudge.Nudge(nil), m.items...)
}

func (m *Manager) indexLocked(id int64) int {
	for i, n := range m.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// nextIDLocked allocates unix-millisecond IDs, bumping past the last one when
// two allocations land in the same millisecond or the clock steps back.
func (m *Manager) nextIDLocked() int64 {
	id := time.Now().UnixMilli()
	if id <= m.lastID {
		id = m.lastID + 1
	}
	m.lastID = id
	return id
}

// decorateLocked fills the owner-computed presentation strings.
func (m *Manager) decorateLocked(n *nudge.Nudge) {
	n.ScheduleText = nudge.DescribeSchedule(n.Schedule)
	if !n.Active {
		n.NextReminderText = ""
		return
	}
	now := m.calc.Now()
	n.NextReminderText = nudge.FormatNextReminder(m.calc.Next(n.Schedule, time.Time{}), now)
}

func (m *Manager) refreshTextsLocked() {
	for i := range m.items {
		m.decorateLocked(&m.items[i])
	}
}
