package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"nudgeloop/internal/eventbus"
	"nudgeloop/internal/nudge"
	"nudgeloop/internal/recurrence"
	"nudgeloop/internal/transport"
)

type Service struct {
	mu sync.Mutex

	log  *slog.Logger
	cfg  Config
	calc *recurrence.Engine
	snap Snapshot

	notif Notifier
	bus   eventbus.Bus

	running bool
	runCtx  context.Context
	cancel  context.CancelFunc

	// timers holds the single pending timer per nudge id: either the delay
	// until the next trigger or the post-fire re-arm timer. vers invalidates
	// callbacks from cancelled/replaced timers.
	timers map[int64]*time.Timer
	vers   map[int64]uint64

	// nextAt is only populated while a trigger timer is armed; it is absent
	// during the post-fire window and for inactive/unknown ids.
	nextAt map[int64]time.Time

	cur    *Trigger
	curVer uint64
}

func New(cfg Config, calc *recurrence.Engine, snap Snapshot, notif Notifier, log *slog.Logger, bus eventbus.Bus) *Service {
	return &Service{
		cfg:    cfg.withDefaults(),
		calc:   calc,
		snap:   snap,
		notif:  notif,
		log:    log,
		bus:    bus,
		timers: map[int64]*time.Timer{},
		vers:   map[int64]uint64{},
		nextAt: map[int64]time.Time{},
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply updates the timing knobs. A running engine keeps its armed timers;
// new windows take effect from the next firing.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

// Start arms every active nudge in the current snapshot. Idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.runCtx, s.cancel = context.WithCancel(ctx)

	items := s.snap()
	for _, n := range items {
		if n.Active {
			s.scheduleOneLocked(n)
		}
	}
	s.log.Info("scheduler started", slog.Int("nudges", len(items)), slog.Int("armed", len(s.timers)))
}

// Stop cancels every live timer and clears the trigger slot. Idempotent.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.runCtx = nil
	}
	for id, t := range s.timers {
		t.Stop()
		s.vers[id]++
	}
	s.timers = map[int64]*time.Timer{}
	s.nextAt = map[int64]time.Time{}
	s.cur = nil
	s.curVer++
	s.log.Info("scheduler stopped")
}

// ScheduleOne (re)computes and (re)arms the timer for a single nudge.
// An inactive nudge has any live timer cancelled instead.
func (s *Service) ScheduleOne(n nudge.Nudge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.scheduleOneLocked(n)
}

// Reconcile synchronizes live timers against a changed collection: timers of
// removed ids are cancelled, every remaining nudge is rescheduled
// unconditionally. No-op while stopped.
func (s *Service) Reconcile(items []nudge.Nudge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	keep := make(map[int64]struct{}, len(items))
	for _, n := range items {
		keep[n.ID] = struct{}{}
	}
	for id := range s.timers {
		if _, ok := keep[id]; !ok {
			s.cancelLocked(id)
			s.log.Debug("nudge removed; timer cancelled", slog.Int64("id", id))
		}
	}
	// Recompute everything that remains. Redundant timer churn for unchanged
	// rules is the price of never keeping a stale next-time across an edit.
	for _, n := range items {
		s.scheduleOneLocked(n)
	}
}

// DismissCurrent clears the current-trigger slot immediately.
func (s *Service) DismissCurrent() {
	s.mu.Lock()
	cur := s.cur
	s.cur = nil
	s.curVer++
	s.mu.Unlock()
	if cur != nil && s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.EventNudgeDismissed, Data: cur.NudgeID})
	}
}

// Current returns the most recent trigger while its window is open.
func (s *Service) Current() (Trigger, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return Trigger{}, false
	}
	return *s.cur, true
}

// NextTriggerTime reports the armed next-trigger time for the id, if any.
func (s *Service) NextTriggerTime(id int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.nextAt[id]
	return t, ok
}

// Status returns a point-in-time view for status/health output.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Running: s.running}
	if s.cur != nil {
		cur := *s.cur
		st.Current = &cur
	}
	items := s.snap()
	titles := make(map[int64]string, len(items))
	for _, n := range items {
		titles[n.ID] = n.Title
	}
	for id, at := range s.nextAt {
		st.Armed = append(st.Armed, Info{NudgeID: id, Title: titles[id], NextAt: at})
	}
	sort.Slice(st.Armed, func(i, j int) bool { return st.Armed[i].NextAt.Before(st.Armed[j].NextAt) })
	return st
}

// ---- internals (s.mu held) ----

// cancelLocked invalidates any pending timer for id. Cancelling an id with no
// timer is a no-op. The version bump makes an already-running callback stale
// before the handle is dropped.
func (s *Service) cancelLocked(id int64) {
	s.vers[id]++
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	delete(s.nextAt, id)
}

func (s *Service) scheduleOneLocked(n nudge.Nudge) {
	s.cancelLocked(n.ID)
	if !n.Active {
		return
	}

	next := s.calc.Next(n.Schedule, time.Time{})
	delay := next.Sub(s.calc.Now())
	if delay > 0 {
		s.nextAt[n.ID] = next
		ver := s.vers[n.ID]
		s.timers[n.ID] = time.AfterFunc(delay, func() { s.onDue(n, ver) })
		s.log.Debug("nudge armed", slog.Int64("id", n.ID), slog.String("title", n.Title), slog.Time("next", next))
		return
	}
	// Already due (degenerate rule or clock moved past the slot): fire the
	// single synchronous catch-up. fire never recurses into scheduling; the
	// re-arm runs on its own timer with a fresh clock reading.
	s.fireLocked(n)
}

func (s *Service) onDue(n nudge.Nudge, ver uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.vers[n.ID] != ver {
		return
	}
	delete(s.timers, n.ID)
	delete(s.nextAt, n.ID)
	s.fireLocked(n)
}

func (s *Service) fireLocked(n nudge.Nudge) {
	now := s.calc.Now()

	body := n.Description
	if body == "" {
		body = nudge.DefaultBody
	}
	if s.notif != nil {
		// Non-blocking enqueue; a failed or slow delivery never stalls
		// re-arming and still counts as this occurrence's one attempt.
		if err := s.notif.Notify(s.runCtx, transport.Notification{Title: n.Title, Body: body}); err != nil {
			s.log.Warn("notification dispatch failed", slog.Int64("id", n.ID), slog.String("title", n.Title), slog.Any("err", err))
		}
	}

	s.cur = &Trigger{NudgeID: n.ID, Nudge: n, FiredAt: now}
	s.curVer++
	cv := s.curVer
	time.AfterFunc(s.cfg.TriggerTTL, func() { s.clearTrigger(cv) })

	// Claim the id's timer slot for the re-arm step so no second timer can
	// exist for it during the post-fire window.
	s.vers[n.ID]++
	ver := s.vers[n.ID]
	s.timers[n.ID] = time.AfterFunc(s.cfg.RearmDelay, func() { s.rearm(n.ID, ver) })

	s.log.Info("nudge fired", slog.Int64("id", n.ID), slog.String("title", n.Title))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.EventNudgeFired, Time: now, Data: n.ID})
	}
}

func (s *Service) clearTrigger(ver uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A newer trigger (or a dismiss) superseded this window.
	if s.curVer != ver {
		return
	}
	s.cur = nil
}

// rearm re-resolves the nudge from the live collection after the post-fire
// window. The stale value captured at fire time is deliberately not used: an
// edit or toggle-off that happened during the window must win.
func (s *Service) rearm(id int64, ver uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.vers[id] != ver {
		return
	}
	delete(s.timers, id)

	for _, cur := range s.snap() {
		if cur.ID != id {
			continue
		}
		if cur.Active {
			s.scheduleOneLocked(cur)
			if s.bus != nil {
				s.bus.Publish(eventbus.Event{Type: eventbus.EventNudgeRearmed, Data: id})
			}
		}
		return
	}
	// Removed during the window: nothing to re-arm.
}
