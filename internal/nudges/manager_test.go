package nudges

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"nudgeloop/internal/nudge"
	"nudgeloop/internal/recurrence"
	"nudgeloop/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeEngine struct {
	mu    sync.Mutex
	calls [][]nudge.Nudge
}

func (f *fakeEngine) Reconcile(items []nudge.Nudge) {
	f.mu.Lock()
	f.calls = append(f.calls, items)
	f.mu.Unlock()
}

func (f *fakeEngine) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeEngine) last() []nudge.Nudge {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

// memStore is an in-memory storage.Store.
type memStore struct {
	mu    sync.Mutex
	items []nudge.Nudge
	saves int
}

func (s *memStore) LoadNudges(context.Context) ([]nudge.Nudge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]nudge.Nudge(nil), s.items...), nil
}

func (s *memStore) SaveNudges(_ context.Context, items []nudge.Nudge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]nudge.Nudge(nil), items...)
	s.saves++
	return nil
}

func (s *memStore) AppendFireEvent(context.Context, storage.FireEvent) error { return nil }
func (s *memStore) FireEventsSince(context.Context, time.Time) ([]storage.FireEvent, error) {
	return nil, nil
}
func (s *memStore) Close() error { return nil }

func newManager(t *testing.T, store storage.Store) *Manager {
	t.Helper()
	m := New(store, recurrence.NewEngine(time.UTC, nil), discardLogger())
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func TestLoadSeedsDefaults(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	m := newManager(t, store)

	items := m.Snapshot()
	if len(items) != len(nudge.Defaults()) {
		t.Fatalf("seeded %d nudges, want %d", len(items), len(nudge.Defaults()))
	}
	seen := map[int64]bool{}
	for _, n := range items {
		if n.ID == 0 {
			t.Fatalf("nudge %q has no ID", n.Title)
		}
		if seen[n.ID] {
			t.Fatalf("duplicate ID %d", n.ID)
		}
		seen[n.ID] = true
		if n.ScheduleText == "" || n.NextReminderText == "" {
			t.Fatalf("nudge %q missing presentation text: %+v", n.Title, n)
		}
	}
	if store.saves != 1 {
		t.Fatalf("seed persisted %d times, want 1", store.saves)
	}
}

func TestLoadKeepsExisting(t *testing.T) {
	t.Parallel()
	store := &memStore{items: []nudge.Nudge{{
		ID:       42,
		Title:    "existing",
		Schedule: nudge.Schedule{Mode: nudge.ModeInterval, IntervalMinutes: 10},
		Active:   true,
	}}}
	m := newManager(t, store)

	items := m.Snapshot()
	if len(items) != 1 || items[0].ID != 42 {
		t.Fatalf("Snapshot = %+v, want the stored nudge", items)
	}
	if store.saves != 0 {
		t.Fatal("loading an existing collection must not rewrite it")
	}
}

func TestAddAssignsMonotonicIDs(t *testing.T) {
	t.Parallel()
	m := newManager(t, nil)

	var ids []int64
	for i := 0; i < 5; i++ {
		n, err := m.Add(context.Background(), nudge.Nudge{
			Title:    "burst",
			Schedule: nudge.Schedule{Mode: nudge.ModeInterval, IntervalMinutes: 5},
			Active:   true,
		})
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		ids = append(ids, n.ID)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids not strictly increasing: %v", ids)
		}
	}
}

func TestAddRejectsInvalid(t *testing.T) {
	t.Parallel()
	m := newManager(t, nil)

	cases := []nudge.Nudge{
		{Title: "", Schedule: nudge.Schedule{Mode: nudge.ModeInterval, IntervalMinutes: 5}},
		{Title: "bad interval", Schedule: nudge.Schedule{Mode: nudge.ModeInterval, IntervalMinutes: 0}},
		{Title: "bad time", Schedule: nudge.Schedule{Mode: nudge.ModeFixed, Days: []int{1}, Times: []string{"25:00"}}},
	}
	for _, c := range cases {
		if _, err := m.Add(context.Background(), c); err == nil {
			t.Fatalf("Add(%q) accepted an invalid nudge", c.Title)
		}
	}
}

func TestMutationsReconcile(t *testing.T) {
	t.Parallel()
	m := newManager(t, &memStore{})
	eng := &fakeEngine{}
	m.AttachEngine(eng)

	n, err := m.Add(context.Background(), nudge.Nudge{
		Title:    "stretch",
		Schedule: nudge.Schedule{Mode: nudge.ModeInterval, IntervalMinutes: 45},
		Active:   true,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if eng.count() != 1 {
		t.Fatalf("Add reconciled %d times, want 1", eng.count())
	}

	toggled, err := m.Toggle(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if toggled.Active {
		t.Fatal("Toggle did not flip Active off")
	}
	if toggled.NextReminderText != "" {
		t.Fatalf("inactive nudge kept next-reminder text %q", toggled.NextReminderText)
	}

	if err := m.Remove(context.Background(), n.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	last := eng.last()
	for _, it := range last {
		if it.ID == n.ID {
			t.Fatal("removed nudge still present in reconciled snapshot")
		}
	}
	if eng.count() != 3 {
		t.Fatalf("reconciled %d times, want 3", eng.count())
	}
}

func TestUpdateNotFound(t *testing.T) {
	t.Parallel()
	m := newManager(t, nil)
	_, err := m.Update(context.Background(), nudge.Nudge{
		ID:       999,
		Title:    "ghost",
		Schedule: nudge.Schedule{Mode: nudge.ModeInterval, IntervalMinutes: 5},
	})
	if err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := m.Remove(context.Background(), 999); err != ErrNotFound {
		t.Fatalf("Remove err = %v, want ErrNotFound", err)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()
	m := newManager(t, nil)

	snap := m.Snapshot()
	if len(snap) == 0 {
		t.Fatal("empty snapshot")
	}
	snap[0].Title = "mutated"
	if got := m.Snapshot()[0].Title; got == "mutated" {
		t.Fatal("snapshot shares backing array with manager state")
	}
}

func TestFilteredViews(t *testing.T) {
	t.Parallel()
	m := newManager(t, nil)
	paused, err := m.Add(context.Background(), nudge.Nudge{
		Title:    "paused",
		Schedule: nudge.Schedule{Mode: nudge.ModeInterval, IntervalMinutes: 5},
		Active:   false,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	all := m.Filtered(FilterAll)
	if len(all) != len(m.Snapshot()) {
		t.Fatalf("FilterAll returned %d of %d nudges", len(all), len(m.Snapshot()))
	}

	for _, n := range m.Filtered(FilterActive) {
		if !n.Active {
			t.Fatalf("FilterActive returned paused nudge %q", n.Title)
		}
	}

	got := m.Filtered(FilterPaused)
	if len(got) != 1 || got[0].ID != paused.ID {
		t.Fatalf("FilterPaused = %+v, want just %q", got, paused.Title)
	}

	if active, paused := len(m.Filtered(FilterActive)), len(got); active+paused != len(all) {
		t.Fatalf("views overlap or leak: %d active + %d paused != %d all", active, paused, len(all))
	}
}

func TestActiveFilters(t *testing.T) {
	t.Parallel()
	m := newManager(t, nil)
	n, err := m.Add(context.Background(), nudge.Nudge{
		Title:    "paused",
		Schedule: nudge.Schedule{Mode: nudge.ModeInterval, IntervalMinutes: 5},
		Active:   false,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	for _, a := range m.Active() {
		if a.ID == n.ID {
			t.Fatal("Active returned a paused nudge")
		}
	}
}
