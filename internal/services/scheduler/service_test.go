package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"nudgeloop/internal/nudge"
	"nudgeloop/internal/recurrence"
	"nudgeloop/internal/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeNotifier struct {
	sent chan transport.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n transport.Notification) error {
	select {
	case f.sent <- n:
	default:
	}
	return nil
}

// collection is a mutable snapshot source for the engine under test.
type collection struct {
	mu    sync.Mutex
	items []nudge.Nudge
}

func (c *collection) snapshot() []nudge.Nudge {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]nudge.Nudge(nil), c.items...)
}

func (c *collection) set(items []nudge.Nudge) {
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
}

func (c *collection) setActive(id int64, active bool) {
	c.mu.Lock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Active = active
		}
	}
	c.mu.Unlock()
}

func intervalNudge(id int64, minutes int) nudge.Nudge {
	return nudge.Nudge{
		ID:       id,
		Title:    "stretch",
		Schedule: nudge.Schedule{Mode: nudge.ModeInterval, IntervalMinutes: minutes},
		Active:   true,
	}
}

// degenerateNudge evaluates to "immediately due" on every scheduling pass.
func degenerateNudge(id int64) nudge.Nudge {
	return nudge.Nudge{
		ID:       id,
		Title:    "broken rule",
		Schedule: nudge.Schedule{Mode: nudge.ModeFixed},
		Active:   true,
	}
}

func newTestService(t *testing.T, col *collection, notif Notifier) *Service {
	t.Helper()
	calc := recurrence.NewEngine(time.UTC, nil)
	s := New(Config{Enabled: true, RearmDelay: 20 * time.Millisecond, TriggerTTL: 50 * time.Millisecond},
		calc, col.snapshot, notif, discardLogger(), nil)
	t.Cleanup(s.Stop)
	return s
}

func TestStartArmsActiveNudges(t *testing.T) {
	t.Parallel()
	col := &collection{}
	col.set([]nudge.Nudge{
		intervalNudge(1, 45),
		{ID: 2, Title: "off", Schedule: nudge.Schedule{Mode: nudge.ModeInterval, IntervalMinutes: 30}, Active: false},
	})
	s := newTestService(t, col, nil)
	s.Start(context.Background())

	if _, ok := s.NextTriggerTime(1); !ok {
		t.Fatal("active nudge has no armed trigger time")
	}
	if _, ok := s.NextTriggerTime(2); ok {
		t.Fatal("inactive nudge was armed")
	}

	next, _ := s.NextTriggerTime(1)
	want := time.Now().Add(45 * time.Minute)
	if d := next.Sub(want); d < -time.Second || d > time.Second {
		t.Fatalf("next trigger %v, want ~%v", next, want)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()
	col := &collection{}
	col.set([]nudge.Nudge{intervalNudge(1, 45)})
	s := newTestService(t, col, nil)

	s.Start(context.Background())
	s.Start(context.Background())
	if st := s.Status(); !st.Running || len(st.Armed) != 1 {
		t.Fatalf("after double Start: %+v", st)
	}

	s.Stop()
	s.Stop()
	st := s.Status()
	if st.Running || len(st.Armed) != 0 {
		t.Fatalf("after double Stop: %+v", st)
	}
	if _, ok := s.NextTriggerTime(1); ok {
		t.Fatal("trigger time survived Stop")
	}
}

func TestScheduleOneReplacesTimer(t *testing.T) {
	t.Parallel()
	col := &collection{}
	col.set([]nudge.Nudge{intervalNudge(1, 45)})
	s := newTestService(t, col, nil)
	s.Start(context.Background())

	first, _ := s.NextTriggerTime(1)

	// Same id, new rule: old timer must be replaced, not duplicated.
	edited := intervalNudge(1, 10)
	col.set([]nudge.Nudge{edited})
	s.ScheduleOne(edited)

	second, ok := s.NextTriggerTime(1)
	if !ok {
		t.Fatal("edited nudge lost its timer")
	}
	if !second.Before(first) {
		t.Fatalf("next = %v not rescheduled earlier than %v", second, first)
	}
	if st := s.Status(); len(st.Armed) != 1 {
		t.Fatalf("armed count = %d, want 1", len(st.Armed))
	}
}

func TestScheduleOneInactiveCancels(t *testing.T) {
	t.Parallel()
	col := &collection{}
	col.set([]nudge.Nudge{intervalNudge(1, 45)})
	s := newTestService(t, col, nil)
	s.Start(context.Background())

	off := intervalNudge(1, 45)
	off.Active = false
	s.ScheduleOne(off)

	if _, ok := s.NextTriggerTime(1); ok {
		t.Fatal("inactive nudge still armed")
	}
}

func TestReconcileDropsRemoved(t *testing.T) {
	t.Parallel()
	col := &collection{}
	col.set([]nudge.Nudge{intervalNudge(1, 45), intervalNudge(2, 30)})
	s := newTestService(t, col, nil)
	s.Start(context.Background())

	col.set([]nudge.Nudge{intervalNudge(2, 30)})
	s.Reconcile(col.snapshot())

	if _, ok := s.NextTriggerTime(1); ok {
		t.Fatal("removed nudge still armed")
	}
	if _, ok := s.NextTriggerTime(2); !ok {
		t.Fatal("surviving nudge lost its timer")
	}
}

func TestImmediateFireAndRearm(t *testing.T) {
	t.Parallel()
	col := &collection{}
	col.set([]nudge.Nudge{degenerateNudge(1)})
	notif := &fakeNotifier{sent: make(chan transport.Notification, 8)}
	s := newTestService(t, col, notif)
	s.Start(context.Background())

	// Fires synchronously on Start, then again after each re-arm window.
	for i := 0; i < 2; i++ {
		select {
		case n := <-notif.sent:
			if n.Body != nudge.DefaultBody {
				t.Fatalf("Body = %q, want default body", n.Body)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("firing %d never happened", i)
		}
	}
}

func TestCurrentTriggerAutoClears(t *testing.T) {
	t.Parallel()
	col := &collection{}
	col.set([]nudge.Nudge{degenerateNudge(7)})
	notif := &fakeNotifier{sent: make(chan transport.Notification, 8)}
	s := newTestService(t, col, notif)
	s.Start(context.Background())

	cur, ok := s.Current()
	if !ok || cur.NudgeID != 7 {
		t.Fatalf("Current = %+v %v, want trigger for id 7", cur, ok)
	}

	// The slot must clear on its own; keep polling since re-firing may reopen
	// it briefly.
	s.Stop()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := s.Current(); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("current trigger never cleared")
}

func TestDismissCurrent(t *testing.T) {
	t.Parallel()
	col := &collection{}
	col.set([]nudge.Nudge{degenerateNudge(3)})
	notif := &fakeNotifier{sent: make(chan transport.Notification, 8)}
	s := newTestService(t, col, notif)
	s.Start(context.Background())

	if _, ok := s.Current(); !ok {
		t.Fatal("no current trigger after immediate fire")
	}
	s.DismissCurrent()
	if _, ok := s.Current(); ok {
		t.Fatal("current trigger survived dismissal")
	}
}

func TestToggleOffDuringRearmWindow(t *testing.T) {
	t.Parallel()
	col := &collection{}
	col.set([]nudge.Nudge{degenerateNudge(5)})
	notif := &fakeNotifier{sent: make(chan transport.Notification, 8)}
	s := newTestService(t, col, notif)
	s.Start(context.Background())

	// First firing happens synchronously inside Start.
	select {
	case <-notif.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("initial firing never happened")
	}

	// Toggle off before the re-arm window closes: the re-arm step re-reads the
	// collection and must not schedule again.
	col.setActive(5, false)

	time.Sleep(200 * time.Millisecond)
	select {
	case n := <-notif.sent:
		t.Fatalf("fired %q after toggle-off", n.Title)
	default:
	}
	if _, ok := s.NextTriggerTime(5); ok {
		t.Fatal("toggled-off nudge was re-armed")
	}
}

func TestRemovedDuringRearmWindow(t *testing.T) {
	t.Parallel()
	col := &collection{}
	col.set([]nudge.Nudge{degenerateNudge(9)})
	notif := &fakeNotifier{sent: make(chan transport.Notification, 8)}
	s := newTestService(t, col, notif)
	s.Start(context.Background())

	select {
	case <-notif.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("initial firing never happened")
	}

	col.set(nil)

	time.Sleep(200 * time.Millisecond)
	select {
	case <-notif.sent:
		t.Fatal("fired after removal")
	default:
	}
	if st := s.Status(); len(st.Armed) != 0 {
		t.Fatalf("armed = %+v after removal", st.Armed)
	}
}

func TestStoppedEngineIgnoresCalls(t *testing.T) {
	t.Parallel()
	col := &collection{}
	col.set([]nudge.Nudge{intervalNudge(1, 45)})
	s := newTestService(t, col, nil)

	s.ScheduleOne(intervalNudge(1, 45))
	s.Reconcile(col.snapshot())
	if _, ok := s.NextTriggerTime(1); ok {
		t.Fatal("stopped engine armed a timer")
	}
}
