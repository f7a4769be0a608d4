package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"nudgeloop/internal/nudge"
	logx "nudgeloop/pkg/logx"
)

func openDriver(t *testing.T, driver string) Store {
	t.Helper()
	ext := ".json"
	if driver == "sqlite" {
		ext = ".db"
	}
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "nudges"+ext)}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func drivers() []string { return []string{"file", "sqlite"} }

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none"} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", d, st, err)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

func TestNudgesRoundTrip(t *testing.T) {
	t.Parallel()
	for _, d := range drivers() {
		d := d
		t.Run(d, func(t *testing.T) {
			t.Parallel()
			st := openDriver(t, d)
			ctx := context.Background()

			got, err := st.LoadNudges(ctx)
			if err != nil {
				t.Fatalf("LoadNudges on empty store: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("empty store returned %d nudges", len(got))
			}

			want := []nudge.Nudge{
				{
					ID:       1700000000001,
					Title:    "Stand up",
					Schedule: nudge.Schedule{Mode: nudge.ModeInterval, IntervalMinutes: 45},
					Active:   true,
				},
				{
					ID:       1700000000002,
					Title:    "Standup meeting",
					Schedule: nudge.Schedule{Mode: nudge.ModeFixed, Days: []int{1, 2, 3, 4, 5}, Times: []string{"09:00"}},
					Active:   false,
				},
			}
			if err := st.SaveNudges(ctx, want); err != nil {
				t.Fatalf("SaveNudges: %v", err)
			}

			got, err = st.LoadNudges(ctx)
			if err != nil {
				t.Fatalf("LoadNudges: %v", err)
			}
			if len(got) != len(want) {
				t.Fatalf("loaded %d nudges, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i].ID != want[i].ID || got[i].Title != want[i].Title ||
					got[i].Active != want[i].Active || got[i].Schedule.Mode != want[i].Schedule.Mode {
					t.Fatalf("nudge %d = %+v, want %+v", i, got[i], want[i])
				}
			}

			// A second save replaces, never appends.
			if err := st.SaveNudges(ctx, want[:1]); err != nil {
				t.Fatalf("SaveNudges: %v", err)
			}
			got, _ = st.LoadNudges(ctx)
			if len(got) != 1 {
				t.Fatalf("after shrink save: %d nudges, want 1", len(got))
			}
		})
	}
}

func TestFireEvents(t *testing.T) {
	t.Parallel()
	for _, d := range drivers() {
		d := d
		t.Run(d, func(t *testing.T) {
			t.Parallel()
			st := openDriver(t, d)
			ctx := context.Background()

			base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
			events := []FireEvent{
				{At: base, NudgeID: 1, Title: "old"},
				{At: base.Add(30 * time.Minute), NudgeID: 2, Title: "recent"},
				{At: base.Add(45 * time.Minute), NudgeID: 2, Title: "recent", Error: "send failed"},
			}
			for _, e := range events {
				if err := st.AppendFireEvent(ctx, e); err != nil {
					t.Fatalf("AppendFireEvent: %v", err)
				}
			}

			got, err := st.FireEventsSince(ctx, base.Add(15*time.Minute))
			if err != nil {
				t.Fatalf("FireEventsSince: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("got %d events, want 2", len(got))
			}
			if got[0].NudgeID != 2 || got[1].Error != "send failed" {
				t.Fatalf("events = %+v", got)
			}
		})
	}
}
