// Package digest sends a once-a-day summary of what fired.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"nudgeloop/internal/nudge"
	"nudgeloop/internal/storage"
	"nudgeloop/internal/transport"
)

type Config struct {
	Enabled bool
	// At is the local time of day the digest runs, "HH:MM". Default "21:00".
	At string
}

// Notifier is the delivery pipeline the digest posts its summary to.
type Notifier interface {
	Notify(ctx context.Context, n transport.Notification) error
}

type Service struct {
	mu sync.Mutex

	log   *slog.Logger
	cfg   Config
	loc   *time.Location
	store storage.Store
	snap  func() []nudge.Nudge
	notif Notifier

	cron *cron.Cron
}

func New(cfg Config, loc *time.Location, store storage.Store, snap func() []nudge.Nudge, notif Notifier, log *slog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{cfg: cfg, loc: loc, store: store, snap: snap, notif: notif, log: log}
}

// Start schedules the daily run. Without a store there is no fire log to
// summarize, so the service stays idle.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil || !s.cfg.Enabled || s.store == nil {
		return nil
	}

	spec, err := cronSpec(s.cfg.At)
	if err != nil {
		return err
	}

	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(spec, func() { s.run(ctx) }); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.log.Info("digest scheduled", slog.String("spec", spec), slog.String("tz", s.loc.String()))
	return nil
}

// Apply replaces the digest configuration, restarting the cron entry.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	s.Stop()
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return s.Start(ctx)
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func (s *Service) run(ctx context.Context) {
	since := time.Now().In(s.loc).Add(-24 * time.Hour)
	events, err := s.store.FireEventsSince(ctx, since)
	if err != nil {
		s.log.Warn("digest query failed", slog.Any("err", err))
		return
	}

	body := Summarize(events, s.snap())
	if err := s.notif.Notify(ctx, transport.Notification{Title: "Daily nudge digest", Body: body}); err != nil {
		s.log.Warn("digest delivery failed", slog.Any("err", err))
		return
	}
	s.log.Info("digest sent", slog.Int("fires", len(events)))
}

// Summarize renders the digest body from the last day's fire log and the
// current collection. Rows with an Error are delivery failures and counted
// separately from firings.
func Summarize(events []storage.FireEvent, items []nudge.Nudge) string {
	active := 0
	for _, n := range items {
		if n.Active {
			active++
		}
	}

	if len(events) == 0 {
		return fmt.Sprintf("No reminders fired in the last 24 hours. %s active.", plural(active, "nudge"))
	}

	perNudge := map[int64]int{}
	titles := map[int64]string{}
	fires := 0
	failures := 0
	for _, e := range events {
		if e.Error != "" {
			failures++
			continue
		}
		fires++
		perNudge[e.NudgeID]++
		titles[e.NudgeID] = e.Title
	}

	ids := make([]int64, 0, len(perNudge))
	for id := range perNudge {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if perNudge[ids[i]] != perNudge[ids[j]] {
			return perNudge[ids[i]] > perNudge[ids[j]]
		}
		return titles[ids[i]] < titles[ids[j]]
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%s fired across %s.", plural(fires, "reminder"), plural(len(perNudge), "nudge"))
	if failures > 0 {
		fmt.Fprintf(&b, " %s failed to deliver.", plural(failures, "notification"))
	}
	for _, id := range ids {
		fmt.Fprintf(&b, "\n- %s: %d", titles[id], perNudge[id])
	}
	return b.String()
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// cronSpec converts "HH:MM" into a daily cron expression.
func cronSpec(at string) (string, error) {
	at = strings.TrimSpace(at)
	if at == "" {
		at = "21:00"
	}
	hour, minute, err := nudge.ParseHHMM(at)
	if err != nil {
		return "", fmt.Errorf("digest time: %w", err)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
