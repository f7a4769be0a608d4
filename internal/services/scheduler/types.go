package scheduler

import (
	"context"
	"time"

	"nudgeloop/internal/nudge"
	"nudgeloop/internal/transport"
)

// Config controls the scheduler service.
type Config struct {
	Enabled bool

	// RearmDelay is the fixed post-fire window after which a fired nudge is
	// re-resolved from the live collection and re-armed. Default 1s.
	RearmDelay time.Duration

	// TriggerTTL is how long the current-trigger slot stays set before it
	// auto-clears (unless superseded or dismissed). Default 1s.
	TriggerTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.RearmDelay <= 0 {
		c.RearmDelay = time.Second
	}
	if c.TriggerTTL <= 0 {
		c.TriggerTTL = time.Second
	}
	return c
}

// Snapshot returns the current ordered nudge collection. The engine re-reads
// it on every reconciliation and inside the post-fire re-arm step; it never
// holds on to the returned slice.
type Snapshot func() []nudge.Nudge

// Notifier is the delivery pipeline the engine hands fired nudges to.
// Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n transport.Notification) error
}

// Trigger is the ephemeral record of the most recent firing. It stays
// observable until TriggerTTL elapses, a different nudge fires, or the user
// dismisses it.
type Trigger struct {
	NudgeID int64
	Nudge   nudge.Nudge
	FiredAt time.Time
}

// Info describes one armed nudge for status output.
type Info struct {
	NudgeID int64
	Title   string
	NextAt  time.Time
}

// Status is a point-in-time view of the engine.
type Status struct {
	Running bool
	Armed   []Info
	Current *Trigger
}
