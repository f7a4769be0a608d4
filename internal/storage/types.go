package storage

import (
	"context"
	"errors"
	"time"

	"nudgeloop/internal/nudge"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures persistence.
//
// Driver values:
//   - "file": JSON document + JSON Lines fire log
//   - "sqlite": single SQLite database file
//
// If Driver is empty or "none", storage is disabled and the collection lives
// only in memory.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// FireEvent records one firing for the daily digest and troubleshooting.
type FireEvent struct {
	At      time.Time `json:"at"`
	NudgeID int64     `json:"nudgeId"`
	Title   string    `json:"title"`
	Error   string    `json:"error,omitempty"`
}

// Store is the persistence API used by the nudge manager and digest service.
type Store interface {
	LoadNudges(ctx context.Context) ([]nudge.Nudge, error)
	SaveNudges(ctx context.Context, items []nudge.Nudge) error

	AppendFireEvent(ctx context.Context, e FireEvent) error
	FireEventsSince(ctx context.Context, since time.Time) ([]FireEvent, error)

	Close() error
}
