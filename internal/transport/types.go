package transport

import "context"

// Notification is a single reminder delivery request.
type Notification struct {
	Title    string
	Body     string
	Priority int // 0 low .. 10 high
}

// Adapter delivers notifications over one concrete channel (desktop, telegram).
// Send must be safe for concurrent use and should honor ctx cancellation.
type Adapter interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// PermissionProvider answers whether the channel is allowed to notify the user.
// Granted is checked first; Request is only called when not already granted.
// Callers cache the result, so implementations need not.
type PermissionProvider interface {
	Granted(ctx context.Context) (bool, error)
	Request(ctx context.Context) (bool, error)
}

// AlwaysGranted is a PermissionProvider for channels without a permission model.
type AlwaysGranted struct{}

func (AlwaysGranted) Granted(context.Context) (bool, error) { return true, nil }
func (AlwaysGranted) Request(context.Context) (bool, error) { return true, nil }
