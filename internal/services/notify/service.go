// Package notify is the async notification pipeline between the scheduler
// engine and the delivery adapter: queue + worker pool + rate limit +
// permission gate.
//
// Delivery is at-most-once: a failed send is logged and counted, never
// retried. The engine treats an occurrence as consumed regardless of the
// delivery outcome, so a slow or broken channel can not stall scheduling.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"nudgeloop/internal/eventbus"
	"nudgeloop/internal/transport"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
	ErrDenied    = errors.New("notification permission denied")
)

type Config struct {
	Enabled    bool
	Workers    int
	QueueSize  int
	RatePerSec int
	// SendTimeout bounds a single adapter call. Defaults to 10s.
	SendTimeout time.Duration
}

type HistoryItem struct {
	At    time.Time
	Title string
	Error string
}

// Failure is the bus payload for an undelivered notification.
type Failure struct {
	Title  string
	Reason string
}

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     *slog.Logger
	adapter transport.Adapter
	perm    transport.PermissionProvider
	bus     eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	queue     chan transport.Notification

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	// Permission result cached per Service instance, resolved lazily on the
	// first delivery. ResetPermission clears it (tests, explicit re-request).
	pmu     sync.Mutex
	granted *bool

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter transport.Adapter, perm transport.PermissionProvider, log *slog.Logger, bus eventbus.Bus) *Service {
	s := &Service{
		adapter: adapter,
		perm:    perm,
		log:     log,
		bus:     bus,
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan transport.Notification, s.cfg.QueueSize)
	s.accepting = true
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	workers := s.cfg.Workers
	queue := s.queue
	runCtx := s.runCtx
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		idx := i
		s.workerWG.Add(1)
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in notifier worker", slog.Int("worker", idx), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
				}
			}()
			s.workerLoop(runCtx, queue)
		}()
	}
}

// Stop stops intake, drains nothing, and waits for in-flight sends until ctx
// expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	cancel := s.runCancel
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.queue = nil
	s.runCancel = nil
	s.runCtx = nil
	s.mu.Unlock()

	close(q)

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	if cancel != nil {
		cancel()
	}
}

// Notify enqueues a notification. It never blocks: a full queue drops the
// notification with an error.
func (s *Service) Notify(ctx context.Context, n transport.Notification) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.mu.Unlock()

	select {
	case q <- n:
		return nil
	default:
		s.log.Warn("notifier queue full; dropping", slog.String("title", n.Title))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.EventNotifyDropped, Data: n.Title})
		}
		return ErrQueueFull
	}
}

// ResetPermission clears the cached permission result so the next delivery
// re-runs the Granted/Request handshake.
func (s *Service) ResetPermission() {
	s.pmu.Lock()
	s.granted = nil
	s.pmu.Unlock()
}

// ensurePermission resolves and caches the channel permission. The check runs
// at most once per Service instance until ResetPermission is called.
func (s *Service) ensurePermission(ctx context.Context) bool {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	if s.granted != nil {
		return *s.granted
	}
	if s.perm == nil {
		ok := true
		s.granted = &ok
		return true
	}

	ok, err := s.perm.Granted(ctx)
	if err != nil {
		s.log.Warn("permission check failed", slog.Any("err", err))
		return false // transient: leave the cache unset so we check again
	}
	if !ok {
		ok, err = s.perm.Request(ctx)
		if err != nil {
			s.log.Warn("permission request failed", slog.Any("err", err))
			return false
		}
	}
	s.granted = &ok
	if !ok {
		s.log.Warn("notification permission not granted")
	}
	return ok
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(it HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(runCtx context.Context, queue <-chan transport.Notification) {
	for n := range queue {
		select {
		case <-runCtx.Done():
			return
		default:
		}
		s.sendOne(runCtx, n)
	}
}

func (s *Service) sendOne(runCtx context.Context, n transport.Notification) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	ad := s.adapter
	s.mu.Unlock()

	if ad == nil {
		return
	}

	it := HistoryItem{At: time.Now(), Title: n.Title}

	if !s.ensurePermission(runCtx) {
		it.Error = ErrDenied.Error()
		s.appendHistory(it)
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.EventNotifyFailed, Data: Failure{Title: n.Title, Reason: it.Error}})
		}
		return
	}

	if lim != nil {
		if err := lim.Wait(runCtx); err != nil {
			return
		}
	}

	callCtx, cancel := context.WithTimeout(runCtx, cfg.SendTimeout)
	err := ad.Send(callCtx, n)
	cancel()
	if err != nil {
		it.Error = err.Error()
		s.log.Warn("notification send failed", slog.String("channel", ad.Name()), slog.String("title", n.Title), slog.Any("err", err))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.EventNotifyFailed, Data: Failure{Title: n.Title, Reason: it.Error}})
		}
	} else {
		s.log.Debug("notification sent", slog.String("channel", ad.Name()), slog.String("title", n.Title))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.EventNotifySent, Data: n.Title})
		}
	}
	s.appendHistory(it)
}
