// Package core wires configuration, storage, the nudge collection, the
// scheduler engine, and the delivery pipeline into one runnable daemon.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"nudgeloop/internal/config"
	"nudgeloop/internal/eventbus"
	"nudgeloop/internal/nudges"
	"nudgeloop/internal/recurrence"
	"nudgeloop/internal/runtime/supervisor"
	"nudgeloop/internal/services/digest"
	"nudgeloop/internal/services/logging"
	"nudgeloop/internal/services/notify"
	"nudgeloop/internal/services/scheduler"
	"nudgeloop/internal/storage"
	logx "nudgeloop/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	// infra components (config watcher, storage, supervisor) log through
	// logx; domain services log through the slog service.
	infra logx.Logger
	logs  *logging.Service
	log   *slog.Logger

	bus   eventbus.Bus
	store storage.Store
	calc  *recurrence.Engine
	mgr   *nudges.Manager
	notif *notify.Service
	sched *scheduler.Service
	dig   *digest.Service
}

// NewApp builds the daemon from a config file path. An empty path runs with
// built-in defaults and no hot reload.
func NewApp(cfgPath string) (*App, error) {
	var (
		cfgm *config.Manager
		cfg  *config.Config
	)
	if cfgPath != "" {
		cfgm = config.NewManager(cfgPath)
		var err error
		cfg, err = cfgm.Load()
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
		}
	} else {
		cfg = config.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logging.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(slog.String("comp", "app"))
	infra := logx.NewConsole(cfg.Logging.Level)

	loc := time.Local
	if tz := cfg.Scheduler.Timezone; tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("scheduler.timezone: %w", err)
		}
	}

	store, err := storage.Open(storageConfig(cfg.Storage), infra.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	calc := recurrence.NewEngine(loc, nil)
	mgr := nudges.New(store, calc, log.With(slog.String("comp", "nudges")))

	adapter, perm, err := buildAdapter(cfg.Notifier, infra)
	if err != nil {
		return nil, err
	}
	notifSvc := notify.New(notifierConfig(cfg.Notifier), adapter, perm,
		log.With(slog.String("comp", "notifier")), bus)

	schedSvc := scheduler.New(schedulerConfig(cfg.Scheduler), calc, mgr.Snapshot, notifSvc,
		log.With(slog.String("comp", "scheduler")), bus)
	mgr.AttachEngine(schedSvc)

	digSvc := digest.New(digestConfig(cfg.Digest), loc, store, mgr.Snapshot, notifSvc,
		log.With(slog.String("comp", "digest")))

	return &App{
		cfgm:  cfgm,
		infra: infra,
		logs:  logSvc,
		log:   log,
		bus:   bus,
		store: store,
		calc:  calc,
		mgr:   mgr,
		notif: notifSvc,
		sched: schedSvc,
		dig:   digSvc,
	}, nil
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.infra), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()

	if err := a.mgr.Load(runCtx); err != nil {
		return fmt.Errorf("load nudges: %w", err)
	}

	a.notif.Start(runCtx)
	if a.sched.Enabled() {
		a.sched.Start(runCtx)
	}
	if err := a.dig.Start(runCtx); err != nil {
		return err
	}

	a.recordFireEvents(runCtx)
	a.refreshTextsLoop()

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.infra.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
			return config.Validate(cfg)
		})
		a.reloadLoop()
		a.sup.GoRestart("config.watch", a.cfgm.Watch)
	}

	a.log.Info("daemon started", slog.Int("nudges", len(a.mgr.Snapshot())))
	return nil
}

// recordFireEvents tails the event bus and appends firings and delivery
// failures to the store, feeding the daily digest.
func (a *App) recordFireEvents(runCtx context.Context) {
	if a.store == nil {
		return
	}
	sub, unsubscribe := a.bus.Subscribe(64)
	a.sup.Go0("firelog", func(c context.Context) {
		defer unsubscribe()
		for {
			select {
			case <-c.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				rec, ok := fireRecord(ev, func(id int64) (string, bool) {
					n, ok := a.mgr.Get(id)
					return n.Title, ok
				})
				if !ok {
					continue
				}
				if err := a.store.AppendFireEvent(runCtx, rec); err != nil {
					a.log.Warn("recording fire event failed", slog.String("title", rec.Title), slog.Any("err", err))
				}
			}
		}
	})
}

// fireRecord translates a bus event into a fire-log row. Firings carry the
// nudge id; delivery failures carry only the notification title.
func fireRecord(ev eventbus.Event, titleOf func(int64) (string, bool)) (storage.FireEvent, bool) {
	switch ev.Type {
	case eventbus.EventNudgeFired:
		id, ok := ev.Data.(int64)
		if !ok {
			return storage.FireEvent{}, false
		}
		e := storage.FireEvent{At: ev.Time, NudgeID: id}
		if title, ok := titleOf(id); ok {
			e.Title = title
		}
		return e, true
	case eventbus.EventNotifyFailed:
		f, ok := ev.Data.(notify.Failure)
		if !ok {
			return storage.FireEvent{}, false
		}
		return storage.FireEvent{At: ev.Time, Title: f.Title, Error: f.Reason}, true
	}
	return storage.FireEvent{}, false
}

// refreshTextsLoop keeps the relative "next reminder" strings from going
// stale.
func (a *App) refreshTextsLoop() {
	a.sup.Go0("texts.refresh", func(c context.Context) {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				a.mgr.RefreshTexts()
			}
		}
	})
}

// reloadLoop applies published config updates to the running services.
func (a *App) reloadLoop() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest update.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.infra.Info("config change summary", append([]logx.Field{logx.Any("changed", sections)}, attrs...)...)

	a.logs.Apply(logging.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logging.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
	})

	a.notif.Apply(notifierConfig(newCfg.Notifier))
	if channelName(oldCfg.Notifier) != channelName(newCfg.Notifier) {
		a.log.Warn("notifier channel changed; restart required to switch adapters",
			slog.String("channel", channelName(newCfg.Notifier)))
	}

	prevEnabled := a.sched.Enabled()
	a.sched.Apply(schedulerConfig(newCfg.Scheduler))
	if prevEnabled && !newCfg.Scheduler.Enabled {
		a.log.Info("scheduler disabled via config")
		a.sched.Stop()
	} else if !prevEnabled && newCfg.Scheduler.Enabled {
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}

	if err := a.dig.Apply(ctx, digestConfig(newCfg.Digest)); err != nil {
		a.log.Warn("applying digest config failed", slog.Any("err", err))
	}

	// Timezone and storage changes need a full re-wire; surface instead of
	// silently ignoring.
	if oldCfg.Scheduler.Timezone != newCfg.Scheduler.Timezone {
		a.log.Warn("scheduler timezone changed; restart required to take effect")
	}
	if storageConfig(oldCfg.Storage) != storageConfig(newCfg.Storage) {
		a.log.Warn("storage config changed; restart required to take effect")
	}

	a.log.Info("config reloaded", slog.Any("changed", sections))
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", slog.String("reason", string(reason)))
	a.sup.Cancel()

	// Bound each shutdown step so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", slog.String("name", name), slog.Any("err", err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", slog.String("name", name))
		}
	}

	step("digest", 2*time.Second, func(context.Context) error { a.dig.Stop(); return nil })
	step("scheduler", 2*time.Second, func(context.Context) error { a.sched.Stop(); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	if a.store != nil {
		step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	}
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}
