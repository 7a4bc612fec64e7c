// Package app wires config, logging, storage, the guild lock, the event
// scheduler, the Telegram transport and the command router into one
// startable unit.
package app

import (
	"context"
	"errors"
	"sync"

	"github.com/coreos/go-systemd/v22/daemon"

	"schedbot/internal/bot"
	"schedbot/internal/calendar"
	"schedbot/internal/config"
	"schedbot/internal/eventbus"
	"schedbot/internal/lock"
	"schedbot/internal/scheduler"
	"schedbot/internal/storage"
	"schedbot/internal/transport"
	"schedbot/internal/transport/telegram"
	"schedbot/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store   storage.Store
	locker  *lock.Locker
	sched   *scheduler.Service
	adapter transport.Adapter
	botSvc  *bot.Service
	bus     eventbus.Bus

	mu        sync.Mutex
	started   bool
	stopWatch chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgMgr := config.NewManager(cfgPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgMgr.SetLogger(log.With(logx.String("component", "config")))

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout.Std(),
	}, log.With(logx.String("component", "storage")))
	if err != nil {
		return nil, err
	}

	locker := lock.New(store, lock.Config{
		RetryDelay: cfg.Lock.RetryDelay.Std(),
		Budget:     cfg.Lock.Budget.Std(),
		TTL:        cfg.Lock.TTL.Std(),
	}, log.With(logx.String("component", "lock")))

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeout.Std(),
	}, log.With(logx.String("component", "telegram")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sched := scheduler.New(scheduler.Config{
		LookAhead:      cfg.Scheduler.LookAhead.Std(),
		ReconcileEvery: cfg.Scheduler.ReconcileEvery.Std(),
		NotifyPerSec:   cfg.Scheduler.NotifyPerSec,
	}, store, locker, adapter, log.With(logx.String("component", "scheduler")))

	bus := eventbus.New()
	botSvc := bot.New(store, locker, sched, adapter, bus, bot.NewDraftParser(),
		cfg.Bot.DefaultPrefix, log.With(logx.String("component", "bot")))

	return &App{
		cfgMgr:  cfgMgr,
		logSvc:  logSvc,
		log:     log,
		store:   store,
		locker:  locker,
		sched:   sched,
		adapter: adapter,
		botSvc:  botSvc,
		bus:     bus,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errors.New("app already started")
	}
	a.started = true

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.sched.Start(runCtx); err != nil {
		cancel()
		return err
	}

	updates := make(chan transport.Update, 256)
	if err := a.adapter.Start(runCtx, updates); err != nil {
		cancel()
		a.sched.Stop()
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.botSvc.Run(runCtx, updates)
	}()

	lifecycle, unsub := a.bus.Subscribe(16)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		a.runGuildLifecycle(runCtx, lifecycle)
	}()

	// Config hot reload: re-apply logging settings on file change.
	a.stopWatch = make(chan struct{})
	reloads := a.cfgMgr.Subscribe(4)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgMgr.Watch(a.stopWatch); err != nil {
			a.log.Warn("config watch unavailable", logx.Err(err))
		}
	}()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-reloads:
				if !ok {
					return
				}
				a.logSvc.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				a.log.Info("logging config re-applied")
			}
		}
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("schedbot started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	a.started = false

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	close(a.stopWatch)
	a.cancel()
	_ = a.adapter.Stop(ctx)
	a.sched.Stop()
	a.wg.Wait()

	err := a.store.Close()
	_ = a.logSvc.Close()
	return err
}

// runGuildLifecycle reacts to the transport layer joining or leaving a
// guild: joining creates an empty calendar, leaving drops the calendar and
// every timer derived from it. Both paths hold the guild lock like any
// other mutation.
func (a *App) runGuildLifecycle(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case eventbus.GuildJoined:
				a.handleGuildJoined(ctx, ev.GuildID)
			case eventbus.GuildRemoved:
				a.handleGuildRemoved(ctx, ev.GuildID)
			}
		}
	}
}

func (a *App) handleGuildJoined(ctx context.Context, guildID string) {
	log := a.log.With(logx.String("guild", guildID))

	lease, err := a.locker.Acquire(ctx, guildID)
	if err != nil {
		log.Error("guild join: lock failed", logx.Err(err))
		return
	}
	defer func() { _ = lease.Release(ctx) }()

	if _, err := a.store.FindCalendar(ctx, guildID); err == nil {
		return // rejoined guild keeps its calendar
	} else if !errors.Is(err, storage.ErrNoCalendar) {
		log.Error("guild join: lookup failed", logx.Err(err))
		return
	}

	cal := calendar.New(guildID, a.cfgMgr.Get().Bot.DefaultPrefix)
	if err := a.store.SaveCalendar(ctx, cal); err != nil {
		log.Error("guild join: save failed", logx.Err(err))
		return
	}
	log.Info("calendar created")
}

func (a *App) handleGuildRemoved(ctx context.Context, guildID string) {
	log := a.log.With(logx.String("guild", guildID))

	lease, err := a.locker.Acquire(ctx, guildID)
	if err != nil {
		log.Error("guild remove: lock failed", logx.Err(err))
		return
	}
	defer func() { _ = lease.Release(ctx) }()

	cal, err := a.store.FindCalendar(ctx, guildID)
	if err != nil {
		if !errors.Is(err, storage.ErrNoCalendar) {
			log.Error("guild remove: lookup failed", logx.Err(err))
		}
		return
	}

	a.sched.UnscheduleGuild(cal)
	if err := a.store.DeleteCalendar(ctx, guildID); err != nil {
		log.Error("guild remove: delete failed", logx.Err(err))
		return
	}
	log.Info("calendar removed")
}
