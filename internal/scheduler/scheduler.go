package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"schedbot/internal/calendar"
	"schedbot/internal/lock"
	"schedbot/internal/storage"
	"schedbot/internal/transport"
	"schedbot/pkg/logx"
)

// Config controls the scheduler service. Zero fields fall back to the
// defaults the service was designed around.
type Config struct {
	// LookAhead is the window within which an event gets live timers.
	// Events further out are left to the reconciliation loop, so the
	// process never holds thousands of far-future timer handles.
	LookAhead time.Duration
	// ReconcileEvery is the reconciliation interval. It bounds the
	// worst-case notification delay for events that slid into the
	// look-ahead window after the last pass.
	ReconcileEvery time.Duration
	// NotifyPerSec rate-limits outbound "starting now" messages.
	NotifyPerSec int
}

func (c Config) withDefaults() Config {
	if c.LookAhead <= 0 {
		c.LookAhead = 2 * time.Hour
	}
	if c.ReconcileEvery <= 0 {
		c.ReconcileEvery = time.Hour
	}
	if c.NotifyPerSec <= 0 {
		c.NotifyPerSec = 1
	}
	return c
}

// Service owns the per-event timers for every guild served by this process.
// Timer state is ephemeral; durable truth lives in storage, and the
// reconciliation loop re-derives timers from it after restarts.
type Service struct {
	cfg       Config
	log       logx.Logger
	store     storage.Store
	locker    *lock.Locker
	messenger transport.Messenger
	limiter   *rate.Limiter

	notify   *jobMap
	finalize *jobMap

	mu      sync.Mutex
	cron    *cron.Cron
	runCtx  context.Context
	cancel  context.CancelFunc
	started bool
}

func New(cfg Config, store storage.Store, locker *lock.Locker, messenger transport.Messenger, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:       cfg,
		log:       log,
		store:     store,
		locker:    locker,
		messenger: messenger,
		limiter:   rate.NewLimiter(rate.Limit(cfg.NotifyPerSec), cfg.NotifyPerSec),
		notify:    newJobMap(),
		finalize:  newJobMap(),
	}
}

// Start runs an initial reconciliation pass and then keeps reconciling on
// the configured interval.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.ReconcileEvery)
	if _, err := s.cron.AddFunc(spec, func() { s.ReconcileAll(s.runCtx) }); err != nil {
		return err
	}
	s.cron.Start()

	go s.ReconcileAll(s.runCtx)

	s.log.Info("scheduler started",
		logx.Duration("look_ahead", s.cfg.LookAhead),
		logx.Duration("reconcile_every", s.cfg.ReconcileEvery))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	s.cancel()
	<-s.cron.Stop().Done()
	s.notify.cancelAll()
	s.finalize.cancelAll()
	s.log.Info("scheduler stopped")
}

// ScheduleUpcomingEvents evaluates every event of the calendar against a
// single "now". Safe to re-run at any time: installs are idempotent per
// event ID.
func (s *Service) ScheduleUpcomingEvents(cal *calendar.Calendar) {
	now := time.Now()
	for _, ev := range cal.Events {
		s.scheduleEventAt(cal, ev, now)
	}
}

// ScheduleEvent installs the notify and/or finalize timer for one event if
// it is close enough. Calling it twice never produces duplicate timers.
func (s *Service) ScheduleEvent(cal *calendar.Calendar, ev calendar.Event) {
	s.scheduleEventAt(cal, ev, time.Now())
}

func (s *Service) scheduleEventAt(cal *calendar.Calendar, ev calendar.Event, now time.Time) {
	if ev.Start.Sub(now) < s.cfg.LookAhead && !s.notifyStale(ev, now) {
		channel := cal.DefaultChannel
		event := ev // capture a copy; storage is re-read where it matters
		if s.notify.install(ev.ID, ev.Start.Sub(now), func() { s.notifyFire(channel, event) }) {
			s.log.Debug("notify timer installed",
				logx.String("guild", cal.GuildID),
				logx.String("event", ev.ID),
				logx.Time("at", ev.Start))
		}
	}

	if ev.End.Sub(now) < s.cfg.LookAhead {
		guildID := cal.GuildID
		eventID := ev.ID
		if s.finalize.install(ev.ID, ev.End.Sub(now), func() { s.finalizeFire(guildID, eventID) }) {
			s.log.Debug("finalize timer installed",
				logx.String("guild", cal.GuildID),
				logx.String("event", ev.ID),
				logx.Time("at", ev.End))
		}
	}
}

// notifyStale reports whether a "starting now" message would arrive too
// late to be anything but noise: the event already ended, or its start is
// further in the past than one reconcile interval (starts missed by less
// than that are the normal bounded-delay case and still fire immediately).
// Timers are process-local, so after a restart every started event looks
// "missed"; this keeps the first reconcile pass from spamming announcements
// for long-running or already-finished events.
func (s *Service) notifyStale(ev calendar.Event, now time.Time) bool {
	if now.After(ev.End) {
		return true
	}
	return now.Sub(ev.Start) > s.cfg.ReconcileEvery
}

// UnscheduleEvent cancels both timers for the event. No-op if none exist.
func (s *Service) UnscheduleEvent(ev calendar.Event) {
	s.unscheduleID(ev.ID)
}

func (s *Service) unscheduleID(eventID string) {
	s.notify.cancel(eventID)
	s.finalize.cancel(eventID)
}

// RescheduleEvent re-derives both timers after an event's start or end
// changed (update, timezone shift, recurrence advance).
func (s *Service) RescheduleEvent(cal *calendar.Calendar, ev calendar.Event) {
	s.unscheduleID(ev.ID)
	s.ScheduleEvent(cal, ev)
}

// UnscheduleGuild drops every timer belonging to the calendar's events,
// used when a guild is removed.
func (s *Service) UnscheduleGuild(cal *calendar.Calendar) {
	for _, ev := range cal.Events {
		s.unscheduleID(ev.ID)
	}
}

// notifyFire sends the "starting now" message to the calendar's default
// channel. One-shot: the handle stays in the map so the timer is never
// re-armed for this occurrence.
func (s *Service) notifyFire(channelID string, ev calendar.Event) {
	ctx, cancel := context.WithTimeout(s.runContext(), 30*time.Second)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		s.log.Warn("notify dropped", logx.String("event", ev.ID), logx.Err(err))
		return
	}

	text := fmt.Sprintf("Event starting now: %s", ev.Name)
	if ev.Description != "" {
		text += "\n" + ev.Description
	}
	if err := s.messenger.SendMessage(ctx, channelID, text); err != nil {
		s.log.Error("notify send failed",
			logx.String("event", ev.ID),
			logx.String("channel", channelID),
			logx.Err(err))
	}
}

// finalizeFire runs at an event's end instant: under the guild lock it
// re-fetches the calendar (the captured event may be stale), deletes or
// advances the event, persists, and re-arms timers when the event advanced.
// Every failure is logged and swallowed, but the fired finalize slot is
// freed on failure so the next reconciliation pass can install a fresh
// timer and retry; the stored state stays authoritative throughout.
func (s *Service) finalizeFire(guildID, eventID string) {
	ctx, cancel := context.WithTimeout(s.runContext(), 30*time.Second)
	defer cancel()

	log := s.log.With(logx.String("guild", guildID), logx.String("event", eventID))

	lease, err := s.locker.Acquire(ctx, guildID)
	if err != nil {
		s.finalize.cancel(eventID)
		log.Error("finalize: lock acquire failed", logx.Err(err))
		return
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			log.Error("finalize: lock release failed", logx.Err(err))
		}
	}()

	cal, err := s.store.FindCalendar(ctx, guildID)
	if err != nil {
		s.finalize.cancel(eventID)
		log.Error("finalize: calendar load failed", logx.Err(err))
		return
	}

	advanced, err := cal.AdvanceOrDelete(eventID)
	if err != nil {
		if errors.Is(err, calendar.ErrNotFound) {
			// Deleted concurrently between firing and lock acquisition.
			s.unscheduleID(eventID)
			log.Debug("finalize: event already gone")
			return
		}
		s.finalize.cancel(eventID)
		log.Error("finalize: advance failed", logx.Err(err))
		return
	}

	if err := s.store.SaveCalendar(ctx, cal); err != nil {
		s.finalize.cancel(eventID)
		log.Error("finalize: save failed", logx.Err(err))
		return
	}

	if advanced {
		ev, ok := cal.EventByID(eventID)
		if ok {
			s.RescheduleEvent(cal, ev)
			log.Info("event advanced", logx.Time("next_start", ev.Start))
		}
		return
	}

	s.unscheduleID(eventID)
	log.Info("event finalized")
}

func (s *Service) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}

// NotifyScheduled and FinalizeScheduled report whether live handles exist.
// Exposed for tests and operational introspection.
func (s *Service) NotifyScheduled(eventID string) bool   { return s.notify.has(eventID) }
func (s *Service) FinalizeScheduled(eventID string) bool { return s.finalize.has(eventID) }

// TimerCounts returns the number of live notify and finalize handles.
func (s *Service) TimerCounts() (notify, finalize int) {
	return s.notify.size(), s.finalize.size()
}
