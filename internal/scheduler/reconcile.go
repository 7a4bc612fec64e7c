package scheduler

import (
	"context"

	"schedbot/pkg/logx"
)

// ReconcileAll reloads every stored calendar and re-derives timer state.
// Timers are process-local and die with the process; this pass is the sole
// recovery mechanism after a restart or crash, and it also sweeps events
// that drifted into the look-ahead window since the last run. Because
// installs are idempotent per event ID, running it repeatedly is always
// safe.
func (s *Service) ReconcileAll(ctx context.Context) {
	guildIDs, err := s.store.ListGuildIDs(ctx)
	if err != nil {
		s.log.Error("reconcile: list guilds failed", logx.Err(err))
		return
	}

	for _, guildID := range guildIDs {
		if ctx.Err() != nil {
			return
		}
		cal, err := s.store.FindCalendar(ctx, guildID)
		if err != nil {
			s.log.Error("reconcile: calendar load failed",
				logx.String("guild", guildID), logx.Err(err))
			continue
		}
		s.ScheduleUpcomingEvents(cal)
	}

	notify, finalize := s.TimerCounts()
	s.log.Debug("reconcile pass done",
		logx.Int("guilds", len(guildIDs)),
		logx.Int("notify_timers", notify),
		logx.Int("finalize_timers", finalize))
}
