package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"schedbot/internal/calendar"
	"schedbot/internal/storage"
	"schedbot/internal/transport"
)

// cmdInit creates the guild's calendar if needed and sets its timezone and
// default notification channel. A timezone, once set, stays set.
func (s *Service) cmdInit(ctx context.Context, msg transport.Message, args []string) {
	if len(args) != 1 {
		s.reply(ctx, msg.ChannelID, "Usage: init <timezone>")
		return
	}
	tz := args[0]

	s.withLock(ctx, msg, func(ctx context.Context) error {
		cal, err := s.loadForUpdate(ctx, msg.GuildID)
		if errors.Is(err, storage.ErrNoCalendar) {
			cal = calendar.New(msg.GuildID, s.defaultPrefix)
			err = nil
		}
		if err != nil {
			return err
		}

		if cal.Timezone != "" {
			s.reply(ctx, msg.ChannelID, "Calendar is already initialized.")
			return nil
		}
		if _, err := time.LoadLocation(tz); err != nil {
			s.reply(ctx, msg.ChannelID, "Timezone not found.")
			return nil
		}
		cal.Timezone = tz
		cal.UpdateDefaultChannel(msg.ChannelID)
		if err := s.store.SaveCalendar(ctx, cal); err != nil {
			return err
		}
		s.reply(ctx, msg.ChannelID,
			fmt.Sprintf("Calendar timezone set to %s, notifications go to this channel.", tz))
		return nil
	})
}

func (s *Service) cmdEventAdd(ctx context.Context, msg transport.Message, args []string) {
	if len(args) == 0 {
		s.reply(ctx, msg.ChannelID, "Usage: event add <name> at <datetime> [to <datetime>] [--repeat daily|weekly|monthly] [--desc text]")
		return
	}

	s.withLock(ctx, msg, func(ctx context.Context) error {
		cal, err := s.loadForUpdate(ctx, msg.GuildID)
		if err != nil {
			return err
		}
		if !cal.CheckPerm(permEventCreate, msg.From.ID, msg.From.RoleIDs, msg.From.IsOwner) {
			s.reply(ctx, msg.ChannelID, replyPermissionDenied)
			return nil
		}

		loc, err := cal.Location()
		if err != nil {
			return err
		}
		now := nowUTC()
		draft, err := s.parser.Parse(args, loc, now)
		if err != nil || draft.Name == nil || draft.Start == nil {
			s.reply(ctx, msg.ChannelID, "Could not parse an event from that. Give it a name and a start time.")
			return nil
		}
		if draft.Start.Before(now) {
			s.reply(ctx, msg.ChannelID, "Cannot create an event that starts in the past.")
			return nil
		}

		ev, err := cal.AddEvent(draft)
		if err != nil {
			if errors.Is(err, calendar.ErrInvalidDraft) {
				s.reply(ctx, msg.ChannelID, "Event must end at or after its start.")
				return nil
			}
			s.reply(ctx, msg.ChannelID, err.Error())
			return nil
		}
		if err := s.store.SaveCalendar(ctx, cal); err != nil {
			return err
		}
		s.sched.ScheduleEvent(cal, ev)
		s.reply(ctx, msg.ChannelID, "New event created.\n"+renderEvent(ev, loc))
		return nil
	})
}

// cmdEventList is read-only and therefore runs without the guild lock.
func (s *Service) cmdEventList(ctx context.Context, msg transport.Message) {
	cal, err := s.store.FindCalendar(ctx, msg.GuildID)
	if err != nil {
		s.reply(ctx, msg.ChannelID, replyInternalError)
		return
	}
	if !cal.CheckPerm(permEventList, msg.From.ID, msg.From.RoleIDs, msg.From.IsOwner) {
		s.reply(ctx, msg.ChannelID, replyPermissionDenied)
		return
	}
	s.reply(ctx, msg.ChannelID, renderEventList(cal, nowUTC()))
}

func (s *Service) cmdEventDelete(ctx context.Context, msg transport.Message, args []string) {
	index, ok := parseIndex(args)
	if !ok {
		s.reply(ctx, msg.ChannelID, "Usage: event delete <number>")
		return
	}

	s.withLock(ctx, msg, func(ctx context.Context) error {
		cal, err := s.loadForUpdate(ctx, msg.GuildID)
		if err != nil {
			return err
		}
		if !cal.CheckPerm(permEventDelete, msg.From.ID, msg.From.RoleIDs, msg.From.IsOwner) {
			s.reply(ctx, msg.ChannelID, replyPermissionDenied)
			return nil
		}

		ev, err := cal.DeleteEvent(index)
		if errors.Is(err, calendar.ErrNotFound) {
			s.reply(ctx, msg.ChannelID, replyEventNotFound)
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.store.SaveCalendar(ctx, cal); err != nil {
			return err
		}
		s.sched.UnscheduleEvent(ev)
		s.reply(ctx, msg.ChannelID, "Event deleted: "+ev.Name)
		return nil
	})
}

func (s *Service) cmdEventUpdate(ctx context.Context, msg transport.Message, args []string) {
	index, ok := parseIndex(args)
	if !ok || len(args) < 2 {
		s.reply(ctx, msg.ChannelID, "Usage: event update <number> <changes>")
		return
	}
	args = args[1:]

	s.withLock(ctx, msg, func(ctx context.Context) error {
		cal, err := s.loadForUpdate(ctx, msg.GuildID)
		if err != nil {
			return err
		}
		if !cal.CheckPerm(permEventUpdate, msg.From.ID, msg.From.RoleIDs, msg.From.IsOwner) {
			s.reply(ctx, msg.ChannelID, replyPermissionDenied)
			return nil
		}

		loc, err := cal.Location()
		if err != nil {
			return err
		}
		draft, err := s.parser.Parse(args, loc, nowUTC())
		if err != nil {
			s.reply(ctx, msg.ChannelID, "Could not parse those changes.")
			return nil
		}

		ev, err := cal.UpdateEvent(index, draft)
		if errors.Is(err, calendar.ErrNotFound) {
			s.reply(ctx, msg.ChannelID, replyEventNotFound)
			return nil
		}
		if errors.Is(err, calendar.ErrInvalidDraft) {
			s.reply(ctx, msg.ChannelID, "Event must end at or after its start.")
			return nil
		}
		if err != nil {
			s.reply(ctx, msg.ChannelID, err.Error())
			return nil
		}
		if err := s.store.SaveCalendar(ctx, cal); err != nil {
			return err
		}
		s.sched.RescheduleEvent(cal, ev)
		s.reply(ctx, msg.ChannelID, "Event updated.\n"+renderEvent(ev, loc))
		return nil
	})
}

func (s *Service) cmdEventExport(ctx context.Context, msg transport.Message) {
	cal, err := s.store.FindCalendar(ctx, msg.GuildID)
	if err != nil {
		s.reply(ctx, msg.ChannelID, replyInternalError)
		return
	}
	if !cal.CheckPerm(permEventList, msg.From.ID, msg.From.RoleIDs, msg.From.IsOwner) {
		s.reply(ctx, msg.ChannelID, replyPermissionDenied)
		return
	}
	s.reply(ctx, msg.ChannelID, "```\n"+cal.ICS()+"```")
}

// cmdPrefix with no argument shows the current prefix (read-only, no
// lock); with one argument it changes it.
func (s *Service) cmdPrefix(ctx context.Context, msg transport.Message, args []string) {
	if len(args) == 0 {
		cal, err := s.store.FindCalendar(ctx, msg.GuildID)
		if err != nil {
			s.reply(ctx, msg.ChannelID, replyInternalError)
			return
		}
		if !cal.CheckPerm(permPrefixShow, msg.From.ID, msg.From.RoleIDs, msg.From.IsOwner) {
			s.reply(ctx, msg.ChannelID, replyPermissionDenied)
			return
		}
		prefix := cal.Prefix
		if prefix == "" {
			prefix = s.defaultPrefix
		}
		s.reply(ctx, msg.ChannelID, "Current prefix: "+prefix)
		return
	}
	if len(args) != 1 {
		s.reply(ctx, msg.ChannelID, "Usage: prefix [new prefix]")
		return
	}

	s.withLock(ctx, msg, func(ctx context.Context) error {
		cal, err := s.loadForUpdate(ctx, msg.GuildID)
		if err != nil {
			return err
		}
		if !cal.CheckPerm(permPrefixModify, msg.From.ID, msg.From.RoleIDs, msg.From.IsOwner) {
			s.reply(ctx, msg.ChannelID, replyPermissionDenied)
			return nil
		}
		cal.UpdatePrefix(args[0])
		if err := s.store.SaveCalendar(ctx, cal); err != nil {
			return err
		}
		s.reply(ctx, msg.ChannelID, "Prefix set to "+args[0])
		return nil
	})
}

// cmdChannel points event notifications at the channel the command was
// issued in.
func (s *Service) cmdChannel(ctx context.Context, msg transport.Message) {
	s.withLock(ctx, msg, func(ctx context.Context) error {
		cal, err := s.loadForUpdate(ctx, msg.GuildID)
		if err != nil {
			return err
		}
		if !cal.CheckPerm(permChannelModify, msg.From.ID, msg.From.RoleIDs, msg.From.IsOwner) {
			s.reply(ctx, msg.ChannelID, replyPermissionDenied)
			return nil
		}
		cal.UpdateDefaultChannel(msg.ChannelID)
		if err := s.store.SaveCalendar(ctx, cal); err != nil {
			return err
		}
		// Pending notify timers still point at the old channel; re-derive.
		for _, ev := range cal.Events {
			s.sched.RescheduleEvent(cal, ev)
		}
		s.reply(ctx, msg.ChannelID, "Event notifications will be sent to this channel.")
		return nil
	})
}

func (s *Service) cmdTimezone(ctx context.Context, msg transport.Message, args []string) {
	if len(args) != 1 {
		s.reply(ctx, msg.ChannelID, "Usage: timezone <timezone>")
		return
	}

	s.withLock(ctx, msg, func(ctx context.Context) error {
		cal, err := s.loadForUpdate(ctx, msg.GuildID)
		if err != nil {
			return err
		}
		if !cal.CheckPerm(permTZModify, msg.From.ID, msg.From.RoleIDs, msg.From.IsOwner) {
			s.reply(ctx, msg.ChannelID, replyPermissionDenied)
			return nil
		}

		shifted, ok, err := cal.UpdateTimezone(args[0], nowUTC())
		if errors.Is(err, calendar.ErrInvalidZone) {
			s.reply(ctx, msg.ChannelID, "Timezone not found.")
			return nil
		}
		if err != nil {
			return err
		}
		if !ok {
			s.reply(ctx, msg.ChannelID,
				"Cannot change timezone: it would move an event's start into the past.")
			return nil
		}
		if err := s.store.SaveCalendar(ctx, cal); err != nil {
			return err
		}
		// The aggregate shifted the instants but never touches timers;
		// rescheduling every shifted event is this caller's contract.
		for _, ev := range shifted {
			s.sched.RescheduleEvent(cal, ev)
		}
		s.reply(ctx, msg.ChannelID, "Calendar timezone set to "+args[0])
		return nil
	})
}

// cmdPerms handles `perms deny|allow user|role <id> <node>` and
// `perms show <node>`.
func (s *Service) cmdPerms(ctx context.Context, msg transport.Message, args []string) {
	usage := "Usage: perms deny|allow user|role <id> <node>, or perms show <node>"
	if len(args) < 2 {
		s.reply(ctx, msg.ChannelID, usage)
		return
	}

	if args[0] == "show" {
		s.cmdPermsShow(ctx, msg, args[1])
		return
	}
	if len(args) != 4 || (args[0] != "deny" && args[0] != "allow") ||
		(args[1] != "user" && args[1] != "role") {
		s.reply(ctx, msg.ChannelID, usage)
		return
	}
	action, kind, id, node := args[0], args[1], args[2], args[3]

	s.withLock(ctx, msg, func(ctx context.Context) error {
		cal, err := s.loadForUpdate(ctx, msg.GuildID)
		if err != nil {
			return err
		}
		if !cal.CheckPerm(permPermsModify, msg.From.ID, msg.From.RoleIDs, msg.From.IsOwner) {
			s.reply(ctx, msg.ChannelID, replyPermissionDenied)
			return nil
		}

		switch {
		case action == "deny" && kind == "user":
			cal.DenyUser(node, id)
		case action == "deny" && kind == "role":
			cal.DenyRole(node, id)
		case action == "allow" && kind == "user":
			cal.AllowUser(node, id)
		case action == "allow" && kind == "role":
			cal.AllowRole(node, id)
		}
		if err := s.store.SaveCalendar(ctx, cal); err != nil {
			return err
		}
		s.reply(ctx, msg.ChannelID,
			fmt.Sprintf("Permission node %s: %s %s %s.", node, action, kind, id))
		return nil
	})
}

func (s *Service) cmdPermsShow(ctx context.Context, msg transport.Message, node string) {
	cal, err := s.store.FindCalendar(ctx, msg.GuildID)
	if err != nil {
		s.reply(ctx, msg.ChannelID, replyInternalError)
		return
	}
	if !cal.CheckPerm(permPermsShow, msg.From.ID, msg.From.RoleIDs, msg.From.IsOwner) {
		s.reply(ctx, msg.ChannelID, replyPermissionDenied)
		return
	}

	for _, entry := range cal.Permissions {
		if entry.Node == node {
			s.reply(ctx, msg.ChannelID, fmt.Sprintf(
				"Node %s\nDenied roles: %s\nDenied users: %s",
				node,
				strings.Join(entry.DeniedRoles, ", "),
				strings.Join(entry.DeniedUsers, ", ")))
			return
		}
	}
	s.reply(ctx, msg.ChannelID, fmt.Sprintf("Node %s has no denials.", node))
}

func (s *Service) cmdHelp(ctx context.Context, msg transport.Message) {
	s.reply(ctx, msg.ChannelID, strings.Join([]string{
		"Commands:",
		"  init <timezone>                 set up the calendar for this guild",
		"  event add <name> at <datetime> [to <datetime>] [--repeat daily|weekly|monthly] [--desc text]",
		"  event list                      show active and upcoming events",
		"  event delete <number>           remove an event",
		"  event update <number> <changes> change an event",
		"  event export                    export the calendar as iCalendar",
		"  prefix [new prefix]             show or change the command prefix",
		"  channel                         send notifications to this channel",
		"  timezone <timezone>             change the calendar timezone",
		"  perms deny|allow user|role <id> <node>",
		"  perms show <node>",
	}, "\n"))
}

// parseIndex converts the 1-based position users see into the 0-based
// index the aggregate uses.
func parseIndex(args []string) (int, bool) {
	if len(args) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}
