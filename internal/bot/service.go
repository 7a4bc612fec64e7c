package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"schedbot/internal/calendar"
	"schedbot/internal/eventbus"
	"schedbot/internal/lock"
	"schedbot/internal/scheduler"
	"schedbot/internal/storage"
	"schedbot/internal/transport"
	"schedbot/pkg/logx"
)

// Permission nodes checked by command handlers.
const (
	permEventCreate   = "event.create"
	permEventList     = "event.list"
	permEventDelete   = "event.delete"
	permEventUpdate   = "event.update"
	permPrefixModify  = "prefix.modify"
	permPrefixShow    = "prefix.show"
	permChannelModify = "defaultchannel.modify"
	permTZModify      = "timezone.modify"
	permPermsModify   = "perms.modify"
	permPermsShow     = "perms.show"
)

const (
	replyPermissionDenied = "You are not permitted to use this command."
	replyBusy             = "The calendar is busy right now, please try again."
	replyNotInitialized   = "Calendar not initialized. Run `init <timezone>` first."
	replyEventNotFound    = "Event not found."
	replyInternalError    = "Something went wrong, please try again later."
)

// Service routes inbound command messages to handlers. Every handler that
// mutates a calendar runs the full sequence under the guild lock: load,
// permission check, mutate, persist, (re)schedule timers, release.
type Service struct {
	log       logx.Logger
	store     storage.Store
	locker    *lock.Locker
	sched     *scheduler.Service
	messenger transport.Messenger
	bus       eventbus.Bus
	parser    DraftParser

	defaultPrefix string
}

func New(store storage.Store, locker *lock.Locker, sched *scheduler.Service,
	messenger transport.Messenger, bus eventbus.Bus, parser DraftParser,
	defaultPrefix string, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if parser == nil {
		parser = NewDraftParser()
	}
	if defaultPrefix == "" {
		defaultPrefix = "+"
	}
	return &Service{
		log:           log,
		store:         store,
		locker:        locker,
		sched:         sched,
		messenger:     messenger,
		bus:           bus,
		parser:        parser,
		defaultPrefix: defaultPrefix,
	}
}

// Run consumes updates until the channel closes or ctx is done. Each
// message is handled in its own goroutine so one guild's slow lock wait
// does not stall unrelated guilds.
func (s *Service) Run(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			switch up.Kind {
			case transport.UpdateMessage:
				if up.Message != nil {
					msg := *up.Message
					go s.handleMessage(ctx, msg)
				}
			case transport.UpdateGuildJoined:
				s.bus.Publish(eventbus.Event{Type: eventbus.GuildJoined, GuildID: up.GuildID})
			case transport.UpdateGuildRemoved:
				s.bus.Publish(eventbus.Event{Type: eventbus.GuildRemoved, GuildID: up.GuildID})
			}
		}
	}
}

func (s *Service) handleMessage(ctx context.Context, msg transport.Message) {
	cal, err := s.store.FindCalendar(ctx, msg.GuildID)
	if err != nil && !errors.Is(err, storage.ErrNoCalendar) {
		s.log.Error("calendar lookup failed", logx.String("guild", msg.GuildID), logx.Err(err))
		return
	}

	prefix := s.defaultPrefix
	if cal != nil && cal.Prefix != "" {
		prefix = cal.Prefix
	}
	if !strings.HasPrefix(msg.Text, prefix) {
		return
	}

	args := strings.Fields(msg.Text[len(prefix):])
	if len(args) == 0 {
		return
	}
	cmd := args[0]
	args = args[1:]

	switch cmd {
	case "help":
		s.cmdHelp(ctx, msg)
	case "init":
		s.cmdInit(ctx, msg, args)
	case "event":
		if cal == nil || cal.Timezone == "" {
			s.reply(ctx, msg.ChannelID, replyNotInitialized)
			return
		}
		s.cmdEvent(ctx, msg, args)
	case "prefix", "channel", "timezone", "perms":
		if cal == nil {
			s.reply(ctx, msg.ChannelID, replyNotInitialized)
			return
		}
		switch cmd {
		case "prefix":
			s.cmdPrefix(ctx, msg, args)
		case "channel":
			s.cmdChannel(ctx, msg)
		case "timezone":
			s.cmdTimezone(ctx, msg, args)
		case "perms":
			s.cmdPerms(ctx, msg, args)
		}
	}
}

func (s *Service) cmdEvent(ctx context.Context, msg transport.Message, args []string) {
	if len(args) == 0 {
		s.reply(ctx, msg.ChannelID, "Usage: event add|list|delete|update|export ...")
		return
	}
	sub := args[0]
	args = args[1:]

	switch sub {
	case "add":
		s.cmdEventAdd(ctx, msg, args)
	case "list":
		s.cmdEventList(ctx, msg)
	case "delete":
		s.cmdEventDelete(ctx, msg, args)
	case "update":
		s.cmdEventUpdate(ctx, msg, args)
	case "export":
		s.cmdEventExport(ctx, msg)
	default:
		s.reply(ctx, msg.ChannelID, "Usage: event add|list|delete|update|export ...")
	}
}

// withLock runs fn holding the guild's lease, releasing it on every exit
// path. A lock timeout or storage failure is translated into a user-facing
// reply and reported as handled.
func (s *Service) withLock(ctx context.Context, msg transport.Message, fn func(ctx context.Context) error) {
	lease, err := s.locker.Acquire(ctx, msg.GuildID)
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			s.reply(ctx, msg.ChannelID, replyBusy)
		} else {
			s.log.Error("lock acquire failed", logx.String("guild", msg.GuildID), logx.Err(err))
			s.reply(ctx, msg.ChannelID, replyInternalError)
		}
		return
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			s.log.Error("lock release failed", logx.String("guild", msg.GuildID), logx.Err(err))
		}
	}()

	if err := fn(ctx); err != nil {
		s.log.Error("command failed",
			logx.String("guild", msg.GuildID),
			logx.String("channel", msg.ChannelID),
			logx.Err(err))
		s.reply(ctx, msg.ChannelID, replyInternalError)
	}
}

// loadForUpdate re-fetches the calendar under the lock; handlers must not
// reuse a pre-lock read for mutation.
func (s *Service) loadForUpdate(ctx context.Context, guildID string) (*calendar.Calendar, error) {
	return s.store.FindCalendar(ctx, guildID)
}

func (s *Service) reply(ctx context.Context, channelID, text string) {
	if err := s.messenger.SendMessage(ctx, channelID, text); err != nil {
		s.log.Error("reply failed", logx.String("channel", channelID), logx.Err(err))
	}
}

func nowUTC() time.Time { return time.Now().UTC() }
