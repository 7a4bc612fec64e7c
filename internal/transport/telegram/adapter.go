// Package telegram binds the platform-neutral transport types to Telegram
// group chats: a group plays the role of a guild and its creator the guild
// owner.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"schedbot/internal/transport"
	"schedbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot
	out atomic.Value // stores chan<- transport.Update

	runMu   sync.Mutex
	running bool

	// member roles change rarely; cache per (chat, user) with a TTL so we
	// do not hit AdminsOf on every message.
	memberMu    sync.Mutex
	memberCache map[string]cachedMember

	droppedUpdates uint64
}

type cachedMember struct {
	member  transport.Member
	fetched time.Time
}

const memberCacheTTL = 5 * time.Minute

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	a := &Adapter{cfg: cfg, log: log, bot: b, memberCache: map[string]cachedMember{}}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Private() {
			return nil
		}
		guildID := strconv.FormatInt(m.Chat.ID, 10)
		a.sendUpdate(transport.Update{
			Kind:    transport.UpdateMessage,
			GuildID: guildID,
			Message: &transport.Message{
				GuildID:   guildID,
				ChannelID: guildID,
				Text:      m.Text,
				From:      a.memberOf(m.Chat, m.Sender),
			},
		})
		return nil
	})

	a.bot.Handle(tele.OnAddedToGroup, func(c tele.Context) error {
		if m := c.Message(); m != nil {
			a.sendUpdate(transport.Update{
				Kind:    transport.UpdateGuildJoined,
				GuildID: strconv.FormatInt(m.Chat.ID, 10),
			})
		}
		return nil
	})

	a.bot.Handle(tele.OnUserLeft, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.UserLeft == nil {
			return nil
		}
		if m.UserLeft.ID == a.bot.Me.ID {
			a.sendUpdate(transport.Update{
				Kind:    transport.UpdateGuildRemoved,
				GuildID: strconv.FormatInt(m.Chat.ID, 10),
			})
		}
		return nil
	})
}

// memberOf resolves the sender's guild role: the chat creator maps to the
// guild owner, administrators get an "admin" role ID. Lookup failures
// degrade to a plain member rather than blocking the message.
func (a *Adapter) memberOf(chat *tele.Chat, user *tele.User) transport.Member {
	key := strconv.FormatInt(chat.ID, 10) + ":" + strconv.FormatInt(user.ID, 10)

	a.memberMu.Lock()
	cached, ok := a.memberCache[key]
	a.memberMu.Unlock()
	if ok && time.Since(cached.fetched) < memberCacheTTL {
		return cached.member
	}

	member := transport.Member{ID: strconv.FormatInt(user.ID, 10)}
	admins, err := a.bot.AdminsOf(chat)
	if err != nil {
		a.log.Warn("admins lookup failed", logx.Int64("chat", chat.ID), logx.Err(err))
		return member
	}
	for _, admin := range admins {
		if admin.User == nil || admin.User.ID != user.ID {
			continue
		}
		switch admin.Role {
		case tele.Creator:
			member.IsOwner = true
		case tele.Administrator:
			member.RoleIDs = append(member.RoleIDs, "admin")
		}
	}

	a.memberMu.Lock()
	a.memberCache[key] = cachedMember{member: member, fetched: time.Now()}
	a.memberMu.Unlock()
	return member
}

func (a *Adapter) sendUpdate(up transport.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- transport.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return errors.New("telegram adapter already started")
	}
	a.running = true
	a.out.Store(out)

	go a.bot.Start()
	go func() {
		<-ctx.Done()
		_ = a.Stop(context.Background())
	}()

	a.log.Info("telegram adapter started", logx.Int64("bot_id", a.bot.Me.ID))
	return nil
}

func (a *Adapter) Stop(context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	a.bot.Stop()
	a.log.Info("telegram adapter stopped")
	return nil
}

// SendMessage implements transport.Messenger. Channel IDs are stringified
// Telegram chat IDs.
func (a *Adapter) SendMessage(_ context.Context, channelID, text string) error {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return errors.New("invalid channel id: " + channelID)
	}
	_, err = a.bot.Send(&tele.Chat{ID: id}, text)
	return err
}
