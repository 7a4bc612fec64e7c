package transport

import "context"

// Member describes the acting user as seen by the chat platform.
type Member struct {
	ID      string
	RoleIDs []string
	IsOwner bool
}

// Message is a platform-neutral inbound command message.
type Message struct {
	GuildID   string
	ChannelID string
	Text      string
	From      Member
}

type UpdateKind string

const (
	UpdateMessage      UpdateKind = "message"
	UpdateGuildJoined  UpdateKind = "guild_joined"
	UpdateGuildRemoved UpdateKind = "guild_removed"
)

// Update is one inbound signal from the platform adapter.
type Update struct {
	Kind    UpdateKind
	GuildID string
	Message *Message
}

// Messenger is the outbound capability the scheduler and command handlers
// depend on. Implementations must be safe for concurrent use.
type Messenger interface {
	SendMessage(ctx context.Context, channelID, text string) error
}

// Adapter is a full platform binding: it feeds Updates in and sends
// messages out.
type Adapter interface {
	Messenger

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
