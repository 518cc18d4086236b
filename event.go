package relay

import "strconv"

// Kind is the gateway dispatch name of an event, e.g. "MESSAGE_CREATE".
type Kind string

// Dispatch kinds decoded into typed events. Any other dispatch name is
// delivered as a *RawEvent carrying its own Kind.
const (
	KindReady          Kind = "READY"
	KindMessageCreate  Kind = "MESSAGE_CREATE"
	KindMessageDelete  Kind = "MESSAGE_DELETE"
	KindReactionAdd    Kind = "MESSAGE_REACTION_ADD"
	KindReactionRemove Kind = "MESSAGE_REACTION_REMOVE"
)

// Snowflake is a gateway-issued identifier. Issued identifiers are never
// zero, so the zero value means "absent" in a Scope.
type Snowflake uint64

// String returns the decimal form used in REST paths and JSON payloads.
func (s Snowflake) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// Event is one immutable message from the gateway.
//
// The concrete types are *Ready, *MessageCreate, *MessageDelete,
// *ReactionAdd, *ReactionRemove and *RawEvent. Switch on the type to read
// variant fields:
//
//	switch ev := ec.Event.(type) {
//	case *relay.MessageCreate:
//	    fmt.Println(ev.Content)
//	case *relay.ReactionAdd:
//	    fmt.Println(ev.Emoji.Name)
//	}
type Event interface {
	// Kind returns the dispatch name.
	Kind() Kind

	// Scope returns the identifiers the event is attached to.
	Scope() Scope

	// Payload returns the raw "d" object as received from the gateway, or
	// nil for events built in process.
	Payload() []byte
}

// Scope holds the identifiers an event carries. Zero fields are absent.
type Scope struct {
	GuildID   Snowflake
	ChannelID Snowflake
	MessageID Snowflake
	UserID    Snowflake
}

// payload is embedded by every event type to carry the raw gateway data.
type payload struct {
	raw []byte
}

// Payload implements Event.
func (p payload) Payload() []byte { return p.raw }

// User is an account on the gateway.
type User struct {
	ID       Snowflake
	Username string
	Bot      bool
}

// Message is a chat message.
type Message struct {
	ID        Snowflake
	ChannelID Snowflake
	GuildID   Snowflake
	Author    User
	Content   string
}

// Emoji identifies a reaction emoji. Unicode emoji have a zero ID.
type Emoji struct {
	ID   Snowflake
	Name string
}

// Reaction describes a single user's reaction on a message.
type Reaction struct {
	UserID    Snowflake
	ChannelID Snowflake
	MessageID Snowflake
	GuildID   Snowflake
	Emoji     Emoji
}

// Ready is sent once the session is established and names the
// authenticated identity.
type Ready struct {
	payload
	User      User
	SessionID string
}

func (*Ready) Kind() Kind { return KindReady }

func (e *Ready) Scope() Scope { return Scope{UserID: e.User.ID} }

// MessageCreate is sent when a message is posted.
type MessageCreate struct {
	payload
	Message
}

func (*MessageCreate) Kind() Kind { return KindMessageCreate }

func (e *MessageCreate) Scope() Scope {
	return Scope{
		GuildID:   e.GuildID,
		ChannelID: e.ChannelID,
		MessageID: e.ID,
		UserID:    e.Author.ID,
	}
}

// MessageDelete is sent when a message is removed.
type MessageDelete struct {
	payload
	ID        Snowflake
	ChannelID Snowflake
	GuildID   Snowflake
}

func (*MessageDelete) Kind() Kind { return KindMessageDelete }

func (e *MessageDelete) Scope() Scope {
	return Scope{GuildID: e.GuildID, ChannelID: e.ChannelID, MessageID: e.ID}
}

// ReactionAdd is sent when a user reacts to a message.
type ReactionAdd struct {
	payload
	Reaction
}

func (*ReactionAdd) Kind() Kind { return KindReactionAdd }

func (e *ReactionAdd) Scope() Scope { return e.Reaction.scope() }

// ReactionRemove is sent when a user removes a reaction.
type ReactionRemove struct {
	payload
	Reaction
}

func (*ReactionRemove) Kind() Kind { return KindReactionRemove }

func (e *ReactionRemove) Scope() Scope { return e.Reaction.scope() }

func (r Reaction) scope() Scope {
	return Scope{
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
	}
}

// RawEvent is any dispatch the package has no typed model for.
type RawEvent struct {
	payload
	Type Kind
}

func (e *RawEvent) Kind() Kind { return e.Type }

func (*RawEvent) Scope() Scope { return Scope{} }
