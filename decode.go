package relay

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// opDispatch is the gateway opcode for event dispatch frames.
const opDispatch = 0

var (
	// ErrNotDispatch is returned by Decode for frames that are not event
	// dispatches (heartbeats, hello, acks).
	ErrNotDispatch = errors.New("frame is not a dispatch")

	// ErrMissingType is returned when a dispatch frame has no "t" field.
	ErrMissingType = errors.New("dispatch frame missing type")

	// ErrMissingData is returned when a dispatch frame has no "d" object.
	ErrMissingData = errors.New("dispatch frame missing data")
)

// Decode parses a gateway dispatch frame into a typed Event.
//
// A dispatch frame looks like:
//
//	{"op": 0, "t": "MESSAGE_CREATE", "s": 42, "d": {...}}
//
// Frames with any other opcode return ErrNotDispatch.
func Decode(raw []byte) (Event, error) {
	frame, err := JSONInspector().Inspect(raw)
	if err != nil {
		return nil, err
	}

	op, ok := frame.GetSnowflake("op")
	if !ok || op != opDispatch {
		return nil, ErrNotDispatch
	}

	t, ok := frame.GetString("t")
	if !ok || t == "" {
		return nil, ErrMissingType
	}

	d, ok := frame.GetBytes("d")
	if !ok || !gjson.ParseBytes(d).IsObject() {
		return nil, ErrMissingData
	}

	return DecodeDispatch(Kind(t), d)
}

// DecodeDispatch builds the typed Event for kind from its "d" object.
// Unknown kinds decode to *RawEvent.
func DecodeDispatch(kind Kind, data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("decode %s: %w", kind, ErrInvalidJSON)
	}
	d := gjson.ParseBytes(data)
	p := payload{raw: data}

	switch kind {
	case KindReady:
		return &Ready{
			payload:   p,
			User:      decodeUser(d.Get("user")),
			SessionID: d.Get("session_id").String(),
		}, nil

	case KindMessageCreate:
		id, ok := snowflake(d.Get("id"))
		if !ok {
			return nil, fmt.Errorf("decode %s: missing message id", kind)
		}
		channel, _ := snowflake(d.Get("channel_id"))
		guild, _ := snowflake(d.Get("guild_id"))
		return &MessageCreate{
			payload: p,
			Message: Message{
				ID:        id,
				ChannelID: channel,
				GuildID:   guild,
				Author:    decodeUser(d.Get("author")),
				Content:   d.Get("content").String(),
			},
		}, nil

	case KindMessageDelete:
		id, ok := snowflake(d.Get("id"))
		if !ok {
			return nil, fmt.Errorf("decode %s: missing message id", kind)
		}
		channel, _ := snowflake(d.Get("channel_id"))
		guild, _ := snowflake(d.Get("guild_id"))
		return &MessageDelete{payload: p, ID: id, ChannelID: channel, GuildID: guild}, nil

	case KindReactionAdd:
		r, err := decodeReaction(kind, d)
		if err != nil {
			return nil, err
		}
		return &ReactionAdd{payload: p, Reaction: r}, nil

	case KindReactionRemove:
		r, err := decodeReaction(kind, d)
		if err != nil {
			return nil, err
		}
		return &ReactionRemove{payload: p, Reaction: r}, nil

	default:
		return &RawEvent{payload: p, Type: kind}, nil
	}
}

func decodeUser(r gjson.Result) User {
	id, _ := snowflake(r.Get("id"))
	return User{
		ID:       id,
		Username: r.Get("username").String(),
		Bot:      r.Get("bot").Bool(),
	}
}

func decodeReaction(kind Kind, d gjson.Result) (Reaction, error) {
	msg, ok := snowflake(d.Get("message_id"))
	if !ok {
		return Reaction{}, fmt.Errorf("decode %s: missing message_id", kind)
	}
	user, _ := snowflake(d.Get("user_id"))
	channel, _ := snowflake(d.Get("channel_id"))
	guild, _ := snowflake(d.Get("guild_id"))
	emoji, _ := snowflake(d.Get("emoji.id"))
	return Reaction{
		UserID:    user,
		ChannelID: channel,
		MessageID: msg,
		GuildID:   guild,
		Emoji:     Emoji{ID: emoji, Name: d.Get("emoji.name").String()},
	}, nil
}
