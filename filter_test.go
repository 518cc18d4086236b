package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decoded(t *testing.T, raw string) Event {
	t.Helper()
	ev, err := Decode([]byte(raw))
	require.NoError(t, err)
	return ev
}

func TestFilter_Class(t *testing.T) {
	events := map[string]Event{
		"add":     reaction(7, 100, "👍"),
		"remove":  &ReactionRemove{Reaction: Reaction{UserID: 7, MessageID: 100}},
		"create":  message(7, "hi"),
		"delete":  &MessageDelete{ID: 100, ChannelID: 20},
		"ready":   &Ready{User: User{ID: 10}},
		"unknown": &RawEvent{Type: "TYPING_START"},
	}

	tests := map[EventClass][]string{
		ReactionAdded:   {"add"},
		ReactionRemoved: {"remove"},
		MessageCreated:  {"create"},
		MessageDeleted:  {"delete"},
		AnyEvent:        {"add", "remove", "create", "delete", "ready", "unknown"},
	}

	for class, want := range tests {
		t.Run(class.String(), func(t *testing.T) {
			f := NewFilter(class)
			var got []string
			for _, name := range []string{"add", "remove", "create", "delete", "ready", "unknown"} {
				if f.Matches(events[name]) {
					got = append(got, name)
				}
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestFilter_Scoping(t *testing.T) {
	ev := reaction(7, 100, "👍")

	tests := map[string]struct {
		filter Filter
		want   bool
	}{
		"no scope":        {NewFilter(ReactionAdded), true},
		"message match":   {NewFilter(ReactionAdded).OnMessage(100), true},
		"message differs": {NewFilter(ReactionAdded).OnMessage(101), false},
		"channel match":   {NewFilter(ReactionAdded).InChannel(20), true},
		"guild differs":   {NewFilter(ReactionAdded).InGuild(99), false},
		"user match":      {NewFilter(ReactionAdded).ByUser(7), true},
		"all set":         {NewFilter(ReactionAdded).InGuild(30).InChannel(20).OnMessage(100).ByUser(7), true},
		"one of all off":  {NewFilter(ReactionAdded).InGuild(30).InChannel(20).OnMessage(100).ByUser(8), false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(ev))
		})
	}

	t.Run("absent field never matches a set scope", func(t *testing.T) {
		dm := &MessageCreate{Message: Message{ID: 1, ChannelID: 2, Author: User{ID: 7}}}
		assert.False(t, NewFilter(MessageCreated).InGuild(0).Matches(dm))
		assert.True(t, NewFilter(MessageCreated).InChannel(2).Matches(dm))
	})
}

func TestFilter_Limit(t *testing.T) {
	assert.Equal(t, 1, NewFilter(AnyEvent).Max())
	assert.Equal(t, 5, NewFilter(AnyEvent).Limit(5).Max())
	assert.Equal(t, 1, NewFilter(AnyEvent).Limit(0).Max())
	assert.Equal(t, 1, NewFilter(AnyEvent).Limit(-3).Max())
	assert.Equal(t, 1, Filter{}.Max())
}

func TestFilter_IsAValue(t *testing.T) {
	base := NewFilter(ReactionAdded).Where(HasFields("emoji"))
	narrowed := base.Where(FieldEquals("emoji.name", "👎"))

	ev := decoded(t, `{"op":0,"t":"MESSAGE_REACTION_ADD","d":{
		"user_id":"7","channel_id":"20","message_id":"100","emoji":{"name":"👍"}
	}}`)

	assert.True(t, base.Matches(ev), "narrowing a copy must not change the original")
	assert.False(t, narrowed.Matches(ev))
}

func TestFilter_Where(t *testing.T) {
	ev := decoded(t, `{"op":0,"t":"MESSAGE_REACTION_ADD","d":{
		"user_id":"7","channel_id":"20","message_id":"100",
		"emoji":{"id":null,"name":"👍"},
		"member":{"user":{"id":"7","bot":false}}
	}}`)

	assert.True(t, NewFilter(ReactionAdded).Where(FieldEquals("emoji.name", "👍")).Matches(ev))
	assert.False(t, NewFilter(ReactionAdded).Where(HasFields("member.user.bot"), Not(HasFields("member"))).Matches(ev))

	t.Run("events without payload never satisfy predicates", func(t *testing.T) {
		assert.False(t, NewFilter(ReactionAdded).Where(HasFields()).Matches(reaction(7, 100, "👍")))
	})
}

func TestFilter_When(t *testing.T) {
	ev := decoded(t, `{"op":0,"t":"MESSAGE_CREATE","d":{
		"id":"100","channel_id":"20","guild_id":"30",
		"content":"yes please","author":{"id":"7"}
	}}`)

	yes := MustCompileExpr(`content.lowerAscii().startsWith("yes")`)
	no := MustCompileExpr(`content == "no"`)

	assert.True(t, NewFilter(MessageCreated).When(yes).Matches(ev))
	assert.False(t, NewFilter(MessageCreated).When(no).Matches(ev))
	assert.False(t, NewFilter(ReactionAdded).When(yes).Matches(ev), "class is checked first")
}

func TestEventClass_String(t *testing.T) {
	assert.Equal(t, "reaction_added", ReactionAdded.String())
	assert.Equal(t, "any", AnyEvent.String())
	assert.Equal(t, "unknown", EventClass(42).String())
}
