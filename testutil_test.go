package relay

import (
	"context"
	"sync"
)

// testState is the shared state used by tests.
type testState struct {
	name string
}

// fakeCache is an in-memory Cache with injectable failures.
type fakeCache struct {
	mu        sync.Mutex
	me        *User
	updates   []Event
	updateErr error
	userErr   error
}

func (c *fakeCache) Update(_ context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.updateErr != nil {
		return c.updateErr
	}
	c.updates = append(c.updates, ev)
	if r, ok := ev.(*Ready); ok {
		u := r.User
		c.me = &u
	}
	return nil
}

func (c *fakeCache) CurrentUser(context.Context) (*User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userErr != nil {
		return nil, c.userErr
	}
	return c.me, nil
}

func (c *fakeCache) updateCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

// trail records the names of units in the order they ran.
type trail struct {
	mu    sync.Mutex
	names []string
}

func (t *trail) add(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.names = append(t.names, name)
}

func (t *trail) get() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.names...)
}

// step records itself and continues.
func step(tr *trail, name string) Middleware[testState] {
	return MiddlewareFunc[testState](func(ctx context.Context, s testState, ec *EventContext, next Next[testState]) error {
		tr.add(name)
		return next.Run(ctx, s, ec)
	})
}

// stop records itself and ends the chain.
func stop(tr *trail, name string) Middleware[testState] {
	return MiddlewareFunc[testState](func(ctx context.Context, s testState, ec *EventContext, next Next[testState]) error {
		tr.add(name)
		return nil
	})
}

// terminal is a continuation with no units after it.
func terminal() Next[testState] {
	return newNext[testState](nil)
}

func message(author Snowflake, content string) *MessageCreate {
	return &MessageCreate{Message: Message{
		ID:        100,
		ChannelID: 20,
		GuildID:   30,
		Author:    User{ID: author, Username: "user"},
		Content:   content,
	}}
}

func reaction(user, msg Snowflake, emoji string) *ReactionAdd {
	return &ReactionAdd{Reaction: Reaction{
		UserID:    user,
		ChannelID: 20,
		MessageID: msg,
		GuildID:   30,
		Emoji:     Emoji{Name: emoji},
	}}
}
