package relay

import (
	"context"
	"strings"
)

// CommandFunc handles a message whose content starts with a command prefix.
// args is the content with the prefix removed. The handler owns the
// continuation: it decides whether to run next.
type CommandFunc[S any] func(ctx context.Context, args string, state S, ec *EventContext, next Next[S]) error

// Command returns a unit that routes prefixed messages to fn.
//
// For a *MessageCreate whose content starts with prefix (a literal byte
// prefix; no tokenizing or case folding), fn is called with the remainder
// and this unit's continuation. Every other event continues the chain.
//
// Example:
//
//	relay.Command("!ping", func(ctx context.Context, args string, s State, ec *relay.EventContext, next relay.Next[State]) error {
//	    msg := ec.Event.(*relay.MessageCreate)
//	    _, err := s.API.CreateMessage(ctx, msg.ChannelID, "Pong!")
//	    return err
//	})
func Command[S any](prefix string, fn CommandFunc[S]) Middleware[S] {
	return &command[S]{prefix: prefix, fn: fn}
}

type command[S any] struct {
	prefix string
	fn     CommandFunc[S]
}

func (c *command[S]) Handle(ctx context.Context, state S, ec *EventContext, next Next[S]) error {
	msg, ok := ec.Event.(*MessageCreate)
	if !ok || !strings.HasPrefix(msg.Content, c.prefix) {
		return next.Run(ctx, state, ec)
	}
	return c.fn(ctx, msg.Content[len(c.prefix):], state, ec, next)
}
