package relay

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrNextReused is returned when a Next continuation is run more than once.
// Each unit may continue the chain at most once per run.
var ErrNextReused = errors.New("relay: next continuation already run")

// Middleware is one unit of the chain. It is invoked once per event, in
// list order, and decides whether to continue the chain by running next.
//
// The type parameter S is the process-wide state given to New. It is shared
// by every concurrent run and must be treated as read-only; any mutability
// behind it needs its own synchronization.
//
// Returning an error aborts the run. Returning nil without running next
// ends the run quietly (short-circuit).
//
// Example:
//
//	type logUnit struct{ logger *slog.Logger }
//
//	func (u *logUnit) Handle(ctx context.Context, s State, ec *relay.EventContext, next relay.Next[State]) error {
//	    u.logger.Info("event", "kind", ec.Event.Kind())
//	    return next.Run(ctx, s, ec)
//	}
type Middleware[S any] interface {
	Handle(ctx context.Context, state S, ec *EventContext, next Next[S]) error
}

// MiddlewareFunc is a function adapter for Middleware:
//
//	stack.Use(func(ctx context.Context, s State, ec *relay.EventContext, next relay.Next[State]) error {
//	    return next.Run(ctx, s, ec)
//	})
type MiddlewareFunc[S any] func(ctx context.Context, state S, ec *EventContext, next Next[S]) error

// Handle implements the Middleware interface.
func (f MiddlewareFunc[S]) Handle(ctx context.Context, state S, ec *EventContext, next Next[S]) error {
	return f(ctx, state, ec, next)
}

// Next is the continuation handed to each unit: a view over the units that
// follow it in the chain.
//
// A Next is single-use. Running it invokes the following unit exactly once;
// running the same Next again returns ErrNextReused and invokes nothing.
// Copies of a Next share the same guard. The zero Next is an empty chain.
type Next[S any] struct {
	rest []Middleware[S]
	used *atomic.Bool
}

func newNext[S any](chain []Middleware[S]) Next[S] {
	return Next[S]{rest: chain, used: new(atomic.Bool)}
}

// Run continues the chain with the given state and context. When no units
// remain, Run returns nil.
func (n Next[S]) Run(ctx context.Context, state S, ec *EventContext) error {
	if n.used != nil && !n.used.CompareAndSwap(false, true) {
		return ErrNextReused
	}
	if len(n.rest) == 0 {
		if ec != nil {
			ec.ended.Store(true)
		}
		return nil
	}
	return n.rest[0].Handle(ctx, state, ec, newNext(n.rest[1:]))
}

// Remaining reports how many units follow.
func (n Next[S]) Remaining() int {
	return len(n.rest)
}
