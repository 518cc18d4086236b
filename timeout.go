package relay

import (
	"context"
	"time"
)

// Timeout returns a unit that continues the chain with a context that
// expires after d. Units after it that do I/O should honor ctx.Done.
//
// The stack itself never cancels a run; this is the per-unit way to bound
// one. A run still in progress when the deadline passes is not interrupted,
// only its context is cancelled.
func Timeout[S any](d time.Duration) Middleware[S] {
	return MiddlewareFunc[S](func(ctx context.Context, state S, ec *EventContext, next Next[S]) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next.Run(ctx, state, ec)
	})
}
