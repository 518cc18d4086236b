package relay

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoCache is returned by units that need a cache when none was published
// earlier in the run. Put CacheBridge before them in the chain.
var ErrNoCache = errors.New("relay: no cache published for this run")

// Cache is the entity cache the built-in units read from. Implementations
// update themselves from events and must be safe for concurrent use.
type Cache interface {
	// Update applies ev to the cache.
	Update(ctx context.Context, ev Event) error

	// CurrentUser returns the authenticated identity, or nil if it is not
	// known yet (no READY seen).
	CurrentUser(ctx context.Context) (*User, error)
}

// CacheBridge returns a unit that feeds every event into cache before the
// rest of the chain runs, then publishes cache on the EventContext.
//
// A failed update aborts the run with the wrapped error rather than letting
// later units read an inconsistent cache.
func CacheBridge[S any](cache Cache) Middleware[S] {
	return &cacheBridge[S]{cache: cache}
}

type cacheBridge[S any] struct {
	cache Cache
}

func (b *cacheBridge[S]) Handle(ctx context.Context, state S, ec *EventContext, next Next[S]) error {
	if err := b.cache.Update(ctx, ec.Event); err != nil {
		return fmt.Errorf("cache update: %w", err)
	}
	ec.SetCache(b.cache)
	return next.Run(ctx, state, ec)
}
