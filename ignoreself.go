package relay

import (
	"context"
	"fmt"
)

// IgnoreSelf returns a unit that drops messages authored by the current
// identity. It reads the cache published by CacheBridge, so CacheBridge
// must come earlier in the chain; otherwise the run aborts with ErrNoCache.
//
// While the identity is unknown (no READY cached yet) nothing is dropped.
func IgnoreSelf[S any]() Middleware[S] {
	return &ignoreSelf[S]{}
}

// IgnoreSelfUsing is IgnoreSelf with the cache injected up front instead of
// read from the EventContext, for chains where CacheBridge may not run
// first.
func IgnoreSelfUsing[S any](cache Cache) Middleware[S] {
	return &ignoreSelf[S]{cache: cache}
}

type ignoreSelf[S any] struct {
	cache Cache
}

func (u *ignoreSelf[S]) Handle(ctx context.Context, state S, ec *EventContext, next Next[S]) error {
	cache := u.cache
	if cache == nil {
		cache = ec.Cache()
	}
	if cache == nil {
		return ErrNoCache
	}

	msg, ok := ec.Event.(*MessageCreate)
	if !ok {
		return next.Run(ctx, state, ec)
	}

	me, err := cache.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("current user: %w", err)
	}
	if me != nil && msg.Author.ID == me.ID {
		return nil
	}
	return next.Run(ctx, state, ec)
}
