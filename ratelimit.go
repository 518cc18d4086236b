package relay

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit returns a unit that limits how often each author's messages
// reach the rest of the chain, using a token bucket per author.
//
// Messages over the limit are dropped. Other events always continue.
// A perSecond of zero or less disables limiting; a burst below one becomes
// max(1, perSecond).
func RateLimit[S any](perSecond float64, burst int) Middleware[S] {
	if burst <= 0 {
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &rateLimit[S]{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[Snowflake]*rate.Limiter),
		minPrune: minPruneAt,
		pruneAt:  minPruneAt,
	}
}

// minPruneAt is the limiter count at which idle limiters are first pruned.
const minPruneAt = 1024

type rateLimit[S any] struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[Snowflake]*rate.Limiter
	minPrune int
	pruneAt  int
}

func (r *rateLimit[S]) Handle(ctx context.Context, state S, ec *EventContext, next Next[S]) error {
	msg, ok := ec.Event.(*MessageCreate)
	if !ok || r.limit <= 0 {
		return next.Run(ctx, state, ec)
	}
	if !r.limiter(msg.Author.ID).Allow() {
		return nil
	}
	return next.Run(ctx, state, ec)
}

func (r *rateLimit[S]) limiter(author Snowflake) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	lim, ok := r.limiters[author]
	if !ok {
		if len(r.limiters) >= r.pruneAt {
			r.prune()
		}
		lim = rate.NewLimiter(r.limit, r.burst)
		r.limiters[author] = lim
	}
	return lim
}

// prune drops limiters whose bucket has refilled. A full bucket behaves
// exactly like a new one, so dropping it loses nothing. The next prune
// waits until the map doubles past what survived.
func (r *rateLimit[S]) prune() {
	now := time.Now()
	for id, lim := range r.limiters {
		if lim.TokensAt(now) >= float64(r.burst) {
			delete(r.limiters, id)
		}
	}
	r.pruneAt = max(r.minPrune, 2*len(r.limiters))
}
