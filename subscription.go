package relay

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// ErrSubscriptionClosed is returned by Subscription.Next once no further
// events will arrive: the filter's limit was reached, the subscription was
// closed, or the registry stopped.
var ErrSubscriptionClosed = errors.New("relay: subscription closed")

// Subscription is the requester's end of an interceptor.
//
// Read events with Next or range over C. Call Close when no longer
// interested; the registry then drops the interceptor on its next pass.
//
// A Subscription read only through Next that is dropped without Close is
// closed when it is garbage collected. Calling C hands the receiving end to
// the caller, who may keep just the channel, so from then on the
// interceptor lives until its limit is reached, Close is called, or the
// registry stops.
type Subscription struct {
	events  <-chan Event
	closer  *closer
	cleanup runtime.Cleanup
	pinned  sync.Once
}

// closer is held separately from Subscription so the cleanup attached to a
// Subscription does not keep it reachable.
type closer struct {
	once sync.Once
	done chan struct{}
}

func (c *closer) close() {
	c.once.Do(func() { close(c.done) })
}

func newSubscription(events <-chan Event) (*Subscription, <-chan struct{}) {
	c := &closer{done: make(chan struct{})}
	s := &Subscription{events: events, closer: c}
	s.cleanup = runtime.AddCleanup(s, func(c *closer) { c.close() }, c)
	return s, c.done
}

// C returns the delivery channel. It is closed by the registry when the
// interceptor is exhausted or removed. After C is called the Subscription
// is no longer closed by the garbage collector.
//
// Example:
//
//	for ev := range registry.Await(relay.NewFilter(relay.ReactionAdded).Limit(3)).C() {
//	    ...
//	}
func (s *Subscription) C() <-chan Event {
	s.pinned.Do(s.cleanup.Stop)
	return s.events
}

// Next waits for the next matching event.
//
// Example:
//
//	ctx, cancel := context.WithTimeout(ctx, time.Minute)
//	defer cancel()
//	ev, err := sub.Next(ctx)
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	select {
	case <-s.closer.done:
		return nil, ErrSubscriptionClosed
	default:
	}

	select {
	case ev, ok := <-s.events:
		if !ok {
			return nil, ErrSubscriptionClosed
		}
		return ev, nil
	case <-s.closer.done:
		return nil, ErrSubscriptionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close tells the registry the requester is gone. It is safe to call more
// than once.
func (s *Subscription) Close() {
	s.closer.close()
}
