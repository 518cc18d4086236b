package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultDeliveryCapacity = 100
	defaultActionBuffer     = 64
	defaultSweepInterval    = 30 * time.Second
)

// ErrRegistryRunning is returned by Run when the registry already has an
// owner loop.
var ErrRegistryRunning = errors.New("relay: registry already running")

// DeliveryResult is the outcome of offering an event to one interceptor.
type DeliveryResult int

const (
	// Delivered means the event was queued on the delivery channel.
	Delivered DeliveryResult = iota
	// DroppedFull means the delivery channel was full and the event was
	// dropped for that interceptor.
	DroppedFull
	// Closed means the requester was gone; the interceptor is removed.
	Closed
)

func (r DeliveryResult) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case DroppedFull:
		return "dropped_full"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// InterceptorState is the lifecycle state of an interceptor.
type InterceptorState int

const (
	// Active interceptors accept matching events.
	Active InterceptorState = iota
	// Exhausted interceptors have delivered their limit.
	Exhausted
	// Retired interceptors have a closed delivery channel and are no
	// longer in the live list.
	Retired
)

// Interceptor is a registered, filter-scoped, count-bounded subscription.
// It is created by ActionSender.Await and owned by the Registry.
type Interceptor struct {
	filter    Filter
	events    chan Event
	done      <-chan struct{}
	delivered int
	state     InterceptorState
}

// Filter returns the interceptor's filter.
func (i *Interceptor) Filter() Filter { return i.filter }

// offer makes one non-blocking delivery attempt.
func (i *Interceptor) offer(ev Event) DeliveryResult {
	if i.requesterGone() {
		return Closed
	}
	select {
	case i.events <- ev:
		i.delivered++
		if i.delivered >= i.filter.Max() {
			i.state = Exhausted
		}
		return Delivered
	default:
		return DroppedFull
	}
}

func (i *Interceptor) requesterGone() bool {
	select {
	case <-i.done:
		return true
	default:
		return false
	}
}

func (i *Interceptor) retire() {
	if i.state == Retired {
		return
	}
	i.state = Retired
	close(i.events)
}

// ActionKind identifies a control-channel command.
type ActionKind int

const (
	// ActionAdd registers Action.Interceptor.
	ActionAdd ActionKind = iota + 1
)

// Action is a command for the registry's owner loop.
type Action struct {
	Kind        ActionKind
	Interceptor *Interceptor
}

// ActionSender is the sending side of the registry's control channel. It is
// cheap to copy and may be shared freely, e.g. in the stack's state.
type ActionSender struct {
	ch       chan<- Action
	capacity int
}

// Send offers a to the registry without blocking. It reports whether the
// action was queued; a full channel drops it.
func (s ActionSender) Send(a Action) bool {
	select {
	case s.ch <- a:
		return true
	default:
		return false
	}
}

// Await registers an interceptor for f and returns the requester's end.
//
// Registration is best effort: if the control channel is full the request
// is dropped and the subscription never receives an event, so always wait
// with a deadline.
//
// Example:
//
//	sub := s.Interceptors.Await(relay.NewFilter(relay.ReactionAdded).OnMessage(msg.ID))
//	defer sub.Close()
//	ev, err := sub.Next(ctx)
func (s ActionSender) Await(f Filter) *Subscription {
	capacity := s.capacity
	if capacity < 1 {
		capacity = defaultDeliveryCapacity
	}
	events := make(chan Event, capacity)
	sub, done := newSubscription(events)

	s.Send(Action{
		Kind: ActionAdd,
		Interceptor: &Interceptor{
			filter: f,
			events: events,
			done:   done,
		},
	})
	return sub
}

// OnDeliveryFunc is called for every offer of an event to a matching
// interceptor. It runs with the registry locked and must not block or call
// back into the registry.
type OnDeliveryFunc func(ev Event, res DeliveryResult)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDeliveryCapacity sets the buffer size of each delivery channel.
// Default: 100.
func WithDeliveryCapacity(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithActionBuffer sets the control channel buffer size. Default: 64.
func WithActionBuffer(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.actionBuffer = n
		}
	}
}

// WithSweepInterval sets how often Run removes interceptors whose requester
// is gone, for when matching events are rare. Default: 30s.
func WithSweepInterval(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.sweepEvery = d
		}
	}
}

// WithRegistryLogger sets the registry's logger. Default: slog.Default().
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithOnDelivery adds a hook called for each delivery attempt.
// Multiple hooks are called in order.
func WithOnDelivery(fn OnDeliveryFunc) RegistryOption {
	return func(r *Registry) {
		r.onDelivery = append(r.onDelivery, fn)
	}
}

// Registry owns the live interceptor list.
//
// Requesters register through the bounded control channel returned by
// Sender; Run drains it. Events reach the registry through Observe, called
// by the Intercept unit or directly by whatever reads the event stream.
//
// Usage:
//  1. Create with NewRegistry
//  2. Start the owner loop: go registry.Run(ctx)
//  3. Feed events: stack.Push(relay.Intercept[State](registry))
//  4. Hand registry.Sender() to requesters
type Registry struct {
	capacity     int
	actionBuffer int
	sweepEvery   time.Duration
	logger       *slog.Logger
	onDelivery   []OnDeliveryFunc

	actions chan Action
	running atomic.Bool

	mu      sync.Mutex
	live    []*Interceptor
	stopped bool
}

// NewRegistry creates a Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		capacity:     defaultDeliveryCapacity,
		actionBuffer: defaultActionBuffer,
		sweepEvery:   defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.actions = make(chan Action, r.actionBuffer)
	return r
}

// Sender returns the control channel handle used to register interceptors.
func (r *Registry) Sender() ActionSender {
	return ActionSender{ch: r.actions, capacity: r.capacity}
}

// Await is shorthand for r.Sender().Await(f).
func (r *Registry) Await(f Filter) *Subscription {
	return r.Sender().Await(f)
}

// Len returns the number of live interceptors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Run is the owner loop. It applies queued actions and periodically sweeps
// interceptors whose requester has gone away. When ctx is done it closes
// every live delivery channel and returns ctx.Err().
func (r *Registry) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRegistryRunning
	}

	ticker := time.NewTicker(r.sweepEvery)
	defer ticker.Stop()

	r.logger.Info("interceptor registry started")
	for {
		select {
		case <-ctx.Done():
			n := r.shutdown()
			r.logger.Info("interceptor registry stopped", slog.Int("retired", n))
			return ctx.Err()
		case a := <-r.actions:
			r.apply(a)
		case <-ticker.C:
			if n := r.sweep(); n > 0 {
				r.logger.Debug("swept interceptors", slog.Int("removed", n))
			}
		}
	}
}

// Observe offers ev to every live interceptor whose filter matches. Offers
// never block: a full delivery channel drops the event for that
// interceptor. Interceptors that are exhausted or whose requester is gone
// are retired during the pass, matching or not.
func (r *Registry) Observe(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.live[:0]
	for _, ic := range r.live {
		if ic.state == Active && ic.filter.Matches(ev) {
			res := ic.offer(ev)
			for _, fn := range r.onDelivery {
				fn(ev, res)
			}
			if res == Closed {
				ic.retire()
			}
		} else if ic.requesterGone() {
			ic.retire()
		}
		if ic.state == Exhausted {
			ic.retire()
		}
		if ic.state == Retired {
			continue
		}
		kept = append(kept, ic)
	}
	clear(r.live[len(kept):])
	r.live = kept
}

func (r *Registry) apply(a Action) {
	switch a.Kind {
	case ActionAdd:
		if a.Interceptor == nil {
			return
		}
		r.add(a.Interceptor)
	default:
		r.logger.Warn("unknown registry action", slog.Int("kind", int(a.Kind)))
	}
}

func (r *Registry) add(ic *Interceptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		ic.retire()
		return
	}
	r.live = append(r.live, ic)
	r.logger.Debug("interceptor added",
		slog.String("class", ic.filter.Class().String()),
		slog.Int("max", ic.filter.Max()),
	)
}

// sweep retires interceptors whose requester closed its subscription.
func (r *Registry) sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.live[:0]
	removed := 0
	for _, ic := range r.live {
		if ic.requesterGone() {
			ic.retire()
			removed++
			continue
		}
		kept = append(kept, ic)
	}
	clear(r.live[len(kept):])
	r.live = kept
	return removed
}

func (r *Registry) shutdown() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.live)
	for _, ic := range r.live {
		ic.retire()
	}
	r.live = nil
	r.stopped = true
	return n
}

// Intercept returns a unit that feeds every event to r and then continues
// the chain. Place it where interceptors should see events; units before
// it can hide events from them.
func Intercept[S any](r *Registry) Middleware[S] {
	return MiddlewareFunc[S](func(ctx context.Context, state S, ec *EventContext, next Next[S]) error {
		r.Observe(ec.Event)
		return next.Run(ctx, state, ec)
	})
}
