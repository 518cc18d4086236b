// Package relay is an in-process middleware pipeline for a real-time gateway
// event stream.
//
// Every event read from the gateway runs through an ordered chain of
// middleware units. Each unit can inspect the event, enrich the per-event
// context, stop the chain, or continue it. Alongside the chain, an
// interceptor registry lets any part of the program wait for a future event
// that matches a filter without blocking dispatch.
//
// # Quick Start
//
// Define the state your units share and build a stack:
//
//	type State struct {
//	    API          *rest.Client
//	    Interceptors relay.ActionSender
//	}
//
//	stack := relay.New(State{API: api, Interceptors: registry.Sender()}).
//	    Push(relay.CacheBridge[State](cache)).
//	    Push(relay.Intercept[State](registry)).
//	    Push(relay.IgnoreSelf[State]()).
//	    Push(relay.Command("!ping", ping))
//
// Feed it events:
//
//	for ev := range events {
//	    stack.Handle(ctx, ev)
//	}
//
// # Chain Execution
//
// Handle returns immediately; each event gets its own goroutine and its own
// EventContext. Within one run, units execute strictly in list order. Across
// runs there is no ordering: two events may finish in any order.
//
// A unit continues the chain by running its Next:
//
//	func (u *audit) Handle(ctx context.Context, s State, ec *relay.EventContext, next relay.Next[State]) error {
//	    start := time.Now()
//	    err := next.Run(ctx, s, ec)
//	    u.log.Info("handled", "kind", ec.Event.Kind(), "took", time.Since(start))
//	    return err
//	}
//
// Not running next stops the chain for this event. Returning an error aborts
// the run: the error is logged, recorded on the run's span and passed to
// OnAbort hooks. A panic in a unit aborts only that run, as a *PanicError.
// A Next may be run once; a second call returns ErrNextReused.
//
// The middleware list is frozen by the first Handle. Push after that panics
// with ErrStackFrozen.
//
// # Event Context
//
// EventContext carries the event, a run ID, and scratch state visible to
// every unit of the run. The cache slot is filled by CacheBridge and read by
// IgnoreSelf. Other values use typed keys:
//
//	var quotaKey = relay.NewKey[int]("quota")
//
//	relay.Put(ec, quotaKey, 3)
//	n, ok := relay.Lookup(ec, quotaKey)
//
// # Built-in Units
//
//   - Command: routes messages starting with a literal prefix to a handler
//   - CacheBridge: updates the cache from every event, publishes it on the context
//   - IgnoreSelf: drops messages written by the current identity
//   - Intercept: feeds events to an interceptor Registry
//   - RateLimit: per-author token bucket on messages
//   - Timeout: deadline on the context of the remaining units
//
// # Interceptors
//
// An interceptor delivers up to N future events matching a Filter to a
// requester, outside the chain:
//
//	sub := s.Interceptors.Await(
//	    relay.NewFilter(relay.ReactionAdded).OnMessage(msg.ID).Limit(1),
//	)
//	defer sub.Close()
//
//	ctx, cancel := context.WithTimeout(ctx, time.Minute)
//	defer cancel()
//	ev, err := sub.Next(ctx)
//
// Registration travels over a bounded control channel to Registry.Run and is
// best effort. Delivery never blocks: when a subscriber's buffer is full the
// event is dropped for that subscriber. Filters can be narrowed with payload
// predicates (HasFields, FieldEquals, And, Or, Not) and CEL expressions
// (CompileExpr).
//
// # Hooks
//
// Hooks observe run lifecycle without coupling to a metrics system:
//
//	stack := relay.New(state,
//	    relay.WithOnComplete(func(ctx context.Context, ec *relay.EventContext, d time.Duration) {
//	        metrics.Timing("relay.run", d)
//	    }),
//	    relay.WithOnAbort(func(ctx context.Context, ec *relay.EventContext, err error, d time.Duration) {
//	        metrics.Incr("relay.abort")
//	    }),
//	)
//
// The observability package ships Prometheus-backed hooks for both the stack
// and the registry.
//
// # Thread Safety
//
// Stack is safe for concurrent use after configuration. Registry methods are
// safe for concurrent use. State shared through the stack is read by many
// runs at once and must synchronize any mutability of its own.
package relay
