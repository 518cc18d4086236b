package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/bjaus/relay"

// ErrStackFrozen is the panic value raised by Push once the stack has
// started dispatching.
var ErrStackFrozen = errors.New("relay: middleware pushed after dispatch started")

// PanicError is the error a run is aborted with when a unit panics.
type PanicError struct {
	// Value is the value passed to panic.
	Value any
	// Stack is the goroutine stack at the point of recovery.
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("relay: panic in middleware: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Stack owns the process-wide state and the ordered middleware list, and
// runs the chain once per event.
//
// Usage:
//  1. Create a stack with New
//  2. Add units with Push or Use
//  3. Feed events with Handle
//
// Stack is safe for concurrent use after configuration. Push panics with
// ErrStackFrozen once Handle or Dispatch has been called; do not call Push
// concurrently with either.
type Stack[S any] struct {
	state  S
	chain  []Middleware[S]
	frozen atomic.Bool

	opts   options
	tracer trace.Tracer

	inflight sync.WaitGroup
}

// New creates an empty Stack owning state.
//
// Example:
//
//	stack := relay.New(State{API: api},
//	    relay.WithLogger(logger),
//	).
//	    Push(relay.CacheBridge[State](cache)).
//	    Push(relay.IgnoreSelf[State]()).
//	    Push(relay.Command("!ping", ping))
func New[S any](state S, opts ...Option) *Stack[S] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	return &Stack[S]{
		state:  state,
		opts:   o,
		tracer: o.tracerProvider.Tracer(tracerName),
	}
}

// Push appends a unit to the end of the chain and returns the stack.
func (s *Stack[S]) Push(m Middleware[S]) *Stack[S] {
	if s.frozen.Load() {
		panic(ErrStackFrozen)
	}
	s.chain = append(s.chain, m)
	return s
}

// Use appends a function unit to the end of the chain.
func (s *Stack[S]) Use(fn MiddlewareFunc[S]) *Stack[S] {
	return s.Push(fn)
}

// Len returns the number of units in the chain.
func (s *Stack[S]) Len() int {
	return len(s.chain)
}

// State returns the shared state.
func (s *Stack[S]) State() S {
	return s.state
}

// Handle schedules one chain run for ev and returns immediately.
//
// The run keeps the values of ctx (trace context, loggers) but not its
// cancellation: once scheduled, a run is never cancelled from outside.
// Runs for different events are independent and may finish in any order.
//
// Example:
//
//	for ev := range events {
//	    stack.Handle(ctx, ev)
//	}
func (s *Stack[S]) Handle(ctx context.Context, ev Event) {
	s.frozen.Store(true)
	ctx = context.WithoutCancel(ctx)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		_ = s.run(ctx, ev)
	}()
}

// Dispatch runs the chain for ev on the calling goroutine and returns the
// error the run was aborted with, if any. Hooks, logging and tracing behave
// exactly as for Handle.
func (s *Stack[S]) Dispatch(ctx context.Context, ev Event) error {
	s.frozen.Store(true)
	return s.run(ctx, ev)
}

// Wait blocks until every run scheduled by Handle has finished.
func (s *Stack[S]) Wait() {
	s.inflight.Wait()
}

func (s *Stack[S]) run(ctx context.Context, ev Event) error {
	ec := NewEventContext(ev)

	ctx, span := s.tracer.Start(ctx, "relay.run",
		trace.WithAttributes(
			attribute.String("relay.event.kind", string(ev.Kind())),
			attribute.String("relay.run.id", ec.RunID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	s.opts.callOnStart(ctx, ec)

	start := time.Now()
	err := s.invoke(ctx, ec)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		attrs := []any{
			slog.String("run_id", ec.RunID),
			slog.String("kind", string(ev.Kind())),
			slog.String("error", err.Error()),
		}
		var perr *PanicError
		if errors.As(err, &perr) {
			attrs = append(attrs, slog.String("stack", string(perr.Stack)))
		}
		s.opts.logger.ErrorContext(ctx, "chain run aborted", attrs...)

		s.opts.callOnAbort(ctx, ec, err, duration)
		return err
	}

	span.SetAttributes(attribute.Bool("relay.run.reached_end", ec.ReachedEnd()))
	s.opts.callOnComplete(ctx, ec, duration)
	return nil
}

// invoke drives the chain, converting a panic in any unit into a
// *PanicError so it aborts only this run.
func (s *Stack[S]) invoke(ctx context.Context, ec *EventContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return newNext(s.chain).Run(ctx, s.state, ec)
}
