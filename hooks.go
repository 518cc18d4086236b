package relay

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// OnStartFunc is called when a chain run starts, before the first unit.
type OnStartFunc func(ctx context.Context, ec *EventContext)

// OnCompleteFunc is called after a run ends without error, either because
// every unit continued or because one declined to. Use ec.ReachedEnd to
// tell the two apart.
type OnCompleteFunc func(ctx context.Context, ec *EventContext, duration time.Duration)

// OnAbortFunc is called after a run is aborted by an error returned from a
// unit or by a recovered panic (*PanicError).
type OnAbortFunc func(ctx context.Context, ec *EventContext, err error, duration time.Duration)

// hooks holds all configured hook functions.
type hooks struct {
	onStart    []OnStartFunc
	onComplete []OnCompleteFunc
	onAbort    []OnAbortFunc
}

// options holds Stack configuration.
type options struct {
	hooks
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
}

// Option configures a Stack.
type Option func(*options)

// WithLogger sets the logger used to report aborted runs.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTracerProvider sets the provider for the per-run "relay.run" span.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithOnStart adds a hook called when a run starts.
// Multiple hooks are called in order.
//
// Example:
//
//	relay.WithOnStart(func(ctx context.Context, ec *relay.EventContext) {
//	    metrics.Incr("relay.events", "kind:"+string(ec.Event.Kind()))
//	})
func WithOnStart(fn OnStartFunc) Option {
	return func(o *options) {
		o.onStart = append(o.onStart, fn)
	}
}

// WithOnComplete adds a hook called after a run ends without error.
// Multiple hooks are called in order.
//
// Example:
//
//	relay.WithOnComplete(func(ctx context.Context, ec *relay.EventContext, d time.Duration) {
//	    metrics.Timing("relay.run", d)
//	})
func WithOnComplete(fn OnCompleteFunc) Option {
	return func(o *options) {
		o.onComplete = append(o.onComplete, fn)
	}
}

// WithOnAbort adds a hook called after a run is aborted.
// Multiple hooks are called in order.
//
// Example:
//
//	relay.WithOnAbort(func(ctx context.Context, ec *relay.EventContext, err error, d time.Duration) {
//	    alerts.Notify(ec.RunID, err)
//	})
func WithOnAbort(fn OnAbortFunc) Option {
	return func(o *options) {
		o.onAbort = append(o.onAbort, fn)
	}
}

// callOnStart and its siblings guard each hook on its own: a panicking hook
// is logged and the remaining hooks still run. The run's outcome is
// unaffected.
func (o *options) callOnStart(ctx context.Context, ec *EventContext) {
	for _, fn := range o.onStart {
		o.guard(ctx, ec, "on_start", func() { fn(ctx, ec) })
	}
}

func (o *options) callOnComplete(ctx context.Context, ec *EventContext, d time.Duration) {
	for _, fn := range o.onComplete {
		o.guard(ctx, ec, "on_complete", func() { fn(ctx, ec, d) })
	}
}

func (o *options) callOnAbort(ctx context.Context, ec *EventContext, err error, d time.Duration) {
	for _, fn := range o.onAbort {
		o.guard(ctx, ec, "on_abort", func() { fn(ctx, ec, err, d) })
	}
}

func (o *options) guard(ctx context.Context, ec *EventContext, hook string, call func()) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "run hook panicked",
				slog.String("run_id", ec.RunID),
				slog.String("hook", hook),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	call()
}
