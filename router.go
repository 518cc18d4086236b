package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// validatable is the interface for payload validation.
// Compatible with github.com/go-ozzo/ozzo-validation/v4.
type validatable interface {
	Validate() error
}

// invoker wraps a typed route so routes of different payload types can
// share a single map.
type invoker[S any] func(ctx context.Context, state S, ec *EventContext, payload []byte) error

// RouteFunc handles the decoded payload of one dispatch kind.
type RouteFunc[S, T any] func(ctx context.Context, state S, ec *EventContext, payload T) error

// OnDecodeErrorFunc is called when a routed payload fails to unmarshal or
// validate. Returning nil skips the event and continues the chain;
// returning an error aborts the run with it.
type OnDecodeErrorFunc func(ctx context.Context, kind Kind, err error) error

// RouterOption configures a Router.
type RouterOption func(*routerOptions)

type routerOptions struct {
	onUnmarshalError  []OnDecodeErrorFunc
	onValidationError []OnDecodeErrorFunc
}

// WithOnUnmarshalError adds a hook called when a payload cannot be
// unmarshaled into the route's type. The first hook error wins. With no
// hooks, the run aborts with the wrapped unmarshal error.
func WithOnUnmarshalError(fn OnDecodeErrorFunc) RouterOption {
	return func(o *routerOptions) {
		o.onUnmarshalError = append(o.onUnmarshalError, fn)
	}
}

// WithOnValidationError adds a hook called when a payload's Validate method
// fails. The first hook error wins. With no hooks, the run aborts with the
// wrapped validation error.
func WithOnValidationError(fn OnDecodeErrorFunc) RouterOption {
	return func(o *routerOptions) {
		o.onValidationError = append(o.onValidationError, fn)
	}
}

// Router is a unit that routes events by dispatch kind to handlers of a
// typed payload, for kinds the built-in event types do not model.
//
// Usage:
//  1. Create a router with NewRouter
//  2. Register routes with Register
//  3. Push it onto the stack
//
// After a route returns nil, or when no route matches, the chain continues.
// Do not call Register once the stack is dispatching.
//
// Example:
//
//	type TypingStart struct {
//	    ChannelID relay.Snowflake `json:"channel_id,string"`
//	    UserID    relay.Snowflake `json:"user_id,string"`
//	}
//
//	router := relay.NewRouter[State]()
//	relay.Register(router, "TYPING_START", func(ctx context.Context, s State, ec *relay.EventContext, p TypingStart) error {
//	    s.Presence.Touch(p.UserID)
//	    return nil
//	})
//	stack.Push(router)
type Router[S any] struct {
	routes map[Kind]invoker[S]
	opts   routerOptions
}

// NewRouter creates an empty Router.
func NewRouter[S any](opts ...RouterOption) *Router[S] {
	r := &Router[S]{routes: make(map[Kind]invoker[S])}
	for _, opt := range opts {
		opt(&r.opts)
	}
	return r
}

// Register adds a route for kind. The event's raw payload is unmarshaled
// into T and validated if T implements Validate() error.
//
// This is a package-level function (not a method) because methods cannot
// have type parameters independent of the receiver.
func Register[S, T any](r *Router[S], kind Kind, fn RouteFunc[S, T]) {
	r.routes[kind] = func(ctx context.Context, state S, ec *EventContext, payload []byte) error {
		var data T
		if err := json.Unmarshal(payload, &data); err != nil {
			return &unmarshalError{err: err}
		}

		if v, ok := any(data).(validatable); ok {
			if err := v.Validate(); err != nil {
				return &validationError{err: err}
			}
		} else if v, ok := any(&data).(validatable); ok {
			if err := v.Validate(); err != nil {
				return &validationError{err: err}
			}
		}

		return fn(ctx, state, ec, data)
	}
}

// Kinds reports how many kinds have a route.
func (r *Router[S]) Kinds() int {
	return len(r.routes)
}

// Handle implements the Middleware interface.
func (r *Router[S]) Handle(ctx context.Context, state S, ec *EventContext, next Next[S]) error {
	kind := ec.Event.Kind()
	route, found := r.routes[kind]
	if !found {
		return next.Run(ctx, state, ec)
	}

	payload := ec.Event.Payload()
	if payload == nil {
		return next.Run(ctx, state, ec)
	}

	err := route(ctx, state, ec, payload)

	var uerr *unmarshalError
	if errors.As(err, &uerr) {
		return r.handleDecodeError(ctx, state, ec, next, kind, r.opts.onUnmarshalError,
			fmt.Errorf("unmarshal %s payload: %w", kind, uerr.err))
	}
	var verr *validationError
	if errors.As(err, &verr) {
		return r.handleDecodeError(ctx, state, ec, next, kind, r.opts.onValidationError,
			fmt.Errorf("validate %s payload: %w", kind, verr.err))
	}
	if err != nil {
		return err
	}
	return next.Run(ctx, state, ec)
}

func (r *Router[S]) handleDecodeError(ctx context.Context, state S, ec *EventContext, next Next[S], kind Kind, hooks []OnDecodeErrorFunc, err error) error {
	if len(hooks) == 0 {
		return err
	}
	for _, fn := range hooks {
		if herr := fn(ctx, kind, err); herr != nil {
			return herr
		}
	}
	return next.Run(ctx, state, ec)
}

// unmarshalError wraps unmarshal errors so we can identify them.
type unmarshalError struct {
	err error
}

func (e *unmarshalError) Error() string { return e.err.Error() }
func (e *unmarshalError) Unwrap() error { return e.err }

// validationError wraps validation errors so we can identify them.
type validationError struct {
	err error
}

func (e *validationError) Error() string { return e.err.Error() }
func (e *validationError) Unwrap() error { return e.err }
