package relay

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestStack_Dispatch(t *testing.T) {
	t.Run("runs units in push order", func(t *testing.T) {
		tr := &trail{}
		s := New(testState{}).
			Push(step(tr, "a")).
			Push(step(tr, "b")).
			Push(step(tr, "c"))

		err := s.Dispatch(context.Background(), message(7, "hi"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, tr.get())
	})

	t.Run("short-circuit stops later units", func(t *testing.T) {
		tr := &trail{}
		s := New(testState{}).
			Push(step(tr, "a")).
			Push(stop(tr, "b")).
			Push(step(tr, "c"))

		err := s.Dispatch(context.Background(), message(7, "hi"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, tr.get())
	})

	t.Run("empty stack completes", func(t *testing.T) {
		var reached bool
		s := New(testState{}, WithOnComplete(func(_ context.Context, ec *EventContext, _ time.Duration) {
			reached = ec.ReachedEnd()
		}))

		require.NoError(t, s.Dispatch(context.Background(), message(7, "hi")))
		assert.True(t, reached)
	})

	t.Run("passes state to every unit", func(t *testing.T) {
		var got []string
		s := New(testState{name: "shared"}).
			Use(func(ctx context.Context, st testState, ec *EventContext, next Next[testState]) error {
				got = append(got, st.name)
				return next.Run(ctx, st, ec)
			}).
			Use(func(ctx context.Context, st testState, ec *EventContext, next Next[testState]) error {
				got = append(got, st.name)
				return nil
			})

		require.NoError(t, s.Dispatch(context.Background(), message(7, "hi")))
		assert.Equal(t, []string{"shared", "shared"}, got)
		assert.Equal(t, "shared", s.State().name)
		assert.Equal(t, 2, s.Len())
	})

	t.Run("returns unit error and skips later units", func(t *testing.T) {
		tr := &trail{}
		wantErr := errors.New("boom")
		s := New(testState{}, WithLogger(quietLogger())).
			Push(step(tr, "a")).
			Use(func(context.Context, testState, *EventContext, Next[testState]) error {
				return wantErr
			}).
			Push(step(tr, "c"))

		err := s.Dispatch(context.Background(), message(7, "hi"))
		assert.ErrorIs(t, err, wantErr)
		assert.Equal(t, []string{"a"}, tr.get())
	})

	t.Run("units see the same event context", func(t *testing.T) {
		key := NewKey[int]("n")
		var seen int
		s := New(testState{}).
			Use(func(ctx context.Context, st testState, ec *EventContext, next Next[testState]) error {
				Put(ec, key, 41)
				return next.Run(ctx, st, ec)
			}).
			Use(func(ctx context.Context, st testState, ec *EventContext, next Next[testState]) error {
				seen, _ = Lookup(ec, key)
				return next.Run(ctx, st, ec)
			})

		require.NoError(t, s.Dispatch(context.Background(), message(7, "hi")))
		assert.Equal(t, 41, seen)
	})
}

func TestStack_NextReuse(t *testing.T) {
	tr := &trail{}
	var second error
	s := New(testState{}).
		Use(func(ctx context.Context, st testState, ec *EventContext, next Next[testState]) error {
			if err := next.Run(ctx, st, ec); err != nil {
				return err
			}
			second = next.Run(ctx, st, ec)
			return nil
		}).
		Push(step(tr, "b"))

	require.NoError(t, s.Dispatch(context.Background(), message(7, "hi")))
	assert.ErrorIs(t, second, ErrNextReused)
	assert.Equal(t, []string{"b"}, tr.get(), "following unit must run exactly once")
}

func TestNext(t *testing.T) {
	t.Run("copies share the guard", func(t *testing.T) {
		next := newNext[testState](nil)
		copied := next

		require.NoError(t, next.Run(context.Background(), testState{}, NewEventContext(message(7, ""))))
		assert.ErrorIs(t, copied.Run(context.Background(), testState{}, nil), ErrNextReused)
	})

	t.Run("zero value is an empty chain", func(t *testing.T) {
		var next Next[testState]
		assert.NoError(t, next.Run(context.Background(), testState{}, nil))
		assert.Equal(t, 0, next.Remaining())
	})

	t.Run("remaining counts following units", func(t *testing.T) {
		tr := &trail{}
		next := newNext([]Middleware[testState]{step(tr, "a"), step(tr, "b")})
		assert.Equal(t, 2, next.Remaining())
	})

	t.Run("terminal marks reached end", func(t *testing.T) {
		ec := NewEventContext(message(7, ""))
		require.NoError(t, terminal().Run(context.Background(), testState{}, ec))
		assert.True(t, ec.ReachedEnd())
	})
}

func TestStack_PushAfterDispatchPanics(t *testing.T) {
	s := New(testState{})
	s.Handle(context.Background(), message(7, "hi"))
	s.Wait()

	assert.PanicsWithValue(t, ErrStackFrozen, func() {
		s.Push(step(&trail{}, "late"))
	})
}

func TestStack_Handle(t *testing.T) {
	t.Run("returns before the run finishes", func(t *testing.T) {
		release := make(chan struct{})
		done := make(chan struct{})
		s := New(testState{}).
			Use(func(context.Context, testState, *EventContext, Next[testState]) error {
				<-release
				close(done)
				return nil
			})

		s.Handle(context.Background(), message(7, "hi"))

		select {
		case <-done:
			t.Fatal("run finished before release")
		default:
		}
		close(release)
		s.Wait()
		<-done
	})

	t.Run("runs are isolated", func(t *testing.T) {
		key := NewKey[string]("author")

		var mu sync.Mutex
		leaked := 0
		s := New(testState{}).
			Use(func(ctx context.Context, st testState, ec *EventContext, next Next[testState]) error {
				if _, ok := Lookup(ec, key); ok {
					mu.Lock()
					leaked++
					mu.Unlock()
				}
				Put(ec, key, ec.RunID)
				return next.Run(ctx, st, ec)
			})

		for i := 0; i < 50; i++ {
			s.Handle(context.Background(), message(Snowflake(i+1), "hi"))
		}
		s.Wait()
		assert.Zero(t, leaked)
	})

	t.Run("later event can finish first", func(t *testing.T) {
		release := make(chan struct{})
		var mu sync.Mutex
		var order []string
		s := New(testState{}).
			Use(func(ctx context.Context, st testState, ec *EventContext, next Next[testState]) error {
				msg := ec.Event.(*MessageCreate)
				if msg.Content == "slow" {
					<-release
				}
				mu.Lock()
				order = append(order, msg.Content)
				mu.Unlock()
				return nil
			})

		s.Handle(context.Background(), message(7, "slow"))
		fast := make(chan struct{})
		s.Handle(context.Background(), message(7, "fast"))
		go func() {
			for {
				mu.Lock()
				n := len(order)
				mu.Unlock()
				if n == 1 {
					close(fast)
					return
				}
				time.Sleep(time.Millisecond)
			}
		}()
		<-fast
		close(release)
		s.Wait()

		assert.Equal(t, []string{"fast", "slow"}, order)
	})

	t.Run("cancelled caller context does not cancel the run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var runErr atomic.Value
		s := New(testState{}).
			Use(func(ctx context.Context, _ testState, _ *EventContext, _ Next[testState]) error {
				runErr.Store(ctx.Err() == nil)
				return nil
			})

		s.Handle(ctx, message(7, "hi"))
		s.Wait()
		assert.Equal(t, true, runErr.Load())
	})
}

func TestStack_PanicRecovery(t *testing.T) {
	var aborted error
	s := New(testState{},
		WithLogger(quietLogger()),
		WithOnAbort(func(_ context.Context, _ *EventContext, err error, _ time.Duration) {
			aborted = err
		}),
	).
		Use(func(context.Context, testState, *EventContext, Next[testState]) error {
			panic("unit exploded")
		})

	err := s.Dispatch(context.Background(), message(7, "hi"))

	var perr *PanicError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "unit exploded", perr.Value)
	assert.NotEmpty(t, perr.Stack)
	assert.Contains(t, perr.Error(), "unit exploded")
	assert.Nil(t, perr.Unwrap())
	assert.Same(t, err, aborted)

	t.Run("stack keeps serving after a panic", func(t *testing.T) {
		tr := &trail{}
		ok := New(testState{}).Push(step(tr, "a"))
		require.NoError(t, ok.Dispatch(context.Background(), message(7, "hi")))
		assert.Equal(t, []string{"a"}, tr.get())
	})

	t.Run("unwraps error values", func(t *testing.T) {
		cause := errors.New("cause")
		s := New(testState{}, WithLogger(quietLogger())).
			Use(func(context.Context, testState, *EventContext, Next[testState]) error {
				panic(cause)
			})
		assert.ErrorIs(t, s.Dispatch(context.Background(), message(7, "hi")), cause)
	})
}

func TestStack_LogsAbortedRuns(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	s := New(testState{}, WithLogger(logger)).
		Use(func(context.Context, testState, *EventContext, Next[testState]) error {
			return errors.New("bad payload")
		})

	_ = s.Dispatch(context.Background(), message(7, "hi"))

	out := buf.String()
	assert.Contains(t, out, `"msg":"chain run aborted"`)
	assert.Contains(t, out, `"error":"bad payload"`)
	assert.Contains(t, out, `"kind":"MESSAGE_CREATE"`)
	assert.Contains(t, out, `"run_id":`)
}

func TestStack_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	t.Run("completed run", func(t *testing.T) {
		s := New(testState{}, WithTracerProvider(tp)).Push(step(&trail{}, "a"))
		require.NoError(t, s.Dispatch(context.Background(), message(7, "hi")))

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		span := spans[0]
		assert.Equal(t, "relay.run", span.Name())
		assert.Contains(t, span.Attributes(), attribute.String("relay.event.kind", "MESSAGE_CREATE"))
		assert.Contains(t, span.Attributes(), attribute.Bool("relay.run.reached_end", true))
		assert.NotEqual(t, codes.Error, span.Status().Code)
	})

	t.Run("aborted run", func(t *testing.T) {
		s := New(testState{}, WithTracerProvider(tp), WithLogger(quietLogger())).
			Use(func(context.Context, testState, *EventContext, Next[testState]) error {
				return errors.New("nope")
			})
		require.Error(t, s.Dispatch(context.Background(), message(7, "hi")))

		spans := recorder.Ended()
		require.Len(t, spans, 2)
		span := spans[1]
		assert.Equal(t, codes.Error, span.Status().Code)
		assert.Equal(t, "nope", span.Status().Description)
	})
}
