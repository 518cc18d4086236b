package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bjaus/relay"
)

// API is the subset of the REST client the handlers use.
type API interface {
	CreateMessage(ctx context.Context, channelID relay.Snowflake, content string) (*relay.Message, error)
}

// State is shared by every run of the bot's stack.
type State struct {
	API         API
	Registry    *relay.Registry
	PollTimeout time.Duration
	Logger      *slog.Logger
}

// ping answers "!ping" with "Pong!".
func ping(ctx context.Context, _ string, s *State, ec *relay.EventContext, _ relay.Next[*State]) error {
	msg := ec.Event.(*relay.MessageCreate)
	if _, err := s.API.CreateMessage(ctx, msg.ChannelID, "Pong!"); err != nil {
		return fmt.Errorf("reply to ping: %w", err)
	}
	return nil
}

// poll posts the question after "!poll" and reports the first reaction it
// gets, or that nobody reacted before the poll timeout.
func poll(ctx context.Context, args string, s *State, ec *relay.EventContext, _ relay.Next[*State]) error {
	msg := ec.Event.(*relay.MessageCreate)

	question := strings.TrimSpace(args)
	if question == "" {
		_, err := s.API.CreateMessage(ctx, msg.ChannelID, "Usage: !poll <question>")
		return err
	}

	created, err := s.API.CreateMessage(ctx, msg.ChannelID, "📊 "+question)
	if err != nil {
		return fmt.Errorf("post poll: %w", err)
	}

	filter := relay.NewFilter(relay.ReactionAdded).
		InChannel(msg.ChannelID).
		OnMessage(created.ID).
		Limit(1)
	if cache := ec.Cache(); cache != nil {
		if me, err := cache.CurrentUser(ctx); err == nil && me != nil {
			notMe, err := relay.CompileExpr(fmt.Sprintf("user_id != %du", uint64(me.ID)))
			if err != nil {
				return fmt.Errorf("poll filter: %w", err)
			}
			filter = filter.When(notMe)
		}
	}

	sub := s.Registry.Await(filter)
	defer sub.Close()

	waitCtx, cancel := context.WithTimeout(ctx, s.PollTimeout)
	defer cancel()

	ev, err := sub.Next(waitCtx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		_, err = s.API.CreateMessage(ctx, msg.ChannelID, "Nobody answered: "+question)
		return err
	case err != nil:
		return fmt.Errorf("await poll reaction: %w", err)
	}

	reaction := ev.(*relay.ReactionAdd)
	s.Logger.InfoContext(ctx, "poll answered",
		slog.String("message_id", created.ID.String()),
		slog.String("user_id", reaction.UserID.String()),
		slog.String("emoji", reaction.Emoji.Name),
	)
	_, err = s.API.CreateMessage(ctx, msg.ChannelID,
		fmt.Sprintf("<@%s> answered first with %s", reaction.UserID, reaction.Emoji.Name))
	return err
}

// typingStart is the payload of TYPING_START, which relay does not model.
type typingStart struct {
	ChannelID relay.Snowflake `json:"channel_id,string"`
	UserID    relay.Snowflake `json:"user_id,string"`
}

func (t typingStart) Validate() error {
	if t.ChannelID == 0 || t.UserID == 0 {
		return errors.New("channel_id and user_id are required")
	}
	return nil
}

func typing(ctx context.Context, s *State, _ *relay.EventContext, p typingStart) error {
	s.Logger.DebugContext(ctx, "user typing",
		slog.String("channel_id", p.ChannelID.String()),
		slog.String("user_id", p.UserID.String()),
	)
	return nil
}

// newRouter routes the dispatch kinds the bot reads as raw payloads.
// Malformed payloads are logged and skipped.
func newRouter(logger *slog.Logger) *relay.Router[*State] {
	skip := func(ctx context.Context, kind relay.Kind, err error) error {
		logger.WarnContext(ctx, "skipping malformed payload",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return nil
	}
	router := relay.NewRouter[*State](
		relay.WithOnUnmarshalError(skip),
		relay.WithOnValidationError(skip),
	)
	relay.Register(router, "TYPING_START", typing)
	return router
}

// stackConfig carries the tuning knobs of buildStack.
type stackConfig struct {
	RunTimeout time.Duration
	PerSecond  float64
	Burst      int
}

// buildStack assembles the bot's chain. Units before Intercept can hide
// events from interceptors, so only the cache bridge precedes it.
func buildStack(state *State, cache relay.Cache, cfg stackConfig, pre []relay.Middleware[*State], opts ...relay.Option) *relay.Stack[*State] {
	stack := relay.New(state, opts...).
		Push(relay.CacheBridge[*State](cache)).
		Push(relay.Intercept[*State](state.Registry))
	for _, m := range pre {
		stack.Push(m)
	}
	return stack.
		Push(relay.IgnoreSelf[*State]()).
		Push(newRouter(state.Logger)).
		Push(relay.RateLimit[*State](cfg.PerSecond, cfg.Burst)).
		Push(relay.Timeout[*State](cfg.RunTimeout)).
		Push(relay.Command("!ping", ping)).
		Push(relay.Command("!poll", poll))
}
