package relay

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
	"github.com/tidwall/gjson"
)

// Expr is a compiled CEL condition over an event, used with Filter.When.
//
// The expression sees these variables:
//
//	kind        string  dispatch name, e.g. "MESSAGE_REACTION_ADD"
//	guild_id    uint    0 when absent
//	channel_id  uint
//	message_id  uint
//	user_id     uint    author or reacting user
//	content     string  message content ("" for other events)
//	emoji       string  reaction emoji name ("" for other events)
//	data        dyn     the decoded raw payload ({} when absent)
//
// Example:
//
//	expr, err := relay.CompileExpr(`emoji in ["👍", "👎"] && user_id != 42u`)
type Expr struct {
	src string
	prg cel.Program
}

// CompileExpr compiles src. The expression must evaluate to a bool.
func CompileExpr(src string) (*Expr, error) {
	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("guild_id", cel.UintType),
		cel.Variable("channel_id", cel.UintType),
		cel.Variable("message_id", cel.UintType),
		cel.Variable("user_id", cel.UintType),
		cel.Variable("content", cel.StringType),
		cel.Variable("emoji", cel.StringType),
		cel.Variable("data", cel.DynType),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("cel compile: expression must be bool, got %s", out)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}
	return &Expr{src: src, prg: prg}, nil
}

// MustCompileExpr is CompileExpr that panics on error, for expressions
// known at init time.
func MustCompileExpr(src string) *Expr {
	e, err := CompileExpr(src)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the expression source.
func (e *Expr) String() string { return e.src }

// Match evaluates the expression against ev. Evaluation errors and non-bool
// results count as no match.
func (e *Expr) Match(ev Event) bool {
	out, _, err := e.prg.Eval(activation(ev))
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

func activation(ev Event) map[string]any {
	scope := ev.Scope()
	vars := map[string]any{
		"kind":       string(ev.Kind()),
		"guild_id":   uint64(scope.GuildID),
		"channel_id": uint64(scope.ChannelID),
		"message_id": uint64(scope.MessageID),
		"user_id":    uint64(scope.UserID),
		"content":    "",
		"emoji":      "",
	}

	switch e := ev.(type) {
	case *MessageCreate:
		vars["content"] = e.Content
	case *ReactionAdd:
		vars["emoji"] = e.Emoji.Name
	case *ReactionRemove:
		vars["emoji"] = e.Emoji.Name
	}

	data := map[string]any{}
	if raw := ev.Payload(); raw != nil {
		if m, ok := gjson.ParseBytes(raw).Value().(map[string]any); ok {
			data = m
		}
	}
	vars["data"] = data

	return vars
}
