package relay

import (
	"errors"
	"strconv"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when the input is not valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// Inspector examines raw bytes and returns a View for field queries.
type Inspector interface {
	Inspect(raw []byte) (View, error)
}

// View provides path-based field access over a raw gateway frame or event
// payload. Paths use gjson syntax ("author.id", "emoji.name").
type View interface {
	// HasField returns true if the path exists.
	HasField(path string) bool

	// GetString returns the string value at path, or false if not found
	// or not a string.
	GetString(path string) (string, bool)

	// GetBytes returns the raw JSON at path, or false if not found.
	GetBytes(path string) ([]byte, bool)

	// GetSnowflake returns the identifier at path. Identifiers arrive as
	// JSON strings; plain numbers are accepted too.
	GetSnowflake(path string) (Snowflake, bool)
}

// JSONInspector returns an Inspector backed by gjson. The frame is parsed
// once; each query walks the parsed tree.
func JSONInspector() Inspector {
	return gjsonInspector{}
}

type gjsonInspector struct{}

func (gjsonInspector) Inspect(raw []byte) (View, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidJSON
	}
	return gjsonView{root: gjson.ParseBytes(raw)}, nil
}

type gjsonView struct {
	root gjson.Result
}

func (v gjsonView) HasField(path string) bool {
	return v.root.Get(path).Exists()
}

func (v gjsonView) GetString(path string) (string, bool) {
	r := v.root.Get(path)
	if r.Type != gjson.String {
		return "", false
	}
	return r.Str, true
}

func (v gjsonView) GetBytes(path string) ([]byte, bool) {
	r := v.root.Get(path)
	if !r.Exists() {
		return nil, false
	}
	return []byte(r.Raw), true
}

func (v gjsonView) GetSnowflake(path string) (Snowflake, bool) {
	return snowflake(v.root.Get(path))
}

// snowflake reads an identifier from r. The gateway sends identifiers as
// decimal strings; plain numbers are accepted too.
func snowflake(r gjson.Result) (Snowflake, bool) {
	switch r.Type {
	case gjson.String:
		n, err := strconv.ParseUint(r.Str, 10, 64)
		if err != nil {
			return 0, false
		}
		return Snowflake(n), true
	case gjson.Number:
		return Snowflake(r.Uint()), true
	default:
		return 0, false
	}
}
