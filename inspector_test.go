package relay

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type JSONInspectorSuite struct {
	suite.Suite
	inspector Inspector
}

func (s *JSONInspectorSuite) SetupTest() {
	s.inspector = JSONInspector()
}

func TestJSONInspectorSuite(t *testing.T) {
	suite.Run(t, new(JSONInspectorSuite))
}

func (s *JSONInspectorSuite) TestReturnsViewForValidJSON() {
	view, err := s.inspector.Inspect([]byte(`{"op": 0}`))

	s.Require().NoError(err)
	s.Assert().NotNil(view)
}

func (s *JSONInspectorSuite) TestReturnsErrorForInvalidJSON() {
	_, err := s.inspector.Inspect([]byte(`{not valid}`))

	s.Assert().ErrorIs(err, ErrInvalidJSON)
}

func (s *JSONInspectorSuite) TestReturnsErrorForEmptyInput() {
	_, err := s.inspector.Inspect([]byte{})

	s.Assert().ErrorIs(err, ErrInvalidJSON)
}

type JSONViewSuite struct {
	suite.Suite
	view View
}

func (s *JSONViewSuite) SetupTest() {
	raw := []byte(`{
		"id": "1100000000000000001",
		"channel_id": 42,
		"content": "!ping",
		"tts": false,
		"author": {
			"id": "7",
			"username": "ana"
		},
		"emoji": {"id": null, "name": "👍"},
		"bad_id": "not-a-number"
	}`)

	var err error
	s.view, err = JSONInspector().Inspect(raw)
	s.Require().NoError(err)
}

func TestJSONViewSuite(t *testing.T) {
	suite.Run(t, new(JSONViewSuite))
}

func (s *JSONViewSuite) TestHasField() {
	tests := map[string]struct {
		path   string
		exists bool
	}{
		"top level":      {"content", true},
		"nested":         {"author.username", true},
		"null value":     {"emoji.id", true},
		"missing":        {"missing", false},
		"missing nested": {"author.missing", false},
	}

	for name, tt := range tests {
		s.Run(name, func() {
			s.Assert().Equal(tt.exists, s.view.HasField(tt.path))
		})
	}
}

func (s *JSONViewSuite) TestGetString() {
	val, ok := s.view.GetString("author.username")
	s.Assert().True(ok)
	s.Assert().Equal("ana", val)

	_, ok = s.view.GetString("tts")
	s.Assert().False(ok, "booleans are not strings")

	_, ok = s.view.GetString("missing")
	s.Assert().False(ok)
}

func (s *JSONViewSuite) TestGetBytes() {
	val, ok := s.view.GetBytes("author")
	s.Require().True(ok)
	s.Assert().JSONEq(`{"id": "7", "username": "ana"}`, string(val))

	val, ok = s.view.GetBytes("content")
	s.Require().True(ok)
	s.Assert().Equal(`"!ping"`, string(val))

	_, ok = s.view.GetBytes("missing")
	s.Assert().False(ok)
}

func (s *JSONViewSuite) TestGetSnowflake() {
	tests := map[string]struct {
		path string
		want Snowflake
		ok   bool
	}{
		"string form":  {"id", 1100000000000000001, true},
		"number form":  {"channel_id", 42, true},
		"nested":       {"author.id", 7, true},
		"null":         {"emoji.id", 0, false},
		"not a number": {"bad_id", 0, false},
		"missing":      {"missing", 0, false},
	}

	for name, tt := range tests {
		s.Run(name, func() {
			got, ok := s.view.GetSnowflake(tt.path)
			s.Assert().Equal(tt.ok, ok)
			s.Assert().Equal(tt.want, got)
		})
	}
}
