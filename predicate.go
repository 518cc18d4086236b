package relay

// Predicate tests the raw payload of an event. Predicates narrow an
// interceptor Filter beyond its class and scope, on fields the typed event
// model does not expose.
//
//	relay.NewFilter(relay.ReactionAdded).Where(
//	    relay.FieldEquals("emoji.name", "👍"),
//	    relay.Not(relay.HasFields("member.user.bot")),
//	)
type Predicate interface {
	Match(v View) bool
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(v View) bool

// Match implements Predicate.
func (f PredicateFunc) Match(v View) bool { return f(v) }

// HasFields returns a Predicate that matches when all paths exist.
func HasFields(paths ...string) Predicate {
	return hasFields{paths: paths}
}

type hasFields struct {
	paths []string
}

func (p hasFields) Match(v View) bool {
	for _, path := range p.paths {
		if !v.HasField(path) {
			return false
		}
	}
	return true
}

// FieldEquals returns a Predicate that matches when the path holds a string
// equal to value.
func FieldEquals(path, value string) Predicate {
	return fieldEquals{path: path, value: value}
}

type fieldEquals struct {
	path  string
	value string
}

func (p fieldEquals) Match(v View) bool {
	s, ok := v.GetString(p.path)
	return ok && s == p.value
}

// SnowflakeEquals returns a Predicate that matches when the path holds the
// identifier id, in string or number form.
func SnowflakeEquals(path string, id Snowflake) Predicate {
	return snowflakeEquals{path: path, id: id}
}

type snowflakeEquals struct {
	path string
	id   Snowflake
}

func (p snowflakeEquals) Match(v View) bool {
	got, ok := v.GetSnowflake(p.path)
	return ok && got == p.id
}

// And returns a Predicate that matches when all predicates match.
func And(ps ...Predicate) Predicate {
	return and{ps: ps}
}

type and struct {
	ps []Predicate
}

func (p and) Match(v View) bool {
	for _, pred := range p.ps {
		if !pred.Match(v) {
			return false
		}
	}
	return true
}

// Or returns a Predicate that matches when any predicate matches.
func Or(ps ...Predicate) Predicate {
	return or{ps: ps}
}

type or struct {
	ps []Predicate
}

func (p or) Match(v View) bool {
	for _, pred := range p.ps {
		if pred.Match(v) {
			return true
		}
	}
	return false
}

// Not returns a Predicate that inverts p.
func Not(p Predicate) Predicate {
	return not{p: p}
}

type not struct {
	p Predicate
}

func (p not) Match(v View) bool {
	return !p.p.Match(v)
}
