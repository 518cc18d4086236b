package relay

// EventClass selects which kinds of event a Filter accepts.
type EventClass int

const (
	// ReactionAdded matches *ReactionAdd.
	ReactionAdded EventClass = iota
	// ReactionRemoved matches *ReactionRemove.
	ReactionRemoved
	// MessageCreated matches *MessageCreate.
	MessageCreated
	// MessageDeleted matches *MessageDelete.
	MessageDeleted
	// AnyEvent matches every event.
	AnyEvent
)

func (c EventClass) String() string {
	switch c {
	case ReactionAdded:
		return "reaction_added"
	case ReactionRemoved:
		return "reaction_removed"
	case MessageCreated:
		return "message_created"
	case MessageDeleted:
		return "message_deleted"
	case AnyEvent:
		return "any"
	default:
		return "unknown"
	}
}

func (c EventClass) matches(ev Event) bool {
	switch c {
	case ReactionAdded:
		_, ok := ev.(*ReactionAdd)
		return ok
	case ReactionRemoved:
		_, ok := ev.(*ReactionRemove)
		return ok
	case MessageCreated:
		_, ok := ev.(*MessageCreate)
		return ok
	case MessageDeleted:
		_, ok := ev.(*MessageDelete)
		return ok
	case AnyEvent:
		return true
	default:
		return false
	}
}

// Filter describes which future events an interceptor accepts and how many.
//
// A Filter is built from an event class and narrowed with scoping fields.
// Unset scoping fields are wildcards; set fields must equal the event's
// field, and an event that does not carry the field does not match.
//
//	f := relay.NewFilter(relay.ReactionAdded).
//	    InChannel(msg.ChannelID).
//	    OnMessage(msg.ID).
//	    Limit(3)
//
// Filters are values; each builder method returns a modified copy.
type Filter struct {
	class   EventClass
	guild   optionalID
	channel optionalID
	message optionalID
	user    optionalID
	max     int
	preds   []Predicate
	expr    *Expr
}

type optionalID struct {
	id  Snowflake
	set bool
}

func (o optionalID) matches(got Snowflake) bool {
	return !o.set || (got != 0 && got == o.id)
}

// NewFilter returns a Filter for class that accepts one event.
func NewFilter(class EventClass) Filter {
	return Filter{class: class, max: 1}
}

// InGuild restricts the filter to events in guild id.
func (f Filter) InGuild(id Snowflake) Filter {
	f.guild = optionalID{id: id, set: true}
	return f
}

// InChannel restricts the filter to events in channel id.
func (f Filter) InChannel(id Snowflake) Filter {
	f.channel = optionalID{id: id, set: true}
	return f
}

// OnMessage restricts the filter to events about message id.
func (f Filter) OnMessage(id Snowflake) Filter {
	f.message = optionalID{id: id, set: true}
	return f
}

// ByUser restricts the filter to events from user id.
func (f Filter) ByUser(id Snowflake) Filter {
	f.user = optionalID{id: id, set: true}
	return f
}

// Limit sets how many events the interceptor delivers before it is done.
// Values below one are treated as one.
func (f Filter) Limit(n int) Filter {
	if n < 1 {
		n = 1
	}
	f.max = n
	return f
}

// Where adds payload predicates; all must match. Events without a raw
// payload never satisfy a predicate.
func (f Filter) Where(ps ...Predicate) Filter {
	f.preds = append(append([]Predicate(nil), f.preds...), ps...)
	return f
}

// When adds a CEL condition that must evaluate to true.
func (f Filter) When(e *Expr) Filter {
	f.expr = e
	return f
}

// Class returns the event class.
func (f Filter) Class() EventClass { return f.class }

// Max returns the number of events the interceptor delivers.
func (f Filter) Max() int {
	if f.max < 1 {
		return 1
	}
	return f.max
}

// Matches reports whether ev satisfies the filter. The match count is not
// considered.
func (f Filter) Matches(ev Event) bool {
	if !f.class.matches(ev) {
		return false
	}

	scope := ev.Scope()
	if !f.guild.matches(scope.GuildID) ||
		!f.channel.matches(scope.ChannelID) ||
		!f.message.matches(scope.MessageID) ||
		!f.user.matches(scope.UserID) {
		return false
	}

	if len(f.preds) > 0 {
		raw := ev.Payload()
		if raw == nil {
			return false
		}
		view, err := JSONInspector().Inspect(raw)
		if err != nil {
			return false
		}
		if !And(f.preds...).Match(view) {
			return false
		}
	}

	if f.expr != nil && !f.expr.Match(ev) {
		return false
	}
	return true
}
