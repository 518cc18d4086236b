package relay

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// EventContext wraps one event for the duration of a single chain run and
// carries scratch state shared by every middleware unit of that run.
//
// Each run gets its own EventContext; scratch state never leaks between
// events. The scratch store is guarded by a read/write lock so a unit that
// fans out work of its own may read and write it concurrently.
type EventContext struct {
	// Event is the event being dispatched.
	Event Event

	// RunID uniquely identifies this chain run in logs and traces.
	RunID string

	mu     sync.RWMutex
	cache  Cache
	values map[any]any

	ended atomic.Bool
}

// NewEventContext creates the context for one chain run of ev.
func NewEventContext(ev Event) *EventContext {
	return &EventContext{
		Event: ev,
		RunID: uuid.NewString(),
	}
}

// ReachedEnd reports whether the run continued past the last unit, as
// opposed to a unit declining to continue.
func (c *EventContext) ReachedEnd() bool {
	return c.ended.Load()
}

// Cache returns the cache published by CacheBridge, or nil if no unit has
// published one during this run.
func (c *EventContext) Cache() Cache {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache
}

// SetCache publishes a cache handle for units later in the chain.
func (c *EventContext) SetCache(cache Cache) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = cache
}

// Key is a typed handle into the scratch store. Keys compare by identity,
// so two keys created with the same name are distinct.
//
// Declare keys once at package level:
//
//	var authorKey = relay.NewKey[relay.User]("author")
type Key[T any] struct {
	name string
}

// NewKey creates a scratch store key for values of type T.
func NewKey[T any](name string) *Key[T] {
	return &Key[T]{name: name}
}

// String returns the key's name.
func (k *Key[T]) String() string { return k.name }

// Put stores v under key for the rest of the run.
func Put[T any](c *EventContext, key *Key[T], v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[any]any)
	}
	c.values[key] = v
}

// Lookup returns the value stored under key, and whether one was stored.
func Lookup[T any](c *EventContext, key *Key[T]) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	if !ok {
		var zero T
		return zero, false
	}
	// A nil stored under an interface-typed key is still a stored value.
	t, _ := v.(T)
	return t, true
}

// Delete removes the value stored under key.
func Delete[T any](c *EventContext, key *Key[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}
