// Package memcache is an in-memory relay.Cache.
//
// It tracks the current identity from READY, every user it has seen, and a
// bounded window of recent messages. Nothing is persisted.
package memcache

import (
	"context"
	"sync"

	"github.com/bjaus/relay"
)

const defaultMaxMessages = 1000

// Option configures a Cache.
type Option func(*Cache)

// WithMaxMessages bounds how many recent messages are kept. The oldest
// message is evicted first. Default: 1000.
func WithMaxMessages(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxMessages = n
		}
	}
}

// Cache is an in-memory relay.Cache. It is safe for concurrent use.
type Cache struct {
	maxMessages int

	mu       sync.RWMutex
	me       *relay.User
	users    map[relay.Snowflake]relay.User
	messages map[relay.Snowflake]entry
	order    []slot
	seq      uint64
}

// entry is a cached message tagged with the insertion that created it.
// A slot in order evicts the message only while the seq still matches, so
// a slot left behind by a delete cannot evict a later re-insert.
type entry struct {
	msg relay.Message
	seq uint64
}

type slot struct {
	id  relay.Snowflake
	seq uint64
}

var _ relay.Cache = (*Cache)(nil)

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		maxMessages: defaultMaxMessages,
		users:       make(map[relay.Snowflake]relay.User),
		messages:    make(map[relay.Snowflake]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Update applies ev. Event kinds the cache does not track are ignored.
func (c *Cache) Update(_ context.Context, ev relay.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := ev.(type) {
	case *relay.Ready:
		me := e.User
		c.me = &me
		c.users[me.ID] = me
	case *relay.MessageCreate:
		if e.Author.ID != 0 {
			c.users[e.Author.ID] = e.Author
		}
		c.putMessage(e.Message)
	case *relay.MessageDelete:
		delete(c.messages, e.ID)
	}
	return nil
}

// CurrentUser returns the identity from the last READY, or nil before one
// has been seen.
func (c *Cache) CurrentUser(context.Context) (*relay.User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.me == nil {
		return nil, nil
	}
	me := *c.me
	return &me, nil
}

// User returns a user seen in READY or as a message author.
func (c *Cache) User(id relay.Snowflake) (relay.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[id]
	return u, ok
}

// Message returns a recent message that has not been deleted.
func (c *Cache) Message(id relay.Snowflake) (relay.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.messages[id]
	return e.msg, ok
}

// Messages reports how many messages are cached.
func (c *Cache) Messages() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

func (c *Cache) putMessage(m relay.Message) {
	if e, ok := c.messages[m.ID]; ok {
		e.msg = m
		c.messages[m.ID] = e
		return
	}
	c.seq++
	c.messages[m.ID] = entry{msg: m, seq: c.seq}
	c.order = append(c.order, slot{id: m.ID, seq: c.seq})

	for len(c.messages) > c.maxMessages && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if c.live(oldest) {
			delete(c.messages, oldest.id)
		}
	}
	// Deleted messages leave stale slots in order; compact once it doubles.
	if len(c.order) > 2*c.maxMessages {
		kept := make([]slot, 0, len(c.messages))
		for _, sl := range c.order {
			if c.live(sl) {
				kept = append(kept, sl)
			}
		}
		c.order = kept
	}
}

func (c *Cache) live(sl slot) bool {
	e, ok := c.messages[sl.id]
	return ok && e.seq == sl.seq
}
