package relay

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventContext(t *testing.T) {
	t.Run("carries event and a unique run id", func(t *testing.T) {
		ev := message(7, "hi")
		a := NewEventContext(ev)
		b := NewEventContext(ev)

		assert.Same(t, ev, a.Event)
		assert.NotEmpty(t, a.RunID)
		assert.NotEqual(t, a.RunID, b.RunID)
		assert.False(t, a.ReachedEnd())
	})

	t.Run("cache slot starts empty", func(t *testing.T) {
		ec := NewEventContext(message(7, "hi"))
		assert.Nil(t, ec.Cache())

		c := &fakeCache{}
		ec.SetCache(c)
		assert.Same(t, c, ec.Cache())
	})
}

func TestKey(t *testing.T) {
	ec := NewEventContext(message(7, "hi"))
	count := NewKey[int]("count")
	other := NewKey[int]("count")

	t.Run("missing value returns zero", func(t *testing.T) {
		v, ok := Lookup(ec, count)
		assert.False(t, ok)
		assert.Zero(t, v)
	})

	t.Run("put then lookup", func(t *testing.T) {
		Put(ec, count, 3)
		v, ok := Lookup(ec, count)
		assert.True(t, ok)
		assert.Equal(t, 3, v)
	})

	t.Run("keys with the same name are distinct", func(t *testing.T) {
		_, ok := Lookup(ec, other)
		assert.False(t, ok)
		assert.Equal(t, "count", other.String())
	})

	t.Run("delete", func(t *testing.T) {
		Delete(ec, count)
		_, ok := Lookup(ec, count)
		assert.False(t, ok)
	})

	t.Run("nil under an interface-typed key", func(t *testing.T) {
		lastErr := NewKey[error]("last error")
		Put(ec, lastErr, nil)

		var (
			v  error
			ok bool
		)
		assert.NotPanics(t, func() { v, ok = Lookup(ec, lastErr) })
		assert.True(t, ok)
		assert.Nil(t, v)
	})
}

func TestKey_ConcurrentAccess(t *testing.T) {
	ec := NewEventContext(message(7, "hi"))
	key := NewKey[int]("n")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			Put(ec, key, i)
		}(i)
		go func() {
			defer wg.Done()
			_, _ = Lookup(ec, key)
		}()
	}
	wg.Wait()

	_, ok := Lookup(ec, key)
	assert.True(t, ok)
}
