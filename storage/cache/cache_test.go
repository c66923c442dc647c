package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func newTestManager(opts Options) (*Manager, *time.Time) {
	m := NewManager(opts)
	now := time.Now()
	m.now = func() time.Time { return now }
	return m, &now
}

func TestGetOrCompute(t *testing.T) {
	m, _ := newTestManager(Options{TTL: time.Minute, MaxEntries: 10})
	key := Key{Adapter: "fs:/tmp", Op: "list", Path: "/tmp/a"}

	var calls int
	producer := func() (interface{}, error) {
		calls++
		return "value", nil
	}

	val, err := m.GetOrCompute(key, producer)
	assert.NoError(t, err)
	assert.Equal(t, "value", val)
	assert.Equal(t, 1, calls)

	// fresh hit does not recompute
	val, err = m.GetOrCompute(key, producer)
	assert.NoError(t, err)
	assert.Equal(t, "value", val)
	assert.Equal(t, 1, calls)
}

func TestGetOrCompute_ProducerError(t *testing.T) {
	m, _ := newTestManager(Options{TTL: time.Minute, MaxEntries: 10})
	key := Key{Adapter: "git:x", Op: "read", Path: "a"}

	boom := errors.New("boom")
	_, err := m.GetOrCompute(key, func() (interface{}, error) { return nil, boom })
	assert.Equal(t, boom, err)
	assert.Equal(t, 0, m.Len()) // errors are not cached

	// next call recomputes
	val, err := m.GetOrCompute(key, func() (interface{}, error) { return 1, nil })
	assert.NoError(t, err)
	assert.Equal(t, 1, val)
}

func TestExpiry(t *testing.T) {
	m, now := newTestManager(Options{TTL: time.Minute, MaxEntries: 10})
	key := Key{Adapter: "fs:/tmp", Op: "read", Path: "/tmp/f"}

	var calls int
	producer := func() (interface{}, error) {
		calls++
		return calls, nil
	}

	val, _ := m.GetOrCompute(key, producer)
	assert.Equal(t, 1, val)

	*now = now.Add(2 * time.Minute)
	val, _ = m.GetOrCompute(key, producer)
	assert.Equal(t, 2, val)
}

func TestFIFOEviction(t *testing.T) {
	m, _ := newTestManager(Options{TTL: time.Minute, MaxEntries: 2})

	produce := func(v interface{}) func() (interface{}, error) {
		return func() (interface{}, error) { return v, nil }
	}

	k1 := Key{Adapter: "a", Op: "read", Path: "1"}
	k2 := Key{Adapter: "a", Op: "read", Path: "2"}
	k3 := Key{Adapter: "a", Op: "read", Path: "3"}

	_, _ = m.GetOrCompute(k1, produce(1))
	_, _ = m.GetOrCompute(k2, produce(2))

	// re-reading k1 must not protect it: eviction is insertion-ordered
	_, _ = m.GetOrCompute(k1, produce("stale"))

	_, _ = m.GetOrCompute(k3, produce(3))
	assert.Equal(t, 2, m.Len())

	// k2 survived; k1 (oldest-inserted) was evicted
	v, _ := m.GetOrCompute(k2, produce("should not run"))
	assert.Equal(t, 2, v)
	v, _ = m.GetOrCompute(k1, produce("recomputed"))
	assert.Equal(t, "recomputed", v)
}

func TestInvalidate(t *testing.T) {
	m, _ := newTestManager(Options{TTL: time.Minute, MaxEntries: 10})

	keys := []Key{
		{Adapter: "fs:/srv", Op: "list", Path: "/srv/a"},
		{Adapter: "fs:/srv", Op: "read", Path: "/srv/a/file.txt"},
		{Adapter: "fs:/srv", Op: "list", Path: "/srv/b"},
	}
	for i, k := range keys {
		i := i
		_, _ = m.GetOrCompute(k, func() (interface{}, error) { return i, nil })
	}

	m.Invalidate("/srv/a")
	assert.Equal(t, 1, m.Len())

	// /srv/b untouched
	v, _ := m.GetOrCompute(keys[2], func() (interface{}, error) { return "recomputed", nil })
	assert.Equal(t, 2, v)
}

func TestDisabled(t *testing.T) {
	m, _ := newTestManager(Options{TTL: 0})
	key := Key{Adapter: "a", Op: "read", Path: "x"}

	var calls int
	for i := 0; i < 3; i++ {
		_, _ = m.GetOrCompute(key, func() (interface{}, error) { calls++; return nil, nil })
	}
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, m.Len())
}

func TestConcurrentAccess(t *testing.T) {
	m := NewManager(Options{TTL: time.Minute, MaxEntries: 8})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := Key{Adapter: "a", Op: "read", Path: string(rune('a' + n%4))}
			for j := 0; j < 100; j++ {
				_, _ = m.GetOrCompute(key, func() (interface{}, error) { return n, nil })
				if j%10 == 0 {
					m.Invalidate(key.Path)
				}
			}
		}(i)
	}
	wg.Wait()
}
