// Package cache provides a process-wide, bounded, TTL'd cache for storage
// reads. It is constructed once and injected, never a package-level
// singleton, so tests can run against isolated instances.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

type Options struct {
	// TTL is the freshness window of an entry; 0 disables caching.
	TTL time.Duration
	// MaxEntries bounds memory; the oldest-inserted entry is evicted when
	// exceeded (FIFO, no recency tracking).
	MaxEntries int
}

// Key identifies a cached result. Path is kept as a discrete component so
// Invalidate can match on path prefixes.
type Key struct {
	Adapter string
	Op      string
	Path    string
}

type entry struct {
	key      Key
	value    interface{}
	storedAt time.Time
}

type Manager struct {
	mu      sync.RWMutex
	opts    Options
	entries map[Key]*list.Element
	order   *list.List // *entry values, oldest at the front

	now func() time.Time // mockable
}

func NewManager(opts Options) *Manager {
	return &Manager{
		opts:    opts,
		entries: make(map[Key]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// GetOrCompute returns the cached value for key if still fresh, otherwise
// calls producer, stores its result and returns it. Producer errors are
// returned as-is and nothing is stored.
func (m *Manager) GetOrCompute(key Key, producer func() (interface{}, error)) (interface{}, error) {
	if m.opts.TTL <= 0 {
		return producer()
	}
	if val, ok := m.get(key); ok {
		return val, nil
	}
	val, err := producer()
	if err != nil {
		return nil, err
	}
	m.put(key, val)
	return val, nil
}

func (m *Manager) get(key Key) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elem, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	ent := elem.Value.(*entry)
	if m.now().Sub(ent.storedAt) > m.opts.TTL {
		return nil, false
	}
	return ent.value, true
}

func (m *Manager) put(key Key, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		ent := elem.Value.(*entry)
		ent.value = value
		ent.storedAt = m.now()
		return
	}

	m.entries[key] = m.order.PushBack(&entry{key: key, value: value, storedAt: m.now()})

	if m.opts.MaxEntries > 0 {
		for m.order.Len() > m.opts.MaxEntries {
			oldest := m.order.Front()
			m.order.Remove(oldest)
			delete(m.entries, oldest.Value.(*entry).key)
		}
	}
}

// Invalidate drops every entry whose path starts with prefix, across all
// operations and adapters. Called after any write so reads stay consistent.
func (m *Manager) Invalidate(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for elem := m.order.Front(); elem != nil; {
		next := elem.Next()
		ent := elem.Value.(*entry)
		if strings.HasPrefix(ent.key.Path, prefix) {
			m.order.Remove(elem)
			delete(m.entries, ent.key)
		}
		elem = next
	}
}

// InvalidateAdapter drops every entry belonging to the given adapter key.
func (m *Manager) InvalidateAdapter(adapter string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for elem := m.order.Front(); elem != nil; {
		next := elem.Next()
		ent := elem.Value.(*entry)
		if ent.key.Adapter == adapter {
			m.order.Remove(elem)
			delete(m.entries, ent.key)
		}
		elem = next
	}
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.order.Len()
}
