// Package expiring provides a concurrent key-value map whose entries expire
// after a fixed time-to-live.
package expiring

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	expires time.Time
	timer   *time.Timer
}

// Map stores values for a fixed TTL. Expired entries are evicted by a
// scheduled timer, and Get re-checks the deadline so a late timer never
// yields a stale value. Map is safe for concurrent use.
type Map[K comparable, V any] struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	items  map[K]*entry[V]
	closed bool
}

// New creates a Map whose entries live for ttl.
func New[K comparable, V any](ttl time.Duration) *Map[K, V] {
	return &Map[K, V]{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[K]*entry[V]),
	}
}

// TTL returns the configured time-to-live.
func (m *Map[K, V]) TTL() time.Duration {
	return m.ttl
}

// Put stores value under key and schedules its eviction. A previous entry
// for key is replaced along with its timer. Put after Shutdown is a no-op.
func (m *Map[K, V]) Put(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if old, ok := m.items[key]; ok {
		old.timer.Stop()
	}
	e := &entry[V]{value: value, expires: m.now().Add(m.ttl)}
	e.timer = time.AfterFunc(m.ttl, func() { m.evict(key, e) })
	m.items[key] = e
}

func (m *Map[K, V]) evict(key K, e *entry[V]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// The key may have been re-put since this timer was armed.
	if cur, ok := m.items[key]; ok && cur == e {
		delete(m.items, key)
	}
}

// Get returns the value for key if it has not expired.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero V
	e, ok := m.items[key]
	if !ok {
		return zero, false
	}
	if m.now().After(e.expires) {
		e.timer.Stop()
		delete(m.items, key)
		return zero, false
	}
	return e.value, true
}

// Remove deletes key.
func (m *Map[K, V]) Remove(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.items[key]; ok {
		e.timer.Stop()
		delete(m.items, key)
	}
}

// Len returns the number of stored entries, including ones whose eviction
// is still pending.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Clear removes every entry.
func (m *Map[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

// Shutdown cancels every scheduled eviction and empties the map. The map
// accepts no further entries.
func (m *Map[K, V]) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.clearLocked()
}

func (m *Map[K, V]) clearLocked() {
	for k, e := range m.items {
		e.timer.Stop()
		delete(m.items, k)
	}
}
