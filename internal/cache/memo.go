// Package cache provides request-keyed memoization of computed forecasts:
// an in-process LRU for fitted artifacts and a Redis-backed shared cache for
// serialized results.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Memo is a size-bounded, TTL-expiring memoization of per-request values.
// Put replaces any previous entry for the key, so at most one valid value
// exists per request key at a time; a new forecast supersedes the old one.
type Memo[V any] struct {
	mu     sync.Mutex
	lru    *lru.Cache[string, memoEntry[V]]
	ttl    time.Duration
	hits   uint64
	misses uint64
}

type memoEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewMemo creates a memo holding up to size entries for ttl each
// (ttl 0 disables expiry).
func NewMemo[V any](size int, ttl time.Duration) (*Memo[V], error) {
	inner, err := lru.New[string, memoEntry[V]](size)
	if err != nil {
		return nil, err
	}
	return &Memo[V]{lru: inner, ttl: ttl}, nil
}

// Get returns the live value for key, if any.
func (m *Memo[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lru.Get(key)
	if !ok || (m.ttl > 0 && time.Now().After(entry.expiresAt)) {
		m.misses++
		var zero V
		return zero, false
	}
	m.hits++
	return entry.value, true
}

// Put stores value for key, superseding any existing entry.
func (m *Memo[V]) Put(key string, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expires time.Time
	if m.ttl > 0 {
		expires = time.Now().Add(m.ttl)
	}
	m.lru.Add(key, memoEntry[V]{value: value, expiresAt: expires})
}

// Invalidate drops the entry for key.
func (m *Memo[V]) Invalidate(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Remove(key)
}

// Stats reports cumulative hit and miss counts.
func (m *Memo[V]) Stats() (hits, misses uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses
}
