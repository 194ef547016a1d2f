// Package shardmap provides a concurrent string-keyed map split across independently locked shards.
// Every operation holds at most one shard lock, so a slow scan of one shard never blocks
// requests for keys that hash elsewhere.
package shardmap

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultShards is the shard count used when New is given a non-positive value.
const DefaultShards = 64

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// Map is a sharded map from string keys to values of type V.
type Map[V any] struct {
	shards []*shard[V]
}

// New creates a map with n shards.
func New[V any](n int) *Map[V] {
	if n <= 0 {
		n = DefaultShards
	}
	m := &Map[V]{shards: make([]*shard[V], n)}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) shardFor(key string) *shard[V] {
	return m.shards[xxhash.Sum64String(key)%uint64(len(m.shards))]
}

// Get returns the value stored under key.
func (m *Map[V]) Get(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Set stores v under key, replacing any existing value.
func (m *Map[V]) Set(key string, v V) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = v
}

// SetIfAbsent stores v only when key is not present. It reports whether v was stored.
func (m *Map[V]) SetIfAbsent(key string, v V) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[key]; exists {
		return false
	}
	s.items[key] = v
	return true
}

// Delete removes key and reports whether it was present.
func (m *Map[V]) Delete(key string) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	delete(s.items, key)
	return ok
}

// Compute performs an atomic read-modify-write on key. fn receives the current value and
// whether it exists, and returns the next value and whether to keep it. keep=false removes
// the key (or leaves it absent). Compute returns what fn returned.
//
// fn runs under the shard lock and must not call back into the map.
func (m *Map[V]) Compute(key string, fn func(cur V, exists bool) (next V, keep bool)) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, exists := s.items[key]
	next, keep := fn(cur, exists)
	if keep {
		s.items[key] = next
	} else if exists {
		delete(s.items, key)
	}
	return next, keep
}

// DeleteIf removes every entry for which pred returns true and returns the removed values.
// Shards are visited one at a time.
func (m *Map[V]) DeleteIf(pred func(key string, v V) bool) []V {
	var removed []V
	for _, s := range m.shards {
		s.mu.Lock()
		for k, v := range s.items {
			if pred(k, v) {
				delete(s.items, k)
				removed = append(removed, v)
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of entries. The result is not a consistent snapshot under concurrent writes.
func (m *Map[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}
