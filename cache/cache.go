// Package cache provides TTL caches with an injectable clock and pluggable
// storage (in-process map or Redis).
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dwdwow/morpho-go/metrics"
)

// Clock returns the current time
type Clock func() time.Time

// Store keeps values for a bounded time. A miss is (zero, false, nil).
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, bool, error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
}

type entry[V any] struct {
	value    V
	storedAt time.Time
	ttl      time.Duration
}

// Memory is a process-local Store. Keys are never evicted, stale entries are
// overwritten on the next Set.
type Memory[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]
	now   Clock
}

// NewMemory creates an in-process store; a nil clock uses time.Now
func NewMemory[V any](now Clock) *Memory[V] {
	if now == nil {
		now = time.Now
	}
	return &Memory[V]{items: make(map[string]entry[V]), now: now}
}

func (m *Memory[V]) Get(_ context.Context, key string) (V, bool, error) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()

	var zero V
	if !ok || m.now().Sub(e.storedAt) >= e.ttl {
		return zero, false, nil
	}
	return e.value, true, nil
}

func (m *Memory[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	m.mu.Lock()
	m.items[key] = entry[V]{value: value, storedAt: m.now(), ttl: ttl}
	m.mu.Unlock()
	return nil
}

// Len returns the number of keys held, stale ones included
func (m *Memory[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// TTL is a named read-through cache over a Store
type TTL[V any] struct {
	name    string
	store   Store[V]
	ttl     time.Duration
	metrics *metrics.Collectors
}

// NewTTL wraps store. name labels the cache in metrics.
func NewTTL[V any](name string, store Store[V], ttl time.Duration, m *metrics.Collectors) *TTL[V] {
	return &TTL[V]{name: name, store: store, ttl: ttl, metrics: m}
}

// GetOrLoad returns the fresh cached value for key, or calls load and stores
// its result. Concurrent misses may both call load; the last Set wins.
// A failing store read is treated as a miss.
func (c *TTL[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok, err := c.store.Get(ctx, key); err == nil && ok {
		c.metrics.ObserveCache(c.name, true)
		return v, nil
	}
	c.metrics.ObserveCache(c.name, false)

	v, err := load(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	_ = c.store.Set(ctx, key, v, c.ttl)
	return v, nil
}
