// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package telemetry

import (
	"fmt"
	"sync"
	"time"
)

type CacheStats struct {
	Name    string `json:"name"`
	Size    int    `json:"size"`
	MaxSize int    `json:"max_size"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	HitRate string `json:"hit_rate"`
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a bounded in-memory cache. When full, the entry closest to
// expiry is evicted. Call Close to stop the background sweep.
type TTLCache[V any] struct {
	mu      sync.Mutex
	name    string
	items   map[string]cacheEntry[V]
	maxSize int
	ttl     time.Duration
	hits    int64
	misses  int64
	stop    chan struct{}
	once    sync.Once
}

func NewTTLCache[V any](name string, maxSize int, ttl time.Duration) *TTLCache[V] {
	c := &TTLCache[V]{
		name:    name,
		items:   make(map[string]cacheEntry[V]),
		maxSize: maxSize,
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go c.sweep(10 * time.Minute)
	return c
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if ok && time.Now().After(entry.expiresAt) {
		delete(c.items, key)
		ok = false
	}
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return entry.value, true
}

func (c *TTLCache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value with its own lifetime. A non-positive ttl uses
// the cache default.
func (c *TTLCache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		c.evictSoonest()
	}
	c.items[key] = cacheEntry[V]{value: value, expiresAt: time.Now().Add(ttl)}
}

func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *TTLCache[V]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := "0%"
	if total := c.hits + c.misses; total > 0 && c.hits > 0 {
		hitRate = fmt.Sprintf("%.1f%%", float64(c.hits)/float64(total)*100)
	}
	return CacheStats{
		Name:    c.name,
		Size:    len(c.items),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: hitRate,
	}
}

func (c *TTLCache[V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *TTLCache[V]) evictSoonest() {
	var victim string
	var soonest time.Time
	first := true
	for key, entry := range c.items {
		if first || entry.expiresAt.Before(soonest) {
			victim, soonest, first = key, entry.expiresAt, false
		}
	}
	if !first {
		delete(c.items, victim)
	}
}

func (c *TTLCache[V]) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.items {
				if now.After(entry.expiresAt) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
