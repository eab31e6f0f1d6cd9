/*
Copyright 2025 Hare Krishna Rai

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cache provides bounded, thread-safe keyed stores that collapse
// concurrent misses for the same key into a single load.
package cache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Key is a comparable cache key with a stable string form used to group
// concurrent loads.
type Key interface {
	comparable
	fmt.Stringer
}

// Pair is a two-part cache key, e.g. (owner, repo) or (base, head)
type Pair struct {
	First  string
	Second string
}

// String returns a string representation of the cache key
func (p Pair) String() string {
	return fmt.Sprintf("%d:%s/%s", len(p.First), p.First, p.Second)
}

// Cache is a bounded store with at-most-one concurrent load per key.
// Successful loads are stored and never mutated; failed loads are shared with
// callers waiting on the same in-flight load but are not stored.
type Cache[K Key, V any] struct {
	entries *lru.Cache[K, V]
	group   singleflight.Group

	hitCount  atomic.Int64
	missCount atomic.Int64
	loadCount atomic.Int64
}

// New creates a cache that holds at most capacity entries
func New[K Key, V any](capacity int) *Cache[K, V] {
	entries, err := lru.New[K, V](capacity)
	if err != nil {
		// lru.New only fails for a non-positive size
		panic(fmt.Sprintf("cache: invalid capacity %d", capacity))
	}
	return &Cache[K, V]{entries: entries}
}

// Get retrieves a cached value by key
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.entries.Get(key)
	if ok {
		c.hitCount.Add(1)
	} else {
		c.missCount.Add(1)
	}
	return v, ok
}

// GetOrLoad returns the cached value for key, calling load on a miss.
// Concurrent callers missing on the same key wait for one load and share
// its result.
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		// A load for this key may have completed between our miss and
		// joining the group.
		if v, ok := c.entries.Get(key); ok {
			return v, nil
		}

		c.loadCount.Add(1)
		v, err := load()
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	val, _ := v.(V)
	return val, nil
}

// Len returns the number of stored entries
func (c *Cache[K, V]) Len() int {
	return c.entries.Len()
}

// Stats returns cache statistics
func (c *Cache[K, V]) Stats() Stats {
	hits := c.hitCount.Load()
	misses := c.missCount.Load()

	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return Stats{
		Entries:   c.Len(),
		HitCount:  hits,
		MissCount: misses,
		LoadCount: c.loadCount.Load(),
		HitRate:   hitRate,
	}
}

// Stats provides cache performance statistics
type Stats struct {
	Entries   int     `json:"entries"`
	HitCount  int64   `json:"hit_count"`
	MissCount int64   `json:"miss_count"`
	LoadCount int64   `json:"load_count"`
	HitRate   float64 `json:"hit_rate_percent"`
}
