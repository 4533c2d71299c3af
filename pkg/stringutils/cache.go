// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package stringutils

import (
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
)

const defaultCacheTTL = 5 * time.Minute

// TransformFunc is a function that transforms K to V.
type TransformFunc[K, V any] func(K) V

// Cached memoizes a pure transform so hot paths (file events, library scans)
// do not repeat expensive unicode work for names they have already seen.
type Cached[K comparable, V any] struct {
	cache     *ttlcache.Cache[K, V]
	transform TransformFunc[K, V]
}

// NewCached returns a memoizing wrapper around transform with the given TTL.
func NewCached[K comparable, V any](ttl time.Duration, transform TransformFunc[K, V]) *Cached[K, V] {
	return &Cached[K, V]{
		cache:     ttlcache.New(ttlcache.Options[K, V]{}.SetDefaultTTL(ttl)),
		transform: transform,
	}
}

// Get returns the transformed value, computing it on a cache miss.
func (c *Cached[K, V]) Get(key K) V {
	if cached, ok := c.cache.Get(key); ok {
		return cached
	}

	v := c.transform(key)
	c.cache.Set(key, v, ttlcache.DefaultTTL)
	return v
}

// Forget drops a cached entry.
func (c *Cached[K, V]) Forget(key K) {
	c.cache.Delete(key)
}
