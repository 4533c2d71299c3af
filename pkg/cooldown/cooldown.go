// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package cooldown suppresses repeated triggers for the same key within a
// configurable window.
package cooldown

import (
	"sync"
	"sync/atomic"
	"time"
)

type lock struct {
	mu              sync.Mutex
	lastTriggeredAt time.Time
	seen            bool
}

// Guard tracks the last accepted trigger per key. Checks for one key are
// serialized by that key's lock; different keys never contend.
type Guard struct {
	locks sync.Map // string -> *lock

	accepted   atomic.Uint64
	suppressed atomic.Uint64
}

// New returns an empty Guard.
func New() *Guard {
	return &Guard{}
}

// ShouldProcess reports whether a trigger for key at now falls outside the
// window since the last accepted trigger. The timestamp is only advanced
// when it returns true.
func (g *Guard) ShouldProcess(key string, now time.Time, window time.Duration) bool {
	v, _ := g.locks.LoadOrStore(key, &lock{})
	l := v.(*lock)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen && now.Sub(l.lastTriggeredAt) < window {
		g.suppressed.Add(1)
		return false
	}

	l.lastTriggeredAt = now
	l.seen = true
	g.accepted.Add(1)
	return true
}

// Prune forgets keys whose last accepted trigger is older than window
// relative to now. Pruned keys behave as never seen.
func (g *Guard) Prune(now time.Time, window time.Duration) int {
	pruned := 0
	g.locks.Range(func(k, v any) bool {
		l := v.(*lock)
		l.mu.Lock()
		stale := l.seen && now.Sub(l.lastTriggeredAt) >= window
		l.mu.Unlock()
		if stale {
			g.locks.CompareAndDelete(k, v)
			pruned++
		}
		return true
	})
	return pruned
}

// Stats returns how many triggers were accepted and suppressed.
func (g *Guard) Stats() (accepted, suppressed uint64) {
	return g.accepted.Load(), g.suppressed.Load()
}
