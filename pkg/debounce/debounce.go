// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package debounce

import (
	"sync"
	"sync/atomic"
	"time"
)

// Debouncer provides debounced execution of functions.
// It ensures that functions are executed at most once per delay period,
// with automatic cleanup after execution.
type Debouncer struct {
	submissions chan func()
	timer       <-chan time.Time
	latest      func()
	mu          sync.RWMutex
	delay       time.Duration
	stopped     atomic.Bool
	done        chan struct{}
}

// New creates a new Debouncer with the specified delay.
func New(delay time.Duration) *Debouncer {
	d := &Debouncer{
		submissions: make(chan func(), 100),
		delay:       delay,
		done:        make(chan struct{}),
	}

	go d.run()

	return d
}

func (d *Debouncer) run() {
	defer close(d.done)

	fire := func() {
		d.mu.Lock()
		d.timer = nil
		fn := d.latest
		d.latest = nil
		d.mu.Unlock()
		if fn != nil {
			fn()
		}
	}

	for {
		select {
		case <-d.timer:
			fire()
		case fn, ok := <-d.submissions:
			if !ok {
				fire()
				return
			}
			d.mu.Lock()
			d.latest = fn
			// every submission restarts the quiet period
			d.timer = time.After(d.delay)
			d.mu.Unlock()
		}
	}
}

// Do schedules fn to run once no further call has arrived for the delay.
// Only the most recent fn runs.
func (d *Debouncer) Do(fn func()) {
	if d.stopped.Load() {
		fn()
		return
	}

	select {
	case d.submissions <- fn:
	default:
		if d.stopped.Load() {
			fn()
		}
	}
}

func (d *Debouncer) Queued() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.timer != nil
}

// Stop flushes the pending function, if any, and shuts down the goroutine.
func (d *Debouncer) Stop() {
	if !d.stopped.CompareAndSwap(false, true) {
		return
	}

	close(d.submissions)
	<-d.done
}

// Group keeps one Debouncer per key. Keys that go idle are released after
// their function has run.
type Group struct {
	delay time.Duration

	mu      sync.Mutex
	entries map[string]*groupEntry
	stopped bool
}

type groupEntry struct {
	d       *Debouncer
	pending int
}

// NewGroup creates a Group whose per-key debouncers use delay.
func NewGroup(delay time.Duration) *Group {
	return &Group{
		delay:   delay,
		entries: make(map[string]*groupEntry),
	}
}

// Do debounces fn under key. Calls for different keys do not affect
// each other.
func (g *Group) Do(key string, fn func()) {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		fn()
		return
	}

	e, ok := g.entries[key]
	if !ok {
		e = &groupEntry{d: New(g.delay)}
		g.entries[key] = e
	}
	e.pending++
	seq := e.pending
	g.mu.Unlock()

	e.d.Do(func() {
		fn()
		g.release(key, e, seq)
	})
}

func (g *Group) release(key string, e *groupEntry, seq int) {
	g.mu.Lock()
	if g.stopped || g.entries[key] != e || e.pending != seq {
		g.mu.Unlock()
		return
	}
	delete(g.entries, key)
	g.mu.Unlock()

	// Stop waits for the run loop, which is the caller, so it must not block here.
	go e.d.Stop()
}

// Pending returns the number of keys with a scheduled function.
func (g *Group) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// Stop flushes every pending key and waits for the functions to return.
func (g *Group) Stop() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	entries := g.entries
	g.entries = make(map[string]*groupEntry)
	g.mu.Unlock()

	for _, e := range entries {
		e.d.Stop()
	}
}
