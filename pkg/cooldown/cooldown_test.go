// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cooldown

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldProcess(t *testing.T) {
	t.Parallel()

	g := New()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	window := 5 * time.Minute

	assert.True(t, g.ShouldProcess("Show.S01E01-GRP", base, window), "first trigger")
	assert.False(t, g.ShouldProcess("Show.S01E01-GRP", base.Add(time.Minute), window), "inside window")
	assert.True(t, g.ShouldProcess("Show.S01E02-GRP", base.Add(time.Minute), window), "other key")

	// suppressed triggers do not extend the window
	assert.False(t, g.ShouldProcess("Show.S01E01-GRP", base.Add(4*time.Minute), window))
	assert.True(t, g.ShouldProcess("Show.S01E01-GRP", base.Add(window), window), "boundary accepted")
	// the accepted boundary trigger restarts the window
	assert.False(t, g.ShouldProcess("Show.S01E01-GRP", base.Add(window+time.Minute), window))

	accepted, suppressed := g.Stats()
	assert.Equal(t, uint64(3), accepted)
	assert.Equal(t, uint64(3), suppressed)
}

func TestShouldProcessZeroWindow(t *testing.T) {
	t.Parallel()

	g := New()
	now := time.Now()
	assert.True(t, g.ShouldProcess("k", now, 0))
	assert.True(t, g.ShouldProcess("k", now, 0))
}

func TestShouldProcessConcurrentSameKey(t *testing.T) {
	t.Parallel()

	g := New()
	now := time.Now()

	var wg sync.WaitGroup
	var passed atomic.Int32
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.ShouldProcess("same", now, time.Minute) {
				passed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), passed.Load())
}

func tracked(g *Guard, key string) bool {
	_, ok := g.locks.Load(key)
	return ok
}

func TestPrune(t *testing.T) {
	t.Parallel()

	g := New()
	base := time.Now()
	g.ShouldProcess("old", base, time.Minute)
	g.ShouldProcess("new", base.Add(2*time.Minute), time.Minute)

	assert.Equal(t, 1, g.Prune(base.Add(2*time.Minute), time.Minute))

	assert.False(t, tracked(g, "old"))
	assert.True(t, tracked(g, "new"))

	// a pruned key starts over
	assert.True(t, g.ShouldProcess("old", base.Add(2*time.Minute), time.Minute))
	assert.Zero(t, g.Prune(base.Add(2*time.Minute), time.Minute))
}

func TestPruneBoundsGrowth(t *testing.T) {
	t.Parallel()

	g := New()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := range 1000 {
		g.ShouldProcess(fmt.Sprintf("Show.S01E%03d-GRP", i), base, time.Minute)
	}

	assert.Equal(t, 1000, g.Prune(base.Add(time.Minute), time.Minute))

	count := 0
	g.locks.Range(func(any, any) bool {
		count++
		return true
	})
	assert.Zero(t, count)
}
