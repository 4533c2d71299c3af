// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package stringutils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFoldUnicode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"Shōgun", "Shogun"},
		{"Amélie", "Amelie"},
		{"naïve", "naive"},
		{"Björk", "Bjork"},
		{"Ærø", "AEro"},
		{"Straße", "Strasse"},
		{"ﬁnal", "final"},
		{"plain ascii", "plain ascii"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, FoldUnicode(tt.input))
		})
	}
}

func TestCached(t *testing.T) {
	t.Parallel()

	calls := 0
	c := NewCached(time.Minute, func(s string) string {
		calls++
		return strings.ToUpper(s)
	})

	assert.Equal(t, "HELLO", c.Get("hello"))
	assert.Equal(t, "HELLO", c.Get("hello"))
	assert.Equal(t, 1, calls)

	c.Forget("hello")
	assert.Equal(t, "HELLO", c.Get("hello"))
	assert.Equal(t, 2, calls)
}
