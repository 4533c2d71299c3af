// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/analyzarr/internal/domain"
)

func newTestEngine() *Engine {
	return NewEngine(0.5, domain.DefaultEndMarkers)
}

func TestDecideSubstringOverride(t *testing.T) {
	t.Parallel()

	d := newTestEngine().Decide("The Long Way Round", "", Hints{
		SceneName: "Show.S01E03.The.Long.Way.Round.WEB-DL.1080p",
	})

	assert.True(t, d.SubstringOverride)
	assert.True(t, d.Matched)
	assert.Equal(t, 1.0, d.Confidence)
	assert.False(t, d.MissingTitle)
	assert.Equal(t, "the long way round", d.NormExpected)
	assert.Equal(t, OutcomeSubstring, d.Outcome())
	assert.NoError(t, d.Err())
}

func TestDecideSubstringWinsOverLowFuzzyScore(t *testing.T) {
	t.Parallel()

	d := newTestEngine().Decide("Pilot", "Something Else Entirely", Hints{
		SceneName: "Show.S01E01.Pilot.Something.Else.Entirely.720p",
	})

	assert.True(t, d.SubstringOverride)
	assert.True(t, d.Matched)
	assert.Equal(t, 1.0, d.Confidence)
}

func TestDecideSubstringIgnoresSeparators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		expected string
		scene    string
	}{
		{name: "title run together", expected: "The Long Way Round", scene: "Show.S01E01.TheLongWayRound.WEB-DL.1080p"},
		{name: "title inside a longer word", expected: "Pilot", scene: "Show.S01E01.Copilot.Returns.1080p"},
	}

	e := newTestEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Decide(tt.expected, "", Hints{SceneName: tt.scene})
			assert.True(t, d.SubstringOverride)
			assert.True(t, d.Matched)
			assert.Equal(t, 1.0, d.Confidence)
			assert.Equal(t, OutcomeSubstring, d.Outcome())
		})
	}
}

func TestDecideNonLatinTitles(t *testing.T) {
	t.Parallel()

	e := newTestEngine()

	d := e.Decide("進撃の巨人", "進撃の巨人", Hints{})
	assert.Equal(t, "進撃の巨人", d.NormExpected)
	assert.False(t, d.MissingTitle)
	assert.True(t, d.Matched)

	d = e.Decide("Война и мир", "", Hints{SceneName: "Show.S01E01.Война.и.мир.1080p"})
	assert.Equal(t, "война и мир", d.NormExpected)
	assert.False(t, d.MissingTitle)
	assert.True(t, d.SubstringOverride)
	assert.True(t, d.Matched)
}

func TestDecideFuzzyMatch(t *testing.T) {
	t.Parallel()

	d := newTestEngine().Decide("A Tale of Two Sisters", "Tale of Two Sister", Hints{})

	assert.False(t, d.SubstringOverride)
	assert.False(t, d.MissingTitle)
	assert.True(t, d.Matched)
	assert.InDelta(t, 0.85, d.Confidence, 0.05)
	assert.Equal(t, OutcomeMatched, d.Outcome())
}

func TestDecideMismatch(t *testing.T) {
	t.Parallel()

	d := newTestEngine().Decide("The Dundies", "", Hints{
		SceneName: "The.Office.US.S02E01.Sexual.Harassment.1080p.WEB.h264-KOGi",
	})

	assert.False(t, d.Matched)
	assert.False(t, d.SubstringOverride)
	assert.Less(t, d.Confidence, 0.5)
	assert.Equal(t, "Sexual Harassment", d.ActualTitle)
	assert.Equal(t, OutcomeMismatched, d.Outcome())
}

func TestDecideMissingTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		expected string
		actual   string
		scene    string
	}{
		{name: "episode code only", expected: "Anything", scene: "Show.S02E05"},
		{name: "code then quality", expected: "Anything", scene: "Show.S02E05.1080p.WEB.h264"},
		{name: "bare number", expected: "The Return", actual: "2"},
		{name: "part only", expected: "The Return", actual: "Part 2"},
		{name: "no expected title", expected: "  ", actual: "Real Title"},
	}

	e := newTestEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Decide(tt.expected, tt.actual, Hints{SceneName: tt.scene})
			assert.True(t, d.MissingTitle)
			assert.False(t, d.Matched)
			assert.Zero(t, d.Confidence)
			assert.False(t, d.SubstringOverride)
			require.ErrorIs(t, d.Err(), domain.ErrClassificationIndeterminate)
		})
	}
}

func TestDecideNumericTitleEqualToExpected(t *testing.T) {
	t.Parallel()

	d := newTestEngine().Decide("1984", "1984", Hints{})
	assert.False(t, d.MissingTitle)
	assert.True(t, d.Matched)
}

func TestDecideReleaseGroupIsNotPartOfTitle(t *testing.T) {
	t.Parallel()

	d := newTestEngine().Decide("Rose", "Rose NTb", Hints{ReleaseGroup: "NTb"})
	assert.Equal(t, "rose", d.NormExtracted)
	assert.Equal(t, 1.0, d.Confidence)
	assert.True(t, d.Matched)
}

func TestThresholdBoundaryCountsAsMatched(t *testing.T) {
	t.Parallel()

	score := Similarity("abcd", "abxy")
	require.Equal(t, 0.5, score)

	d := NewEngine(0.5, nil).Decide("abcd", "abxy", Hints{})
	assert.Equal(t, 0.5, d.Confidence)
	assert.True(t, d.Matched)

	d = NewEngine(0.51, nil).Decide("abcd", "abxy", Hints{})
	assert.False(t, d.Matched)
}

func TestDeriveMatched(t *testing.T) {
	t.Parallel()

	assert.True(t, DeriveMatched(true, false, 0, 0.5))
	assert.False(t, DeriveMatched(true, true, 1, 0.5))
	assert.True(t, DeriveMatched(false, false, 0.5, 0.5))
	assert.False(t, DeriveMatched(false, false, 0.49, 0.5))
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, Similarity("a b", "a b"))
	assert.Equal(t, 0.0, Similarity("", "a"))
	assert.Equal(t, 1.0, Similarity("two tales", "tales two"))

	for _, pair := range [][2]string{{"x", "completely different"}, {"kitten", "sitting"}} {
		s := Similarity(pair[0], pair[1])
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestNewEngineInvalidThreshold(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultThreshold, NewEngine(1.5, nil).Threshold())
	assert.Equal(t, DefaultThreshold, NewEngine(-0.1, nil).Threshold())
	assert.Equal(t, 0.8, NewEngine(0.8, nil).Threshold())
}
