// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package matcher classifies an on-disk episode title against the official
// one.
package matcher

import (
	"math"
	"slices"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/autobrr/analyzarr/internal/domain"
	"github.com/autobrr/analyzarr/pkg/titles"
)

const DefaultThreshold = 0.5

// Outcome is the classification of a decision.
type Outcome string

const (
	OutcomeMatched      Outcome = "matched"
	OutcomeSubstring    Outcome = "substring"
	OutcomeMismatched   Outcome = "mismatched"
	OutcomeMissingTitle Outcome = "missing_title"
)

// Hints carries media-provider data about the file being classified.
type Hints struct {
	// SceneName is the full release name, used for containment checks and
	// for extracting the actual title when none is supplied.
	SceneName    string
	ReleaseGroup string
}

// Decision is the result of classifying one episode.
type Decision struct {
	ExpectedTitle     string  `json:"expectedTitle"`
	ActualTitle       string  `json:"actualTitle"`
	NormExpected      string  `json:"normExpected"`
	NormExtracted     string  `json:"normExtracted"`
	NormScene         string  `json:"normScene"`
	Confidence        float64 `json:"confidence"`
	SubstringOverride bool    `json:"substringOverride"`
	MissingTitle      bool    `json:"missingTitle"`
	Matched           bool    `json:"matches"`
}

// Outcome returns the classification the decision represents.
func (d Decision) Outcome() Outcome {
	switch {
	case d.MissingTitle:
		return OutcomeMissingTitle
	case d.SubstringOverride:
		return OutcomeSubstring
	case d.Matched:
		return OutcomeMatched
	default:
		return OutcomeMismatched
	}
}

// Err returns domain.ErrClassificationIndeterminate for missing-title
// decisions and nil otherwise.
func (d Decision) Err() error {
	if d.MissingTitle {
		return domain.ErrClassificationIndeterminate
	}
	return nil
}

// Engine applies the decision rules. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	threshold float64
	markers   titles.MarkerSet
}

// NewEngine returns an engine for the given threshold and end markers. A
// threshold outside [0,1] selects DefaultThreshold.
func NewEngine(threshold float64, endMarkers []string) *Engine {
	if threshold < 0 || threshold > 1 || math.IsNaN(threshold) {
		threshold = DefaultThreshold
	}
	return &Engine{
		threshold: threshold,
		markers:   titles.NewMarkerSet(endMarkers...),
	}
}

func (e *Engine) Threshold() float64 { return e.threshold }

// Markers returns the configured end markers.
func (e *Engine) Markers() titles.MarkerSet { return e.markers }

// Decide classifies actual against expected. When actual is empty it is
// extracted from hints.SceneName. The first applicable rule wins:
//
//  1. no real actual title (or no expected title): missing title
//  2. normalized expected title contained in the normalized scene name:
//     substring override, confidence 1
//  3. fuzzy similarity of the normalized titles against the threshold
func (e *Engine) Decide(expected, actual string, hints Hints) Decision {
	markers := e.markers
	if group := strings.TrimSpace(hints.ReleaseGroup); group != "" {
		markers = markers.With(group)
	}

	if strings.TrimSpace(actual) == "" && hints.SceneName != "" {
		actual = titles.ExtractSceneTitle(hints.SceneName, markers)
	}

	d := Decision{
		ExpectedTitle: expected,
		ActualTitle:   actual,
		NormScene:     titles.Normalize(hints.SceneName, nil),
	}

	if strings.TrimSpace(expected) == "" || titles.IsMissingTitle(actual, expected) {
		d.MissingTitle = true
		d.NormExpected = titles.Normalize(expected, nil)
		return d
	}

	d.NormExpected = titles.Normalize(expected, nil)
	d.NormExtracted = titles.Normalize(actual, markers)

	if d.NormExpected == "" {
		d.MissingTitle = true
		return d
	}

	if titles.ContainsCompact(d.NormScene, d.NormExpected) {
		d.SubstringOverride = true
		d.Confidence = 1
		d.Matched = true
		return d
	}

	if d.NormExtracted == "" {
		d.MissingTitle = true
		return d
	}

	d.Confidence = Similarity(d.NormExpected, d.NormExtracted)
	d.Matched = DeriveMatched(d.SubstringOverride, d.MissingTitle, d.Confidence, e.threshold)
	return d
}

// DeriveMatched is the only definition of the matched flag.
func DeriveMatched(substringOverride, missingTitle bool, confidence, threshold float64) bool {
	if missingTitle {
		return false
	}
	if substringOverride {
		return true
	}
	return confidence >= threshold
}

// Similarity scores two normalized titles in [0,1]. It is the better of the
// plain edit-distance ratio and the ratio over alphabetically sorted tokens,
// so reordered words are not penalised.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	score := math.Max(ratio(a, b), ratio(sortTokens(a), sortTokens(b)))
	return math.Round(score*1000) / 1000
}

func ratio(a, b string) float64 {
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	r := 1 - float64(dist)/float64(longest)
	return min(max(r, 0), 1)
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	slices.Sort(tokens)
	return strings.Join(tokens, " ")
}
