// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package titles turns episode titles and scene names into canonical,
// comparable strings and pulls the episode title out of a release name.
package titles

import (
	"strings"
	"unicode"

	"github.com/autobrr/analyzarr/pkg/stringutils"
)

// MarkerSet holds lowercase end-marker tokens.
type MarkerSet map[string]struct{}

// NewMarkerSet builds a MarkerSet from raw tokens, lowercasing and trimming
// each one and skipping blanks.
func NewMarkerSet(tokens ...string) MarkerSet {
	set := make(MarkerSet, len(tokens))
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}

// Has reports whether tok (already lowercase) is a marker.
func (m MarkerSet) Has(tok string) bool {
	_, ok := m[tok]
	return ok
}

// With returns a copy of the set that also contains the given tokens.
func (m MarkerSet) With(tokens ...string) MarkerSet {
	out := make(MarkerSet, len(m)+len(tokens))
	for k := range m {
		out[k] = struct{}{}
	}
	for k := range NewMarkerSet(tokens...) {
		out[k] = struct{}{}
	}
	return out
}

var apostrophes = strings.NewReplacer("'", "", "’", "", "‘", "", "`", "")

// Normalize returns the canonical comparable form of raw:
//   - diacritics and ligatures are folded ("Shōgun" → "shogun")
//   - "&" becomes "and", apostrophes are dropped ("Bob's" → "bobs")
//   - any rune that is not a letter or digit (in any script) separates tokens
//   - spelled-out numbers collapse to digits ("Twenty-One" → "21")
//   - "Part 2" / "Pt. 2" collapse to "2"
//   - the output stops before the first end-marker token
//
// Tokens are joined with single spaces. Normalize is idempotent.
func Normalize(raw string, endMarkers MarkerSet) string {
	if raw == "" {
		return ""
	}

	s := strings.ToLower(stringutils.FoldUnicode(raw))
	s = strings.ReplaceAll(s, "&", " and ")
	s = apostrophes.Replace(s)

	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
	})

	tokens = collapseNumberWords(tokens)
	tokens = collapseParts(tokens)

	for i, tok := range tokens {
		if endMarkers.Has(tok) {
			tokens = tokens[:i]
			break
		}
	}

	return strings.Join(tokens, " ")
}

// Compact returns the normalized form without separators, as used in
// episode keys.
func Compact(raw string) string {
	return strings.ReplaceAll(Normalize(raw, nil), " ", "")
}

// ContainsCompact reports whether the normalized needle occurs anywhere in
// the normalized haystack once separators are removed from both, so
// "the long way round" is found in "thelongwayround web dl".
func ContainsCompact(haystack, needle string) bool {
	needle = strings.ReplaceAll(needle, " ", "")
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ReplaceAll(haystack, " ", ""), needle)
}

// collapseParts drops "part"/"pt" tokens that precede a number.
func collapseParts(tokens []string) []string {
	out := tokens[:0:0]
	for _, tok := range tokens {
		if isDigits(tok) {
			for len(out) > 0 && (out[len(out)-1] == "part" || out[len(out)-1] == "pt") {
				out = out[:len(out)-1]
			}
		}
		out = append(out, tok)
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
