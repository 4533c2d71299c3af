// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package titles

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

var (
	separatorRe   = regexp.MustCompile(`[.\-_\s]+`)
	episodeCodeRe = regexp.MustCompile(`(?i)^s\d{1,2}e\d{2,3}(?:e\d{2,3})*$`)
	resolutionRe  = regexp.MustCompile(`^\d{3,4}p$`)
	partOnlyRe    = regexp.MustCompile(`(?i)^(?:part|pt)\s*\d+$`)
)

var mediaExtensions = map[string]struct{}{
	".mkv": {}, ".mp4": {}, ".avi": {}, ".m4v": {}, ".ts": {}, ".wmv": {},
	".mov": {}, ".webm": {}, ".mpg": {}, ".mpeg": {}, ".nzb": {},
}

// SceneName returns the release name carried by a file path: the base name
// without a media extension.
func SceneName(path string) string {
	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(base))
	if _, ok := mediaExtensions[ext]; ok {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return base
}

// IsMediaFile reports whether path carries a video or nzb extension.
func IsMediaFile(path string) bool {
	_, ok := mediaExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// HasEpisodeCode reports whether name carries an SxxEyy token.
func HasEpisodeCode(name string) bool {
	for _, tok := range separatorRe.Split(name, -1) {
		if episodeCodeRe.MatchString(tok) {
			return true
		}
	}
	return false
}

// ExtractSceneTitle returns the raw episode title that follows the SxxEyy
// token in a scene name, stopping at a resolution token or an end marker.
// An all-uppercase single token directly before a marker is treated as
// noise (REPACK, PROPER, a group tag). Names without an episode code fall
// back to the whole name with separators replaced by spaces.
func ExtractSceneTitle(scene string, endMarkers MarkerSet) string {
	tokens := separatorRe.Split(scene, -1)

	for i, tok := range tokens {
		if !episodeCodeRe.MatchString(tok) {
			continue
		}

		var parts []string
		for j := i + 1; j < len(tokens); j++ {
			w := tokens[j]
			if w == "" {
				continue
			}
			if isTerminator(w, endMarkers) {
				break
			}
			if j == i+1 && isUpper(w) {
				if j+1 >= len(tokens) || isTerminator(tokens[j+1], endMarkers) {
					break
				}
			}
			parts = append(parts, w)
		}
		return strings.Join(parts, " ")
	}

	return strings.TrimSpace(separatorRe.ReplaceAllString(scene, " "))
}

func isTerminator(tok string, endMarkers MarkerSet) bool {
	lw := strings.ToLower(tok)
	return resolutionRe.MatchString(lw) || endMarkers.Has(lw)
}

func isUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

// IsMissingTitle reports whether the extracted title carries no real title:
// nothing at all, a bare number that does not equal the expected title, or
// a lone "Part N".
func IsMissingTitle(extracted, expected string) bool {
	raw := strings.TrimSpace(extracted)
	if raw == "" {
		return true
	}

	if isDigits(raw) {
		exp := Compact(expected)
		return !(isDigits(exp) && exp == raw)
	}

	return partOnlyRe.MatchString(raw)
}
