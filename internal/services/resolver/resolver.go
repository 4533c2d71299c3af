// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package resolver looks up the official title of an episode.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/autobrr/analyzarr/internal/domain"
	"github.com/autobrr/analyzarr/pkg/titles"
)

// Query identifies an episode by series name and number.
type Query struct {
	SeriesTitle string
	Season      int
	Episode     int
	Year        int
}

func (q Query) String() string {
	return fmt.Sprintf("%s %s", q.SeriesTitle, titles.EpisodeCode(q.Season, q.Episode))
}

// Resolution is the metadata source's view of an episode. The Sonarr ids are
// zero when the resolution came from another source.
type Resolution struct {
	SeriesTitle   string `json:"seriesTitle"`
	ExpectedTitle string `json:"expectedTitle"`
	Season        int    `json:"season"`
	Episode       int    `json:"episode"`
	SeriesID      int    `json:"seriesId,omitempty"`
	EpisodeID     int    `json:"episodeId,omitempty"`
	EpisodeFileID int    `json:"episodeFileId,omitempty"`
	Source        string `json:"source"`
}

// Key returns the episode key for the resolved series.
func (r *Resolution) Key() string {
	return titles.EpisodeKey(r.SeriesTitle, r.Season, r.Episode)
}

// Resolver returns the expected title for an episode. Unknown series or
// episodes yield an error matching domain.ErrNotFound; failures that
// survived retries match domain.ErrExternalService.
type Resolver interface {
	Resolve(ctx context.Context, q Query) (*Resolution, error)
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrNotFound, fmt.Sprintf(format, args...))
}

// placeholder titles used by metadata sources for unnamed episodes
func isPlaceholderTitle(title string) bool {
	switch strings.ToLower(strings.TrimSpace(title)) {
	case "", "tba", "tbd", "tba.":
		return true
	}
	return false
}

type seriesCandidate struct {
	name  string
	year  int
	index int
}

// bestSeriesMatch picks the candidate for title: an exact compact match
// first (preferring a matching year), then the closest fuzzy match whose
// edit distance stays within a third of the candidate's length.
func bestSeriesMatch(title string, year int, candidates []seriesCandidate) (int, bool) {
	want := titles.Compact(title)
	if want == "" {
		return 0, false
	}

	exact := -1
	for _, c := range candidates {
		if titles.Compact(c.name) != want {
			continue
		}
		if year > 0 && c.year == year {
			return c.index, true
		}
		if exact < 0 {
			exact = c.index
		}
	}
	if exact >= 0 {
		return exact, true
	}

	source := titles.Normalize(title, nil)
	targets := make([]string, len(candidates))
	for i, c := range candidates {
		targets[i] = titles.Normalize(c.name, nil)
	}

	ranks := fuzzy.RankFindNormalizedFold(source, targets)
	if len(ranks) == 0 {
		return 0, false
	}
	sort.Sort(ranks)

	best := ranks[0]
	if best.Distance > len(best.Target)/3 {
		return 0, false
	}
	return candidates[best.OriginalIndex].index, true
}
