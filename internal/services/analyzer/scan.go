// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package analyzer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/autobrr/analyzarr/internal/services/matcher"
	"github.com/autobrr/analyzarr/internal/services/resolver"
	"github.com/autobrr/analyzarr/pkg/sonarr"
	"github.com/autobrr/analyzarr/pkg/titles"
)

// Reporter receives progress from long-running library operations.
type Reporter interface {
	Progress(percent int)
	Logf(format string, args ...any)
}

type nopReporter struct{}

func (nopReporter) Progress(int)        {}
func (nopReporter) Logf(string, ...any) {}

// ScanOptions narrows a library scan.
type ScanOptions struct {
	TvdbID  int   `json:"tvdbId,omitempty"`
	Seasons []int `json:"seasons,omitempty"`
}

func (o ScanOptions) includesSeries(s sonarr.Series) bool {
	return o.TvdbID == 0 || s.TvdbID == o.TvdbID
}

func (o ScanOptions) includesSeason(season int) bool {
	return len(o.Seasons) == 0 || slices.Contains(o.Seasons, season)
}

// ScanSummary counts the outcomes of a library scan.
type ScanSummary struct {
	Series       int `json:"series"`
	Episodes     int `json:"episodes"`
	Matched      int `json:"matched"`
	Mismatched   int `json:"mismatched"`
	MissingTitle int `json:"missingTitle"`
	Overridden   int `json:"overridden"`
	Failed       int `json:"failed"`
}

type scanItem struct {
	series  sonarr.Series
	episode sonarr.Episode
}

// Scan analyses every episode with a file in the media library. Per-episode
// failures are counted and logged; only cancellation or a failure to list
// the library aborts the scan.
func (s *Service) Scan(ctx context.Context, opts ScanOptions, rep Reporter) (*ScanSummary, error) {
	if s.library == nil {
		return nil, errors.New("scan requires a media library")
	}
	if rep == nil {
		rep = nopReporter{}
	}

	items, seriesCount, err := s.collectScanItems(ctx, opts)
	if err != nil {
		return nil, err
	}

	summary := &ScanSummary{Series: seriesCount, Episodes: len(items)}
	rep.Logf("scanning %d episodes across %d series", len(items), seriesCount)
	if len(items) == 0 {
		rep.Progress(100)
		return summary, nil
	}

	var (
		mu   sync.Mutex
		done atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ScanConcurrency)

	for _, item := range items {
		g.Go(func() error {
			result, err := s.scanEpisode(gctx, item)

			mu.Lock()
			switch {
			case err != nil:
				summary.Failed++
			case result.Overridden:
				summary.Overridden++
			default:
				switch result.Decision.Outcome() {
				case matcher.OutcomeMatched, matcher.OutcomeSubstring:
					summary.Matched++
				case matcher.OutcomeMissingTitle:
					summary.MissingTitle++
				default:
					summary.Mismatched++
				}
			}
			mu.Unlock()

			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				code := titles.EpisodeCode(item.episode.SeasonNumber, item.episode.EpisodeNumber)
				rep.Logf("%s %s: %v", item.series.Title, code, err)
				s.log.Warn().Err(err).Str("series", item.series.Title).Str("code", code).Msg("scan: episode failed")
			} else if !result.Decision.Matched && !result.Overridden {
				rep.Logf("%s: expected %q, found %q (%.2f)", result.Key, result.Decision.ExpectedTitle, result.Decision.ActualTitle, result.Decision.Confidence)
			}

			n := done.Add(1)
			rep.Progress(int(n * 100 / int64(len(items))))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}

	rep.Logf("scan finished: %d matched, %d mismatched, %d missing title, %d overridden, %d failed",
		summary.Matched, summary.Mismatched, summary.MissingTitle, summary.Overridden, summary.Failed)
	return summary, nil
}

func (s *Service) collectScanItems(ctx context.Context, opts ScanOptions) ([]scanItem, int, error) {
	series, err := s.library.Series(ctx)
	if err != nil {
		return nil, 0, err
	}

	var items []scanItem
	seriesCount := 0
	for _, sr := range series {
		if !opts.includesSeries(sr) {
			continue
		}
		seriesCount++

		episodes, err := s.library.Episodes(ctx, sr.ID)
		if err != nil {
			return nil, 0, fmt.Errorf("list episodes of %s: %w", sr.Title, err)
		}
		for _, ep := range episodes {
			if !ep.HasFile || ep.EpisodeFileID == 0 || ep.SeasonNumber == 0 {
				continue
			}
			if !opts.includesSeason(ep.SeasonNumber) {
				continue
			}
			items = append(items, scanItem{series: sr, episode: ep})
		}
	}

	return items, seriesCount, nil
}

func (s *Service) scanEpisode(ctx context.Context, item scanItem) (*Result, error) {
	file, err := s.library.EpisodeFile(ctx, item.episode.EpisodeFileID)
	if err != nil {
		return nil, err
	}

	res := &resolver.Resolution{
		SeriesTitle:   item.series.Title,
		ExpectedTitle: item.episode.Title,
		Season:        item.episode.SeasonNumber,
		Episode:       item.episode.EpisodeNumber,
		SeriesID:      item.series.ID,
		EpisodeID:     item.episode.ID,
		EpisodeFileID: item.episode.EpisodeFileID,
		Source:        "sonarr",
	}

	return s.Analyze(ctx, inputFromFile(file, res))
}

// Cleanup purges stored episodes whose key no longer exists in the media
// library and returns the purged keys. An empty library purges nothing.
func (s *Service) Cleanup(ctx context.Context, rep Reporter) ([]string, error) {
	if s.library == nil {
		return nil, errors.New("cleanup requires a media library")
	}
	if rep == nil {
		rep = nopReporter{}
	}

	series, err := s.library.Series(ctx)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		rep.Logf("media library returned no series, nothing purged")
		return nil, nil
	}
	rep.Progress(10)

	var (
		mu   sync.Mutex
		live = make(map[string]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ScanConcurrency)
	for _, sr := range series {
		g.Go(func() error {
			episodes, err := s.library.Episodes(gctx, sr.ID)
			if err != nil {
				return fmt.Errorf("list episodes of %s: %w", sr.Title, err)
			}
			mu.Lock()
			for _, ep := range episodes {
				live[titles.EpisodeKey(sr.Title, ep.SeasonNumber, ep.EpisodeNumber)] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	rep.Progress(50)

	keys, err := s.episodes.ListKeys(ctx)
	if err != nil {
		return nil, err
	}

	var purged []string
	for i, key := range keys {
		if _, ok := live[key]; ok {
			continue
		}

		unlock := s.lockKey(key)
		err := s.episodes.Purge(ctx, key)
		unlock()
		if err != nil {
			rep.Logf("purge %s: %v", key, err)
			s.log.Warn().Err(err).Str("episodeKey", key).Msg("cleanup: purge failed")
			continue
		}

		purged = append(purged, key)
		s.purged.Add(1)
		rep.Logf("purged %s", key)
		rep.Progress(50 + (i+1)*50/len(keys))
	}

	rep.Logf("cleanup finished: %d of %d records purged", len(purged), len(keys))
	rep.Progress(100)
	return purged, nil
}
