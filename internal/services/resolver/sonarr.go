// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package resolver

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/autobrr/analyzarr/internal/domain"
	"github.com/autobrr/analyzarr/internal/pkg/backoff"
	"github.com/autobrr/analyzarr/pkg/sonarr"
)

const (
	seriesCacheTTL   = 5 * time.Minute
	episodesCacheTTL = time.Minute
	seriesCacheKey   = "series"
)

// SonarrAPI is the part of the Sonarr client the resolver needs.
type SonarrAPI interface {
	ListSeries(ctx context.Context) ([]sonarr.Series, error)
	ListEpisodes(ctx context.Context, seriesID int) ([]sonarr.Episode, error)
	GetEpisodeFile(ctx context.Context, id int) (*sonarr.EpisodeFile, error)
}

// SonarrResolver resolves episodes against the Sonarr library. The series
// list and per-series episode lists are cached briefly; concurrent misses
// share one request.
type SonarrResolver struct {
	api      SonarrAPI
	policy   backoff.Policy
	series   *ttlcache.Cache[string, []sonarr.Series]
	episodes *ttlcache.Cache[int, []sonarr.Episode]
	group    singleflight.Group
	log      zerolog.Logger
}

func NewSonarr(api SonarrAPI, policy backoff.Policy) *SonarrResolver {
	logger := log.With().Str("component", "resolver").Str("source", "sonarr").Logger()
	if policy.Retryable == nil {
		policy.Retryable = sonarr.IsRetryable
	}

	return &SonarrResolver{
		api:      api,
		policy:   policy.WithLogger(logger),
		series:   ttlcache.New(ttlcache.Options[string, []sonarr.Series]{}.SetDefaultTTL(seriesCacheTTL)),
		episodes: ttlcache.New(ttlcache.Options[int, []sonarr.Episode]{}.SetDefaultTTL(episodesCacheTTL)),
		log:      logger,
	}
}

// Resolve maps q onto a Sonarr series and episode.
func (r *SonarrResolver) Resolve(ctx context.Context, q Query) (*Resolution, error) {
	series, err := r.FindSeries(ctx, q.SeriesTitle, q.Year)
	if err != nil {
		return nil, err
	}

	episodes, err := r.Episodes(ctx, series.ID)
	if err != nil {
		return nil, err
	}

	for _, ep := range episodes {
		if ep.SeasonNumber != q.Season || ep.EpisodeNumber != q.Episode {
			continue
		}
		if isPlaceholderTitle(ep.Title) {
			return nil, notFound("%s has no title yet", q)
		}
		return &Resolution{
			SeriesTitle:   series.Title,
			ExpectedTitle: ep.Title,
			Season:        ep.SeasonNumber,
			Episode:       ep.EpisodeNumber,
			SeriesID:      series.ID,
			EpisodeID:     ep.ID,
			EpisodeFileID: ep.EpisodeFileID,
			Source:        "sonarr",
		}, nil
	}

	return nil, notFound("%s not in sonarr", q)
}

// FindSeries returns the library series best matching title.
func (r *SonarrResolver) FindSeries(ctx context.Context, title string, year int) (*sonarr.Series, error) {
	all, err := r.Series(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]seriesCandidate, 0, len(all)*2)
	for i, s := range all {
		candidates = append(candidates, seriesCandidate{name: s.Title, year: s.Year, index: i})
		if s.SortTitle != "" && s.SortTitle != s.Title {
			candidates = append(candidates, seriesCandidate{name: s.SortTitle, year: s.Year, index: i})
		}
	}

	idx, ok := bestSeriesMatch(title, year, candidates)
	if !ok {
		return nil, notFound("series %q", title)
	}
	s := all[idx]
	return &s, nil
}

// Series returns the cached library series list.
func (r *SonarrResolver) Series(ctx context.Context) ([]sonarr.Series, error) {
	if cached, ok := r.series.Get(seriesCacheKey); ok {
		return cached, nil
	}

	v, err, _ := r.group.Do(seriesCacheKey, func() (any, error) {
		var series []sonarr.Series
		err := r.policy.Do(ctx, "list series", func() error {
			var err error
			series, err = r.api.ListSeries(ctx)
			return err
		})
		if err != nil {
			return nil, &domain.ExternalServiceError{Op: "sonarr list series", Err: err}
		}
		r.series.Set(seriesCacheKey, series, ttlcache.DefaultTTL)
		return series, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]sonarr.Series), nil
}

// Episodes returns the cached episode list of a series.
func (r *SonarrResolver) Episodes(ctx context.Context, seriesID int) ([]sonarr.Episode, error) {
	if cached, ok := r.episodes.Get(seriesID); ok {
		return cached, nil
	}

	v, err, _ := r.group.Do("episodes:"+strconv.Itoa(seriesID), func() (any, error) {
		var episodes []sonarr.Episode
		err := r.policy.Do(ctx, "list episodes", func() error {
			var err error
			episodes, err = r.api.ListEpisodes(ctx, seriesID)
			return err
		})
		if errors.Is(err, sonarr.ErrNotFound) {
			return nil, notFound("sonarr series %d", seriesID)
		}
		if err != nil {
			return nil, &domain.ExternalServiceError{Op: "sonarr list episodes", Err: err}
		}
		r.episodes.Set(seriesID, episodes, ttlcache.DefaultTTL)
		return episodes, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]sonarr.Episode), nil
}

// EpisodeFile returns the current file record. It is not cached.
func (r *SonarrResolver) EpisodeFile(ctx context.Context, id int) (*sonarr.EpisodeFile, error) {
	var file *sonarr.EpisodeFile
	err := r.policy.Do(ctx, "get episode file", func() error {
		var err error
		file, err = r.api.GetEpisodeFile(ctx, id)
		return err
	})
	if errors.Is(err, sonarr.ErrNotFound) {
		return nil, notFound("sonarr episode file %d", id)
	}
	if err != nil {
		return nil, &domain.ExternalServiceError{Op: "sonarr get episode file", Err: err}
	}
	return file, nil
}

// Invalidate drops cached data so the next lookup sees library changes,
// e.g. after a file was replaced.
func (r *SonarrResolver) Invalidate(seriesID int) {
	r.series.Delete(seriesCacheKey)
	if seriesID > 0 {
		r.episodes.Delete(seriesID)
	}
	r.log.Trace().Int("seriesID", seriesID).Msg("invalidated sonarr cache")
}

func (r *SonarrResolver) Close() {
	r.series.Close()
	r.episodes.Close()
}
