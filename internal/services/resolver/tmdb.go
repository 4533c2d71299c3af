// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package resolver

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/analyzarr/internal/domain"
	"github.com/autobrr/analyzarr/internal/pkg/backoff"
	"github.com/autobrr/analyzarr/pkg/tmdb"
)

// TMDBAPI is the part of the TMDB client the resolver needs.
type TMDBAPI interface {
	SearchTV(ctx context.Context, query string, year int) (*tmdb.SearchResponse, error)
	GetSeasonDetails(ctx context.Context, showID int64, seasonNumber int) (*tmdb.SeasonDetails, error)
}

// TMDBResolver resolves episodes against TMDB. It is used by the one-shot
// check command for files whose series is not in the library.
type TMDBResolver struct {
	api    TMDBAPI
	policy backoff.Policy
}

func NewTMDB(api TMDBAPI, policy backoff.Policy) *TMDBResolver {
	if policy.Retryable == nil {
		policy.Retryable = tmdb.IsRetryable
	}
	logger := log.With().Str("component", "resolver").Str("source", "tmdb").Logger()
	return &TMDBResolver{api: api, policy: policy.WithLogger(logger)}
}

func (r *TMDBResolver) Resolve(ctx context.Context, q Query) (*Resolution, error) {
	var search *tmdb.SearchResponse
	err := r.policy.Do(ctx, "search tv", func() error {
		var err error
		search, err = r.api.SearchTV(ctx, q.SeriesTitle, q.Year)
		return err
	})
	if err != nil {
		return nil, &domain.ExternalServiceError{Op: "tmdb search tv", Err: err}
	}

	candidates := make([]seriesCandidate, 0, len(search.Results)*2)
	for i, show := range search.Results {
		candidates = append(candidates, seriesCandidate{name: show.Name, year: show.Year(), index: i})
		if show.OriginalName != "" && show.OriginalName != show.Name {
			candidates = append(candidates, seriesCandidate{name: show.OriginalName, year: show.Year(), index: i})
		}
	}

	idx, ok := bestSeriesMatch(q.SeriesTitle, q.Year, candidates)
	if !ok {
		return nil, notFound("series %q on tmdb", q.SeriesTitle)
	}
	show := search.Results[idx]

	var season *tmdb.SeasonDetails
	err = r.policy.Do(ctx, "season details", func() error {
		var err error
		season, err = r.api.GetSeasonDetails(ctx, show.ID, q.Season)
		return err
	})
	if errors.Is(err, tmdb.ErrNotFound) {
		return nil, notFound("%s season %d on tmdb", show.Name, q.Season)
	}
	if err != nil {
		return nil, &domain.ExternalServiceError{Op: "tmdb season details", Err: err}
	}

	for _, ep := range season.Episodes {
		if ep.EpisodeNumber != q.Episode {
			continue
		}
		if isPlaceholderTitle(ep.Name) {
			return nil, notFound("%s has no title yet", q)
		}
		return &Resolution{
			SeriesTitle:   show.Name,
			ExpectedTitle: ep.Name,
			Season:        q.Season,
			Episode:       ep.EpisodeNumber,
			Source:        "tmdb",
		}, nil
	}

	return nil, notFound("%s on tmdb", q)
}
