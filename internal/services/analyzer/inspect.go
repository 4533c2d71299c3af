// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package analyzer

import (
	"context"
	"fmt"

	"github.com/autobrr/analyzarr/internal/domain"
	"github.com/autobrr/analyzarr/internal/services/matcher"
	"github.com/autobrr/analyzarr/internal/services/resolver"
	"github.com/autobrr/analyzarr/pkg/titles"
)

// Inspection is a classification that was not persisted.
type Inspection struct {
	Parsed     titles.ParsedEpisode `json:"parsed"`
	Resolution *resolver.Resolution `json:"resolution"`
	Decision   matcher.Decision     `json:"decision"`
}

// Inspect classifies a file or release name without touching the store. A
// nil resolver uses the service's own.
func (s *Service) Inspect(ctx context.Context, name string, r resolver.Resolver) (*Inspection, error) {
	if r == nil {
		r = s.resolver
	}

	parsed := s.parser.Parse(name)
	if !parsed.Valid() {
		return nil, fmt.Errorf("%s: no series/season/episode in name: %w", name, domain.ErrClassificationIndeterminate)
	}

	res, err := r.Resolve(ctx, resolver.Query{
		SeriesTitle: parsed.SeriesTitle,
		Season:      parsed.Season,
		Episode:     parsed.Episode,
		Year:        parsed.Year,
	})
	if err != nil {
		return nil, err
	}

	return &Inspection{
		Parsed:     parsed,
		Resolution: res,
		Decision: s.engine.Decide(res.ExpectedTitle, "", matcher.Hints{
			SceneName:    parsed.SceneName,
			ReleaseGroup: parsed.ReleaseGroup,
		}),
	}, nil
}
