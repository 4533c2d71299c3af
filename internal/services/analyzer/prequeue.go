// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package analyzer

import (
	"context"
	"errors"
	"strings"

	"github.com/autobrr/analyzarr/internal/domain"
	"github.com/autobrr/analyzarr/internal/services/resolver"
	"github.com/autobrr/analyzarr/pkg/titles"
)

// Verdict is the answer returned to a download client pre-queue hook.
type Verdict int

const (
	Accept Verdict = 1
	Reject Verdict = 2
)

// PrequeueResult explains a pre-queue verdict.
type PrequeueResult struct {
	Verdict  Verdict `json:"verdict"`
	Reason   string  `json:"reason"`
	Key      string  `json:"key,omitempty"`
	Attempts int     `json:"attempts,omitempty"`
}

// Prequeue decides whether a release should be downloaded. Movies and
// releases that cannot be judged are accepted. A release whose name carries
// the expected episode title is accepted and clears the attempt counter. Any
// other release is rejected and counted. Once MaxAttempts mismatches have been
// rejected for an episode, further releases are let through.
func (s *Service) Prequeue(ctx context.Context, nzbName, category string) (*PrequeueResult, error) {
	if movies := strings.TrimSpace(s.cfg.MovieCategory); movies != "" && strings.EqualFold(strings.TrimSpace(category), movies) {
		return &PrequeueResult{Verdict: Accept, Reason: "movie category"}, nil
	}

	parsed := s.parser.Parse(nzbName)
	if !parsed.Valid() {
		return &PrequeueResult{Verdict: Accept, Reason: "not an episode release"}, nil
	}

	res, err := s.resolver.Resolve(ctx, resolver.Query{
		SeriesTitle: parsed.SeriesTitle,
		Season:      parsed.Season,
		Episode:     parsed.Episode,
		Year:        parsed.Year,
	})
	if errors.Is(err, domain.ErrNotFound) {
		return &PrequeueResult{Verdict: Accept, Reason: "episode unknown upstream", Key: parsed.Key()}, nil
	}
	if err != nil {
		// fail open on metadata outages
		return &PrequeueResult{Verdict: Accept, Reason: "metadata lookup failed", Key: parsed.Key()}, err
	}

	key := res.Key()
	normExpected := titles.Normalize(res.ExpectedTitle, nil)
	normRelease := titles.Normalize(parsed.SceneName, nil)

	if titles.ContainsCompact(normRelease, normExpected) {
		if err := s.attempts.Reset(ctx, key); err != nil {
			return nil, err
		}
		return &PrequeueResult{Verdict: Accept, Reason: "title matches", Key: key}, nil
	}

	out := &PrequeueResult{Key: key}

	seen, err := s.attempts.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if seen >= s.cfg.MaxAttempts {
		out.Verdict = Accept
		out.Reason = "attempt limit reached"
		out.Attempts = seen
	} else {
		n, err := s.attempts.Increment(ctx, key, parsed.SceneName)
		if err != nil {
			return nil, err
		}
		out.Verdict = Reject
		out.Reason = "title mismatch"
		out.Attempts = n
	}

	s.log.Info().
		Str("release", parsed.SceneName).
		Str("episodeKey", key).
		Str("expected", res.ExpectedTitle).
		Int("attempts", out.Attempts).
		Int("verdict", int(out.Verdict)).
		Msg("prequeue verdict")

	return out, nil
}
