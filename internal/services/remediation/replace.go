// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package remediation

import (
	"context"
	"errors"
	"fmt"

	"github.com/autobrr/analyzarr/internal/domain"
	"github.com/autobrr/analyzarr/internal/models"
	"github.com/autobrr/analyzarr/internal/services/resolver"
	"github.com/autobrr/analyzarr/pkg/sonarr"
)

// release is the file currently imported for an episode.
type release struct {
	episodeID int
	fileID    int
}

// runReplace deletes the current file of an episode and asks Sonarr to
// search for a new one. Dry runs log both steps without calling Sonarr.
func (s *Service) runReplace(ctx context.Context, job *models.RemediationJob, rec *recorder) (string, error) {
	rel, err := s.findRelease(ctx, job.EpisodeKey, rec)
	if err != nil {
		return "", err
	}
	rec.step(33, fmt.Sprintf("found episode %d with file %d", rel.episodeID, rel.fileID))

	if job.DryRun {
		rec.step(66, fmt.Sprintf("dry run: would delete episode file %d", rel.fileID))
		rec.step(90, fmt.Sprintf("dry run: would search for episode %d", rel.episodeID))
		return "dry run complete", nil
	}

	err = s.call(ctx, rec, "delete episode file", func() error {
		err := s.media.DeleteEpisodeFile(ctx, rel.fileID)
		if errors.Is(err, sonarr.ErrNotFound) {
			rec.Logf("episode file %d already gone", rel.fileID)
			return nil
		}
		return err
	})
	if err != nil {
		return "", err
	}
	rec.step(66, fmt.Sprintf("deleted episode file %d", rel.fileID))

	var cmd *sonarr.Command
	err = s.call(ctx, rec, "search episode", func() error {
		var err error
		cmd, err = s.media.SearchEpisodes(ctx, []int{rel.episodeID})
		return err
	})
	if err != nil {
		return "", err
	}
	if cmd != nil {
		rec.Logf("search command %d queued", cmd.ID)
	}
	rec.step(90, fmt.Sprintf("search requested for episode %d", rel.episodeID))

	return "replacement requested", nil
}

// findRelease locates the Sonarr episode and its current file. An episode
// without a file fails with domain.ErrNotFound.
func (s *Service) findRelease(ctx context.Context, key string, rec *recorder) (*release, error) {
	ep, err := s.episodes.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	episodeID := ep.SonarrEpisodeID
	if episodeID == 0 {
		if s.resolver == nil {
			return nil, fmt.Errorf("%s has no media manager episode id: %w", key, domain.ErrNotFound)
		}
		res, err := s.resolver.Resolve(ctx, resolver.Query{
			SeriesTitle: ep.SeriesTitle,
			Season:      ep.Season,
			Episode:     ep.Episode,
		})
		if err != nil {
			return nil, err
		}
		if res.EpisodeID == 0 {
			return nil, fmt.Errorf("%s has no media manager episode id: %w", key, domain.ErrNotFound)
		}
		episodeID = res.EpisodeID
	}

	var episode *sonarr.Episode
	err = s.call(ctx, rec, "find release", func() error {
		var err error
		episode, err = s.media.GetEpisode(ctx, episodeID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !episode.HasFile || episode.EpisodeFileID == 0 {
		return nil, fmt.Errorf("episode %d has no file: %w", episodeID, domain.ErrNotFound)
	}

	return &release{episodeID: episode.ID, fileID: episode.EpisodeFileID}, nil
}

// call runs one media manager request under the retry policy, logging each
// failed attempt to the job. Not-found responses are permanent.
func (s *Service) call(ctx context.Context, rec *recorder, op string, fn func() error) error {
	attempt := 0
	err := s.policy.Do(ctx, op, func() error {
		attempt++
		err := fn()
		if err != nil {
			rec.Logf("%s failed (attempt %d/%d): %v", op, attempt, s.policy.Attempts, err)
		}
		return err
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, sonarr.ErrNotFound) {
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrNotFound)
	}
	return &domain.ExternalServiceError{Op: op, Err: err}
}
