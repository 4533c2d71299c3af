// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package remediation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/autobrr/analyzarr/internal/models"
)

// recorder writes job progress and log lines to the job store and mirrors
// each log line to the process log.
type recorder struct {
	ctx  context.Context
	jobs JobStore
	id   string
	log  zerolog.Logger

	lo, hi  int
	message string
}

func newRecorder(ctx context.Context, jobs JobStore, job *models.RemediationJob, base zerolog.Logger) *recorder {
	return &recorder{
		ctx:  ctx,
		jobs: jobs,
		id:   job.ID,
		hi:   100,
		log: base.With().
			Str("jobID", job.ID).
			Str("jobType", string(job.Type)).
			Str("episodeKey", job.EpisodeKey).
			Logger(),
	}
}

// step sets an absolute progress milestone and logs message.
func (r *recorder) step(progress int, message string) {
	r.message = message
	r.update(progress)
	r.Logf("%s", message)
}

// scale maps the 0-100 progress reported by a long operation onto lo-hi.
func (r *recorder) scale(lo, hi int, message string) {
	r.lo, r.hi = lo, hi
	r.message = message
}

// Progress implements analyzer.Reporter.
func (r *recorder) Progress(percent int) {
	percent = max(0, min(percent, 100))
	r.update(r.lo + percent*(r.hi-r.lo)/100)
}

// Logf implements analyzer.Reporter.
func (r *recorder) Logf(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if _, err := r.jobs.AppendLog(r.ctx, r.id, text); err != nil {
		r.log.Warn().Err(err).Msg("failed to append job log")
	}
	r.log.Info().Msg(text)
}

func (r *recorder) update(progress int) {
	if err := r.jobs.UpdateProgress(r.ctx, r.id, progress, r.message); err != nil {
		r.log.Warn().Err(err).Int("progress", progress).Msg("failed to update job progress")
	}
}
