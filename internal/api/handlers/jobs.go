// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/analyzarr/internal/models"
	"github.com/autobrr/analyzarr/internal/services/analyzer"
)

const (
	defaultJobLimit = 50
	maxJobLimit     = 500
)

// JobService enqueues and reports remediation jobs.
type JobService interface {
	EnqueueReplace(ctx context.Context, key string) (*models.RemediationJob, error)
	EnqueueScan(ctx context.Context, opts analyzer.ScanOptions) (*models.RemediationJob, error)
	EnqueueCleanup(ctx context.Context) (*models.RemediationJob, error)
	Status(ctx context.Context, id string) (*models.RemediationJob, error)
	List(ctx context.Context, limit int) ([]*models.RemediationJob, error)
}

type jobAccepted struct {
	JobID string `json:"jobId"`
}

type JobsHandler struct {
	jobs JobService
}

func NewJobsHandler(jobs JobService) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

func (h *JobsHandler) Routes(r chi.Router) {
	r.Get("/jobs", h.List)
	r.Get("/jobs/{jobID}", h.Get)
	r.Post("/scan", h.Scan)
	r.Post("/cleanup", h.Cleanup)
}

func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseStringParam(w, r, "jobID", "Job ID")
	if !ok {
		return
	}

	job, err := h.jobs.Status(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err, "load job")
		return
	}
	RespondJSON(w, http.StatusOK, job)
}

// List returns the most recent jobs, newest first, without their logs.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.List(r.Context(), ParseLimit(r, defaultJobLimit, maxJobLimit))
	if err != nil {
		RespondServiceError(w, err, "list jobs")
		return
	}
	RespondJSON(w, http.StatusOK, jobs)
}

// Scan enqueues a library scan. The body is optional and narrows the scan
// to one series (tvdbId) and, within it, a set of seasons.
func (h *JobsHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var opts analyzer.ScanOptions
	if !DecodeJSONOptional(w, r, &opts) {
		return
	}
	if len(opts.Seasons) > 0 && opts.TvdbID == 0 {
		RespondError(w, http.StatusBadRequest, "seasons require tvdbId")
		return
	}

	job, err := h.jobs.EnqueueScan(r.Context(), opts)
	if err != nil {
		RespondServiceError(w, err, "enqueue scan job")
		return
	}
	RespondJSON(w, http.StatusAccepted, jobAccepted{JobID: job.ID})
}

func (h *JobsHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.EnqueueCleanup(r.Context())
	if err != nil {
		RespondServiceError(w, err, "enqueue cleanup job")
		return
	}
	RespondJSON(w, http.StatusAccepted, jobAccepted{JobID: job.ID})
}
