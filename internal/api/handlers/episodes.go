// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/analyzarr/internal/models"
	"github.com/autobrr/analyzarr/internal/services/analyzer"
	"github.com/autobrr/analyzarr/internal/services/resolver"
)

// EpisodeStore is the part of the episode store exposed over the API.
type EpisodeStore interface {
	Stats(ctx context.Context) (*models.LibraryStats, error)
	ListBySeries(ctx context.Context, seriesTitle string) ([]*models.Episode, error)
	Get(ctx context.Context, key string) (*models.Episode, error)
	Purge(ctx context.Context, key string) error
	PurgeSeries(ctx context.Context, seriesTitle string) (int64, error)
	AddTag(ctx context.Context, key, tag string) ([]string, error)
	RemoveTag(ctx context.Context, key, tag string) ([]string, error)
	Override(ctx context.Context, key, actor, reason string) (*models.Episode, error)
	OverrideHistory(ctx context.Context, key string) ([]*models.OverrideAudit, error)
}

// Inspector classifies a name without persisting anything.
type Inspector interface {
	Inspect(ctx context.Context, name string, r resolver.Resolver) (*analyzer.Inspection, error)
}

type EpisodesHandler struct {
	store     EpisodeStore
	jobs      JobService
	inspector Inspector
}

func NewEpisodesHandler(store EpisodeStore, jobs JobService, inspector Inspector) *EpisodesHandler {
	return &EpisodesHandler{
		store:     store,
		jobs:      jobs,
		inspector: inspector,
	}
}

func (h *EpisodesHandler) Routes(r chi.Router) {
	r.Get("/stats", h.Stats)
	r.Post("/inspect", h.Inspect)

	r.Route("/series/{title}", func(r chi.Router) {
		r.Get("/episodes", h.ListSeries)
		r.Delete("/", h.PurgeSeries)
	})

	r.Route("/episodes/{key}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Purge)
		r.Post("/tags", h.AddTag)
		r.Delete("/tags/{tag}", h.RemoveTag)
		r.Post("/override", h.Override)
		r.Get("/overrides", h.OverrideHistory)
		r.Post("/replace", h.Replace)
	})
}

// Stats returns library totals with a per-series breakdown.
func (h *EpisodesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		RespondServiceError(w, err, "load stats")
		return
	}
	RespondJSON(w, http.StatusOK, stats)
}

func (h *EpisodesHandler) ListSeries(w http.ResponseWriter, r *http.Request) {
	title, ok := ParseStringParam(w, r, "title", "Series title")
	if !ok {
		return
	}

	episodes, err := h.store.ListBySeries(r.Context(), title)
	if err != nil {
		RespondServiceError(w, err, "list episodes")
		return
	}
	RespondJSON(w, http.StatusOK, episodes)
}

func (h *EpisodesHandler) PurgeSeries(w http.ResponseWriter, r *http.Request) {
	title, ok := ParseStringParam(w, r, "title", "Series title")
	if !ok {
		return
	}

	purged, err := h.store.PurgeSeries(r.Context(), title)
	if err != nil {
		RespondServiceError(w, err, "purge series")
		return
	}

	log.Info().Str("series", title).Int64("purged", purged).Msg("Purged series records")
	RespondJSON(w, http.StatusOK, map[string]int64{"purged": purged})
}

func (h *EpisodesHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, ok := ParseEpisodeKey(w, r)
	if !ok {
		return
	}

	ep, err := h.store.Get(r.Context(), key)
	if err != nil {
		RespondServiceError(w, err, "load episode")
		return
	}
	RespondJSON(w, http.StatusOK, ep)
}

func (h *EpisodesHandler) Purge(w http.ResponseWriter, r *http.Request) {
	key, ok := ParseEpisodeKey(w, r)
	if !ok {
		return
	}

	if err := h.store.Purge(r.Context(), key); err != nil {
		RespondServiceError(w, err, "purge episode")
		return
	}

	log.Info().Str("episodeKey", key).Msg("Purged episode record")
	w.WriteHeader(http.StatusNoContent)
}

type tagRequest struct {
	Tag string `json:"tag"`
}

type tagsResponse struct {
	Tags []string `json:"tags"`
}

func (h *EpisodesHandler) AddTag(w http.ResponseWriter, r *http.Request) {
	key, ok := ParseEpisodeKey(w, r)
	if !ok {
		return
	}

	var req tagRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.Tag = strings.TrimSpace(req.Tag)
	if req.Tag == "" {
		RespondError(w, http.StatusBadRequest, "Tag is required")
		return
	}

	tags, err := h.store.AddTag(r.Context(), key, req.Tag)
	if err != nil {
		RespondServiceError(w, err, "add tag")
		return
	}
	RespondJSON(w, http.StatusOK, tagsResponse{Tags: tags})
}

func (h *EpisodesHandler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	key, ok := ParseEpisodeKey(w, r)
	if !ok {
		return
	}
	tag, ok := ParseStringParam(w, r, "tag", "Tag")
	if !ok {
		return
	}

	tags, err := h.store.RemoveTag(r.Context(), key, tag)
	if err != nil {
		RespondServiceError(w, err, "remove tag")
		return
	}
	RespondJSON(w, http.StatusOK, tagsResponse{Tags: tags})
}

type overrideRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// Override marks an episode as verified by a human.
func (h *EpisodesHandler) Override(w http.ResponseWriter, r *http.Request) {
	key, ok := ParseEpisodeKey(w, r)
	if !ok {
		return
	}

	var req overrideRequest
	if !DecodeJSONOptional(w, r, &req) {
		return
	}
	req.Actor = strings.TrimSpace(req.Actor)
	if req.Actor == "" {
		req.Actor = "api"
	}

	ep, err := h.store.Override(r.Context(), key, req.Actor, strings.TrimSpace(req.Reason))
	if err != nil {
		RespondServiceError(w, err, "override episode")
		return
	}

	log.Info().Str("episodeKey", key).Str("actor", req.Actor).Msg("Episode overridden")
	RespondJSON(w, http.StatusOK, ep)
}

func (h *EpisodesHandler) OverrideHistory(w http.ResponseWriter, r *http.Request) {
	key, ok := ParseEpisodeKey(w, r)
	if !ok {
		return
	}

	history, err := h.store.OverrideHistory(r.Context(), key)
	if err != nil {
		RespondServiceError(w, err, "load override history")
		return
	}
	RespondJSON(w, http.StatusOK, history)
}

// Replace enqueues a replace job. A job already active for the episode is
// reported as 409 with its id.
func (h *EpisodesHandler) Replace(w http.ResponseWriter, r *http.Request) {
	key, ok := ParseEpisodeKey(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.EnqueueReplace(r.Context(), key)
	if err != nil {
		RespondServiceError(w, err, "enqueue replace job")
		return
	}
	RespondJSON(w, http.StatusAccepted, jobAccepted{JobID: job.ID})
}

type inspectRequest struct {
	Name string `json:"name"`
}

// Inspect returns the decision for a file or release name without storing it.
func (h *EpisodesHandler) Inspect(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		RespondError(w, http.StatusNotImplemented, "Inspection is not available")
		return
	}

	var req inspectRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		RespondError(w, http.StatusBadRequest, "Name is required")
		return
	}

	inspection, err := h.inspector.Inspect(r.Context(), req.Name, nil)
	if err != nil {
		RespondServiceError(w, err, "inspect name")
		return
	}
	RespondJSON(w, http.StatusOK, inspection)
}
