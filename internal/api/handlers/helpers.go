// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/analyzarr/internal/domain"
	"github.com/autobrr/analyzarr/internal/models"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ConflictResponse is returned when a job is already active for an episode.
type ConflictResponse struct {
	Error       string `json:"error"`
	ActiveJobID string `json:"activeJobId,omitempty"`
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{
		Error: message,
	})
}

// RespondServiceError maps a store or service error onto an HTTP status.
// Unknown errors are logged and reported as "Failed to <action>".
func RespondServiceError(w http.ResponseWriter, err error, action string) {
	var conflict *models.ConflictError

	switch {
	case errors.As(err, &conflict):
		RespondJSON(w, http.StatusConflict, ConflictResponse{
			Error:       domain.ErrConcurrencyConflict.Error(),
			ActiveJobID: conflict.ActiveJobID,
		})
	case errors.Is(err, domain.ErrConcurrencyConflict):
		RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrProtectedTag):
		RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrClassificationIndeterminate):
		RespondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrExternalService):
		log.Warn().Err(err).Str("action", action).Msg("External service failed")
		RespondError(w, http.StatusBadGateway, err.Error())
	default:
		log.Error().Err(err).Str("action", action).Msg("Request failed")
		RespondError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

// DecodeJSON decodes the request body into the provided struct.
// Returns false if decoding fails (error already sent to client).
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// DecodeJSONOptional decodes the request body into the provided struct.
// Returns true if decoding succeeds or body is empty (io.EOF).
// Returns false only on actual decode errors (error already sent to client).
func DecodeJSONOptional[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil && err != io.EOF {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// ParseStringParam extracts, unescapes and trims a URL parameter.
// Returns the value and true on success, or empty string and false if missing (error already sent).
// The displayName is used in error messages (e.g., "episode key" for user-friendly output).
func ParseStringParam(w http.ResponseWriter, r *http.Request, paramName, displayName string) (string, bool) {
	raw := chi.URLParam(r, paramName)
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		RespondError(w, http.StatusBadRequest, displayName+" is required")
		return "", false
	}
	return value, true
}

// ParseEpisodeKey extracts the episode key from URL parameters.
func ParseEpisodeKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	return ParseStringParam(w, r, "key", "Episode key")
}

// ParseLimit reads the limit query parameter. Invalid values fall back to
// defaultLimit and values above maxLimit are capped.
func ParseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}

	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return defaultLimit
	}
	return min(parsed, maxLimit)
}
