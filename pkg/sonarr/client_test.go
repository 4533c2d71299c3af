// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sonarr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{Host: srv.URL + "/", APIKey: "secret", Version: "1.2.3"})
}

func TestListEpisodes(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/episode", r.URL.Path)
		assert.Equal(t, "12", r.URL.Query().Get("seriesId"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "analyzarr/1.2.3", r.Header.Get("User-Agent"))

		_ = json.NewEncoder(w).Encode([]Episode{
			{ID: 100, SeriesID: 12, EpisodeFileID: 7, SeasonNumber: 1, EpisodeNumber: 2, Title: "The Long Way Round", HasFile: true},
		})
	})

	episodes, err := client.ListEpisodes(context.Background(), 12)
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, "The Long Way Round", episodes[0].Title)
	assert.Equal(t, 7, episodes[0].EpisodeFileID)
}

func TestSearchEpisodes(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/command", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload struct {
			Name       string `json:"name"`
			EpisodeIDs []int  `json:"episodeIds"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "EpisodeSearch", payload.Name)
		assert.Equal(t, []int{100}, payload.EpisodeIDs)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Command{ID: 5, Name: "EpisodeSearch", Status: "queued"})
	})

	cmd, err := client.SearchEpisodes(context.Background(), []int{100})
	require.NoError(t, err)
	assert.Equal(t, 5, cmd.ID)

	_, err = client.SearchEpisodes(context.Background(), nil)
	require.Error(t, err)
}

func TestDeleteEpisodeFile(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v3/episodefile/7", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.DeleteEpisodeFile(context.Background(), 7))
}

func TestStatusErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		notFound  bool
		retryable bool
	}{
		{name: "not found", status: http.StatusNotFound, notFound: true},
		{name: "unauthorized", status: http.StatusUnauthorized},
		{name: "server error", status: http.StatusBadGateway, retryable: true},
		{name: "rate limited", status: http.StatusTooManyRequests, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			_, err := client.GetEpisode(context.Background(), 1)
			require.Error(t, err)

			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, "nope", statusErr.Body)
			assert.Equal(t, tt.notFound, errors.Is(err, ErrNotFound))
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestTransportErrorIsRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewClient(Config{Host: srv.URL})
	_, err := client.ListSeries(context.Background())
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(nil))
}

func TestParse(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/parse", r.URL.Path)
		assert.Equal(t, "The.Show.S01E02-GRP", r.URL.Query().Get("title"))
		_, _ = w.Write([]byte(`{"title":"The.Show.S01E02-GRP","series":{"id":12,"title":"The Show"},"episodes":[{"id":100,"seasonNumber":1,"episodeNumber":2}]}`))
	})

	res, err := client.Parse(context.Background(), "The.Show.S01E02-GRP")
	require.NoError(t, err)
	require.NotNil(t, res.Series)
	assert.Equal(t, 12, res.Series.ID)
	require.Len(t, res.Episodes, 1)
	assert.Equal(t, 100, res.Episodes[0].ID)
}
