// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequireAPIKey(t *testing.T) {
	t.Parallel()

	handler := APIKeyFromQuery("apikey")(RequireAPIKey("secret")(okHandler))

	tests := []struct {
		name   string
		url    string
		header string
		want   int
	}{
		{name: "header", url: "/api/stats", header: "secret", want: http.StatusOK},
		{name: "query param", url: "/api/stats?apikey=secret", want: http.StatusOK},
		{name: "missing", url: "/api/stats", want: http.StatusUnauthorized},
		{name: "wrong", url: "/api/stats", header: "nope", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequireAPIKeyDisabled(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	RequireAPIKey("")(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCompressPrefersBrotli(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat(`{"line":"[2026-01-01 10:00:00] find release failed"}`, 200)
	handler := Compress(5)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, payload)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/1", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, "br", rec.Header().Get("Content-Encoding"))
	body, err := io.ReadAll(brotli.NewReader(rec.Body))
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))
}
