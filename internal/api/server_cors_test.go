// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCORSPreflight(t *testing.T) {
	deps := newTestDependencies(t)
	deps.Config.Config.APIKey = "secret"

	router, err := NewServer(deps).Handler()
	require.NoError(t, err)

	tests := []struct {
		name        string
		path        string
		method      string
		reqHeaders  string
		wantHeaders []string
	}{
		{name: "stats without key", path: "/api/stats", method: http.MethodGet},
		{name: "replace job", path: "/api/episodes/show%7CS01E01/replace", method: http.MethodPost, reqHeaders: "content-type", wantHeaders: []string{"content-type"}},
		{name: "api key header", path: "/api/jobs", method: http.MethodGet, reqHeaders: "x-api-key", wantHeaders: []string{"x-api-key"}},
		{name: "proxy header", path: "/api/stats", method: http.MethodGet, reqHeaders: "x-requested-with", wantHeaders: []string{"x-requested-with"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, tt.path, nil)
			req.Header.Set("Origin", "https://dashboard.example.com")
			req.Header.Set("Access-Control-Request-Method", tt.method)
			if tt.reqHeaders != "" {
				req.Header.Set("Access-Control-Request-Headers", tt.reqHeaders)
			}

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, "https://dashboard.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

			allowed := strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers"))
			for _, h := range tt.wantHeaders {
				assert.Contains(t, allowed, h)
			}
		})
	}
}
