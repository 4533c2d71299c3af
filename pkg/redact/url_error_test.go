// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package redact

import (
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantContain []string
		wantNotHave []string
	}{
		{
			name: "tmdb api_key",
			err: &url.Error{
				Op:  "Get",
				URL: "https://api.themoviedb.org/3/search/tv?api_key=SECRETKEY&query=show",
				Err: errors.New("connection refused"),
			},
			wantContain: []string{"api_key=REDACTED", "query=show", "connection refused"},
			wantNotHave: []string{"SECRETKEY"},
		},
		{
			name: "sonarr apikey",
			err: &url.Error{
				Op:  "Get",
				URL: "http://localhost:8989/api/v3/series?apikey=SECRET123",
				Err: errors.New("timeout"),
			},
			wantContain: []string{"apikey=REDACTED", "timeout"},
			wantNotHave: []string{"SECRET123"},
		},
		{
			name: "multiple sensitive params",
			err: &url.Error{
				Op:  "Get",
				URL: "http://x.com?apikey=KEY1&passkey=KEY2&token=KEY3&password=KEY4",
				Err: errors.New("error"),
			},
			wantContain: []string{"apikey=REDACTED", "passkey=REDACTED", "token=REDACTED", "password=REDACTED"},
			wantNotHave: []string{"KEY1", "KEY2", "KEY3", "KEY4"},
		},
		{
			name:        "non-url error unchanged",
			err:         errors.New("simple error"),
			wantContain: []string{"simple error"},
		},
		{
			name:        "wrapped url error",
			err:         fmt.Errorf("wrapped: %w", &url.Error{Op: "Get", URL: "http://x.com?apikey=SECRET", Err: errors.New("fail")}),
			wantContain: []string{"REDACTED", "fail"},
			wantNotHave: []string{"SECRET"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := URLError(tt.err).Error()
			for _, want := range tt.wantContain {
				assert.Contains(t, got, want)
			}
			for _, notWant := range tt.wantNotHave {
				assert.NotContains(t, got, notWant)
			}
		})
	}
}

func TestURLError_Nil(t *testing.T) {
	assert.NoError(t, URLError(nil))
}

func TestURLError_PreservesErrorType(t *testing.T) {
	inner := errors.New("connection refused")
	result := URLError(&url.Error{Op: "Get", URL: "http://x.com?apikey=SECRET", Err: inner})

	var urlErr *url.Error
	require.ErrorAs(t, result, &urlErr)
	assert.Equal(t, "Get", urlErr.Op)
	assert.NotContains(t, urlErr.URL, "SECRET")
	assert.ErrorIs(t, result, inner)
}

func TestURL_NoCredentials(t *testing.T) {
	raw := "http://localhost:8989/api/v3/episode?seriesId=4"
	assert.Equal(t, raw, URL(raw))
}
