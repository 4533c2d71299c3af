// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		MatchThreshold: 0.5,
		MaxAttempts:    3,
		CooldownWindow: 300,
		JobWorkers:     2,
		RetryAttempts:  4,
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("accepts defaults", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("rejects threshold outside unit interval", func(t *testing.T) {
		cfg := validConfig()
		cfg.MatchThreshold = 1.5

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "matchThreshold")
	})

	t.Run("reports every invalid field", func(t *testing.T) {
		cfg := validConfig()
		cfg.MaxAttempts = 0
		cfg.JobWorkers = 0

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "maxAttempts")
		assert.Contains(t, err.Error(), "jobWorkers")
	})
}

func TestConfigDurations(t *testing.T) {
	cfg := validConfig()
	cfg.WatchSettleMillis = 0
	cfg.RecheckDelay = 10

	assert.Equal(t, 300*time.Second, cfg.CooldownDuration())
	assert.Equal(t, 2*time.Second, cfg.SettleDuration())
	assert.Equal(t, 10*time.Second, cfg.RecheckDuration())
}

func TestNormalizedEndMarkers(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, DefaultEndMarkers, cfg.NormalizedEndMarkers())

	cfg.EndMarkers = []string{" WEB ", "", "X265"}
	assert.Equal(t, []string{"web", "x265"}, cfg.NormalizedEndMarkers())
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.SonarrAPIKey = "abcdef"

	redacted := cfg.Redacted()
	assert.Equal(t, "******", redacted.SonarrAPIKey)
	assert.True(t, IsRedactedValue(redacted.SonarrAPIKey))
	assert.Equal(t, "abcdef", cfg.SonarrAPIKey)
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	var err error = &ProtectedTagError{Tag: TagOverride}
	assert.ErrorIs(t, err, ErrProtectedTag)
	assert.ErrorIs(t, fmt.Errorf("add tag: %w", err), ErrProtectedTag)

	cause := errors.New("connection refused")
	ext := &ExternalServiceError{Op: "deleteFile", Err: cause}
	assert.ErrorIs(t, ext, ErrExternalService)
	assert.ErrorIs(t, ext, cause)

	var target *ExternalServiceError
	require.ErrorAs(t, fmt.Errorf("job: %w", ext), &target)
	assert.Equal(t, "deleteFile", target.Op)

	for _, tag := range []string{TagMatched, TagProblematic, TagOverride} {
		assert.True(t, IsProtectedTag(tag), tag)
	}
	for _, tag := range []string{"Matched", "OVERRIDE", "Problematic-Episode", " matched "} {
		assert.True(t, IsProtectedTag(tag), tag)
	}
	assert.False(t, IsProtectedTag("favourite"))
	assert.False(t, IsProtectedTag("matched-later"))
}
