// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDatabasePathConfiguration(t *testing.T) {
	tests := []struct {
		name           string
		config         func(dir string) string
		envVars        map[string]string
		expectedDBPath func(dir string) string
	}{
		{
			name: "default_behavior_db_next_to_config",
			config: func(string) string {
				return `
host = "localhost"
logLevel = "INFO"
`
			},
			expectedDBPath: func(dir string) string { return filepath.Join(dir, "analyzarr.db") },
		},
		{
			name: "data_dir",
			config: func(dir string) string {
				return `dataDir = "` + filepath.Join(dir, "data") + `"`
			},
			expectedDBPath: func(dir string) string { return filepath.Join(dir, "data", "analyzarr.db") },
		},
		{
			name: "explicit_path_in_config",
			config: func(dir string) string {
				return `databasePath = "` + filepath.Join(dir, "custom.db") + `"`
			},
			expectedDBPath: func(dir string) string { return filepath.Join(dir, "custom.db") },
		},
		{
			name: "env_var_overrides_config",
			config: func(string) string {
				return `databasePath = "/original/path.db"`
			},
			envVars: map[string]string{
				"ANALYZARR__DATABASE_PATH": "/override/path.db",
			},
			expectedDBPath: func(string) string { return "/override/path.db" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeConfig(t, dir, tt.config(dir))
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := New(path)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedDBPath(dir), cfg.GetDatabasePath())
		})
	}
}

func TestNewCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := New(dir)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Config.MatchThreshold)
	assert.Equal(t, 3, cfg.Config.MaxAttempts)
	assert.Equal(t, 300*time.Second, cfg.Config.CooldownDuration())
	assert.False(t, cfg.Config.AutoRemediate)
	assert.Contains(t, cfg.Config.EndMarkers, "1080p")
	assert.Contains(t, cfg.Config.EndMarkers, "asmofuscated")
}

func TestEngineSettingsFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
matchThreshold = 0.7
maxAttempts = 5
endMarkers = ["WEB", "x265"]
watchPaths = ["/media/tv"]
`)
	t.Setenv("ANALYZARR__SONARR_API_KEY", "secret")
	t.Setenv("ANALYZARR__COOLDOWN_WINDOW", "60")
	t.Setenv("ANALYZARR__AUTO_REMEDIATE", "true")

	cfg, err := New(path)
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.Config.MatchThreshold)
	assert.Equal(t, 5, cfg.Config.MaxAttempts)
	assert.Equal(t, []string{"web", "x265"}, cfg.Config.EndMarkers)
	assert.Equal(t, []string{"/media/tv"}, cfg.Config.WatchPaths)
	assert.Equal(t, "secret", cfg.Config.SonarrAPIKey)
	assert.Equal(t, 60, cfg.Config.CooldownWindow)
	assert.True(t, cfg.Config.AutoRemediate)
}

func TestInvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `matchThreshold = 2.0`)

	_, err := New(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matchThreshold")
}

func TestGetDefaultConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/config")
	assert.Equal(t, "/config", getDefaultConfigDir())

	t.Setenv("XDG_CONFIG_HOME", "/home/user/.config")
	assert.Equal(t, filepath.Join("/home/user/.config", "analyzarr"), getDefaultConfigDir())
}

func TestEnvName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "SONARR_API_KEY", envName("sonarrApiKey"))
	assert.Equal(t, "DATABASE_PATH", envName("databasePath"))
	assert.Equal(t, "HOST", envName("host"))
}
