// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultEndMarkers are the tokens that terminate a title inside a scene name.
var DefaultEndMarkers = []string{
	"1080p", "720p", "2160p", "480p", "remux", "hdtv", "dts", "ddp51", "ac3",
	"vc1", "x264", "h264", "hevc", "nf", "dsnp", "btn", "kenobi", "asmofuscated",
}

// Config represents the application configuration
type Config struct {
	Version        string
	Host           string `toml:"host" mapstructure:"host"`
	Port           int    `toml:"port" mapstructure:"port"`
	BaseURL        string `toml:"baseUrl" mapstructure:"baseUrl"`
	LogLevel       string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath        string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize     int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups  int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir        string `toml:"dataDir" mapstructure:"dataDir"`
	DatabasePath   string `toml:"databasePath" mapstructure:"databasePath"`
	MetricsEnabled bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`

	// APIKey, when set, is required in the X-API-Key header (or the apikey
	// query parameter) of every /api request.
	APIKey string `toml:"apiKey" mapstructure:"apiKey"`

	SonarrURL     string `toml:"sonarrUrl" mapstructure:"sonarrUrl"`
	SonarrAPIKey  string `toml:"sonarrApiKey" mapstructure:"sonarrApiKey"`
	SonarrTimeout int    `toml:"sonarrTimeout" mapstructure:"sonarrTimeout"`

	TMDBAPIKey   string `toml:"tmdbApiKey" mapstructure:"tmdbApiKey"`
	TMDBBaseURL  string `toml:"tmdbBaseUrl" mapstructure:"tmdbBaseUrl"`
	TMDBLanguage string `toml:"tmdbLanguage" mapstructure:"tmdbLanguage"`

	WatchPaths        []string `toml:"watchPaths" mapstructure:"watchPaths"`
	WatchSettleMillis int      `toml:"watchSettleMillis" mapstructure:"watchSettleMillis"`

	// CooldownWindow is the minimum number of seconds between two accepted
	// triggers for the same originating download.
	CooldownWindow int      `toml:"cooldownWindow" mapstructure:"cooldownWindow"`
	MatchThreshold float64  `toml:"matchThreshold" mapstructure:"matchThreshold"`
	MaxAttempts    int      `toml:"maxAttempts" mapstructure:"maxAttempts"`
	EndMarkers     []string `toml:"endMarkers" mapstructure:"endMarkers"`

	// AutoRemediate lets the analyzer enqueue replace jobs on its own. When
	// disabled, episodes are still classified but jobs are only created on
	// explicit request.
	AutoRemediate bool `toml:"autoRemediate" mapstructure:"autoRemediate"`
	// DryRun makes replace jobs walk through every step without deleting
	// files or triggering searches.
	DryRun bool `toml:"dryRun" mapstructure:"dryRun"`

	JobWorkers       int `toml:"jobWorkers" mapstructure:"jobWorkers"`
	RetryAttempts    int `toml:"retryAttempts" mapstructure:"retryAttempts"`
	RetryDelayMillis int `toml:"retryDelayMillis" mapstructure:"retryDelayMillis"`
	RecheckDelay     int `toml:"recheckDelay" mapstructure:"recheckDelay"`
	ScanConcurrency  int `toml:"scanConcurrency" mapstructure:"scanConcurrency"`

	MovieCategory string `toml:"movieCategory" mapstructure:"movieCategory"`
}

// Validate checks the values the matching engine and job orchestrator depend on.
func (c *Config) Validate() error {
	var errs []error

	if c.MatchThreshold < 0 || c.MatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("matchThreshold must be within [0,1], got %v", c.MatchThreshold))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("maxAttempts must be >= 1, got %d", c.MaxAttempts))
	}
	if c.CooldownWindow < 0 {
		errs = append(errs, fmt.Errorf("cooldownWindow must be >= 0, got %d", c.CooldownWindow))
	}
	if c.JobWorkers < 1 {
		errs = append(errs, fmt.Errorf("jobWorkers must be >= 1, got %d", c.JobWorkers))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("retryAttempts must be >= 1, got %d", c.RetryAttempts))
	}

	return errors.Join(errs...)
}

// CooldownDuration returns the cooldown window as a duration.
func (c *Config) CooldownDuration() time.Duration {
	return time.Duration(c.CooldownWindow) * time.Second
}

// SettleDuration returns how long filesystem events for one download are
// coalesced before they are handed to the analyzer.
func (c *Config) SettleDuration() time.Duration {
	if c.WatchSettleMillis <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.WatchSettleMillis) * time.Millisecond
}

// RetryDelay returns the initial backoff delay for external calls.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMillis) * time.Millisecond
}

// RecheckDuration returns the delay between a finished replace job and the
// follow-up analysis of the episode.
func (c *Config) RecheckDuration() time.Duration {
	return time.Duration(c.RecheckDelay) * time.Second
}

// NormalizedEndMarkers returns the configured end markers lowercased and
// trimmed, falling back to DefaultEndMarkers when none are set.
func (c *Config) NormalizedEndMarkers() []string {
	src := c.EndMarkers
	if len(src) == 0 {
		src = DefaultEndMarkers
	}

	out := make([]string, 0, len(src))
	for _, m := range src {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

// Redacted returns a copy that is safe to expose over the API.
func (c *Config) Redacted() Config {
	cp := *c
	cp.SonarrAPIKey = RedactString(c.SonarrAPIKey)
	cp.TMDBAPIKey = RedactString(c.TMDBAPIKey)
	cp.APIKey = RedactString(c.APIKey)
	return cp
}
