// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"unicode"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/autobrr/analyzarr/internal/domain"
)

const (
	envPrefix      = "ANALYZARR__"
	configFileName = "config.toml"
	databaseName   = "analyzarr.db"
)

// AppConfig wraps the loaded configuration together with the viper instance
// and the location it was read from.
type AppConfig struct {
	Config *domain.Config

	viper     *viper.Viper
	configDir string
}

// keys lists every configuration key that can be overridden by environment.
var keys = []string{
	"host", "port", "baseUrl",
	"logLevel", "logPath", "logMaxSize", "logMaxBackups",
	"dataDir", "databasePath", "metricsEnabled", "apiKey",
	"sonarrUrl", "sonarrApiKey", "sonarrTimeout",
	"tmdbApiKey", "tmdbBaseUrl", "tmdbLanguage",
	"watchPaths", "watchSettleMillis",
	"cooldownWindow", "matchThreshold", "maxAttempts", "endMarkers",
	"autoRemediate", "dryRun",
	"jobWorkers", "retryAttempts", "retryDelayMillis", "recheckDelay", "scanConcurrency",
	"movieCategory",
}

// New loads configuration from configPath. configPath may point at a file or
// at a directory containing config.toml; an empty path uses the default
// config directory. A commented default config is written when none exists.
func New(configPath string) (*AppConfig, error) {
	file, err := resolveConfigFile(configPath)
	if err != nil {
		return nil, err
	}

	c := &AppConfig{
		viper:     viper.New(),
		configDir: filepath.Dir(file),
	}

	c.defaults()

	if err := ensureConfigFile(file); err != nil {
		return nil, err
	}

	c.viper.SetConfigFile(file)
	c.viper.SetConfigType("toml")
	if err := c.viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", file, err)
	}

	for _, key := range keys {
		if err := c.viper.BindEnv(key, envPrefix+envName(key)); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	var cfg domain.Config
	if err := c.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.EndMarkers = cfg.NormalizedEndMarkers()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c.Config = &cfg
	log.Debug().Str("path", file).Msg("Configuration loaded")

	return c, nil
}

func (c *AppConfig) defaults() {
	v := c.viper
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 7480)
	v.SetDefault("baseUrl", "/")
	v.SetDefault("logLevel", "INFO")
	v.SetDefault("logPath", "")
	v.SetDefault("logMaxSize", 50)
	v.SetDefault("logMaxBackups", 3)
	v.SetDefault("dataDir", "")
	v.SetDefault("databasePath", "")
	v.SetDefault("metricsEnabled", false)
	v.SetDefault("apiKey", "")
	v.SetDefault("sonarrUrl", "http://localhost:8989")
	v.SetDefault("sonarrApiKey", "")
	v.SetDefault("sonarrTimeout", 10)
	v.SetDefault("tmdbApiKey", "")
	v.SetDefault("tmdbBaseUrl", "https://api.themoviedb.org/3")
	v.SetDefault("tmdbLanguage", "en-US")
	v.SetDefault("watchPaths", []string{})
	v.SetDefault("watchSettleMillis", 2000)
	v.SetDefault("cooldownWindow", 300)
	v.SetDefault("matchThreshold", 0.5)
	v.SetDefault("maxAttempts", 3)
	v.SetDefault("endMarkers", domain.DefaultEndMarkers)
	v.SetDefault("autoRemediate", false)
	v.SetDefault("dryRun", false)
	v.SetDefault("jobWorkers", 2)
	v.SetDefault("retryAttempts", 4)
	v.SetDefault("retryDelayMillis", 500)
	v.SetDefault("recheckDelay", 600)
	v.SetDefault("scanConcurrency", 4)
	v.SetDefault("movieCategory", "movies")
}

// GetDatabasePath returns the SQLite database location. An explicit
// databasePath wins, then dataDir, then the directory holding config.toml.
func (c *AppConfig) GetDatabasePath() string {
	if p := strings.TrimSpace(c.Config.DatabasePath); p != "" {
		return p
	}
	if dir := strings.TrimSpace(c.Config.DataDir); dir != "" {
		return filepath.Join(dir, databaseName)
	}
	return filepath.Join(c.configDir, databaseName)
}

// GetLogPath resolves a relative logPath against the config directory.
func (c *AppConfig) GetLogPath() string {
	p := strings.TrimSpace(c.Config.LogPath)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.configDir, p)
}

// ConfigDir returns the directory config.toml was loaded from.
func (c *AppConfig) ConfigDir() string {
	return c.configDir
}

func resolveConfigFile(configPath string) (string, error) {
	if configPath == "" {
		return filepath.Join(getDefaultConfigDir(), configFileName), nil
	}

	if strings.HasSuffix(strings.ToLower(configPath), ".toml") {
		return configPath, nil
	}

	info, err := os.Stat(configPath)
	switch {
	case err == nil && info.IsDir():
		return filepath.Join(configPath, configFileName), nil
	case err == nil:
		return configPath, nil
	case errors.Is(err, os.ErrNotExist):
		return filepath.Join(configPath, configFileName), nil
	default:
		return "", fmt.Errorf("stat config path %s: %w", configPath, err)
	}
}

// getDefaultConfigDir honours XDG_CONFIG_HOME. Containers set it to /config,
// which is used as-is.
func getDefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		if xdg == "/config" {
			return xdg
		}
		return filepath.Join(xdg, "analyzarr")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "analyzarr")
}

// envName converts a camelCase key to its SCREAMING_SNAKE form, e.g.
// sonarrApiKey -> SONARR_API_KEY.
func envName(key string) string {
	var b strings.Builder
	for i, r := range key {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, map[string]any{
		"EndMarkers": `"` + strings.Join(domain.DefaultEndMarkers, `", "`) + `"`,
	}); err != nil {
		return fmt.Errorf("render default config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	log.Info().Str("path", path).Msg("Created default config file")
	return nil
}

var configTemplate = template.Must(template.New("config").Parse(`# config.toml - Auto-generated on first run

# Hostname / IP
# Default: "localhost"
host = "localhost"

# Port
# Default: 7480
port = 7480

# Log file path
# If not defined, logs to stdout
# Optional
#logPath = "log/analyzarr.log"

# Log rotation
# Maximum log file size in megabytes before rotation
# Default: 50
#logMaxSize = 50

# Number of rotated log files to retain (0 keeps all)
# Default: 3
#logMaxBackups = 3

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "INFO"

# API key required by /api requests (X-API-Key header or ?apikey=)
# Optional
#apiKey = ""

# Sonarr connection
sonarrUrl = "http://localhost:8989"
#sonarrApiKey = ""

# Directories to watch for new or replaced episode files
#watchPaths = ["/media/tv"]

# Seconds between two accepted triggers for the same download
# Default: 300
#cooldownWindow = 300

# Confidence at or above which an episode counts as matched
# Default: 0.5
#matchThreshold = 0.5

# Failed analysis passes before an episode is flagged problematic-episode
# Default: 3
#maxAttempts = 3

# Tokens that end a title inside a scene name
#endMarkers = [{{ .EndMarkers }}]

# Enqueue replace jobs automatically for mismatched episodes
# Default: false
#autoRemediate = false

# Walk replace jobs without deleting files or triggering searches
# Default: false
#dryRun = false
`))
