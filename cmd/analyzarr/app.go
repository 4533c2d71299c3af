// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"io"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/analyzarr/internal/buildinfo"
	"github.com/autobrr/analyzarr/internal/config"
	"github.com/autobrr/analyzarr/internal/database"
	"github.com/autobrr/analyzarr/internal/logger"
	"github.com/autobrr/analyzarr/internal/models"
	"github.com/autobrr/analyzarr/internal/pkg/backoff"
	"github.com/autobrr/analyzarr/internal/services/analyzer"
	"github.com/autobrr/analyzarr/internal/services/matcher"
	"github.com/autobrr/analyzarr/internal/services/resolver"
	"github.com/autobrr/analyzarr/pkg/cooldown"
	"github.com/autobrr/analyzarr/pkg/sonarr"
)

// app holds the components every command needs.
type app struct {
	cfg      *config.AppConfig
	db       *database.DB
	episodes *models.EpisodeStore
	jobs     *models.RemediationJobStore
	sonarr   *sonarr.Client
	resolver *resolver.SonarrResolver
	guard    *cooldown.Guard
	analyzer *analyzer.Service

	logCloser io.Closer
}

func openApp(configPath string) (*app, error) {
	cfg, err := config.New(configPath)
	if err != nil {
		return nil, err
	}

	logCloser := logger.Setup(logger.Options{
		Level:      cfg.Config.LogLevel,
		Path:       cfg.GetLogPath(),
		MaxSizeMB:  cfg.Config.LogMaxSize,
		MaxBackups: cfg.Config.LogMaxBackups,
	})

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	client := sonarr.NewClient(sonarr.Config{
		Host:      cfg.Config.SonarrURL,
		APIKey:    cfg.Config.SonarrAPIKey,
		Timeout:   cfg.Config.SonarrTimeout,
		UserAgent: buildinfo.UserAgent,
	})
	res := resolver.NewSonarr(client, backoff.New(cfg.Config.RetryAttempts, cfg.Config.RetryDelay(), nil))

	episodes := models.NewEpisodeStore(db)
	guard := cooldown.New()
	engine := matcher.NewEngine(cfg.Config.MatchThreshold, cfg.Config.EndMarkers)

	return &app{
		cfg:      cfg,
		db:       db,
		episodes: episodes,
		jobs:     models.NewRemediationJobStore(db),
		sonarr:   client,
		resolver: res,
		guard:    guard,
		analyzer: analyzer.NewService(
			analyzer.ConfigFromDomain(cfg.Config),
			episodes,
			models.NewMismatchStore(db),
			res,
			res,
			engine,
			guard,
		),
		logCloser: logCloser,
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
	_ = a.logCloser.Close()
}
