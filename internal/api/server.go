// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/analyzarr/internal/api/handlers"
	"github.com/autobrr/analyzarr/internal/api/middleware"
	"github.com/autobrr/analyzarr/internal/buildinfo"
	"github.com/autobrr/analyzarr/internal/config"
	"github.com/autobrr/analyzarr/internal/database"
	"github.com/autobrr/analyzarr/internal/metrics"
	"github.com/autobrr/analyzarr/pkg/httphelpers"
)

// Dependencies are the services the HTTP surface delegates to. DB, Inspector
// and Metrics are optional.
type Dependencies struct {
	Config    *config.AppConfig
	DB        *database.DB
	Episodes  handlers.EpisodeStore
	Jobs      handlers.JobService
	Inspector handlers.Inspector
	Metrics   *metrics.Manager
}

type Server struct {
	server *http.Server
	logger zerolog.Logger
	config *config.AppConfig
	deps   *Dependencies
}

func NewServer(deps *Dependencies) *Server {
	return &Server{
		server: &http.Server{
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       180 * time.Second,
		},
		logger: log.Logger.With().Str("module", "api").Logger(),
		config: deps.Config,
		deps:   deps,
	}
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.config.Config.Host, strconv.Itoa(s.config.Config.Port))
	s.server.Addr = addr
	s.server.Handler = handler

	s.logger.Info().
		Str("addr", addr).
		Str("baseUrl", httphelpers.JoinBasePath(httphelpers.NormalizeBasePath(s.config.Config.BaseURL), "")).
		Bool("apiKey", s.config.Config.APIKey != "").
		Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() (*chi.Mux, error) {
	if s.deps.Episodes == nil || s.deps.Jobs == nil {
		return nil, errors.New("api: episode store and job service are required")
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(cors.New(cors.Options{
		AllowOriginFunc:  func(string) bool { return true },
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	r.Use(middleware.Compress(5))

	base := httphelpers.NormalizeBasePath(s.config.Config.BaseURL)
	if base == "" {
		s.routes(r)
		return r, nil
	}

	r.Route(base, s.routes)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, httphelpers.JoinBasePath(base, "/"), http.StatusTemporaryRedirect)
	})
	return r, nil
}

func (s *Server) routes(r chi.Router) {
	var checks []handlers.ReadinessCheck
	if s.deps.DB != nil {
		checks = append(checks, func(ctx context.Context) error {
			return s.deps.DB.Conn().PingContext(ctx)
		})
	}
	r.Route("/health", handlers.NewHealthHandler(checks...).Routes)

	authenticated := func(r chi.Router) {
		r.Use(middleware.APIKeyFromQuery("apikey"))
		r.Use(middleware.RequireAPIKey(s.config.Config.APIKey))
	}

	r.Route("/api", func(r chi.Router) {
		authenticated(r)
		r.Use(middleware.ThrottleBacklog(32, 256, 30*time.Second))

		handlers.NewEpisodesHandler(s.deps.Episodes, s.deps.Jobs, s.deps.Inspector).Routes(r)
		handlers.NewJobsHandler(s.deps.Jobs).Routes(r)

		r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
			handlers.RespondJSON(w, http.StatusOK, map[string]string{
				"version": buildinfo.Version,
				"commit":  buildinfo.Commit,
				"date":    buildinfo.Date,
			})
		})
		r.Get("/config", func(w http.ResponseWriter, _ *http.Request) {
			handlers.RespondJSON(w, http.StatusOK, s.config.Config.Redacted())
		})
	})

	if s.config.Config.MetricsEnabled && s.deps.Metrics != nil {
		r.Group(func(r chi.Router) {
			authenticated(r)
			r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
		})
	}
}
