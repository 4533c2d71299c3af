// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/analyzarr/internal/api"
	"github.com/autobrr/analyzarr/internal/buildinfo"
	"github.com/autobrr/analyzarr/internal/metrics"
	"github.com/autobrr/analyzarr/internal/services/remediation"
	"github.com/autobrr/analyzarr/internal/services/watcher"
)

func RunServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Watch paths, run remediation jobs and serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, a)
		},
	}
}

const cooldownPruneInterval = time.Minute

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg.Config
	log.Info().Str("version", buildinfo.Version).Bool("dryRun", cfg.DryRun).Bool("autoRemediate", cfg.AutoRemediate).Msg("Starting analyzarr")

	jobs := remediation.NewService(
		remediation.ConfigFromDomain(cfg),
		a.jobs,
		a.episodes,
		a.sonarr,
		a.analyzer,
		a.resolver,
	)
	a.analyzer.SetEnqueuer(jobs)

	if err := jobs.Start(ctx); err != nil {
		return err
	}
	defer jobs.Stop()

	sources := metrics.Sources{
		DB:       a.db,
		Pipeline: a.analyzer,
		Guard:    a.guard,
		Jobs:     jobs,
	}

	if len(cfg.WatchPaths) > 0 {
		w := watcher.NewService(watcher.ConfigFromDomain(cfg), a.analyzer)
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
		sources.Watcher = w
	} else {
		log.Warn().Msg("No watch paths configured, file events are disabled")
	}

	deps := &api.Dependencies{
		Config:    a.cfg,
		DB:        a.db,
		Episodes:  a.episodes,
		Jobs:      jobs,
		Inspector: a.analyzer,
	}
	if cfg.MetricsEnabled {
		deps.Metrics = metrics.NewManager(sources)
	}
	server := api.NewServer(deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.ListenAndServe)
	g.Go(func() error {
		a.analyzer.RunCooldownPruner(gctx, cooldownPruneInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		log.Info().Msg("Shutting down")
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
