// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/analyzarr/internal/pkg/backoff"
	"github.com/autobrr/analyzarr/internal/services/analyzer"
	"github.com/autobrr/analyzarr/internal/services/matcher"
	"github.com/autobrr/analyzarr/internal/services/resolver"
	"github.com/autobrr/analyzarr/pkg/tmdb"
)

func RunCheckCommand(configPath *string) *cobra.Command {
	var (
		useTMDB bool
		search  bool
	)

	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Classify a single file or release name without storing the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			cfg := a.cfg.Config

			var res resolver.Resolver = a.resolver
			if useTMDB {
				client, err := tmdb.New(cfg.TMDBAPIKey, cfg.TMDBBaseURL, cfg.TMDBLanguage)
				if err != nil {
					return err
				}
				res = resolver.NewTMDB(client, backoff.New(cfg.RetryAttempts, cfg.RetryDelay(), nil))
			}

			inspection, err := a.analyzer.Inspect(ctx, args[0], res)
			if err != nil {
				return err
			}
			printInspection(cmd, inspection)

			if !search || inspection.Decision.Matched {
				return nil
			}

			episodeID := inspection.Resolution.EpisodeID
			if episodeID == 0 {
				// TMDB resolutions carry no Sonarr ids
				sonarrRes, err := a.resolver.Resolve(ctx, resolver.Query{
					SeriesTitle: inspection.Parsed.SeriesTitle,
					Season:      inspection.Parsed.Season,
					Episode:     inspection.Parsed.Episode,
					Year:        inspection.Parsed.Year,
				})
				if err != nil {
					return fmt.Errorf("find episode in sonarr: %w", err)
				}
				episodeID = sonarrRes.EpisodeID
			}

			command, err := a.sonarr.SearchEpisodes(ctx, []int{episodeID})
			if err != nil {
				return fmt.Errorf("request search: %w", err)
			}
			if command != nil {
				log.Debug().Int("commandID", command.ID).Msg("search command queued")
			}
			cmd.Printf("Search requested for episode %d\n", episodeID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&useTMDB, "tmdb", false, "Resolve the expected title through TMDB instead of Sonarr")
	cmd.Flags().BoolVar(&search, "search", false, "Ask Sonarr to search for a replacement when the title does not match")

	return cmd
}

func printInspection(cmd *cobra.Command, in *analyzer.Inspection) {
	d := in.Decision

	result := "MISMATCH"
	switch d.Outcome() {
	case matcher.OutcomeMatched, matcher.OutcomeSubstring:
		result = "MATCH"
	case matcher.OutcomeMissingTitle:
		result = "MISSING TITLE"
	}

	cmd.Printf("Series:     %s\n", in.Resolution.SeriesTitle)
	cmd.Printf("Episode:    %s\n", in.Parsed.Code())
	cmd.Printf("Expected:   %s\n", d.ExpectedTitle)
	cmd.Printf("Actual:     %s\n", d.ActualTitle)
	cmd.Printf("Confidence: %.2f\n", d.Confidence)
	cmd.Printf("Source:     %s\n", in.Resolution.Source)
	cmd.Printf("Result:     %s\n", result)
}

func RunPrequeueCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "prequeue <nzbname> <nzo> <category>",
		Short: "Pre-queue hook for download clients, prints 1 to accept or 2 to reject",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				// the download client still needs a verdict
				printVerdict(cmd, analyzer.Accept)
				return err
			}
			defer a.Close()

			var category string
			if len(args) > 2 {
				category = args[2]
			}

			result, err := a.analyzer.Prequeue(cmd.Context(), strings.TrimSpace(args[0]), category)
			if err != nil {
				log.Warn().Err(err).Str("release", args[0]).Msg("Prequeue check failed, accepting release")
			}

			verdict := analyzer.Accept
			if result != nil {
				verdict = result.Verdict
			}
			printVerdict(cmd, verdict)
			return nil
		},
	}
}

// printVerdict writes the verdict to stdout, which is where download client
// hooks read it from.
func printVerdict(cmd *cobra.Command, v analyzer.Verdict) {
	fmt.Fprintln(cmd.OutOrStdout(), int(v))
}

func RunOverrideCommand(configPath *string) *cobra.Command {
	var actor, reason string

	cmd := &cobra.Command{
		Use:   "override <episode-key>",
		Short: "Mark an episode as verified regardless of its title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ep, err := a.episodes.Override(cmd.Context(), args[0], actor, reason)
			if err != nil {
				return err
			}

			cmd.Printf("Episode %s overridden by %s (tags: %s)\n", ep.Key, actor, strings.Join(ep.Tags, ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "cli", "Who verified the episode")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the episode is correct")

	return cmd
}
