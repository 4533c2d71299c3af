// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/autobrr/analyzarr/internal/services/analyzer"
)

// consoleReporter prints scan and cleanup progress, one line per ten percent.
type consoleReporter struct {
	mu   sync.Mutex
	out  io.Writer
	last int
}

func newConsoleReporter(out io.Writer) *consoleReporter {
	return &consoleReporter{out: out, last: -1}
}

func (r *consoleReporter) Progress(percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	step := percent / 10 * 10
	if step <= r.last {
		return
	}
	r.last = step
	fmt.Fprintf(r.out, "progress: %d%%\n", step)
}

func (r *consoleReporter) Logf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, format+"\n", args...)
}

func RunScanCommand(configPath *string) *cobra.Command {
	var opts analyzer.ScanOptions

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Analyze every episode file in the Sonarr library",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(opts.Seasons) > 0 && opts.TvdbID == 0 {
				return errors.New("--season requires --tvdb-id")
			}

			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.analyzer.Scan(cmd.Context(), opts, newConsoleReporter(cmd.OutOrStdout()))
			if err != nil {
				return err
			}

			cmd.Printf("Series: %d\n", summary.Series)
			cmd.Printf("Episodes: %d\n", summary.Episodes)
			cmd.Printf("  matched: %d\n", summary.Matched)
			cmd.Printf("  mismatched: %d\n", summary.Mismatched)
			cmd.Printf("  missing title: %d\n", summary.MissingTitle)
			cmd.Printf("  overridden: %d\n", summary.Overridden)
			cmd.Printf("  failed: %d\n", summary.Failed)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.TvdbID, "tvdb-id", 0, "Only scan the series with this TVDB id")
	cmd.Flags().IntSliceVar(&opts.Seasons, "season", nil, "Only scan these seasons (requires --tvdb-id)")

	return cmd
}

func RunCleanupCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Purge stored episodes that no longer exist in Sonarr",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			purged, err := a.analyzer.Cleanup(cmd.Context(), newConsoleReporter(cmd.OutOrStdout()))
			if err != nil {
				return err
			}

			for _, key := range purged {
				cmd.Printf("purged %s\n", key)
			}
			cmd.Printf("Purged %d records\n", len(purged))
			return nil
		},
	}
}
