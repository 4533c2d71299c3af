// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/analyzarr/internal/buildinfo"
	"github.com/autobrr/analyzarr/internal/database"
	"github.com/autobrr/analyzarr/internal/domain"
	"github.com/autobrr/analyzarr/internal/models"
)

func runCommand(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	output, err := runCommand(t, NewRootCommand(), "version")
	require.NoError(t, err)
	assert.Contains(t, output, "Version: "+buildinfo.Version)

	output, err = runCommand(t, NewRootCommand(), "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, output, `"version"`)
}

func TestScanCommandRequiresSeriesForSeasons(t *testing.T) {
	configDir := t.TempDir()

	_, err := runCommand(t, NewRootCommand(), "scan", "--config", configDir, "--season", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--season requires --tvdb-id")
}

func TestCommandArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "check without file", args: []string{"check"}},
		{name: "prequeue without release", args: []string{"prequeue"}},
		{name: "override without key", args: []string{"override"}},
		{name: "override with two keys", args: []string{"override", "a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCommand(t, NewRootCommand(), tt.args...)
			require.Error(t, err)
		})
	}
}

func TestOverrideCommand(t *testing.T) {
	ctx := context.Background()
	configDir := t.TempDir()

	// first run writes the default config and creates the schema
	_, err := runCommand(t, NewRootCommand(), "override", "--config", configDir, "show|S01E01")
	require.ErrorIs(t, err, domain.ErrNotFound)

	db, err := database.New(filepath.Join(configDir, "analyzarr.db"))
	require.NoError(t, err)
	store := models.NewEpisodeStore(db)
	require.NoError(t, store.Upsert(ctx, &models.Episode{
		Key:           "show|S01E01",
		SeriesTitle:   "Show",
		Season:        1,
		Episode:       1,
		Code:          "S01E01",
		ExpectedTitle: "Pilot",
		ActualTitle:   "Something Else",
		Confidence:    0.1,
	}))
	require.NoError(t, db.Close())

	output, err := runCommand(t, NewRootCommand(),
		"override", "--config", configDir,
		"--actor", "tester",
		"--reason", "alternate title",
		"show|S01E01",
	)
	require.NoError(t, err)
	assert.Contains(t, output, "Episode show|S01E01 overridden by tester")
	assert.Contains(t, output, domain.TagOverride)

	db, err = database.New(filepath.Join(configDir, "analyzarr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	history, err := models.NewEpisodeStore(db).OverrideHistory(ctx, "show|S01E01")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "tester", history[0].Actor)
	assert.Equal(t, "alternate title", history[0].Reason)
}

func TestPrequeueCommandAcceptsWhenStartupFails(t *testing.T) {
	configDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte("matchThreshold = 2.0\n"), 0o644))

	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"prequeue", "--config", configDir, "Show.S01E01.Pilot.1080p.WEB-GRP", "1", "tv"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matchThreshold")
	assert.Equal(t, "1\n", stdout.String())
}

func TestConsoleReporterSteps(t *testing.T) {
	var out bytes.Buffer
	r := newConsoleReporter(&out)

	for _, p := range []int{0, 3, 9, 10, 15, 25, 100, 100} {
		r.Progress(p)
	}
	r.Logf("purged %s", "a|S01E01")

	assert.Equal(t, "progress: 0%\nprogress: 10%\nprogress: 20%\nprogress: 100%\npurged a|S01E01\n", out.String())
}
