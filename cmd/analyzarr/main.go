// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/autobrr/analyzarr/internal/buildinfo"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "analyzarr",
		Short: "Verify that downloaded episodes carry the title Sonarr expects",
		Long: `analyzarr checks every episode file against the official episode title,
tags mismatches and asks Sonarr to replace releases that keep failing.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.toml or the directory holding it")

	rootCmd.AddCommand(
		RunServeCommand(&configPath),
		RunScanCommand(&configPath),
		RunCleanupCommand(&configPath),
		RunCheckCommand(&configPath),
		RunPrequeueCommand(&configPath),
		RunOverrideCommand(&configPath),
		RunVersionCommand(),
	)

	return rootCmd
}

func RunVersionCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON {
				data, err := buildinfo.JSON()
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}
			cmd.Print(buildinfo.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print version information as JSON")
	return cmd
}
