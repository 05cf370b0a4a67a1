// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/capsync/internal/config"
	"github.com/ManuGH/capsync/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "capsyncd",
	Short: "Capture session manager for video4linux devices",
	Long: `capsyncd tracks the video capture devices present on the host, keeps one
capture session per device, and fans frames out to subscribers. State is
exposed on an HTTP status API and an optional JSON snapshot file.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (YAML); CAPSYNC_* environment variables override it")
}

func loadConfig(cmd *cobra.Command) (config.AppConfig, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.AppConfig{}, err
	}
	cfg, err := config.NewLoader(path, version.Version).Load()
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
