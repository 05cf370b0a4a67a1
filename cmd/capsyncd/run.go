// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/capsync/internal/daemon"
	"github.com/ManuGH/capsync/internal/health"
	xglog "github.com/ManuGH/capsync/internal/log"
	"github.com/ManuGH/capsync/internal/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the capture session daemon",
	Args:  cobra.NoArgs,
	RunE:  runDaemon,
}

func init() {
	runCmd.Flags().Bool("skip-startup-checks", false, "start even if ffmpeg or the data directories are unusable")
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	xglog.Configure(xglog.Config{
		Level:   "info",
		Output:  os.Stdout,
		Service: "capsync",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	cfg, err := loadConfig(cmd)
	if err != nil {
		logger.Error().Err(err).Str("event", "config.load_failed").Msg("failed to load configuration")
		return err
	}
	// Reconfigure with the effective level once config is known.
	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Output:  os.Stdout,
		Service: "capsync",
		Version: version.Version,
	})
	logger = xglog.WithComponent("daemon")

	logger.Info().
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Dur("interval", cfg.Manager.Interval).
		Str("sysfs", cfg.Devices.SysfsRoot).
		Str("listen", cfg.Status.Listen).
		Str("event", "daemon.starting").
		Msg("starting capsync")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if skip, _ := cmd.Flags().GetBool("skip-startup-checks"); !skip {
		if err := health.PerformStartupChecks(ctx, cfg); err != nil {
			logger.Error().Err(err).Str("event", "startup.check_failed").Msg("startup checks failed")
			return fmt.Errorf("startup checks: %w", err)
		}
	}

	components, err := daemon.Build(ctx, cfg, xglog.Base(), daemon.Options{})
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	app := daemon.NewApp(components, logger)
	return app.Run(ctx)
}

