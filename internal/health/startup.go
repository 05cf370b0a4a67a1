// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ManuGH/capsync/internal/config"
	"github.com/ManuGH/capsync/internal/persistence/sqlite"
	"github.com/ManuGH/capsync/internal/log"
)

// PerformStartupChecks validates the environment before the daemon starts.
// A missing sysfs class is only a warning: devices may appear later.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")

	if _, err := exec.LookPath(cfg.Capture.FFmpegBin); err != nil {
		return fmt.Errorf("ffmpeg binary not found (%s): %w", cfg.Capture.FFmpegBin, err)
	}

	if _, err := os.Stat(cfg.Devices.SysfsRoot); err != nil {
		logger.Warn().
			Err(err).
			Str("event", "startup.sysfs_missing").
			Str("path", cfg.Devices.SysfsRoot).
			Msg("video4linux class not present; inventory stays empty until it appears")
	}

	for _, path := range []string{cfg.History.Path, cfg.Status.SnapshotPath} {
		if path == "" {
			continue
		}
		if err := checkDirWritable(logger, filepath.Dir(path)); err != nil {
			return err
		}
	}
	if err := checkHistoryIntegrity(ctx, logger, cfg.History.Path); err != nil {
		return err
	}
	return ctx.Err()
}

// checkHistoryIntegrity runs a quick check on an existing history database.
// A database that does not exist yet is created on open.
func checkHistoryIntegrity(ctx context.Context, logger zerolog.Logger, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	problems, err := sqlite.VerifyIntegrity(ctx, path, sqlite.IntegrityQuick)
	if err != nil {
		return fmt.Errorf("history integrity check: %w", err)
	}
	if len(problems) > 0 {
		logger.Error().
			Strs("problems", problems).
			Str("event", "startup.history_corrupt").
			Str("path", path).
			Msg("history database failed integrity check")
		return fmt.Errorf("history database %s is corrupt: %s", path, problems[0])
	}
	logger.Debug().Str("path", path).Msg("history database passed integrity check")
	return nil
}

func checkDirWritable(logger zerolog.Logger, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", dir)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}

	f, err := os.CreateTemp(dir, ".write_test")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	logger.Debug().Str("path", dir).Msg("directory is writable")
	return nil
}
