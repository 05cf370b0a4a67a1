// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package daemon wires the capture session manager, its collaborators and
// the status surfaces into one runnable application.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/capsync/internal/bus"
	"github.com/ManuGH/capsync/internal/config"
	"github.com/ManuGH/capsync/internal/device"
	"github.com/ManuGH/capsync/internal/diagnostics"
	"github.com/ManuGH/capsync/internal/domain/session/manager"
	"github.com/ManuGH/capsync/internal/domain/session/model"
	"github.com/ManuGH/capsync/internal/domain/session/ports"
	"github.com/ManuGH/capsync/internal/health"
	"github.com/ManuGH/capsync/internal/history"
	"github.com/ManuGH/capsync/internal/ratelimit"
	"github.com/ManuGH/capsync/internal/status"
	"github.com/ManuGH/capsync/internal/telemetry"
)

// Components holds everything Build creates. Optional parts are nil when
// disabled by configuration.
type Components struct {
	Manager   *manager.Manager
	Bus       *bus.FrameBus
	Sink      *diagnostics.Sink
	Health    *health.Manager
	Server    *status.Server
	Snapshot  *status.SnapshotWriter
	History   *history.Store
	Watcher   *device.Watcher
	Telemetry *telemetry.Provider
}

// Options override collaborators Build would otherwise create from config.
type Options struct {
	Inventory ports.Inventory
	Acquirer  ports.Acquirer
	Now       func() time.Time
}

// Build creates every component described by cfg. On error, whatever was
// already opened is closed again.
func Build(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger, opts Options) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			_ = c.Close(context.WithoutCancel(ctx))
		}
	}()

	c.Telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	if cfg.History.Path != "" {
		c.History, err = history.Open(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		if cfg.History.Retention > 0 {
			cutoff := time.Now().Add(-cfg.History.Retention)
			n, perr := c.History.Prune(ctx, cutoff)
			if perr != nil {
				logger.Warn().Err(perr).Str("event", "history.prune_failed").Msg("history prune failed")
			} else if n > 0 {
				logger.Info().Int64("removed", n).Str("event", "history.pruned").Msg("pruned retirement history")
			}
		}
	}

	c.Sink = diagnostics.NewSink(logger.With().Str("component", "diagnostics").Logger(), diagnosticsLimits(cfg.Diagnostics))
	c.Bus = bus.NewFrameBus(cfg.Capture.BusBuffer)

	inventory := opts.Inventory
	if inventory == nil {
		inventory = &device.Scanner{
			Root:    cfg.Devices.SysfsRoot,
			DevDir:  cfg.Devices.DevDir,
			Pattern: cfg.Devices.Pattern,
		}
	}
	acquirer := opts.Acquirer
	if acquirer == nil {
		acquirer = &device.FFmpegAcquirer{
			Bin: cfg.Capture.FFmpegBin,
			Settings: device.CaptureSettings{
				Width:  cfg.Capture.Width,
				Height: cfg.Capture.Height,
				FPS:    cfg.Capture.FPS,
			},
			ReadTimeout: cfg.Capture.ReadTimeout,
			StopGrace:   cfg.Capture.StopGrace,
			Logger:      logger.With().Str("component", "capture").Logger(),
		}
	}

	var wake <-chan struct{}
	if cfg.Devices.Watch {
		c.Watcher = device.NewWatcher(cfg.Devices.DevDir, cfg.Devices.Pattern, logger.With().Str("component", "hotplug").Logger())
		if cfg.Devices.Debounce > 0 {
			c.Watcher.Debounce = cfg.Devices.Debounce
		}
		wake = c.Watcher.Wake()
	}

	deps := manager.Deps{
		Inventory:   inventory,
		Acquirer:    acquirer,
		Deliverer:   c.Bus,
		Diagnostics: c.Sink,
		OnAttach:    c.Bus.Attach,
		OnDetach:    c.Bus.Detach,
		OnAcquired:  c.Sink.Clear,
		Wake:        wake,
		Logger:      logger,
		Now:         opts.Now,
	}
	// A nil *history.Store must not become a non-nil interface.
	if c.History != nil {
		deps.History = c.History
	}
	c.Manager, err = manager.New(manager.Config{
		Interval:           cfg.Manager.Interval,
		ShutdownTimeout:    cfg.Manager.ShutdownTimeout,
		Concurrency:        cfg.Manager.Concurrency,
		DefaultSubscribers: subscriberIDs(cfg.Manager.DefaultSubscribers),
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}

	c.Health = health.NewManager(cfg.Version)
	c.Health.RegisterChecker(health.NewCycleChecker(c.Manager.LastCycle, 3*c.Manager.Interval()+cfg.Capture.ReadTimeout))
	c.Health.RegisterChecker(health.NewFaultChecker(func() int { return len(c.Sink.Faults()) }))
	c.Health.RegisterChecker(health.NewPathChecker("sysfs", cfg.Devices.SysfsRoot, true))

	tracingService := ""
	if cfg.Telemetry.Enabled {
		tracingService = cfg.Telemetry.ServiceName
	}
	sdeps := status.Deps{
		Sessions: c.Manager,
		Bus:      c.Bus,
		Faults:   c.Sink,
		Health:   c.Health,
		Logger:   logger.With().Str("component", "status").Logger(),
	}
	if c.History != nil {
		sdeps.History = c.History
	}
	c.Server = status.NewServer(status.Config{
		Listen:         cfg.Status.Listen,
		RateLimitRPS:   cfg.Status.RateLimitRPS,
		TracingService: tracingService,
	}, sdeps)

	c.Snapshot = &status.SnapshotWriter{
		Path:     cfg.Status.SnapshotPath,
		Interval: cfg.Status.SnapshotInterval,
		Sessions: c.Manager,
		Logger:   logger.With().Str("component", "snapshot").Logger(),
	}
	return c, nil
}

// Close releases what Run does not own: the bus, the history database and
// the tracer provider.
func (c *Components) Close(ctx context.Context) error {
	var errs []error
	if c.Bus != nil {
		errs = append(errs, c.Bus.Close())
	}
	if c.History != nil {
		errs = append(errs, c.History.Close())
	}
	if c.Telemetry != nil {
		errs = append(errs, c.Telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func diagnosticsLimits(cfg config.DiagnosticsConfig) ratelimit.Config {
	limits := ratelimit.DefaultConfig()
	if cfg.PerKeyInterval > 0 {
		limits.PerKeyRate = rate.Every(cfg.PerKeyInterval)
	}
	if cfg.GlobalRate > 0 {
		limits.GlobalRate = rate.Limit(cfg.GlobalRate)
	}
	if cfg.GlobalBurst > 0 {
		limits.GlobalBurst = cfg.GlobalBurst
	}
	return limits
}

func subscriberIDs(in []string) []model.SubscriberID {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.SubscriberID, 0, len(in))
	for _, id := range in {
		out = append(out, model.SubscriberID(id))
	}
	return out
}
