// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"time"

	"github.com/ManuGH/capsync/internal/domain/session/model"
	"github.com/ManuGH/capsync/internal/validate"
)

// Validate checks the effective configuration and reports every problem at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("LogLevel", validate.ErrInvalidLogLevel.Message, cfg.LogLevel)
	}

	v.MinDuration("Manager.Interval", cfg.Manager.Interval, 10*time.Millisecond)
	v.MinDuration("Manager.ShutdownTimeout", cfg.Manager.ShutdownTimeout, 0)
	v.Range("Manager.Concurrency", cfg.Manager.Concurrency, 1, 256)
	for _, id := range cfg.Manager.DefaultSubscribers {
		if !model.IsValidSubscriberID(model.SubscriberID(id)) {
			v.AddError("Manager.DefaultSubscribers", "invalid subscriber id", id)
		}
	}

	v.NotEmpty("Devices.SysfsRoot", cfg.Devices.SysfsRoot)
	v.NotEmpty("Devices.DevDir", cfg.Devices.DevDir)
	v.NotEmpty("Devices.Pattern", cfg.Devices.Pattern)
	v.Glob("Devices.Pattern", cfg.Devices.Pattern)
	if cfg.Devices.Watch {
		v.MinDuration("Devices.Debounce", cfg.Devices.Debounce, time.Millisecond)
	}

	v.NotEmpty("Capture.FFmpegBin", cfg.Capture.FFmpegBin)
	v.NonNegative("Capture.Width", cfg.Capture.Width)
	v.NonNegative("Capture.Height", cfg.Capture.Height)
	v.Range("Capture.FPS", cfg.Capture.FPS, 0, 240)
	v.MinDuration("Capture.ReadTimeout", cfg.Capture.ReadTimeout, 100*time.Millisecond)
	v.MinDuration("Capture.StopGrace", cfg.Capture.StopGrace, 0)
	v.Positive("Capture.BusBuffer", cfg.Capture.BusBuffer)

	v.ListenAddr("Status.Listen", cfg.Status.Listen)
	v.FileParent("Status.SnapshotPath", cfg.Status.SnapshotPath)
	if cfg.Status.SnapshotPath != "" {
		v.MinDuration("Status.SnapshotInterval", cfg.Status.SnapshotInterval, 100*time.Millisecond)
	}
	v.Positive("Status.RateLimitRPS", cfg.Status.RateLimitRPS)

	v.FileParent("History.Path", cfg.History.Path)
	v.MinDuration("History.Retention", cfg.History.Retention, 0)

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	v.MinDuration("Diagnostics.PerKeyInterval", cfg.Diagnostics.PerKeyInterval, 0)
	v.FloatRange("Diagnostics.GlobalRate", cfg.Diagnostics.GlobalRate, 0.001, 10000)
	v.Positive("Diagnostics.GlobalBurst", cfg.Diagnostics.GlobalBurst)

	return v.Err()
}
