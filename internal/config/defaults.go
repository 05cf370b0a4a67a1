// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import "time"

// Defaults returns the configuration used when neither file nor environment
// set a value.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel: "info",
		Manager: ManagerConfig{
			Interval:        time.Second,
			ShutdownTimeout: 10 * time.Second,
			Concurrency:     8,
		},
		Devices: DevicesConfig{
			SysfsRoot: "/sys/class/video4linux",
			DevDir:    "/dev",
			Pattern:   "video*",
			Watch:     true,
			Debounce:  250 * time.Millisecond,
		},
		Capture: CaptureConfig{
			FFmpegBin:   "ffmpeg",
			Width:       1280,
			Height:      720,
			FPS:         15,
			ReadTimeout: 5 * time.Second,
			StopGrace:   2 * time.Second,
			BusBuffer:   8,
		},
		Status: StatusConfig{
			Listen:           ":9105",
			SnapshotInterval: 5 * time.Second,
			RateLimitRPS:     50,
		},
		History: HistoryConfig{
			Retention: 30 * 24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "capsync",
			Environment:  "production",
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
		Diagnostics: DiagnosticsConfig{
			PerKeyInterval: 30 * time.Second,
			GlobalRate:     20,
			GlobalBurst:    40,
		},
	}
}
