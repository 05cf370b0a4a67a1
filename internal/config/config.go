// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the capsyncd configuration.
// Precedence: defaults < YAML file < CAPSYNC_* environment.
package config

import (
	"time"
)

// AppConfig is the effective, validated configuration.
type AppConfig struct {
	Version  string
	LogLevel string

	Manager     ManagerConfig
	Devices     DevicesConfig
	Capture     CaptureConfig
	Status      StatusConfig
	History     HistoryConfig
	Telemetry   TelemetryConfig
	Diagnostics DiagnosticsConfig
}

// ManagerConfig controls the reconciliation loop.
type ManagerConfig struct {
	Interval           time.Duration
	ShutdownTimeout    time.Duration
	Concurrency        int
	DefaultSubscribers []string
}

// DevicesConfig controls inventory scanning and hotplug.
type DevicesConfig struct {
	SysfsRoot string
	DevDir    string
	Pattern   string
	Watch     bool
	Debounce  time.Duration
}

type CaptureConfig struct {
	FFmpegBin   string
	Width       int
	Height      int
	FPS         int
	ReadTimeout time.Duration
	StopGrace   time.Duration
	// BusBuffer is the per-subscriber frame queue depth.
	BusBuffer int
}

// StatusConfig controls the HTTP status API and the snapshot file.
type StatusConfig struct {
	Listen           string
	SnapshotPath     string
	SnapshotInterval time.Duration
	RateLimitRPS     int
}

type HistoryConfig struct {
	Path      string
	Retention time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

// DiagnosticsConfig bounds how often a failing device is logged.
type DiagnosticsConfig struct {
	PerKeyInterval time.Duration
	GlobalRate     float64
	GlobalBurst    int
}

// FileConfig is the on-disk YAML shape. Durations are strings and optional
// booleans are pointers so "unset" differs from "false".
type FileConfig struct {
	LogLevel string `yaml:"logLevel,omitempty"`

	Manager     FileManager     `yaml:"manager,omitempty"`
	Devices     FileDevices     `yaml:"devices,omitempty"`
	Capture     FileCapture     `yaml:"capture,omitempty"`
	Status      FileStatus      `yaml:"status,omitempty"`
	History     FileHistory     `yaml:"history,omitempty"`
	Telemetry   FileTelemetry   `yaml:"telemetry,omitempty"`
	Diagnostics FileDiagnostics `yaml:"diagnostics,omitempty"`
}

type FileManager struct {
	Interval           string   `yaml:"interval,omitempty"`
	ShutdownTimeout    string   `yaml:"shutdownTimeout,omitempty"`
	Concurrency        int      `yaml:"concurrency,omitempty"`
	DefaultSubscribers []string `yaml:"defaultSubscribers,omitempty"`
}

type FileDevices struct {
	SysfsRoot string `yaml:"sysfsRoot,omitempty"`
	DevDir    string `yaml:"devDir,omitempty"`
	Pattern   string `yaml:"pattern,omitempty"`
	Watch     *bool  `yaml:"watch,omitempty"`
	Debounce  string `yaml:"debounce,omitempty"`
}

type FileCapture struct {
	FFmpegBin   string `yaml:"ffmpegBin,omitempty"`
	Width       int    `yaml:"width,omitempty"`
	Height      int    `yaml:"height,omitempty"`
	FPS         int    `yaml:"fps,omitempty"`
	ReadTimeout string `yaml:"readTimeout,omitempty"`
	StopGrace   string `yaml:"stopGrace,omitempty"`
	BusBuffer   int    `yaml:"busBuffer,omitempty"`
}

type FileStatus struct {
	Listen           *string `yaml:"listen,omitempty"`
	SnapshotPath     *string `yaml:"snapshotPath,omitempty"`
	SnapshotInterval string  `yaml:"snapshotInterval,omitempty"`
	RateLimitRPS     int     `yaml:"rateLimitRPS,omitempty"`
}

type FileHistory struct {
	Path      *string `yaml:"path,omitempty"`
	Retention string  `yaml:"retention,omitempty"`
}

type FileTelemetry struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	ServiceName  string   `yaml:"serviceName,omitempty"`
	Environment  string   `yaml:"environment,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}

type FileDiagnostics struct {
	PerKeyInterval string   `yaml:"perKeyInterval,omitempty"`
	GlobalRate     *float64 `yaml:"globalRate,omitempty"`
	GlobalBurst    int      `yaml:"globalBurst,omitempty"`
}
