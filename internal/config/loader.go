// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. configPath may be empty for env-only setups.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(name, def string) string {
	key := EnvPrefix + name
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, def)
}

func (l *Loader) envInt(name string, def int) int {
	key := EnvPrefix + name
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, def)
}

func (l *Loader) envBool(name string, def bool) bool {
	key := EnvPrefix + name
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, def)
}

func (l *Loader) envDuration(name string, def time.Duration) time.Duration {
	key := EnvPrefix + name
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, def)
}

func (l *Loader) envFloat(name string, def float64) float64 {
	key := EnvPrefix + name
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, def)
}

func (l *Loader) envList(name string, def []string) []string {
	key := EnvPrefix + name
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseList(key, def)
}

// Load parses the file strictly, applies the environment and validates.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes YAML with KnownFields so unknown keys fail the load.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, ErrTrailingContent
	}
	return &fileCfg, nil
}

func mergeFileConfig(dst *AppConfig, src *FileConfig) error {
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}

	m := src.Manager
	if err := setDuration(&dst.Manager.Interval, "manager.interval", m.Interval); err != nil {
		return err
	}
	if err := setDuration(&dst.Manager.ShutdownTimeout, "manager.shutdownTimeout", m.ShutdownTimeout); err != nil {
		return err
	}
	if m.Concurrency != 0 {
		dst.Manager.Concurrency = m.Concurrency
	}
	if m.DefaultSubscribers != nil {
		dst.Manager.DefaultSubscribers = append([]string(nil), m.DefaultSubscribers...)
	}

	d := src.Devices
	if d.SysfsRoot != "" {
		dst.Devices.SysfsRoot = expandEnv(d.SysfsRoot)
	}
	if d.DevDir != "" {
		dst.Devices.DevDir = expandEnv(d.DevDir)
	}
	if d.Pattern != "" {
		dst.Devices.Pattern = d.Pattern
	}
	if d.Watch != nil {
		dst.Devices.Watch = *d.Watch
	}
	if err := setDuration(&dst.Devices.Debounce, "devices.debounce", d.Debounce); err != nil {
		return err
	}

	c := src.Capture
	if c.FFmpegBin != "" {
		dst.Capture.FFmpegBin = expandEnv(c.FFmpegBin)
	}
	if c.Width != 0 {
		dst.Capture.Width = c.Width
	}
	if c.Height != 0 {
		dst.Capture.Height = c.Height
	}
	if c.FPS != 0 {
		dst.Capture.FPS = c.FPS
	}
	if c.BusBuffer != 0 {
		dst.Capture.BusBuffer = c.BusBuffer
	}
	if err := setDuration(&dst.Capture.ReadTimeout, "capture.readTimeout", c.ReadTimeout); err != nil {
		return err
	}
	if err := setDuration(&dst.Capture.StopGrace, "capture.stopGrace", c.StopGrace); err != nil {
		return err
	}

	s := src.Status
	if s.Listen != nil {
		dst.Status.Listen = *s.Listen
	}
	if s.SnapshotPath != nil {
		dst.Status.SnapshotPath = expandEnv(*s.SnapshotPath)
	}
	if s.RateLimitRPS != 0 {
		dst.Status.RateLimitRPS = s.RateLimitRPS
	}
	if err := setDuration(&dst.Status.SnapshotInterval, "status.snapshotInterval", s.SnapshotInterval); err != nil {
		return err
	}

	if src.History.Path != nil {
		dst.History.Path = expandEnv(*src.History.Path)
	}
	if err := setDuration(&dst.History.Retention, "history.retention", src.History.Retention); err != nil {
		return err
	}

	t := src.Telemetry
	if t.Enabled != nil {
		dst.Telemetry.Enabled = *t.Enabled
	}
	if t.ServiceName != "" {
		dst.Telemetry.ServiceName = t.ServiceName
	}
	if t.Environment != "" {
		dst.Telemetry.Environment = t.Environment
	}
	if t.Exporter != "" {
		dst.Telemetry.Exporter = t.Exporter
	}
	if t.Endpoint != "" {
		dst.Telemetry.Endpoint = expandEnv(t.Endpoint)
	}
	if t.SamplingRate != nil {
		dst.Telemetry.SamplingRate = *t.SamplingRate
	}

	dg := src.Diagnostics
	if err := setDuration(&dst.Diagnostics.PerKeyInterval, "diagnostics.perKeyInterval", dg.PerKeyInterval); err != nil {
		return err
	}
	if dg.GlobalRate != nil {
		dst.Diagnostics.GlobalRate = *dg.GlobalRate
	}
	if dg.GlobalBurst != 0 {
		dst.Diagnostics.GlobalBurst = dg.GlobalBurst
	}
	return nil
}

func setDuration(dst *time.Duration, field, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	*dst = d
	return nil
}

// mergeEnvConfig applies CAPSYNC_* overrides on top of file and defaults.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)

	cfg.Manager.Interval = l.envDuration("INTERVAL", cfg.Manager.Interval)
	cfg.Manager.ShutdownTimeout = l.envDuration("SHUTDOWN_TIMEOUT", cfg.Manager.ShutdownTimeout)
	cfg.Manager.Concurrency = l.envInt("CONCURRENCY", cfg.Manager.Concurrency)
	cfg.Manager.DefaultSubscribers = l.envList("DEFAULT_SUBSCRIBERS", cfg.Manager.DefaultSubscribers)

	cfg.Devices.SysfsRoot = l.envString("SYSFS_ROOT", cfg.Devices.SysfsRoot)
	cfg.Devices.DevDir = l.envString("DEV_DIR", cfg.Devices.DevDir)
	cfg.Devices.Pattern = l.envString("DEVICE_PATTERN", cfg.Devices.Pattern)
	cfg.Devices.Watch = l.envBool("WATCH", cfg.Devices.Watch)
	cfg.Devices.Debounce = l.envDuration("WATCH_DEBOUNCE", cfg.Devices.Debounce)

	cfg.Capture.FFmpegBin = l.envString("FFMPEG_BIN", cfg.Capture.FFmpegBin)
	cfg.Capture.Width = l.envInt("CAPTURE_WIDTH", cfg.Capture.Width)
	cfg.Capture.Height = l.envInt("CAPTURE_HEIGHT", cfg.Capture.Height)
	cfg.Capture.FPS = l.envInt("CAPTURE_FPS", cfg.Capture.FPS)
	cfg.Capture.ReadTimeout = l.envDuration("CAPTURE_READ_TIMEOUT", cfg.Capture.ReadTimeout)
	cfg.Capture.StopGrace = l.envDuration("CAPTURE_STOP_GRACE", cfg.Capture.StopGrace)
	cfg.Capture.BusBuffer = l.envInt("BUS_BUFFER", cfg.Capture.BusBuffer)

	cfg.Status.Listen = l.envString("STATUS_LISTEN", cfg.Status.Listen)
	cfg.Status.SnapshotPath = l.envString("SNAPSHOT_PATH", cfg.Status.SnapshotPath)
	cfg.Status.SnapshotInterval = l.envDuration("SNAPSHOT_INTERVAL", cfg.Status.SnapshotInterval)
	cfg.Status.RateLimitRPS = l.envInt("STATUS_RATE_LIMIT_RPS", cfg.Status.RateLimitRPS)

	cfg.History.Path = l.envString("HISTORY_PATH", cfg.History.Path)
	cfg.History.Retention = l.envDuration("HISTORY_RETENTION", cfg.History.Retention)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ServiceName = l.envString("TELEMETRY_SERVICE_NAME", cfg.Telemetry.ServiceName)
	cfg.Telemetry.Environment = l.envString("TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.Exporter = l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)

	cfg.Diagnostics.PerKeyInterval = l.envDuration("DIAGNOSTICS_INTERVAL", cfg.Diagnostics.PerKeyInterval)
}
