// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package validate

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_ListenAddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"empty disables", "", false},
		{"port only", ":9105", false},
		{"host and port", "127.0.0.1:8080", false},
		{"ipv6", "[::1]:80", false},
		{"missing port", "localhost", true},
		{"bad port", ":http-alt", true},
		{"port too large", ":70000", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.ListenAddr("Listen", tt.addr)
			assert.Equal(t, tt.wantErr, !v.IsValid(), "%v", v.Err())
		})
	}
}

func TestValidator_AccumulatesErrors(t *testing.T) {
	v := New()
	v.Positive("Concurrency", 0)
	v.MinDuration("Interval", 10*time.Millisecond, 50*time.Millisecond)
	v.OneOf("Exporter", "zipkin", []string{"grpc", "http"})
	v.NonNegative("Width", 640)
	v.Glob("Pattern", "video[")

	err := v.Err()
	require.Error(t, err)

	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	fields := make([]string, 0, len(ve.Errors()))
	for _, e := range ve.Errors() {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{"Concurrency", "Interval", "Exporter", "Pattern"}, fields)
	assert.Contains(t, err.Error(), "; ")
}

func TestValidator_RangesAndFileParent(t *testing.T) {
	v := New()
	v.Range("FPS", 30, 1, 120)
	v.FloatRange("SampleRate", 0.5, 0, 1)
	v.FileParent("History", filepath.Join(t.TempDir(), "history.sqlite"))
	v.FileParent("Optional", "")
	assert.NoError(t, v.Err())

	v.FloatRange("SampleRate", 1.5, 0, 1)
	v.FileParent("Snapshot", filepath.Join(t.TempDir(), "missing", "status.json"))
	assert.Len(t, v.Errors(), 2)
}

func TestParseLogLevel(t *testing.T) {
	l, err := ParseLogLevel(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, LogLevelDebug, l)

	_, err = ParseLogLevel("verbose")
	assert.Equal(t, ErrInvalidLogLevel, err)
}
