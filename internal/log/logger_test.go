// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestStructuredBufferWriter_Framing(t *testing.T) {
	ClearRecentLogs()
	w := &structuredBufferWriter{}

	// 1. Split write: half line + rest\n
	part1 := `{"time":"2026-01-01T00:00:00Z","level":"info","component":"manager","event":"session.created","message":"part1`
	part2 := `_part2"}` + "\n"

	w.Write([]byte(part1))
	if len(GetRecentLogs()) != 0 {
		t.Errorf("expected 0 logs after partial write, got %d", len(GetRecentLogs()))
	}

	w.Write([]byte(part2))
	logs := GetRecentLogs()
	if len(logs) != 1 {
		t.Fatalf("expected 1 log after full write, got %d", len(logs))
	}
	if logs[0].Fields["event"] != "session.created" {
		t.Errorf("expected event session.created, got %v", logs[0].Fields["event"])
	}
	if logs[0].Message != "part1_part2" {
		t.Errorf("expected joined message, got %q", logs[0].Message)
	}

	// 2. Multi-line burst
	line2 := `{"level":"info","event":"session.demoted","message":"a"}` + "\n"
	line3 := `{"level":"warn","message":"scan slow"}` + "\n"
	w.Write([]byte(line2 + line3))
	if got := len(GetRecentLogs()); got != 3 {
		t.Fatalf("expected 3 logs total, got %d", got)
	}
}

func TestStructuredBufferWriter_Bounds(t *testing.T) {
	ClearRecentLogs()
	w := &structuredBufferWriter{}

	before := GetBufferMetrics()
	w.Write([]byte(strings.Repeat("A", maxPartialBytes+1)))
	if w.partial.Len() != 0 {
		t.Error("partial buffer should have been reset after overflow")
	}
	if GetBufferMetrics().DroppedPartialOverflow <= before.DroppedPartialOverflow {
		t.Error("expected DroppedPartialOverflow to be incremented")
	}

	giant := `{"level":"info","event":"too.big","message":"` + strings.Repeat("B", maxLineBytes) + `"}` + "\n"
	w.Write([]byte(giant))
	if len(GetRecentLogs()) != 0 {
		t.Error("giant line should have been dropped")
	}
	if GetBufferMetrics().DroppedTooLargeLines <= before.DroppedTooLargeLines {
		t.Error("expected DroppedTooLargeLines to be incremented")
	}
}

func TestStructuredBufferWriter_RelevanceFilter(t *testing.T) {
	ClearRecentLogs()
	w := &structuredBufferWriter{}
	before := GetBufferMetrics()

	w.Write([]byte(`{"level":"info","event":"inventory.scan_failed","message":"ok"}` + "\n"))
	w.Write([]byte(`{"level":"error","message":"capture failed"}` + "\n"))
	w.Write([]byte(`{"level":"debug","component":"config","message":"using default value"}` + "\n"))

	if got := len(GetRecentLogs()); got != 2 {
		t.Errorf("expected 2 logs (event + error), got %d", got)
	}
	if GetBufferMetrics().DroppedIrrelevant <= before.DroppedIrrelevant {
		t.Error("expected DroppedIrrelevant to be incremented")
	}
}

func TestConfigure_WritesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "capsync-test", Version: "v0"})
	defer Configure(Config{})

	l := WithComponent("manager")
	l.Info().Str(FieldEvent, "test.event").Msg("hello")

	out := buf.String()
	for _, want := range []string{`"service":"capsync-test"`, `"component":"manager"`, `"version":"v0"`, `"event":"test.event"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestDerive(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "info", Output: &buf})
	defer Configure(Config{})

	l := Derive(nil)
	l.Info().Msg("plain")
	l = Derive(func(c *zerolog.Context) { *c = c.Str(FieldKey, "usb-1") })
	l.Info().Msg("keyed")
	if !strings.Contains(buf.String(), `"key":"usb-1"`) {
		t.Errorf("expected derived field, got %s", buf.String())
	}
}
