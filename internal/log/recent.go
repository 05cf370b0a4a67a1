// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

const (
	maxRecentEntries = 200
	maxLineBytes     = 16 << 10
	maxPartialBytes  = 64 << 10
)

// Entry is one structured log line retained for the status API.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// BufferMetrics counts lines the recent buffer refused to keep.
type BufferMetrics struct {
	DroppedPartialOverflow uint64
	DroppedTooLargeLines   uint64
	DroppedIrrelevant      uint64
	DroppedMalformed       uint64
}

var (
	recent = &structuredBufferWriter{}

	recentMu   sync.RWMutex
	recentRing []Entry

	droppedPartialOverflow atomic.Uint64
	droppedTooLarge        atomic.Uint64
	droppedIrrelevant      atomic.Uint64
	droppedMalformed       atomic.Uint64
)

// structuredBufferWriter frames JSON lines and keeps the relevant ones:
// anything carrying an event field, and every warning or error.
type structuredBufferWriter struct {
	mu      sync.Mutex
	partial bytes.Buffer
}

func (w *structuredBufferWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial.Write(p)
	for {
		data := w.partial.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := make([]byte, idx)
		copy(line, data[:idx])
		w.partial.Next(idx + 1)
		keepLine(line)
	}
	if w.partial.Len() > maxPartialBytes {
		w.partial.Reset()
		droppedPartialOverflow.Add(1)
	}
	return len(p), nil
}

func keepLine(line []byte) {
	if len(line) == 0 {
		return
	}
	if len(line) > maxLineBytes {
		droppedTooLarge.Add(1)
		return
	}
	fields := map[string]any{}
	if err := json.Unmarshal(line, &fields); err != nil {
		droppedMalformed.Add(1)
		return
	}
	level, _ := fields["level"].(string)
	_, hasEvent := fields[FieldEvent]
	if !hasEvent && level != "warn" && level != "error" && level != "fatal" {
		droppedIrrelevant.Add(1)
		return
	}

	e := Entry{Level: level, Fields: fields}
	if msg, ok := fields["message"].(string); ok {
		e.Message = msg
	}
	if ts, ok := fields["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			e.Time = parsed
		}
	}
	delete(fields, "level")
	delete(fields, "message")
	delete(fields, "time")

	recentMu.Lock()
	recentRing = append(recentRing, e)
	if len(recentRing) > maxRecentEntries {
		recentRing = recentRing[len(recentRing)-maxRecentEntries:]
	}
	recentMu.Unlock()
}

// GetRecentLogs returns a copy of the retained entries, oldest first.
func GetRecentLogs() []Entry {
	recentMu.RLock()
	defer recentMu.RUnlock()
	out := make([]Entry, len(recentRing))
	copy(out, recentRing)
	return out
}

// ClearRecentLogs empties the retained entries.
func ClearRecentLogs() {
	recentMu.Lock()
	recentRing = nil
	recentMu.Unlock()
}

// GetBufferMetrics returns the drop counters of the recent buffer.
func GetBufferMetrics() BufferMetrics {
	return BufferMetrics{
		DroppedPartialOverflow: droppedPartialOverflow.Load(),
		DroppedTooLargeLines:   droppedTooLarge.Load(),
		DroppedIrrelevant:      droppedIrrelevant.Load(),
		DroppedMalformed:       droppedMalformed.Load(),
	}
}
