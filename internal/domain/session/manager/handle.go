// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"sync"

	"github.com/ManuGH/capsync/internal/domain/session/model"
	"github.com/ManuGH/capsync/internal/domain/session/ports"
)

// Handle owns an acquired capture. The capture mutex is held only for a single
// Read or Close so that a consumer reading LastFrame never waits on a full tick.
type Handle struct {
	mu      sync.Mutex
	capture ports.Capture
	seq     uint64

	lastMu sync.RWMutex
	last   *model.Frame
}

func newHandle(c ports.Capture) *Handle {
	return &Handle{capture: c}
}

// Read pulls one frame from the capture and remembers it as the last frame.
func (h *Handle) Read(ctx context.Context) (model.Frame, error) {
	h.mu.Lock()
	if h.capture == nil {
		h.mu.Unlock()
		return model.Frame{}, ErrNoCapture
	}
	frame, err := h.capture.Read(ctx)
	if err == nil {
		h.seq++
		frame.Seq = h.seq
	}
	h.mu.Unlock()
	if err != nil {
		return model.Frame{}, err
	}

	h.lastMu.Lock()
	h.last = &frame
	h.lastMu.Unlock()
	return frame, nil
}

// Close releases the capture. It is safe to call more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.capture == nil {
		return nil
	}
	err := h.capture.Close()
	h.capture = nil
	return err
}

// LastFrame returns the most recently delivered frame.
func (h *Handle) LastFrame() (model.Frame, bool) {
	h.lastMu.RLock()
	defer h.lastMu.RUnlock()
	if h.last == nil {
		return model.Frame{}, false
	}
	return *h.last, true
}
