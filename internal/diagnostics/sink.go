// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package diagnostics receives the errors sessions settle with. Each report is
// logged (rate-limited per device) and kept as the device's latest fault for
// the status surface.
package diagnostics

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/capsync/internal/log"
	"github.com/ManuGH/capsync/internal/ratelimit"
)

// Fault is the latest error reported for a device key.
type Fault struct {
	Key        string    `json:"key"`
	Error      string    `json:"error"`
	Count      int       `json:"count"`
	Suppressed int       `json:"suppressed"`
	LastSeen   time.Time `json:"last_seen"`
}

// Sink is a DiagnosticSink backed by a logger and an in-memory fault table.
type Sink struct {
	logger  zerolog.Logger
	limiter *ratelimit.Limiter
	now     func() time.Time

	mu     sync.RWMutex
	faults map[string]*Fault
}

// NewSink returns a sink that logs at most one report per key per limiter window.
func NewSink(logger zerolog.Logger, cfg ratelimit.Config) *Sink {
	return &Sink{
		logger:  logger,
		limiter: ratelimit.New("diagnostics", cfg),
		now:     time.Now,
		faults:  make(map[string]*Fault),
	}
}

// Report records err for key. Context cancellation is not an error worth
// surfacing and is dropped.
func (s *Sink) Report(ctx context.Context, key string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	s.mu.Lock()
	f, ok := s.faults[key]
	if !ok {
		f = &Fault{Key: key}
		s.faults[key] = f
	}
	f.Error = err.Error()
	f.Count++
	f.LastSeen = s.now()
	allowed := s.limiter.Allow(key)
	if !allowed {
		f.Suppressed++
	}
	suppressed := f.Suppressed
	s.mu.Unlock()

	if !allowed {
		return
	}
	logger := xglog.WithContext(ctx, s.logger)
	logger.Error().
		Err(err).
		Str(xglog.FieldKey, key).
		Str(xglog.FieldEvent, "session.failed").
		Int("suppressed", suppressed).
		Msg("session settled with error")
}

// Clear forgets the fault for key.
func (s *Sink) Clear(key string) {
	s.mu.Lock()
	delete(s.faults, key)
	s.mu.Unlock()
	s.limiter.Forget(key)
}

// Faults returns a copy of all known faults ordered by key.
func (s *Sink) Faults() []Fault {
	s.mu.RLock()
	out := make([]Fault, 0, len(s.faults))
	for _, f := range s.faults {
		out = append(out, *f)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
