// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/ManuGH/capsync/internal/domain/session/model"
	"github.com/ManuGH/capsync/internal/metrics"
)

const DefaultSnapshotInterval = 5 * time.Second

// Snapshot is the document written to the snapshot file.
type Snapshot struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Cycles      uint64              `json:"cycles"`
	LastCycle   *time.Time          `json:"last_cycle,omitempty"`
	Sessions    []model.SessionInfo `json:"sessions"`
}

// SnapshotWriter periodically persists the session table as JSON so external
// tooling can read state without the HTTP API.
type SnapshotWriter struct {
	Path     string
	Interval time.Duration
	Sessions Sessions
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Run writes a snapshot every Interval and once more when ctx is done.
func (sw *SnapshotWriter) Run(ctx context.Context) error {
	if sw.Path == "" {
		<-ctx.Done()
		return nil
	}
	interval := sw.Interval
	if interval <= 0 {
		interval = DefaultSnapshotInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			sw.writeLogged()
			return nil
		case <-ticker.C:
			sw.writeLogged()
		}
	}
}

func (sw *SnapshotWriter) writeLogged() {
	if err := sw.Write(); err != nil {
		metrics.IncSnapshotWriteError()
		sw.Logger.Warn().Err(err).
			Str("event", "snapshot.write_failed").
			Str("path", sw.Path).
			Msg("status snapshot write failed")
	}
}

// Write atomically replaces the snapshot file.
func (sw *SnapshotWriter) Write() error {
	now := time.Now
	if sw.Now != nil {
		now = sw.Now
	}
	snap := Snapshot{
		GeneratedAt: now().UTC(),
		Cycles:      sw.Sessions.Cycles(),
		Sessions:    sw.Sessions.Sessions(),
	}
	if last := sw.Sessions.LastCycle(); !last.IsZero() {
		snap.LastCycle = &last
	}
	if snap.Sessions == nil {
		snap.Sessions = []model.SessionInfo{}
	}

	pending, err := renameio.NewPendingFile(sw.Path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending snapshot: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
