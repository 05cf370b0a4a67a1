// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package history keeps a durable record of retired capture sessions.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ManuGH/capsync/internal/domain/session/model"
	"github.com/ManuGH/capsync/internal/domain/session/ports"
	"github.com/ManuGH/capsync/internal/persistence/sqlite"
)

const DefaultListLimit = 100

var migrations = []sqlite.Migration{
	{Version: 1, SQL: `
	CREATE TABLE IF NOT EXISTS retirements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		device_key TEXT NOT NULL,
		device_path TEXT NOT NULL,
		final_error TEXT,
		frames_delivered INTEGER NOT NULL,
		created_at_ms INTEGER NOT NULL,
		retired_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_retirements_key ON retirements(device_key, retired_at_ms);`},
}

// Store is a SQLite-backed ports.HistoryRecorder.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if _, err := sqlite.Migrate(db, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history store: migration failed: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRetirement implements ports.HistoryRecorder.
func (s *Store) RecordRetirement(ctx context.Context, r model.Retirement) error {
	var finalErr sql.NullString
	if r.FinalError != "" {
		finalErr = sql.NullString{String: r.FinalError, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO retirements (session_id, device_key, device_path, final_error, frames_delivered, created_at_ms, retired_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Key, r.Path, finalErr, int64(r.FramesDelivered),
		r.CreatedAt.UnixMilli(), r.RetiredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record retirement %s: %w", r.SessionID, err)
	}
	return nil
}

// Query filters List. A zero Key matches every device.
type Query struct {
	Key   string
	Limit int
}

// List returns retirements newest first.
func (s *Store) List(ctx context.Context, q Query) ([]model.Retirement, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	const cols = `SELECT session_id, device_key, device_path, final_error, frames_delivered, created_at_ms, retired_at_ms FROM retirements`
	var (
		rows *sql.Rows
		err  error
	)
	if q.Key != "" {
		rows, err = s.db.QueryContext(ctx, cols+` WHERE device_key = ? ORDER BY retired_at_ms DESC, id DESC LIMIT ?`, q.Key, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, cols+` ORDER BY retired_at_ms DESC, id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list retirements: %w", err)
	}
	defer rows.Close()

	var out []model.Retirement
	for rows.Next() {
		var (
			r                  model.Retirement
			finalErr           sql.NullString
			frames             int64
			createdMs, retired int64
		)
		if err := rows.Scan(&r.SessionID, &r.Key, &r.Path, &finalErr, &frames, &createdMs, &retired); err != nil {
			return nil, err
		}
		r.FinalError = finalErr.String
		r.FramesDelivered = uint64(frames)
		r.CreatedAt = time.UnixMilli(createdMs).UTC()
		r.RetiredAt = time.UnixMilli(retired).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes retirements older than before and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM retirements WHERE retired_at_ms < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune retirements: %w", err)
	}
	return res.RowsAffected()
}

var _ ports.HistoryRecorder = (*Store)(nil)
