// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// IntegrityMode selects the SQLite check pragma.
type IntegrityMode string

const (
	IntegrityQuick IntegrityMode = "quick" // PRAGMA quick_check
	IntegrityFull  IntegrityMode = "full"  // PRAGMA integrity_check
)

// VerifyIntegrity opens path read-only and runs the check selected by mode.
// It returns the reported problems, or nil when the database is healthy.
func VerifyIntegrity(ctx context.Context, path string, mode IntegrityMode) ([]string, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(2000)", path))
	if err != nil {
		return nil, fmt.Errorf("open %s for verification: %w", path, err)
	}
	defer db.Close()

	pragma := "PRAGMA quick_check"
	if mode == IntegrityFull {
		pragma = "PRAGMA integrity_check"
	}
	rows, err := db.QueryContext(ctx, pragma)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pragma, err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", pragma, err)
		}
		problems = append(problems, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", pragma, err)
	}

	switch {
	case len(problems) == 1 && strings.EqualFold(problems[0], "ok"):
		return nil, nil
	case len(problems) == 0:
		return []string{"integrity check returned no rows"}, nil
	}
	return problems, nil
}
