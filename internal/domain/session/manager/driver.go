// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"

	"golang.org/x/sync/errgroup"

	xglog "github.com/ManuGH/capsync/internal/log"
)

// DefaultConcurrency bounds how many sessions advance in parallel.
const DefaultConcurrency = 8

// Driver advances every tracked session exactly once per cycle. Each session is
// owned by one goroutine for the duration of its step.
type Driver struct {
	Stepper     *Stepper
	Concurrency int
}

// AdvanceResult summarizes one AdvanceAll pass.
type AdvanceResult struct {
	Stepped  int
	Rejected int
}

// AdvanceAll steps each session once. A session failure never aborts the pass;
// the only error surfaced is the parent context ending mid-pass.
func (d *Driver) AdvanceAll(ctx context.Context, sessions []*Session) (AdvanceResult, error) {
	limit := d.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	var g errgroup.Group
	g.SetLimit(limit)

	outcomes := make([]error, len(sessions))
	for i, s := range sessions {
		g.Go(func() error {
			outcomes[i] = d.Stepper.Step(ctx, s)
			return nil
		})
	}
	_ = g.Wait()

	var res AdvanceResult
	for i, err := range outcomes {
		if err == nil {
			res.Stepped++
			continue
		}
		res.Rejected++
		d.Stepper.Logger.Warn().
			Err(err).
			Str(xglog.FieldKey, sessions[i].Key()).
			Str(xglog.FieldEvent, "session.step_rejected").
			Msg("session step rejected")
	}
	return res, ctx.Err()
}
