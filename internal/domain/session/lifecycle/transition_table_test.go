// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionTable_Coverage(t *testing.T) {
	seen := map[Stage]map[bool]struct{}{}
	for _, tr := range advanceTable {
		if _, ok := seen[tr.From]; !ok {
			seen[tr.From] = map[bool]struct{}{}
		}
		if _, dup := seen[tr.From][tr.Failed]; dup {
			t.Fatalf("duplicate transition: %s failed=%v", tr.From, tr.Failed)
		}
		seen[tr.From][tr.Failed] = struct{}{}
		require.GreaterOrEqual(t, int(tr.To), int(tr.From), "edge %s -> %s decreases stage", tr.From, tr.To)
	}

	for _, stage := range []Stage{StageStart, StageRun, StageStop, StageDone} {
		for _, failed := range []bool{false, true} {
			_, ok := TransitionFor(stage, failed)
			require.True(t, ok, "missing edge for %s failed=%v", stage, failed)
		}
	}
	_, ok := TransitionFor(StageNone, false)
	require.False(t, ok, "NONE must never auto-advance")
}

func TestTransitionTable_ErrorsLeaveThroughStop(t *testing.T) {
	for _, from := range []Stage{StageStart, StageRun} {
		tr, ok := TransitionFor(from, true)
		require.True(t, ok)
		require.Equal(t, StageStop, tr.To, "error leaving %s", from)
	}
}

func TestDecisionTable_Coverage(t *testing.T) {
	ops := []Op{OpRestart, OpRestartWith, OpForceStop, OpSwapOutcome, OpPropagateError}
	for _, stage := range Stages() {
		for _, op := range ops {
			d, ok := DecisionFor(stage, op)
			require.True(t, ok, "missing decision for %s + %s", stage, op)
			if !d.Allowed {
				require.NotEmpty(t, d.Reason, "forbidden decision needs reason for %s + %s", stage, op)
				require.Equal(t, d.Reason, ForbiddenReason(stage, op))
			} else {
				require.Empty(t, ForbiddenReason(stage, op))
			}
		}
	}
}

func TestDecisionTable_EntryPoints(t *testing.T) {
	tests := []struct {
		op    Op
		allow []Stage
	}{
		{OpRestart, []Stage{StageStop, StageDone}},
		{OpRestartWith, []Stage{StageNone, StageStop, StageDone}},
		{OpForceStop, []Stage{StageStart, StageRun}},
	}
	for _, tt := range tests {
		allowedSet := map[Stage]bool{}
		for _, s := range tt.allow {
			allowedSet[s] = true
		}
		for _, stage := range Stages() {
			d, _ := DecisionFor(stage, tt.op)
			require.Equal(t, allowedSet[stage], d.Allowed, "%s from %s", tt.op, stage)
		}
	}
}

func TestDecisionFor_UnknownStage(t *testing.T) {
	_, ok := DecisionFor(Stage(99), OpRestart)
	require.False(t, ok)

	s := State[string]{stage: Stage(99)}
	require.False(t, s.Restart())
	require.Equal(t, Stage(99), s.Stage())
}
