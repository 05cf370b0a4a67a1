// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "fmt"

// State is a four-stage lifecycle (START → RUN → STOP → DONE) carrying the
// outcome produced by the previous stage. The zero value is NONE.
//
// Stage index never decreases except through Restart and RestartWith, and an
// error leaving START or RUN always passes through STOP before DONE.
type State[T any] struct {
	stage   Stage
	outcome Outcome[T]
}

// New returns a state seeded in START with the given outcome.
func New[T any](initial Outcome[T]) State[T] {
	return State[T]{stage: StageStart, outcome: initial}
}

// Stage returns the current stage.
func (s *State[T]) Stage() Stage {
	return s.stage
}

// AdvanceSuccess moves one stage forward with Ok(v).
// In DONE the outcome is replaced and the previous one is returned with true.
func (s *State[T]) AdvanceSuccess(v T) (Outcome[T], bool) {
	return s.AdvanceWith(Ok(v))
}

// AdvanceFailure moves one stage forward with Fail(err); START and RUN land in STOP.
// In DONE the outcome is replaced and the previous one is returned with true.
func (s *State[T]) AdvanceFailure(err error) (Outcome[T], bool) {
	return s.AdvanceWith(Fail[T](err))
}

// AdvanceWith moves one stage forward carrying out. A failed out takes the
// failure edge, so START never reaches RUN with an error.
func (s *State[T]) AdvanceWith(out Outcome[T]) (Outcome[T], bool) {
	var zero Outcome[T]
	switch s.stage {
	case StageNone:
		return zero, false
	case StageStart, StageRun, StageStop, StageDone:
	default:
		illegalStage(s.stage, "advance")
		return zero, false
	}

	tr, ok := TransitionFor(s.stage, out.IsErr())
	if !ok {
		return zero, false
	}
	prev, wasDone := s.outcome, s.stage == StageDone
	s.stage = tr.To
	s.outcome = out
	if wasDone {
		return prev, true
	}
	return zero, false
}

// AdvanceAuto carries the current outcome one stage forward.
// START with a failed outcome jumps straight to STOP; DONE stays DONE.
func (s *State[T]) AdvanceAuto() {
	switch s.stage {
	case StageNone:
		return
	case StageStart, StageRun, StageStop, StageDone:
	default:
		illegalStage(s.stage, "advance_auto")
		return
	}
	if tr, ok := TransitionFor(s.stage, s.outcome.IsErr()); ok {
		s.stage = tr.To
	}
}

// Restart moves the carried outcome into a fresh START. Only STOP and DONE
// accept a restart; otherwise the state is left unchanged and false is returned.
func (s *State[T]) Restart() bool {
	if !permits(s.stage, OpRestart) {
		return false
	}
	s.stage = StageStart
	return true
}

// RestartWith seeds a fresh START with out, discarding any prior outcome.
// Accepted from NONE, STOP and DONE.
func (s *State[T]) RestartWith(out Outcome[T]) bool {
	if !permits(s.stage, OpRestartWith) {
		return false
	}
	s.stage = StageStart
	s.outcome = out
	return true
}

// SwapOutcome exchanges the carried outcome for out and returns the old one.
// In NONE nothing is stored and false is returned.
func (s *State[T]) SwapOutcome(out Outcome[T]) (Outcome[T], bool) {
	if !permits(s.stage, OpSwapOutcome) {
		return Outcome[T]{}, false
	}
	prev := s.outcome
	s.outcome = out
	return prev, true
}

// PropagateError moves a STOP carrying an error straight into DONE and returns
// false, telling the caller not to run its own stop logic. In every other case
// it returns true and leaves the state alone.
func (s *State[T]) PropagateError() bool {
	if !permits(s.stage, OpPropagateError) || s.outcome.IsOk() {
		return true
	}
	s.stage = StageDone
	return false
}

// forceStop jumps START or RUN directly to STOP, optionally replacing the outcome.
func (s *State[T]) forceStop(out *Outcome[T]) bool {
	if !permits(s.stage, OpForceStop) {
		return false
	}
	s.stage = StageStop
	if out != nil {
		s.outcome = *out
	}
	return true
}

// IsTerminal reports whether the state is DONE.
func (s *State[T]) IsTerminal() bool {
	return s.stage.IsTerminal()
}

// HasOutcome reports whether the state carries an outcome (every stage but NONE).
func (s *State[T]) HasOutcome() bool {
	return s.stage != StageNone
}

// PeekOutcome returns the carried outcome without moving it.
func (s *State[T]) PeekOutcome() (Outcome[T], bool) {
	if !s.HasOutcome() {
		return Outcome[T]{}, false
	}
	return s.outcome, true
}

func (s *State[T]) String() string {
	if !s.HasOutcome() {
		return s.stage.String()
	}
	return fmt.Sprintf("%s(%s)", s.stage, s.outcome)
}
