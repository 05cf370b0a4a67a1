// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"sync"
	"sync/atomic"
)

// Wrapper encapsulates a State so that it can only be mutated through Apply,
// plus the ForceStop escape hatch used for bulk shutdown.
//
// At most one owner drives the state at a time: a concurrent Apply is rejected
// with ErrApplyInFlight and ForceStop returns false while a handler runs.
type Wrapper[T any] struct {
	mu    sync.RWMutex
	owner atomic.Bool
	state State[T]
}

// NewWrapper wraps initial.
func NewWrapper[T any](initial State[T]) *Wrapper[T] {
	return &Wrapper[T]{state: initial}
}

// Apply runs h with exclusive access to the inner state.
func (w *Wrapper[T]) Apply(h Handler[T]) error {
	if h == nil {
		return ErrNilHandler
	}
	if !w.owner.CompareAndSwap(false, true) {
		return ErrApplyInFlight
	}
	defer w.owner.Store(false)

	w.mu.Lock()
	defer w.mu.Unlock()
	h.Handle(&w.state)
	return nil
}

// ForceStop moves START or RUN straight to STOP keeping the carried outcome.
// It is meant for coordinated shutdown of many sessions and reports whether
// the transition took effect.
func (w *Wrapper[T]) ForceStop() bool {
	return w.forceStop(nil)
}

// ForceStopWith is ForceStop replacing the carried outcome with out.
func (w *Wrapper[T]) ForceStopWith(out Outcome[T]) bool {
	return w.forceStop(&out)
}

func (w *Wrapper[T]) forceStop(out *Outcome[T]) bool {
	if !w.owner.CompareAndSwap(false, true) {
		return false
	}
	defer w.owner.Store(false)

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.forceStop(out)
}

// Stage returns the current stage.
func (w *Wrapper[T]) Stage() Stage {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.Stage()
}

// IsDone reports whether the wrapped state is DONE.
func (w *Wrapper[T]) IsDone() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.IsTerminal()
}

// HasOutcome reports whether the wrapped state carries an outcome.
func (w *Wrapper[T]) HasOutcome() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.HasOutcome()
}

// PeekOutcome returns a copy of the carried outcome.
func (w *Wrapper[T]) PeekOutcome() (Outcome[T], bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.PeekOutcome()
}

// Snapshot returns stage and outcome read under a single lock.
func (w *Wrapper[T]) Snapshot() (Stage, Outcome[T]) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.stage, w.state.outcome
}
