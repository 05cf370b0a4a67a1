// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/rs/zerolog"

// Handler is the single mutator of a wrapped State. Handle receives exclusive
// access for the duration of the call and must not call back into the Wrapper.
type Handler[T any] interface {
	Handle(state *State[T])
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc[T any] func(state *State[T])

func (f HandlerFunc[T]) Handle(state *State[T]) { f(state) }

// LogHandler writes the current stage and outcome to Logger without mutating the state.
type LogHandler[T any] struct {
	Logger zerolog.Logger
	Msg    string
}

func (h LogHandler[T]) Handle(state *State[T]) {
	msg := h.Msg
	if msg == "" {
		msg = "lifecycle state"
	}
	ev := h.Logger.Debug().Str("stage", state.Stage().String())
	if out, ok := state.PeekOutcome(); ok {
		if out.IsErr() {
			ev = ev.AnErr("outcome_err", out.Err)
		} else {
			ev = ev.Interface("outcome", out.Value)
		}
	}
	ev.Msg(msg)
}
