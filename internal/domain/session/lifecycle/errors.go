// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "errors"

var (
	// ErrApplyInFlight is returned when a second handler tries to drive a
	// wrapper while another one still owns it.
	ErrApplyInFlight = errors.New("lifecycle: handler already in flight")
	// ErrNilHandler is returned by Apply when no handler is supplied.
	ErrNilHandler = errors.New("lifecycle: nil handler")
	// ErrNilFailure replaces a nil error passed to a failure transition.
	ErrNilFailure = errors.New("lifecycle: failure without cause")
	// ErrInvalidStage marks a stage value outside the closed Stage set.
	ErrInvalidStage = errors.New("lifecycle: invalid stage")
)
