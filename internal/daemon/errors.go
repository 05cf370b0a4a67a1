// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import "errors"

var (
	// ErrAlreadyStarted is returned when Run is called on an app that left NONE.
	ErrAlreadyStarted = errors.New("daemon already started")

	// ErrComponentFailed wraps the first component that returned an error.
	ErrComponentFailed = errors.New("daemon component failed")
)
