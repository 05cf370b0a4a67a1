// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"errors"
	"fmt"

	"github.com/ManuGH/capsync/internal/domain/session/lifecycle"
)

var (
	ErrAcquire            = errors.New("acquire failed")
	ErrPull               = errors.New("pull failed")
	ErrNoCapture          = errors.New("no capture attached")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidSubscriber  = errors.New("invalid subscriber id")
	ErrMissingInventory   = errors.New("manager: inventory is required")
	ErrMissingAcquirer    = errors.New("manager: acquirer is required")
	ErrShutdownIncomplete = errors.New("manager: sessions still tracked at shutdown deadline")
)

// StageError wraps a device error with the stage it occurred in.
// errors.Is matches both Kind (ErrAcquire, ErrPull) and the cause.
type StageError struct {
	Stage lifecycle.Stage
	Key   string
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Key, e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// ErrorClass returns a low-cardinality label for err, suitable for metrics.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrAcquire):
		return "acquire"
	case errors.Is(err, ErrPull):
		return "pull"
	default:
		return "other"
	}
}
