// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "fmt"

// Outcome is the result carried from one stage into the next.
// A non-nil Err marks a failed outcome; Value is meaningless in that case.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Ok returns a successful outcome carrying v.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Fail returns a failed outcome carrying err.
func Fail[T any](err error) Outcome[T] {
	if err == nil {
		err = ErrNilFailure
	}
	return Outcome[T]{Err: err}
}

// From converts a (value, error) pair into an outcome.
func From[T any](v T, err error) Outcome[T] {
	if err != nil {
		return Fail[T](err)
	}
	return Ok(v)
}

func (o Outcome[T]) IsOk() bool  { return o.Err == nil }
func (o Outcome[T]) IsErr() bool { return o.Err != nil }

func (o Outcome[T]) String() string {
	if o.Err != nil {
		return fmt.Sprintf("Err(%v)", o.Err)
	}
	return fmt.Sprintf("Ok(%v)", o.Value)
}
