// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build !debug

package lifecycle

import "github.com/ManuGH/capsync/internal/log"

func illegalStage(stage Stage, op string) {
	log.L().Error().
		Err(ErrInvalidStage).
		Int("stage", int(stage)).
		Str("op", op).
		Msg("lifecycle operation on invalid stage ignored")
}
