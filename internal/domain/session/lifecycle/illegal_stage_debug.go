// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build debug

package lifecycle

import "fmt"

func illegalStage(stage Stage, op string) {
	panic(fmt.Sprintf("%v: %d during %s", ErrInvalidStage, int(stage), op))
}
