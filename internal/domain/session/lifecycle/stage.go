// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

// Stage is the lifecycle stage a session occupies.
type Stage int

const (
	StageNone Stage = iota
	StageStart
	StageRun
	StageStop
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "NONE"
	case StageStart:
		return "START"
	case StageRun:
		return "RUN"
	case StageStop:
		return "STOP"
	case StageDone:
		return "DONE"
	default:
		return "INVALID"
	}
}

// IsTerminal reports whether s is the absorbing stage.
func (s Stage) IsTerminal() bool {
	return s == StageDone
}

// Stages lists every valid stage in lifecycle order.
func Stages() []Stage {
	return []Stage{StageNone, StageStart, StageRun, StageStop, StageDone}
}
