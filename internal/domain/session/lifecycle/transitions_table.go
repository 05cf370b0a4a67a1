// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

// Transition is a single allowed advancing edge in the lifecycle state machine.
// Failed selects the edge taken when the outcome leaving From is an error.
type Transition struct {
	From   Stage
	Failed bool
	To     Stage
}

// advanceTable is the single source of truth for forward movement.
// An error leaving START or RUN always lands in STOP; DONE is absorbing.
var advanceTable = []Transition{
	{From: StageStart, Failed: false, To: StageRun},
	{From: StageStart, Failed: true, To: StageStop},

	{From: StageRun, Failed: false, To: StageStop},
	{From: StageRun, Failed: true, To: StageStop},

	{From: StageStop, Failed: false, To: StageDone},
	{From: StageStop, Failed: true, To: StageDone},

	{From: StageDone, Failed: false, To: StageDone},
	{From: StageDone, Failed: true, To: StageDone},
}

// TransitionFor returns the advancing edge for a stage and outcome kind.
// NONE has no outgoing edge; it must be seeded with RestartWith.
func TransitionFor(from Stage, failed bool) (Transition, bool) {
	for _, tr := range advanceTable {
		if tr.From == from && tr.Failed == failed {
			return tr, true
		}
	}
	return Transition{}, false
}
