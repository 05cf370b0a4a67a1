// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

// Op is a non-advancing lifecycle operation gated by the decision table.
type Op int

const (
	OpUnknown Op = iota
	OpRestart
	OpRestartWith
	OpForceStop
	OpSwapOutcome
	OpPropagateError
)

func (o Op) String() string {
	switch o {
	case OpRestart:
		return "restart"
	case OpRestartWith:
		return "restart_with"
	case OpForceStop:
		return "force_stop"
	case OpSwapOutcome:
		return "swap_outcome"
	case OpPropagateError:
		return "propagate_error"
	default:
		return "unknown"
	}
}

// Decision records whether an operation is allowed and why it is forbidden.
type Decision struct {
	Allowed bool
	Reason  string
}

const (
	ForbiddenNoOutcome       = "no_outcome"
	ForbiddenNotSettling     = "not_settling"
	ForbiddenAlreadyStopping = "already_stopping"
	ForbiddenTerminal        = "terminal_absorbing"
	ForbiddenRequiresStop    = "requires_stop"
)

func allowed() Decision        { return Decision{Allowed: true} }
func forbid(r string) Decision { return Decision{Allowed: false, Reason: r} }

// decisionTable defines an explicit decision for every Stage×Op combination.
var decisionTable = map[Stage]map[Op]Decision{
	StageNone: {
		OpRestart:        forbid(ForbiddenNoOutcome),
		OpRestartWith:    allowed(),
		OpForceStop:      forbid(ForbiddenNoOutcome),
		OpSwapOutcome:    forbid(ForbiddenNoOutcome),
		OpPropagateError: forbid(ForbiddenNoOutcome),
	},
	StageStart: {
		OpRestart:        forbid(ForbiddenNotSettling),
		OpRestartWith:    forbid(ForbiddenNotSettling),
		OpForceStop:      allowed(),
		OpSwapOutcome:    allowed(),
		OpPropagateError: forbid(ForbiddenRequiresStop),
	},
	StageRun: {
		OpRestart:        forbid(ForbiddenNotSettling),
		OpRestartWith:    forbid(ForbiddenNotSettling),
		OpForceStop:      allowed(),
		OpSwapOutcome:    allowed(),
		OpPropagateError: forbid(ForbiddenRequiresStop),
	},
	StageStop: {
		OpRestart:        allowed(),
		OpRestartWith:    allowed(),
		OpForceStop:      forbid(ForbiddenAlreadyStopping),
		OpSwapOutcome:    allowed(),
		OpPropagateError: allowed(),
	},
	StageDone: {
		OpRestart:        allowed(),
		OpRestartWith:    allowed(),
		OpForceStop:      forbid(ForbiddenTerminal),
		OpSwapOutcome:    allowed(),
		OpPropagateError: forbid(ForbiddenTerminal),
	},
}

// DecisionFor returns the decision for a stage and operation.
func DecisionFor(stage Stage, op Op) (Decision, bool) {
	ops, ok := decisionTable[stage]
	if !ok {
		return Decision{}, false
	}
	d, ok := ops[op]
	return d, ok
}

// ForbiddenReason documents why op is disallowed from stage, or "" if it is allowed.
func ForbiddenReason(stage Stage, op Op) string {
	d, ok := DecisionFor(stage, op)
	if !ok || d.Allowed {
		return ""
	}
	return d.Reason
}

func permits(stage Stage, op Op) bool {
	d, ok := DecisionFor(stage, op)
	if !ok {
		illegalStage(stage, op.String())
		return false
	}
	return d.Allowed
}
