package safety

import "time"

// SafeModeReason enumerates why SafeMode was latched.
type SafeModeReason uint8

const (
	ReasonNone SafeModeReason = iota
	ReasonThrashing
	ReasonBudgetExhausted
	ReasonObjectiveRegression
	ReasonAuditQueueFull
	ReasonRepeatedViolations
	ReasonManualTrigger
)

func (r SafeModeReason) String() string {
	switch r {
	case ReasonThrashing:
		return "Thrashing"
	case ReasonBudgetExhausted:
		return "BudgetExhausted"
	case ReasonObjectiveRegression:
		return "ObjectiveRegression"
	case ReasonAuditQueueFull:
		return "AuditQueueFull"
	case ReasonRepeatedViolations:
		return "RepeatedViolations"
	case ReasonManualTrigger:
		return "ManualTrigger"
	default:
		return "None"
	}
}

// ExitKind enumerates how a latched SafeMode may be exited.
type ExitKind uint8

const (
	ExitNone ExitKind = iota
	ExitTimerRemaining
	ExitManualReset
	ExitObjectiveRecovery
)

// ExitCondition describes the one way a given SafeMode latch may be lifted.
// Only ExitManualReset and, for ObjectiveRegression, ExitObjectiveRecovery
// ever apply — AuditQueueFull and Thrashing cannot be unlatched by
// telemetry alone (spec §8 invariant 8).
type ExitCondition struct {
	Kind                ExitKind
	RequiredImprovement float64 // meaningful only for ExitObjectiveRecovery
}

// SafeMode is the latched record describing why and when the executor
// entered safe mode, and how it may leave.
type SafeMode struct {
	EnteredAt time.Time
	Reason    SafeModeReason
	Exit      ExitCondition
}

// reasonExitPolicy returns the exit condition a freshly-latched SafeMode of
// the given reason carries, per spec §4.7 / §8 invariant 8: telemetry-only
// signals cannot unlatch Thrashing or AuditQueueFull.
func reasonExitPolicy(reason SafeModeReason, requiredImprovement float64) ExitCondition {
	switch reason {
	case ReasonObjectiveRegression:
		return ExitCondition{Kind: ExitObjectiveRecovery, RequiredImprovement: requiredImprovement}
	default:
		return ExitCondition{Kind: ExitManualReset}
	}
}
