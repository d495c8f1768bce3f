package safety

import (
	"github.com/octoreflex/arqon/internal/guardrails"
	"github.com/octoreflex/arqon/internal/paramreg"
)

// ProposalKind is the tag of the Proposal variant submitted by Tier 2 (or,
// for SetParams/RollbackTo/EmergencyStop, injected by an external
// governor through Core.Enforce).
type ProposalKind uint8

const (
	ProposalApplyPlus ProposalKind = iota
	ProposalApplyMinus
	ProposalUpdate
	ProposalNoChange
	ProposalSetParams
)

// NoChangeReason explains why a NoChange proposal carries no delta.
type NoChangeReason uint8

const (
	NoChangeReasonNone NoChangeReason = iota
	NoChangeReasonEvalTimeout
	NoChangeReasonCancelled
)

// Proposal is the tagged variant submitted to SafetyExecutor.Submit. Delta
// is meaningful for ApplyPlus/ApplyMinus/Update/SetParams; PairID
// correlates an SPSA +/- pair; GradientEstimate is informational, carried
// through to the audit trail for Update proposals. NeedsRollback and
// RollbackTarget are meaningful only for NoChange{EvalTimeout} and
// NoChange{Cancelled}: they tell the orchestrator the live snapshot still
// reflects an unconfirmed probe that must be rolled back to the given
// pre-probe generation before the proposer continues (spec §4.8).
type Proposal struct {
	Kind             ProposalKind
	PairID           uint64
	Iteration        uint64
	Delta            paramreg.ParamVec
	GradientEstimate paramreg.ParamVec
	NoChangeReason   NoChangeReason
	NeedsRollback    bool
	RollbackTarget   uint64
}

// DecisionKind is the tag of the outcome SafetyExecutor.Submit returns for
// every proposal.
type DecisionKind uint8

const (
	DecisionAccepted DecisionKind = iota
	DecisionRejected
	DecisionDeferred
)

// Decision is the single outcome value SafetyExecutor.Submit returns.
// Exactly one of NewGeneration/Violation is meaningful, selected by Kind.
type Decision struct {
	Kind           DecisionKind
	NewGeneration  uint64
	Violation      guardrails.Violation
	SafeModeActive bool
}
