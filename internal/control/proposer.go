// Package control defines the Proposer capability set (spec §9: "produce
// proposal from telemetry, accept verdict") and its concrete SPSAProposer
// variant (C8).
package control

import (
	"time"

	"github.com/octoreflex/arqon/internal/safety"
	"github.com/octoreflex/arqon/internal/telemetry"
)

// Proposer is the capability set any Tier-2 strategy must implement.
// Implementations are driven by the orchestrator, one step per call:
// Advance is invoked when new telemetry may be available (or on timeout),
// and Accept is invoked with the SafetyExecutor's verdict for the proposal
// Advance most recently returned. A future variant implements this
// interface directly and is wired into Core.Configure the same way SPSA
// is, since its constructor (like SPSA's) needs per-run parameters no
// no-arg factory registry could supply.
//
// Implementations must not block; any waiting is the orchestrator's job.
type Proposer interface {
	// Name returns a stable identifier for the strategy.
	Name() string

	// Advance inspects (possibly nil) newly available telemetry and
	// returns at most one Proposal to submit. ok is false if there is
	// nothing to propose this iteration (still waiting on a pending
	// probe's telemetry, for instance).
	Advance(now time.Time, digest *telemetry.Digest) (p safety.Proposal, ok bool)

	// Accept reports the SafetyExecutor's Decision for the most recent
	// proposal Advance returned, so the proposer can update its internal
	// state machine.
	Accept(d safety.Decision, now time.Time)

	// Cancel forces the proposer back to its idle/Ready state without
	// mutating configuration itself. If an in-flight probe had already
	// reached the live snapshot, needsRollback reports true and target
	// names the pre-probe generation the caller must roll back to.
	Cancel() (needsRollback bool, target uint64)
}
