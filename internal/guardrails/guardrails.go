// Package guardrails implements Guardrails (C5): a pure, deterministic,
// idempotent function from a proposed delta, the current snapshot, bounds
// and config to either Ok or a single Violation — the first failure in a
// fixed check order. It holds no state of its own.
package guardrails

import (
	"time"

	"github.com/octoreflex/arqon/internal/paramreg"
	"github.com/octoreflex/arqon/internal/snapshot"
)

// Kind enumerates the refusal kinds a proposal may hit, spanning both the
// pure Guardrails checks (1-4) and the stateful ControlSafety checks (5-8,
// see package safety) so that a single Violation type can flow through the
// whole Submit pipeline.
type Kind uint8

const (
	KindNone Kind = iota
	KindUnknownParameter
	KindDeltaTooLarge
	KindOutOfBounds
	KindRateLimitExceeded
	KindThrashing
	KindBudgetExhausted
	KindObjectiveRegression
	KindConstraintViolation
	KindAuditQueueFull
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindUnknownParameter:
		return "UnknownParameter"
	case KindDeltaTooLarge:
		return "DeltaTooLarge"
	case KindOutOfBounds:
		return "OutOfBounds"
	case KindRateLimitExceeded:
		return "RateLimitExceeded"
	case KindThrashing:
		return "Thrashing"
	case KindBudgetExhausted:
		return "BudgetExhausted"
	case KindObjectiveRegression:
		return "ObjectiveRegression"
	case KindConstraintViolation:
		return "ConstraintViolation"
	case KindAuditQueueFull:
		return "AuditQueueFull"
	default:
		return "Unknown"
	}
}

// Violation is the single refusal a proposal may carry, with enough
// context to reconstruct spec.md §8 scenario 2's expected audit payload
// (e.g. DeltaTooLarge(pid, delta, max)).
type Violation struct {
	Kind  Kind
	PID   paramreg.ParamId
	Delta float64
	Limit float64
}

// Config is the immutable Guardrails configuration bundle (spec §3),
// covering both the pure checks here and the stateful checks in package
// safety. NumParams-length slices are indexed by ParamId.
type Config struct {
	MaxAbsDelta               []float64 // per-parameter cap on |delta| in a single apply
	MaxUpdatesPerSecond       float64   // derives MinInterval
	MinInterval               time.Duration
	DirectionFlipLimit        int           // ControlSafety
	CooldownAfterFlip         time.Duration // ControlSafety
	MaxCumulativeDeltaPerMin  []float64     // ControlSafety, per-parameter
	RegressionCountLimit      int           // ControlSafety
	RegressionEpsilon         float64       // ControlSafety, see DESIGN.md Open Question
}

// Check runs the four pure checks in spec order and returns the first
// violation encountered, or a zero Violation (Kind == KindNone) if all
// pass. current and bounds must have at least len(delta.values-active)
// entries; lastAcceptedAt is the zero time.Time if no apply has ever been
// accepted yet.
//
// Check is pure: identical inputs always produce an identical result, and
// calling it twice with the same arguments is safe (idempotent).
func Check(delta paramreg.ParamVec, numParams int, cur *snapshot.Snapshot, bounds []paramreg.Bounds, cfg *Config, now time.Time, lastAcceptedAt time.Time) Violation {
	// 1. UnknownParameter: any non-zero delta at pid >= numParams.
	if delta.Len() > numParams {
		for p := numParams; p < delta.Len(); p++ {
			if delta.Get(paramreg.ParamId(p)) != 0 {
				return Violation{Kind: KindUnknownParameter, PID: paramreg.ParamId(p), Delta: delta.Get(paramreg.ParamId(p))}
			}
		}
	}

	// 2. DeltaTooLarge.
	for p := 0; p < numParams; p++ {
		pid := paramreg.ParamId(p)
		d := delta.Get(pid)
		max := cfg.MaxAbsDelta[p]
		if abs(d) > max {
			return Violation{Kind: KindDeltaTooLarge, PID: pid, Delta: d, Limit: max}
		}
	}

	// 3. OutOfBounds.
	for p := 0; p < numParams; p++ {
		pid := paramreg.ParamId(p)
		next := cur.Get(pid) + delta.Get(pid)
		b := bounds[p]
		if next < b.Min || next > b.Max {
			return Violation{Kind: KindOutOfBounds, PID: pid, Delta: next}
		}
	}

	// 4. RateLimitExceeded.
	if !lastAcceptedAt.IsZero() && now.Sub(lastAcceptedAt) < cfg.MinInterval {
		return Violation{Kind: KindRateLimitExceeded}
	}

	return Violation{Kind: KindNone}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
