package control

import (
	"math"
	"math/rand"
	"time"

	"github.com/octoreflex/arqon/internal/paramreg"
	"github.com/octoreflex/arqon/internal/safety"
	"github.com/octoreflex/arqon/internal/telemetry"
)

// Phase is the SPSA state machine position (spec §4.8).
type Phase uint8

const (
	PhaseReady Phase = iota
	PhaseWaitingPlus
	PhaseWaitingMinus
)

// Constants bundles the SPSA step-size schedule coefficients. Defaults
// follow the canonical Spall (1998) values; see DESIGN.md's Open Question
// decision for the rationale.
type Constants struct {
	Alpha float64 // step-size decay exponent, default 0.602
	Gamma float64 // perturbation decay exponent, default 0.101
	A     float64 // stability constant, default 10
	SmallA float64 // a: numerator of a_k, default 0.05
	SmallC float64 // c: numerator of c_k, default 0.05
}

// DefaultConstants returns the canonical Spall (1998) defaults.
func DefaultConstants() Constants {
	return Constants{Alpha: 0.602, Gamma: 0.101, A: 10, SmallA: 0.05, SmallC: 0.05}
}

func (c Constants) aK(k uint64) float64 {
	return c.SmallA / math.Pow(float64(k)+c.A+1, c.Alpha)
}

func (c Constants) cK(k uint64) float64 {
	return c.SmallC / math.Pow(float64(k)+1, c.Gamma)
}

// SPSA implements the Bernoulli +/-1 perturbation Simultaneous Perturbation
// Stochastic Approximation loop (C8). Owns its own state exclusively: no
// other component reads or mutates it.
type SPSA struct {
	numParams int
	seed      int64
	consts    Constants
	maxDelta  []float64
	evalTimeout time.Duration

	phase    Phase
	k        uint64
	pairID   uint64
	sign     paramreg.ParamVec
	pendingGen uint64
	pendingApplied bool // true once Accept has confirmed the pending probe was actually applied
	yPlus    float64
	yMinus   float64
	waitSince time.Time
}

// NewSPSA constructs a deterministic SPSA proposer. seed is the run seed
// (spec §4.8: "RNG seeded deterministically from run seed and k").
func NewSPSA(numParams int, seed int64, consts Constants, maxDelta []float64, evalTimeout time.Duration) *SPSA {
	return &SPSA{
		numParams:   numParams,
		seed:        seed,
		consts:      consts,
		maxDelta:    maxDelta,
		evalTimeout: evalTimeout,
		phase:       PhaseReady,
	}
}

func (s *SPSA) Name() string { return "spsa" }

// rngFor returns a fresh *rand.Rand deterministically seeded from the run
// seed and the iteration number, so replay from any (seed, k) pair
// reproduces the same sign vector regardless of call history.
func (s *SPSA) rngFor(k uint64) *rand.Rand {
	mixed := s.seed ^ int64(k*0x9E3779B97F4A7C15)
	return rand.New(rand.NewSource(mixed))
}

func (s *SPSA) sampleSign(k uint64) paramreg.ParamVec {
	r := s.rngFor(k)
	v := paramreg.NewParamVec(s.numParams)
	for p := 0; p < s.numParams; p++ {
		if r.Intn(2) == 0 {
			v.Set(paramreg.ParamId(p), -1)
		} else {
			v.Set(paramreg.ParamId(p), 1)
		}
	}
	return v
}

// Advance implements the state machine transition table from spec §4.8.
func (s *SPSA) Advance(now time.Time, digest *telemetry.Digest) (safety.Proposal, bool) {
	switch s.phase {
	case PhaseReady:
		s.sign = s.sampleSign(s.k)
		ck := s.consts.cK(s.k)
		delta := paramreg.NewParamVec(s.numParams)
		for p := 0; p < s.numParams; p++ {
			delta.Set(paramreg.ParamId(p), ck*s.sign.Get(paramreg.ParamId(p)))
		}
		s.pairID++
		s.waitSince = now
		s.phase = PhaseWaitingPlus
		return safety.Proposal{Kind: safety.ProposalApplyPlus, PairID: s.pairID, Iteration: s.k, Delta: delta}, true

	case PhaseWaitingPlus:
		if digest != nil && digest.Generation == s.pendingGen {
			s.yPlus = digest.Objective
			ck := s.consts.cK(s.k)
			delta := paramreg.NewParamVec(s.numParams)
			for p := 0; p < s.numParams; p++ {
				delta.Set(paramreg.ParamId(p), -2*ck*s.sign.Get(paramreg.ParamId(p)))
			}
			s.waitSince = now
			s.phase = PhaseWaitingMinus
			return safety.Proposal{Kind: safety.ProposalApplyMinus, PairID: s.pairID, Iteration: s.k, Delta: delta}, true
		}
		if now.Sub(s.waitSince) > s.evalTimeout {
			return s.timeoutRollback()
		}
		return safety.Proposal{}, false

	case PhaseWaitingMinus:
		if digest != nil && digest.Generation == s.pendingGen {
			s.yMinus = digest.Objective
			s.pendingApplied = false
			s.phase = PhaseReady
			return s.computeUpdate(), true
		}
		if now.Sub(s.waitSince) > s.evalTimeout {
			return s.timeoutRollback()
		}
		return safety.Proposal{}, false
	}
	return safety.Proposal{}, false
}

func (s *SPSA) computeUpdate() safety.Proposal {
	ak := s.consts.aK(s.k)
	ck := s.consts.cK(s.k)
	grad := paramreg.NewParamVec(s.numParams)
	delta := paramreg.NewParamVec(s.numParams)
	for p := 0; p < s.numParams; p++ {
		pid := paramreg.ParamId(p)
		sign := s.sign.Get(pid)
		g := (s.yPlus - s.yMinus) / (2 * ck * sign)
		grad.Set(pid, g)
		d := -ak * g
		max := s.maxDelta[p]
		if d > max {
			d = max
		} else if d < -max {
			d = -max
		}
		delta.Set(pid, d)
	}
	return safety.Proposal{Kind: safety.ProposalUpdate, Iteration: s.k, Delta: delta, GradientEstimate: grad}
}

// pendingRollbackTarget reports whether the probe currently pending (the
// one Submit last accepted while in WaitingPlus/WaitingMinus) actually
// reached the live snapshot, and if so, the pre-probe generation to roll
// back to. A probe that was rejected or deferred never touched the
// snapshot, so there is nothing to undo.
func (s *SPSA) pendingRollbackTarget() (needsRollback bool, target uint64) {
	if !s.pendingApplied {
		return false, 0
	}
	return true, s.pendingGen - 1
}

func (s *SPSA) timeoutRollback() (safety.Proposal, bool) {
	needsRollback, target := s.pendingRollbackTarget()
	s.pendingApplied = false
	s.phase = PhaseReady
	s.k++
	return safety.Proposal{
		Kind: safety.ProposalNoChange, Iteration: s.k, NoChangeReason: safety.NoChangeReasonEvalTimeout,
		NeedsRollback: needsRollback, RollbackTarget: target,
	}, true
}

// Accept updates the state machine from the executor's verdict, per spec
// §4.8: the pair's probe generation is recorded on acceptance so a later
// telemetry digest can be matched to it; on Update acceptance or
// rejection, the iteration advances and the proposer returns to Ready.
func (s *SPSA) Accept(d safety.Decision, now time.Time) {
	switch s.phase {
	case PhaseWaitingPlus, PhaseWaitingMinus:
		if d.Kind == safety.DecisionAccepted {
			s.pendingGen = d.NewGeneration
			s.pendingApplied = true
		}
		// Rejected/Deferred probes stay pending; the orchestrator's
		// eval-timeout path will roll them back.
	default:
		if d.Kind != safety.DecisionDeferred {
			s.phase = PhaseReady
			s.k++
		}
	}
}

// Cancel forces the proposer back to Ready without mutating configuration
// itself. If a probe had already reached the live snapshot, needsRollback
// reports true and target names the pre-probe generation the caller must
// roll back to (spec §4.8: "any in-flight probe is rolled back").
func (s *SPSA) Cancel() (needsRollback bool, target uint64) {
	needsRollback, target = s.pendingRollbackTarget()
	s.pendingApplied = false
	s.phase = PhaseReady
	return needsRollback, target
}
