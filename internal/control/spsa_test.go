package control

import (
	"testing"
	"time"

	"github.com/octoreflex/arqon/internal/paramreg"
	"github.com/octoreflex/arqon/internal/safety"
	"github.com/octoreflex/arqon/internal/telemetry"
)

func TestSPSAReadyEmitsApplyPlus(t *testing.T) {
	s := NewSPSA(2, 42, DefaultConstants(), []float64{1, 1}, 10*time.Millisecond)
	p, ok := s.Advance(time.Now(), nil)
	if !ok {
		t.Fatalf("Advance returned ok=false on first call")
	}
	if p.Kind != safety.ProposalApplyPlus {
		t.Fatalf("Kind = %v, want ApplyPlus", p.Kind)
	}
}

func TestSPSADeterministicSignVector(t *testing.T) {
	s1 := NewSPSA(3, 1234, DefaultConstants(), []float64{1, 1, 1}, 10*time.Millisecond)
	s2 := NewSPSA(3, 1234, DefaultConstants(), []float64{1, 1, 1}, 10*time.Millisecond)

	p1, _ := s1.Advance(time.Now(), nil)
	p2, _ := s2.Advance(time.Now(), nil)

	for i := 0; i < 3; i++ {
		d1 := p1.Delta.Get(paramreg.ParamId(i))
		d2 := p2.Delta.Get(paramreg.ParamId(i))
		if d1 != d2 {
			t.Fatalf("param %d: delta1=%v delta2=%v, want identical (same seed)", i, d1, d2)
		}
	}
}

func TestSPSADifferentSeedsDiverge(t *testing.T) {
	s1 := NewSPSA(8, 1, DefaultConstants(), make([]float64, 8), 10*time.Millisecond)
	s2 := NewSPSA(8, 2, DefaultConstants(), make([]float64, 8), 10*time.Millisecond)

	p1, _ := s1.Advance(time.Now(), nil)
	p2, _ := s2.Advance(time.Now(), nil)

	same := true
	for i := 0; i < 8; i++ {
		if p1.Delta.Get(paramreg.ParamId(i)) != p2.Delta.Get(paramreg.ParamId(i)) {
			same = false
		}
	}
	if same {
		t.Fatalf("expected sign vectors to differ across seeds with 8 parameters")
	}
}

// TestSPSAMinusNetsFromPlusPosition verifies the ApplyMinus delta moves the
// parameter from the +c_k*s position to the -c_k*s position, per spec
// §4.8's "net move from + to -" annotation on the ApplyMinus emission.
func TestSPSAMinusNetsFromPlusPosition(t *testing.T) {
	consts := DefaultConstants()
	s := NewSPSA(1, 7, consts, []float64{10}, 10*time.Millisecond)

	plus, _ := s.Advance(time.Now(), nil)
	s.Accept(safety.Decision{Kind: safety.DecisionAccepted, NewGeneration: 1}, time.Now())

	digest := telemetry.Digest{Generation: 1, Objective: 1.0}
	minus, ok := s.Advance(time.Now(), &digest)
	if !ok {
		t.Fatalf("expected ApplyMinus after matching telemetry")
	}
	if minus.Kind != safety.ProposalApplyMinus {
		t.Fatalf("Kind = %v, want ApplyMinus", minus.Kind)
	}

	want := -2 * plus.Delta.Get(0)
	got := minus.Delta.Get(0)
	if got != want {
		t.Fatalf("ApplyMinus delta = %v, want %v (= -2 * ApplyPlus delta)", got, want)
	}
}

// TestSPSATimeoutRollsBackAppliedProbe covers spec §4.8 scenario 5: a probe
// that was accepted (and so reached the live snapshot) whose matching
// telemetry never arrives must be reported for rollback to its pre-probe
// generation.
func TestSPSATimeoutRollsBackAppliedProbe(t *testing.T) {
	s := NewSPSA(1, 7, DefaultConstants(), []float64{10}, 5*time.Millisecond)
	start := time.Now()

	plus, _ := s.Advance(start, nil)
	if plus.Kind != safety.ProposalApplyPlus {
		t.Fatalf("Kind = %v, want ApplyPlus", plus.Kind)
	}
	s.Accept(safety.Decision{Kind: safety.DecisionAccepted, NewGeneration: 5}, start)

	late := start.Add(10 * time.Millisecond)
	p, ok := s.Advance(late, nil)
	if !ok {
		t.Fatalf("expected a NoChange proposal on eval timeout")
	}
	if p.Kind != safety.ProposalNoChange || p.NoChangeReason != safety.NoChangeReasonEvalTimeout {
		t.Fatalf("Proposal = %+v, want NoChange/EvalTimeout", p)
	}
	if !p.NeedsRollback {
		t.Fatalf("NeedsRollback = false, want true (the Plus probe had reached gen 5)")
	}
	if p.RollbackTarget != 4 {
		t.Fatalf("RollbackTarget = %d, want 4 (pre-probe generation)", p.RollbackTarget)
	}
}

// TestSPSATimeoutWithoutAppliedProbeNeedsNoRollback covers the converse: a
// probe that was never accepted never touched the snapshot, so there is
// nothing to undo.
func TestSPSATimeoutWithoutAppliedProbeNeedsNoRollback(t *testing.T) {
	s := NewSPSA(1, 7, DefaultConstants(), []float64{10}, 5*time.Millisecond)
	start := time.Now()

	plus, _ := s.Advance(start, nil)
	if plus.Kind != safety.ProposalApplyPlus {
		t.Fatalf("Kind = %v, want ApplyPlus", plus.Kind)
	}
	s.Accept(safety.Decision{Kind: safety.DecisionRejected}, start)

	late := start.Add(10 * time.Millisecond)
	p, ok := s.Advance(late, nil)
	if !ok {
		t.Fatalf("expected a NoChange proposal on eval timeout")
	}
	if p.NeedsRollback {
		t.Fatalf("NeedsRollback = true, want false (the Plus probe was rejected, never applied)")
	}
}

// TestSPSACancelRollsBackAppliedProbe covers spec §4.8's "any in-flight
// probe is rolled back" on cancellation.
func TestSPSACancelRollsBackAppliedProbe(t *testing.T) {
	s := NewSPSA(1, 7, DefaultConstants(), []float64{10}, 5*time.Millisecond)
	now := time.Now()

	plus, _ := s.Advance(now, nil)
	if plus.Kind != safety.ProposalApplyPlus {
		t.Fatalf("Kind = %v, want ApplyPlus", plus.Kind)
	}
	s.Accept(safety.Decision{Kind: safety.DecisionAccepted, NewGeneration: 9}, now)

	needsRollback, target := s.Cancel()
	if !needsRollback {
		t.Fatalf("Cancel: needsRollback = false, want true")
	}
	if target != 8 {
		t.Fatalf("Cancel: target = %d, want 8 (pre-probe generation)", target)
	}

	// A second Cancel (nothing pending now) reports no rollback.
	if needsRollback, _ := s.Cancel(); needsRollback {
		t.Fatalf("second Cancel: needsRollback = true, want false (nothing pending)")
	}
}
