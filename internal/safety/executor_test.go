package safety

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/octoreflex/arqon/internal/audit"
	"github.com/octoreflex/arqon/internal/guardrails"
	"github.com/octoreflex/arqon/internal/obs"
	"github.com/octoreflex/arqon/internal/paramreg"
	"github.com/octoreflex/arqon/internal/snapshot"
)

func newTestExecutor(t *testing.T) (*Executor, *audit.Queue) {
	t.Helper()
	bounds := []paramreg.Bounds{{Min: -10, Max: 10}, {Min: -10, Max: 10}}
	cfg := &guardrails.Config{
		MaxAbsDelta:              []float64{0.2, 0.2},
		MaxUpdatesPerSecond:      1_000_000,
		MinInterval:              time.Microsecond,
		DirectionFlipLimit:       3,
		CooldownAfterFlip:        time.Second,
		MaxCumulativeDeltaPerMin: []float64{1000, 1000},
		RegressionCountLimit:     5,
		RegressionEpsilon:        1e-6,
	}
	initial := snapshot.Snapshot{Values: paramreg.NewParamVec(2), Generation: 0}
	aq := audit.NewQueue(64)
	m := obs.NewMetrics("test")
	log := zap.NewNop()
	return NewExecutor(2, bounds, cfg, initial, aq, log, m), aq
}

func TestSubmitAcceptsWithinLimits(t *testing.T) {
	e, _ := newTestExecutor(t)
	delta := paramreg.NewParamVec(2)
	delta.Set(0, 0.1)

	d := e.Submit(Proposal{Kind: ProposalUpdate, Delta: delta}, time.Now())
	if d.Kind != DecisionAccepted {
		t.Fatalf("Decision = %+v, want Accepted", d)
	}
	if d.NewGeneration != 1 {
		t.Fatalf("NewGeneration = %d, want 1", d.NewGeneration)
	}
	if got := e.Current().Get(0); got != 0.1 {
		t.Fatalf("current value = %v, want 0.1", got)
	}
}

func TestSubmitRejectsDeltaTooLarge(t *testing.T) {
	e, _ := newTestExecutor(t)
	delta := paramreg.NewParamVec(2)
	delta.Set(0, 0.5)

	d := e.Submit(Proposal{Kind: ProposalUpdate, Delta: delta}, time.Now())
	if d.Kind != DecisionRejected || d.Violation.Kind != guardrails.KindDeltaTooLarge {
		t.Fatalf("Decision = %+v, want Rejected/DeltaTooLarge", d)
	}
	if e.Current().Generation != 0 {
		t.Fatalf("generation advanced on rejection: %d", e.Current().Generation)
	}
}

func TestGenerationMonotonicAcrossAccepts(t *testing.T) {
	e, _ := newTestExecutor(t)
	now := time.Now()
	var lastGen uint64
	for i := 0; i < 5; i++ {
		delta := paramreg.NewParamVec(2)
		delta.Set(0, 0.01)
		now = now.Add(time.Millisecond)
		d := e.Submit(Proposal{Kind: ProposalUpdate, Delta: delta}, now)
		if d.Kind != DecisionAccepted {
			t.Fatalf("iteration %d: Decision = %+v, want Accepted", i, d)
		}
		if d.NewGeneration <= lastGen {
			t.Fatalf("generation not strictly increasing: %d -> %d", lastGen, d.NewGeneration)
		}
		lastGen = d.NewGeneration
	}
}

func TestThrashingLatchesSafeMode(t *testing.T) {
	e, _ := newTestExecutor(t)
	now := time.Now()

	dirs := []float64{0.1, -0.1, 0.1, -0.1}
	var last Decision
	for _, d := range dirs {
		delta := paramreg.NewParamVec(2)
		delta.Set(0, d)
		now = now.Add(time.Millisecond)
		last = e.Submit(Proposal{Kind: ProposalUpdate, Delta: delta}, now)
	}
	if last.Kind != DecisionRejected || last.Violation.Kind != guardrails.KindThrashing {
		t.Fatalf("final Decision = %+v, want Rejected/Thrashing", last)
	}
	sm := e.SafeModeState()
	if sm == nil || sm.Reason != ReasonThrashing {
		t.Fatalf("SafeModeState = %+v, want latched with ReasonThrashing", sm)
	}

	// Subsequent proposals defer while SafeMode is latched (spec §4.7 step 1).
	delta := paramreg.NewParamVec(2)
	now = now.Add(time.Millisecond)
	deferred := e.Submit(Proposal{Kind: ProposalUpdate, Delta: delta}, now)
	if deferred.Kind != DecisionDeferred {
		t.Fatalf("Decision after latch = %+v, want Deferred", deferred)
	}
}

func TestRollbackRestoresValuesWithIncreasingGeneration(t *testing.T) {
	e, _ := newTestExecutor(t)
	now := time.Now()

	delta := paramreg.NewParamVec(2)
	delta.Set(0, 0.1)
	first := e.Submit(Proposal{Kind: ProposalUpdate, Delta: delta}, now)
	if first.Kind != DecisionAccepted {
		t.Fatalf("first Submit = %+v, want Accepted", first)
	}
	before := e.Current().Values

	delta2 := paramreg.NewParamVec(2)
	delta2.Set(1, 0.1)
	now = now.Add(time.Millisecond)
	second := e.Submit(Proposal{Kind: ProposalUpdate, Delta: delta2}, now)
	if second.Kind != DecisionAccepted {
		t.Fatalf("second Submit = %+v, want Accepted", second)
	}

	rollback, err := e.RollbackTo(first.NewGeneration, now.Add(time.Millisecond))
	if err != nil {
		t.Fatalf("RollbackTo: %v", err)
	}
	if rollback.NewGeneration <= second.NewGeneration {
		t.Fatalf("rollback generation %d not > prior generation %d", rollback.NewGeneration, second.NewGeneration)
	}
	cur := e.Current()
	if cur.Get(0) != before.Get(0) || cur.Get(1) != before.Get(1) {
		t.Fatalf("rollback values = (%v, %v), want (%v, %v)", cur.Get(0), cur.Get(1), before.Get(0), before.Get(1))
	}
}

// TestSubmitSteadyStateAllocationFree asserts spec §5's "apply path
// (submit, publish, audit-push) performs zero heap allocations" for the
// repeated-accept steady state: no SafeMode latch, no rollback, no
// rejection, just proposal after proposal landing on the live snapshot.
func TestSubmitSteadyStateAllocationFree(t *testing.T) {
	e, _ := newTestExecutor(t)
	now := time.Now()
	delta := paramreg.NewParamVec(2)
	delta.Set(0, 0.001) // small, same direction every call: never thrashes or exhausts budget

	avg := testing.AllocsPerRun(200, func() {
		now = now.Add(time.Millisecond)
		d := e.Submit(Proposal{Kind: ProposalUpdate, Delta: delta}, now)
		if d.Kind != DecisionAccepted {
			t.Fatalf("Submit = %+v, want Accepted", d)
		}
	})
	if avg != 0 {
		t.Fatalf("Submit averaged %v allocs/run, want 0", avg)
	}
}

func TestManualResetRequiredForRepeatedViolations(t *testing.T) {
	e, _ := newTestExecutor(t)
	now := time.Now()
	for i := 0; i < 6; i++ {
		delta := paramreg.NewParamVec(2)
		delta.Set(0, 0.5) // always DeltaTooLarge
		now = now.Add(time.Millisecond)
		e.Submit(Proposal{Kind: ProposalUpdate, Delta: delta}, now)
	}
	sm := e.SafeModeState()
	if sm == nil || sm.Reason != ReasonRepeatedViolations {
		t.Fatalf("SafeModeState = %+v, want latched with ReasonRepeatedViolations", sm)
	}
	if e.ResetSafeMode(now, false) {
		t.Fatalf("ResetSafeMode(manual=false) succeeded for RepeatedViolations, want false")
	}
	if !e.ResetSafeMode(now, true) {
		t.Fatalf("ResetSafeMode(manual=true) failed")
	}
	if e.SafeModeState() != nil {
		t.Fatalf("SafeMode still latched after manual reset")
	}
}
