package safety

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/octoreflex/arqon/internal/arqonerr"
	"github.com/octoreflex/arqon/internal/audit"
	"github.com/octoreflex/arqon/internal/guardrails"
	"github.com/octoreflex/arqon/internal/obs"
	"github.com/octoreflex/arqon/internal/paramreg"
	"github.com/octoreflex/arqon/internal/snapshot"
)

// historyCap bounds how many past snapshots SafetyExecutor retains for
// RollbackTo. Large enough to cover any realistic eval-timeout rollback
// depth (spec scenario 5 rolls back exactly one generation) without
// growing unbounded.
const historyCap = 256

// EnforceAction is the tagged action an external governor may inject via
// Core.Enforce (spec §6). SetParams is submitted through the ordinary
// Submit path (see DESIGN.md Open Question decisions) so it remains
// auditable and bounds-checked; the others are handled directly here.
type EnforceAction struct {
	Kind           EnforceKind
	SetParamsDelta paramreg.ParamVec
	RollbackTarget uint64
}

type EnforceKind uint8

const (
	EnforceSetParams EnforceKind = iota
	EnforceEmergencyStop
	EnforcePauseAdaptation
	EnforceResumeAdaptation
	EnforceRollbackTo
)

// Executor is the sole writer of ConfigSnapshot (Tier 1). All mutation
// goes through Submit.
type Executor struct {
	mu sync.Mutex

	numParams int
	bounds    []paramreg.Bounds
	cfg       *guardrails.Config
	runID     string

	pub *snapshot.Publisher
	cs  *ControlSafety
	aq  *audit.Queue

	log *zap.Logger
	m   *obs.Metrics

	lastAcceptedAt time.Time
	history        []snapshot.Snapshot // the last historyCap published snapshots; once full, the oldest slot is overwritten

	safeMode  *SafeMode
	paused    bool

	violationWindow   time.Duration
	violationLimit    int
	recentViolations  []time.Time

	baselineSnapshot snapshot.Snapshot // pre-declared baseline for EmergencyStop

	// rejectedByKind, safeModeEnterByReason and safeModeExitByReason cache
	// the result of Metrics.Rejected/SafeModeTransitions.WithLabelValues,
	// resolved once at construction. WithLabelValues itself allocates (it
	// hashes and may intern the label set), so calling it from Submit's
	// reject/latch paths would violate spec §5's zero-allocation apply
	// path; a plain map read does not allocate.
	rejectedByKind        map[guardrails.Kind]prometheus.Counter
	safeModeEnterByReason map[SafeModeReason]prometheus.Counter
	safeModeExitByReason  map[SafeModeReason]prometheus.Counter
}

// NewExecutor constructs the Tier-1 executor. initial is the ConfigSnapshot
// at generation 0.
func NewExecutor(numParams int, bounds []paramreg.Bounds, cfg *guardrails.Config, initial snapshot.Snapshot, aq *audit.Queue, log *zap.Logger, m *obs.Metrics) *Executor {
	history := make([]snapshot.Snapshot, 1, historyCap)
	history[0] = initial

	e := &Executor{
		numParams:        numParams,
		bounds:           bounds,
		cfg:              cfg,
		runID:            uuid.NewString(),
		pub:              snapshot.NewPublisher(initial),
		cs:               NewControlSafety(numParams, cfg),
		aq:               aq,
		log:              log,
		m:                m,
		history:          history,
		recentViolations: make([]time.Time, 0, 32),
		violationWindow:  10 * time.Second,
		violationLimit:   5,
		baselineSnapshot: initial,
	}

	rejectKinds := []guardrails.Kind{
		guardrails.KindUnknownParameter, guardrails.KindDeltaTooLarge, guardrails.KindOutOfBounds,
		guardrails.KindRateLimitExceeded, guardrails.KindThrashing, guardrails.KindBudgetExhausted,
		guardrails.KindObjectiveRegression, guardrails.KindConstraintViolation, guardrails.KindAuditQueueFull,
	}
	e.rejectedByKind = make(map[guardrails.Kind]prometheus.Counter, len(rejectKinds))
	for _, k := range rejectKinds {
		e.rejectedByKind[k] = m.Rejected.WithLabelValues(k.String())
	}

	reasons := []SafeModeReason{
		ReasonThrashing, ReasonBudgetExhausted, ReasonObjectiveRegression,
		ReasonAuditQueueFull, ReasonRepeatedViolations, ReasonManualTrigger,
	}
	e.safeModeEnterByReason = make(map[SafeModeReason]prometheus.Counter, len(reasons))
	e.safeModeExitByReason = make(map[SafeModeReason]prometheus.Counter, len(reasons))
	for _, r := range reasons {
		e.safeModeEnterByReason[r] = m.SafeModeTransitions.WithLabelValues(r.String(), "enter")
		e.safeModeExitByReason[r] = m.SafeModeTransitions.WithLabelValues(r.String(), "exit")
	}

	return e
}

// RunID returns the run identifier used to correlate audit events.
func (e *Executor) RunID() string { return e.runID }

// Current returns the current published snapshot.
func (e *Executor) Current() *snapshot.Snapshot {
	s := e.pub.Load()
	return &s
}

// ControlSafety exposes the stateful checker so the orchestrator can feed
// it telemetry digests (ObserveTelemetry) independently of proposal
// submission.
func (e *Executor) ControlSafety() *ControlSafety { return e.cs }

// SafeModeState returns the latched SafeMode, or nil if none is active.
func (e *Executor) SafeModeState() *SafeMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.safeMode
}

// Submit is the single entry point for every proposal. See spec §4.7 for
// the full apply algorithm; this mirrors it step for step.
func (e *Executor) Submit(p Proposal, now time.Time) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.Kind == ProposalNoChange {
		e.emit(audit.Event{Type: audit.EventProposalEmitted, TimestampNs: now.UnixNano(), Reason: "NoChange"})
		return Decision{Kind: DecisionDeferred, SafeModeActive: e.safeMode != nil}
	}

	// 1. SafeMode deferral (ManualReset is handled via ResetSafeMode, not
	// through Submit, so any proposal reaching here while latched defers).
	if e.safeMode != nil {
		e.emit(audit.Event{Type: audit.EventApplyRejected, TimestampNs: now.UnixNano(), Reason: "SafeModeActive"})
		return Decision{Kind: DecisionDeferred, SafeModeActive: true}
	}
	if e.paused && p.Kind != ProposalSetParams {
		return Decision{Kind: DecisionDeferred}
	}

	cur := e.pub.Load()

	// 2. Pure guardrail checks.
	v := guardrails.Check(p.Delta, e.numParams, &cur, e.bounds, e.cfg, now, e.lastAcceptedAt)
	if v.Kind != guardrails.KindNone {
		return e.reject(v, now)
	}

	// 3. Stateful ControlSafety checks 5-8.
	v = e.cs.Check(p.Delta, e.numParams, now)
	if v.Kind != guardrails.KindNone {
		dec := e.reject(v, now)
		if v.Kind == guardrails.KindObjectiveRegression || v.Kind == guardrails.KindThrashing {
			e.latchSafeMode(reasonFromViolation(v.Kind), now)
		}
		return dec
	}

	// 4. Compute new values, clamp defensively (must never actually fire).
	newValues := cur.Values.Add(p.Delta).Clamp(e.bounds)

	// 5. Publish atomically.
	newGen := cur.Generation + 1
	next := snapshot.Snapshot{Values: newValues, Generation: newGen}
	e.pub.Publish(next)
	e.appendHistory(next)

	// 6. Update ControlSafety history (the regression baseline is advanced
	// separately, by ObserveTelemetry).
	if triggered, pid := e.cs.RecordAccepted(p.Delta, e.numParams, now); triggered {
		e.latchSafeMode(ReasonThrashing, now)
		e.emit(audit.Event{Type: audit.EventSafeModeEnter, TimestampNs: now.UnixNano(), Reason: ReasonThrashing.String(), Generation: newGen, ProposalID: uint64(pid)})
	}
	e.lastAcceptedAt = now

	// 7. Emit ApplyAccepted; audit-queue-full is itself a SafeMode trigger.
	ok := e.aq.Enqueue(audit.Event{Type: audit.EventApplyAccepted, TimestampNs: now.UnixNano(), Generation: newGen, RunID: e.runID})
	if !ok {
		e.m.AuditDropped.Inc()
		e.latchSafeMode(ReasonAuditQueueFull, now)
	}

	e.m.Accepted.Inc()
	e.m.CurrentGeneration.Set(float64(newGen))

	return Decision{Kind: DecisionAccepted, NewGeneration: newGen}
}

func (e *Executor) reject(v guardrails.Violation, now time.Time) Decision {
	e.emit(audit.Event{Type: audit.EventApplyRejected, TimestampNs: now.UnixNano(), Reason: v.Kind.String()})
	e.rejectedByKind[v.Kind].Inc()
	e.recordViolation(now)
	return Decision{Kind: DecisionRejected, Violation: v}
}

// recordViolation tracks repeated-violations-within-a-window; crossing the
// threshold latches SafeMode with ReasonRepeatedViolations (spec §4.7
// step 2). Grounded on the consecutive-breach pattern described in
// DESIGN.md's C7 entry.
func (e *Executor) recordViolation(now time.Time) {
	cutoff := now.Add(-e.violationWindow)
	kept := e.recentViolations[:0]
	for _, t := range e.recentViolations {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	e.recentViolations = kept
	if len(e.recentViolations) >= e.violationLimit && e.safeMode == nil {
		e.latchSafeMode(ReasonRepeatedViolations, now)
	}
}

func (e *Executor) latchSafeMode(reason SafeModeReason, now time.Time) {
	if e.safeMode != nil {
		return
	}
	sm := &SafeMode{EnteredAt: now, Reason: reason, Exit: reasonExitPolicy(reason, 0.05)}
	e.safeMode = sm
	e.m.SafeModeActive.Set(1)
	e.safeModeEnterByReason[reason].Inc()
	e.log.Warn("safe mode latched", zap.String("reason", reason.String()))
	e.emit(audit.Event{Type: audit.EventSafeModeEnter, TimestampNs: now.UnixNano(), Reason: reason.String()})
}

// ResetSafeMode lifts a latched SafeMode via ManualReset or, for
// ObjectiveRegression, via ObjectiveRecovery. Returns false if no SafeMode
// is active, or if the active reason's exit condition forbids this call.
func (e *Executor) ResetSafeMode(now time.Time, manual bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.safeMode == nil {
		return false
	}
	if !manual && e.safeMode.Exit.Kind != ExitObjectiveRecovery {
		return false
	}
	reason := e.safeMode.Reason
	e.safeMode = nil
	e.recentViolations = nil
	e.cs.ResetBaseline()
	e.m.SafeModeActive.Set(0)
	e.safeModeExitByReason[reason].Inc()
	e.emit(audit.Event{Type: audit.EventSafeModeExit, TimestampNs: now.UnixNano(), Reason: reason.String()})
	return true
}

// RollbackTo publishes a snapshot whose values equal the historical
// snapshot at targetGen but whose generation continues to increase
// monotonically (spec §4.7).
func (e *Executor) RollbackTo(targetGen uint64, now time.Time) (Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rollbackToLocked(targetGen, now)
}

func (e *Executor) rollbackToLocked(targetGen uint64, now time.Time) (Decision, error) {
	cur := e.pub.Load()
	if targetGen >= cur.Generation {
		return Decision{}, arqonerr.ErrUnknownGeneration
	}
	var target *snapshot.Snapshot
	for i := range e.history {
		if e.history[i].Generation == targetGen {
			target = &e.history[i]
			break
		}
	}
	if target == nil {
		return Decision{}, arqonerr.ErrUnknownGeneration
	}
	newGen := cur.Generation + 1
	next := snapshot.Snapshot{Values: target.Values, Generation: newGen}
	e.pub.Publish(next)
	e.appendHistory(next)
	e.m.Rollbacks.Inc()
	e.m.CurrentGeneration.Set(float64(newGen))
	e.emit(audit.Event{Type: audit.EventRollback, TimestampNs: now.UnixNano(), Generation: newGen})
	return Decision{Kind: DecisionAccepted, NewGeneration: newGen}, nil
}

// Enforce handles the external-governor control-plane actions other than
// SetParams (which the caller should route through Submit; see
// DESIGN.md's Open Question decision on SetParams bypass semantics).
func (e *Executor) Enforce(a EnforceAction, now time.Time) (Decision, error) {
	switch a.Kind {
	case EnforceEmergencyStop:
		e.mu.Lock()
		defer e.mu.Unlock()
		e.latchSafeMode(ReasonManualTrigger, now)
		cur := e.pub.Load()
		newGen := cur.Generation + 1
		next := snapshot.Snapshot{Values: e.baselineSnapshot.Values, Generation: newGen}
		e.pub.Publish(next)
		e.appendHistory(next)
		e.emit(audit.Event{Type: audit.EventApplyAccepted, TimestampNs: now.UnixNano(), Generation: newGen, Reason: "EmergencyStop"})
		return Decision{Kind: DecisionAccepted, NewGeneration: newGen}, nil
	case EnforcePauseAdaptation:
		e.mu.Lock()
		e.paused = true
		e.mu.Unlock()
		return Decision{Kind: DecisionDeferred}, nil
	case EnforceResumeAdaptation:
		e.mu.Lock()
		e.paused = false
		e.mu.Unlock()
		return Decision{Kind: DecisionAccepted}, nil
	case EnforceRollbackTo:
		return e.RollbackTo(a.RollbackTarget, now)
	default:
		return Decision{}, arqonerr.ErrInvalidConfig
	}
}

func (e *Executor) appendHistory(s snapshot.Snapshot) {
	if len(e.history) < historyCap {
		e.history = append(e.history, s)
		return
	}
	// Full: generations are published consecutively, so the slot of the
	// oldest retained snapshot is s's offset from history[0], mod historyCap.
	e.history[(s.Generation-e.history[0].Generation)%historyCap] = s
}

func (e *Executor) emit(ev audit.Event) {
	if ev.RunID == "" {
		ev.RunID = e.runID
	}
	e.aq.Enqueue(ev)
}

func reasonFromViolation(k guardrails.Kind) SafeModeReason {
	switch k {
	case guardrails.KindThrashing:
		return ReasonThrashing
	case guardrails.KindBudgetExhausted:
		return ReasonBudgetExhausted
	case guardrails.KindObjectiveRegression:
		return ReasonObjectiveRegression
	default:
		return ReasonManualTrigger
	}
}
