// Package arqon is the Adaptive Runtime Optimizer Core: a library, not a
// protocol server. Core wires together ParamRegistry, ConfigSnapshot,
// TelemetryRing, AuditQueue, Guardrails, ControlSafety, SafetyExecutor,
// SPSAProposer and OrchestratorLoop behind the external interface
// described in spec §6.
package arqon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/octoreflex/arqon/internal/arqonconfig"
	"github.com/octoreflex/arqon/internal/arqonerr"
	"github.com/octoreflex/arqon/internal/audit"
	"github.com/octoreflex/arqon/internal/control"
	"github.com/octoreflex/arqon/internal/guardrails"
	"github.com/octoreflex/arqon/internal/obs"
	"github.com/octoreflex/arqon/internal/orchestrator"
	"github.com/octoreflex/arqon/internal/paramreg"
	"github.com/octoreflex/arqon/internal/safety"
	"github.com/octoreflex/arqon/internal/snapshot"
	"github.com/octoreflex/arqon/internal/telemetry"
)

// Core is the top-level handle a host process holds. There are no ambient
// singletons: every subsystem is an explicit field, created by Configure
// and torn down by nothing more than letting Core become unreachable (no
// cross-restart state to flush, per spec's Non-goals).
type Core struct {
	registry *paramreg.Registry
	bounds   []paramreg.Bounds
	gcfg     *guardrails.Config

	ring     *telemetry.Ring
	aq       *audit.Queue
	executor *safety.Executor
	proposer control.Proposer
	loop     *orchestrator.Loop

	log *zap.Logger
	m   *obs.Metrics
}

// Metrics exposes the dedicated Prometheus registry for the host process to
// mount itself; this module never starts an HTTP server (out of scope).
func (c *Core) Metrics() *obs.Metrics { return c.m }

// Configure builds a Core from a validated arqonconfig.Config. Fails with
// arqonerr.ErrInvalidConfig-wrapped detail on duplicate names, inverted
// bounds, non-positive max_abs_delta, non-positive rate, or an empty
// parameter set; no partial state is left behind on failure.
func Configure(cfg *arqonconfig.Config) (*Core, error) {
	if err := arqonconfig.Validate(cfg); err != nil {
		return nil, err
	}

	names := make([]string, len(cfg.Params))
	bounds := make([]paramreg.Bounds, len(cfg.Params))
	maxAbsDelta := make([]float64, len(cfg.Params))
	maxCumulative := make([]float64, len(cfg.Params))
	initial := paramreg.NewParamVec(len(cfg.Params))
	for i, p := range cfg.Params {
		names[i] = p.Name
		bounds[i] = paramreg.Bounds{Min: p.Min, Max: p.Max}
		maxAbsDelta[i] = p.MaxAbsDelta
		maxCumulative[i] = p.MaxCumulativeDeltaPerMin
		initial.Set(paramreg.ParamId(i), p.Initial)
	}

	registry, err := paramreg.Build(names)
	if err != nil {
		return nil, err
	}

	minInterval := time.Duration(float64(time.Second) / cfg.Guardrails.MaxUpdatesPerSecond)
	gcfg := &guardrails.Config{
		MaxAbsDelta:              maxAbsDelta,
		MaxUpdatesPerSecond:      cfg.Guardrails.MaxUpdatesPerSecond,
		MinInterval:              minInterval,
		DirectionFlipLimit:       cfg.Guardrails.DirectionFlipLimit,
		CooldownAfterFlip:        cfg.Guardrails.CooldownAfterFlip,
		MaxCumulativeDeltaPerMin: maxCumulative,
		RegressionCountLimit:     cfg.Guardrails.RegressionCountLimit,
		RegressionEpsilon:        cfg.Guardrails.RegressionEpsilon,
	}

	log, err := obs.NewLogger(cfg.Observability.DevelopmentLogging)
	if err != nil {
		return nil, fmt.Errorf("%w: logger: %v", arqonerr.ErrInvalidConfig, err)
	}
	m := obs.NewMetrics(cfg.Observability.MetricsNamespace)

	ring := telemetry.NewRing(cfg.Orchestrator.TelemetryRingCapacity)
	aq := audit.NewQueue(cfg.Orchestrator.AuditQueueCapacity)

	initialSnapshot := snapshot.Snapshot{Values: initial, Generation: 0}
	executor := safety.NewExecutor(len(cfg.Params), bounds, gcfg, initialSnapshot, aq, log, m)

	spsaConsts := control.Constants{
		Alpha: cfg.SPSA.Alpha, Gamma: cfg.SPSA.Gamma, A: cfg.SPSA.A,
		SmallA: cfg.SPSA.SmallA, SmallC: cfg.SPSA.SmallC,
	}
	proposer := control.NewSPSA(len(cfg.Params), cfg.SPSA.RunSeed, spsaConsts, maxAbsDelta, cfg.SPSA.EvalTimeout)

	loop := orchestrator.New(ring, proposer, executor, aq, nil, log, m, orchestrator.Config{
		IterBudget:    cfg.Orchestrator.IterBudget,
		MaxAuditDrain: cfg.Orchestrator.MaxAuditDrain,
	})

	c := &Core{
		registry: registry, bounds: bounds, gcfg: gcfg,
		ring: ring, aq: aq, executor: executor, proposer: proposer, loop: loop,
		log: log, m: m,
	}

	c.emitRunMetadata(cfg)
	return c, nil
}

func (c *Core) emitRunMetadata(cfg *arqonconfig.Config) {
	payload := fmt.Sprintf("run_id=%s seed=%d params=%v bounds=%v guardrails=%+v alpha=%.4g gamma=%.4g A=%.4g a=%.4g c=%.4g",
		c.executor.RunID(), cfg.SPSA.RunSeed, c.registry.Names(), c.bounds, *c.gcfg,
		cfg.SPSA.Alpha, cfg.SPSA.Gamma, cfg.SPSA.A, cfg.SPSA.SmallA, cfg.SPSA.SmallC)
	c.aq.Enqueue(audit.Event{
		Type: audit.EventRunMetadata, TimestampNs: time.Now().UnixNano(),
		RunID: c.executor.RunID(), Payload: payload,
	})
}

// PushTelemetry ingests a digest from the host's observation thread.
// Wait-free; loss is tracked by the ring's overwrite counter, readable via
// TelemetryStats.
func (c *Core) PushTelemetry(d telemetry.Digest) {
	if d.TimestampNs == 0 {
		d.TimestampNs = time.Now().UnixNano()
	}
	c.ring.Push(d)
}

// TelemetryStats reports the cumulative overwrite count for the telemetry
// ring.
func (c *Core) TelemetryStats() (overwriteCount uint64) {
	return c.ring.OverwriteCount()
}

// CurrentConfig returns the current published snapshot. O(1), lock-free.
func (c *Core) CurrentConfig() *snapshot.Snapshot {
	return c.executor.Current()
}

// DrainAudit returns up to maxEvents audit events in FIFO order. Do not mix
// calls to DrainAudit with a Run loop that was given an audit sink via
// SetAuditSink: the AuditQueue has exactly one consumer (spec §4.4).
func (c *Core) DrainAudit(maxEvents int) []audit.Event {
	return c.aq.DrainUpTo(maxEvents)
}

// SetAuditSink installs an audit sink that Run/RunIteration will drain into
// directly, instead of the host polling DrainAudit itself.
func (c *Core) SetAuditSink(sink orchestrator.AuditSink) {
	c.loop.SetSink(sink)
}

// SafeModeState returns the latched SafeMode, or nil if none is active.
func (c *Core) SafeModeState() *safety.SafeMode {
	return c.executor.SafeModeState()
}

// Enforce handles a control-plane action injected by an external governor.
// SetParams is routed through the ordinary, auditable Submit path; the
// transport that delivered this action is out of scope for this module.
func (c *Core) Enforce(action safety.EnforceAction, now time.Time) (safety.Decision, error) {
	if action.Kind == safety.EnforceSetParams {
		p := safety.Proposal{Kind: safety.ProposalSetParams, Delta: action.SetParamsDelta}
		return c.executor.Submit(p, now), nil
	}
	return c.executor.Enforce(action, now)
}

// RunIteration drives exactly one OrchestratorLoop step. Hosts that want to
// control their own scheduling call this directly instead of Run.
func (c *Core) RunIteration(ctx context.Context) {
	c.loop.RunIteration(ctx)
}

// Run drives the orchestrator loop until ctx is cancelled.
func (c *Core) Run(ctx context.Context) {
	c.loop.Run(ctx)
}

// Logger exposes the zap logger Configure constructed, so a host embedding
// Core can attach its own fields/sinks consistently.
func (c *Core) Logger() *zap.Logger { return c.log }
