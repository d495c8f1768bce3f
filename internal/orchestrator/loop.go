// Package orchestrator implements OrchestratorLoop (C9): the single-
// threaded cooperative driver wiring telemetry ingestion, the Tier-2
// proposer, the Tier-1 executor, and the audit drain together. Grounded on
// cmd/octoreflex/main.go's runWorker loop and its context-cancellation /
// graceful-shutdown handling.
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/octoreflex/arqon/internal/audit"
	"github.com/octoreflex/arqon/internal/control"
	"github.com/octoreflex/arqon/internal/obs"
	"github.com/octoreflex/arqon/internal/safety"
	"github.com/octoreflex/arqon/internal/telemetry"
)

// AuditSink receives drained audit events; the host supplies an
// implementation (e.g. a log writer, an external exporter). Persistence of
// the sink's own choosing is outside this module's scope.
type AuditSink interface {
	Accept([]audit.Event)
}

// Loop is the cooperative driver. One call to RunIteration performs exactly
// the five steps of spec §4.9.
type Loop struct {
	ring     *telemetry.Ring
	reader   *telemetry.Reader
	proposer control.Proposer
	executor *safety.Executor
	aq       *audit.Queue
	sink     AuditSink
	log      *zap.Logger
	m        *obs.Metrics

	iterBudget     time.Duration
	maxAuditDrain  int
}

// Config bundles the orchestrator's scheduling policy knobs (spec §5:
// per-iteration budget T_iter, default 1ms, and the bounded audit drain
// size).
type Config struct {
	IterBudget    time.Duration
	MaxAuditDrain int
}

// DefaultConfig returns spec §5's stated defaults.
func DefaultConfig() Config {
	return Config{IterBudget: time.Millisecond, MaxAuditDrain: 256}
}

// New constructs an orchestrator loop over the given subsystems.
func New(ring *telemetry.Ring, proposer control.Proposer, executor *safety.Executor, aq *audit.Queue, sink AuditSink, log *zap.Logger, m *obs.Metrics, cfg Config) *Loop {
	return &Loop{
		ring: ring, reader: ring.NewReader(), proposer: proposer,
		executor: executor, aq: aq, sink: sink, log: log, m: m,
		iterBudget: cfg.IterBudget, maxAuditDrain: cfg.MaxAuditDrain,
	}
}

// SetSink installs (or clears, with nil) the audit sink this loop drains
// into. Must be called before Run/RunIteration starts draining, since the
// queue has exactly one consumer.
func (l *Loop) SetSink(sink AuditSink) { l.sink = sink }

// Run drives RunIteration until ctx is cancelled. Cancellation is honored
// only at iteration boundaries (spec §5's suspension-point rule); an
// in-flight iteration's apply path is never interrupted.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if needsRollback, target := l.proposer.Cancel(); needsRollback {
				if _, err := l.executor.RollbackTo(target, time.Now()); err != nil {
					l.log.Warn("cancellation rollback failed",
						zap.Uint64("target_generation", target), zap.Error(err))
				}
			}
			return
		default:
			l.RunIteration(ctx)
		}
	}
}

// RunIteration performs one cooperative step: drain telemetry, feed the
// proposer, submit at most one proposal, drain audit events.
func (l *Loop) RunIteration(ctx context.Context) {
	start := time.Now()
	defer func() {
		l.m.SPSAIterationLatency.Observe(time.Since(start).Seconds())
	}()

	var latest *telemetry.Digest
	for {
		d, ok := l.reader.Next()
		if !ok {
			break
		}
		dd := d
		latest = &dd
		l.executor.ControlSafety().ObserveTelemetry(dd)
		l.m.TelemetryOverwrites.Set(float64(l.ring.OverwriteCount()))
	}

	now := time.Now()
	p, ok := l.proposer.Advance(now, latest)
	if ok {
		// An eval-timed-out probe may have already reached the live
		// snapshot; undo it before the NoChange proposal is submitted and
		// the proposer is advanced past it (spec §4.8 scenario 5).
		if p.NeedsRollback {
			if _, err := l.executor.RollbackTo(p.RollbackTarget, now); err != nil {
				l.log.Warn("eval-timeout rollback failed",
					zap.Uint64("target_generation", p.RollbackTarget), zap.Error(err))
			}
		}
		decision := l.executor.Submit(p, now)
		l.proposer.Accept(decision, now)
	}

	// The AuditQueue has exactly one consumer (spec §4.4). When the host
	// supplies a sink, this loop is that consumer. With no sink, the host
	// is expected to be the sole consumer itself via Core.DrainAudit, so
	// this loop must not also read from the queue.
	if l.sink != nil {
		events := l.aq.DrainUpTo(l.maxAuditDrain)
		if len(events) > 0 {
			l.sink.Accept(events)
		}
	}

	if elapsed := time.Since(start); elapsed > l.iterBudget {
		l.log.Debug("orchestrator iteration exceeded budget",
			zap.Duration("elapsed", elapsed), zap.Duration("budget", l.iterBudget))
	}
}
