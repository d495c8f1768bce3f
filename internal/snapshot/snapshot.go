// Package snapshot implements ConfigSnapshot (C2): an immutable, versioned
// parameter vector shared by many readers and published by exactly one
// writer (the Tier 1 SafetyExecutor).
package snapshot

import (
	"sync/atomic"

	"github.com/octoreflex/arqon/internal/paramreg"
)

// Snapshot is an immutable value: a ParamVec paired with a strictly
// increasing generation counter. Once constructed, a Snapshot is never
// mutated; a new configuration is always a new Snapshot.
type Snapshot struct {
	Values     paramreg.ParamVec
	Generation uint64
}

// Get returns the value of pid under this snapshot. O(1), hot-path.
func (s *Snapshot) Get(pid paramreg.ParamId) float64 { return s.Values.Get(pid) }

// WithDelta returns a new Snapshot with values = s.Values + delta and the
// given generation. Does not allocate on the heap beyond the returned
// struct value — ParamVec has no pointer fields.
func (s *Snapshot) WithDelta(delta paramreg.ParamVec, newGen uint64) Snapshot {
	return Snapshot{Values: s.Values.Add(delta), Generation: newGen}
}

// Publisher holds the single current Snapshot behind a seqlock: an even
// sequence counter means current is stable, odd means a write is in
// flight. Publish and Load both operate on the Snapshot value in place, so
// neither allocates — unlike an atomic.Pointer[Snapshot], which forces a
// fresh heap-escaping Snapshot on every Publish (spec §5's apply path,
// submit through publish through audit-push, must be allocation-free).
// There is exactly one Publisher per Core, owned by the SafetyExecutor;
// readers obtain their own handle via Publisher.Load.
type Publisher struct {
	seq     atomic.Uint64
	current Snapshot
}

// NewPublisher constructs a Publisher already holding the given initial
// snapshot (typically generation 0).
func NewPublisher(initial Snapshot) *Publisher {
	return &Publisher{current: initial}
}

// Publish installs next as the current snapshot. Only the SafetyExecutor
// calls this; it is the sole writer, so the two seq bumps around the copy
// never race with each other.
func (p *Publisher) Publish(next Snapshot) {
	p.seq.Add(1) // odd: write in flight
	p.current = next
	p.seq.Add(1) // even: stable again
}

// Load returns the current snapshot by value. O(1), allocation-free,
// hot-path-safe. Spins only if it catches Publish mid-write, which given a
// single infrequent writer is vanishingly rare.
func (p *Publisher) Load() Snapshot {
	for {
		before := p.seq.Load()
		if before&1 != 0 {
			continue
		}
		snap := p.current
		after := p.seq.Load()
		if before == after {
			return snap
		}
	}
}
