// Package telemetry implements TelemetryRing (C3): a bounded, single-
// producer/multi-consumer ring buffer of Digest records. On overflow the
// producer overwrites the oldest entry; a monotonically increasing
// overwrite count lets every consumer account for what it missed.
package telemetry

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

type slot struct {
	seq    atomic.Uint64
	digest Digest
}

// Ring is a bounded SPMC ring of Digest records. Capacity must be a power
// of two. Push is called from exactly one producer goroutine (the host's
// observation thread); Next may be called concurrently from any number of
// independent Reader cursors.
type Ring struct {
	mask  uint64
	slots []slot

	_ cpu.CacheLinePad // separates the producer cursor from reader state

	writeIdx atomic.Uint64

	_ cpu.CacheLinePad

	overwriteCount atomic.Uint64
}

// NewRing allocates a ring with the given capacity, rounded up internally
// to the next power of two if necessary. Allocation happens only at setup;
// Push/Next never allocate afterward.
func NewRing(capacity int) *Ring {
	n := nextPow2(capacity)
	return &Ring{
		mask:  uint64(n - 1),
		slots: make([]slot, n),
	}
}

func nextPow2(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Push appends a digest, overwriting the oldest unread entry if the ring is
// full. Wait-free, allocation-free. Single-producer only.
func (r *Ring) Push(d Digest) {
	idx := r.writeIdx.Load()
	s := &r.slots[idx&r.mask]
	if idx >= uint64(len(r.slots)) {
		r.overwriteCount.Add(1)
	}
	s.digest = d
	s.seq.Store(idx + 1) // release: publishes digest to readers
	r.writeIdx.Store(idx + 1)
}

// OverwriteCount returns the number of entries that were overwritten before
// being consumable. Monotonically increasing.
func (r *Ring) OverwriteCount() uint64 { return r.overwriteCount.Load() }

// Reader is an independent, restartable cursor over a Ring. The zero value
// is not usable (it has no ring); construct one with Ring.NewReader.
type Reader struct {
	ring    *Ring
	readIdx uint64
}

// NewReader returns a cursor that starts reading from whatever the ring's
// current tail is (i.e. it will not replay history published before this
// call).
func (r *Ring) NewReader() *Reader {
	return &Reader{ring: r, readIdx: r.writeIdx.Load()}
}

// Next returns the next unread digest, or ok=false if none is available
// yet. If this reader fell behind by more than the ring's capacity, it is
// fast-forwarded to the oldest still-available entry; the skipped entries
// are reflected in Ring.OverwriteCount, which the caller should consult.
func (r *Reader) Next() (Digest, bool) {
	widx := r.ring.writeIdx.Load()
	if r.readIdx >= widx {
		return Digest{}, false
	}
	capacity := uint64(len(r.ring.slots))
	if widx-r.readIdx > capacity {
		r.readIdx = widx - capacity
	}
	s := &r.ring.slots[r.readIdx&r.ring.mask]
	if s.seq.Load() != r.readIdx+1 {
		// Producer is mid-overwrite of this slot; treat as not-yet-ready
		// rather than risk a torn read.
		return Digest{}, false
	}
	d := s.digest
	r.readIdx++
	return d, true
}
