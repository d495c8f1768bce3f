package audit

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

type cell struct {
	seq atomic.Uint64
	ev  Event
}

// Queue is a bounded, lock-free multi-producer/single-consumer queue of
// Events, built on the classic Vyukov bounded-MPMC cell-sequencing scheme
// restricted here to a single consumer. Enqueue never blocks: on a full
// queue it increments dropCount and returns false instead of waiting.
type Queue struct {
	mask  uint64
	cells []cell

	_ cpu.CacheLinePad

	enqueuePos atomic.Uint64

	_ cpu.CacheLinePad

	dequeuePos atomic.Uint64

	_ cpu.CacheLinePad

	dropCount atomic.Uint64
}

// NewQueue allocates a queue with the given capacity, rounded up to the
// next power of two. Allocation happens only here; Enqueue/Dequeue never
// allocate.
func NewQueue(capacity int) *Queue {
	n := nextPow2(capacity)
	q := &Queue{mask: uint64(n - 1), cells: make([]cell, n)}
	for i := range q.cells {
		q.cells[i].seq.Store(uint64(i))
	}
	return q
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

// Enqueue attempts to append ev. Returns true on success. On a full queue
// it increments the drop counter and returns false without blocking; the
// caller (SafetyExecutor) is responsible for the spec's pairing rule that a
// dropped audit event latches SafeMode.
func (q *Queue) Enqueue(ev Event) bool {
	for {
		pos := q.enqueuePos.Load()
		c := &q.cells[pos&q.mask]
		seq := c.seq.Load()
		diff := int64(seq) - int64(pos)
		switch {
		case diff == 0:
			if q.enqueuePos.CompareAndSwap(pos, pos+1) {
				c.ev = ev
				c.seq.Store(pos + 1)
				return true
			}
		case diff < 0:
			q.dropCount.Add(1)
			return false
		default:
			// Another producer advanced first; retry.
		}
	}
}

// Dequeue removes and returns the oldest event. Returns ok=false if the
// queue is empty. Single-consumer only.
func (q *Queue) Dequeue() (Event, bool) {
	pos := q.dequeuePos.Load()
	c := &q.cells[pos&q.mask]
	seq := c.seq.Load()
	diff := int64(seq) - int64(pos+1)
	if diff != 0 {
		return Event{}, false
	}
	ev := c.ev
	c.seq.Store(pos + q.mask + 1)
	q.dequeuePos.Store(pos + 1)
	return ev, true
}

// DropCount returns the cumulative number of events that could not be
// enqueued because the queue was full. Monotonically increasing.
func (q *Queue) DropCount() uint64 { return q.dropCount.Load() }

// DrainUpTo removes at most max events in FIFO order. Used by the
// orchestrator and by the host's audit sink.
func (q *Queue) DrainUpTo(max int) []Event {
	out := make([]Event, 0, max)
	for i := 0; i < max; i++ {
		ev, ok := q.Dequeue()
		if !ok {
			break
		}
		out = append(out, ev)
	}
	return out
}
