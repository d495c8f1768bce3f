package audit

import "testing"

func TestQueueEnqueueDequeueFIFO(t *testing.T) {
	q := NewQueue(4)
	for i := 0; i < 3; i++ {
		if !q.Enqueue(Event{Generation: uint64(i)}) {
			t.Fatalf("Enqueue(%d) = false, want true", i)
		}
	}
	for i := 0; i < 3; i++ {
		ev, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue() ok=false at i=%d", i)
		}
		if ev.Generation != uint64(i) {
			t.Fatalf("Generation = %d, want %d", ev.Generation, i)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatalf("Dequeue() on empty queue returned ok=true")
	}
}

func TestQueueDropsAndCountsOnFull(t *testing.T) {
	q := NewQueue(2)
	if !q.Enqueue(Event{}) || !q.Enqueue(Event{}) {
		t.Fatalf("expected first two enqueues to succeed")
	}
	if q.Enqueue(Event{}) {
		t.Fatalf("expected third enqueue on a full depth-2 queue to fail")
	}
	if got := q.DropCount(); got != 1 {
		t.Fatalf("DropCount = %d, want 1", got)
	}
	// Draining one slot makes room again.
	if _, ok := q.Dequeue(); !ok {
		t.Fatalf("Dequeue() after drop should still succeed")
	}
	if !q.Enqueue(Event{}) {
		t.Fatalf("expected enqueue to succeed after draining one slot")
	}
}

func TestDrainUpToRespectsLimit(t *testing.T) {
	q := NewQueue(8)
	for i := 0; i < 5; i++ {
		q.Enqueue(Event{Generation: uint64(i)})
	}
	events := q.DrainUpTo(3)
	if len(events) != 3 {
		t.Fatalf("DrainUpTo(3) returned %d events, want 3", len(events))
	}
	rest := q.DrainUpTo(10)
	if len(rest) != 2 {
		t.Fatalf("remaining drain returned %d events, want 2", len(rest))
	}
}
