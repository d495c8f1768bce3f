package telemetry

import "testing"

func TestRingPushAndReadInOrder(t *testing.T) {
	r := NewRing(4)
	reader := r.NewReader()

	for i := 0; i < 3; i++ {
		r.Push(Digest{Generation: uint64(i)})
	}
	for i := 0; i < 3; i++ {
		d, ok := reader.Next()
		if !ok {
			t.Fatalf("Next() returned ok=false at i=%d", i)
		}
		if d.Generation != uint64(i) {
			t.Fatalf("Generation = %d, want %d", d.Generation, i)
		}
	}
	if _, ok := reader.Next(); ok {
		t.Fatalf("Next() returned ok=true with no more data")
	}
}

func TestRingOverwriteAccounting(t *testing.T) {
	r := NewRing(2)
	for i := 0; i < 5; i++ {
		r.Push(Digest{Generation: uint64(i)})
	}
	if got := r.OverwriteCount(); got != 3 {
		t.Fatalf("OverwriteCount = %d, want 3", got)
	}
}

func TestReaderFastForwardsPastOverwrittenEntries(t *testing.T) {
	r := NewRing(2)
	reader := r.NewReader()
	for i := 0; i < 5; i++ {
		r.Push(Digest{Generation: uint64(i)})
	}
	d, ok := reader.Next()
	if !ok {
		t.Fatalf("Next() returned ok=false")
	}
	if d.Generation != 3 {
		t.Fatalf("Generation = %d, want 3 (oldest still-available entry)", d.Generation)
	}
}

func TestNextPow2RoundsUp(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 1024: 1024, 1025: 2048}
	for in, want := range cases {
		if got := nextPow2(in); got != want {
			t.Errorf("nextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}
