package paramreg

import (
	"errors"
	"testing"

	"github.com/octoreflex/arqon/internal/arqonerr"
)

func TestBuildAssignsIdsInOrder(t *testing.T) {
	r, err := Build([]string{"timeout_ms", "batch_size", "cache_ttl"})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if r.NumParams() != 3 {
		t.Fatalf("NumParams = %d, want 3", r.NumParams())
	}
	for i, name := range []string{"timeout_ms", "batch_size", "cache_ttl"} {
		id, ok := r.Lookup(name)
		if !ok {
			t.Fatalf("Lookup(%q) not found", name)
		}
		if int(id) != i {
			t.Errorf("Lookup(%q) = %d, want %d", name, id, i)
		}
		if got := r.NameOf(id); got != name {
			t.Errorf("NameOf(%d) = %q, want %q", id, got, name)
		}
	}
}

func TestBuildRejectsEmpty(t *testing.T) {
	_, err := Build(nil)
	if !errors.Is(err, arqonerr.ErrEmptyRegistry) {
		t.Fatalf("Build(nil) err = %v, want ErrEmptyRegistry", err)
	}
}

func TestBuildRejectsDuplicateName(t *testing.T) {
	_, err := Build([]string{"a", "b", "a"})
	if !errors.Is(err, arqonerr.ErrDuplicateName) {
		t.Fatalf("Build err = %v, want ErrDuplicateName", err)
	}
}

func TestRegistryFrozenAfterBuild(t *testing.T) {
	r, err := Build([]string{"a"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	names := r.Names()
	names[0] = "mutated"
	if r.NameOf(0) != "a" {
		t.Fatalf("registry mutated externally via Names(): NameOf(0) = %q", r.NameOf(0))
	}
}

func TestParamVecAddScaleClamp(t *testing.T) {
	v := NewParamVec(2)
	v.Set(0, 1.0)
	v.Set(1, 2.0)

	d := NewParamVec(2)
	d.Set(0, 0.5)
	d.Set(1, -5.0)

	sum := v.Add(d)
	if sum.Get(0) != 1.5 || sum.Get(1) != -3.0 {
		t.Fatalf("Add = (%v, %v), want (1.5, -3.0)", sum.Get(0), sum.Get(1))
	}

	clamped := sum.Clamp([]Bounds{{Min: 0, Max: 10}, {Min: -1, Max: 1}})
	if clamped.Get(0) != 1.5 || clamped.Get(1) != -1.0 {
		t.Fatalf("Clamp = (%v, %v), want (1.5, -1.0)", clamped.Get(0), clamped.Get(1))
	}

	scaled := v.Scale(2)
	if scaled.Get(0) != 2.0 || scaled.Get(1) != 4.0 {
		t.Fatalf("Scale = (%v, %v), want (2.0, 4.0)", scaled.Get(0), scaled.Get(1))
	}
}
