// Package paramreg implements the ParamRegistry component (C1): a bijection
// between parameter names and dense indices, fixed at setup and immutable
// for the lifetime of the run.
package paramreg

import (
	"fmt"

	"github.com/octoreflex/arqon/internal/arqonerr"
)

// ParamId is a dense, stable index into the parameter vector. Assigned by
// Build in input order. Valid values satisfy 0 <= ParamId < NumParams.
type ParamId uint16

// Registry is the frozen name<->id bijection. The zero value is not valid;
// construct with Build.
type Registry struct {
	names []string
	index map[string]ParamId
}

// Build assigns ids to names in input order. Fails with ErrEmptyRegistry if
// names is empty, or ErrDuplicateName if any name repeats.
func Build(names []string) (*Registry, error) {
	if len(names) == 0 {
		return nil, arqonerr.ErrEmptyRegistry
	}
	index := make(map[string]ParamId, len(names))
	for i, n := range names {
		if _, exists := index[n]; exists {
			return nil, fmt.Errorf("%w: %q", arqonerr.ErrDuplicateName, n)
		}
		index[n] = ParamId(i)
	}
	frozen := make([]string, len(names))
	copy(frozen, names)
	return &Registry{names: frozen, index: index}, nil
}

// NumParams returns the number of registered parameters.
func (r *Registry) NumParams() int { return len(r.names) }

// Lookup resolves a name to its ParamId. O(1). Not intended for the hot
// path; callers on the hot path should cache the ParamId returned here at
// setup time.
func (r *Registry) Lookup(name string) (ParamId, bool) {
	id, ok := r.index[name]
	return id, ok
}

// NameOf returns the name registered for id. Hot-path-safe (plain slice
// index, no map lookup, no allocation).
func (r *Registry) NameOf(id ParamId) string {
	return r.names[id]
}

// Names returns a copy of the ordered list of registered names, so callers
// cannot mutate the frozen registry through the returned slice. Used for
// run-metadata audit records.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
