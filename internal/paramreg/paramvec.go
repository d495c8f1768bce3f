package paramreg

// MaxParams bounds the inline storage used by ParamVec so that it never
// allocates on the heap for any run within the supported parameter-count
// range. Configurations declaring more than MaxParams parameters are
// rejected by arqonconfig.Validate before Configure builds any ParamVec.
const MaxParams = 64

// ParamVec is a fixed-length, indexed real vector. Backed by an inline
// array sized MaxParams; Len tracks the active prefix. No heap allocation
// occurs on Get/Set/Add/Scale/Clamp.
type ParamVec struct {
	values [MaxParams]float64
	n      int
}

// NewParamVec returns a zero-valued vector sized for n parameters. Panics
// if n exceeds MaxParams (a setup-time, not hot-path, condition).
func NewParamVec(n int) ParamVec {
	if n > MaxParams {
		panic("arqon: parameter count exceeds MaxParams")
	}
	return ParamVec{n: n}
}

// Len returns the number of active elements.
func (v *ParamVec) Len() int { return v.n }

// Get returns the value at id. Hot-path-safe.
func (v *ParamVec) Get(id ParamId) float64 { return v.values[id] }

// Set assigns the value at id. Hot-path-safe.
func (v *ParamVec) Set(id ParamId, value float64) { v.values[id] = value }

// Clone returns a value copy. ParamVec has no pointer fields so this is a
// plain struct copy, not a heap allocation when the result stays on the
// caller's stack.
func (v ParamVec) Clone() ParamVec { return v }

// Add returns the element-wise sum of v and delta over the active prefix.
func (v ParamVec) Add(delta ParamVec) ParamVec {
	out := v
	for i := 0; i < v.n; i++ {
		out.values[i] = v.values[i] + delta.values[i]
	}
	return out
}

// Scale returns v with every active element multiplied by s.
func (v ParamVec) Scale(s float64) ParamVec {
	out := v
	for i := 0; i < v.n; i++ {
		out.values[i] = v.values[i] * s
	}
	return out
}

// Bounds is the immutable, post-setup per-parameter closed interval
// [Min, Max] with Min <= Max.
type Bounds struct {
	Min float64
	Max float64
}

// Clamp returns v with every active element clamped into the corresponding
// bounds entry. bounds must have length >= v.Len().
func (v ParamVec) Clamp(bounds []Bounds) ParamVec {
	out := v
	for i := 0; i < v.n; i++ {
		b := bounds[i]
		x := v.values[i]
		if x < b.Min {
			x = b.Min
		} else if x > b.Max {
			x = b.Max
		}
		out.values[i] = x
	}
	return out
}
