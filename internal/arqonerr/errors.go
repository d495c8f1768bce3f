// Package arqonerr holds the sentinel errors raised by setup-time and
// boundary-level failures across the optimizer core. Hot-path refusals are
// never errors: they are typed Violation/Decision values (see package
// guardrails and package safety).
package arqonerr

import "errors"

var (
	// ErrDuplicateName is returned by paramreg.Build when two parameters
	// share a name.
	ErrDuplicateName = errors.New("arqon: duplicate parameter name")

	// ErrEmptyRegistry is returned by paramreg.Build when called with zero
	// names.
	ErrEmptyRegistry = errors.New("arqon: empty parameter registry")

	// ErrInvalidConfig wraps any Configure-time rejection: inverted bounds,
	// non-positive max_abs_delta, negative rate, empty param set.
	ErrInvalidConfig = errors.New("arqon: invalid configuration")

	// ErrUnknownGeneration is returned by RollbackTo when the requested
	// generation was never published or is not older than current.
	ErrUnknownGeneration = errors.New("arqon: unknown or non-past generation")
)
