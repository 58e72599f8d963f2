package turb

import "errors"

// Fatal conditions surfaced by the package. All of them indicate a caller
// bug or an invalid configuration, never a transient numeric event; solver
// non-convergence is reported through solver.Result instead.
var (
	// ErrUnknownVariant is returned by New for an unregistered variant name.
	ErrUnknownVariant = errors.New("turb: unknown turbulence model variant")

	// ErrNoOperator is returned when operator coefficients, a matrix-derived
	// residual or a transpose solve are requested before any CalcResiduals
	// call has assembled an operator for the variable.
	ErrNoOperator = errors.New("turb: no assembled operator")

	// ErrPrandtlUnset is returned when the turbulent Prandtl number is
	// requested but was never configured.
	ErrPrandtlUnset = errors.New("turb: turbulent Prandtl number not set")
)
