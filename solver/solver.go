// Package solver provides the linear-solve service the turbulence core calls
// for its forward implicit updates and adjoint transpose solves. Two Krylov
// methods are included: conjugate gradients for symmetric operators and
// BiCGStab for the general (convective, transposed) case. Non-convergence is
// reported as a value carrying the best available iterate and its residual
// norm, never as an error, so callers can apply their own retry or
// relaxation policy.
package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/adjflow/turbadjoint/ldu"
)

// Options bounds a single linear solve. Tolerance is relative to the 2-norm
// of the right-hand side (absolute when the right-hand side is zero).
type Options struct {
	MaxIterations int     `yaml:"maxIterations"`
	Tolerance     float64 `yaml:"tolerance"`
}

// DefaultOptions returns the solve bounds used when the caller does not
// override them.
func DefaultOptions() Options {
	return Options{
		MaxIterations: 1000,
		Tolerance:     1e-10,
	}
}

// Result is the outcome of one linear solve. When Converged is false, X holds
// the best iterate reached and ResidualNorm its 2-norm residual; the caller
// decides whether that is acceptable.
type Result struct {
	X            []float64
	Converged    bool
	Iterations   int
	ResidualNorm float64
}

func checkSystem(m *ldu.Matrix, b, x0 []float64) error {
	if len(b) != m.Rows() {
		return fmt.Errorf("solver: rhs length %d does not match %d unknowns", len(b), m.Rows())
	}
	if x0 != nil && len(x0) != m.Rows() {
		return fmt.Errorf("solver: initial guess length %d does not match %d unknowns",
			len(x0), m.Rows())
	}
	return nil
}

func threshold(b []float64, tol float64) float64 {
	bNorm := floats.Norm(b, 2)
	if bNorm == 0 {
		return tol
	}
	return tol * bNorm
}

// CG solves A·x = b by unpreconditioned conjugate gradients. The operator
// must be symmetric positive definite for the iteration to be meaningful
// (pure-diffusion assemblies qualify; convective ones do not, use BiCGStab).
func CG(m *ldu.Matrix, b, x0 []float64, opts Options) (Result, error) {
	if err := checkSystem(m, b, x0); err != nil {
		return Result{}, err
	}
	n := m.Rows()
	x := make([]float64, n)
	if x0 != nil {
		copy(x, x0)
	}
	r := make([]float64, n)
	d := make([]float64, n)
	ad := make([]float64, n)

	m.MatVec(x, r)
	for i := range r {
		r[i] = b[i] - r[i]
	}
	copy(d, r)
	rDotR := floats.Dot(r, r)
	thresh := threshold(b, opts.Tolerance)

	iter := 0
	for ; iter < opts.MaxIterations && math.Sqrt(rDotR) > thresh; iter++ {
		m.MatVec(d, ad)
		dDotAd := floats.Dot(d, ad)
		if dDotAd == 0 {
			break
		}
		alpha := rDotR / dDotAd
		floats.AddScaled(x, alpha, d)
		floats.AddScaled(r, -alpha, ad)

		rDotRNew := floats.Dot(r, r)
		beta := rDotRNew / rDotR
		rDotR = rDotRNew
		for i := range d {
			d[i] = r[i] + beta*d[i]
		}
	}

	norm := math.Sqrt(rDotR)
	return Result{
		X:            x,
		Converged:    norm <= thresh,
		Iterations:   iter,
		ResidualNorm: norm,
	}, nil
}

// BiCGStab solves A·x = b by the stabilized bi-conjugate gradient method,
// which handles the nonsymmetric operators produced by upwind convection and
// their transposes.
func BiCGStab(m *ldu.Matrix, b, x0 []float64, opts Options) (Result, error) {
	if err := checkSystem(m, b, x0); err != nil {
		return Result{}, err
	}
	n := m.Rows()
	x := make([]float64, n)
	if x0 != nil {
		copy(x, x0)
	}
	r := make([]float64, n)
	m.MatVec(x, r)
	for i := range r {
		r[i] = b[i] - r[i]
	}
	rHat := append([]float64(nil), r...)

	p := make([]float64, n)
	v := make([]float64, n)
	s := make([]float64, n)
	t := make([]float64, n)

	rho, alpha, omega := 1.0, 1.0, 1.0
	thresh := threshold(b, opts.Tolerance)
	norm := floats.Norm(r, 2)

	iter := 0
	for ; iter < opts.MaxIterations && norm > thresh; iter++ {
		rhoNew := floats.Dot(rHat, r)
		if rhoNew == 0 {
			// Breakdown: the shadow residual became orthogonal to r.
			break
		}
		beta := (rhoNew / rho) * (alpha / omega)
		rho = rhoNew
		for i := range p {
			p[i] = r[i] + beta*(p[i]-omega*v[i])
		}
		m.MatVec(p, v)
		rHatDotV := floats.Dot(rHat, v)
		if rHatDotV == 0 {
			break
		}
		alpha = rho / rHatDotV
		for i := range s {
			s[i] = r[i] - alpha*v[i]
		}
		if sn := floats.Norm(s, 2); sn <= thresh {
			floats.AddScaled(x, alpha, p)
			norm = sn
			iter++
			break
		}
		m.MatVec(s, t)
		tDotT := floats.Dot(t, t)
		if tDotT == 0 {
			break
		}
		omega = floats.Dot(t, s) / tDotT
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(x, omega, s)
		for i := range r {
			r[i] = s[i] - omega*t[i]
		}
		norm = floats.Norm(r, 2)
		if omega == 0 {
			break
		}
	}

	return Result{
		X:            x,
		Converged:    norm <= thresh,
		Iterations:   iter,
		ResidualNorm: norm,
	}, nil
}
