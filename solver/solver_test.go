package solver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/adjflow/turbadjoint/ldu"
	"github.com/adjflow/turbadjoint/mesh"
)

// spdSystem is a symmetric positive definite diffusion-like operator on an
// n-cell chain: 2 on the diagonal (plus end reinforcement), -1 off-diagonal.
func spdSystem(t *testing.T, n int) *ldu.Matrix {
	t.Helper()
	g := mesh.NewLine(n, 1.0)
	m := ldu.New(g)
	for c := 0; c < n; c++ {
		m.Diag[c] = 2
	}
	m.Diag[0], m.Diag[n-1] = 3, 3
	for f := 0; f < n-1; f++ {
		m.Upper[f] = -1
		m.Lower[f] = -1
	}
	return m
}

// convectiveSystem adds an upwind-style asymmetry, making the operator
// nonsymmetric but still diagonally dominant.
func convectiveSystem(t *testing.T, n int) *ldu.Matrix {
	t.Helper()
	m := spdSystem(t, n)
	for f := 0; f < n-1; f++ {
		m.Upper[f] = -0.3
		m.Lower[f] = -1.5
		m.Diag[f] += 0.5
	}
	return m
}

func residualNorm(m *ldu.Matrix, x, b []float64) float64 {
	r := make([]float64, len(b))
	m.MatVec(x, r)
	floats.Sub(r, b)
	return floats.Norm(r, 2)
}

func TestCG(t *testing.T) {
	m := spdSystem(t, 20)
	b := make([]float64, 20)
	for i := range b {
		b[i] = float64(i%3) + 1
	}

	result, err := CG(m, b, nil, Options{MaxIterations: 200, Tolerance: 1e-12})
	require.NoError(t, err)
	assert.True(t, result.Converged)
	assert.Less(t, residualNorm(m, result.X, b), 1e-10)
}

func TestBiCGStab(t *testing.T) {
	t.Run("Nonsymmetric", func(t *testing.T) {
		m := convectiveSystem(t, 20)
		b := make([]float64, 20)
		b[0], b[10], b[19] = 1, -2, 0.5

		result, err := BiCGStab(m, b, nil, Options{MaxIterations: 500, Tolerance: 1e-12})
		require.NoError(t, err)
		assert.True(t, result.Converged)
		assert.Less(t, residualNorm(m, result.X, b), 1e-9)
	})

	t.Run("WarmStart", func(t *testing.T) {
		m := convectiveSystem(t, 10)
		b := make([]float64, 10)
		for i := range b {
			b[i] = 1
		}
		exact, err := BiCGStab(m, b, nil, Options{MaxIterations: 500, Tolerance: 1e-13})
		require.NoError(t, err)
		require.True(t, exact.Converged)

		restarted, err := BiCGStab(m, b, exact.X, Options{MaxIterations: 5, Tolerance: 1e-10})
		require.NoError(t, err)
		assert.True(t, restarted.Converged)
		assert.Equal(t, 0, restarted.Iterations, "exact warm start needs no iterations")
	})

	t.Run("ZeroRHS", func(t *testing.T) {
		m := convectiveSystem(t, 8)
		b := make([]float64, 8)
		result, err := BiCGStab(m, b, nil, Options{MaxIterations: 10, Tolerance: 1e-12})
		require.NoError(t, err)
		assert.True(t, result.Converged)
		assert.Equal(t, 0.0, floats.Norm(result.X, 2))
	})
}

func TestNonConvergenceIsAValue(t *testing.T) {
	m := convectiveSystem(t, 30)
	b := make([]float64, 30)
	for i := range b {
		b[i] = math.Sin(float64(i))
	}

	result, err := BiCGStab(m, b, nil, Options{MaxIterations: 1, Tolerance: 1e-14})
	require.NoError(t, err, "non-convergence must not be an error")
	assert.False(t, result.Converged)
	assert.Equal(t, 1, result.Iterations)
	assert.False(t, math.IsNaN(result.ResidualNorm))
	assert.False(t, math.IsInf(result.ResidualNorm, 0))
	assert.Len(t, result.X, 30, "best iterate is returned")
}

func TestDimensionChecks(t *testing.T) {
	m := spdSystem(t, 5)
	_, err := CG(m, []float64{1, 2}, nil, DefaultOptions())
	assert.Error(t, err)
	_, err = BiCGStab(m, make([]float64, 5), []float64{1}, DefaultOptions())
	assert.Error(t, err)
}
