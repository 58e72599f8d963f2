package turb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/adjflow/turbadjoint/state"
)

// relative infinity-norm mismatch between two residual paths.
func relMismatch(a, b []float64) float64 {
	diff := make([]float64, len(a))
	copy(diff, a)
	floats.Sub(diff, b)
	m := floats.Norm(diff, math.Inf(1))
	if scale := floats.Norm(b, math.Inf(1)); scale > 0 {
		m /= scale
	}
	return m
}

func TestSANoOperatorBeforeAssembly(t *testing.T) {
	m := newTestModel(t, "SpalartAllmaras", 10)

	_, _, _, err := m.OperatorCoefficients("nuTilda")
	assert.ErrorIs(t, err, ErrNoOperator)

	_, err = m.Residual("nuTilda")
	assert.ErrorIs(t, err, ErrNoOperator)

	_, err = m.ResidualFromOperator("nuTilda", make([]float64, 10))
	assert.ErrorIs(t, err, ErrNoOperator)

	_, err = m.SolveTranspose("nuTilda", make([]float64, 10))
	assert.ErrorIs(t, err, ErrNoOperator)

	assert.Error(t, m.Correct(false), "correct before assembly must fail")
}

func TestSADeterministicAssembly(t *testing.T) {
	m := newTestModel(t, "SpalartAllmaras", 16)
	m.CorrectBoundaryConditions()

	require.NoError(t, m.CalcResiduals(DefaultResidualOpts()))
	d1, u1, l1, err := m.OperatorCoefficients("nuTilda")
	require.NoError(t, err)
	r1, err := m.Residual("nuTilda")
	require.NoError(t, err)

	require.NoError(t, m.CalcResiduals(DefaultResidualOpts()))
	d2, u2, l2, err := m.OperatorCoefficients("nuTilda")
	require.NoError(t, err)
	r2, err := m.Residual("nuTilda")
	require.NoError(t, err)

	assert.Equal(t, d1, d2, "diagonal must repeat bit-for-bit")
	assert.Equal(t, u1, u2)
	assert.Equal(t, l1, l2)
	assert.Equal(t, r1, r2)
}

func TestSALinearizationConsistency(t *testing.T) {
	g, reg := newTestFlow(t, 16)
	model, err := New("SpalartAllmaras", g, reg, DefaultOptions(), nil)
	require.NoError(t, err)
	model.CorrectBoundaryConditions()
	require.NoError(t, model.CalcResiduals(DefaultResidualOpts()))

	nuTilda, err := reg.Field("nuTilda")
	require.NoError(t, err)

	direct, err := model.Residual("nuTilda")
	require.NoError(t, err)
	fromOp, err := model.ResidualFromOperator("nuTilda", nuTilda.CopyValues())
	require.NoError(t, err)

	assert.Less(t, relMismatch(fromOp, direct), 1e-10,
		"matrix-free and assembled residuals must agree")

	t.Run("SkipProduction", func(t *testing.T) {
		require.NoError(t, model.CalcResiduals(ResidualOpts{SkipProduction: true}))
		direct, err := model.Residual("nuTilda")
		require.NoError(t, err)
		fromOp, err := model.ResidualFromOperator("nuTilda", nuTilda.CopyValues())
		require.NoError(t, err)
		assert.Less(t, relMismatch(fromOp, direct), 1e-10)
	})
}

func TestSAOperatorShapesAndSnapshots(t *testing.T) {
	m := newTestModel(t, "SpalartAllmaras", 12)
	require.NoError(t, m.CalcResiduals(DefaultResidualOpts()))

	diag, upper, lower, err := m.OperatorCoefficients("nuTilda")
	require.NoError(t, err)
	assert.Len(t, diag, 12)
	assert.Len(t, upper, 11)
	assert.Len(t, lower, 11)

	// Mutating the snapshot must not leak into the model.
	diag[0] += 1000
	diag2, _, _, err := m.OperatorCoefficients("nuTilda")
	require.NoError(t, err)
	assert.NotEqual(t, diag[0], diag2[0])
}

func TestSAForwardCycle(t *testing.T) {
	g, reg := newTestFlow(t, 20)
	opts := DefaultOptions()
	opts.NuTildaMin = 1e-10
	model, err := New("SpalartAllmaras", g, reg, opts, nil)
	require.NoError(t, err)

	nuTilda, err := reg.Field("nuTilda")
	require.NoError(t, err)

	for iter := 1; iter <= 5; iter++ {
		model.CorrectWallDist(iter)
		model.CorrectBoundaryConditions()
		require.NoError(t, model.CalcResiduals(DefaultResidualOpts()))
		require.NoError(t, model.Correct(false))
		model.UpdateIntermediateVariables()
		model.CorrectNut()

		for c, v := range nuTilda.Values {
			assert.GreaterOrEqual(t, v, opts.NuTildaMin, "cell %d below floor", c)
			assert.False(t, math.IsNaN(v), "cell %d is NaN", c)
		}
	}

	nut, err := reg.Field("nut")
	require.NoError(t, err)
	for c, v := range nut.Values {
		assert.GreaterOrEqual(t, v, 0.0, "nut negative in cell %d", c)
	}
}

// The 10-cell end-to-end scenario: uniform nuTilda of 1.0, floor 1e-10, a
// unit seed at cell 0; the transpose solve must give a finite, non-trivial
// response.
func TestSATransposeSolveEndToEnd(t *testing.T) {
	g, reg := newTestFlow(t, 10)
	wallBCs := map[string]state.BC{
		"wallLo": {Type: state.FixedValue, Value: 0},
		"wallHi": {Type: state.FixedValue, Value: 0},
	}
	_, err := reg.Register("nuTilda", 1.0, wallBCs)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.NuTildaMin = 1e-10
	model, err := New("SpalartAllmaras", g, reg, opts, nil)
	require.NoError(t, err)

	model.CorrectBoundaryConditions()
	require.NoError(t, model.CalcResiduals(DefaultResidualOpts()))

	seed := make([]float64, 10)
	seed[0] = 1
	result, err := model.SolveTranspose("nuTilda", seed)
	require.NoError(t, err)
	assert.True(t, result.Converged)

	infNorm := floats.Norm(result.X, math.Inf(1))
	assert.False(t, math.IsInf(infNorm, 0))
	assert.False(t, math.IsNaN(infNorm))
	assert.NotZero(t, result.X[0], "localized seed must produce a response at its cell")
}

func TestSATransposeSolveLeavesForwardStateUntouched(t *testing.T) {
	g, reg := newTestFlow(t, 10)
	model, err := New("SpalartAllmaras", g, reg, DefaultOptions(), nil)
	require.NoError(t, err)
	require.NoError(t, model.CalcResiduals(DefaultResidualOpts()))

	nuTilda, err := reg.Field("nuTilda")
	require.NoError(t, err)
	before := nuTilda.CopyValues()
	dBefore, uBefore, lBefore, err := model.OperatorCoefficients("nuTilda")
	require.NoError(t, err)

	rhs := make([]float64, 10)
	rhs[3] = 2.5
	_, err = model.SolveTranspose("nuTilda", rhs)
	require.NoError(t, err)

	assert.Equal(t, before, nuTilda.Values)
	dAfter, uAfter, lAfter, err := model.OperatorCoefficients("nuTilda")
	require.NoError(t, err)
	assert.Equal(t, dBefore, dAfter)
	assert.Equal(t, uBefore, uAfter)
	assert.Equal(t, lBefore, lAfter)
}

func TestSAPrandtl(t *testing.T) {
	t.Run("Unset", func(t *testing.T) {
		m := newTestModel(t, "SpalartAllmaras", 8)
		_, err := m.Prt()
		assert.ErrorIs(t, err, ErrPrandtlUnset)
	})

	t.Run("Configured", func(t *testing.T) {
		g, reg := newTestFlow(t, 8)
		opts := DefaultOptions()
		opts.Prt = 0.9
		m, err := New("SpalartAllmaras", g, reg, opts, nil)
		require.NoError(t, err)
		prt, err := m.Prt()
		require.NoError(t, err)
		assert.Equal(t, 0.9, prt)
	})
}

func TestSAYPlusSummary(t *testing.T) {
	m := newTestModel(t, "SpalartAllmaras", 10)
	yp, err := m.YPlusSummary()
	require.NoError(t, err)
	assert.LessOrEqual(t, yp.Min, yp.Mean)
	assert.LessOrEqual(t, yp.Mean, yp.Max)
	assert.False(t, math.IsNaN(yp.Mean))
}
