package ldu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adjflow/turbadjoint/mesh"
)

// testMatrix builds a small nonsymmetric operator on a 3-cell chain:
//
//	| 2 -1  0 |        b = (1, 2, 3)
//	|-2  3 -1 |
//	| 0 -3  4 |
func testMatrix(t *testing.T) *Matrix {
	t.Helper()
	g := mesh.NewLine(3, 1.0)
	require.NoError(t, g.Verify())
	m := New(g)
	copy(m.Diag, []float64{2, 3, 4})
	copy(m.Upper, []float64{-1, -1})
	copy(m.Lower, []float64{-2, -3})
	copy(m.Source, []float64{1, 2, 3})
	return m
}

func TestMatVec(t *testing.T) {
	m := testMatrix(t)
	y := make([]float64, 3)
	m.MatVec([]float64{1, 1, 1}, y)
	assert.Equal(t, []float64{1, 0, 1}, y)

	m.MatVec([]float64{1, 2, 3}, y)
	// Row 0: 2·1 − 1·2 = 0; row 1: −2·1 + 3·2 − 1·3 = 1; row 2: −3·2 + 4·3 = 6.
	assert.Equal(t, []float64{0, 1, 6}, y)
}

func TestResidual(t *testing.T) {
	m := testMatrix(t)
	r, err := m.Residual([]float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, -1, 3}, r)

	_, err = m.Residual([]float64{1, 2})
	assert.Error(t, err)
}

func TestTranspose(t *testing.T) {
	m := testMatrix(t)
	mt := m.Transpose()

	assert.Equal(t, m.Diag, mt.Diag)
	assert.Equal(t, m.Upper, mt.Lower)
	assert.Equal(t, m.Lower, mt.Upper)
	assert.Equal(t, []float64{0, 0, 0}, mt.Source, "source does not carry over")

	t.Run("TransposeOfTranspose", func(t *testing.T) {
		mtt := mt.Transpose()
		assert.Equal(t, m.Diag, mtt.Diag)
		assert.Equal(t, m.Upper, mtt.Upper)
		assert.Equal(t, m.Lower, mtt.Lower)
	})

	t.Run("MatVecAgainstExplicitTranspose", func(t *testing.T) {
		x := []float64{1, 2, 3}
		y := make([]float64, 3)
		mt.MatVec(x, y)
		// Aᵗ row 0: 2·1 − 2·2 = −2; row 1: −1·1 + 3·2 − 3·3 = −4;
		// row 2: −1·2 + 4·3 = 10.
		assert.Equal(t, []float64{-2, -4, 10}, y)
	})
}

func TestCoefficientsAreSnapshots(t *testing.T) {
	m := testMatrix(t)
	diag, upper, lower := m.Coefficients()
	diag[0], upper[0], lower[0] = 99, 99, 99

	assert.Equal(t, 2.0, m.Diag[0], "mutating a snapshot must not touch the operator")
	assert.Equal(t, -1.0, m.Upper[0])
	assert.Equal(t, -2.0, m.Lower[0])
}

func TestClone(t *testing.T) {
	m := testMatrix(t)
	c := m.Clone()
	c.Diag[0] = 99
	c.Source[0] = 99
	assert.Equal(t, 2.0, m.Diag[0])
	assert.Equal(t, 1.0, m.Source[0])
	assert.Equal(t, m.Rows(), c.Rows())
}
