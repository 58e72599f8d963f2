// Package ldu implements the sparse linear operator produced by residual
// assembly, stored in LDU form: one diagonal coefficient per cell and one
// off-diagonal coefficient per internal face in each direction. The mesh
// adjacency supplies the sparsity pattern, so no general sparse format is
// needed.
//
// Coefficient convention (owner/neighbour for face f):
//
//	Upper[f] multiplies x[Neighbour[f]] in the Owner[f] row
//	Lower[f] multiplies x[Owner[f]]     in the Neighbour[f] row
//
// Swapping Upper and Lower therefore transposes the operator while the
// diagonal stays put.
package ldu

import (
	"fmt"

	"github.com/adjflow/turbadjoint/mesh"
)

// Matrix is an LDU-form operator plus its source (right-hand side) vector,
// implicitly defining the affine system A·x = Source over the cell graph.
type Matrix struct {
	graph  *mesh.Graph
	Diag   []float64
	Upper  []float64
	Lower  []float64
	Source []float64
}

// New allocates a zeroed operator over the given graph.
func New(g *mesh.Graph) *Matrix {
	return &Matrix{
		graph:  g,
		Diag:   make([]float64, g.NumCells),
		Upper:  make([]float64, g.NumInternalFaces()),
		Lower:  make([]float64, g.NumInternalFaces()),
		Source: make([]float64, g.NumCells),
	}
}

// Graph returns the adjacency the coefficients are indexed by.
func (m *Matrix) Graph() *mesh.Graph {
	return m.graph
}

// Rows returns the number of unknowns (cells).
func (m *Matrix) Rows() int {
	return len(m.Diag)
}

// MatVec writes y = A·x and returns y. The slices must both have length
// Rows(); y may not alias x.
func (m *Matrix) MatVec(x, y []float64) []float64 {
	for i := range y {
		y[i] = m.Diag[i] * x[i]
	}
	for f := range m.Upper {
		o, n := m.graph.Owner[f], m.graph.Neighbour[f]
		y[o] += m.Upper[f] * x[n]
		y[n] += m.Lower[f] * x[o]
	}
	return y
}

// Residual returns A·x − Source, the matrix-derived residual of the assembled
// system for a candidate state x.
func (m *Matrix) Residual(x []float64) ([]float64, error) {
	if len(x) != m.Rows() {
		return nil, fmt.Errorf("ldu: state vector length %d does not match %d unknowns",
			len(x), m.Rows())
	}
	r := make([]float64, m.Rows())
	m.MatVec(x, r)
	for i := range r {
		r[i] -= m.Source[i]
	}
	return r, nil
}

// Transpose returns a new operator holding Aᵗ: the owner-directed and
// neighbour-directed face coefficients exchange roles, the diagonal is
// unchanged. The source vector is not carried over; the caller supplies the
// transpose system's right-hand side.
func (m *Matrix) Transpose() *Matrix {
	t := New(m.graph)
	copy(t.Diag, m.Diag)
	copy(t.Upper, m.Lower)
	copy(t.Lower, m.Upper)
	return t
}

// Coefficients returns read-only snapshots of the diagonal, upper and lower
// coefficient arrays. The copies are independent of the operator, so callers
// may mutate them freely.
func (m *Matrix) Coefficients() (diag, upper, lower []float64) {
	diag = append([]float64(nil), m.Diag...)
	upper = append([]float64(nil), m.Upper...)
	lower = append([]float64(nil), m.Lower...)
	return diag, upper, lower
}

// Clone deep-copies the operator including its source vector.
func (m *Matrix) Clone() *Matrix {
	c := New(m.graph)
	copy(c.Diag, m.Diag)
	copy(c.Upper, m.Upper)
	copy(c.Lower, m.Lower)
	copy(c.Source, m.Source)
	return c
}
