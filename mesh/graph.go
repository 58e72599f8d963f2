// Package mesh exposes the cell-adjacency view of a finite-volume mesh
// partition: internal faces as ordered (owner, neighbour) cell pairs plus
// boundary faces grouped into named patches. The graph is built once by the
// caller and treated as immutable afterwards; every array is indexed by the
// canonical cell and internal-face ordering that downstream operators rely on.
package mesh

import (
	"fmt"
	"math"
)

// Patch is a group of boundary faces sharing one boundary condition surface.
// Faces are stored structure-of-arrays style: face i of the patch is adjacent
// to cell Cells[i], has area Area[i] and cell-centre-to-face distance Delta[i].
type Patch struct {
	Name  string
	Cells []int
	Area  []float64
	Delta []float64
}

// NumFaces returns the number of boundary faces in the patch.
func (p *Patch) NumFaces() int {
	return len(p.Cells)
}

// Graph is the read-only mesh adjacency supplied to the turbulence core.
//
// Internal face f connects Owner[f] and Neighbour[f]; the face normal points
// from owner to neighbour, so a positive face flux is owner-to-neighbour flow.
type Graph struct {
	NumCells  int
	Owner     []int
	Neighbour []int

	// Per-internal-face geometry: face area and owner-to-neighbour
	// centroid distance.
	Area  []float64
	Delta []float64

	// Per-cell volume.
	Volume []float64

	Patches []Patch
}

// NumInternalFaces returns the number of internal (owner, neighbour) faces.
func (g *Graph) NumInternalFaces() int {
	return len(g.Owner)
}

// Patch returns the named boundary patch.
func (g *Graph) Patch(name string) (*Patch, error) {
	for i := range g.Patches {
		if g.Patches[i].Name == name {
			return &g.Patches[i], nil
		}
	}
	return nil, fmt.Errorf("mesh: no boundary patch %q", name)
}

// Verify checks the structural invariants of the graph: every internal face
// joins two distinct, in-range cells, every geometric array matches its
// indexing array in length, and volumes, areas and distances are positive.
func (g *Graph) Verify() error {
	if g.NumCells <= 0 {
		return fmt.Errorf("mesh: invalid cell count %d", g.NumCells)
	}
	nf := g.NumInternalFaces()
	if len(g.Neighbour) != nf {
		return fmt.Errorf("mesh: owner/neighbour length mismatch: %d vs %d",
			nf, len(g.Neighbour))
	}
	if len(g.Area) != nf || len(g.Delta) != nf {
		return fmt.Errorf("mesh: face geometry length mismatch: faces=%d area=%d delta=%d",
			nf, len(g.Area), len(g.Delta))
	}
	if len(g.Volume) != g.NumCells {
		return fmt.Errorf("mesh: volume length %d does not match cell count %d",
			len(g.Volume), g.NumCells)
	}
	for f := 0; f < nf; f++ {
		o, n := g.Owner[f], g.Neighbour[f]
		if o < 0 || o >= g.NumCells || n < 0 || n >= g.NumCells {
			return fmt.Errorf("mesh: face %d references cell out of range: owner=%d neighbour=%d",
				f, o, n)
		}
		if o == n {
			return fmt.Errorf("mesh: face %d has owner == neighbour == %d", f, o)
		}
		if g.Area[f] <= 0 || g.Delta[f] <= 0 {
			return fmt.Errorf("mesh: face %d has non-positive geometry: area=%g delta=%g",
				f, g.Area[f], g.Delta[f])
		}
	}
	for c, v := range g.Volume {
		if v <= 0 {
			return fmt.Errorf("mesh: cell %d has non-positive volume %g", c, v)
		}
	}
	for i := range g.Patches {
		p := &g.Patches[i]
		if len(p.Area) != len(p.Cells) || len(p.Delta) != len(p.Cells) {
			return fmt.Errorf("mesh: patch %q geometry length mismatch: cells=%d area=%d delta=%d",
				p.Name, len(p.Cells), len(p.Area), len(p.Delta))
		}
		for j, c := range p.Cells {
			if c < 0 || c >= g.NumCells {
				return fmt.Errorf("mesh: patch %q face %d references cell %d out of range",
					p.Name, j, c)
			}
		}
	}
	return nil
}

// CellFaces returns, for each cell, the indices of the internal faces it
// touches. The per-cell ordering follows the global face ordering.
func (g *Graph) CellFaces() [][]int {
	faces := make([][]int, g.NumCells)
	for f := range g.Owner {
		faces[g.Owner[f]] = append(faces[g.Owner[f]], f)
		faces[g.Neighbour[f]] = append(faces[g.Neighbour[f]], f)
	}
	return faces
}

// WallDistance computes an approximate distance from every cell centre to the
// nearest face of any of the named patches, walking the cell graph and
// accumulating centroid distances. The walk is a label-correcting relaxation
// over internal faces, so the result is deterministic for a fixed graph.
func (g *Graph) WallDistance(patchNames ...string) ([]float64, error) {
	dist := make([]float64, g.NumCells)
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	seeded := false
	for _, name := range patchNames {
		p, err := g.Patch(name)
		if err != nil {
			return nil, err
		}
		for j, c := range p.Cells {
			if p.Delta[j] < dist[c] {
				dist[c] = p.Delta[j]
			}
			seeded = true
		}
	}
	if !seeded {
		return nil, fmt.Errorf("mesh: wall distance requested with no wall faces on patches %v",
			patchNames)
	}
	for changed := true; changed; {
		changed = false
		for f := range g.Owner {
			o, n := g.Owner[f], g.Neighbour[f]
			if d := dist[o] + g.Delta[f]; d < dist[n] {
				dist[n] = d
				changed = true
			}
			if d := dist[n] + g.Delta[f]; d < dist[o] {
				dist[o] = d
				changed = true
			}
		}
	}
	return dist, nil
}
