package mesh

// Patch names produced by NewLine. The two end faces act as walls so the
// turbulence models have a wall-distance field to work with.
const (
	PatchWallLo = "wallLo"
	PatchWallHi = "wallHi"
)

// NewLine builds a uniform 1D chain of n cells spanning the given length.
// Cell i and cell i+1 share internal face i; the two end faces form the
// single-face boundary patches "wallLo" and "wallHi". Unit cross-section, so
// face areas are 1 and cell volumes equal the cell spacing.
//
// The builders in this file produce synthetic graphs for tests and examples;
// production meshes arrive pre-built from the host solver.
func NewLine(n int, length float64) *Graph {
	if n < 2 {
		panic("mesh: NewLine needs at least 2 cells")
	}
	dx := length / float64(n)
	g := &Graph{
		NumCells:  n,
		Owner:     make([]int, n-1),
		Neighbour: make([]int, n-1),
		Area:      make([]float64, n-1),
		Delta:     make([]float64, n-1),
		Volume:    make([]float64, n),
	}
	for f := 0; f < n-1; f++ {
		g.Owner[f] = f
		g.Neighbour[f] = f + 1
		g.Area[f] = 1.0
		g.Delta[f] = dx
	}
	for c := 0; c < n; c++ {
		g.Volume[c] = dx
	}
	g.Patches = []Patch{
		{Name: PatchWallLo, Cells: []int{0}, Area: []float64{1.0}, Delta: []float64{dx / 2}},
		{Name: PatchWallHi, Cells: []int{n - 1}, Area: []float64{1.0}, Delta: []float64{dx / 2}},
	}
	return g
}
