package turb

import (
	"github.com/adjflow/turbadjoint/mesh"
	"github.com/adjflow/turbadjoint/state"
)

// ownedField fetches a model-owned field from the registry or registers it
// with the variant's defaults: uniform initial value, fixed zero on wall
// patches, zero-gradient elsewhere. Letting the caller pre-register the field
// keeps restart workflows in charge of initial values.
func ownedField(reg *state.Registry, name string, initial float64, wallPatches []string) (*state.Field, error) {
	if reg.Has(name) {
		return reg.Field(name)
	}
	bcs := make(map[string]state.BC, len(wallPatches))
	for _, p := range wallPatches {
		bcs[p] = state.BC{Type: state.FixedValue, Value: 0}
	}
	return reg.Register(name, initial, bcs)
}

// applyBoundaryConditions refreshes a field's per-patch boundary values from
// its boundary-condition descriptors: fixed values are pinned, zero-gradient
// faces copy the adjacent cell value.
func applyBoundaryConditions(g *mesh.Graph, f *state.Field) {
	for i := range g.Patches {
		p := &g.Patches[i]
		bc := f.BCs[p.Name]
		bvals := f.Boundary[p.Name]
		for j, cell := range p.Cells {
			switch bc.Type {
			case state.FixedValue:
				bvals[j] = bc.Value
			case state.ZeroGradient:
				bvals[j] = f.Values[cell]
			}
		}
	}
}

// cellGradient estimates a per-cell gradient of a cell field over the graph
// by averaging the two-point gradients of the cell's internal faces. On a 1D
// chain this reduces to a central difference in the interior.
func cellGradient(g *mesh.Graph, values []float64) []float64 {
	grad := make([]float64, g.NumCells)
	count := make([]float64, g.NumCells)
	for f := range g.Owner {
		o, n := g.Owner[f], g.Neighbour[f]
		d := (values[n] - values[o]) / g.Delta[f]
		grad[o] += d
		grad[n] += d
		count[o]++
		count[n]++
	}
	for i := range grad {
		if count[i] > 0 {
			grad[i] /= count[i]
		}
	}
	return grad
}
