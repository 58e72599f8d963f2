package turb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adjflow/turbadjoint/mesh"
	"github.com/adjflow/turbadjoint/state"
)

// newTestFlow builds an n-cell channel graph and a registry holding the
// frozen flow fields every variant needs: a parabolic velocity profile "U"
// and a small uniform face flux "phi".
func newTestFlow(t *testing.T, n int) (*mesh.Graph, *state.Registry) {
	t.Helper()
	g := mesh.NewLine(n, 1.0)
	require.NoError(t, g.Verify())
	reg := state.NewRegistry(g)

	u, err := reg.Register("U", 0, nil)
	require.NoError(t, err)
	dy := 1.0 / float64(n)
	for c := 0; c < n; c++ {
		y := (float64(c) + 0.5) * dy
		u.Values[c] = 4 * y * (1 - y)
	}

	phi := make([]float64, g.NumInternalFaces())
	for f := range phi {
		phi[f] = 0.01
	}
	_, err = reg.RegisterFace("phi", phi)
	require.NoError(t, err)

	reg.Freeze("U")
	reg.Freeze("phi")
	return g, reg
}

// stateRegistryWithoutFlow returns an empty registry on g, for exercising
// the missing-flow-field construction errors.
func stateRegistryWithoutFlow(t *testing.T, g *mesh.Graph) *state.Registry {
	t.Helper()
	return state.NewRegistry(g)
}

// newTestModel constructs a named variant over a fresh n-cell test flow.
func newTestModel(t *testing.T, name string, n int) Model {
	t.Helper()
	g, reg := newTestFlow(t, n)
	m, err := New(name, g, reg, DefaultOptions(), nil)
	require.NoError(t, err)
	return m
}
