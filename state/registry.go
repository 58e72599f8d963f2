// Package state holds the named per-cell and per-face fields a turbulence
// model reads and writes: its own transported quantities, derived quantities
// such as the eddy viscosity, and the frozen flow state supplied by the host
// solver. Each field has one logical writer per iteration; the registry does
// no locking (see the concurrency notes on Registry).
package state

import (
	"fmt"

	"github.com/adjflow/turbadjoint/mesh"
)

// BCType enumerates the boundary-condition treatments a cell field supports.
type BCType uint8

const (
	// ZeroGradient copies the adjacent cell value to the face (Neumann).
	// The zero value, so unspecified patches default to it.
	ZeroGradient BCType = iota
	// FixedValue pins the boundary face value (Dirichlet).
	FixedValue
)

// BC describes one patch's boundary condition for a cell field.
type BC struct {
	Type  BCType
	Value float64 // used by FixedValue, ignored otherwise
}

// Field is a per-cell scalar field with per-patch boundary face values.
type Field struct {
	Name     string
	Values   []float64
	Boundary map[string][]float64
	BCs      map[string]BC
}

// ClampFloor clips every cell and boundary value below min up to min and
// returns the number of values touched. Clipping an already-clipped field is
// a no-op, so repeated calls are safe.
func (f *Field) ClampFloor(min float64) int {
	clipped := 0
	for i, v := range f.Values {
		if v < min {
			f.Values[i] = min
			clipped++
		}
	}
	for _, bv := range f.Boundary {
		for i, v := range bv {
			if v < min {
				bv[i] = min
				clipped++
			}
		}
	}
	return clipped
}

// Fill sets every cell value to v. Boundary values are left alone; callers
// refresh them through their boundary-condition pass.
func (f *Field) Fill(v float64) {
	for i := range f.Values {
		f.Values[i] = v
	}
}

// CopyValues returns a copy of the per-cell value array.
func (f *Field) CopyValues() []float64 {
	out := make([]float64, len(f.Values))
	copy(out, f.Values)
	return out
}

// FaceField is a per-internal-face scalar field (face flux, interpolated
// diffusivity) with per-patch boundary face values.
type FaceField struct {
	Name     string
	Values   []float64
	Boundary map[string][]float64
}

// Registry is the single home for all fields on one mesh partition.
//
// Concurrency: the registry assumes a single logical writer per field per
// iteration and is not internally synchronized. Halo consistency across
// partitions is the caller's job before any residual assembly.
type Registry struct {
	graph  *mesh.Graph
	cell   map[string]*Field
	face   map[string]*FaceField
	frozen map[string]bool
}

// NewRegistry creates an empty registry bound to a mesh graph.
func NewRegistry(g *mesh.Graph) *Registry {
	return &Registry{
		graph:  g,
		cell:   make(map[string]*Field),
		face:   make(map[string]*FaceField),
		frozen: make(map[string]bool),
	}
}

// Graph returns the mesh graph the registry's fields are sized against.
func (r *Registry) Graph() *mesh.Graph {
	return r.graph
}

// Register creates a cell field initialized to a uniform value, with one
// boundary array per mesh patch. Patches missing from bcs default to
// ZeroGradient. Registering a name twice is an error.
func (r *Registry) Register(name string, initial float64, bcs map[string]BC) (*Field, error) {
	if _, ok := r.cell[name]; ok {
		return nil, fmt.Errorf("state: field %q already registered", name)
	}
	f := &Field{
		Name:     name,
		Values:   make([]float64, r.graph.NumCells),
		Boundary: make(map[string][]float64, len(r.graph.Patches)),
		BCs:      make(map[string]BC, len(r.graph.Patches)),
	}
	for i := range f.Values {
		f.Values[i] = initial
	}
	for _, p := range r.graph.Patches {
		bv := make([]float64, p.NumFaces())
		bc := bcs[p.Name]
		for j := range bv {
			if bc.Type == FixedValue {
				bv[j] = bc.Value
			} else {
				bv[j] = initial
			}
		}
		f.Boundary[p.Name] = bv
		f.BCs[p.Name] = bc
	}
	r.cell[name] = f
	return f, nil
}

// RegisterFace creates a face field from the given internal-face values.
// The slice is copied; boundary arrays are zero-initialized per patch.
func (r *Registry) RegisterFace(name string, values []float64) (*FaceField, error) {
	if _, ok := r.face[name]; ok {
		return nil, fmt.Errorf("state: face field %q already registered", name)
	}
	if len(values) != r.graph.NumInternalFaces() {
		return nil, fmt.Errorf("state: face field %q has %d values, graph has %d internal faces",
			name, len(values), r.graph.NumInternalFaces())
	}
	f := &FaceField{
		Name:     name,
		Values:   append([]float64(nil), values...),
		Boundary: make(map[string][]float64, len(r.graph.Patches)),
	}
	for _, p := range r.graph.Patches {
		f.Boundary[p.Name] = make([]float64, p.NumFaces())
	}
	r.face[name] = f
	return f, nil
}

// Field returns the named cell field.
func (r *Registry) Field(name string) (*Field, error) {
	f, ok := r.cell[name]
	if !ok {
		return nil, fmt.Errorf("state: no cell field %q", name)
	}
	return f, nil
}

// FaceFieldByName returns the named face field.
func (r *Registry) FaceFieldByName(name string) (*FaceField, error) {
	f, ok := r.face[name]
	if !ok {
		return nil, fmt.Errorf("state: no face field %q", name)
	}
	return f, nil
}

// Has reports whether a cell field with the given name exists.
func (r *Registry) Has(name string) bool {
	_, ok := r.cell[name]
	return ok
}

// Freeze marks a field as externally owned flow state. Frozen fields are
// read-only inputs to the turbulence core; the flag is advisory, models
// consult it rather than the registry policing every write.
func (r *Registry) Freeze(name string) {
	r.frozen[name] = true
}

// Frozen reports whether the named field is externally owned.
func (r *Registry) Frozen(name string) bool {
	return r.frozen[name]
}
