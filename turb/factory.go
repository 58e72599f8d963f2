package turb

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/adjflow/turbadjoint/mesh"
	"github.com/adjflow/turbadjoint/state"
)

// Constructor builds one concrete variant over a mesh graph and state
// registry. The registry must already hold the frozen flow fields the
// variant depends on ("U" and "phi").
type Constructor func(g *mesh.Graph, reg *state.Registry, opts Options, logger *log.Logger) (Model, error)

var constructors = map[string]Constructor{}

// Register adds a variant constructor under a unique name. Variants call
// this from init; a duplicate name is a programming error and panics.
func Register(name string, ctor Constructor) {
	if _, ok := constructors[name]; ok {
		panic(fmt.Sprintf("turb: variant %q registered twice", name))
	}
	constructors[name] = ctor
}

// New constructs the named variant. An unregistered name fails with
// ErrUnknownVariant; construction itself fails on invalid options or a
// registry missing required flow fields.
func New(name string, g *mesh.Graph, reg *state.Registry, opts Options, logger *log.Logger) (Model, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownVariant, name, Variants())
	}
	return ctor(g, reg, opts, logger)
}

// Variants returns the registered variant names in sorted order.
func Variants() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
