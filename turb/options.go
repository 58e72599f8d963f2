package turb

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/adjflow/turbadjoint/solver"
)

// Options configures a turbulence model at construction. Every field has a
// documented default (see DefaultOptions); the struct is validated once, at
// construction, rather than looked up ad hoc at use sites.
type Options struct {
	// Nu is the molecular kinematic viscosity of the working fluid.
	Nu float64 `yaml:"nu"`

	// Floors for the clipped state variables. Values below the floor after
	// any update are clipped up to it, silently.
	KMin       float64 `yaml:"kMin"`
	OmegaMin   float64 `yaml:"omegaMin"`
	EpsilonMin float64 `yaml:"epsilonMin"`
	NuTildaMin float64 `yaml:"nuTildaMin"`

	// Prt is the turbulent Prandtl number. Zero or negative means unset;
	// asking a model for it then fails with ErrPrandtlUnset.
	Prt float64 `yaml:"prt"`

	// PrintInterval is the iteration cadence for diagnostic output.
	PrintInterval int `yaml:"printInterval"`

	// WallDistInterval is the iteration cadence for wall-distance updates,
	// which are coarser than the per-iteration forward cycle.
	WallDistInterval int `yaml:"wallDistInterval"`

	// WallPatches names the boundary patches treated as walls. When empty,
	// every patch whose name starts with "wall" is used.
	WallPatches []string `yaml:"wallPatches"`

	// Solver bounds the linear solves issued by Correct and SolveTranspose.
	Solver solver.Options `yaml:"solver"`

	// Coeffs overrides individual closure coefficients by name (for example
	// "sigmaNut" or "betaStar"). Unknown names are ignored by the variants
	// that do not define them.
	Coeffs map[string]float64 `yaml:"coeffs"`
}

// DefaultOptions returns the options used when the caller overrides nothing.
func DefaultOptions() Options {
	return Options{
		Nu:               1e-5,
		KMin:             1e-16,
		OmegaMin:         1e-16,
		EpsilonMin:       1e-16,
		NuTildaMin:       1e-16,
		Prt:              0, // unset
		PrintInterval:    100,
		WallDistInterval: 10,
		Solver:           solver.DefaultOptions(),
	}
}

// LoadOptions decodes YAML into a fresh Options value starting from the
// defaults, so absent keys keep their documented default and unrecognized
// keys are ignored.
func LoadOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("turb: decoding options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate checks the options for internal consistency. Construction calls
// this; it is exported so callers can vet hand-built options early.
func (o Options) Validate() error {
	if o.Nu <= 0 {
		return fmt.Errorf("turb: molecular viscosity must be positive, got %g", o.Nu)
	}
	for name, v := range map[string]float64{
		"kMin":       o.KMin,
		"omegaMin":   o.OmegaMin,
		"epsilonMin": o.EpsilonMin,
		"nuTildaMin": o.NuTildaMin,
	} {
		if v < 0 {
			return fmt.Errorf("turb: floor %s must be non-negative, got %g", name, v)
		}
	}
	if o.PrintInterval < 1 {
		return fmt.Errorf("turb: printInterval must be at least 1, got %d", o.PrintInterval)
	}
	if o.WallDistInterval < 1 {
		return fmt.Errorf("turb: wallDistInterval must be at least 1, got %d", o.WallDistInterval)
	}
	if o.Solver.MaxIterations < 1 {
		return fmt.Errorf("turb: solver maxIterations must be at least 1, got %d",
			o.Solver.MaxIterations)
	}
	if o.Solver.Tolerance <= 0 {
		return fmt.Errorf("turb: solver tolerance must be positive, got %g",
			o.Solver.Tolerance)
	}
	return nil
}

// coeff returns the named closure coefficient, preferring a configured
// override over the variant's built-in value.
func (o Options) coeff(name string, builtin float64) float64 {
	if v, ok := o.Coeffs[name]; ok {
		return v
	}
	return builtin
}

// wallPatchNames resolves the configured wall patch list against the default
// "wall" prefix convention.
func (o Options) wallPatchNames(all []string) []string {
	if len(o.WallPatches) > 0 {
		return o.WallPatches
	}
	var walls []string
	for _, name := range all {
		if strings.HasPrefix(name, "wall") {
			walls = append(walls, name)
		}
	}
	return walls
}

// ResidualOpts selects which optional terms participate in one residual
// assembly. The zero value includes every term except wall-function
// corrections; DefaultResidualOpts is the full forward-cycle configuration.
type ResidualOpts struct {
	// SkipProduction drops the explicit production source, producing the
	// simplified operator some segregated adjoint drivers use as a
	// preconditioner.
	SkipProduction bool `yaml:"skipProduction"`

	// WallFunctions enables wall-treatment corrections on wall patches for
	// the variants that define them.
	WallFunctions bool `yaml:"wallFunctions"`
}

// DefaultResidualOpts returns the term switches for a standard forward
// assembly: production included, wall functions on.
func DefaultResidualOpts() ResidualOpts {
	return ResidualOpts{WallFunctions: true}
}
