// Package turb implements the adjoint-ready turbulence model core: residual
// assembly that simultaneously produces the model's sparse linearization in
// LDU form, extraction of that operator's coefficient arrays, a matrix-free
// residual path for consistency checking, and transpose solves against
// externally supplied seed vectors. Concrete closure variants register
// themselves with the package factory and are selected by name at run time.
//
// The forward cycle, driven externally once per nonlinear outer iteration, is
//
//	CorrectBoundaryConditions → CalcResiduals → Correct →
//	UpdateIntermediateVariables → CorrectNut
//
// with CorrectWallDist invoked on a coarser, configured cadence. Adjoint
// extraction runs after a converged or frozen forward state:
//
//	CalcResiduals → OperatorCoefficients → SolveTranspose
package turb

import (
	"fmt"
	"io"
	"math"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/adjflow/turbadjoint/ldu"
	"github.com/adjflow/turbadjoint/mesh"
	"github.com/adjflow/turbadjoint/solver"
	"github.com/adjflow/turbadjoint/state"
)

// Model is the capability set every turbulence variant implements. Each
// variant owns its state variables exclusively; flow fields (velocity
// magnitude "U", face flux "phi") are read-only inputs registered by the
// caller before construction.
type Model interface {
	// Name returns the registered variant name.
	Name() string

	// Prt returns the configured turbulent Prandtl number, or
	// ErrPrandtlUnset when no override was configured and no default exists.
	Prt() (float64, error)

	// OwnedStates lists the state variables this model owns and mutates.
	OwnedStates() []string

	// ResidualDependencies maps each owned state to the set of state names
	// whose perturbation can change its residual. Every owned state appears
	// as a key, even with an empty dependency set.
	ResidualDependencies() map[string][]string

	// AddModelResidualCon appends this model's leveled residual connectivity
	// into the shared cross-model registry: level 0 names same-cell
	// influences, level 1 face-neighbour influences.
	AddModelResidualCon(allCon map[string][][]string)

	// CorrectBoundaryConditions propagates consistent boundary values for
	// the owned state variables. Call before CalcResiduals.
	CorrectBoundaryConditions()

	// UpdateIntermediateVariables refreshes cached derived quantities that
	// the next CalcResiduals reads. Idempotent within an iteration.
	UpdateIntermediateVariables()

	// CalcResiduals evaluates the nonlinear residual for every owned state
	// and, as a byproduct, assembles the corresponding LDU operator. It
	// overwrites the previously assembled operator and residual.
	CalcResiduals(opts ResidualOpts) error

	// Correct solves the assembled implicit system for each owned state,
	// updates the state with floor clipping, and refreshes the eddy
	// viscosity. Requires a preceding CalcResiduals.
	Correct(printToScreen bool) error

	// CorrectNut recomputes the eddy-viscosity field from the current state
	// variables, with floor clipping.
	CorrectNut()

	// CorrectWallDist refreshes the wall-distance field when the iteration
	// lands on the configured cadence.
	CorrectWallDist(iteration int)

	// Residual returns a copy of the most recently computed residual vector
	// for the named variable.
	Residual(varName string) ([]float64, error)

	// OperatorCoefficients returns read-only snapshots of the most recently
	// assembled operator's diagonal, upper and lower coefficient arrays for
	// the named variable, indexed by the mesh graph's canonical cell and
	// internal-face ordering.
	OperatorCoefficients(varName string) (diag, upper, lower []float64, err error)

	// ResidualFromOperator recomputes the residual as A·x − b directly from
	// the extracted operator and a candidate state vector, without
	// re-deriving the nonlinear physics. For the current state this must
	// match Residual within rounding; the equivalence is the correctness
	// invariant adjoint consistency rests on.
	ResidualFromOperator(varName string, x []float64) ([]float64, error)

	// SolveTranspose solves Aᵗ·y = rhs using the extracted operator and
	// returns the solver outcome. Non-convergence is reported in the Result,
	// not as an error. Forward-solve state is left untouched.
	SolveTranspose(varName string, rhs []float64) (solver.Result, error)

	// YPlusSummary returns min/max/mean of the near-wall distance-normalized
	// velocity scale over the wall patches. Purely observational.
	YPlusSummary() (YPlus, error)
}

// YPlus summarizes the wall-resolution diagnostic over all wall patch faces.
type YPlus struct {
	Min  float64
	Max  float64
	Mean float64
}

// core carries the machinery shared by every variant: the mesh and state
// handles, validated options, the per-variable most-recently-assembled
// operator and residual, the wall-distance field, and the diagnostics
// logger. Variants embed it by pointer.
//
// The operator store is explicit instance state guarded by the single-writer
// invariant: one logical writer per partition, CalcResiduals completes before
// any extraction that expects its output.
type core struct {
	name   string
	graph  *mesh.Graph
	reg    *state.Registry
	opts   Options
	logger *log.Logger

	wallPatches []string
	y           []float64 // wall distance per cell

	ops map[string]*ldu.Matrix
	res map[string][]float64

	iter int
}

func newCore(name string, g *mesh.Graph, reg *state.Registry, opts Options, logger *log.Logger) (*core, error) {
	if err := g.Verify(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	patchNames := make([]string, len(g.Patches))
	for i := range g.Patches {
		patchNames[i] = g.Patches[i].Name
	}
	c := &core{
		name:        name,
		graph:       g,
		reg:         reg,
		opts:        opts,
		logger:      logger,
		wallPatches: opts.wallPatchNames(patchNames),
		ops:         make(map[string]*ldu.Matrix),
		res:         make(map[string][]float64),
	}
	if len(c.wallPatches) > 0 {
		y, err := g.WallDistance(c.wallPatches...)
		if err != nil {
			return nil, err
		}
		c.y = y
	} else {
		// No walls: use a large uniform distance so destruction terms vanish.
		c.y = make([]float64, g.NumCells)
		for i := range c.y {
			c.y[i] = math.MaxFloat64
		}
	}
	return c, nil
}

// Name returns the registered variant name.
func (c *core) Name() string {
	return c.name
}

// Prt returns the configured turbulent Prandtl number or ErrPrandtlUnset.
func (c *core) Prt() (float64, error) {
	if c.opts.Prt > 0 {
		return c.opts.Prt, nil
	}
	return 0, ErrPrandtlUnset
}

// CorrectWallDist refreshes the wall-distance field on the configured
// cadence. Iteration numbering starts at 1; iteration 0 always refreshes.
func (c *core) CorrectWallDist(iteration int) {
	if iteration%c.opts.WallDistInterval != 0 {
		return
	}
	if len(c.wallPatches) == 0 {
		return
	}
	y, err := c.graph.WallDistance(c.wallPatches...)
	if err != nil {
		// Patches were validated at construction; this cannot regress.
		return
	}
	c.y = y
}

// storeSystem records the freshly assembled operator and residual for a
// variable, invalidating the previous assembly.
func (c *core) storeSystem(varName string, m *ldu.Matrix, residual []float64) {
	c.ops[varName] = m
	c.res[varName] = residual
}

func (c *core) operator(varName string) (*ldu.Matrix, error) {
	m, ok := c.ops[varName]
	if !ok {
		return nil, fmt.Errorf("%w for variable %q", ErrNoOperator, varName)
	}
	return m, nil
}

// Residual returns a copy of the most recently computed residual vector.
func (c *core) Residual(varName string) ([]float64, error) {
	r, ok := c.res[varName]
	if !ok {
		return nil, fmt.Errorf("%w for variable %q", ErrNoOperator, varName)
	}
	return append([]float64(nil), r...), nil
}

// OperatorCoefficients returns coefficient snapshots for the named variable.
func (c *core) OperatorCoefficients(varName string) (diag, upper, lower []float64, err error) {
	m, err := c.operator(varName)
	if err != nil {
		return nil, nil, nil, err
	}
	diag, upper, lower = m.Coefficients()
	return diag, upper, lower, nil
}

// ResidualFromOperator computes A·x − b from the stored operator.
func (c *core) ResidualFromOperator(varName string, x []float64) ([]float64, error) {
	m, err := c.operator(varName)
	if err != nil {
		return nil, err
	}
	return m.Residual(x)
}

// SolveTranspose solves Aᵗ·y = rhs with the external linear-solve service.
// The transpose is a fresh operator (upper and lower coefficient arrays
// exchanged, diagonal kept), so the forward operator and the state registry
// are untouched.
func (c *core) SolveTranspose(varName string, rhs []float64) (solver.Result, error) {
	m, err := c.operator(varName)
	if err != nil {
		return solver.Result{}, err
	}
	if len(rhs) != m.Rows() {
		return solver.Result{}, fmt.Errorf("turb: rhs length %d does not match %d cells",
			len(rhs), m.Rows())
	}
	result, err := solver.BiCGStab(m.Transpose(), rhs, nil, c.opts.Solver)
	if err != nil {
		return solver.Result{}, err
	}
	if !result.Converged {
		c.logger.Warn("transpose solve did not converge",
			"variable", varName,
			"iterations", result.Iterations,
			"residualNorm", result.ResidualNorm)
	}
	return result, nil
}

// isPrintTime reports whether the iteration lands on the print cadence.
func (c *core) isPrintTime(iteration int) bool {
	return iteration%c.opts.PrintInterval == 0
}

// addLeveledCon appends one variable's leveled connectivity into the shared
// cross-model registry.
func addLeveledCon(allCon map[string][][]string, varName string, levels ...[]string) {
	allCon[varName] = append(allCon[varName], levels...)
}

// YPlusSummary computes min/max/mean yPlus over the wall patches from the
// current "nut" and "U" fields, estimating the friction velocity from the
// near-wall effective viscosity and velocity magnitude.
func (c *core) YPlusSummary() (YPlus, error) {
	nut, err := c.reg.Field("nut")
	if err != nil {
		return YPlus{}, err
	}
	u, err := c.reg.Field("U")
	if err != nil {
		return YPlus{}, err
	}
	var samples []float64
	for _, name := range c.wallPatches {
		p, err := c.graph.Patch(name)
		if err != nil {
			return YPlus{}, err
		}
		for j, cell := range p.Cells {
			yf := p.Delta[j]
			nuEff := c.opts.Nu + nut.Values[cell]
			uTau := math.Sqrt(nuEff * math.Abs(u.Values[cell]) / yf)
			samples = append(samples, yf*uTau/c.opts.Nu)
		}
	}
	if len(samples) == 0 {
		return YPlus{}, fmt.Errorf("turb: no wall faces to sample yPlus on")
	}
	return YPlus{
		Min:  floats.Min(samples),
		Max:  floats.Max(samples),
		Mean: stat.Mean(samples, nil),
	}, nil
}

// printDiagnostics logs the yPlus summary and per-variable residual norms on
// the print cadence.
func (c *core) printDiagnostics(iteration int) {
	if !c.isPrintTime(iteration) {
		return
	}
	if yp, err := c.YPlusSummary(); err == nil {
		c.logger.Info("yPlus", "model", c.name,
			"min", yp.Min, "max", yp.Max, "mean", yp.Mean)
	}
	for name, r := range c.res {
		c.logger.Info("residual", "variable", name,
			"norm", floats.Norm(r, 2))
	}
}
