package turb

import (
	"fmt"
	"math"

	"github.com/charmbracelet/log"

	"github.com/adjflow/turbadjoint/ldu"
	"github.com/adjflow/turbadjoint/mesh"
	"github.com/adjflow/turbadjoint/solver"
	"github.com/adjflow/turbadjoint/state"
)

// Standard Spalart-Allmaras closure coefficients.
const (
	saCb1   = 0.1355
	saCb2   = 0.622
	saSigma = 2.0 / 3.0
	saKappa = 0.41
	saCv1   = 7.1
	saCw2   = 0.3
	saCw3   = 2.0

	saCv1Cubed = saCv1 * saCv1 * saCv1
	saCw3Sixth = saCw3 * saCw3 * saCw3 * saCw3 * saCw3 * saCw3
	saCw1      = saCb1/(saKappa*saKappa) + (1+saCb2)/saSigma

	// Floors keeping the shear production and wall distance away from zero
	// inside the closure functions.
	saSMin = 1e-10
	saDMin = 1e-10
)

func saFv1(chi float64) float64 {
	chi3 := chi * chi * chi
	return chi3 / (chi3 + saCv1Cubed)
}

func saFv2(chi, fv1 float64) float64 {
	return 1 - chi/(1+chi*fv1)
}

func saG(r float64) float64 {
	return r + saCw2*(math.Pow(r, 6)-r)
}

func saFw(g float64) float64 {
	limiter := (1 + saCw3Sixth) / (math.Pow(g, 6) + saCw3Sixth)
	return g * math.Pow(limiter, 1.0/6.0)
}

func init() {
	Register("SpalartAllmaras", newSpalartAllmaras)
}

// SpalartAllmaras is the one-equation eddy-viscosity-transport variant. It
// owns the "nuTilda" state variable and the derived "nut" field, and reads
// the frozen flow fields "U" (cell velocity magnitude) and "phi" (face flux).
type SpalartAllmaras struct {
	*core

	nuTilda *state.Field
	nut     *state.Field
	u       *state.Field
	phi     *state.FaceField

	// Vorticity magnitude cache, refreshed by UpdateIntermediateVariables.
	vort []float64
}

func newSpalartAllmaras(g *mesh.Graph, reg *state.Registry, opts Options, logger *log.Logger) (Model, error) {
	c, err := newCore("SpalartAllmaras", g, reg, opts, logger)
	if err != nil {
		return nil, err
	}
	u, err := reg.Field("U")
	if err != nil {
		return nil, fmt.Errorf("SpalartAllmaras requires the flow field U: %w", err)
	}
	phi, err := reg.FaceFieldByName("phi")
	if err != nil {
		return nil, fmt.Errorf("SpalartAllmaras requires the face flux phi: %w", err)
	}
	nuTilda, err := ownedField(reg, "nuTilda", 3*opts.Nu, c.wallPatches)
	if err != nil {
		return nil, err
	}
	nut, err := ownedField(reg, "nut", 0, c.wallPatches)
	if err != nil {
		return nil, err
	}
	sa := &SpalartAllmaras{
		core:    c,
		nuTilda: nuTilda,
		nut:     nut,
		u:       u,
		phi:     phi,
	}
	sa.nuTilda.ClampFloor(opts.NuTildaMin)
	sa.UpdateIntermediateVariables()
	sa.CorrectNut()
	return sa, nil
}

// OwnedStates lists the state variables this model owns.
func (sa *SpalartAllmaras) OwnedStates() []string {
	return []string{"nuTilda"}
}

// ResidualDependencies declares what can perturb the nuTilda residual.
func (sa *SpalartAllmaras) ResidualDependencies() map[string][]string {
	return map[string][]string{
		"nuTilda": {"nuTilda", "U", "phi"},
	}
}

// AddModelResidualCon appends the leveled nuTilda connectivity: the residual
// in a cell sees the same cell's states (level 0) and its face neighbours'
// states (level 1) through convection and diffusion.
func (sa *SpalartAllmaras) AddModelResidualCon(allCon map[string][][]string) {
	deps := []string{"nuTilda", "U", "phi"}
	addLeveledCon(allCon, "nuTilda", deps, deps)
}

// CorrectBoundaryConditions refreshes the nuTilda boundary values from its
// per-patch boundary conditions.
func (sa *SpalartAllmaras) CorrectBoundaryConditions() {
	applyBoundaryConditions(sa.graph, sa.nuTilda)
}

// UpdateIntermediateVariables recomputes the vorticity magnitude from the
// frozen velocity field. Pure recomputation, so repeat calls are no-ops.
func (sa *SpalartAllmaras) UpdateIntermediateVariables() {
	grad := cellGradient(sa.graph, sa.u.Values)
	if sa.vort == nil {
		sa.vort = make([]float64, sa.graph.NumCells)
	}
	for i, g := range grad {
		sa.vort[i] = math.Abs(g)
	}
}

// closureTerms evaluates the pointwise closure quantities for the current
// state: the explicit production and cross-production sources and the
// implicit destruction coefficient, each already scaled by cell volume.
func (sa *SpalartAllmaras) closureTerms(opts ResidualOpts) (prod, cross, destrCoef []float64) {
	n := sa.graph.NumCells
	prod = make([]float64, n)
	cross = make([]float64, n)
	destrCoef = make([]float64, n)
	grad := cellGradient(sa.graph, sa.nuTilda.Values)
	for c := 0; c < n; c++ {
		x := sa.nuTilda.Values[c]
		vol := sa.graph.Volume[c]
		d := math.Max(sa.y[c], saDMin)
		d2 := d * d

		chi := x / sa.opts.Nu
		fv1 := saFv1(chi)
		fv2 := saFv2(chi, fv1)
		stilda := math.Max(sa.vort[c]+x*fv2/(saKappa*saKappa*d2), saSMin)

		r := math.Min(x/(stilda*saKappa*saKappa*d2), 10)
		fw := saFw(saG(r))

		if !opts.SkipProduction {
			prod[c] = sa.opts.coeff("Cb1", saCb1) * stilda * x * vol
		}
		cross[c] = saCb2 / saSigma * grad[c] * grad[c] * vol
		destrCoef[c] = sa.opts.coeff("Cw1", saCw1) * fw * x / d2 * vol
	}
	return prod, cross, destrCoef
}

// CalcResiduals assembles the nuTilda LDU operator and evaluates the
// nonlinear residual in a separate direct pass over the same terms. Both are
// stored as the variable's most recent assembly, replacing any previous one.
func (sa *SpalartAllmaras) CalcResiduals(opts ResidualOpts) error {
	prod, cross, destrCoef := sa.closureTerms(opts)
	m := sa.assemble(prod, cross, destrCoef)
	res := sa.directResidual(prod, cross, destrCoef)
	sa.storeSystem("nuTilda", m, res)
	return nil
}

// saGamma is the SA effective diffusivity (nu + nuTilda)/sigma.
func (sa *SpalartAllmaras) saGamma(nuTilda float64) float64 {
	return (sa.opts.Nu + nuTilda) / saSigma
}

// assemble builds the implicit system A·nuTilda = b: upwind convection on the
// face flux, diffusion with the SA effective diffusivity, implicit
// destruction on the diagonal and the explicit sources on the right-hand
// side.
func (sa *SpalartAllmaras) assemble(prod, cross, destrCoef []float64) *ldu.Matrix {
	g := sa.graph
	m := ldu.New(g)

	gamma := make([]float64, g.NumCells)
	for c, x := range sa.nuTilda.Values {
		gamma[c] = sa.saGamma(x)
	}
	gammaB := boundaryGamma(g, sa.nuTilda, sa.saGamma)
	assembleConvectionDiffusion(g, m, sa.nuTilda, sa.phi, gamma, gammaB)

	for c := 0; c < g.NumCells; c++ {
		m.Diag[c] += destrCoef[c]
		m.Source[c] += prod[c] + cross[c]
	}
	return m
}

// directResidual evaluates R = A·nuTilda − b straight from the field values,
// face by face, without touching the assembled coefficient arrays. It is the
// physics-path counterpart the operator-derived residual is checked against.
func (sa *SpalartAllmaras) directResidual(prod, cross, destrCoef []float64) []float64 {
	g := sa.graph
	x := sa.nuTilda.Values
	res := make([]float64, g.NumCells)

	gamma := make([]float64, g.NumCells)
	for c, v := range x {
		gamma[c] = sa.saGamma(v)
	}
	gammaB := boundaryGamma(g, sa.nuTilda, sa.saGamma)
	convectionDiffusionResidual(g, res, sa.nuTilda, sa.phi, gamma, gammaB)

	for c := 0; c < g.NumCells; c++ {
		res[c] += destrCoef[c]*x[c] - prod[c] - cross[c]
	}
	return res
}

// Correct solves the assembled implicit system and updates nuTilda with
// floor clipping. Requires CalcResiduals first; the driver follows up with
// UpdateIntermediateVariables and CorrectNut per the forward cycle.
func (sa *SpalartAllmaras) Correct(printToScreen bool) error {
	m, err := sa.operator("nuTilda")
	if err != nil {
		return err
	}
	sa.iter++
	result, err := solver.BiCGStab(m, m.Source, sa.nuTilda.Values, sa.opts.Solver)
	if err != nil {
		return err
	}
	if !result.Converged {
		sa.logger.Warn("nuTilda solve did not converge",
			"iterations", result.Iterations, "residualNorm", result.ResidualNorm)
	}
	copy(sa.nuTilda.Values, result.X)
	sa.nuTilda.ClampFloor(sa.opts.NuTildaMin)
	sa.CorrectBoundaryConditions()
	if printToScreen {
		sa.printDiagnostics(sa.iter)
	}
	return nil
}

// CorrectNut recomputes the eddy viscosity nut = nuTilda·fv1(chi), clipped at
// zero, and refreshes its boundary values.
func (sa *SpalartAllmaras) CorrectNut() {
	for c, x := range sa.nuTilda.Values {
		sa.nut.Values[c] = x * saFv1(x/sa.opts.Nu)
	}
	sa.nut.ClampFloor(0)
	applyBoundaryConditions(sa.graph, sa.nut)
}
