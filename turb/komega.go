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

// Wilcox k-omega closure coefficients.
const (
	kwBetaStar   = 0.09
	kwBeta       = 0.072
	kwGamma      = 5.0 / 9.0
	kwSigmaK     = 0.5
	kwSigmaOmega = 0.5

	// Production limiter factor: Pk is capped at this multiple of the
	// destruction rate.
	kwProdLimit = 20.0
)

func init() {
	Register("kOmega", newKOmega)
}

// KOmega is the two-equation variant transporting turbulence kinetic energy
// "k" and specific dissipation rate "omega", with nut = k/omega. It reads the
// frozen flow fields "U" and "phi" like the one-equation family.
type KOmega struct {
	*core

	k     *state.Field
	omega *state.Field
	nut   *state.Field
	u     *state.Field
	phi   *state.FaceField

	// Squared strain-rate magnitude cache, refreshed by
	// UpdateIntermediateVariables.
	s2 []float64
}

func newKOmega(g *mesh.Graph, reg *state.Registry, opts Options, logger *log.Logger) (Model, error) {
	c, err := newCore("kOmega", g, reg, opts, logger)
	if err != nil {
		return nil, err
	}
	u, err := reg.Field("U")
	if err != nil {
		return nil, fmt.Errorf("kOmega requires the flow field U: %w", err)
	}
	phi, err := reg.FaceFieldByName("phi")
	if err != nil {
		return nil, fmt.Errorf("kOmega requires the face flux phi: %w", err)
	}
	k, err := ownedField(reg, "k", 1e-3, c.wallPatches)
	if err != nil {
		return nil, err
	}
	omega, err := ownedField(reg, "omega", 1.0, c.wallPatches)
	if err != nil {
		return nil, err
	}
	nut, err := ownedField(reg, "nut", 0, c.wallPatches)
	if err != nil {
		return nil, err
	}
	kw := &KOmega{
		core:  c,
		k:     k,
		omega: omega,
		nut:   nut,
		u:     u,
		phi:   phi,
	}
	kw.k.ClampFloor(opts.KMin)
	kw.omega.ClampFloor(opts.OmegaMin)
	kw.UpdateIntermediateVariables()
	kw.CorrectNut()
	return kw, nil
}

// OwnedStates lists the state variables this model owns.
func (kw *KOmega) OwnedStates() []string {
	return []string{"k", "omega"}
}

// ResidualDependencies declares the cross-coupling of the two equations:
// each residual sees both transported variables through nut and the
// destruction terms.
func (kw *KOmega) ResidualDependencies() map[string][]string {
	return map[string][]string{
		"k":     {"k", "omega", "U", "phi"},
		"omega": {"omega", "k", "U", "phi"},
	}
}

// AddModelResidualCon appends the leveled connectivity for both equations.
func (kw *KOmega) AddModelResidualCon(allCon map[string][][]string) {
	addLeveledCon(allCon, "k",
		[]string{"k", "omega", "U", "phi"},
		[]string{"k", "omega", "U", "phi"})
	addLeveledCon(allCon, "omega",
		[]string{"omega", "k", "U", "phi"},
		[]string{"omega", "k", "U", "phi"})
}

// omegaWall is the wall-function value for omega on a wall face at distance y.
func (kw *KOmega) omegaWall(y float64) float64 {
	return 6 * kw.opts.Nu / (kw.opts.coeff("beta", kwBeta) * y * y)
}

// correctOmegaWall overwrites omega's wall boundary values with the
// wall-function treatment.
func (kw *KOmega) correctOmegaWall() {
	for _, name := range kw.wallPatches {
		p, err := kw.graph.Patch(name)
		if err != nil {
			continue
		}
		bvals := kw.omega.Boundary[name]
		for j := range p.Cells {
			bvals[j] = kw.omegaWall(p.Delta[j])
		}
	}
}

// CorrectBoundaryConditions refreshes both transported fields' boundary
// values, then applies the omega wall treatment on wall patches.
func (kw *KOmega) CorrectBoundaryConditions() {
	applyBoundaryConditions(kw.graph, kw.k)
	applyBoundaryConditions(kw.graph, kw.omega)
	kw.correctOmegaWall()
}

// UpdateIntermediateVariables recomputes the squared strain-rate magnitude
// from the frozen velocity field. Idempotent.
func (kw *KOmega) UpdateIntermediateVariables() {
	grad := cellGradient(kw.graph, kw.u.Values)
	if kw.s2 == nil {
		kw.s2 = make([]float64, kw.graph.NumCells)
	}
	for i, g := range grad {
		kw.s2[i] = g * g
	}
}

// CalcResiduals assembles the k and omega operators and evaluates both
// residuals directly, replacing any previous assembly for either variable.
// With WallFunctions set, omega's wall boundary values are refreshed from
// the wall treatment before assembly so the correction terms participate.
func (kw *KOmega) CalcResiduals(opts ResidualOpts) error {
	if opts.WallFunctions {
		kw.correctOmegaWall()
	}

	betaStar := kw.opts.coeff("betaStar", kwBetaStar)
	beta := kw.opts.coeff("beta", kwBeta)
	gammaCoef := kw.opts.coeff("gamma", kwGamma)

	n := kw.graph.NumCells
	prodK := make([]float64, n)
	destrK := make([]float64, n)
	prodW := make([]float64, n)
	destrW := make([]float64, n)
	for c := 0; c < n; c++ {
		vol := kw.graph.Volume[c]
		kc := kw.k.Values[c]
		wc := math.Max(kw.omega.Values[c], kw.opts.OmegaMin)
		nut := kw.nut.Values[c]

		if !opts.SkipProduction {
			pk := math.Min(nut*kw.s2[c], kwProdLimit*betaStar*kc*wc)
			prodK[c] = pk * vol
			prodW[c] = gammaCoef * kw.s2[c] * vol
		}
		destrK[c] = betaStar * wc * vol
		destrW[c] = beta * wc * vol
	}

	mk, rk := kw.assembleEquation(kw.k, kwSigmaK, prodK, destrK)
	mw, rw := kw.assembleEquation(kw.omega, kwSigmaOmega, prodW, destrW)
	kw.storeSystem("k", mk, rk)
	kw.storeSystem("omega", mw, rw)
	return nil
}

// assembleEquation builds one transport equation's operator and its direct
// residual: upwind convection, diffusion with nu + sigma·nut, the implicit
// destruction coefficient on the diagonal and the explicit production source.
func (kw *KOmega) assembleEquation(f *state.Field, sigma float64,
	prod, destrCoef []float64) (*ldu.Matrix, []float64) {

	g := kw.graph
	gamma := make([]float64, g.NumCells)
	for c := range gamma {
		gamma[c] = kw.opts.Nu + sigma*kw.nut.Values[c]
	}
	// Boundary diffusivity uses the near-wall nut of the adjacent cell.
	gammaB := make(map[string][]float64, len(g.Patches))
	for i := range g.Patches {
		p := &g.Patches[i]
		bg := make([]float64, len(p.Cells))
		for j, cell := range p.Cells {
			bg[j] = kw.opts.Nu + sigma*kw.nut.Values[cell]
		}
		gammaB[p.Name] = bg
	}

	m := ldu.New(g)
	assembleConvectionDiffusion(g, m, f, kw.phi, gamma, gammaB)
	res := make([]float64, g.NumCells)
	convectionDiffusionResidual(g, res, f, kw.phi, gamma, gammaB)

	x := f.Values
	for c := 0; c < g.NumCells; c++ {
		m.Diag[c] += destrCoef[c]
		m.Source[c] += prod[c]
		res[c] += destrCoef[c]*x[c] - prod[c]
	}
	return m, res
}

// Correct solves omega then k from the assembled operators, clipping each to
// its floor, then refreshes boundary values and the eddy viscosity.
func (kw *KOmega) Correct(printToScreen bool) error {
	mw, err := kw.operator("omega")
	if err != nil {
		return err
	}
	mk, err := kw.operator("k")
	if err != nil {
		return err
	}
	kw.iter++

	for _, eq := range []struct {
		name  string
		m     *ldu.Matrix
		field *state.Field
		floor float64
	}{
		{"omega", mw, kw.omega, kw.opts.OmegaMin},
		{"k", mk, kw.k, kw.opts.KMin},
	} {
		result, err := solver.BiCGStab(eq.m, eq.m.Source, eq.field.Values, kw.opts.Solver)
		if err != nil {
			return err
		}
		if !result.Converged {
			kw.logger.Warn("turbulence solve did not converge",
				"variable", eq.name,
				"iterations", result.Iterations,
				"residualNorm", result.ResidualNorm)
		}
		copy(eq.field.Values, result.X)
		eq.field.ClampFloor(eq.floor)
	}

	kw.CorrectBoundaryConditions()
	kw.CorrectNut()
	if printToScreen {
		kw.printDiagnostics(kw.iter)
	}
	return nil
}

// CorrectNut recomputes nut = k/omega with the omega floor applied, clipped
// at zero, and refreshes its boundary values.
func (kw *KOmega) CorrectNut() {
	for c := range kw.nut.Values {
		kw.nut.Values[c] = kw.k.Values[c] / math.Max(kw.omega.Values[c], kw.opts.OmegaMin)
	}
	kw.nut.ClampFloor(0)
	applyBoundaryConditions(kw.graph, kw.nut)
}
