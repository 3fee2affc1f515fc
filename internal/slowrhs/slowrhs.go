// Package slowrhs is the slow RHS assembler (spec.md §4.5): per box, builds
// F_slow by running buoyancy, advection, diffusion, Coriolis/ABL forcing,
// Rayleigh damping, and hyperdiffusion in sequence and accumulating into a
// single state.Tendencies. Grounded on the teacher's
// Calculations(calculators ...CellManipulator) pipeline (run.go), which
// folds an ordered slice of per-cell terms into one accumulated result —
// generalized here from scalar concentrations to vector-field conserved
// quantities and momenta.
package slowrhs

import (
	"errors"
	"math"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"

	"github.com/atmoscfd/mricore/internal/advect"
	"github.com/atmoscfd/mricore/internal/bc"
	"github.com/atmoscfd/mricore/internal/config"
	"github.com/atmoscfd/mricore/internal/diffuse"
	"github.com/atmoscfd/mricore/internal/errs"
	"github.com/atmoscfd/mricore/internal/geomtry"
	"github.com/atmoscfd/mricore/internal/glue"
	"github.com/atmoscfd/mricore/internal/state"
)

// theta0 is the reference potential temperature the buoyancy term and the
// MOST surface-flux solve are both linearized about (spec.md §4.4/§4.5),
// matching diffuse.Scheme's own reference value.
const theta0 = 300.0

// Term is one contribution to F_slow, evaluated per box and accumulated
// into out in place.
type Term func(st *state.State, geo geomtry.Geometry, scratch *state.StageScratch, out *state.Tendencies) error

// ReferenceProfiles holds the Rayleigh-damping target profiles, indexed by
// valid-relative k (0 = lowest valid cell) the same way Grid.Dz is.
type ReferenceProfiles struct {
	U, V, W, Theta []float64
	Tau            []float64 // τ(z), the damping timescale profile; 0 = no damping at that level

	// BaseTheta is the reference potential-temperature profile the
	// hydrostatic base state is closed against under moving terrain
	// (spec.md §4.5 step 1). Left empty, base-state rebuild is skipped.
	BaseTheta []float64
	P00       float64 // reference pressure for the Exner relation, Pa
}

// Assembler is the resolved-once-per-run slow RHS term pipeline.
type Assembler struct {
	cfg     config.SolverChoice
	advect  *advect.Scheme
	diffuse *diffuse.Scheme
	refs    ReferenceProfiles

	omega  float64 // 2*pi/T_rot
	cosPhi float64
	nu6    float64
	terms  []Term

	// most is non-nil only when diffuseScheme.UsesMOST() reported a
	// Monin-Obukhov bottom BC: the diffusion term then needs a genuine
	// per-column surface flux instead of the uniform 0 it would otherwise
	// pass into DiffusionForState (spec.md §4.4).
	most    *bc.MOST
	mostCfg config.MOSTConfig
}

// NewAssembler builds the ordered term pipeline from cfg.
func NewAssembler(cfg config.SolverChoice, advectScheme *advect.Scheme, diffuseScheme *diffuse.Scheme, refs ReferenceProfiles) *Assembler {
	a := &Assembler{cfg: cfg, advect: advectScheme, diffuse: diffuseScheme, refs: refs}
	a.omega = cfg.RotationRate().Value()
	a.cosPhi = math.Cos(cfg.Latitude * math.Pi / 180)
	if cfg.UseNumDiff {
		a.nu6 = cfg.NumDiffCoeff
	}
	if diffuseScheme != nil && diffuseScheme.UsesMOST() {
		a.most = bc.NewMOST(cfg.MOST.Roughness().Value(), cfg.GravityMS2)
		a.mostCfg = cfg.MOST
	}

	a.terms = []Term{
		a.buoyancyTerm,
		a.advectionTerm,
		a.diffusionTerm,
	}
	if cfg.UseCoriolis {
		a.terms = append(a.terms, a.coriolisTerm)
	}
	if cfg.ABLDriver != config.ABLDriverNone {
		a.terms = append(a.terms, a.ablForcingTerm)
	}
	if cfg.Rayleigh.Use {
		a.terms = append(a.terms, a.rayleighTerm)
	}
	if cfg.UseNumDiff {
		a.terms = append(a.terms, a.hyperdiffusionTerm)
	}
	return a
}

// Evaluate runs every configured term in order and returns F_slow,
// detJ-scaled when terrain is active (spec.md §4.5 step 8).
func (a *Assembler) Evaluate(st *state.State, geo geomtry.Geometry, scratch *state.StageScratch) (*state.Tendencies, error) {
	if st.Grid.TerrainType == config.TerrainMoving && len(a.refs.BaseTheta) > 0 {
		RebuildBaseState(&st.Base, st.Grid.Dz, a.refs.BaseTheta, a.refs.P00, a.cfg.Rd, a.cfg.Cp, a.cfg.GravityMS2)
	}

	out := state.NewTendencies(st)
	for _, term := range a.terms {
		if err := term(st, geo, scratch, out); err != nil {
			return nil, err
		}
	}
	if st.Grid.UseTerrain {
		scaleByDetJ(st, geo, out)
	}
	return out, nil
}

func (a *Assembler) advectionTerm(st *state.State, geo geomtry.Geometry, scratch *state.StageScratch, out *state.Tendencies) error {
	if err := a.advect.AdvectionForRhoAndTheta(st, geo, scratch, out); err != nil {
		return err
	}
	if err := a.advect.AdvectionForScalars(st, geo, out); err != nil {
		return err
	}
	// AdvectionForMom needs velocity, not momentum, and must not mutate
	// RhoU/RhoV/RhoW out from under every later term in this same
	// Evaluate pass — glue.VelocityCopies divides off copies instead of
	// converting in place (unlike glue.MomentumToVelocity).
	u, v, w := glue.VelocityCopies(st)
	return a.advect.AdvectionForMom(st, geo, u, v, w, out)
}

// surfaceFlux returns the per-column Monin-Obukhov surface heat flux the
// TKE (QKE) diffusion term needs, or nil if this run has no MOST bottom BC.
// A recoverable *errs.ConvergenceFailure from the similarity solve is
// swallowed here (the flux returned is still the solver's last iterate);
// anything else propagates.
func (a *Assembler) surfaceFlux(st *state.State) (*sparse.DenseArray, error) {
	if a.most == nil {
		return nil, nil
	}
	flux, err := bc.SurfaceFlux(st, a.most, a.mostCfg, theta0)
	if err != nil {
		var convErr *errs.ConvergenceFailure
		if errors.As(err, &convErr) {
			return flux, nil
		}
		return nil, err
	}
	return flux, nil
}

func (a *Assembler) diffusionTerm(st *state.State, geo geomtry.Geometry, scratch *state.StageScratch, out *state.Tendencies) error {
	if a.diffuse == nil {
		return nil
	}
	hfxZ, err := a.surfaceFlux(st)
	if err != nil {
		return err
	}
	if err := a.diffuse.DiffusionForState(st, geo, st.Theta, false, hfxZ, out.RhoTheta); err != nil {
		return err
	}
	if err := a.diffuse.DiffusionForState(st, geo, st.QKE, true, hfxZ, out.RhoQKE); err != nil {
		return err
	}
	if err := a.diffuse.DiffusionForState(st, geo, st.KE, false, nil, out.RhoKE); err != nil {
		return err
	}
	if err := a.diffuse.DiffusionForMom(st, geo, 0, st.RhoU, out.RhoU); err != nil {
		return err
	}
	if err := a.diffuse.DiffusionForMom(st, geo, 1, st.RhoV, out.RhoV); err != nil {
		return err
	}
	if err := a.diffuse.DiffusionForMom(st, geo, 2, st.RhoW, out.RhoW); err != nil {
		return err
	}
	for n := 0; n < st.NumScalars; n++ {
		if err := a.diffuse.DiffusionForScalar(st, geo, n, out.RhoPhi); err != nil {
			return err
		}
	}
	return nil
}

// buoyancyTerm adds the vertical buoyancy source into RhoW, per one of the
// three configured formulations (spec.md §4.5 step 2; the exact formula
// per buoyancy_type isn't pinned down by the spec, so these are this
// package's own engineering choice).
func (a *Assembler) buoyancyTerm(st *state.State, geo geomtry.Geometry, scratch *state.StageScratch, out *state.Tendencies) error {
	valid := st.Grid.Valid
	cellBox := st.CellBox()
	g := a.cfg.GravityMS2

	wb := valid.FaceBox(2)
	shape := wb.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := wb.Lo[2] + kk
		for jj := 0; jj < shape[1]; jj++ {
			j := wb.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := wb.Lo[0] + ii

				rhoLo := state.CellGet(st.Rho, cellBox, k-1, j, i)
				rhoHi := state.CellGet(st.Rho, cellBox, k, j, i)
				rho0Lo := baseAt(st.Base.Rho0, cellBox, k-1)
				rho0Hi := baseAt(st.Base.Rho0, cellBox, k)
				thetaLo := state.CellGet(st.Theta, cellBox, k-1, j, i)
				thetaHi := state.CellGet(st.Theta, cellBox, k, j, i)

				var b float64
				switch a.cfg.BuoyancyType {
				case 1:
					b = -0.5 * (rhoLo + rhoHi) * g
				case 2:
					b = -0.5 * ((rhoLo - rho0Lo) + (rhoHi - rho0Hi)) * g
				default: // 3: potential-temperature perturbation form
					b = 0.25 * (rho0Lo + rho0Hi) * g * ((thetaHi-theta0)/theta0 + (thetaLo-theta0)/theta0)
				}
				state.FaceSet(out.RhoW, wb, k, j, i, state.FaceGet(out.RhoW, wb, k, j, i)+b)
			}
		}
	}
	return nil
}

// RebuildBaseState updates the hydrostatic reference profile (ρ₀, p₀, π₀)
// under moving terrain by integrating dp/dz = -ρ₀·g up the column from
// the (fixed) surface pressure, then closing ρ₀ against thetaRef through
// the Exner relation π₀ = (p₀/p00)^(Rd/Cp) (spec.md §4.5 step 1:
// "update base-state (ρ₀, p₀) by integrating a dedicated 1-D continuity in
// the vertical"). floats.CumSum does the running integral, mirroring the
// teacher's use of gonum for vertical-profile reductions.
func RebuildBaseState(base *state.BaseState, dz []float64, thetaRef []float64, p00, rd, cp, gravity float64) {
	n := len(base.Rho0)
	if n == 0 || p00 == 0 {
		return
	}
	flux := make([]float64, n)
	for k := 1; k < n; k++ {
		d := profileAt(dz, k-1)
		flux[k] = -0.5 * (base.Rho0[k-1] + base.Rho0[k]) * gravity * d
	}
	cum := make([]float64, n)
	floats.CumSum(cum, flux)

	p0Surf := base.P0[0]
	for k := 0; k < n; k++ {
		base.P0[k] = p0Surf + cum[k]
		pi := math.Pow(base.P0[k]/p00, rd/cp)
		base.Pi0[k] = pi
		t := profileAt(thetaRef, k) * pi
		if t > 0 {
			base.Rho0[k] = base.P0[k] / (rd * t)
		}
	}
}

func baseAt(profile []float64, box geomtry.Box, k int) float64 {
	idx := k - box.Lo[2]
	if idx < 0 {
		idx = 0
	}
	if idx >= len(profile) {
		idx = len(profile) - 1
	}
	return profile[idx]
}

// coriolisTerm adds f·v/-f·u (vertical-component Coriolis) and the
// horizontal-component u/w coupling scaled by cosφ (spec.md §4.5 step 5).
func (a *Assembler) coriolisTerm(st *state.State, geo geomtry.Geometry, scratch *state.StageScratch, out *state.Tendencies) error {
	f := a.cfg.CoriolisParameter()
	e := 2 * a.omega * a.cosPhi

	valid := st.Grid.Valid
	faceX, faceY, faceZ := st.FaceBox(0), st.FaceBox(1), st.FaceBox(2)

	ub := valid.FaceBox(0)
	shapeU := ub.Shape()
	for kk := 0; kk < shapeU[2]; kk++ {
		k := ub.Lo[2] + kk
		for jj := 0; jj < shapeU[1]; jj++ {
			j := ub.Lo[1] + jj
			for ii := 0; ii < shapeU[0]; ii++ {
				i := ub.Lo[0] + ii
				rhoVAvg := 0.25 * (state.FaceGet(st.RhoV, faceY, k, j, i-1) + state.FaceGet(st.RhoV, faceY, k, j, i) +
					state.FaceGet(st.RhoV, faceY, k, j+1, i-1) + state.FaceGet(st.RhoV, faceY, k, j+1, i))
				rhoWAvg := 0.25 * (state.FaceGet(st.RhoW, faceZ, k, j, i-1) + state.FaceGet(st.RhoW, faceZ, k, j, i) +
					state.FaceGet(st.RhoW, faceZ, k+1, j, i-1) + state.FaceGet(st.RhoW, faceZ, k+1, j, i))
				tend := f*rhoVAvg - e*rhoWAvg
				state.FaceSet(out.RhoU, ub, k, j, i, state.FaceGet(out.RhoU, ub, k, j, i)+tend)
			}
		}
	}

	vb := valid.FaceBox(1)
	shapeV := vb.Shape()
	for kk := 0; kk < shapeV[2]; kk++ {
		k := vb.Lo[2] + kk
		for jj := 0; jj < shapeV[1]; jj++ {
			j := vb.Lo[1] + jj
			for ii := 0; ii < shapeV[0]; ii++ {
				i := vb.Lo[0] + ii
				rhoUAvg := 0.25 * (state.FaceGet(st.RhoU, faceX, k, j-1, i) + state.FaceGet(st.RhoU, faceX, k, j-1, i+1) +
					state.FaceGet(st.RhoU, faceX, k, j, i) + state.FaceGet(st.RhoU, faceX, k, j, i+1))
				tend := -f * rhoUAvg
				state.FaceSet(out.RhoV, vb, k, j, i, state.FaceGet(out.RhoV, vb, k, j, i)+tend)
			}
		}
	}

	wb := valid.FaceBox(2)
	shapeW := wb.Shape()
	for kk := 0; kk < shapeW[2]; kk++ {
		k := wb.Lo[2] + kk
		for jj := 0; jj < shapeW[1]; jj++ {
			j := wb.Lo[1] + jj
			for ii := 0; ii < shapeW[0]; ii++ {
				i := wb.Lo[0] + ii
				rhoUAvg := 0.25 * (state.FaceGet(st.RhoU, faceX, k-1, j, i) + state.FaceGet(st.RhoU, faceX, k-1, j, i+1) +
					state.FaceGet(st.RhoU, faceX, k, j, i) + state.FaceGet(st.RhoU, faceX, k, j, i+1))
				tend := e * rhoUAvg
				state.FaceSet(out.RhoW, wb, k, j, i, state.FaceGet(out.RhoW, wb, k, j, i)+tend)
			}
		}
	}
	return nil
}

// ablForcingTerm adds the large-scale forcing that sustains a boundary-layer
// wind against surface drag: a constant acceleration for PressureGradient,
// or a geostrophic-wind Coriolis restoring term otherwise.
func (a *Assembler) ablForcingTerm(st *state.State, geo geomtry.Geometry, scratch *state.StageScratch, out *state.Tendencies) error {
	valid := st.Grid.Valid
	cellBox := st.CellBox()
	faceX, faceY := st.FaceBox(0), st.FaceBox(1)

	switch a.cfg.ABLDriver {
	case config.ABLDriverPressureGradient:
		applyConstForcing(out.RhoU, valid.FaceBox(0), st.Rho, cellBox, a.cfg.ABLForcing[0])
		applyConstForcing(out.RhoV, valid.FaceBox(1), st.Rho, cellBox, a.cfg.ABLForcing[1])
	case config.ABLDriverGeostrophicWind:
		f := a.cfg.CoriolisParameter()
		ug, vg := a.cfg.ABLGeostrophic[0], a.cfg.ABLGeostrophic[1]
		ub := valid.FaceBox(0)
		shapeU := ub.Shape()
		for kk := 0; kk < shapeU[2]; kk++ {
			k := ub.Lo[2] + kk
			for jj := 0; jj < shapeU[1]; jj++ {
				j := ub.Lo[1] + jj
				for ii := 0; ii < shapeU[0]; ii++ {
					i := ub.Lo[0] + ii
					rhoFace := 0.5 * (state.CellGet(st.Rho, cellBox, k, j, i-1) + state.CellGet(st.Rho, cellBox, k, j, i))
					vAvg := state.FaceGet(st.RhoV, faceY, k, j, i) / math.Max(rhoFace, 1e-9)
					tend := f * rhoFace * (vAvg - vg)
					state.FaceSet(out.RhoU, ub, k, j, i, state.FaceGet(out.RhoU, ub, k, j, i)+tend)
				}
			}
		}
		vb := valid.FaceBox(1)
		shapeV := vb.Shape()
		for kk := 0; kk < shapeV[2]; kk++ {
			k := vb.Lo[2] + kk
			for jj := 0; jj < shapeV[1]; jj++ {
				j := vb.Lo[1] + jj
				for ii := 0; ii < shapeV[0]; ii++ {
					i := vb.Lo[0] + ii
					rhoFace := 0.5 * (state.CellGet(st.Rho, cellBox, k, j-1, i) + state.CellGet(st.Rho, cellBox, k, j, i))
					uAvg := state.FaceGet(st.RhoU, faceX, k, j, i) / math.Max(rhoFace, 1e-9)
					tend := -f * rhoFace * (uAvg - ug)
					state.FaceSet(out.RhoV, vb, k, j, i, state.FaceGet(out.RhoV, vb, k, j, i)+tend)
				}
			}
		}
	}
	return nil
}

func applyConstForcing(out *sparse.DenseArray, box geomtry.Box, rho *sparse.DenseArray, rhoBox geomtry.Box, accel float64) {
	shape := box.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := box.Lo[2] + kk
		for jj := 0; jj < shape[1]; jj++ {
			j := box.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := box.Lo[0] + ii
				state.FaceSet(out, box, k, j, i, state.FaceGet(out, box, k, j, i)+accel*state.CellGet(rho, rhoBox, k, j, i))
			}
		}
	}
}

// rayleighTerm relaxes each enabled component toward its reference profile
// over the damping timescale τ(z) (spec.md §4.5 step 6).
func (a *Assembler) rayleighTerm(st *state.State, geo geomtry.Geometry, scratch *state.StageScratch, out *state.Tendencies) error {
	if len(a.refs.Tau) == 0 {
		return nil
	}
	cellBox := st.CellBox()
	valid := st.Grid.Valid

	if a.cfg.Rayleigh.Th {
		dampCell(st.RhoTheta, out.RhoTheta, cellBox, valid, a.refs.Theta, a.refs.Tau, st.Rho)
	}
	if a.cfg.Rayleigh.U {
		dampFace(st.RhoU, out.RhoU, st.FaceBox(0), valid.FaceBox(0), a.refs.U, a.refs.Tau)
	}
	if a.cfg.Rayleigh.V {
		dampFace(st.RhoV, out.RhoV, st.FaceBox(1), valid.FaceBox(1), a.refs.V, a.refs.Tau)
	}
	if a.cfg.Rayleigh.W {
		dampFace(st.RhoW, out.RhoW, st.FaceBox(2), valid.FaceBox(2), a.refs.W, a.refs.Tau)
	}
	return nil
}

// dampCell relaxes a cell-centered conserved field toward rho*ref over τ(z).
func dampCell(conserved, out *sparse.DenseArray, box, valid geomtry.Box, ref, tau []float64, rho *sparse.DenseArray) {
	shape := valid.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := valid.Lo[2] + kk
		t := profileAt(tau, kk)
		if t <= 0 {
			continue
		}
		r := profileAt(ref, kk)
		for jj := 0; jj < shape[1]; jj++ {
			j := valid.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := valid.Lo[0] + ii
				rhoC := state.CellGet(rho, box, k, j, i)
				target := rhoC * r
				cur := state.CellGet(conserved, box, k, j, i)
				state.CellSet(out, valid, k, j, i, state.CellGet(out, valid, k, j, i)-(cur-target)/t)
			}
		}
	}
}

// dampFace relaxes a face-centered momentum component toward its reference
// profile over τ(z).
func dampFace(conserved, out *sparse.DenseArray, box, valid geomtry.Box, ref, tau []float64) {
	shape := valid.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := valid.Lo[2] + kk
		t := profileAt(tau, kk)
		if t <= 0 {
			continue
		}
		r := profileAt(ref, kk)
		for jj := 0; jj < shape[1]; jj++ {
			j := valid.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := valid.Lo[0] + ii
				cur := state.FaceGet(conserved, box, k, j, i)
				state.FaceSet(out, valid, k, j, i, state.FaceGet(out, valid, k, j, i)-(cur-r)/t)
			}
		}
	}
}

func profileAt(p []float64, kk int) float64 {
	if len(p) == 0 {
		return 0
	}
	if kk < 0 {
		kk = 0
	}
	if kk >= len(p) {
		kk = len(p) - 1
	}
	return p[kk]
}

// hyperdiffusionTerm adds a 6th-derivative-approximation diffusion scaled
// by ν₆ = coeff/(2Δt), with fluxes clipped to the monotone portion (spec.md
// §4.5 step 7: "fluxes set to zero when their sign matches the local
// gradient"). Applied to ρθ only — the field most sensitive to grid-scale
// noise and the one the spec names explicitly in its numerical-diffusion
// discussion.
func (a *Assembler) hyperdiffusionTerm(st *state.State, geo geomtry.Geometry, scratch *state.StageScratch, out *state.Tendencies) error {
	if a.nu6 == 0 {
		return nil
	}
	valid := st.Grid.Valid
	cellBox := st.CellBox()
	dx := st.Grid.Dx

	shape := valid.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := valid.Lo[2] + kk
		for jj := 0; jj < shape[1]; jj++ {
			j := valid.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := valid.Lo[0] + ii

				d2 := func(off int) float64 {
					return state.CellGet(st.RhoTheta, cellBox, k, j, i+off-1) -
						2*state.CellGet(st.RhoTheta, cellBox, k, j, i+off) +
						state.CellGet(st.RhoTheta, cellBox, k, j, i+off+1)
				}
				fluxE := d2(1) - d2(0)
				fluxW := d2(0) - d2(-1)
				gradE := state.CellGet(st.RhoTheta, cellBox, k, j, i+1) - state.CellGet(st.RhoTheta, cellBox, k, j, i)
				gradW := state.CellGet(st.RhoTheta, cellBox, k, j, i) - state.CellGet(st.RhoTheta, cellBox, k, j, i-1)
				if sameSign(fluxE, gradE) {
					fluxE = 0
				}
				if sameSign(fluxW, gradW) {
					fluxW = 0
				}
				div := a.nu6 * (fluxE - fluxW) / (dx * dx * dx * dx)
				state.CellSet(out.RhoTheta, valid, k, j, i, state.CellGet(out.RhoTheta, valid, k, j, i)+div)
			}
		}
	}
	return nil
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

// scaleByDetJ multiplies every tendency by the cell/face detJ, per spec.md
// §4.5 step 8 ("so they live on the same weighting as the conservative
// updates").
func scaleByDetJ(st *state.State, geo geomtry.Geometry, out *state.Tendencies) {
	cellBox := st.CellBox()
	valid := st.Grid.Valid

	scaleCell := func(a *sparse.DenseArray) {
		if a == nil {
			return
		}
		shape := valid.Shape()
		for kk := 0; kk < shape[2]; kk++ {
			k := valid.Lo[2] + kk
			for jj := 0; jj < shape[1]; jj++ {
				j := valid.Lo[1] + jj
				for ii := 0; ii < shape[0]; ii++ {
					i := valid.Lo[0] + ii
					d := state.CellGet(geo.DetJ, cellBox, k, j, i)
					state.CellSet(a, valid, k, j, i, state.CellGet(a, valid, k, j, i)*d)
				}
			}
		}
	}
	scaleCell(out.Rho)
	scaleCell(out.RhoTheta)
	scaleCell(out.RhoKE)
	scaleCell(out.RhoQKE)
	if out.RhoPhi != nil {
		n := out.RhoPhi.Shape[3]
		shape := valid.Shape()
		for kk := 0; kk < shape[2]; kk++ {
			k := valid.Lo[2] + kk
			for jj := 0; jj < shape[1]; jj++ {
				j := valid.Lo[1] + jj
				for ii := 0; ii < shape[0]; ii++ {
					i := valid.Lo[0] + ii
					d := state.CellGet(geo.DetJ, cellBox, k, j, i)
					for s := 0; s < n; s++ {
						state.CellSetN(out.RhoPhi, valid, k, j, i, s, state.CellGetN(out.RhoPhi, valid, k, j, i, s)*d)
					}
				}
			}
		}
	}

	scaleFace := func(a *sparse.DenseArray, axis int) {
		box := valid.FaceBox(axis)
		shape := box.Shape()
		for kk := 0; kk < shape[2]; kk++ {
			k := box.Lo[2] + kk
			for jj := 0; jj < shape[1]; jj++ {
				j := box.Lo[1] + jj
				for ii := 0; ii < shape[0]; ii++ {
					i := box.Lo[0] + ii
					lo := cellIdx(axis, i, j, k, -1)
					hi := cellIdx(axis, i, j, k, 0)
					dLo := detJAt(geo, cellBox, lo)
					dHi := detJAt(geo, cellBox, hi)
					d := 0.5 * (dLo + dHi)
					state.FaceSet(a, box, k, j, i, state.FaceGet(a, box, k, j, i)*d)
				}
			}
		}
	}
	scaleFace(out.RhoU, 0)
	scaleFace(out.RhoV, 1)
	scaleFace(out.RhoW, 2)
}

func cellIdx(axis, i, j, k, delta int) [3]int {
	idx := [3]int{i, j, k}
	idx[axis] += delta
	return idx
}

func detJAt(geo geomtry.Geometry, box geomtry.Box, idx [3]int) float64 {
	if geo.DetJ == nil {
		return 1
	}
	return state.CellGet(geo.DetJ, box, idx[2], idx[1], idx[0])
}
