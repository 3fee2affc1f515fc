// Package fastcoef builds the per-(i,j)-column tridiagonal system the
// acoustic substepper solves for w each fast step (spec.md §4.6). It is a
// direct structural translation of ERF's
// TimeIntegration/ERF_make_fast_coeffs.cpp: per k-face, coefficients A, B,
// C (the tridiagonal bands), P and Q (the pressure-perturbation response
// coefficients the fast RHS reuses when it forms the implicit w update),
// then one Thomas forward-elimination sweep baked in ahead of time so the
// fast substep only ever does the O(1)-per-level back-substitution.
package fastcoef

import (
	"math"

	"github.com/ctessum/sparse"

	"github.com/atmoscfd/mricore/internal/config"
	"github.com/atmoscfd/mricore/internal/errs"
	"github.com/atmoscfd/mricore/internal/geomtry"
	"github.com/atmoscfd/mricore/internal/state"
)

// MinPivot is the smallest magnitude forwardEliminate tolerates for a
// Thomas-sweep diagonal before treating the column as numerically
// degenerate (spec.md §4.6's tridiagonal solve has no built-in pivoting,
// so a collapsing diagonal has to be caught explicitly rather than
// silently dividing by something close to zero).
const MinPivot = 1e-12

// Coeffs holds one fast step's tridiagonal system, face-centered (k runs
// over the z-faces of the valid box, like RhoW). A, B, C are the
// already-forward-eliminated tridiagonal bands: B stores 1/bet (spec.md's
// "pre-inverted diagonal"), so the fast RHS's per-substep solve is a single
// back-substitution pass, not a fresh Thomas elimination.
type Coeffs struct {
	A, B, C *sparse.DenseArray
	P, Q    *sparse.DenseArray
	Gamma   *sparse.DenseArray // forward-sweep multiplier, kept for the back-substitution pass
}

// Build assembles Coeffs for one fast step from the RK-stage state
// stageCons (S_bar: the conserved fields at the start of this fast-step
// sequence), the base state, and dtau (the acoustic substep length).
// betaS is the explicit/implicit split weight (spec.md §4.6, cfg.BetaS).
func Build(st *state.State, geo geomtry.Geometry, cfg config.SolverChoice, dtau float64) (*Coeffs, error) {
	valid := st.Grid.Valid
	cellBox := st.CellBox()
	faceZ := valid.FaceBox(2)
	shape := faceZ.Shape()

	c := &Coeffs{
		A:     sparse.ZerosDense(shape[2], shape[1], shape[0]),
		B:     sparse.ZerosDense(shape[2], shape[1], shape[0]),
		C:     sparse.ZerosDense(shape[2], shape[1], shape[0]),
		P:     sparse.ZerosDense(shape[2], shape[1], shape[0]),
		Q:     sparse.ZerosDense(shape[2], shape[1], shape[0]),
		Gamma: sparse.ZerosDense(shape[2], shape[1], shape[0]),
	}

	beta2 := 0.5 * (1 + cfg.BetaS)
	cv := cfg.Cp - cfg.Rd
	gamma := cfg.Cp / cv
	halfg := 0.5 * cfg.GravityMS2
	dzi := 1.0 / st.Grid.Dz[0]

	stagePi := func(k, j, i int) float64 {
		return exnerAt(st, cellBox, k, j, i, cfg)
	}

	// Interior k-faces only; w=0 is enforced at the domain top/bottom by
	// the boundary rows set below (spec.md §4.6 "the acoustic solve holds
	// w fixed at the bottom and top of the column").
	for kk := 1; kk < shape[2]-1; kk++ {
		k := faceZ.Lo[2] + kk
		for jj := 0; jj < shape[1]; jj++ {
			j := faceZ.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := faceZ.Lo[0] + ii

				rhobarLo := baseAt(st.Base.Rho0, cellBox, k-1)
				rhobarHi := baseAt(st.Base.Rho0, cellBox, k)
				pibarLo := baseAt(st.Base.Pi0, cellBox, k-1)
				pibarHi := baseAt(st.Base.Pi0, cellBox, k)

				piLo := stagePi(k-1, j, i)
				piHi := stagePi(k, j, i)
				piC := 0.5 * (piLo + piHi)

				var detJFace, invDetJFace float64 = 1, 1
				if st.Grid.UseTerrain {
					detJFace = 0.5 * (state.CellGet(geo.DetJ, cellBox, k, j, i) + state.CellGet(geo.DetJ, cellBox, k-1, j, i))
					invDetJFace = 1 / detJFace
				}

				rhoThetaHi := state.CellGet(st.RhoTheta, cellBox, k, j, i)
				rhoThetaLo := state.CellGet(st.RhoTheta, cellBox, k-1, j, i)

				coeffP := -gamma*cfg.Rd*piC*dzi*invDetJFace +
					halfg*cfg.Rd*rhobarHi*piHi/(cv*pibarHi*rhoThetaHi)
				coeffQ := gamma*cfg.Rd*piC*dzi*invDetJFace +
					halfg*cfg.Rd*rhobarLo*piLo/(cv*pibarLo*rhoThetaLo)

				state.FaceSet(c.P, faceZ, k, j, i, coeffP)
				state.FaceSet(c.Q, faceZ, k, j, i, coeffQ)

				thetaLo := state.CellGet(st.Theta, cellBox, k-2, j, i)
				thetaMidLo := state.CellGet(st.Theta, cellBox, k-1, j, i)
				thetaMidHi := state.CellGet(st.Theta, cellBox, k, j, i)
				thetaHi := state.CellGet(st.Theta, cellBox, k+1, j, i)
				thetaTLo := 0.5 * (thetaLo + thetaMidLo)
				thetaTMid := 0.5 * (thetaMidLo + thetaMidHi)
				thetaTHi := 0.5 * (thetaMidHi + thetaHi)

				d := dtau * dtau * beta2 * beta2 * dzi
				a := d * (halfg - coeffQ*thetaTLo)
				cc := d * (-halfg + coeffP*thetaTHi)
				var b float64
				if st.Grid.UseTerrain {
					b = detJFace + d*(coeffQ-coeffP)*thetaTMid
				} else {
					b = 1 + d*(coeffQ-coeffP)*thetaTMid
				}

				state.FaceSet(c.A, faceZ, k, j, i, a)
				state.FaceSet(c.C, faceZ, k, j, i, cc)
				state.FaceSet(c.B, faceZ, k, j, i, b)
			}
		}
	}

	// w held fixed at the bottom/top boundary rows (spec.md §4.6).
	for jj := 0; jj < shape[1]; jj++ {
		j := faceZ.Lo[1] + jj
		for ii := 0; ii < shape[0]; ii++ {
			i := faceZ.Lo[0] + ii
			state.FaceSet(c.A, faceZ, faceZ.Lo[2], j, i, 0)
			state.FaceSet(c.B, faceZ, faceZ.Lo[2], j, i, 1)
			state.FaceSet(c.C, faceZ, faceZ.Lo[2], j, i, 0)
			state.FaceSet(c.A, faceZ, faceZ.Hi[2], j, i, 0)
			state.FaceSet(c.B, faceZ, faceZ.Hi[2], j, i, 1)
			state.FaceSet(c.C, faceZ, faceZ.Hi[2], j, i, 0)
		}
	}

	if err := forwardEliminate(c, faceZ); err != nil {
		return nil, err
	}
	return c, nil
}

// forwardEliminate runs the Thomas-algorithm forward sweep once per
// column, baking gamma and 1/bet into c.Gamma/c.B so the fast RHS's
// per-substep back-substitution needs no further division (spec.md §4.6
// "pre-inverted diagonal"). A pivot magnitude below MinPivot means the
// column's tridiagonal system is too close to singular to trust, and is
// reported as a *errs.NumericalFailure instead of silently producing an
// enormous or infinite 1/bet.
func forwardEliminate(c *Coeffs, faceZ geomtry.Box) error {
	shape := faceZ.Shape()
	for jj := 0; jj < shape[1]; jj++ {
		j := faceZ.Lo[1] + jj
		for ii := 0; ii < shape[0]; ii++ {
			i := faceZ.Lo[0] + ii
			bet := state.FaceGet(c.B, faceZ, faceZ.Lo[2], j, i)
			if math.Abs(bet) < MinPivot {
				return &errs.NumericalFailure{Op: "fastcoef.forwardEliminate", I: i, J: j, K: faceZ.Lo[2], Value: bet}
			}
			for kk := 1; kk < shape[2]; kk++ {
				k := faceZ.Lo[2] + kk
				cPrev := state.FaceGet(c.C, faceZ, k-1, j, i)
				gam := cPrev / bet
				state.FaceSet(c.Gamma, faceZ, k, j, i, gam)
				aK := state.FaceGet(c.A, faceZ, k, j, i)
				bK := state.FaceGet(c.B, faceZ, k, j, i)
				bet = bK - aK*gam
				if math.Abs(bet) < MinPivot {
					return &errs.NumericalFailure{Op: "fastcoef.forwardEliminate", I: i, J: j, K: k, Value: bet}
				}
				state.FaceSet(c.B, faceZ, k, j, i, bet)
			}
			// Final pass: store the inverse diagonal, per spec.md.
			for kk := 0; kk < shape[2]; kk++ {
				k := faceZ.Lo[2] + kk
				bK := state.FaceGet(c.B, faceZ, k, j, i)
				state.FaceSet(c.B, faceZ, k, j, i, 1/bK)
			}
		}
	}
	return nil
}

// exnerAt computes the Exner function Pi = (Rd*rhotheta/p00)^(Rd/cv) from
// the current stage's conserved state at one cell.
func exnerAt(st *state.State, box geomtry.Box, k, j, i int, cfg config.SolverChoice) float64 {
	const p00 = 1.0e5
	rhoTheta := state.CellGet(st.RhoTheta, box, k, j, i)
	if rhoTheta <= 0 {
		return 1
	}
	cv := cfg.Cp - cfg.Rd
	p := cfg.Rd * rhoTheta
	return math.Pow(p/p00, cfg.Rd/cv)
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
