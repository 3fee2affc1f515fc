// Package fastrhs performs one acoustic substep (spec.md §4.6): an
// explicit horizontal momentum update, an implicit vertical (Thomas)
// solve for w using the tridiagonal system internal/fastcoef built for
// this fast-step sequence, a ρw/Ω reconstruction, and accumulation of
// the substep's momenta into the stage's time-average buffers. It is a
// direct structural translation of ERF's ERF_fast_rhs_MT.cpp substep
// body, minus the moving-terrain z_t_rk/z_t_pert bookkeeping (carried
// instead by geomtry.Grid.Interpolate, spec.md §4.3).
package fastrhs

import (
	"github.com/ctessum/sparse"

	"github.com/atmoscfd/mricore/internal/config"
	"github.com/atmoscfd/mricore/internal/fastcoef"
	"github.com/atmoscfd/mricore/internal/geomtry"
	"github.com/atmoscfd/mricore/internal/state"
)

// MinPivot mirrors fastcoef.MinPivot: the tridiagonal system this package
// solves every fast substep is built by fastcoef.Build, so the same
// near-singular-pivot floor applies to Substep's own callers deciding
// whether a *errs.NumericalFailure from Build is worth retrying at a
// smaller dtau.
const MinPivot = fastcoef.MinPivot

// Substep advances cur in place by dtau using slow (the frozen slow RHS
// for this fast-step sequence, F_slow), prev (S at the start of the
// substep loop), coeffs (the tridiagonal system from fastcoef.Build for
// this stage), and accumulates cur's momenta into scratch's running
// average (spec.md §4.6, §4.7 step 4).
func Substep(cur, prev *state.State, slow *state.Tendencies, coeffs *fastcoef.Coeffs, geo geomtry.Geometry, cfg config.SolverChoice, dtau float64, weight float64, scratch *state.StageScratch) error {
	if err := updateHorizontalMomentum(cur, prev, slow, coeffs, dtau); err != nil {
		return err
	}
	if err := updateDensityAndTheta(cur, prev, slow, dtau); err != nil {
		return err
	}
	if err := solveVerticalMomentum(cur, prev, slow, coeffs, geo, cfg, dtau); err != nil {
		return err
	}
	accumulate(cur, scratch, weight)
	return nil
}

// updateHorizontalMomentum does the fully explicit ρu/ρv update: the
// frozen slow RHS plus the acoustic horizontal pressure-gradient force
// (spec.md §4.6 "the horizontal momenta are explicit every fast
// substep" — explicit meaning no implicit solve, not meaning the
// pressure term is dropped).
func updateHorizontalMomentum(cur, prev *state.State, slow *state.Tendencies, coeffs *fastcoef.Coeffs, dtau float64) error {
	faceX := cur.FaceBox(0)
	validX := cur.Grid.Valid.FaceBox(0)
	shapeX := validX.Shape()
	for kk := 0; kk < shapeX[2]; kk++ {
		k := validX.Lo[2] + kk
		for jj := 0; jj < shapeX[1]; jj++ {
			j := validX.Lo[1] + jj
			for ii := 0; ii < shapeX[0]; ii++ {
				i := validX.Lo[0] + ii
				rhs := state.FaceGet(slow.RhoU, validX, k, j, i)
				old := state.FaceGet(prev.RhoU, faceX, k, j, i)
				pgf := horizPressureForce(cur, coeffs, 0, k, j, i)
				state.FaceSet(cur.RhoU, faceX, k, j, i, old+dtau*(rhs+pgf))
			}
		}
	}

	faceY := cur.FaceBox(1)
	validY := cur.Grid.Valid.FaceBox(1)
	shapeY := validY.Shape()
	for kk := 0; kk < shapeY[2]; kk++ {
		k := validY.Lo[2] + kk
		for jj := 0; jj < shapeY[1]; jj++ {
			j := validY.Lo[1] + jj
			for ii := 0; ii < shapeY[0]; ii++ {
				i := validY.Lo[0] + ii
				rhs := state.FaceGet(slow.RhoV, validY, k, j, i)
				old := state.FaceGet(prev.RhoV, faceY, k, j, i)
				pgf := horizPressureForce(cur, coeffs, 1, k, j, i)
				state.FaceSet(cur.RhoV, faceY, k, j, i, old+dtau*(rhs+pgf))
			}
		}
	}
	return nil
}

// horizPressureForce is the horizontal acoustic pressure-gradient force at
// one x- or y-face (axis 0 or 1), reusing fastcoef.Coeffs.P/Q instead of
// re-deriving the gamma*Rd*π linearization a second time: P and Q already
// hold -+gamma*Rd*πC*dzi (plus a small buoyancy correction) evaluated at
// this column's vertical faces, one coupling the cell above (P) and one
// the cell below (Q) into the implicit w solve. Applied across a
// horizontal face instead of a vertical one, the same two coefficients
// average into the face's pressure-response weight once rescaled from a
// dz to a dx/dy spacing, and are multiplied by the potential-temperature
// difference straddling the face — the same thetaT*coeff product form
// fastcoef.Build uses for its a/cc bands.
func horizPressureForce(cur *state.State, coeffs *fastcoef.Coeffs, axis, k, j, i int) float64 {
	if coeffs == nil {
		return 0
	}
	faceZ := cur.Grid.Valid.FaceBox(2)
	cellBox := cur.CellBox()

	var loIdx, hiIdx [3]int
	var spacing float64
	switch axis {
	case 0:
		loIdx, hiIdx = [3]int{i - 1, j, k}, [3]int{i, j, k}
		spacing = cur.Grid.Dx
	default:
		loIdx, hiIdx = [3]int{i, j - 1, k}, [3]int{i, j, k}
		spacing = cur.Grid.Dy
	}

	pHi := state.FaceGet(coeffs.P, faceZ, hiIdx[2], hiIdx[1], hiIdx[0])
	qLo := state.FaceGet(coeffs.Q, faceZ, loIdx[2], loIdx[1], loIdx[0])
	dz := cur.Grid.Dz[clampDz(k-faceZ.Lo[2], len(cur.Grid.Dz))]
	coeff := 0.5 * (pHi + qLo) * dz / spacing

	thetaLo := state.CellGet(cur.Theta, cellBox, loIdx[2], loIdx[1], loIdx[0])
	thetaHi := state.CellGet(cur.Theta, cellBox, hiIdx[2], hiIdx[1], hiIdx[0])
	return -coeff * (thetaHi - thetaLo)
}

func clampDz(k, n int) int {
	if k < 0 {
		return 0
	}
	if k >= n {
		return n - 1
	}
	return k
}

// updateDensityAndTheta advances the cell-centered conserved fields
// explicitly as prev + dtau·F_slow. The vertical flux divergence of the
// just-solved w (or Ω) is not added to rho or rhotheta here or anywhere
// else in the substep.
func updateDensityAndTheta(cur, prev *state.State, slow *state.Tendencies, dtau float64) error {
	cellBox := cur.CellBox()
	valid := cur.Grid.Valid
	shape := valid.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := valid.Lo[2] + kk
		for jj := 0; jj < shape[1]; jj++ {
			j := valid.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := valid.Lo[0] + ii
				rho := state.CellGet(prev.Rho, cellBox, k, j, i) + dtau*state.CellGet(slow.Rho, valid, k, j, i)
				rt := state.CellGet(prev.RhoTheta, cellBox, k, j, i) + dtau*state.CellGet(slow.RhoTheta, valid, k, j, i)
				state.CellSet(cur.Rho, cellBox, k, j, i, rho)
				state.CellSet(cur.RhoTheta, cellBox, k, j, i, rt)
			}
		}
	}
	return nil
}

// solveVerticalMomentum runs the Thomas back-substitution for w using
// coeffs' pre-eliminated tridiagonal bands (spec.md §4.6), then rebuilds
// Ω from the new ρw. It writes only RhoW and Omega; rho and rhotheta are
// left as updateDensityAndTheta set them.
func solveVerticalMomentum(cur, prev *state.State, slow *state.Tendencies, coeffs *fastcoef.Coeffs, geo geomtry.Geometry, cfg config.SolverChoice, dtau float64) error {
	faceZ := cur.FaceBox(2)
	validZ := cur.Grid.Valid.FaceBox(2)
	shape := validZ.Shape()

	rhs := make([]float64, shape[2])
	soln := make([]float64, shape[2])

	for jj := 0; jj < shape[1]; jj++ {
		j := validZ.Lo[1] + jj
		for ii := 0; ii < shape[0]; ii++ {
			i := validZ.Lo[0] + ii

			for kk := range rhs {
				k := validZ.Lo[2] + kk
				old := state.FaceGet(prev.RhoW, faceZ, k, j, i)
				slowTerm := state.FaceGet(slow.RhoW, validZ, k, j, i)
				rhs[kk] = old + dtau*slowTerm
			}
			// Dirichlet w=0 at the column ends (spec.md §4.6).
			rhs[0] = 0
			rhs[len(rhs)-1] = 0

			// Thomas solve reusing coeffs' pre-eliminated bands
			// (coeffs.Gamma/B baked in once by fastcoef.Build): the
			// forward pass here only has to fold the RHS, and the
			// back-substitution multiplies by the stored gamma instead
			// of recomputing it (Numerical-Recipes tridag form).
			soln[0] = rhs[0] * state.FaceGet(coeffs.B, validZ, validZ.Lo[2], j, i)
			for kk := 1; kk < len(rhs); kk++ {
				k := validZ.Lo[2] + kk
				invB := state.FaceGet(coeffs.B, validZ, k, j, i)
				aK := state.FaceGet(coeffs.A, validZ, k, j, i)
				rhs[kk] -= aK * soln[kk-1]
				soln[kk] = rhs[kk] * invB
			}
			for kk := len(rhs) - 2; kk >= 0; kk-- {
				k := validZ.Lo[2] + kk
				gamNext := state.FaceGet(coeffs.Gamma, validZ, k+1, j, i)
				soln[kk] -= gamNext * soln[kk+1]
			}
			soln[0] = 0
			soln[len(soln)-1] = 0

			for kk, v := range soln {
				k := validZ.Lo[2] + kk
				state.FaceSet(cur.RhoW, faceZ, k, j, i, v)
			}
		}
	}

	return reconstructOmega(cur, geo)
}

// reconstructOmega derives the contravariant vertical momentum Ω from
// the just-solved ρw: Ω = ρw without terrain, and Ω = detJ_face·ρw with
// terrain. The terrain-slope terms of geomtry.OmegaFromW are not applied.
func reconstructOmega(cur *state.State, geo geomtry.Geometry) error {
	if !cur.Grid.UseTerrain {
		faceZ := cur.FaceBox(2)
		shape := faceZ.Shape()
		for kk := 0; kk < shape[2]; kk++ {
			for jj := 0; jj < shape[1]; jj++ {
				for ii := 0; ii < shape[0]; ii++ {
					cur.Omega.Set(cur.RhoW.Get(kk, jj, ii), kk, jj, ii)
				}
			}
		}
		return nil
	}

	cellBox := cur.CellBox()
	faceZ := cur.FaceBox(2)
	shape := faceZ.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := faceZ.Lo[2] + kk
		for jj := 0; jj < shape[1]; jj++ {
			j := faceZ.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := faceZ.Lo[0] + ii
				detJLo := cellDetJ(geo.DetJ, cellBox, k-1, j, i)
				detJHi := cellDetJ(geo.DetJ, cellBox, k, j, i)
				detJFace := 0.5 * (detJLo + detJHi)
				rhow := state.FaceGet(cur.RhoW, faceZ, k, j, i)
				state.FaceSet(cur.Omega, faceZ, k, j, i, detJFace*rhow)
			}
		}
	}
	return nil
}

func cellDetJ(detJ *sparse.DenseArray, box geomtry.Box, k, j, i int) float64 {
	if k < box.Lo[2] {
		k = box.Lo[2]
	}
	if k > box.Hi[2] {
		k = box.Hi[2]
	}
	return state.CellGet(detJ, box, k, j, i)
}

// accumulate folds cur's momenta into scratch's running time-average,
// weighted by this substep's contribution to the stage (spec.md §4.7
// step 4, ERF's avg_xmom/avg_ymom/avg_zmom accumulation).
func accumulate(cur *state.State, scratch *state.StageScratch, weight float64) {
	addWeighted(scratch.AvgXMom, cur.RhoU, weight)
	addWeighted(scratch.AvgYMom, cur.RhoV, weight)
	addWeighted(scratch.AvgZMom, cur.RhoW, weight)
}

func addWeighted(dst, src *sparse.DenseArray, weight float64) {
	for i := range dst.Elements {
		dst.Elements[i] += weight * src.Elements[i]
	}
}
