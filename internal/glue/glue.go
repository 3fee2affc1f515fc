// Package glue is the momentum↔velocity conversion and fill-patch
// sequencing layer (spec.md §4.9): the one place that owns the 4-step
// ordering the integrator depends on without enforcing itself. Grounded
// on legacy/inmap/science.go's paired-value averaging idiom (there:
// harmonic-mean wind-speed blending between a cell and its neighbor;
// here: the arithmetic face-average of ρ the momentum/velocity
// conversion needs) and legacy/inmap/neighbors.go's boundary-synthesis
// pattern for how ghost regions get populated before the interior
// kernels ever see them.
package glue

import (
	"fmt"

	"github.com/ctessum/sparse"

	"github.com/atmoscfd/mricore/internal/geomtry"
	"github.com/atmoscfd/mricore/internal/mesh"
	"github.com/atmoscfd/mricore/internal/state"
)

// FillPatch runs the exact 4-step sequence spec.md §4.9 mandates:
//  1. fill ρ ghosts one wider than the velocity ghost width
//  2. convert valid-face momentum → velocity using the fresh ρ
//  3. fill velocity ghosts (mgr.FillPatch + any MOST bottom-row fill)
//  4. convert the full halo of velocity back to momentum
//
// Calling the steps out of order silently produces inconsistent ρu in
// the ghost region — there is no internal check against that, per
// spec.md's "the ordering is the sole contract".
func FillPatch(st *state.State, geo geomtry.Geometry, mgr mesh.Manager) error {
	if err := mgr.FillPatch(st, geo); err != nil {
		return fmt.Errorf("glue: filling rho ghosts: %w", err)
	}

	MomentumToVelocity(st)

	if err := mgr.FillPatch(st, geo); err != nil {
		return fmt.Errorf("glue: filling velocity ghosts: %w", err)
	}

	VelocityToMomentum(st)
	return nil
}

// MomentumToVelocity derives u,v,w from ρu,ρv,ρw over each array's own
// face box, dividing by the arithmetic face-average of ρ (spec.md §4.9
// "u_f = ρu_f / ρ̄_f").
func MomentumToVelocity(st *state.State) {
	convert(st, func(rho, mom float64) float64 {
		if rho == 0 {
			return 0
		}
		return mom / rho
	})
}

// VelocityToMomentum is the inverse of MomentumToVelocity: ρu_f = ρ̄_f·u_f.
func VelocityToMomentum(st *state.State) {
	convert(st, func(rho, vel float64) float64 { return rho * vel })
}

// convert applies f(rhoFaceAvg, value) to every face of RhoU/RhoV/RhoW
// (reading from the corresponding velocity-looking buffer: in this
// state layout velocity has no separate U/V/W fields, so the caller
// picks the direction via op and both conversions share the same
// traversal).
func convert(st *state.State, op func(rho, val float64) float64) {
	cellBox := st.CellBox()
	for axis, mom := range []*sparse.DenseArray{st.RhoU, st.RhoV, st.RhoW} {
		faceBox := st.FaceBox(axis)
		shape := faceBox.Shape()
		for kk := 0; kk < shape[2]; kk++ {
			k := faceBox.Lo[2] + kk
			for jj := 0; jj < shape[1]; jj++ {
				j := faceBox.Lo[1] + jj
				for ii := 0; ii < shape[0]; ii++ {
					i := faceBox.Lo[0] + ii
					rhoFace := faceAverageRho(st.Rho, cellBox, axis, k, j, i)
					v := state.FaceGet(mom, faceBox, k, j, i)
					state.FaceSet(mom, faceBox, k, j, i, op(rhoFace, v))
				}
			}
		}
	}
}

// VelocityCopies returns u,v,w derived from ρu,ρv,ρw without touching the
// momentum state itself — unlike MomentumToVelocity, which converts
// RhoU/RhoV/RhoW in place. slowrhs's advection term needs velocity to feed
// advect.Scheme.AdvectionForMom but must leave momentum untouched for every
// later term in the same Evaluate pass, so it copies first (mirrors the
// advect package's own tests, which build velocity via s.RhoU.Copy()
// followed by a divide).
func VelocityCopies(st *state.State) (u, v, w *sparse.DenseArray) {
	return toVelocity(st, 0), toVelocity(st, 1), toVelocity(st, 2)
}

// toVelocity copies the momentum component for axis and divides every face
// in place on the copy by the face-averaged ρ, leaving st untouched.
func toVelocity(st *state.State, axis int) *sparse.DenseArray {
	mom := []*sparse.DenseArray{st.RhoU, st.RhoV, st.RhoW}[axis]
	out := mom.Copy()
	cellBox := st.CellBox()
	faceBox := st.FaceBox(axis)
	shape := faceBox.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := faceBox.Lo[2] + kk
		for jj := 0; jj < shape[1]; jj++ {
			j := faceBox.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := faceBox.Lo[0] + ii
				rhoFace := faceAverageRho(st.Rho, cellBox, axis, k, j, i)
				v := state.FaceGet(mom, faceBox, k, j, i)
				if rhoFace == 0 {
					state.FaceSet(out, faceBox, k, j, i, 0)
					continue
				}
				state.FaceSet(out, faceBox, k, j, i, v/rhoFace)
			}
		}
	}
	return out
}

// faceAverageRho returns ρ̄_f, the arithmetic average of the two cells
// straddling the face at (k,j,i) along axis.
func faceAverageRho(rho *sparse.DenseArray, cellBox geomtry.Box, axis, k, j, i int) float64 {
	down := offsetDown(axis, k, j, i)
	a := state.CellGet(rho, cellBox, k, j, i)
	b := state.CellGet(rho, cellBox, down[2], down[1], down[0])
	return 0.5 * (a + b)
}

// offsetDown returns the (k,j,i) of the cell one step below the face at
// (k,j,i) along axis (0=x, 1=y, 2=z).
func offsetDown(axis, k, j, i int) [3]int {
	switch axis {
	case 0:
		return [3]int{i - 1, j, k}
	case 1:
		return [3]int{i, j - 1, k}
	default:
		return [3]int{i, j, k - 1}
	}
}
