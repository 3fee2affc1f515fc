package advect

import (
	"github.com/ctessum/sparse"

	"github.com/atmoscfd/mricore/internal/geomtry"
	"github.com/atmoscfd/mricore/internal/interp"
	"github.com/atmoscfd/mricore/internal/state"
)

// AdvectionForMom computes the momentum tendencies. Per spec.md §9 open
// question resolution (see DESIGN.md), the fast-RHS's
// ComputeAdvectedQuantityFor* helpers fold into a single flux evaluator
// here: the transported quantity is always the velocity component itself
// (advectedQty = 1.0 in the original, i.e. no extra scaling), reconstructed
// with the same horizontal/vertical kernels used for scalars. u, v, w are
// the velocity components already converted from momentum by the glue
// layer (glue.VelocityCopies), passed in rather than computed
// here to keep advect independent of the fill-patch ordering contract.
// Momentum fluxes divide by the face-averaged detJ at the end, per
// spec.md §4.2.
func (s *Scheme) AdvectionForMom(st *state.State, geo geomtry.Geometry, u, v, w *sparse.DenseArray, out *state.Tendencies) error {
	if err := s.momentumComponent(st, geo, 0, st.RhoU, u, v, w, out.RhoU); err != nil {
		return err
	}
	if err := s.momentumComponent(st, geo, 1, st.RhoV, u, v, w, out.RhoV); err != nil {
		return err
	}
	if err := s.momentumComponent(st, geo, 2, st.RhoW, u, v, w, out.RhoW); err != nil {
		return err
	}
	return nil
}

// momentumComponent advects one momentum component (axis selects which
// one: 0=RhoU, 1=RhoV, 2=RhoW) by the three velocity components,
// iterating over the component's own face box.
func (s *Scheme) momentumComponent(st *state.State, geo geomtry.Geometry, axis int, mom *sparse.DenseArray, u, v, w *sparse.DenseArray, out *sparse.DenseArray) error {
	faceBox := st.FaceBox(axis)
	velocity := []*sparse.DenseArray{u, v, w}[axis]
	faceBoxes := []geomtry.Box{st.FaceBox(0), st.FaceBox(1), st.FaceBox(2)}

	valid := st.Grid.Valid
	outBox := valid.FaceBox(axis)
	dx, dy, dzNominal := st.Grid.Dx, st.Grid.Dy, st.Grid.Dz

	hk := s.horizKernel(false)
	vk := s.vertKernel(false)

	shape := outBox.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := outBox.Lo[2] + kk
		for jj := 0; jj < shape[1]; jj++ {
			j := outBox.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := outBox.Lo[0] + ii
				idx := [3]int{i, j, k}

				selfLo := reconstruct(alongAxisKernel(axis, hk, vk), velocity, faceBox, axis, shiftAxis(idx, axis, -1), 1)
				selfHi := reconstruct(alongAxisKernel(axis, hk, vk), velocity, faceBox, axis, idx, 1)
				momLo := state.FaceGet(mom, faceBox, shiftAxis(idx, axis, -1)[2], shiftAxis(idx, axis, -1)[1], shiftAxis(idx, axis, -1)[0])
				momHi := state.FaceGet(mom, faceBox, k, j, i)

				div := -(momHi*selfHi - momLo*selfLo) / axisSpacing(axis, dx, dy, dzNominal, kk)

				// Cross-axis advection: approximate the cross-direction
				// momentum at this face by averaging the two nearest
				// cross-face values of the relevant momentum component,
				// then advect by the simple centered difference of
				// velocity — a lighter-weight stand-in for the full
				// ComputeAdvectedQuantityForXMom family.
				for cross := 0; cross < 3; cross++ {
					if cross == axis {
						continue
					}
					crossMom := []*sparse.DenseArray{st.RhoU, st.RhoV, st.RhoW}[cross]
					crossFaceBox := faceBoxes[cross]
					mLo := state.FaceGet(crossMom, crossFaceBox, shiftAxis(idx, cross, 0)[2], shiftAxis(idx, cross, 0)[1], shiftAxis(idx, cross, 0)[0])
					mHi := state.FaceGet(crossMom, crossFaceBox, shiftAxis(idx, cross, 1)[2], shiftAxis(idx, cross, 1)[1], shiftAxis(idx, cross, 1)[0])
					avgMom := 0.5 * (mLo + mHi)
					velLo := state.FaceGet(velocity, faceBox, shiftAxis(idx, cross, -1)[2], shiftAxis(idx, cross, -1)[1], shiftAxis(idx, cross, -1)[0])
					velHi := state.FaceGet(velocity, faceBox, shiftAxis(idx, cross, 1)[2], shiftAxis(idx, cross, 1)[1], shiftAxis(idx, cross, 1)[0])
					grad := (velHi - velLo) / (2 * axisSpacing(cross, dx, dy, dzNominal, kk))
					div -= avgMom * grad
				}

				if st.Grid.UseTerrain {
					detJ := 0.5 * (hMetric(geo, st.CellBox(), idx) + hMetric(geo, st.CellBox(), shiftAxis(idx, axis, -1)))
					if detJ != 0 {
						div /= detJ
					}
				}

				state.FaceSet(out, valid.FaceBox(axis), k, j, i, state.FaceGet(out, valid.FaceBox(axis), k, j, i)+div)
			}
		}
	}
	return nil
}

func alongAxisKernel(axis int, hk, vk *interp.Scheme) *interp.Scheme {
	if axis == 2 {
		return vk
	}
	return hk
}

func shiftAxis(idx [3]int, axis, delta int) [3]int {
	g := idx
	g[axis] += delta
	return g
}

func axisSpacing(axis int, dx, dy float64, dz []float64, kk int) float64 {
	switch axis {
	case 0:
		return dx
	case 1:
		return dy
	default:
		return dz[clampK(kk, len(dz))]
	}
}
