package advect

import (
	"github.com/ctessum/sparse"

	"github.com/atmoscfd/mricore/internal/geomtry"
	"github.com/atmoscfd/mricore/internal/interp"
	"github.com/atmoscfd/mricore/internal/state"
)

// cellAccessor returns an interp.Accessor reading phi along axis a,
// centered at global cell index idx, for use by a Scheme.Reconstruct
// call that will produce the face value just west of idx (along a).
func cellAccessor(phi *sparse.DenseArray, box geomtry.Box, a int, idx [3]int) interp.Accessor {
	return func(offset int) float64 {
		g := idx
		g[a] += offset
		return state.CellGet(phi, box, g[2], g[1], g[0])
	}
}

func cellAccessorN(phi *sparse.DenseArray, box geomtry.Box, a int, idx [3]int, n int) interp.Accessor {
	return func(offset int) float64 {
		g := idx
		g[a] += offset
		return state.CellGetN(phi, box, g[2], g[1], g[0], n)
	}
}

// hMetric returns the horizontal metric factor h_ζ at cell idx: detJ
// under terrain, 1 otherwise (spec.md §4.2 "Under terrain, each
// horizontal flux is multiplied by the metric factor h_ζ").
func hMetric(geo geomtry.Geometry, cellBox geomtry.Box, idx [3]int) float64 {
	if geo.DetJ == nil {
		return 1
	}
	return state.CellGet(geo.DetJ, cellBox, idx[2], idx[1], idx[0])
}

// fluxDivergenceAll computes the continuity tendency (flux = momentum
// itself, φ≡1, spec.md §4.2) and, when phiTheta is non-nil, the energy
// tendency (φ=θ) simultaneously, sharing the face-momentum reads.
func (s *Scheme) fluxDivergenceAll(st *state.State, geo geomtry.Geometry, cellBox, faceX, faceY, faceZ geomtry.Box, _ *sparse.DenseArray, theta *sparse.DenseArray, moist bool, outRho, outTheta *sparse.DenseArray) error {
	valid := st.Grid.Valid
	dx, dy := st.Grid.Dx, st.Grid.Dy
	vertMom := st.RhoW
	if st.Grid.UseTerrain {
		vertMom = st.Omega
	}
	hk := s.horizKernel(moist)
	vk := s.vertKernel(moist)

	shape := valid.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := valid.Lo[2] + kk
		for jj := 0; jj < shape[1]; jj++ {
			j := valid.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := valid.Lo[0] + ii
				idx := [3]int{i, j, k}

				mxLo := state.FaceGet(st.RhoU, faceX, k, j, i)
				mxHi := state.FaceGet(st.RhoU, faceX, k, j, i+1)
				myLo := state.FaceGet(st.RhoV, faceY, k, j, i)
				myHi := state.FaceGet(st.RhoV, faceY, k, j+1, i)
				mzLo := state.FaceGet(vertMom, faceZ, k, j, i)
				mzHi := state.FaceGet(vertMom, faceZ, k+1, j, i)

				hLo := hMetric(geo, cellBox, [3]int{i - 1, j, k})
				hHi := hMetric(geo, cellBox, idx)

				divRho := -((mxHi*hHi-mxLo*hLo)/dx + (myHi*hHi-myLo*hLo)/dy + (mzHi-mzLo)/st.Grid.Dz[clampK(kk, len(st.Grid.Dz))])
				state.CellSet(outRho, valid, k, j, i, state.CellGet(outRho, valid, k, j, i)+divRho)

				if theta != nil {
					thetaFaceXLo := reconstruct(hk, theta, cellBox, 0, [3]int{i - 1, j, k}, interp.Sign(mxLo))
					thetaFaceXHi := reconstruct(hk, theta, cellBox, 0, idx, interp.Sign(mxHi))
					thetaFaceYLo := reconstruct(hk, theta, cellBox, 1, [3]int{i, j - 1, k}, interp.Sign(myLo))
					thetaFaceYHi := reconstruct(hk, theta, cellBox, 1, idx, interp.Sign(myHi))
					distLo := valid.DistToBoundary(2, k)
					distHi := valid.DistToBoundary(2, k+1)
					thetaFaceZLo := reconstructEdge(vk, theta, cellBox, 2, [3]int{i, j, k - 1}, interp.Sign(mzLo), distLo)
					thetaFaceZHi := reconstructEdge(vk, theta, cellBox, 2, idx, interp.Sign(mzHi), distHi)

					divTheta := -((mxHi*hHi*thetaFaceXHi-mxLo*hLo*thetaFaceXLo)/dx +
						(myHi*hHi*thetaFaceYHi-myLo*hLo*thetaFaceYLo)/dy +
						(mzHi*thetaFaceZHi-mzLo*thetaFaceZLo)/st.Grid.Dz[clampK(kk, len(st.Grid.Dz))])
					state.CellSet(outTheta, valid, k, j, i, state.CellGet(outTheta, valid, k, j, i)+divTheta)
				}
			}
		}
	}
	return nil
}

// scalarFluxDivergence computes the tendency for a single cell-centered
// primitive field (KE, QKE) advected by the stage's momentum.
func (s *Scheme) scalarFluxDivergence(st *state.State, geo geomtry.Geometry, cellBox, faceX, faceY, faceZ geomtry.Box, phi *sparse.DenseArray, moist bool, out *sparse.DenseArray) error {
	valid := st.Grid.Valid
	dx, dy := st.Grid.Dx, st.Grid.Dy
	vertMom := st.RhoW
	if st.Grid.UseTerrain {
		vertMom = st.Omega
	}
	hk := s.horizKernel(moist)
	vk := s.vertKernel(moist)

	shape := valid.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := valid.Lo[2] + kk
		for jj := 0; jj < shape[1]; jj++ {
			j := valid.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := valid.Lo[0] + ii
				idx := [3]int{i, j, k}

				mxLo := state.FaceGet(st.RhoU, faceX, k, j, i)
				mxHi := state.FaceGet(st.RhoU, faceX, k, j, i+1)
				myLo := state.FaceGet(st.RhoV, faceY, k, j, i)
				myHi := state.FaceGet(st.RhoV, faceY, k, j+1, i)
				mzLo := state.FaceGet(vertMom, faceZ, k, j, i)
				mzHi := state.FaceGet(vertMom, faceZ, k+1, j, i)

				fxLo := reconstruct(hk, phi, cellBox, 0, [3]int{i - 1, j, k}, interp.Sign(mxLo))
				fxHi := reconstruct(hk, phi, cellBox, 0, idx, interp.Sign(mxHi))
				fyLo := reconstruct(hk, phi, cellBox, 1, [3]int{i, j - 1, k}, interp.Sign(myLo))
				fyHi := reconstruct(hk, phi, cellBox, 1, idx, interp.Sign(myHi))
				distLo := valid.DistToBoundary(2, k)
				distHi := valid.DistToBoundary(2, k+1)
				fzLo := reconstructEdge(vk, phi, cellBox, 2, [3]int{i, j, k - 1}, interp.Sign(mzLo), distLo)
				fzHi := reconstructEdge(vk, phi, cellBox, 2, idx, interp.Sign(mzHi), distHi)

				div := -((mxHi*fxHi-mxLo*fxLo)/dx + (myHi*fyHi-myLo*fyLo)/dy + (mzHi*fzHi-mzLo*fzLo)/st.Grid.Dz[clampK(kk, len(st.Grid.Dz))])
				state.CellSet(out, valid, k, j, i, state.CellGet(out, valid, k, j, i)+div)
			}
		}
	}
	return nil
}

// scalarSlotFluxDivergence is scalarFluxDivergence specialized to one
// slot n of the 4-D passive/moist scalar array.
func (s *Scheme) scalarSlotFluxDivergence(st *state.State, geo geomtry.Geometry, cellBox, faceX, faceY, faceZ geomtry.Box, n int, out *sparse.DenseArray) error {
	valid := st.Grid.Valid
	dx, dy := st.Grid.Dx, st.Grid.Dy
	vertMom := st.RhoW
	if st.Grid.UseTerrain {
		vertMom = st.Omega
	}
	hk := s.horizKernel(true)
	vk := s.vertKernel(true)

	shape := valid.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := valid.Lo[2] + kk
		for jj := 0; jj < shape[1]; jj++ {
			j := valid.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := valid.Lo[0] + ii
				idx := [3]int{i, j, k}

				mxLo := state.FaceGet(st.RhoU, faceX, k, j, i)
				mxHi := state.FaceGet(st.RhoU, faceX, k, j, i+1)
				myLo := state.FaceGet(st.RhoV, faceY, k, j, i)
				myHi := state.FaceGet(st.RhoV, faceY, k, j+1, i)
				mzLo := state.FaceGet(vertMom, faceZ, k, j, i)
				mzHi := state.FaceGet(vertMom, faceZ, k+1, j, i)

				fxLo := reconstructN(hk, st.Phi, cellBox, 0, [3]int{i - 1, j, k}, n, interp.Sign(mxLo))
				fxHi := reconstructN(hk, st.Phi, cellBox, 0, idx, n, interp.Sign(mxHi))
				fyLo := reconstructN(hk, st.Phi, cellBox, 1, [3]int{i, j - 1, k}, n, interp.Sign(myLo))
				fyHi := reconstructN(hk, st.Phi, cellBox, 1, idx, n, interp.Sign(myHi))
				distLo := valid.DistToBoundary(2, k)
				distHi := valid.DistToBoundary(2, k+1)
				fzLo := reconstructEdgeN(vk, st.Phi, cellBox, 2, [3]int{i, j, k - 1}, n, interp.Sign(mzLo), distLo)
				fzHi := reconstructEdgeN(vk, st.Phi, cellBox, 2, idx, n, interp.Sign(mzHi), distHi)

				div := -((mxHi*fxHi-mxLo*fxLo)/dx + (myHi*fyHi-myLo*fyLo)/dy + (mzHi*fzHi-mzLo*fzLo)/st.Grid.Dz[clampK(kk, len(st.Grid.Dz))])
				state.CellSetN(out, valid, k, j, i, n, state.CellGetN(out, valid, k, j, i, n)+div)
			}
		}
	}
	return nil
}

// reconstruct uses the far-from-boundary (full order) path; callers on
// the horizontal axes rely on periodic/lateral ghosts already being wide
// enough, so no edge reduction is applied there.
func reconstruct(k *interp.Scheme, phi *sparse.DenseArray, box geomtry.Box, axis int, idx [3]int, sign float64) float64 {
	v, _ := k.Reconstruct(cellAccessor(phi, box, axis, idx), sign, 1<<20)
	return v
}

func reconstructN(k *interp.Scheme, phi *sparse.DenseArray, box geomtry.Box, axis int, idx [3]int, n int, sign float64) float64 {
	v, _ := k.Reconstruct(cellAccessorN(phi, box, axis, idx, n), sign, 1<<20)
	return v
}

// reconstructEdge applies the vertical edge-order reduction policy
// (spec.md §4.1 "Edge policy").
func reconstructEdge(k *interp.Scheme, phi *sparse.DenseArray, box geomtry.Box, axis int, idx [3]int, sign float64, dist int) float64 {
	v, _ := k.Reconstruct(cellAccessor(phi, box, axis, idx), sign, dist)
	return v
}

func reconstructEdgeN(k *interp.Scheme, phi *sparse.DenseArray, box geomtry.Box, axis int, idx [3]int, n int, sign float64, dist int) float64 {
	v, _ := k.Reconstruct(cellAccessorN(phi, box, axis, idx, n), sign, dist)
	return v
}

func clampK(kk, n int) int {
	if kk < 0 {
		return 0
	}
	if kk >= n {
		return n - 1
	}
	return kk
}
