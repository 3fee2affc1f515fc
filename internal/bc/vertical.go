package bc

import (
	"github.com/ctessum/sparse"

	"github.com/atmoscfd/mricore/internal/geomtry"
	"github.com/atmoscfd/mricore/internal/state"
)

// VerticalFaces bundles the bottom/top Kind and Dirichlet/flux value for a
// cell-centered vertical ghost fill. Bottom may be MOSTKind, in which case
// BottomVal is ignored: FillVerticalCell leaves Theta's bottom ghost to
// FillVerticalMOST (called separately by mesh.SingleLevel.FillPatch, which
// holds the *MOST closure) and every other field falls back to zeroth-order
// extrapolation via ghostValue's MOSTKind case.
type VerticalFaces struct {
	Bottom, Top       Kind
	BottomVal, TopVal float64
}

// FillVerticalCell fills the k-ghost rings of a cell-centered array using a
// one-sided formula keyed by Kind (spec.md §4.3 "asymmetric stencils keyed
// by the BC kind"). dz is indexed by valid-relative k (0 = lowest valid
// cell), matching Grid.Dz's own convention.
func FillVerticalCell(a *sparse.DenseArray, box, valid geomtry.Box, f VerticalFaces, dz []float64) {
	for j := box.Lo[1]; j <= box.Hi[1]; j++ {
		for i := box.Lo[0]; i <= box.Hi[0]; i++ {
			for g := 1; g <= valid.Lo[2]-box.Lo[2]; g++ {
				k := valid.Lo[2] - g
				interior := state.CellGet(a, box, valid.Lo[2], j, i)
				dist := float64(g) * dz[clampDz(0, len(dz))]
				state.CellSet(a, box, k, j, i, ghostValue(f.Bottom, interior, f.BottomVal, dist))
			}
			for g := 1; g <= box.Hi[2]-valid.Hi[2]; g++ {
				k := valid.Hi[2] + g
				interior := state.CellGet(a, box, valid.Hi[2], j, i)
				dist := float64(g) * dz[clampDz(valid.Hi[2]-valid.Lo[2], len(dz))]
				state.CellSet(a, box, k, j, i, ghostValue(f.Top, interior, f.TopVal, dist))
			}
		}
	}
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
