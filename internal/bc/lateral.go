package bc

import (
	"github.com/ctessum/sparse"

	"github.com/atmoscfd/mricore/internal/geomtry"
	"github.com/atmoscfd/mricore/internal/state"
)

// Faces bundles the per-side Kind and Dirichlet/flux value for one lateral
// (x/y) ghost fill.
type Faces struct {
	West, East, South, North           Kind
	WestVal, EastVal, SouthVal, NorthVal float64
}

// FillLateralCell fills the x- and y-ghost rings of a cell-centered array,
// box being the array's own (grown) box and valid the interior it wraps.
// x is filled first, then y over the already-x-filled corners, matching
// the fill ordering used throughout spec.md §4.9.
func FillLateralCell(a *sparse.DenseArray, box, valid geomtry.Box, f Faces, dx, dy float64) {
	for k := box.Lo[2]; k <= box.Hi[2]; k++ {
		for j := box.Lo[1]; j <= box.Hi[1]; j++ {
			for g := 1; g <= valid.Lo[0]-box.Lo[0]; g++ {
				i := valid.Lo[0] - g
				interior := state.CellGet(a, box, k, j, valid.Lo[0])
				state.CellSet(a, box, k, j, i, ghostValue(f.West, interior, f.WestVal, float64(g)*dx))
			}
			for g := 1; g <= box.Hi[0]-valid.Hi[0]; g++ {
				i := valid.Hi[0] + g
				interior := state.CellGet(a, box, k, j, valid.Hi[0])
				state.CellSet(a, box, k, j, i, ghostValue(f.East, interior, f.EastVal, float64(g)*dx))
			}
		}
	}
	for k := box.Lo[2]; k <= box.Hi[2]; k++ {
		for i := box.Lo[0]; i <= box.Hi[0]; i++ {
			for g := 1; g <= valid.Lo[1]-box.Lo[1]; g++ {
				j := valid.Lo[1] - g
				interior := state.CellGet(a, box, k, valid.Lo[1], i)
				state.CellSet(a, box, k, j, i, ghostValue(f.South, interior, f.SouthVal, float64(g)*dy))
			}
			for g := 1; g <= box.Hi[1]-valid.Hi[1]; g++ {
				j := valid.Hi[1] + g
				interior := state.CellGet(a, box, k, valid.Hi[1], i)
				state.CellSet(a, box, k, j, i, ghostValue(f.North, interior, f.NorthVal, float64(g)*dy))
			}
		}
	}
}

// ghostValue derives one ghost cell from its nearest interior neighbor per
// Kind. dist is the ghost's distance from the boundary face along the
// fill axis, used by the Neumann flux form.
func ghostValue(k Kind, interior, boundaryValOrFlux, dist float64) float64 {
	switch k {
	case ExtDir:
		return 2*boundaryValOrFlux - interior
	case FOExtrap:
		return interior
	case Neumann:
		return interior - boundaryValOrFlux*dist
	case MOSTKind:
		// MOSTKind has no single-cell formula: the similarity solve needs the
		// whole column's wind/theta state, which this function's signature
		// can't carry. Theta's bottom ghost is filled by FillVerticalMOST
		// instead; every other cell-centered field treats a MOST bottom as
		// zeroth-order extrapolation, which is what falls through here.
		return interior
	default:
		return interior
	}
}
