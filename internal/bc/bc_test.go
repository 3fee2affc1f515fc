package bc

import (
	"math"
	"testing"

	"github.com/ctessum/sparse"

	"github.com/atmoscfd/mricore/internal/geomtry"
	"github.com/atmoscfd/mricore/internal/state"
)

func TestFOExtrapCopiesInterior(t *testing.T) {
	valid := geomtry.Box{Lo: [3]int{0, 0, 0}, Hi: [3]int{3, 3, 3}}
	box := valid.Grow(2)
	shape := box.Shape()
	a := sparse.ZerosDense(shape[2], shape[1], shape[0])
	for k := valid.Lo[2]; k <= valid.Hi[2]; k++ {
		for j := valid.Lo[1]; j <= valid.Hi[1]; j++ {
			for i := valid.Lo[0]; i <= valid.Hi[0]; i++ {
				state.CellSet(a, box, k, j, i, 7.0)
			}
		}
	}
	f := Faces{West: FOExtrap, East: FOExtrap, South: FOExtrap, North: FOExtrap}
	FillLateralCell(a, box, valid, f, 100, 100)

	if got := state.CellGet(a, box, 1, 1, valid.Lo[0]-1); got != 7.0 {
		t.Errorf("west ghost = %g, want 7.0", got)
	}
	if got := state.CellGet(a, box, 1, 1, valid.Hi[0]+2); got != 7.0 {
		t.Errorf("east ghost (depth 2) = %g, want 7.0", got)
	}
}

func TestExtDirReflectsAboutBoundaryValue(t *testing.T) {
	valid := geomtry.Box{Lo: [3]int{0, 0, 0}, Hi: [3]int{3, 3, 3}}
	box := valid.Grow(2)
	shape := box.Shape()
	a := sparse.ZerosDense(shape[2], shape[1], shape[0])
	state.CellSet(a, box, valid.Lo[2], 1, 1, 10.0)
	f := VerticalFaces{Bottom: ExtDir, BottomVal: 0.0, Top: FOExtrap}
	dz := make([]float64, shape[2])
	for i := range dz {
		dz[i] = 100
	}
	FillVerticalCell(a, box, valid, f, dz)
	if got := state.CellGet(a, box, valid.Lo[2]-1, 1, 1); got != -10.0 {
		t.Errorf("bottom ghost = %g, want -10.0 (2*0 - 10)", got)
	}
}

func TestPsiMZeroAtNeutral(t *testing.T) {
	if v := psiM(0); v != 0 {
		t.Errorf("psiM(0) = %g, want 0", v)
	}
	if v := psiH(0); v != 0 {
		t.Errorf("psiH(0) = %g, want 0", v)
	}
}

func TestMOSTSolveConverges(t *testing.T) {
	m := NewMOST(0.1, 9.81)
	uStar, thetaStar, L, err := m.Solve(5.0, 1.0, 10.0, 300.0)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if uStar <= 0 {
		t.Errorf("uStar = %g, want > 0", uStar)
	}
	if math.IsNaN(thetaStar) || math.IsNaN(L) {
		t.Errorf("thetaStar=%g L=%g, want finite", thetaStar, L)
	}
}

func TestMOSTSolveNeutralFlatProfile(t *testing.T) {
	m := NewMOST(0.1, 9.81)
	_, thetaStar, _, err := m.Solve(5.0, 0.0, 10.0, 300.0)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if thetaStar < -1e-6 || thetaStar > 1e-6 {
		t.Errorf("thetaStar = %g, want ~0 for zero temperature difference", thetaStar)
	}
}
