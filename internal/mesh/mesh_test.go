package mesh

import (
	"testing"

	"github.com/atmoscfd/mricore/internal/bc"
	"github.com/atmoscfd/mricore/internal/config"
	"github.com/atmoscfd/mricore/internal/geomtry"
	"github.com/atmoscfd/mricore/internal/state"
)

func newTestGrid(t *testing.T) *geomtry.Grid {
	t.Helper()
	box := geomtry.Box{Lo: [3]int{0, 0, 0}, Hi: [3]int{3, 3, 5}}
	dz := make([]float64, box.NumCells(2))
	for i := range dz {
		dz[i] = 100
	}
	g, err := geomtry.NewGrid(box, 2, 100, 100, dz, config.Default())
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

func TestSingleLevelFillPatchExtrapolatesLateralGhosts(t *testing.T) {
	g := newTestGrid(t)
	s := state.New(g, 0)

	valid := g.Valid
	shape := s.Theta.Shape
	for k := 0; k < shape[0]; k++ {
		for j := 0; j < shape[1]; j++ {
			for i := 0; i < shape[2]; i++ {
				s.Theta.Set(42.0, k, j, i)
			}
		}
	}

	mgr := NewSingleLevel(valid,
		bc.Faces{West: bc.FOExtrap, East: bc.FOExtrap, South: bc.FOExtrap, North: bc.FOExtrap},
		bc.VerticalFaces{Bottom: bc.FOExtrap, Top: bc.FOExtrap},
	)
	geo := g.Interpolate(0, 0, 0)
	if err := mgr.FillPatch(s, geo); err != nil {
		t.Fatalf("FillPatch: %v", err)
	}

	box := s.CellBox()
	ghostI := valid.Lo[0] - 1
	v := state.CellGet(s.Theta, box, valid.Lo[2], valid.Lo[1], ghostI)
	if v != 42.0 {
		t.Errorf("west ghost Theta = %g, want 42 (FOExtrap copies interior)", v)
	}
}

func TestSingleLevelAverageDownAndRefluxAreNoOps(t *testing.T) {
	g := newTestGrid(t)
	s := state.New(g, 0)
	mgr := NewSingleLevel(g.Valid, bc.Faces{}, bc.VerticalFaces{})
	if err := mgr.AverageDown(s, s); err != nil {
		t.Errorf("AverageDown: %v", err)
	}
	if err := mgr.Reflux(s, s); err != nil {
		t.Errorf("Reflux: %v", err)
	}
}
