package state

import (
	"testing"

	"github.com/atmoscfd/mricore/internal/config"
	"github.com/atmoscfd/mricore/internal/geomtry"
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

func TestNewStateShapes(t *testing.T) {
	g := newTestGrid(t)
	s := New(g, 2)
	grown := g.Valid.Grow(g.GhostWidth)
	want := grown.Shape()
	got := s.Rho.Shape
	if got[2] != want[0] || got[1] != want[1] || got[0] != want[2] {
		t.Fatalf("Rho shape = %v, want (nz,ny,nx) matching %v", got, want)
	}
	if s.RhoPhi.Shape[3] != 2 {
		t.Fatalf("RhoPhi scalar dim = %d, want 2", s.RhoPhi.Shape[3])
	}
}

func TestUpdatePrimitives(t *testing.T) {
	g := newTestGrid(t)
	s := New(g, 1)
	shape := s.Rho.Shape
	for k := 0; k < shape[0]; k++ {
		for j := 0; j < shape[1]; j++ {
			for i := 0; i < shape[2]; i++ {
				s.Rho.Set(1.2, k, j, i)
				s.RhoTheta.Set(1.2*300, k, j, i)
				s.RhoPhi.Set(1.2*0.5, k, j, i, 0)
			}
		}
	}
	if err := s.UpdatePrimitives(); err != nil {
		t.Fatalf("UpdatePrimitives: %v", err)
	}
	if diff := s.Theta.Get(2, 2, 2) - 300; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("theta = %g, want 300", s.Theta.Get(2, 2, 2))
	}
	if diff := s.Phi.Get(2, 2, 2, 0) - 0.5; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("phi = %g, want 0.5", s.Phi.Get(2, 2, 2, 0))
	}
}

func TestUpdatePrimitivesRejectsNonPositiveRho(t *testing.T) {
	g := newTestGrid(t)
	s := New(g, 0)
	if err := s.UpdatePrimitives(); err == nil {
		t.Fatal("expected NumericalFailure for zeroed rho")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g := newTestGrid(t)
	s := New(g, 0)
	s.Rho.Set(1.0, 2, 2, 2)
	c := s.Clone()
	c.Rho.Set(2.0, 2, 2, 2)
	if s.Rho.Get(2, 2, 2) != 1.0 {
		t.Fatalf("Clone mutated original: %g", s.Rho.Get(2, 2, 2))
	}
}
