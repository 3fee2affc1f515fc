package fastcoef

import (
	"testing"

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

func setConstCell(a interface {
	Set(v float64, idx ...int)
	GetShape() []int
}, v float64) {
	shape := a.GetShape()
	for k := 0; k < shape[0]; k++ {
		for j := 0; j < shape[1]; j++ {
			for i := 0; i < shape[2]; i++ {
				a.Set(v, k, j, i)
			}
		}
	}
}

func newUniformState(t *testing.T, g *geomtry.Grid) *state.State {
	t.Helper()
	s := state.New(g, 0)
	setConstCell(s.Rho, 1.2)
	setConstCell(s.Theta, 300.0)
	setConstCell(s.RhoTheta, 1.2*300.0)
	setConstCell(s.RhoW, 0)
	for k := range s.Base.Rho0 {
		s.Base.Rho0[k] = 1.2
		s.Base.P0[k] = 101325
		s.Base.Pi0[k] = 1
	}
	return s
}

func TestBuildBoundaryInverseDiagonalIsOne(t *testing.T) {
	g := newTestGrid(t)
	s := newUniformState(t, g)
	cfg := config.Default()

	geo := g.Interpolate(0, 0, 0)
	c, err := Build(s, geo, cfg, 0.5)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	faceZ := g.Valid.FaceBox(2)
	shape := faceZ.Shape()
	for j := 0; j < shape[1]; j++ {
		for i := 0; i < shape[0]; i++ {
			// Boundary rows are Dirichlet identity: after inversion,
			// 1/1 == 1.
			if v := c.B.Get(0, j, i); v != 1 {
				t.Errorf("B at bottom boundary = %g, want 1", v)
			}
			if v := c.B.Get(shape[2]-1, j, i); v != 1 {
				t.Errorf("B at top boundary = %g, want 1", v)
			}
		}
	}
}

func TestBuildBoundaryRowsAreIdentity(t *testing.T) {
	g := newTestGrid(t)
	s := newUniformState(t, g)
	cfg := config.Default()

	geo := g.Interpolate(0, 0, 0)
	c, err := Build(s, geo, cfg, 0.5)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	faceZ := g.Valid.FaceBox(2)
	shape := faceZ.Shape()
	for j := 0; j < shape[1]; j++ {
		for i := 0; i < shape[0]; i++ {
			if v := c.A.Get(0, j, i); v != 0 {
				t.Errorf("A at bottom boundary = %g, want 0", v)
			}
			if v := c.C.Get(0, j, i); v != 0 {
				t.Errorf("C at bottom boundary = %g, want 0", v)
			}
		}
	}
}

func TestBuildInteriorInverseDiagonalIsNonzero(t *testing.T) {
	g := newTestGrid(t)
	s := newUniformState(t, g)
	cfg := config.Default()

	geo := g.Interpolate(0, 0, 0)
	c, err := Build(s, geo, cfg, 0.5)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	faceZ := g.Valid.FaceBox(2)
	shape := faceZ.Shape()
	for k := 1; k < shape[2]-1; k++ {
		for j := 0; j < shape[1]; j++ {
			for i := 0; i < shape[0]; i++ {
				b := c.B.Get(k, j, i)
				if b == 0 {
					t.Fatalf("B at interior (%d,%d,%d) is zero, want the nonzero inverted diagonal 1/bet", k, j, i)
				}
			}
		}
	}
}
