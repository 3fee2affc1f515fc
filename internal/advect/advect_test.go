package advect

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
	cfg := config.Default()
	g, err := geomtry.NewGrid(box, 2, 100, 100, dz, cfg)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

func setConst(t *testing.T, a interface {
	Set(v float64, idx ...int)
	GetShape() []int
}, v float64) {
	t.Helper()
	shape := a.GetShape()
	switch len(shape) {
	case 3:
		for k := 0; k < shape[0]; k++ {
			for j := 0; j < shape[1]; j++ {
				for i := 0; i < shape[2]; i++ {
					a.Set(v, k, j, i)
				}
			}
		}
	case 4:
		for k := 0; k < shape[0]; k++ {
			for j := 0; j < shape[1]; j++ {
				for i := 0; i < shape[2]; i++ {
					for n := 0; n < shape[3]; n++ {
						a.Set(v, k, j, i, n)
					}
				}
			}
		}
	}
}

func newUniformState(t *testing.T, cfg config.SolverChoice, rho, theta, ru, rv, rw float64) (*geomtry.Grid, *state.State) {
	t.Helper()
	g := newTestGrid(t)
	s := state.New(g, 0)
	setConst(t, s.Rho, rho)
	setConst(t, s.RhoTheta, rho*theta)
	setConst(t, s.Theta, theta)
	setConst(t, s.KE, 0.3)
	setConst(t, s.RhoU, ru)
	setConst(t, s.RhoV, rv)
	setConst(t, s.RhoW, rw)
	setConst(t, s.Omega, rw)
	return g, s
}

func centeredScheme(t *testing.T) *Scheme {
	t.Helper()
	cfg := config.Default()
	cfg.HorizSpatialOrder = 2
	cfg.VertSpatialOrder = 2
	sc, err := NewScheme(cfg)
	if err != nil {
		t.Fatalf("NewScheme: %v", err)
	}
	return sc
}

func TestContinuityAndEnergyTendencyZeroForUniformFlow(t *testing.T) {
	_, s := newUniformState(t, config.Default(), 1.2, 300, 5.0, -2.0, 0.0)
	sc := centeredScheme(t)
	geo := s.Grid.Interpolate(0, 0, 0)
	out := state.NewTendencies(s)
	scratch := s.NewStageScratch()

	if err := sc.AdvectionForRhoAndTheta(s, geo, scratch, out); err != nil {
		t.Fatalf("AdvectionForRhoAndTheta: %v", err)
	}

	shape := out.Rho.Shape
	for k := 0; k < shape[0]; k++ {
		for j := 0; j < shape[1]; j++ {
			for i := 0; i < shape[2]; i++ {
				if v := out.Rho.Get(k, j, i); v < -1e-8 || v > 1e-8 {
					t.Fatalf("Rho tendency at (%d,%d,%d) = %g, want 0 for uniform flow", k, j, i, v)
				}
				if v := out.RhoTheta.Get(k, j, i); v < -1e-6 || v > 1e-6 {
					t.Fatalf("RhoTheta tendency at (%d,%d,%d) = %g, want 0 for uniform flow", k, j, i, v)
				}
			}
		}
	}
}

func TestAvgMomSnapshotsStageMomentum(t *testing.T) {
	_, s := newUniformState(t, config.Default(), 1.2, 300, 5.0, -2.0, 0.25)
	sc := centeredScheme(t)
	geo := s.Grid.Interpolate(0, 0, 0)
	out := state.NewTendencies(s)
	scratch := s.NewStageScratch()

	if err := sc.AdvectionForRhoAndTheta(s, geo, scratch, out); err != nil {
		t.Fatalf("AdvectionForRhoAndTheta: %v", err)
	}

	if got := scratch.AvgXMom.Get(2, 2, 2); got != 5.0 {
		t.Errorf("AvgXMom = %g, want 5.0", got)
	}
	if got := scratch.AvgYMom.Get(2, 2, 2); got != -2.0 {
		t.Errorf("AvgYMom = %g, want -2.0", got)
	}
	if got := scratch.AvgZMom.Get(2, 2, 2); got != 0.25 {
		t.Errorf("AvgZMom = %g, want 0.25", got)
	}
}

func TestScalarFluxDivergenceZeroForUniformField(t *testing.T) {
	_, s := newUniformState(t, config.Default(), 1.2, 300, 3.0, 1.5, 0.0)
	sc := centeredScheme(t)
	geo := s.Grid.Interpolate(0, 0, 0)
	out := state.NewTendencies(s)

	if err := sc.AdvectionForScalars(s, geo, out); err != nil {
		t.Fatalf("AdvectionForScalars: %v", err)
	}

	shape := out.RhoKE.Shape
	for k := 0; k < shape[0]; k++ {
		for j := 0; j < shape[1]; j++ {
			for i := 0; i < shape[2]; i++ {
				if v := out.RhoKE.Get(k, j, i); v < -1e-8 || v > 1e-8 {
					t.Fatalf("RhoKE tendency at (%d,%d,%d) = %g, want 0 for uniform field", k, j, i, v)
				}
			}
		}
	}
}

func TestAdvectionForMomZeroForUniformVelocity(t *testing.T) {
	_, s := newUniformState(t, config.Default(), 1.2, 300, 4.0, -1.0, 0.0)
	sc := centeredScheme(t)
	geo := s.Grid.Interpolate(0, 0, 0)
	out := state.NewTendencies(s)

	u := s.RhoU.Copy()
	setConst(t, u, 4.0/1.2)
	v := s.RhoV.Copy()
	setConst(t, v, -1.0/1.2)
	w := s.RhoW.Copy()
	setConst(t, w, 0.0)

	if err := sc.AdvectionForMom(s, geo, u, v, w, out); err != nil {
		t.Fatalf("AdvectionForMom: %v", err)
	}

	shape := out.RhoU.Shape
	for k := 0; k < shape[0]; k++ {
		for j := 0; j < shape[1]; j++ {
			for i := 0; i < shape[2]; i++ {
				if d := out.RhoU.Get(k, j, i); d < -1e-6 || d > 1e-6 {
					t.Fatalf("RhoU momentum tendency at (%d,%d,%d) = %g, want 0 for uniform velocity", k, j, i, d)
				}
			}
		}
	}
}
