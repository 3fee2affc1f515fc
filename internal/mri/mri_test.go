package mri

import (
	"context"
	"testing"

	"github.com/atmoscfd/mricore/internal/advect"
	"github.com/atmoscfd/mricore/internal/bc"
	"github.com/atmoscfd/mricore/internal/config"
	"github.com/atmoscfd/mricore/internal/diffuse"
	"github.com/atmoscfd/mricore/internal/geomtry"
	"github.com/atmoscfd/mricore/internal/mesh"
	"github.com/atmoscfd/mricore/internal/slowrhs"
	"github.com/atmoscfd/mricore/internal/state"
)

func newTestGrid(t *testing.T) *geomtry.Grid {
	t.Helper()
	box := geomtry.Box{Lo: [3]int{0, 0, 0}, Hi: [3]int{3, 3, 5}}
	dz := make([]float64, box.NumCells(2))
	for i := range dz {
		dz[i] = 100
	}
	g, err := geomtry.NewGrid(box, 3, 100, 100, dz, config.Default())
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
	setConstCell(s.RhoU, 0)
	setConstCell(s.RhoV, 0)
	setConstCell(s.RhoW, 0)
	for k := range s.Base.Rho0 {
		s.Base.Rho0[k] = 1.2
		s.Base.P0[k] = 101325
		s.Base.Pi0[k] = 1
	}
	return s
}

func newDriver(t *testing.T, g *geomtry.Grid, cfg config.SolverChoice) *Driver {
	t.Helper()
	adv, err := advect.NewScheme(cfg)
	if err != nil {
		t.Fatalf("advect.NewScheme: %v", err)
	}
	diff, err := diffuse.NewScheme(cfg, bc.VerticalFaces{Bottom: bc.FOExtrap, Top: bc.FOExtrap})
	if err != nil {
		t.Fatalf("diffuse.NewScheme: %v", err)
	}
	slow := slowrhs.NewAssembler(cfg, adv, diff, slowrhs.ReferenceProfiles{})
	mgr := mesh.NewSingleLevel(g.Valid,
		bc.Faces{West: bc.FOExtrap, East: bc.FOExtrap, South: bc.FOExtrap, North: bc.FOExtrap},
		bc.VerticalFaces{Bottom: bc.FOExtrap, Top: bc.FOExtrap},
	)
	return NewDriver(cfg, g, slow, mgr)
}

func TestPlanMatchesStageTable(t *testing.T) {
	g := newTestGrid(t)
	cfg := config.Default()
	cfg.SlowFastRatio = 6
	d := newDriver(t, g, cfg)

	p := d.plan(60.0)
	if p[0].nsubsteps != 2 {
		t.Errorf("stage 0 nsubsteps = %d, want ratio/3 = 2", p[0].nsubsteps)
	}
	if p[1].nsubsteps != 3 {
		t.Errorf("stage 1 nsubsteps = %d, want ratio/2 = 3", p[1].nsubsteps)
	}
	if p[2].nsubsteps != 6 {
		t.Errorf("stage 2 nsubsteps = %d, want ratio = 6", p[2].nsubsteps)
	}
}

func TestPlanForcesSingleSubstepOnStage1(t *testing.T) {
	g := newTestGrid(t)
	cfg := config.Default()
	cfg.SlowFastRatio = 6
	cfg.ForceStage1SingleSubstep = true
	d := newDriver(t, g, cfg)

	p := d.plan(60.0)
	if p[0].nsubsteps != 1 {
		t.Errorf("stage 0 nsubsteps = %d, want 1 when forced", p[0].nsubsteps)
	}
}

func TestAdvanceHoldsQuiescentStateAtRest(t *testing.T) {
	g := newTestGrid(t)
	s := newUniformState(t, g)
	cfg := config.Default()
	cfg.BuoyancyType = 2 // zero buoyancy for rho == rho0
	cfg.SlowFastRatio = 6
	d := newDriver(t, g, cfg)

	if err := d.Advance(context.Background(), s, 0, 60.0); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	shape := s.RhoW.Shape
	for k := 0; k < shape[0]; k++ {
		for j := 0; j < shape[1]; j++ {
			for i := 0; i < shape[2]; i++ {
				if v := s.RhoW.Get(k, j, i); v < -1e-3 || v > 1e-3 {
					t.Fatalf("RhoW at (%d,%d,%d) = %g, want ~0 for a quiescent, buoyancy-neutral state", k, j, i, v)
				}
			}
		}
	}
}

func TestAdvanceNoSubsteppingRuns(t *testing.T) {
	g := newTestGrid(t)
	s := newUniformState(t, g)
	cfg := config.Default()
	cfg.BuoyancyType = 2
	cfg.NoSubstepping = true
	d := newDriver(t, g, cfg)

	if err := d.Advance(context.Background(), s, 0, 60.0); err != nil {
		t.Fatalf("Advance (no substepping): %v", err)
	}
}
