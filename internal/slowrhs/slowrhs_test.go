package slowrhs

import (
	"testing"

	"github.com/atmoscfd/mricore/internal/advect"
	"github.com/atmoscfd/mricore/internal/bc"
	"github.com/atmoscfd/mricore/internal/config"
	"github.com/atmoscfd/mricore/internal/diffuse"
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
	g, err := geomtry.NewGrid(box, 3, 100, 100, dz, config.Default())
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

func setConst(a interface {
	Set(v float64, idx ...int)
	GetShape() []int
}, v float64) {
	shape := a.GetShape()
	total := 1
	for _, s := range shape {
		total *= s
	}
	idx := make([]int, len(shape))
	for n := 0; n < total; n++ {
		rem := n
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d] = rem % shape[d]
			rem /= shape[d]
		}
		a.Set(v, idx...)
	}
}

func newUniformState(t *testing.T, g *geomtry.Grid) *state.State {
	t.Helper()
	s := state.New(g, 0)
	setConst(s.Rho, 1.2)
	setConst(s.Theta, 300.0)
	setConst(s.RhoTheta, 1.2*300.0)
	setConst(s.RhoU, 0)
	setConst(s.RhoV, 0)
	setConst(s.RhoW, 0)
	for k := range s.Base.Rho0 {
		s.Base.Rho0[k] = 1.2
		s.Base.P0[k] = 101325
		s.Base.Pi0[k] = 1
	}
	return s
}

func newAssembler(t *testing.T, cfg config.SolverChoice) *Assembler {
	t.Helper()
	adv, err := advect.NewScheme(cfg)
	if err != nil {
		t.Fatalf("advect.NewScheme: %v", err)
	}
	diff, err := diffuse.NewScheme(cfg, bc.VerticalFaces{Bottom: bc.FOExtrap, Top: bc.FOExtrap})
	if err != nil {
		t.Fatalf("diffuse.NewScheme: %v", err)
	}
	return NewAssembler(cfg, adv, diff, ReferenceProfiles{})
}

func TestEvaluateZeroForQuiescentUniformState(t *testing.T) {
	g := newTestGrid(t)
	s := newUniformState(t, g)

	cfg := config.Default()
	cfg.BuoyancyType = 2 // density-perturbation form: zero when rho == rho0 everywhere
	a := newAssembler(t, cfg)

	geo := g.Interpolate(0, 0, 0)
	scratch := s.NewStageScratch()
	out, err := a.Evaluate(s, geo, scratch)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	shape := out.RhoW.Shape
	for k := 0; k < shape[0]; k++ {
		for j := 0; j < shape[1]; j++ {
			for i := 0; i < shape[2]; i++ {
				if v := out.RhoW.Get(k, j, i); v < -1e-6 || v > 1e-6 {
					t.Fatalf("RhoW tendency at (%d,%d,%d) = %g, want 0 for quiescent uniform state", k, j, i, v)
				}
			}
		}
	}
}

func TestBuoyancyTypeOneIsNonzeroForPositiveDensity(t *testing.T) {
	g := newTestGrid(t)
	s := newUniformState(t, g)

	cfg := config.Default()
	cfg.BuoyancyType = 1
	a := newAssembler(t, cfg)

	out := state.NewTendencies(s)
	geo := g.Interpolate(0, 0, 0)
	if err := a.buoyancyTerm(s, geo, nil, out); err != nil {
		t.Fatalf("buoyancyTerm: %v", err)
	}
	mid := g.Valid.Lo[2] + 2
	if v := out.RhoW.Get(mid, mid, mid); v >= 0 {
		t.Errorf("RhoW buoyancy tendency = %g, want negative (gravity pulls down)", v)
	}
}

func TestCoriolisTermZeroForStillAir(t *testing.T) {
	g := newTestGrid(t)
	s := newUniformState(t, g)

	cfg := config.Default()
	cfg.UseCoriolis = true
	cfg.Latitude = 45
	cfg.RotationalTimePeriod = 86164
	a := newAssembler(t, cfg)

	out := state.NewTendencies(s)
	geo := g.Interpolate(0, 0, 0)
	if err := a.coriolisTerm(s, geo, nil, out); err != nil {
		t.Fatalf("coriolisTerm: %v", err)
	}
	shape := out.RhoU.Shape
	for k := 0; k < shape[0]; k++ {
		for j := 0; j < shape[1]; j++ {
			for i := 0; i < shape[2]; i++ {
				if v := out.RhoU.Get(k, j, i); v < -1e-9 || v > 1e-9 {
					t.Fatalf("RhoU Coriolis tendency at (%d,%d,%d) = %g, want 0 for zero momentum", k, j, i, v)
				}
			}
		}
	}
}

func TestRayleighDampingRelaxesTowardReference(t *testing.T) {
	g := newTestGrid(t)
	s := newUniformState(t, g)

	n := g.Valid.NumCells(2)
	refs := ReferenceProfiles{
		Theta: make([]float64, n),
		Tau:   make([]float64, n),
	}
	for k := range refs.Theta {
		refs.Theta[k] = 305.0 // target warmer than the uniform 300K state
		refs.Tau[k] = 60.0
	}

	cfg := config.Default()
	cfg.Rayleigh.Use = true
	cfg.Rayleigh.Th = true
	adv, err := advect.NewScheme(cfg)
	if err != nil {
		t.Fatalf("advect.NewScheme: %v", err)
	}
	diff, err := diffuse.NewScheme(cfg, bc.VerticalFaces{Bottom: bc.FOExtrap, Top: bc.FOExtrap})
	if err != nil {
		t.Fatalf("diffuse.NewScheme: %v", err)
	}
	a := NewAssembler(cfg, adv, diff, refs)

	out := state.NewTendencies(s)
	geo := g.Interpolate(0, 0, 0)
	if err := a.rayleighTerm(s, geo, nil, out); err != nil {
		t.Fatalf("rayleighTerm: %v", err)
	}
	mid := g.Valid.Lo[2] + 2
	if v := out.RhoTheta.Get(mid, mid, mid); v <= 0 {
		t.Errorf("RhoTheta damping tendency = %g, want positive (relaxing toward a warmer reference)", v)
	}
}

func TestHyperdiffusionZeroForUniformField(t *testing.T) {
	g := newTestGrid(t)
	s := newUniformState(t, g)

	cfg := config.Default()
	cfg.UseNumDiff = true
	cfg.NumDiffCoeff = 0.1
	a := newAssembler(t, cfg)

	out := state.NewTendencies(s)
	geo := g.Interpolate(0, 0, 0)
	if err := a.hyperdiffusionTerm(s, geo, nil, out); err != nil {
		t.Fatalf("hyperdiffusionTerm: %v", err)
	}
	shape := out.RhoTheta.Shape
	for k := 0; k < shape[0]; k++ {
		for j := 0; j < shape[1]; j++ {
			for i := 0; i < shape[2]; i++ {
				if v := out.RhoTheta.Get(k, j, i); v < -1e-8 || v > 1e-8 {
					t.Fatalf("hyperdiffusion tendency at (%d,%d,%d) = %g, want 0 for uniform field", k, j, i, v)
				}
			}
		}
	}
}

func TestRebuildBaseStateIntegratesHydrostatically(t *testing.T) {
	g := newTestGrid(t)
	s := newUniformState(t, g)

	n := len(s.Base.Rho0)
	thetaRef := make([]float64, n)
	for k := range thetaRef {
		thetaRef[k] = 300.0
	}
	RebuildBaseState(&s.Base, g.Dz, thetaRef, 100000.0, 287.0, 1004.5, 9.81)

	for k := 1; k < n; k++ {
		if s.Base.P0[k] >= s.Base.P0[k-1] {
			t.Fatalf("P0[%d]=%g should be less than P0[%d]=%g (pressure decreases with height)", k, s.Base.P0[k], k-1, s.Base.P0[k-1])
		}
	}
}
