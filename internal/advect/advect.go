// Package advect is the advection module (spec.md §4.2, §2 item 4):
// fluxes for continuity/energy/scalars/momentum, cartesian and
// terrain-following variants, writing the stage momenta into the
// avg_{x,y,z}mom buffers of state.StageScratch. It is grounded on the
// teacher's UpwindAdvection flux-accumulation pattern (science.go),
// extended with terrain metrics and the high-order/WENO kernel families
// from ERF's AdvectionSrcForMom_T.H.
package advect

import (
	"github.com/ctessum/sparse"

	"github.com/atmoscfd/mricore/internal/config"
	"github.com/atmoscfd/mricore/internal/geomtry"
	"github.com/atmoscfd/mricore/internal/interp"
	"github.com/atmoscfd/mricore/internal/state"
)

// Scheme is the monomorphized per-run advection scheme: kernels are
// resolved once from config.SolverChoice at construction, never
// re-dispatched per cell (spec.md §9 "Dynamic dispatch").
type Scheme struct {
	allWENO   bool
	moistWENO bool

	baseHoriz *interp.Scheme
	baseVert  *interp.Scheme
	wenoHoriz *interp.Scheme
	wenoVert  *interp.Scheme
}

// NewScheme resolves the configured spatial orders and WENO flags into a
// fixed set of interp.Scheme kernels.
func NewScheme(cfg config.SolverChoice) (*Scheme, error) {
	s := &Scheme{allWENO: cfg.AllUseWENO, moistWENO: cfg.MoistUseWENO}

	var err error
	s.baseHoriz, err = orderScheme(cfg.HorizSpatialOrder)
	if err != nil {
		return nil, err
	}
	s.baseVert, err = orderScheme(cfg.VertSpatialOrder)
	if err != nil {
		return nil, err
	}
	if cfg.AllUseWENO || cfg.MoistUseWENO {
		s.wenoHoriz, err = interp.NewWENOScheme(cfg.SpatialOrderWENO)
		if err != nil {
			return nil, err
		}
		s.wenoVert, err = interp.NewWENOScheme(cfg.SpatialOrderWENO)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func orderScheme(order int) (*interp.Scheme, error) {
	if order%2 == 0 {
		return interp.NewCenteredScheme(order)
	}
	return interp.NewUpwindScheme(order)
}

func (s *Scheme) horizKernel(moist bool) *interp.Scheme {
	if s.allWENO || (moist && s.moistWENO) {
		return s.wenoHoriz
	}
	return s.baseHoriz
}

func (s *Scheme) vertKernel(moist bool) *interp.Scheme {
	if s.allWENO || (moist && s.moistWENO) {
		return s.wenoVert
	}
	return s.baseVert
}

// AdvectionForRhoAndTheta computes the continuity and energy tendencies
// and writes the provisional avg_{x,y,z}mom accumulator (spec.md §4.2
// "Side effects"): for continuity φ≡1, so the flux is the momentum
// itself; for energy φ=θ=ρθ/ρ and the flux is M_f·interp(θ,f).
func (s *Scheme) AdvectionForRhoAndTheta(st *state.State, geo geomtry.Geometry, scratch *state.StageScratch, out *state.Tendencies) error {
	cellBox := st.CellBox()
	faceX, faceY, faceZ := st.FaceBox(0), st.FaceBox(1), st.FaceBox(2)

	writeAvgMom(scratch, st.RhoU, faceX, st.RhoV, faceY, st.RhoW, faceZ)

	return s.fluxDivergenceAll(st, geo, cellBox, faceX, faceY, faceZ, nil, st.Theta, false, out.Rho, out.RhoTheta)
}

// AdvectionForScalars computes tendencies for ρKE, ρQKE, and every
// passive/moist scalar slot.
func (s *Scheme) AdvectionForScalars(st *state.State, geo geomtry.Geometry, out *state.Tendencies) error {
	cellBox := st.CellBox()
	faceX, faceY, faceZ := st.FaceBox(0), st.FaceBox(1), st.FaceBox(2)

	if err := s.scalarFluxDivergence(st, geo, cellBox, faceX, faceY, faceZ, st.KE, false, out.RhoKE); err != nil {
		return err
	}
	if err := s.scalarFluxDivergence(st, geo, cellBox, faceX, faceY, faceZ, st.QKE, false, out.RhoQKE); err != nil {
		return err
	}
	for n := 0; n < st.NumScalars; n++ {
		if err := s.scalarSlotFluxDivergence(st, geo, cellBox, faceX, faceY, faceZ, n, out.RhoPhi); err != nil {
			return err
		}
	}
	return nil
}

// writeAvgMom snapshots the momentum actually used to build this stage's
// fluxes, consumed verbatim (no accumulation here — the fast substepper
// does the 1/Nsubsteps-weighted accumulation per spec.md §4.7 step 4).
func writeAvgMom(scratch *state.StageScratch, u *sparse.DenseArray, uBox geomtry.Box, v *sparse.DenseArray, vBox geomtry.Box, w *sparse.DenseArray, wBox geomtry.Box) {
	copyInto(scratch.AvgXMom, u)
	copyInto(scratch.AvgYMom, v)
	copyInto(scratch.AvgZMom, w)
}

func copyInto(dst, src *sparse.DenseArray) {
	copy(dst.Elements, src.Elements)
}
