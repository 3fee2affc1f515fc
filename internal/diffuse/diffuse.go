package diffuse

import (
	"github.com/ctessum/sparse"

	"github.com/atmoscfd/mricore/internal/bc"
	"github.com/atmoscfd/mricore/internal/config"
	"github.com/atmoscfd/mricore/internal/geomtry"
	"github.com/atmoscfd/mricore/internal/state"
)

// Scheme is the resolved-once-at-construction diffusion scheme: the
// turbulence closure and the molecular diffusivity form, fixed for the run
// (spec.md §9 "Dynamic dispatch").
type Scheme struct {
	closure    Closure
	molecDiff  config.MolecDiffType
	molecCoeff float64
	theta0     float64
	vertBC     bc.VerticalFaces
}

// NewScheme resolves cfg into a diffusion Scheme. vertBC carries the
// bottom/top Kind used to pick the vertical flux form at the first/last
// plane (spec.md §4.3); lateral ghost fills are the bc package's own
// concern and are applied to state before DiffusionForState runs.
func NewScheme(cfg config.SolverChoice, vertBC bc.VerticalFaces) (*Scheme, error) {
	closure, err := NewClosure(cfg)
	if err != nil {
		return nil, err
	}
	return &Scheme{
		closure:    closure,
		molecDiff:  cfg.MolecDiff,
		molecCoeff: cfg.NumDiffCoeff,
		theta0:     300.0,
		vertBC:     vertBC,
	}, nil
}

// UsesMOST reports whether this scheme's configured vertical BC specifies
// Monin-Obukhov similarity at the bottom, so callers building their own
// *bc.MOST solve can gate construction on it rather than duplicating the
// Kind check.
func (s *Scheme) UsesMOST() bool {
	return s.vertBC.Bottom == bc.MOSTKind
}

// alphaEff returns the effective molecular diffusivity contribution,
// spec.md §4.3 "α_eff = ρ·α_c (constant-alpha) or α_c (constant-ρα)".
// The constant-alpha form contributes nothing while an LES closure is
// active.
func (s *Scheme) alphaEff(rho float64) float64 {
	switch s.molecDiff {
	case config.MolecDiffConstant:
		return s.molecCoeff
	case config.MolecDiffConstantAlpha:
		switch s.closure.(type) {
		case Smagorinsky, Deardorff:
			return 0
		}
		return rho * s.molecCoeff
	default:
		return 0
	}
}

// estimateStrain builds a coarse strain-rate tensor at cell idx from the
// face momenta divided by density, central-differenced across the cell.
// It is a lighter-weight stand-in for a full staggered strain tensor
// (comparable in spirit to momentum.go's simplified cross-advection terms).
func estimateStrain(st *state.State, cellBox, faceX, faceY, faceZ geomtry.Box, idx [3]int, dx, dy, dz float64) StrainRate {
	rho := state.CellGet(st.Rho, cellBox, idx[2], idx[1], idx[0])
	if rho <= 0 {
		rho = 1
	}
	uLo := state.FaceGet(st.RhoU, faceX, idx[2], idx[1], idx[0]) / rho
	uHi := state.FaceGet(st.RhoU, faceX, idx[2], idx[1], idx[0]+1) / rho
	vLo := state.FaceGet(st.RhoV, faceY, idx[2], idx[1], idx[0]) / rho
	vHi := state.FaceGet(st.RhoV, faceY, idx[2], idx[1]+1, idx[0]) / rho
	wLo := state.FaceGet(st.RhoW, faceZ, idx[2], idx[1], idx[0]) / rho
	wHi := state.FaceGet(st.RhoW, faceZ, idx[2]+1, idx[1], idx[0]) / rho

	dudx := (uHi - uLo) / dx
	dvdy := (vHi - vLo) / dy
	dwdz := (wHi - wLo) / dz

	return StrainRate{
		Dx: dx, Dy: dy, Dz: dz,
		S11: dudx, S22: dvdy, S33: dwdz,
	}
}

// DiffusionForState computes the diffusive tendency of one cell-centered
// primitive field phi (Theta, KE, QKE, or a scalar slot already extracted)
// and, if the closure supplies SourceTerms and target is the TKE field,
// adds buoyancy/shear production and dissipation (spec.md §4.3 "TKE source
// terms"). hfxZ is the per-column (j,i) surface/vertical heat flux the
// buoyancy term and the MOST bottom-flux substitution use, shaped (ny,nx);
// pass nil when target is not the TKE budget or no MOST flux is available
// (every column contributes 0).
func (s *Scheme) DiffusionForState(st *state.State, geo geomtry.Geometry, phi *sparse.DenseArray, isTKE bool, hfxZ *sparse.DenseArray, out *sparse.DenseArray) error {
	valid := st.Grid.Valid
	cellBox := st.CellBox()
	faceX, faceY, faceZ := st.FaceBox(0), st.FaceBox(1), st.FaceBox(2)
	dx, dy := st.Grid.Dx, st.Grid.Dy

	shape := valid.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := valid.Lo[2] + kk
		dz := st.Grid.Dz[clampDz(kk, len(st.Grid.Dz))]
		for jj := 0; jj < shape[1]; jj++ {
			j := valid.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := valid.Lo[0] + ii
				idx := [3]int{i, j, k}

				rho := state.CellGet(st.Rho, cellBox, k, j, i)
				strain := estimateStrain(st, cellBox, faceX, faceY, faceZ, idx, dx, dy, dz)
				muTurb := s.closure.EddyViscosity(rho, strain, state.CellGet(st.RhoQKE, cellBox, k, j, i)/maxf(rho, 1e-9))
				kappaEff := (s.alphaEff(rho) + muTurb) / maxf(rho, 1e-9)

				hLo, hHi := 1.0, 1.0
				if st.Grid.UseTerrain {
					hLo = hMetric(geo, cellBox, [3]int{i - 1, j, k})
					hHi = hMetric(geo, cellBox, idx)
				}

				phiC := state.CellGet(phi, cellBox, k, j, i)
				phiW := state.CellGet(phi, cellBox, k, j, i-1)
				phiE := state.CellGet(phi, cellBox, k, j, i+1)
				phiS := state.CellGet(phi, cellBox, k, j-1, i)
				phiN := state.CellGet(phi, cellBox, k, j+1, i)

				fluxW := kappaEff * (phiC - phiW) / dx * hLo
				fluxE := kappaEff * (phiE - phiC) / dx * hHi
				fluxS := kappaEff * (phiC - phiS) / dy * hLo
				fluxN := kappaEff * (phiN - phiC) / dy * hHi

				div := (fluxE-fluxW)/dx + (fluxN-fluxS)/dy

				hfx := columnFlux(hfxZ, valid, jj, ii)
				distLo := valid.DistToBoundary(2, k)
				distHi := valid.DistToBoundary(2, k+1)
				bottomFlux := s.vertBC.Bottom == bc.MOSTKind && isTKE
				div += s.verticalDivergence(st, cellBox, phi, k, j, i, dz, kappaEff, distLo, distHi, bottomFlux, hfx)

				if isTKE {
					if src, ok := s.closure.(SourceTerms); ok {
						length := deardorffLength(strain)
						buoyancy, shear, dissipation := src.SourceTerms(rho, muTurb, s.theta0, hfx, strain, state.CellGet(st.RhoQKE, cellBox, k, j, i)/maxf(rho, 1e-9), length)
						div += buoyancy + shear - dissipation
					}
				}

				state.CellSet(out, valid, k, j, i, state.CellGet(out, valid, k, j, i)+div)
			}
		}
	}
	return nil
}

// columnFlux reads the (jj,ii)-th column (local, relative to valid's own
// horizontal origin) of a per-column flux array, or 0 if none was supplied.
func columnFlux(hfxZ *sparse.DenseArray, valid geomtry.Box, jj, ii int) float64 {
	if hfxZ == nil {
		return 0
	}
	return hfxZ.Get(jj, ii)
}

// DiffusionForMom computes one momentum component's diffusive tendency
// (axis selects RhoU/RhoV/RhoW) from the same eddy-viscosity closure
// DiffusionForState uses, evaluated directly on the face-centered field
// rather than re-deriving the full staggered stress tensor — the same
// level of approximation estimateStrain already takes for cell-centered
// fields (spec.md §4.3 "viscous/turbulent fluxes τ_ij ... on appropriate
// staggered positions").
func (s *Scheme) DiffusionForMom(st *state.State, geo geomtry.Geometry, axis int, mom, out *sparse.DenseArray) error {
	cellBox := st.CellBox()
	faceX, faceY, faceZ := st.FaceBox(0), st.FaceBox(1), st.FaceBox(2)
	faceBox := st.FaceBox(axis)
	valid := st.Grid.Valid.FaceBox(axis)
	dx, dy := st.Grid.Dx, st.Grid.Dy

	shape := valid.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := valid.Lo[2] + kk
		dz := st.Grid.Dz[clampDz(kk, len(st.Grid.Dz))]
		for jj := 0; jj < shape[1]; jj++ {
			j := valid.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := valid.Lo[0] + ii
				idx := [3]int{i, j, k}

				rho := state.CellGet(st.Rho, cellBox, k, j, i)
				if rho <= 0 {
					rho = 1
				}
				strain := estimateStrain(st, cellBox, faceX, faceY, faceZ, idx, dx, dy, dz)
				muTurb := s.closure.EddyViscosity(rho, strain, state.CellGet(st.RhoQKE, cellBox, k, j, i)/maxf(rho, 1e-9))
				kappaEff := (s.alphaEff(rho) + muTurb) / maxf(rho, 1e-9)

				momC := state.FaceGet(mom, faceBox, k, j, i)
				momW := state.FaceGet(mom, faceBox, k, j, i-1)
				momE := state.FaceGet(mom, faceBox, k, j, i+1)
				momS := state.FaceGet(mom, faceBox, k, j-1, i)
				momN := state.FaceGet(mom, faceBox, k, j+1, i)

				fluxW := kappaEff * (momC - momW) / dx
				fluxE := kappaEff * (momE - momC) / dx
				fluxS := kappaEff * (momC - momS) / dy
				fluxN := kappaEff * (momN - momC) / dy

				div := (fluxE-fluxW)/dx + (fluxN-fluxS)/dy

				distLo := valid.DistToBoundary(2, k)
				distHi := valid.DistToBoundary(2, k+1)
				div += s.verticalDivergence(st, faceBox, mom, k, j, i, dz, kappaEff, distLo, distHi, false, 0)

				state.FaceSet(out, valid, k, j, i, state.FaceGet(out, valid, k, j, i)+div)
			}
		}
	}
	return nil
}

// DiffusionForScalar computes the diffusive tendency for passive/moist
// scalar slot n, mirroring DiffusionForState's flux form but indexed
// through the 4-D slot accessors advect.scalarSlotFluxDivergence already
// uses for scalar advection.
func (s *Scheme) DiffusionForScalar(st *state.State, geo geomtry.Geometry, n int, out *sparse.DenseArray) error {
	valid := st.Grid.Valid
	cellBox := st.CellBox()
	faceX, faceY, faceZ := st.FaceBox(0), st.FaceBox(1), st.FaceBox(2)
	dx, dy := st.Grid.Dx, st.Grid.Dy

	shape := valid.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := valid.Lo[2] + kk
		dz := st.Grid.Dz[clampDz(kk, len(st.Grid.Dz))]
		for jj := 0; jj < shape[1]; jj++ {
			j := valid.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := valid.Lo[0] + ii
				idx := [3]int{i, j, k}

				rho := state.CellGet(st.Rho, cellBox, k, j, i)
				strain := estimateStrain(st, cellBox, faceX, faceY, faceZ, idx, dx, dy, dz)
				muTurb := s.closure.EddyViscosity(rho, strain, state.CellGet(st.RhoQKE, cellBox, k, j, i)/maxf(rho, 1e-9))
				kappaEff := (s.alphaEff(rho) + muTurb) / maxf(rho, 1e-9)

				phiC := state.CellGetN(st.Phi, cellBox, k, j, i, n)
				phiW := state.CellGetN(st.Phi, cellBox, k, j, i-1, n)
				phiE := state.CellGetN(st.Phi, cellBox, k, j, i+1, n)
				phiS := state.CellGetN(st.Phi, cellBox, k, j-1, i, n)
				phiN := state.CellGetN(st.Phi, cellBox, k, j+1, i, n)

				fluxW := kappaEff * (phiC - phiW) / dx
				fluxE := kappaEff * (phiE - phiC) / dx
				fluxS := kappaEff * (phiC - phiS) / dy
				fluxN := kappaEff * (phiN - phiC) / dy
				div := (fluxE-fluxW)/dx + (fluxN-fluxS)/dy

				distLo := valid.DistToBoundary(2, k)
				distHi := valid.DistToBoundary(2, k+1)
				var fluxLo, fluxHi float64
				if distLo > 0 {
					fluxLo = kappaEff * (phiC - state.CellGetN(st.Phi, cellBox, k-1, j, i, n)) / dz
				} else {
					fluxLo = oneSidedFluxN(st.Phi, cellBox, k, j, i, n, dz, kappaEff, 1)
				}
				if distHi > 0 {
					fluxHi = kappaEff * (state.CellGetN(st.Phi, cellBox, k+1, j, i, n) - phiC) / dz
				} else {
					fluxHi = oneSidedFluxN(st.Phi, cellBox, k, j, i, n, dz, kappaEff, -1)
				}
				div += (fluxHi - fluxLo) / dz

				state.CellSetN(out, valid, k, j, i, n, state.CellGetN(out, valid, k, j, i, n)+div)
			}
		}
	}
	return nil
}

func oneSidedFluxN(phi *sparse.DenseArray, box geomtry.Box, k, j, i, n int, dz, kappaEff float64, dir int) float64 {
	phi0 := state.CellGetN(phi, box, k, j, i, n)
	phi1 := state.CellGetN(phi, box, k+dir, j, i, n)
	phi2 := state.CellGetN(phi, box, k+2*dir, j, i, n)
	grad := float64(dir) * (-3*phi0 + 4*phi1 - phi2) / (2 * dz)
	return kappaEff * grad
}

// verticalDivergence handles the k-direction flux, falling back to a
// one-sided 2nd-order stencil at the first/last plane per spec.md §4.3
// ("a 3-point, one-sided 2nd-order formula appears in those cases").
func (s *Scheme) verticalDivergence(st *state.State, box geomtry.Box, phi *sparse.DenseArray, k, j, i int, dz, kappaEff float64, distLo, distHi int, useMOSTFlux bool, hfxZ float64) float64 {
	phiC := state.CellGet(phi, box, k, j, i)

	var fluxLo float64
	switch {
	case distLo == 0 && useMOSTFlux:
		// MOST supplies the surface flux directly rather than a gradient
		// times diffusivity (spec.md §4.4 "exposes them to the
		// diffusion/flux layer as a Dirichlet-with-flux mixed condition").
		fluxLo = hfxZ
	case distLo > 0:
		phiBelow := state.CellGet(phi, box, k-1, j, i)
		fluxLo = kappaEff * (phiC - phiBelow) / dz
	default:
		fluxLo = oneSidedFlux(phi, box, k, j, i, dz, kappaEff, 1)
	}

	var fluxHi float64
	if distHi > 0 {
		phiAbove := state.CellGet(phi, box, k+1, j, i)
		fluxHi = kappaEff * (phiAbove - phiC) / dz
	} else {
		fluxHi = oneSidedFlux(phi, box, k, j, i, dz, kappaEff, -1)
	}

	return (fluxHi - fluxLo) / dz
}

// oneSidedFlux approximates the gradient at a vertical boundary plane from
// a one-sided 3-point 2nd-order difference: (-3φ_0+4φ_dir-φ_2dir)/(2dz).
func oneSidedFlux(phi *sparse.DenseArray, box geomtry.Box, k, j, i int, dz, kappaEff float64, dir int) float64 {
	phi0 := state.CellGet(phi, box, k, j, i)
	phi1 := state.CellGet(phi, box, k+dir, j, i)
	phi2 := state.CellGet(phi, box, k+2*dir, j, i)
	grad := float64(dir) * (-3*phi0 + 4*phi1 - phi2) / (2 * dz)
	return kappaEff * grad
}

func hMetric(geo geomtry.Geometry, cellBox geomtry.Box, idx [3]int) float64 {
	if geo.DetJ == nil {
		return 1
	}
	return state.CellGet(geo.DetJ, cellBox, idx[2], idx[1], idx[0])
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func clampDz(kk, n int) int {
	if kk < 0 {
		return 0
	}
	if kk >= n {
		return n - 1
	}
	return kk
}
