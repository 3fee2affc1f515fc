package bc

import (
	"math"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/sparse"

	"github.com/atmoscfd/mricore/internal/config"
	"github.com/atmoscfd/mricore/internal/errs"
	"github.com/atmoscfd/mricore/internal/geomtry"
	"github.com/atmoscfd/mricore/internal/state"
)

const vonKarman = 0.4

// Businger-Dyer similarity constants (spec.md §4.4).
const (
	betaM  = 5.0
	betaH  = 5.0
	gammaM = 15.0
	gammaH = 9.0
)

// psiM is the momentum stability function.
func psiM(zeta float64) float64 {
	if zeta > 0 {
		return -betaM * zeta
	}
	x := math.Pow(1-gammaM*zeta, 0.25)
	return 2*math.Log((1+x)/2) + math.Log((1+x*x)/2) - 2*math.Atan(x) + math.Pi/2
}

// psiH is the heat stability function.
func psiH(zeta float64) float64 {
	if zeta > 0 {
		return -betaH * zeta
	}
	x := math.Sqrt(1 - gammaH*zeta)
	return 2 * math.Log((1+x)/2)
}

// MOST is the Monin-Obukhov surface-layer similarity closure (spec.md
// §4.4). Grounded on ERF's ABLMost.H; the bounded fixed-point iteration is
// wired onto the teacher's github.com/cenkalti/backoff retry policy rather
// than a hand-rolled loop counter.
type MOST struct {
	Z0      float64 // roughness length [m]
	Gravity float64
	MaxIter uint64

	// Status is a per-cell flag slot. Nothing in this module writes it:
	// Solve reports exhaustion only through its returned error, and no
	// caller marks cells or substitutes a previous cell's value.
	Status []bool
}

// NewMOST builds a MOST closure with the spec's default 25-iteration bound.
func NewMOST(z0, gravity float64) *MOST {
	return &MOST{Z0: z0, Gravity: gravity, MaxIter: 25}
}

// Solve iterates (u*, θ*, L) to a fixed point given the wind speed and
// potential-temperature difference at height z above the surface, and the
// reference virtual potential temperature theta0. On exhaustion it returns
// an *errs.ConvergenceFailure with Recovered=true together with the last
// iterate of uStar/thetaStar/L; it sets no status bit.
func (m *MOST) Solve(windSpeed, deltaTheta, z, theta0 float64) (uStar, thetaStar, L float64, err error) {
	if m.MaxIter == 0 {
		m.MaxIter = 25
	}
	L = 1e6 // neutral starting guess
	iterations := 0

	operation := func() error {
		iterations++
		zeta := z / L
		lnz := math.Log(z / m.Z0)

		newUStar := vonKarman * windSpeed / math.Max(lnz-psiM(zeta), 1e-6)
		newThetaStar := vonKarman * deltaTheta / math.Max(lnz-psiH(zeta), 1e-6)

		var newL float64
		if newThetaStar != 0 {
			newL = newUStar * newUStar * theta0 / (vonKarman * m.Gravity * newThetaStar)
		} else {
			newL = 1e6
		}

		converged := math.Abs(newL-L) < 1e-3*math.Max(1, math.Abs(L))
		uStar, thetaStar, L = newUStar, newThetaStar, newL
		if converged {
			return nil
		}
		return errConverging
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(0*time.Second), m.MaxIter-1)
	if retryErr := backoff.Retry(operation, b); retryErr != nil {
		return uStar, thetaStar, L, &errs.ConvergenceFailure{Solver: "MOST", Iterations: iterations, Recovered: true}
	}
	return uStar, thetaStar, L, nil
}

// errConverging is a sentinel signaling "keep iterating" to backoff.Retry;
// it never escapes Solve.
var errConverging = &notConvergedYet{}

type notConvergedYet struct{}

func (*notConvergedYet) Error() string { return "most: not yet converged" }

// columnMOST solves the similarity equations for one (j,i) column at the
// first valid vertical level, returning the kinematic surface heat flux
// w'θ'_0 the rest of the closure needs (spec.md §4.4).
func columnMOST(st *state.State, box, faceX, faceY geomtry.Box, k int, m *MOST, cfg config.MOSTConfig, theta0, z float64, j, i int) (wT0 float64, err error) {
	rho := state.CellGet(st.Rho, box, k, j, i)
	if rho <= 0 {
		rho = 1
	}
	uAvg := 0.5 * (state.FaceGet(st.RhoU, faceX, k, j, i) + state.FaceGet(st.RhoU, faceX, k, j, i+1)) / rho
	vAvg := 0.5 * (state.FaceGet(st.RhoV, faceY, k, j, i) + state.FaceGet(st.RhoV, faceY, k, j+1, i)) / rho
	windSpeed := math.Hypot(uAvg, vAvg)
	interior := state.CellGet(st.Theta, box, k, j, i)

	if !cfg.HasSurfTemp {
		return cfg.SurfTempFlux, nil
	}

	deltaTheta := interior - cfg.SurfTemp
	uStar, thetaStar, _, solveErr := m.Solve(windSpeed, deltaTheta, z, theta0)
	return -uStar * thetaStar, solveErr
}

// SurfaceFlux returns the per-column kinematic surface heat flux w'θ'_0
// (shape ny,nx) the Monin-Obukhov similarity closure implies at the first
// vertical level, for the TKE closure's buoyancy-production term (spec.md
// §4.3, §4.4). It reads state only; it does not touch ghost cells, so it
// is safe to call mid-RHS-assembly as well as from the mesh fill-patch
// path (FillVerticalMOST below).
func SurfaceFlux(st *state.State, m *MOST, cfg config.MOSTConfig, theta0 float64) (*sparse.DenseArray, error) {
	box := st.CellBox()
	valid := st.Grid.Valid
	faceX, faceY := st.FaceBox(0), st.FaceBox(1)
	k := valid.Lo[2]
	z := 0.5 * st.Grid.Dz[0]

	ny, nx := valid.NumCells(1), valid.NumCells(0)
	flux := sparse.ZerosDense(ny, nx)
	var firstErr error
	for jj := 0; jj < ny; jj++ {
		j := valid.Lo[1] + jj
		for ii := 0; ii < nx; ii++ {
			i := valid.Lo[0] + ii
			wT0, err := columnMOST(st, box, faceX, faceY, k, m, cfg, theta0, z, j, i)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			flux.Set(wT0, jj, ii)
		}
	}
	return flux, firstErr
}

// FillVerticalMOST fills potential temperature's bottom ghost ring from
// the similarity solve and returns the same per-column flux SurfaceFlux
// computes, so a caller doing the ghost fill (mesh.SingleLevel.FillPatch)
// does not need a second pass to recover it. The Kind.MOSTKind bottom case
// (vertical.go/lateral.go) is implemented here rather than in ghostValue,
// since it needs per-column wind/theta state ghostValue's single-cell
// signature cannot carry.
func FillVerticalMOST(st *state.State, m *MOST, cfg config.MOSTConfig, theta0 float64) (*sparse.DenseArray, error) {
	box := st.CellBox()
	valid := st.Grid.Valid
	faceX, faceY := st.FaceBox(0), st.FaceBox(1)
	k := valid.Lo[2]
	z := 0.5 * st.Grid.Dz[0]

	ny, nx := valid.NumCells(1), valid.NumCells(0)
	flux := sparse.ZerosDense(ny, nx)
	var firstErr error
	for jj := 0; jj < ny; jj++ {
		j := valid.Lo[1] + jj
		for ii := 0; ii < nx; ii++ {
			i := valid.Lo[0] + ii
			wT0, err := columnMOST(st, box, faceX, faceY, k, m, cfg, theta0, z, j, i)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			flux.Set(wT0, jj, ii)

			interior := state.CellGet(st.Theta, box, k, j, i)
			ghost := interior
			if cfg.HasSurfTemp {
				ghost = 2*cfg.SurfTemp - interior
			}
			state.CellSet(st.Theta, box, k-1, j, i, ghost)
		}
	}
	return flux, firstErr
}
