// Package mesh is the external mesh/AMR manager collaborator (spec.md §5
// "Shared resource policy" / §9 Open Questions): the component that owns
// cross-box and cross-level data motion so internal/glue and internal/mri
// never have to know whether they are running against a single level or
// several. Grounded on legacy/inmap/vargrid.go's *rtree.Rtree-backed
// same-level cell lookup (gridTree/getCells), reused here to index boxes
// instead of cells, plus a SingleLevel reference implementation for the
// one-box seed scenarios spec.md §8 exercises.
package mesh

import (
	"errors"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/sparse"

	"github.com/atmoscfd/mricore/internal/bc"
	"github.com/atmoscfd/mricore/internal/config"
	"github.com/atmoscfd/mricore/internal/errs"
	"github.com/atmoscfd/mricore/internal/geomtry"
	"github.com/atmoscfd/mricore/internal/state"
)

// Manager is the collaborator internal/glue's FillPatch and internal/mri's
// driver call into for anything that isn't a purely local stencil: ghost
// fill across box/level boundaries, coarse/fine interpolation, and the
// conservation-restoring AverageDown/Reflux pair. A single-box run only
// ever exercises FillPatch; SingleLevel is the only implementation in
// this module.
type Manager interface {
	// FillPatch fills every ghost cell/face of st that lies within another
	// owned box or a coarser level, leaving only true physical-boundary
	// ghosts for the caller's own bc.Faces/VerticalFaces fill.
	FillPatch(st *state.State, geo geomtry.Geometry) error

	// Interp produces geo at an arbitrary time fraction between the old
	// and new terrain snapshots bracketing a coarser level's step,
	// forwarding to geomtry.Grid.Interpolate when there is no coarser
	// level to interpolate from.
	Interp(g *geomtry.Grid, stage, substep int, frac float64) geomtry.Geometry

	// AverageDown replaces a coarse cell's conserved state with the
	// volume-weighted average of the fine cells it covers. A no-op when
	// there is no finer level.
	AverageDown(coarse, fine *state.State) error

	// Reflux corrects a coarse cell adjacent to a fine/coarse boundary
	// using the difference between the coarse flux and the accumulated
	// fine flux, restoring exact conservation (spec.md GLOSSARY
	// "conservative"). A no-op when there is no finer level.
	Reflux(coarse, fine *state.State) error
}

// boxEntry adapts a geomtry.Box to the geom.Geom-shaped interface the
// rtree index expects, the same adaptation vargrid.go makes for *Cell.
type boxEntry struct {
	box geomtry.Box
}

// Bounds reports box's horizontal (i,j) footprint as a geom.Bounds,
// mirroring how vargrid.go indexes cells by their horizontal extent only
// (layers are looked up separately, per getCells' layer argument).
func (e *boxEntry) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: float64(e.box.Lo[0]), Y: float64(e.box.Lo[1])},
		Max: geom.Point{X: float64(e.box.Hi[0]), Y: float64(e.box.Hi[1])},
	}
}

// SingleLevel is the reference Manager for the one-box seed scenarios: no
// finer/coarser level exists, so FillPatch only has physical boundaries to
// worry about and AverageDown/Reflux are no-ops. The rtree index is kept
// and populated even though a single box never needs a neighbor search,
// so that adding a second box later is a matter of inserting more entries
// rather than introducing the index for the first time.
type SingleLevel struct {
	box   geomtry.Box
	index *rtree.Rtree

	Lateral  bc.Faces
	Vertical bc.VerticalFaces
	MOST     *bc.MOST

	mostCfg    config.MOSTConfig
	mostTheta0 float64

	// LastSurfaceFlux is the per-column kinematic surface heat flux the
	// most recent FillPatch computed via bc.FillVerticalMOST, or nil when
	// Vertical.Bottom isn't MOST. internal/slowrhs does not read it; it
	// runs its own bc.SurfaceFlux solve.
	LastSurfaceFlux *sparse.DenseArray
}

// NewSingleLevel builds a SingleLevel manager over box with the given
// lateral and vertical ghost-fill configuration (spec.md §4.4).
func NewSingleLevel(box geomtry.Box, lateral bc.Faces, vertical bc.VerticalFaces) *SingleLevel {
	idx := rtree.NewTree(25, 50)
	idx.Insert(&boxEntry{box: box})
	return &SingleLevel{box: box, index: idx, Lateral: lateral, Vertical: vertical}
}

// SetMOST opts this manager into the Monin-Obukhov bottom ghost fill;
// without a call to SetMOST, a Vertical.Bottom of bc.MOSTKind falls back to
// zeroth-order extrapolation via ghostValue's MOSTKind case. Kept as a
// separate opt-in rather than a NewSingleLevel parameter so existing
// callers that never use MOST are unaffected.
func (m *SingleLevel) SetMOST(most *bc.MOST, cfg config.MOSTConfig, theta0 float64) {
	m.MOST = most
	m.mostCfg = cfg
	m.mostTheta0 = theta0
}

// FillPatch fills st's lateral and vertical ghosts for every conserved
// cell-centered field directly from bc, since a single box has no
// same-level neighbor to borrow ghost data from (spec.md §4.9 fill
// ordering: lateral x, then y, then vertical). Theta's vertical fill is
// diverted to bc.FillVerticalMOST when the bottom BC is MOST and a solver
// has been attached via SetMOST, since ghostValue's single-cell signature
// can't carry the whole-column state the similarity solve needs. The
// face-centered RhoU/RhoV/RhoW arrays are not filled; their ghosts keep
// whatever values they already hold.
func (m *SingleLevel) FillPatch(st *state.State, _ geomtry.Geometry) error {
	box := st.CellBox()
	valid := st.Grid.Valid
	dx, dy := st.Grid.Dx, st.Grid.Dy

	useMOST := m.Vertical.Bottom == bc.MOSTKind && m.MOST != nil

	// RhoPhi/Phi are 4-D (k,j,i,n) and are filled per-slot by the caller;
	// FillLateralCell/FillVerticalCell only know the 3-D cell layout.
	cellFields := []*sparse.DenseArray{st.Rho, st.RhoTheta, st.RhoKE, st.RhoQKE, st.Theta, st.KE, st.QKE}
	for _, arr := range cellFields {
		bc.FillLateralCell(arr, box, valid, m.Lateral, dx, dy)
		if useMOST && arr == st.Theta {
			continue
		}
		bc.FillVerticalCell(arr, box, valid, m.Vertical, st.Grid.Dz)
	}

	if useMOST {
		flux, err := bc.FillVerticalMOST(st, m.MOST, m.mostCfg, m.mostTheta0)
		m.LastSurfaceFlux = flux
		if err != nil {
			var convErr *errs.ConvergenceFailure
			if !errors.As(err, &convErr) {
				return err
			}
		}
	}
	return nil
}

// Interp has no coarser level to borrow from in the single-level case, so
// it forwards straight to g's own terrain-metric blend.
func (m *SingleLevel) Interp(g *geomtry.Grid, stage, substep int, frac float64) geomtry.Geometry {
	return g.Interpolate(stage, substep, frac)
}

// AverageDown is a no-op: SingleLevel has no finer level to average from.
func (m *SingleLevel) AverageDown(coarse, fine *state.State) error { return nil }

// Reflux is a no-op: SingleLevel has no fine/coarse boundary to correct.
func (m *SingleLevel) Reflux(coarse, fine *state.State) error { return nil }
