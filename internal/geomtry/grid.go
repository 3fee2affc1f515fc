// Package geomtry is the grid & metric store (spec.md §3 "Grid", §2 item
// 1): cell sizes, per-node terrain height z_nd, per-cell Jacobian detJ,
// vertical grid velocity z_t/z_t_pert, and map-scale factors. It is
// grounded on the teacher's VarGridConfig geometry bookkeeping
// (vargrid.go) and github.com/ctessum/geom for the horizontal extent,
// generalized from InMAP's flat layer-stack to a full 3-D terrain metric.
package geomtry

import (
	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"

	"github.com/atmoscfd/mricore/internal/config"
	"github.com/atmoscfd/mricore/internal/errs"
)

// Grid owns the index-space box, uniform horizontal spacing, and the
// terrain metric fields for one level's worth of state. It is allocated
// once at grid-creation time (spec.md "Lifecycle").
type Grid struct {
	Valid       Box
	GhostWidth  int
	Dx, Dy      float64
	Dz          []float64 // per-k nominal vertical spacing, len = NumCells(2)
	UseTerrain  bool
	TerrainType config.TerrainType

	Bounds geom.Bounds // horizontal extent, for mesh.Manager same-level lookups

	// ZND is node-centered physical height, shape NodeBox() dims (nz+1,ny+1,nx+1).
	ZND *sparse.DenseArray
	// DetJ is cell-centered vertical Jacobian ∂z/∂ζ, ≡1 without terrain.
	DetJ *sparse.DenseArray
	// ZT is the terrain time-derivative between RK stages (cell-centered, k-faces).
	ZT *sparse.DenseArray
	// ZTPert is the sub-step terrain-velocity perturbation.
	ZTPert *sparse.DenseArray

	// Map-scale factors; all ≡1 without a map projection.
	MfM *sparse.DenseArray // cell-centered
	MfU *sparse.DenseArray // x-face
	MfV *sparse.DenseArray // y-face

	// Moving-terrain triplet, retained across one slow step when
	// TerrainType == config.TerrainMoving (spec.md §3 "Terrain").
	ZNDOld *sparse.DenseArray
	ZNDSrc *sparse.DenseArray
	ZNDNew *sparse.DenseArray
}

// NewGrid allocates a Grid over valid with the given ghost width and
// uniform horizontal spacing, with dz giving the nominal per-k vertical
// spacing. ghostWidth must already reflect the highest reconstruction
// order in cfg plus one for eddy viscosity (spec.md §3 "Grid").
func NewGrid(valid Box, ghostWidth int, dx, dy float64, dz []float64, cfg config.SolverChoice) (*Grid, error) {
	if ghostWidth < 1 {
		return nil, &errs.GeometryInvalid{Where: "NewGrid", Reason: "ghost width must be >= 1"}
	}
	if len(dz) != valid.NumCells(2) {
		return nil, &errs.GeometryInvalid{Where: "NewGrid", Reason: "len(dz) does not match box k-extent"}
	}
	g := &Grid{
		Valid:       valid,
		GhostWidth:  ghostWidth,
		Dx:          dx,
		Dy:          dy,
		Dz:          dz,
		UseTerrain:  cfg.UseTerrain,
		TerrainType: cfg.TerrainType,
	}
	grown := valid.Grow(ghostWidth)
	node := grown.NodeBox()
	nodeShape := node.Shape()
	g.ZND = sparse.ZerosDense(nodeShape[2], nodeShape[1], nodeShape[0])

	cellShape := grown.Shape()
	g.DetJ = sparse.ZerosDense(cellShape[2], cellShape[1], cellShape[0])
	g.ZT = sparse.ZerosDense(cellShape[2], cellShape[1], cellShape[0])
	g.ZTPert = sparse.ZerosDense(cellShape[2], cellShape[1], cellShape[0])
	g.MfM = sparse.ZerosDense(cellShape[1], cellShape[0])
	g.MfU = sparse.ZerosDense(cellShape[1], cellShape[0]+1)
	g.MfV = sparse.ZerosDense(cellShape[1]+1, cellShape[0])

	g.initFlatMetrics(valid, grown, dz)

	if cfg.TerrainType == config.TerrainMoving {
		g.ZNDOld = g.ZND.Copy()
		g.ZNDSrc = g.ZND.Copy()
		g.ZNDNew = g.ZND.Copy()
	}

	g.Bounds = geom.Bounds{
		Min: geom.Point{X: 0, Y: 0},
		Max: geom.Point{X: dx * float64(valid.NumCells(0)), Y: dy * float64(valid.NumCells(1))},
	}
	return g, nil
}

// initFlatMetrics fills detJ=1 and map-scale factors=1, the no-terrain /
// no-projection defaults, and builds a flat node-height ladder from dz
// (extended into the ghost region with the nearest interior spacing) so
// z_nd is monotone even before any terrain is applied.
func (g *Grid) initFlatMetrics(valid, grown Box, dz []float64) {
	fillOnes(g.DetJ)
	fillOnes(g.MfM)
	fillOnes(g.MfU)
	fillOnes(g.MfV)

	nzCells := grown.NumCells(2)
	extDz := make([]float64, nzCells)
	ghostBelow := valid.Lo[2] - grown.Lo[2]
	for k := 0; k < nzCells; k++ {
		src := k - ghostBelow
		switch {
		case src < 0:
			extDz[k] = dz[0]
		case src >= len(dz):
			extDz[k] = dz[len(dz)-1]
		default:
			extDz[k] = dz[src]
		}
	}
	heights := make([]float64, nzCells+1)
	for k := 1; k <= nzCells; k++ {
		heights[k] = heights[k-1] + extDz[k-1]
	}
	nodeShape := g.ZND.Shape
	for j := 0; j < nodeShape[1]; j++ {
		for i := 0; i < nodeShape[2]; i++ {
			for k := 0; k < nodeShape[0]; k++ {
				g.ZND.Set(heights[k], k, j, i)
			}
		}
	}
}

func fillOnes(a *sparse.DenseArray) {
	shape := a.Shape
	total := 1
	for _, s := range shape {
		total *= s
	}
	for idx := 0; idx < total; idx++ {
		a.Set(1, a.IndexNd(idx)...)
	}
}

// Validate checks the invariants geomtry owns: detJ > 0 everywhere and
// z_nd monotone increasing with k at every column (spec.md §7
// "GeometryInvalid").
func (g *Grid) Validate() error {
	shape := g.DetJ.Shape
	for k := 0; k < shape[0]; k++ {
		for j := 0; j < shape[1]; j++ {
			for i := 0; i < shape[2]; i++ {
				if g.DetJ.Get(k, j, i) <= 0 {
					return &errs.GeometryInvalid{Where: "detJ", Reason: "non-positive Jacobian"}
				}
			}
		}
	}
	nodeShape := g.ZND.Shape
	for j := 0; j < nodeShape[1]; j++ {
		for i := 0; i < nodeShape[2]; i++ {
			prev := g.ZND.Get(0, j, i)
			for k := 1; k < nodeShape[0]; k++ {
				cur := g.ZND.Get(k, j, i)
				if cur <= prev {
					return &errs.GeometryInvalid{Where: "z_nd", Reason: "non-monotone terrain height column"}
				}
				prev = cur
			}
		}
	}
	return nil
}
