package geomtry

import (
	"github.com/ctessum/sparse"

	"github.com/atmoscfd/mricore/internal/config"
)

// Geometry is an immutable snapshot of the terrain metrics needed by one
// RHS evaluation, keyed by the RK stage and (when substepping) the
// substep index. The MRI driver borrows Geometry by value rather than
// holding a mutable pointer into Grid's moving-terrain triplet — the Go
// encoding of the "cyclic references" design note: instead of the old/src/
// new MultiFabs being co-owned and mutated in place, each stage produces
// one throwaway interpolated view.
type Geometry struct {
	Stage, Substep int
	ZND            *sparse.DenseArray
	DetJ           *sparse.DenseArray
	ZT             *sparse.DenseArray
	ZTPert         *sparse.DenseArray
}

// Interpolate builds the Geometry seen by RK stage/substep frac (frac in
// [0,1], the fraction of the slow step elapsed at stage time) under
// moving terrain, linearly blending ZNDOld and ZNDNew by frac. DetJ, ZT
// and ZTPert are not blended: they are Grid's own arrays, shared by
// reference. Under static terrain every field is Grid's own array.
func (g *Grid) Interpolate(stage, substep int, frac float64) Geometry {
	if g.TerrainType == config.TerrainMoving && g.ZNDOld != nil && g.ZNDNew != nil {
		return Geometry{
			Stage:   stage,
			Substep: substep,
			ZND:     lerpDense(g.ZNDOld, g.ZNDNew, frac),
			DetJ:    g.DetJ,
			ZT:      g.ZT,
			ZTPert:  g.ZTPert,
		}
	}
	return Geometry{
		Stage:   stage,
		Substep: substep,
		ZND:     g.ZND,
		DetJ:    g.DetJ,
		ZT:      g.ZT,
		ZTPert:  g.ZTPert,
	}
}

// lerpDense returns a new DenseArray equal to (1-frac)*a + frac*b. It
// never mutates a or b.
func lerpDense(a, b *sparse.DenseArray, frac float64) *sparse.DenseArray {
	out := a.Copy()
	out.Scale(1 - frac)
	scaledB := b.ScaleCopy(frac)
	out.AddDense(scaledB)
	return out
}
