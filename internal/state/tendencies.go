package state

import "github.com/ctessum/sparse"

// Tendencies is F_slow (spec.md §4.5): the accumulated ∂_t of every
// conserved field and momentum component. Every term in the slow RHS
// assembler (advection, diffusion, Coriolis, Rayleigh damping, buoyancy,
// hyperdiffusion) adds into the same Tendencies value rather than
// returning its own buffer, mirroring the teacher's Calculations
// pipeline accumulating into one shared per-cell result.
type Tendencies struct {
	Rho      *sparse.DenseArray
	RhoTheta *sparse.DenseArray
	RhoKE    *sparse.DenseArray
	RhoQKE   *sparse.DenseArray
	RhoPhi   *sparse.DenseArray

	RhoU *sparse.DenseArray
	RhoV *sparse.DenseArray
	RhoW *sparse.DenseArray
}

// NewTendencies allocates a zeroed Tendencies shaped like s's conserved
// and momentum fields (valid box only, no ghost — tendencies are never
// read from ghost cells).
func NewTendencies(s *State) *Tendencies {
	cs := s.Grid.Valid.Shape()
	dense3 := func() *sparse.DenseArray { return sparse.ZerosDense(cs[2], cs[1], cs[0]) }

	t := &Tendencies{
		Rho:      dense3(),
		RhoTheta: dense3(),
		RhoKE:    dense3(),
		RhoQKE:   dense3(),
	}
	if s.NumScalars > 0 {
		t.RhoPhi = sparse.ZerosDense(cs[2], cs[1], cs[0], s.NumScalars)
	}
	faceX := s.Grid.Valid.FaceBox(0).Shape()
	faceY := s.Grid.Valid.FaceBox(1).Shape()
	faceZ := s.Grid.Valid.FaceBox(2).Shape()
	t.RhoU = sparse.ZerosDense(faceX[2], faceX[1], faceX[0])
	t.RhoV = sparse.ZerosDense(faceY[2], faceY[1], faceY[0])
	t.RhoW = sparse.ZerosDense(faceZ[2], faceZ[1], faceZ[0])
	return t
}

// Reset zeroes every array in t in place, for reuse across RK stages
// (avoids reallocating the per-tile scratch every call, per spec.md §9
// "Scoped resources").
func (t *Tendencies) Reset() {
	for _, a := range []*sparse.DenseArray{t.Rho, t.RhoTheta, t.RhoKE, t.RhoQKE, t.RhoPhi, t.RhoU, t.RhoV, t.RhoW} {
		if a == nil {
			continue
		}
		for i := range a.Elements {
			a.Elements[i] = 0
		}
	}
}
