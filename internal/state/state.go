// Package state is the state store (spec.md §2 item 2, §3 "Primary
// state"): cell-centered conserved variables, face-centered momenta,
// primitive derivatives, and the contravariant vertical momentum Ω. It
// generalizes the teacher's per-cell Cell struct (framework.go) — which
// carried scalar fields and neighbor slices per grid cell — to dense
// *sparse.DenseArray blocks over a geomtry.Box, the same shift the
// teacher itself made between framework.go's legacy Cell and vargrid.go's
// CTMData.
package state

import (
	"github.com/ctessum/sparse"

	"github.com/atmoscfd/mricore/internal/errs"
	"github.com/atmoscfd/mricore/internal/geomtry"
)

// ScalarIndex names the passive/moist scalar slots carried in RhoPhi.
type ScalarIndex int

// Field identifies one state array, used for per-field ghost-width
// bookkeeping and DomainViolation reporting.
type Field int

const (
	FieldRho Field = iota
	FieldRhoTheta
	FieldRhoKE
	FieldRhoQKE
	FieldRhoPhi
	FieldRhoU
	FieldRhoV
	FieldRhoW
	FieldTheta
	FieldKE
	FieldQKE
	FieldPhi
	FieldOmega
)

func (f Field) String() string {
	switch f {
	case FieldRho:
		return "rho"
	case FieldRhoTheta:
		return "rhotheta"
	case FieldRhoKE:
		return "rhoKE"
	case FieldRhoQKE:
		return "rhoQKE"
	case FieldRhoPhi:
		return "rhophi"
	case FieldRhoU:
		return "rhou"
	case FieldRhoV:
		return "rhov"
	case FieldRhoW:
		return "rhow"
	case FieldTheta:
		return "theta"
	case FieldKE:
		return "KE"
	case FieldQKE:
		return "QKE"
	case FieldPhi:
		return "phi"
	case FieldOmega:
		return "omega"
	default:
		return "unknown"
	}
}

// BaseState holds the hydrostatic reference profile (ρ₀, p₀, π₀),
// cell-centered, k-only (broadcast over i,j) since it varies only with
// height (spec.md §3 "Derived/auxiliary").
type BaseState struct {
	Rho0, P0, Pi0 []float64 // len = number of cells along k, including ghosts
}

// State owns one grid level's worth of conserved, momentum, and primitive
// fields, all dimensioned (k,j,i[,n]) over Grid.Valid grown by each
// field's ghost width (spec.md §3 table). It is allocated once at
// grid-creation time; the MRI driver mutates only its own stage scratch
// and the designated "new" buffers (§5 "Shared resource policy") — State
// itself does not enforce that, it is a plain data owner.
type State struct {
	Grid *geomtry.Grid

	NumScalars int

	Rho      *sparse.DenseArray // cell center
	RhoTheta *sparse.DenseArray
	RhoKE    *sparse.DenseArray
	RhoQKE   *sparse.DenseArray
	RhoPhi   *sparse.DenseArray // (k,j,i,n)

	RhoU *sparse.DenseArray // x-face
	RhoV *sparse.DenseArray // y-face
	RhoW *sparse.DenseArray // z-face

	Theta *sparse.DenseArray // primitive = RhoTheta/Rho
	KE    *sparse.DenseArray
	QKE   *sparse.DenseArray
	Phi   *sparse.DenseArray // (k,j,i,n)

	// Omega is the contravariant vertical momentum, z-face centered like
	// RhoW (spec.md GLOSSARY: "ρw mapped to the terrain-following
	// coordinate") — it stands in for RhoW in vertical flux construction
	// whenever terrain is active.
	Omega *sparse.DenseArray

	Base BaseState

	// GhostWidth records, per Field, how many ghost cells are currently
	// valid for that field — distinct fields can be filled to different
	// widths between driver steps (e.g. velocity ghosts are one narrower
	// than rho's, per spec.md §4.9 fill ordering).
	GhostWidth map[Field]int
}

// StageScratch accumulates the time-averaged momenta written by the
// advection/fast-substep kernels within one RK stage (spec.md §4.2 "Side
// effects", §4.7 step 4). It is allocated fresh per stage and discarded
// afterward — the Go encoding of the "scoped resources" design note
// applied to the avg-momentum buffers.
type StageScratch struct {
	AvgXMom *sparse.DenseArray
	AvgYMom *sparse.DenseArray
	AvgZMom *sparse.DenseArray
}

// New allocates a State over g's grown (ghosted) boxes, with nScalars
// passive/moist scalar slots.
func New(g *geomtry.Grid, nScalars int) *State {
	grown := g.Valid.Grow(g.GhostWidth)
	cs := grown.Shape() // (nx,ny,nz)

	dense3 := func() *sparse.DenseArray { return sparse.ZerosDense(cs[2], cs[1], cs[0]) }
	dense4 := func(n int) *sparse.DenseArray { return sparse.ZerosDense(cs[2], cs[1], cs[0], n) }

	faceX := grown.FaceBox(0).Shape()
	faceY := grown.FaceBox(1).Shape()
	faceZ := grown.FaceBox(2).Shape()

	s := &State{
		Grid:       g,
		NumScalars: nScalars,
		Rho:        dense3(),
		RhoTheta:   dense3(),
		RhoKE:      dense3(),
		RhoQKE:     dense3(),
		Theta:      dense3(),
		KE:         dense3(),
		QKE:        dense3(),
		RhoU:       sparse.ZerosDense(faceX[2], faceX[1], faceX[0]),
		RhoV:       sparse.ZerosDense(faceY[2], faceY[1], faceY[0]),
		RhoW:       sparse.ZerosDense(faceZ[2], faceZ[1], faceZ[0]),
		Omega:      sparse.ZerosDense(faceZ[2], faceZ[1], faceZ[0]),
		GhostWidth: make(map[Field]int),
	}
	if nScalars > 0 {
		s.RhoPhi = dense4(nScalars)
		s.Phi = dense4(nScalars)
	}
	for f := FieldRho; f <= FieldOmega; f++ {
		s.GhostWidth[f] = g.GhostWidth
	}
	s.Base = BaseState{
		Rho0: make([]float64, cs[2]),
		P0:   make([]float64, cs[2]),
		Pi0:  make([]float64, cs[2]),
	}
	return s
}

// CellBox returns the grown (ghosted) box every cell-centered array in s
// is allocated over.
func (s *State) CellBox() geomtry.Box {
	return s.Grid.Valid.Grow(s.Grid.GhostWidth)
}

// FaceBox returns the grown (ghosted) box the axis-a face array (RhoU for
// axis 0, RhoV for 1, RhoW for 2) is allocated over.
func (s *State) FaceBox(axis int) geomtry.Box {
	return s.CellBox().FaceBox(axis)
}

// CellGet reads a cell-centered array at global cell index (i,j,k),
// translating into the array's local (ghost-relative) storage offsets.
func CellGet(a *sparse.DenseArray, box geomtry.Box, k, j, i int) float64 {
	return a.Get(k-box.Lo[2], j-box.Lo[1], i-box.Lo[0])
}

// CellSet writes a cell-centered array at global cell index (i,j,k).
func CellSet(a *sparse.DenseArray, box geomtry.Box, k, j, i int, v float64) {
	a.Set(v, k-box.Lo[2], j-box.Lo[1], i-box.Lo[0])
}

// CellGetN reads scalar slot n of a 4-D cell-centered array (RhoPhi, Phi).
func CellGetN(a *sparse.DenseArray, box geomtry.Box, k, j, i, n int) float64 {
	return a.Get(k-box.Lo[2], j-box.Lo[1], i-box.Lo[0], n)
}

// CellSetN writes scalar slot n of a 4-D cell-centered array.
func CellSetN(a *sparse.DenseArray, box geomtry.Box, k, j, i, n int, v float64) {
	a.Set(v, k-box.Lo[2], j-box.Lo[1], i-box.Lo[0], n)
}

// FaceGet reads a face-centered array at the face just "west of" (below,
// in index order along axis) global cell index (i,j,k). faceBox must be
// the FaceBox(axis) of the same array.
func FaceGet(a *sparse.DenseArray, faceBox geomtry.Box, k, j, i int) float64 {
	return a.Get(k-faceBox.Lo[2], j-faceBox.Lo[1], i-faceBox.Lo[0])
}

// FaceSet writes a face-centered array at the face just west of global
// cell index (i,j,k).
func FaceSet(a *sparse.DenseArray, faceBox geomtry.Box, k, j, i int, v float64) {
	a.Set(v, k-faceBox.Lo[2], j-faceBox.Lo[1], i-faceBox.Lo[0])
}

// NewStageScratch allocates a zeroed StageScratch shaped like s.
func (s *State) NewStageScratch() *StageScratch {
	faceX := s.Grid.Valid.Grow(s.Grid.GhostWidth).FaceBox(0).Shape()
	faceY := s.Grid.Valid.Grow(s.Grid.GhostWidth).FaceBox(1).Shape()
	faceZ := s.Grid.Valid.Grow(s.Grid.GhostWidth).FaceBox(2).Shape()
	return &StageScratch{
		AvgXMom: sparse.ZerosDense(faceX[2], faceX[1], faceX[0]),
		AvgYMom: sparse.ZerosDense(faceY[2], faceY[1], faceY[0]),
		AvgZMom: sparse.ZerosDense(faceZ[2], faceZ[1], faceZ[0]),
	}
}

// Clone deep-copies every array, producing an independent "new" buffer
// the driver can mutate while S_old stays read-only (§5 "Shared resource
// policy").
func (s *State) Clone() *State {
	c := *s
	c.Rho = s.Rho.Copy()
	c.RhoTheta = s.RhoTheta.Copy()
	c.RhoKE = s.RhoKE.Copy()
	c.RhoQKE = s.RhoQKE.Copy()
	if s.RhoPhi != nil {
		c.RhoPhi = s.RhoPhi.Copy()
		c.Phi = s.Phi.Copy()
	}
	c.RhoU = s.RhoU.Copy()
	c.RhoV = s.RhoV.Copy()
	c.RhoW = s.RhoW.Copy()
	c.Theta = s.Theta.Copy()
	c.KE = s.KE.Copy()
	c.QKE = s.QKE.Copy()
	c.Omega = s.Omega.Copy()
	c.GhostWidth = make(map[Field]int, len(s.GhostWidth))
	for k, v := range s.GhostWidth {
		c.GhostWidth[k] = v
	}
	base := s.Base
	c.Base = BaseState{
		Rho0: append([]float64(nil), base.Rho0...),
		P0:   append([]float64(nil), base.P0...),
		Pi0:  append([]float64(nil), base.Pi0...),
	}
	return &c
}

// UpdatePrimitives recomputes φ_k = ρφ_k/ρ over every cell that currently
// has a valid ρ ghost fill, the pre_update step of spec.md §4.8. Ghost
// fills (mesh.SingleLevel.FillPatch, bc.FillVerticalMOST) also write the
// ghost cells of Theta/KE/QKE.
func (s *State) UpdatePrimitives() error {
	width := s.GhostWidth[FieldRho]
	box := s.Grid.Valid.Grow(width)
	shape := box.Shape()
	for k := 0; k < shape[2]; k++ {
		for j := 0; j < shape[1]; j++ {
			for i := 0; i < shape[0]; i++ {
				rho := s.Rho.Get(k, j, i)
				if rho <= 0 {
					return &errs.NumericalFailure{Op: "UpdatePrimitives", I: i, J: j, K: k, Value: rho}
				}
				s.Theta.Set(s.RhoTheta.Get(k, j, i)/rho, k, j, i)
				s.KE.Set(s.RhoKE.Get(k, j, i)/rho, k, j, i)
				s.QKE.Set(s.RhoQKE.Get(k, j, i)/rho, k, j, i)
				for n := 0; n < s.NumScalars; n++ {
					s.Phi.Set(s.RhoPhi.Get(k, j, i, n)/rho, k, j, i, n)
				}
			}
		}
	}
	return nil
}
