// Package diagnostics is the output-sink collaborator (spec.md §6
// "Outputs"): plot files, checkpoints, 1-D vertical column samples, and
// summary integrated quantities are produced by the core at stage
// boundaries but never consumed by it, so the core only needs a narrow
// Sink interface to write into. No concrete NetCDF/plotfile writer is
// implemented (spec.md §1 Non-goals); MemorySink is the in-memory
// reference used by tests, grounded on the teacher's own pattern of
// writing summary output through a narrow interface rather than coupling
// the solver to a file format (legacy/inmap/output.go's io.Writer-based
// Results/VariableGridData args to the output stage).
package diagnostics

import (
	"github.com/atmoscfd/mricore/internal/state"
)

// Sample is one 1-D vertical column pulled from a state at stage-end,
// spec.md §6 "1-D vertical column samples".
type Sample struct {
	Time    float64
	I, J    int
	Theta   []float64
	RhoU    []float64
	RhoV    []float64
	RhoW    []float64
}

// Summary is an integrated, domain-wide scalar quantity (spec.md §6
// "summary integrated quantities"), e.g. total mass or total kinetic
// energy, reported once per stage boundary.
type Summary struct {
	Time float64
	Name string
	Value float64
}

// Sink is the narrow contract the core writes outputs through. A
// checkpoint carries enough of *state.State to resume from; a plot
// record is whatever snapshot cadence the caller wants (the core does
// not decide cadence, only offers the hook at every stage boundary).
type Sink interface {
	WriteCheckpoint(time float64, st *state.State) error
	WritePlot(time float64, st *state.State) error
	WriteColumn(sample Sample) error
	WriteSummary(summary Summary) error
}

// MemorySink accumulates every write in memory, for tests that need to
// assert the core called the sink the right number of times with the
// right stage times rather than actually serializing anything.
type MemorySink struct {
	Checkpoints []TimedState
	Plots       []TimedState
	Columns     []Sample
	Summaries   []Summary
}

// TimedState pairs a stage time with the state snapshot recorded at it.
// The sink stores the *state.State pointer as given; callers that need
// an independent copy should pass st.Clone().
type TimedState struct {
	Time  float64
	State *state.State
}

// NewMemorySink returns an empty MemorySink ready to record.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) WriteCheckpoint(time float64, st *state.State) error {
	m.Checkpoints = append(m.Checkpoints, TimedState{Time: time, State: st})
	return nil
}

func (m *MemorySink) WritePlot(time float64, st *state.State) error {
	m.Plots = append(m.Plots, TimedState{Time: time, State: st})
	return nil
}

func (m *MemorySink) WriteColumn(sample Sample) error {
	m.Columns = append(m.Columns, sample)
	return nil
}

func (m *MemorySink) WriteSummary(summary Summary) error {
	m.Summaries = append(m.Summaries, summary)
	return nil
}

// ColumnSample extracts a Sample at horizontal index (i,j) from st,
// reading cell-centered Theta and the three face-centered momenta over
// the column's valid k-range (spec.md §6).
func ColumnSample(st *state.State, time float64, i, j int) Sample {
	cellBox := st.CellBox()
	valid := st.Grid.Valid
	n := valid.NumCells(2)

	s := Sample{Time: time, I: i, J: j, Theta: make([]float64, n)}
	for kk := 0; kk < n; kk++ {
		k := valid.Lo[2] + kk
		s.Theta[kk] = state.CellGet(st.Theta, cellBox, k, j, i)
	}

	faceX := st.FaceBox(0)
	faceY := st.FaceBox(1)
	faceZ := st.FaceBox(2)
	s.RhoU = make([]float64, n)
	s.RhoV = make([]float64, n)
	s.RhoW = make([]float64, n+1)
	for kk := 0; kk < n; kk++ {
		k := valid.Lo[2] + kk
		s.RhoU[kk] = state.FaceGet(st.RhoU, faceX, k, j, i)
		s.RhoV[kk] = state.FaceGet(st.RhoV, faceY, k, j, i)
	}
	for kk := 0; kk <= n; kk++ {
		k := valid.Lo[2] + kk
		s.RhoW[kk] = state.FaceGet(st.RhoW, faceZ, k, j, i)
	}
	return s
}

// TotalMass integrates rho*dx*dy*dz over the valid box, a summary
// quantity the core (or a caller wiring it through WriteSummary) can use
// to check conservation across a step (spec.md GLOSSARY "conservative").
func TotalMass(st *state.State) float64 {
	cellBox := st.CellBox()
	valid := st.Grid.Valid
	cellVol := st.Grid.Dx * st.Grid.Dy
	total := 0.0
	shape := valid.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := valid.Lo[2] + kk
		dz := st.Grid.Dz[kk]
		for jj := 0; jj < shape[1]; jj++ {
			j := valid.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := valid.Lo[0] + ii
				total += state.CellGet(st.Rho, cellBox, k, j, i) * cellVol * dz
			}
		}
	}
	return total
}
