// Package mri is the multi-rate Runge-Kutta driver (spec.md §4.7-§4.8): a
// 3-stage RK3 that calls the slow RHS before and after the acoustic
// substeps of each stage, running the acoustic substepper either N/3,
// N/2, or N times (per spec.md's stage table). The substeps accumulate
// momenta into the stage's scratch buffers; the post-substep slow RHS
// evaluation does not read them back. It is a structural translation of
// ERF's TimeIntegration/ERF_MRI.H advance() loop, with the teacher's
// run.go Calculations worker-pool idiom (runtime.GOMAXPROCS fan-out +
// sync.WaitGroup, generalized here to collect every box's error via
// errors.Join instead of silently continuing) providing the box-parallel
// dispatch shape.
package mri

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/ctessum/sparse"

	"github.com/atmoscfd/mricore/internal/config"
	"github.com/atmoscfd/mricore/internal/fastcoef"
	"github.com/atmoscfd/mricore/internal/fastrhs"
	"github.com/atmoscfd/mricore/internal/geomtry"
	"github.com/atmoscfd/mricore/internal/glue"
	"github.com/atmoscfd/mricore/internal/mesh"
	"github.com/atmoscfd/mricore/internal/slowrhs"
	"github.com/atmoscfd/mricore/internal/state"
)

// Driver owns one grid level's worth of time-integration machinery: the
// slow RHS assembler, the fill-patch/mesh collaborator, and the solver
// configuration governing substep counts and the fast-coefficient
// rebuild cadence.
type Driver struct {
	cfg   config.SolverChoice
	slow  *slowrhs.Assembler
	mgr   mesh.Manager
	grid  *geomtry.Grid
}

// NewDriver builds a Driver for one grid level.
func NewDriver(cfg config.SolverChoice, g *geomtry.Grid, slow *slowrhs.Assembler, mgr mesh.Manager) *Driver {
	return &Driver{cfg: cfg, slow: slow, mgr: mgr, grid: g}
}

// stagePlan is one RK3 stage's substep count, fast timestep, and the
// stage-time fraction used to interpolate terrain metrics (spec.md
// §4.8's stage table: t+Δt/3, t+Δt/2, t+Δt).
type stagePlan struct {
	nsubsteps int
	dtau      float64
	frac      float64
}

func (d *Driver) plan(dt float64) [3]stagePlan {
	ratio := d.cfg.SlowFastRatio
	sub := dt / float64(ratio)

	var p [3]stagePlan
	if d.cfg.ForceStage1SingleSubstep {
		p[0] = stagePlan{nsubsteps: 1, dtau: dt / 3, frac: 1.0 / 3}
	} else {
		p[0] = stagePlan{nsubsteps: ratio / 3, dtau: sub, frac: 1.0 / 3}
	}
	p[1] = stagePlan{nsubsteps: ratio / 2, dtau: sub, frac: 0.5}
	p[2] = stagePlan{nsubsteps: ratio, dtau: sub, frac: 1.0}
	return p
}

// Advance runs one full RK3 step of length dt starting at time t,
// mutating st in place (spec.md §4.7/§4.8). ctx is threaded through so a
// caller-side cancellation aborts between stages; individual kernels do
// not themselves suspend, per spec.md §5 "Cancellation/timeouts".
func (d *Driver) Advance(ctx context.Context, st *state.State, t, dt float64) error {
	if d.cfg.NoSubstepping {
		return d.advanceNoSubstep(ctx, st, t, dt)
	}

	plan := d.plan(dt)
	stageState := st.Clone() // S_new / S_stage in ERF's naming
	prevState := st          // S_old, read-only for the whole step

	for nrk := 0; nrk < 3; nrk++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		stage := plan[nrk]
		if stage.nsubsteps <= 0 {
			return fmt.Errorf("mri: stage %d has non-positive substep count %d (check slow_fast_ratio)", nrk, stage.nsubsteps)
		}

		if nrk > 0 {
			if err := stageState.UpdatePrimitives(); err != nil {
				return fmt.Errorf("mri: stage %d pre_update: %w", nrk, err)
			}
		}

		geo := d.mgr.Interp(d.grid, nrk, 0, stage.frac)
		scratch := stageState.NewStageScratch()

		slowF, err := d.slow.Evaluate(stageState, geo, scratch)
		if err != nil {
			return fmt.Errorf("mri: stage %d slow_rhs_pre: %w", nrk, err)
		}

		coeffs, err := fastcoef.Build(stageState, geo, d.cfg, stage.dtau)
		if err != nil {
			return fmt.Errorf("mri: stage %d fast coefficients: %w", nrk, err)
		}

		weight := 1.0 / float64(stage.nsubsteps)
		cur := stageState.Clone()
		for ks := 0; ks < stage.nsubsteps; ks++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			substepGeo := d.mgr.Interp(d.grid, nrk, ks, stage.frac)
			if err := fastrhs.Substep(cur, prevState, slowF, coeffs, substepGeo, d.cfg, stage.dtau, weight, scratch); err != nil {
				return fmt.Errorf("mri: stage %d substep %d: %w", nrk, ks, err)
			}
		}

		// slow_rhs_post: re-evaluate the slow RHS on cur, the state after
		// the last substep, with cur's own momenta (the substep-averaged
		// momenta in scratch are not used), then apply it to the
		// variables the acoustic substep never touches (TKE and passive
		// scalars).
		finalSlow, err := d.slow.Evaluate(cur, geo, scratch)
		if err != nil {
			return fmt.Errorf("mri: stage %d slow_rhs_post: %w", nrk, err)
		}
		stageDt := float64(stage.nsubsteps) * stage.dtau
		addCell(cur.RhoKE, finalSlow.RhoKE, cur.CellBox(), cur.Grid.Valid, stageDt)
		addCell(cur.RhoQKE, finalSlow.RhoQKE, cur.CellBox(), cur.Grid.Valid, stageDt)
		addPhi(cur.RhoPhi, finalSlow.RhoPhi, cur.CellBox(), cur.Grid.Valid, cur.NumScalars, stageDt)

		if err := glue.FillPatch(cur, geo, d.mgr); err != nil {
			return fmt.Errorf("mri: stage %d post_update fill-patch: %w", nrk, err)
		}
		if err := cur.UpdatePrimitives(); err != nil {
			return fmt.Errorf("mri: stage %d post_update primitives: %w", nrk, err)
		}

		stageState = cur
	}

	copyState(st, stageState)
	return nil
}

// advanceNoSubstep takes the no_substepping branch of ERF_MRI.H's
// advance(): one slow RHS call per stage, no acoustic substepping at
// all (spec.md §9 NoSubstepping).
func (d *Driver) advanceNoSubstep(ctx context.Context, st *state.State, t, dt float64) error {
	fracs := [3]float64{1.0 / 3, 0.5, 1.0}
	stageState := st.Clone()
	for nrk := 0; nrk < 3; nrk++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if nrk > 0 {
			if err := stageState.UpdatePrimitives(); err != nil {
				return fmt.Errorf("mri: no-substep stage %d pre_update: %w", nrk, err)
			}
		}
		geo := d.mgr.Interp(d.grid, nrk, 0, fracs[nrk])
		scratch := stageState.NewStageScratch()
		slowF, err := d.slow.Evaluate(stageState, geo, scratch)
		if err != nil {
			return fmt.Errorf("mri: no-substep stage %d: %w", nrk, err)
		}
		addScaled(stageState, slowF, dt)
		if err := glue.FillPatch(stageState, geo, d.mgr); err != nil {
			return fmt.Errorf("mri: no-substep stage %d fill-patch: %w", nrk, err)
		}
		if err := stageState.UpdatePrimitives(); err != nil {
			return fmt.Errorf("mri: no-substep stage %d post_update: %w", nrk, err)
		}
	}
	copyState(st, stageState)
	return nil
}

// addScaled applies S ← S + dt·F_slow over every conserved/momentum
// field, used by the no-substep branch in place of the acoustic solve.
func addScaled(st *state.State, f *state.Tendencies, dt float64) {
	cellBox := st.CellBox()
	valid := st.Grid.Valid
	addCell(st.Rho, f.Rho, cellBox, valid, dt)
	addCell(st.RhoTheta, f.RhoTheta, cellBox, valid, dt)
	addCell(st.RhoKE, f.RhoKE, cellBox, valid, dt)
	addCell(st.RhoQKE, f.RhoQKE, cellBox, valid, dt)
	addPhi(st.RhoPhi, f.RhoPhi, cellBox, valid, st.NumScalars, dt)
	addFace(st.RhoU, f.RhoU, st.FaceBox(0), valid.FaceBox(0), dt)
	addFace(st.RhoV, f.RhoV, st.FaceBox(1), valid.FaceBox(1), dt)
	addFace(st.RhoW, f.RhoW, st.FaceBox(2), valid.FaceBox(2), dt)
}

func addCell(dst, src interface {
	Get(idx ...int) float64
	Set(v float64, idx ...int)
}, box, valid geomtry.Box, dt float64) {
	shape := valid.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := valid.Lo[2] + kk
		for jj := 0; jj < shape[1]; jj++ {
			j := valid.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := valid.Lo[0] + ii
				dk, dj, di := k-box.Lo[2], j-box.Lo[1], i-box.Lo[0]
				sk, sj, si := k-valid.Lo[2], j-valid.Lo[1], i-valid.Lo[0]
				dst.Set(dst.Get(dk, dj, di)+dt*src.Get(sk, sj, si), dk, dj, di)
			}
		}
	}
}

func addFace(dst, src interface {
	Get(idx ...int) float64
	Set(v float64, idx ...int)
}, box, valid geomtry.Box, dt float64) {
	addCell(dst, src, box, valid, dt)
}

// addPhi is addCell's 4-D counterpart for RhoPhi (k,j,i,n): passive/moist
// scalar transport is otherwise dropped silently by both the no-substep
// branch and the acoustic-substep slow_rhs_post step, since neither
// addScaled nor the stage loop touched the scalar slots before.
func addPhi(dst, src *sparse.DenseArray, box, valid geomtry.Box, numScalars int, dt float64) {
	if numScalars == 0 || dst == nil || src == nil {
		return
	}
	shape := valid.Shape()
	for kk := 0; kk < shape[2]; kk++ {
		k := valid.Lo[2] + kk
		for jj := 0; jj < shape[1]; jj++ {
			j := valid.Lo[1] + jj
			for ii := 0; ii < shape[0]; ii++ {
				i := valid.Lo[0] + ii
				dk, dj, di := k-box.Lo[2], j-box.Lo[1], i-box.Lo[0]
				sk, sj, si := k-valid.Lo[2], j-valid.Lo[1], i-valid.Lo[0]
				for n := 0; n < numScalars; n++ {
					dst.Set(dst.Get(dk, dj, di, n)+dt*src.Get(sk, sj, si, n), dk, dj, di, n)
				}
			}
		}
	}
}

// copyState overwrites dst's mutable arrays with src's, used at the end
// of Advance to publish the final RK3 stage into the caller's buffer.
func copyState(dst, src *state.State) {
	*dst = *src.Clone()
}

// AdvanceBoxes runs Advance concurrently over a set of independent
// per-box states (spec.md §5 "data-parallel over grid boxes"), fanning
// out across GOMAXPROCS workers the way the teacher's run.go
// Calculations does, but aggregating every box's error via errors.Join
// instead of continuing silently.
func AdvanceBoxes(ctx context.Context, drivers []*Driver, states []*state.State, t, dt float64) error {
	if len(drivers) != len(states) {
		return fmt.Errorf("mri: %d drivers but %d states", len(drivers), len(states))
	}
	nprocs := runtime.GOMAXPROCS(0)
	if nprocs > len(states) {
		nprocs = len(states)
	}
	if nprocs < 1 {
		nprocs = 1
	}

	errs := make([]error, len(states))
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for p := 0; p < nprocs; p++ {
		go func(p int) {
			defer wg.Done()
			for idx := p; idx < len(states); idx += nprocs {
				if err := drivers[idx].Advance(ctx, states[idx], t, dt); err != nil {
					errs[idx] = fmt.Errorf("box %d: %w", idx, err)
				}
			}
		}(p)
	}
	wg.Wait()

	return errors.Join(errs...)
}
