// Package errs defines the fatal-error taxonomy shared by every stage of
// the time-integration core. Every error type except a recovered MOST
// ConvergenceFailure is terminal: the MRI driver aborts the current step
// as soon as one is returned, there is no partial commit. The mesh fill
// and the slow RHS assembler swallow a recovered ConvergenceFailure.
package errs

import "fmt"

// ConfigInvalid reports an unknown or out-of-range configuration parameter,
// detected before integration begins.
type ConfigInvalid struct {
	Key    string
	Reason string
}

func (e *ConfigInvalid) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// InvalidWENO reports a requested WENO order outside {3,5}.
type InvalidWENO struct {
	Order int
}

func (e *InvalidWENO) Error() string {
	return fmt.Sprintf("invalid WENO order %d: must be 3 or 5", e.Order)
}

// GeometryInvalid reports detJ <= 0, a non-monotone z_nd column, or an
// empty box list.
type GeometryInvalid struct {
	Where  string
	Reason string
}

func (e *GeometryInvalid) Error() string {
	return fmt.Sprintf("geometry invalid at %s: %s", e.Where, e.Reason)
}

// NumericalFailure reports a non-positive density/Exner value encountered
// in the fast vertical solve, or a Thomas-algorithm pivot below threshold.
type NumericalFailure struct {
	Op     string
	I, J, K int
	Value  float64
}

func (e *NumericalFailure) Error() string {
	return fmt.Sprintf("numerical failure in %s at (%d,%d,%d): value=%g", e.Op, e.I, e.J, e.K, e.Value)
}

// ConvergenceFailure reports that a bounded iterative solve (MOST) did not
// converge within its iteration budget. Callers may recover locally by
// falling back to the previous value; the driver still records the
// occurrence via the Recovered flag.
type ConvergenceFailure struct {
	Solver     string
	Iterations int
	Recovered  bool
}

func (e *ConvergenceFailure) Error() string {
	status := "fatal"
	if e.Recovered {
		status = "recovered"
	}
	return fmt.Sprintf("%s did not converge after %d iterations (%s)", e.Solver, e.Iterations, status)
}

// DomainViolation reports that a boundary-condition handler requested a
// ghost width wider than the halo actually allocated. Always fatal.
type DomainViolation struct {
	Field        string
	Requested    int
	Available    int
}

func (e *DomainViolation) Error() string {
	return fmt.Sprintf("domain violation: field %s requested ghost width %d, only %d available",
		e.Field, e.Requested, e.Available)
}
