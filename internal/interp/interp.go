// Package interp implements the interpolation kernels (spec.md §4.1):
// centered 2nd/4th/6th-order, upwind-biased 3rd/5th-order, and WENO-3/5
// reconstructions used by the face-flux construction in internal/advect.
// The WENO formulas are grounded on ERF's Interpolation_WENO.H; the
// upwind-biased family follows spec.md's "even-order centered value plus
// a fixed-coefficient dissipation term scaled by sign(momentum)".
package interp

import (
	"github.com/atmoscfd/mricore/internal/errs"
)

// wenoEps is the smoothness-indicator regularization constant ε from
// spec.md §4.1.
const wenoEps = 1e-6

// Accessor reads a cell value at offset cells from the face: offset 0 is
// the cell immediately "east" (downstream in index order) of the face,
// offset -1 is immediately "west", and so on. Every kernel in this
// package is expressed purely in terms of Accessor so it is agnostic to
// which of x/y/z it is reconstructing along.
type Accessor func(offset int) float64

// Centered reconstructs the face value with a centered scheme of the
// given even order (2, 4, or 6).
func Centered(order int, get Accessor) (float64, error) {
	switch order {
	case 2:
		return 0.5 * (get(-1) + get(0)), nil
	case 4:
		return (9*(get(-1)+get(0)) - (get(-2) + get(1))) / 16, nil
	case 6:
		return (150*(get(-1)+get(0)) - 25*(get(-2)+get(1)) + 3*(get(-3)+get(2))) / 256, nil
	default:
		return 0, &errs.ConfigInvalid{Key: "horiz_spatial_order/vert_spatial_order", Reason: "unsupported centered order (must be 2, 4, or 6)"}
	}
}

// UpwindBiased reconstructs the face value with an upwind-biased scheme
// of the given odd order (3 or 5): the next-lower-even-order centered
// value plus a fixed-coefficient odd-derivative dissipation term scaled
// by sign(momentum) at the face.
func UpwindBiased(order int, get Accessor, sign float64) (float64, error) {
	switch order {
	case 3:
		centered, _ := Centered(2, get)
		diss := get(-2) - 3*get(-1) + 3*get(0) - get(1)
		return centered - sign*diss/12, nil
	case 5:
		centered, _ := Centered(4, get)
		diss := get(-3) - 5*get(-2) + 10*get(-1) - 10*get(0) + 5*get(1) - get(2)
		return centered + sign*diss/60, nil
	default:
		return 0, &errs.ConfigInvalid{Key: "horiz_spatial_order/vert_spatial_order", Reason: "unsupported upwind-biased order (must be 3 or 5)"}
	}
}

// WENO reconstructs the face value with a WENO scheme of the given order
// (3 or 5), following ERF's InterpolateInX/Y/Z_WENO kernels exactly.
func WENO(order int, get Accessor) (float64, error) {
	switch order {
	case 3:
		return weno3(get), nil
	case 5:
		return weno5(get), nil
	default:
		return 0, &errs.InvalidWENO{Order: order}
	}
}

func weno3(get Accessor) float64 {
	qm2, qm1, q0 := get(-2), get(-1), get(0)

	beta1 := (qm1 - qm2) * (qm1 - qm2)
	beta2 := (q0 - qm1) * (q0 - qm1)

	w1 := (1.0 / 3.0) / ((wenoEps + beta1) * (wenoEps + beta1))
	w2 := (2.0 / 3.0) / ((wenoEps + beta2) * (wenoEps + beta2))
	sum := w1 + w2
	w1 /= sum
	w2 /= sum

	phi1 := 0.5 * (-qm2 + 3*qm1)
	phi2 := 0.5 * (qm1 + q0)

	return w1*phi1 + w2*phi2
}

func weno5(get Accessor) float64 {
	qm3, qm2, qm1, q0, qp1 := get(-3), get(-2), get(-1), get(0), get(1)

	beta1 := (13.0/12.0)*sq(qm3-2*qm2+qm1) + 0.25*sq(qm3-4*qm2+3*qm1)
	beta2 := (13.0/12.0)*sq(qm2-2*qm1+q0) + 0.25*sq(qm2-q0)
	beta3 := (13.0/12.0)*sq(qm1-2*q0+qp1) + 0.25*sq(3*qm1-4*q0+qp1)

	w1 := (1.0 / 10.0) / sq(wenoEps+beta1)
	w2 := (3.0 / 5.0) / sq(wenoEps+beta2)
	w3 := (3.0 / 10.0) / sq(wenoEps+beta3)
	sum := w1 + w2 + w3
	w1 /= sum
	w2 /= sum
	w3 /= sum

	phi1 := (1.0/3.0)*qm3 - (7.0/6.0)*qm2 + (11.0/6.0)*qm1
	phi2 := -(1.0/6.0)*qm2 + (5.0/6.0)*qm1 + (1.0/3.0)*q0
	phi3 := (1.0/3.0)*qm1 + (5.0/6.0)*q0 - (1.0/6.0)*qp1

	return w1*phi1 + w2*phi2 + w3*phi3
}

func sq(x float64) float64 { return x * x }

// Sign returns +1 or -1, used to pick the upwind-biased stencil
// direction: +1 for non-negative momentum, including -0 (upstream is the
// "west" side), -1 for negative momentum.
func Sign(momentum float64) float64 {
	if momentum < 0 {
		return -1
	}
	return 1
}

// EffectiveOrder applies the edge-order reduction policy from spec.md
// §4.1: "order_eff = min(order, 2*dist_to_boundary)", floored at 2 so a
// kernel is always at least centered-2nd-order away from a physical
// boundary face.
func EffectiveOrder(order, distToBoundary int) int {
	capped := 2 * distToBoundary
	if capped < 2 {
		capped = 2
	}
	if order < capped {
		return order
	}
	return capped
}
