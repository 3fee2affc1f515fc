package interp

// Scheme is a resolved, monomorphized reconstruction for one spatial
// direction: its order, WENO usage, and WENO order are fixed at
// construction time and never re-inspected per cell (spec.md §9 "Dynamic
// dispatch" — "the hot kernels themselves should be monomorphized per
// (order, WENO, terrain) combination").
type Scheme struct {
	order     int
	useWENO   bool
	wenoOrder int
	isUpwind  bool // true selects the odd-order upwind-biased family instead of even-order centered
}

// NewCenteredScheme builds a Scheme that always reconstructs with the
// even-order centered formula.
func NewCenteredScheme(order int) (*Scheme, error) {
	if _, err := Centered(order, func(int) float64 { return 0 }); err != nil {
		return nil, err
	}
	return &Scheme{order: order}, nil
}

// NewUpwindScheme builds a Scheme that reconstructs with the odd-order
// upwind-biased formula, direction chosen per call from the face momentum
// sign.
func NewUpwindScheme(order int) (*Scheme, error) {
	if _, err := UpwindBiased(order, func(int) float64 { return 0 }, 1); err != nil {
		return nil, err
	}
	return &Scheme{order: order, isUpwind: true}, nil
}

// NewWENOScheme builds a Scheme that always reconstructs with WENO of the
// given order.
func NewWENOScheme(order int) (*Scheme, error) {
	if _, err := WENO(order, func(int) float64 { return 0 }); err != nil {
		return nil, err
	}
	return &Scheme{useWENO: true, wenoOrder: order, order: order}, nil
}

// Reconstruct produces the face value, applying the edge-order reduction
// policy (spec.md §4.1 "Edge policy") when distToBoundary makes the
// configured order unreachable without touching an out-of-range index.
// sign is the advecting momentum's sign, only consulted by the
// upwind-biased and never by the centered/WENO families.
func (s *Scheme) Reconstruct(get Accessor, sign float64, distToBoundary int) (float64, error) {
	eff := EffectiveOrder(s.order, distToBoundary)

	switch {
	case s.useWENO:
		if eff < s.wenoOrder {
			// Not enough room for the configured WENO stencil: spec.md §8
			// "WENO reverts to centered 2nd order in the same bands."
			return Centered(2, get)
		}
		return WENO(s.wenoOrder, get)
	case s.isUpwind:
		if eff < s.order {
			// EffectiveOrder clipped to an even bound near the boundary;
			// the odd upwind family has no such order, so drop to centered.
			return Centered(eff, get)
		}
		return UpwindBiased(s.order, get, sign)
	default:
		return Centered(eff, get)
	}
}
