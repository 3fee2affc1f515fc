package geomtry

// OmegaFromW converts vertical velocity w to the contravariant vertical
// momentum Ω under terrain: Ω = w − (∂z/∂ξ)·u_f − (∂z/∂η)·v_f (spec.md §3
// invariants, GLOSSARY "Contravariant vertical momentum").
func OmegaFromW(w, uFace, vFace, dzdxi, dzdeta float64) float64 {
	return w - dzdxi*uFace - dzdeta*vFace
}

// WFromOmega is the inverse of OmegaFromW.
func WFromOmega(omega, uFace, vFace, dzdxi, dzdeta float64) float64 {
	return omega + dzdxi*uFace + dzdeta*vFace
}
