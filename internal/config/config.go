// Package config loads and validates the solver configuration record that
// is injected, as a single immutable value, at the start of a run. It is
// the Go encoding of the recognized-key set in spec.md §6: any key present
// in a config file that this package doesn't know about is a hard
// ConfigInvalid, reported before integration begins.
package config

import (
	"fmt"
	"math"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/unit"

	"github.com/atmoscfd/mricore/internal/errs"
)

// TerrainType selects whether terrain metrics are static for the whole run
// or rebuilt every slow step from a moving lower boundary.
type TerrainType string

const (
	TerrainStatic TerrainType = "static"
	TerrainMoving TerrainType = "moving"
)

// LESType selects the large-eddy closure used by the diffusion module.
type LESType string

const (
	LESNone         LESType = "None"
	LESSmagorinsky  LESType = "Smagorinsky"
	LESDeardorff    LESType = "Deardorff"
)

// PBLType selects the planetary-boundary-layer closure.
type PBLType string

const (
	PBLNone   PBLType = "None"
	PBLMYNN25 PBLType = "MYNN25"
)

// MolecDiffType selects the molecular-diffusion flux form.
type MolecDiffType string

const (
	MolecDiffNone          MolecDiffType = "None"
	MolecDiffConstant      MolecDiffType = "Constant"
	MolecDiffConstantAlpha MolecDiffType = "ConstantAlpha"
)

// ABLDriverType selects the large-scale forcing added to the momentum
// equations to sustain a boundary-layer wind.
type ABLDriverType string

const (
	ABLDriverNone             ABLDriverType = "None"
	ABLDriverPressureGradient ABLDriverType = "PressureGradient"
	ABLDriverGeostrophicWind  ABLDriverType = "GeostrophicWind"
)

// RayleighDamping holds the per-component enable flags for the Rayleigh
// sponge layer (spec.md §4.5 step 6).
type RayleighDamping struct {
	Use bool `toml:"use_rayleigh_damping"`
	U   bool `toml:"damp_u"`
	V   bool `toml:"damp_v"`
	W   bool `toml:"damp_w"`
	Th  bool `toml:"damp_theta"`
}

// MOSTConfig holds the Monin-Obukhov surface-layer closure inputs.
type MOSTConfig struct {
	Z0           float64 `toml:"z0"`            // roughness length [m]
	SurfTemp     float64 `toml:"surf_temp"`      // [K], mutually exclusive with SurfTempFlux
	SurfTempFlux float64 `toml:"surf_temp_flux"` // [K m/s]
	HasSurfTemp  bool    `toml:"-"`
}

// Roughness returns the roughness length as a dimensioned length quantity.
func (m MOSTConfig) Roughness() *unit.Unit {
	return unit.New(m.Z0, unit.Dimensions{unit.LengthDim: 1})
}

// SolverChoice is the full, immutable configuration record threaded through
// every RHS call. It corresponds exactly to the recognized key set in
// spec.md §6.
type SolverChoice struct {
	UseTerrain   bool          `toml:"use_terrain"`
	TerrainType  TerrainType   `toml:"terrain_type"`
	BuoyancyType int           `toml:"buoyancy_type"`
	LES          LESType       `toml:"les_type"`
	PBL          PBLType       `toml:"pbl_type"`
	MolecDiff    MolecDiffType `toml:"molec_diff_type"`

	HorizSpatialOrder int `toml:"horiz_spatial_order"`
	VertSpatialOrder  int `toml:"vert_spatial_order"`

	AllUseWENO     bool `toml:"all_use_WENO"`
	MoistUseWENO   bool `toml:"moist_use_WENO"`
	SpatialOrderWENO int `toml:"spatial_order_WENO"`

	UseNumDiff   bool    `toml:"use_NumDiff"`
	NumDiffCoeff float64 `toml:"NumDiffCoeff"`

	UseCoriolis          bool    `toml:"use_coriolis"`
	RotationalTimePeriod float64 `toml:"rotational_time_period"` // seconds
	Latitude             float64 `toml:"latitude"`               // degrees

	ABLDriver        ABLDriverType `toml:"abl_driver_type"`
	ABLForcing       [3]float64    `toml:"abl_forcing"`
	ABLGeostrophic   [2]float64    `toml:"abl_geostrophic_wind"`

	Rayleigh RayleighDamping `toml:"rayleigh"`

	MOST MOSTConfig `toml:"most"`

	// FixedDt, if > 0, is used directly instead of a CFL-derived step.
	FixedDt float64 `toml:"fixed_dt"`
	CFL     float64 `toml:"cfl"`

	// SlowFastRatio is N in spec.md §4.8 (fast substeps per slow step).
	SlowFastRatio int `toml:"slow_fast_ratio"`

	// ForceStage1SingleSubstep follows the first RK stage forced to one
	// substep per spec.md §4.8.
	ForceStage1SingleSubstep bool `toml:"force_stage1_single_substep"`
	NoSubstepping            bool `toml:"no_substepping"`

	// BetaS is the explicit/implicit split weight, default 0.1 (§4.6).
	BetaS float64 `toml:"beta_s"`
	// BetaD is the (ρθ)' extrapolation blend weight (§4.7).
	BetaD float64 `toml:"beta_d"`

	GravityMS2 float64 `toml:"gravity"`
	Rd         float64 `toml:"R_d"`
	Cp         float64 `toml:"c_p"`
}

// Default returns a SolverChoice populated with the spec's defaults for
// anything not overridden by a config file.
func Default() SolverChoice {
	return SolverChoice{
		TerrainType:       TerrainStatic,
		BuoyancyType:      1,
		LES:               LESNone,
		PBL:               PBLNone,
		MolecDiff:         MolecDiffNone,
		HorizSpatialOrder: 2,
		VertSpatialOrder:  2,
		SpatialOrderWENO:  5,
		CFL:               0.9,
		SlowFastRatio:      6,
		BetaS:              0.1,
		BetaD:              0.1,
		GravityMS2:         9.81,
		Rd:                 287.0,
		Cp:                 1004.5,
	}
}

// Load reads and strictly validates a TOML configuration file. Any key in
// the file that is not part of the recognized schema is reported as
// ConfigInvalid, per spec.md §6 ("any unlisted key is a hard error").
func Load(path string) (SolverChoice, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, &errs.ConfigInvalid{Key: path, Reason: err.Error()}
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cfg, &errs.ConfigInvalid{
			Key:    undecoded[0].String(),
			Reason: "unrecognized configuration key",
		}
	}
	cfg.MOST.HasSurfTemp = cfg.MOST.SurfTemp != 0 && cfg.MOST.SurfTempFlux == 0
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks enum ranges and mutually-exclusive fields. It does not
// touch the filesystem, so it is also useful for configs built in code
// (tests, the demo command).
func (c SolverChoice) Validate() error {
	switch c.TerrainType {
	case TerrainStatic, TerrainMoving:
	default:
		return &errs.ConfigInvalid{Key: "terrain_type", Reason: fmt.Sprintf("unrecognized value %q", c.TerrainType)}
	}
	if c.BuoyancyType < 1 || c.BuoyancyType > 3 {
		return &errs.ConfigInvalid{Key: "buoyancy_type", Reason: "must be 1, 2, or 3"}
	}
	switch c.LES {
	case LESNone, LESSmagorinsky, LESDeardorff:
	default:
		return &errs.ConfigInvalid{Key: "les_type", Reason: fmt.Sprintf("unrecognized value %q", c.LES)}
	}
	switch c.PBL {
	case PBLNone, PBLMYNN25:
	default:
		return &errs.ConfigInvalid{Key: "pbl_type", Reason: fmt.Sprintf("unrecognized value %q", c.PBL)}
	}
	switch c.MolecDiff {
	case MolecDiffNone, MolecDiffConstant, MolecDiffConstantAlpha:
	default:
		return &errs.ConfigInvalid{Key: "molec_diff_type", Reason: fmt.Sprintf("unrecognized value %q", c.MolecDiff)}
	}
	for _, o := range []struct {
		key   string
		value int
	}{{"horiz_spatial_order", c.HorizSpatialOrder}, {"vert_spatial_order", c.VertSpatialOrder}} {
		switch o.value {
		case 2, 3, 4, 5, 6:
		default:
			return &errs.ConfigInvalid{Key: o.key, Reason: "must be one of {2,3,4,5,6}"}
		}
	}
	if c.SpatialOrderWENO != 3 && c.SpatialOrderWENO != 5 {
		return &errs.ConfigInvalid{Key: "spatial_order_WENO", Reason: "must be 3 or 5"}
	}
	if c.NumDiffCoeff < 0 || c.NumDiffCoeff > 1 {
		return &errs.ConfigInvalid{Key: "NumDiffCoeff", Reason: "must be in [0,1]"}
	}
	switch c.ABLDriver {
	case ABLDriverNone, ABLDriverPressureGradient, ABLDriverGeostrophicWind:
	default:
		return &errs.ConfigInvalid{Key: "abl_driver_type", Reason: fmt.Sprintf("unrecognized value %q", c.ABLDriver)}
	}
	if c.MOST.SurfTemp != 0 && c.MOST.SurfTempFlux != 0 {
		return &errs.ConfigInvalid{Key: "most", Reason: "surf_temp and surf_temp_flux are mutually exclusive"}
	}
	if c.BetaS < -1 || c.BetaS > 1 {
		return &errs.ConfigInvalid{Key: "beta_s", Reason: "must be in [-1,1]"}
	}
	if c.SlowFastRatio > 0 {
		if c.SlowFastRatio%6 != 0 {
			return &errs.ConfigInvalid{Key: "slow_fast_ratio", Reason: "must be divisible by 6 so that N/3 and N/2 are integers"}
		}
	}
	return nil
}

// CoriolisParameter returns f = 2*(2*pi/T_rot)*sin(latitude), the
// component spec.md §4.5 step 5 uses directly (the cos(latitude) component
// multiplies the horizontal Coriolis terms and is computed alongside it by
// the caller).
func (c SolverChoice) CoriolisParameter() float64 {
	if c.RotationalTimePeriod == 0 {
		return 0
	}
	omega := 2 * math.Pi / c.RotationalTimePeriod
	return 2 * omega * math.Sin(c.Latitude*math.Pi/180)
}

// RotationRate returns the angular rotation rate implied by
// rotational_time_period, as a dimensioned quantity (rad/s).
func (c SolverChoice) RotationRate() *unit.Unit {
	var omega float64
	if c.RotationalTimePeriod != 0 {
		omega = 2 * math.Pi / c.RotationalTimePeriod
	}
	return unit.New(omega, unit.Dimensions{unit.AngleDim: 1, unit.TimeDim: -1})
}
