// Package market estimates the resource value of an asteroid from its
// spectral class and diameter. The numbers are deliberately coarse: a
// spherical body, a family-typical bulk density, and fixed composition
// fractions per spectral family with linear $/kg prices.
package market

import (
	"errors"
	"math"
	"strings"
)

// ErrNoDiameter is returned when no usable diameter is available.
var ErrNoDiameter = errors.New("market: no diameter available")

// Material is one component of a composition estimate.
type Material struct {
	Name       string  `json:"name"`
	Fraction   float64 `json:"fraction"`
	PricePerKg float64 `json:"price_per_kg_usd"`
	MassKg     float64 `json:"mass_kg"`
	ValueUSD   float64 `json:"value_usd"`
}

// Estimate is the full valuation for one body.
type Estimate struct {
	SpectralClass string     `json:"spectral_class"`
	ClassAssumed  bool       `json:"class_assumed"`
	DiameterKm    float64    `json:"diameter_km"`
	DensityKgM3   float64    `json:"density_kg_m3"`
	MassKg        float64    `json:"mass_kg"`
	Materials     []Material `json:"materials"`
	TotalValueUSD float64    `json:"total_value_usd"`
}

// classProfile holds the bulk density and composition of a spectral family.
type classProfile struct {
	density   float64 // kg/m^3
	materials []Material
}

// Profiles follow the C/S/M taxonomy. Densities are family averages from
// published bulk density surveys; fractions and prices are order-of-magnitude
// figures for screening, not mining prospectuses.
var classProfiles = map[string]classProfile{
	"C": {
		density: 1380,
		materials: []Material{
			{Name: "water ice", Fraction: 0.10, PricePerKg: 0.5},
			{Name: "organic compounds", Fraction: 0.05, PricePerKg: 2},
			{Name: "hydrated silicates", Fraction: 0.70, PricePerKg: 0.01},
			{Name: "iron-nickel", Fraction: 0.05, PricePerKg: 1},
		},
	},
	"S": {
		density: 2710,
		materials: []Material{
			{Name: "magnesium silicates", Fraction: 0.75, PricePerKg: 0.01},
			{Name: "iron-nickel", Fraction: 0.15, PricePerKg: 1},
			{Name: "cobalt", Fraction: 0.005, PricePerKg: 30},
		},
	},
	"M": {
		density: 5320,
		materials: []Material{
			{Name: "iron-nickel", Fraction: 0.85, PricePerKg: 1},
			{Name: "cobalt", Fraction: 0.05, PricePerKg: 30},
			{Name: "platinum group metals", Fraction: 0.00005, PricePerKg: 30000},
		},
	},
}

// classAliases folds related taxonomy letters into the three families.
var classAliases = map[string]string{
	"B": "C", "F": "C", "G": "C", "D": "C", "P": "C",
	"Q": "S", "V": "S", "R": "S", "A": "S", "K": "S", "L": "S",
	"E": "M", "X": "M",
}

// normalizeClass maps a raw spectral type string ("Sq", "C-type", "") onto
// one of the three families. The second return is true when the class was
// assumed rather than derived.
func normalizeClass(spectralType string) (string, bool) {
	s := strings.TrimSpace(spectralType)
	if s == "" {
		return "C", true
	}

	letter := strings.ToUpper(s[:1])
	if _, ok := classProfiles[letter]; ok {
		return letter, false
	}
	if family, ok := classAliases[letter]; ok {
		return family, false
	}
	return "C", true
}

// Valuate estimates the resource value of a body. Unknown spectral types are
// treated as C-type and flagged. Returns ErrNoDiameter when diameterKm is
// not positive.
func Valuate(spectralType string, diameterKm float64) (Estimate, error) {
	if diameterKm <= 0 {
		return Estimate{}, ErrNoDiameter
	}

	class, assumed := normalizeClass(spectralType)
	profile := classProfiles[class]

	radiusM := diameterKm * 1000 / 2
	volume := 4.0 / 3.0 * math.Pi * radiusM * radiusM * radiusM
	mass := volume * profile.density

	est := Estimate{
		SpectralClass: class,
		ClassAssumed:  assumed,
		DiameterKm:    diameterKm,
		DensityKgM3:   profile.density,
		MassKg:        mass,
		Materials:     make([]Material, len(profile.materials)),
	}

	for i, m := range profile.materials {
		m.MassKg = mass * m.Fraction
		m.ValueUSD = m.MassKg * m.PricePerKg
		est.Materials[i] = m
		est.TotalValueUSD += m.ValueUSD
	}

	return est, nil
}
