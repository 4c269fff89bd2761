package transform

import (
	"math"

	"github.com/aster/astergo/internal/kepler"
)

const (
	// KmPerAU is the IAU 2012 astronomical unit in kilometers.
	KmPerAU = 1.495978707e8

	// KmPerLD is one lunar distance in kilometers.
	KmPerLD = 384400.0
)

// Range returns the distance between two heliocentric positions in AU.
func Range(a, b kepler.Position3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// AUToKm converts AU to kilometers.
func AUToKm(au float64) float64 {
	return au * KmPerAU
}

// AUToLD converts AU to lunar distances.
func AUToLD(au float64) float64 {
	return au * KmPerAU / KmPerLD
}
