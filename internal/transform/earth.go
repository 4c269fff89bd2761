// Package transform provides heliocentric geometry shared by the API and
// the close-approach scanner: Earth's own orbit, body/Earth range, and unit
// conversions out of AU.
package transform

import (
	"github.com/aster/astergo/internal/elements"
	"github.com/aster/astergo/internal/kepler"
)

// earthEpoch is J2000.0; Earth's mean elements below are referenced to it.
var earthEpoch = kepler.J2000

// EarthElements returns Earth's J2000 mean orbital elements (Standish,
// JPL approximate planetary elements). Good to well under 0.01 AU over the
// decades this service cares about, which is plenty for approach screening.
func EarthElements() elements.OrbitalElements {
	return elements.OrbitalElements{
		SemiMajorAxis:   1.00000011,
		Eccentricity:    0.01671022,
		Inclination:     0.00005,
		AscendingNode:   -11.26064,
		ArgOfPerihelion: 114.20783, // longitude of perihelion 102.94719 minus node
		MeanAnomaly:     357.51716, // mean longitude 100.46435 minus perihelion longitude
		Epoch:           &earthEpoch,
	}
}

// EarthPosition returns Earth's heliocentric position at the given Julian
// Date, in AU.
func EarthPosition(jd float64) kepler.Position3D {
	// EarthElements always carries an epoch, so PositionAt cannot fail.
	p, _ := kepler.PositionAt(EarthElements(), jd)
	return p
}
