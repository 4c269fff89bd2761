package kepler

import (
	"errors"
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"

	"github.com/aster/astergo/internal/elements"
)

// J2000 is the Julian Date of the J2000.0 reference epoch.
const J2000 = 2451545.0

// ErrNoEpoch is returned by time-propagation calls on elements parsed
// without an epoch. The stored mean anomaly is deliberately never reused in
// that case: callers must be able to tell a static snapshot orbit apart from
// one with real time data.
var ErrNoEpoch = errors.New("kepler: elements have no epoch")

// Period returns the orbital period in days from Kepler's third law in the
// solar-mass approximation: P = 365.25 * a^1.5, a in AU. Valid only for
// heliocentric orbits where the Sun dominates the controlling mass; this is
// not general two-body mechanics.
func Period(semiMajorAxis float64) float64 {
	return 365.25 * math.Pow(semiMajorAxis, 1.5)
}

// MeanAnomalyAt returns the mean anomaly in degrees, normalized to [0, 360),
// at the target Julian Date. Fails with ErrNoEpoch when el has no epoch.
func MeanAnomalyAt(el elements.OrbitalElements, jd float64) (float64, error) {
	if !el.HasEpoch() {
		return 0, ErrNoEpoch
	}

	n := 360 / Period(el.SemiMajorAxis) // mean motion, degrees per day
	m := math.Mod(el.MeanAnomaly+n*(jd-*el.Epoch), 360)
	if m < 0 {
		m += 360
	}
	return m, nil
}

// ElementsAt returns a copy of el advanced to the target Julian Date. The
// input is never mutated.
func ElementsAt(el elements.OrbitalElements, jd float64) (elements.OrbitalElements, error) {
	m, err := MeanAnomalyAt(el, jd)
	if err != nil {
		return elements.OrbitalElements{}, err
	}
	out := el
	out.MeanAnomaly = m
	return out, nil
}

// PositionAt composes MeanAnomalyAt with Position: the body's position at
// the target Julian Date.
func PositionAt(el elements.OrbitalElements, jd float64) (Position3D, error) {
	at, err := ElementsAt(el, jd)
	if err != nil {
		return Position3D{}, err
	}
	return Position(at), nil
}

// JD converts a time.Time to a Julian Date.
func JD(t time.Time) float64 {
	return julian.TimeToJD(t.UTC())
}

// JDTime converts a Julian Date back to a time.Time in UTC.
func JDTime(jd float64) time.Time {
	return julian.JDToTime(jd).UTC()
}
