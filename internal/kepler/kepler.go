// Package kepler implements two-body Keplerian orbit propagation for
// heliocentric elliptical orbits (eccentricity in [0, 1)).
//
// All functions are pure: no I/O, no logging, no retained state. Positions
// are in AU in the heliocentric ecliptic frame with the Sun at the origin.
// Any scale factor or axis remapping for rendering belongs to the consumer.
package kepler

import (
	"math"

	"github.com/soniakeys/unit"

	"github.com/aster/astergo/internal/elements"
)

// Kepler solver parameters. The iteration cap guarantees termination; at cap
// the residual for any supported eccentricity is visually negligible, so the
// solver returns its best estimate instead of failing.
const (
	solveTolerance = 1e-6
	solveMaxIter   = 30
)

// Position3D is a Cartesian position in AU, heliocentric ecliptic frame.
type Position3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Radius returns the distance from the origin (the central mass) in AU.
func (p Position3D) Radius() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// OrbitPath is an ordered sequence of samples spanning one full revolution.
// The first sample is repeated as the last so consumers can draw a closed
// polyline without special-casing the seam.
type OrbitPath []Position3D

// SolveKepler solves Kepler's equation M = E - e*sin(E) for the eccentric
// anomaly E via Newton-Raphson starting from E = M. Inputs and output are
// radians. Stops when the residual magnitude drops below 1e-6 or after 30
// iterations, whichever comes first.
func SolveKepler(meanAnomaly, eccentricity float64) float64 {
	E := meanAnomaly
	for i := 0; i < solveMaxIter; i++ {
		f := E - eccentricity*math.Sin(E) - meanAnomaly
		if math.Abs(f) < solveTolerance {
			break
		}
		E -= f / (1 - eccentricity*math.Cos(E))
	}
	return E
}

// TrueAnomaly derives the true anomaly from eccentric anomaly E and
// eccentricity e using the half-angle atan2 identity, which stays stable
// for e near 0 and near the supported upper bound.
func TrueAnomaly(E, e float64) float64 {
	sinHalf, cosHalf := math.Sincos(E / 2)
	return 2 * math.Atan2(math.Sqrt(1+e)*sinHalf, math.Sqrt(1-e)*cosHalf)
}

// Position computes the body's position for the stored mean anomaly of el.
// The in-plane position is rotated into the ecliptic frame by the standard
// 3-1-3 Euler sequence: argument of perihelion, inclination, ascending node.
func Position(el elements.OrbitalElements) Position3D {
	M := unit.AngleFromDeg(el.MeanAnomaly).Rad()
	e := el.Eccentricity

	E := SolveKepler(M, e)
	v := TrueAnomaly(E, e)
	r := el.SemiMajorAxis * (1 - e*math.Cos(E))

	xp := r * math.Cos(v)
	yp := r * math.Sin(v)

	sinW, cosW := math.Sincos(unit.AngleFromDeg(el.ArgOfPerihelion).Rad())
	sinI, cosI := math.Sincos(unit.AngleFromDeg(el.Inclination).Rad())
	sinO, cosO := math.Sincos(unit.AngleFromDeg(el.AscendingNode).Rad())

	return Position3D{
		X: xp*(cosO*cosW-sinO*sinW*cosI) + yp*(-cosO*sinW-sinO*cosW*cosI),
		Y: xp*(sinO*cosW+cosO*sinW*cosI) + yp*(-sinO*sinW+cosO*cosW*cosI),
		Z: xp*(sinW*sinI) + yp*(cosW*sinI),
	}
}

// DefaultPathSamples is the sample count used when a caller passes n <= 0.
// Dense enough that the rendered ellipse looks smooth at any eccentricity
// this engine supports.
const DefaultPathSamples = 180

// Path samples the full orbit shape at n evenly spaced mean anomalies from
// 0° to just under 360°, then appends a copy of the first sample to close
// the loop. The stored mean anomaly of el is ignored: the path characterizes
// the orbit, not the body's instantaneous location.
func Path(el elements.OrbitalElements, n int) OrbitPath {
	if n <= 0 {
		n = DefaultPathSamples
	}

	path := make(OrbitPath, 0, n+1)
	for k := 0; k < n; k++ {
		sample := el
		sample.MeanAnomaly = 360 * float64(k) / float64(n)
		path = append(path, Position(sample))
	}
	path = append(path, path[0])

	return path
}
