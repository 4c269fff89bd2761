package elements

import "time"

// OrbitalElements is the canonical two-body Keplerian orbit of a small body
// at a reference instant. Angles are degrees, distances AU. Immutable after
// construction; time propagation produces a copy with a replaced MeanAnomaly.
type OrbitalElements struct {
	SemiMajorAxis   float64  // a, AU, > 0
	Eccentricity    float64  // e, [0, 1)
	Inclination     float64  // i, degrees
	AscendingNode   float64  // Ω, degrees
	ArgOfPerihelion float64  // ω, degrees
	MeanAnomaly     float64  // M₀, degrees at Epoch
	Epoch           *float64 // Julian Date; nil disables time propagation
}

// HasEpoch reports whether time propagation is possible for these elements.
func (el OrbitalElements) HasEpoch() bool {
	return el.Epoch != nil
}

// Body is a small body with its orbit and whatever physical data the source
// record carried. Physical fields are zero when absent.
type Body struct {
	ID                string
	Name              string
	SpectralType      string
	AbsoluteMagnitude float64
	Albedo            float64
	DiameterKm        float64
	Elements          OrbitalElements
}

// Dataset is a complete set of bodies from one fetch.
type Dataset struct {
	Source    string
	FetchedAt time.Time
	Bodies    []Body
}
