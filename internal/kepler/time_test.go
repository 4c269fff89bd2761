package kepler

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/aster/astergo/internal/elements"
)

func epochJD(jd float64) *float64 {
	return &jd
}

// TestMeanAnomalyPeriodWrap verifies that advancing exactly one orbital
// period returns the same mean anomaly (mod 360).
func TestMeanAnomalyPeriodWrap(t *testing.T) {
	el := elements.OrbitalElements{
		SemiMajorAxis: 1.46,
		Eccentricity:  0.22,
		MeanAnomaly:   37.5,
		Epoch:         epochJD(J2000),
	}

	P := Period(el.SemiMajorAxis)
	for _, jd := range []float64{J2000, J2000 + 123.4, J2000 - 2000} {
		m1, err := MeanAnomalyAt(el, jd)
		if err != nil {
			t.Fatalf("MeanAnomalyAt(%f) failed: %v", jd, err)
		}
		m2, err := MeanAnomalyAt(el, jd+P)
		if err != nil {
			t.Fatalf("MeanAnomalyAt(%f) failed: %v", jd+P, err)
		}

		diff := math.Abs(m1 - m2)
		if diff > 180 {
			diff = 360 - diff
		}
		if diff > 1e-6 {
			t.Errorf("jd=%f: anomaly %f vs %f after one period, want equal", jd, m1, m2)
		}
		if m1 < 0 || m1 >= 360 {
			t.Errorf("jd=%f: anomaly %f outside [0, 360)", jd, m1)
		}
	}
}

// TestMeanAnomalyAtEpoch verifies the stored anomaly is returned at the
// epoch itself.
func TestMeanAnomalyAtEpoch(t *testing.T) {
	el := elements.OrbitalElements{
		SemiMajorAxis: 2.2,
		MeanAnomaly:   211.25,
		Epoch:         epochJD(2460000.5),
	}

	m, err := MeanAnomalyAt(el, 2460000.5)
	if err != nil {
		t.Fatalf("MeanAnomalyAt failed: %v", err)
	}
	if math.Abs(m-211.25) > 1e-9 {
		t.Errorf("anomaly at epoch = %f, want 211.25", m)
	}
}

// TestMissingEpochFails verifies every time-propagation entry point fails
// loudly with ErrNoEpoch instead of silently reusing the stored anomaly.
func TestMissingEpochFails(t *testing.T) {
	el := elements.OrbitalElements{SemiMajorAxis: 1.0, MeanAnomaly: 45}

	if _, err := MeanAnomalyAt(el, J2000); !errors.Is(err, ErrNoEpoch) {
		t.Errorf("MeanAnomalyAt error = %v, want ErrNoEpoch", err)
	}
	if _, err := ElementsAt(el, J2000); !errors.Is(err, ErrNoEpoch) {
		t.Errorf("ElementsAt error = %v, want ErrNoEpoch", err)
	}
	if _, err := PositionAt(el, J2000); !errors.Is(err, ErrNoEpoch) {
		t.Errorf("PositionAt error = %v, want ErrNoEpoch", err)
	}
}

// TestElementsAtDoesNotMutate verifies time propagation copies the elements.
func TestElementsAtDoesNotMutate(t *testing.T) {
	el := elements.OrbitalElements{
		SemiMajorAxis: 1.0,
		MeanAnomaly:   10,
		Epoch:         epochJD(J2000),
	}

	at, err := ElementsAt(el, J2000+100)
	if err != nil {
		t.Fatalf("ElementsAt failed: %v", err)
	}
	if el.MeanAnomaly != 10 {
		t.Errorf("input mutated: MeanAnomaly = %f, want 10", el.MeanAnomaly)
	}
	if at.MeanAnomaly == 10 {
		t.Error("output anomaly unchanged after 100 days on a 1 AU orbit")
	}
}

// TestJ2000Scenario runs the reference end-to-end scenario: a 1 AU, e=0.2
// orbit at perihelion on J2000, at aphelion half a period later.
func TestJ2000Scenario(t *testing.T) {
	el := elements.OrbitalElements{
		SemiMajorAxis:   1.0,
		Eccentricity:    0.2,
		Inclination:     10,
		AscendingNode:   80,
		ArgOfPerihelion: 50,
		MeanAnomaly:     0,
		Epoch:           epochJD(J2000),
	}

	// M = 0 is perihelion: r = a(1-e) = 0.8 AU.
	if r := Position(el).Radius(); math.Abs(r-0.8) > 1e-6 {
		t.Errorf("perihelion radius = %.8f AU, want 0.8", r)
	}

	// Half a period later the body is at aphelion: r = a(1+e) = 1.2 AU.
	half := J2000 + Period(1.0)/2
	p, err := PositionAt(el, half)
	if err != nil {
		t.Fatalf("PositionAt failed: %v", err)
	}
	if r := p.Radius(); math.Abs(r-1.2) > 1e-4 {
		t.Errorf("aphelion radius = %.8f AU, want 1.2", r)
	}
}

// TestPeriod spot-checks Kepler's third law in the solar approximation.
func TestPeriod(t *testing.T) {
	tests := []struct {
		a    float64
		want float64
	}{
		{1.0, 365.25},
		{4.0, 2922.0}, // 8 years
	}
	for _, tt := range tests {
		if got := Period(tt.a); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Period(%.1f) = %f, want %f", tt.a, got, tt.want)
		}
	}
}

// TestJDRoundTrip verifies the Julian Date conversion against the J2000
// reference instant and round-trips a modern timestamp.
func TestJDRoundTrip(t *testing.T) {
	j2000 := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	if jd := JD(j2000); math.Abs(jd-J2000) > 1e-9 {
		t.Errorf("JD(J2000) = %f, want %f", jd, J2000)
	}

	now := time.Date(2026, 8, 25, 6, 30, 0, 0, time.UTC)
	back := JDTime(JD(now))
	if d := back.Sub(now); d < -time.Millisecond || d > time.Millisecond {
		t.Errorf("round trip drift = %v for %v", d, now)
	}
}
