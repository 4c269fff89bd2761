package kepler

import (
	"math"
	"testing"

	"github.com/aster/astergo/internal/elements"
)

// TestSolveKeplerConvergence sweeps eccentricity and mean anomaly across the
// supported range and verifies the solver residual stays below 1e-4 rad.
func TestSolveKeplerConvergence(t *testing.T) {
	for e := 0.0; e <= 0.95; e += 0.05 {
		for deg := 0.0; deg < 360; deg += 1.0 {
			M := deg * math.Pi / 180
			E := SolveKepler(M, e)
			residual := math.Abs(E - e*math.Sin(E) - M)
			if residual >= 1e-4 {
				t.Fatalf("e=%.2f M=%.0f°: residual = %g, want < 1e-4", e, deg, residual)
			}
		}
	}
}

// TestPathClosedLoop verifies the sampled path repeats its first sample as
// the last, and that its radial extremes match perihelion and aphelion.
func TestPathClosedLoop(t *testing.T) {
	tests := []struct {
		name string
		a, e float64
	}{
		{"circular unit orbit", 1.0, 0.0},
		{"main belt typical", 2.77, 0.08},
		{"eccentric NEO", 1.46, 0.22},
		{"high eccentricity", 3.1, 0.83},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := elements.OrbitalElements{
				SemiMajorAxis:   tt.a,
				Eccentricity:    tt.e,
				Inclination:     12.5,
				AscendingNode:   60,
				ArgOfPerihelion: 30,
			}

			path := Path(el, 180)
			if len(path) != 181 {
				t.Fatalf("len(path) = %d, want 181", len(path))
			}
			if path[0] != path[len(path)-1] {
				t.Errorf("path not closed: first %v last %v", path[0], path[len(path)-1])
			}

			minR, maxR := math.Inf(1), 0.0
			for _, p := range path {
				r := p.Radius()
				minR = math.Min(minR, r)
				maxR = math.Max(maxR, r)
			}

			peri := tt.a * (1 - tt.e)
			aph := tt.a * (1 + tt.e)
			if math.Abs(minR-peri) > 1e-4 {
				t.Errorf("min radius = %.6f AU, want perihelion %.6f", minR, peri)
			}
			if math.Abs(maxR-aph) > 1e-4 {
				t.Errorf("max radius = %.6f AU, want aphelion %.6f", maxR, aph)
			}
		})
	}
}

// TestPathDefaultSamples verifies n <= 0 falls back to the documented default.
func TestPathDefaultSamples(t *testing.T) {
	el := elements.OrbitalElements{SemiMajorAxis: 1.5, Eccentricity: 0.1}
	path := Path(el, 0)
	if len(path) != DefaultPathSamples+1 {
		t.Errorf("len(path) = %d, want %d", len(path), DefaultPathSamples+1)
	}
}

// TestCircularOrbitDegeneracy checks that e = 0 degenerates cleanly: E = M,
// v = M, and the distance from the origin is a for every mean anomaly.
func TestCircularOrbitDegeneracy(t *testing.T) {
	for deg := 0.0; deg < 360; deg += 15 {
		M := deg * math.Pi / 180
		E := SolveKepler(M, 0)
		if math.Abs(E-M) > 1e-12 {
			t.Errorf("M=%.0f°: E = %g, want %g", deg, E, M)
		}

		v := TrueAnomaly(E, 0)
		// Compare direction, not wrapped value: atan2 wraps to (-π, π].
		if math.Abs(math.Mod(v-M+3*math.Pi, 2*math.Pi)-math.Pi) > 1e-12 {
			t.Errorf("M=%.0f°: true anomaly = %g, want %g (mod 2π)", deg, v, M)
		}

		el := elements.OrbitalElements{
			SemiMajorAxis:   2.5,
			Inclination:     25,
			AscendingNode:   110,
			ArgOfPerihelion: 45,
			MeanAnomaly:     deg,
		}
		r := Position(el).Radius()
		if math.Abs(r-2.5) > 1e-9 {
			t.Errorf("M=%.0f°: radius = %.12f AU, want 2.5", deg, r)
		}
	}
}

// TestPositionIdempotent verifies repeated calls with identical elements
// yield bit-identical output.
func TestPositionIdempotent(t *testing.T) {
	el := elements.OrbitalElements{
		SemiMajorAxis:   1.46,
		Eccentricity:    0.22,
		Inclination:     10.8,
		AscendingNode:   304.3,
		ArgOfPerihelion: 178.9,
		MeanAnomaly:     320.1,
	}

	p1 := Position(el)
	p2 := Position(el)
	if p1 != p2 {
		t.Errorf("positions differ across calls: %v vs %v", p1, p2)
	}
}

// BenchmarkPosition measures a single position solve.
func BenchmarkPosition(b *testing.B) {
	el := elements.OrbitalElements{
		SemiMajorAxis:   2.77,
		Eccentricity:    0.23,
		Inclination:     34.8,
		AscendingNode:   80.3,
		ArgOfPerihelion: 73.6,
		MeanAnomaly:     95.2,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Position(el)
	}
}
