package market

import (
	"math"
	"testing"
)

// TestNormalizeClass verifies taxonomy folding and the unknown-class default.
func TestNormalizeClass(t *testing.T) {
	tests := []struct {
		input       string
		wantClass   string
		wantAssumed bool
	}{
		{"C", "C", false},
		{"Cb", "C", false},
		{"S", "S", false},
		{"Sq", "S", false},
		{"M", "M", false},
		{"X", "M", false},
		{"Q", "S", false},
		{"B", "C", false},
		{"", "C", true},
		{"Z", "C", true},
		{"  V ", "S", false},
	}

	for _, tt := range tests {
		class, assumed := normalizeClass(tt.input)
		if class != tt.wantClass || assumed != tt.wantAssumed {
			t.Errorf("normalizeClass(%q) = (%s, %v), want (%s, %v)",
				tt.input, class, assumed, tt.wantClass, tt.wantAssumed)
		}
	}
}

// TestValuateMass verifies the spherical mass model.
func TestValuateMass(t *testing.T) {
	// 1 km C-type: V = 4/3*pi*(500)^3 m^3, density 1380 kg/m^3.
	est, err := Valuate("C", 1.0)
	if err != nil {
		t.Fatal(err)
	}

	wantMass := 4.0 / 3.0 * math.Pi * 500 * 500 * 500 * 1380
	if math.Abs(est.MassKg-wantMass)/wantMass > 1e-12 {
		t.Errorf("mass = %g, want %g", est.MassKg, wantMass)
	}
	if est.SpectralClass != "C" || est.ClassAssumed {
		t.Errorf("class = %s assumed=%v, want C assumed=false", est.SpectralClass, est.ClassAssumed)
	}
}

// TestValuateTotals verifies total value is the sum over materials and that
// material masses respect the fractions.
func TestValuateTotals(t *testing.T) {
	est, err := Valuate("M", 0.5)
	if err != nil {
		t.Fatal(err)
	}

	var sum float64
	for _, m := range est.Materials {
		wantMass := est.MassKg * m.Fraction
		if math.Abs(m.MassKg-wantMass) > 1e-6*wantMass {
			t.Errorf("%s mass = %g, want %g", m.Name, m.MassKg, wantMass)
		}
		if math.Abs(m.ValueUSD-m.MassKg*m.PricePerKg) > 1e-6*m.ValueUSD {
			t.Errorf("%s value inconsistent", m.Name)
		}
		sum += m.ValueUSD
	}
	if math.Abs(est.TotalValueUSD-sum) > 1e-6*sum {
		t.Errorf("total = %g, want %g", est.TotalValueUSD, sum)
	}
	if est.TotalValueUSD <= 0 {
		t.Error("expected positive total value")
	}
}

// TestValuateUnknownClass verifies unknown types fall back to C and are flagged.
func TestValuateUnknownClass(t *testing.T) {
	est, err := Valuate("", 2.0)
	if err != nil {
		t.Fatal(err)
	}
	if est.SpectralClass != "C" || !est.ClassAssumed {
		t.Errorf("class = %s assumed=%v, want C assumed=true", est.SpectralClass, est.ClassAssumed)
	}
}

// TestValuateNoDiameter verifies the explicit failure on missing diameter.
func TestValuateNoDiameter(t *testing.T) {
	if _, err := Valuate("S", 0); err != ErrNoDiameter {
		t.Errorf("err = %v, want ErrNoDiameter", err)
	}
	if _, err := Valuate("S", -1); err != ErrNoDiameter {
		t.Errorf("err = %v, want ErrNoDiameter", err)
	}
}

// TestDenserClassWorthMore verifies an M-type outvalues a same-size C-type.
func TestDenserClassWorthMore(t *testing.T) {
	c, _ := Valuate("C", 1.0)
	m, _ := Valuate("M", 1.0)
	if m.TotalValueUSD <= c.TotalValueUSD {
		t.Errorf("M total %g should exceed C total %g", m.TotalValueUSD, c.TotalValueUSD)
	}
}
