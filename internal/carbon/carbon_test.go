package carbon

import (
	"errors"
	"math"
	"testing"
)

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestEstimate_ReferenceValue(t *testing.T) {
	got, err := Estimate(0.6)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if !approx(got.AGB, 4.88, 0.005) {
		t.Errorf("AGB = %.4f, want ~4.88", got.AGB)
	}
	if !approx(got.Carbon, 2.29, 0.005) {
		t.Errorf("Carbon = %.4f, want ~2.29", got.Carbon)
	}
	if !approx(got.CO2, 8.42, 0.005) {
		t.Errorf("CO2 = %.4f, want ~8.42", got.CO2)
	}
}

func TestEstimate_ExactChain(t *testing.T) {
	for _, ndvi := range []float64{-1, -0.3, 0, 0.05, 0.2, 0.45, 0.6, 0.85, 1} {
		got, err := Estimate(ndvi)
		if err != nil {
			t.Fatalf("Estimate(%v): %v", ndvi, err)
		}
		wantAGB := 0.0
		if ndvi > 0 {
			wantAGB = 10.5 * math.Pow(ndvi, 1.5)
		}
		if got.AGB != wantAGB {
			t.Errorf("AGB(%v) = %v, want %v", ndvi, got.AGB, wantAGB)
		}
		if got.Carbon != wantAGB*0.47 {
			t.Errorf("Carbon(%v) = %v, want %v", ndvi, got.Carbon, wantAGB*0.47)
		}
		if got.CO2 != wantAGB*0.47*3.67 {
			t.Errorf("CO2(%v) = %v, want %v", ndvi, got.CO2, wantAGB*0.47*3.67)
		}
	}
}

func TestEstimate_NegativeNDVIIsZero(t *testing.T) {
	got, err := Estimate(-0.4)
	if err != nil {
		t.Fatal(err)
	}
	if got.AGB != 0 || got.Carbon != 0 || got.CO2 != 0 {
		t.Errorf("Estimate(-0.4) = %+v, want zeros", got)
	}
}

func TestEstimate_Invalid(t *testing.T) {
	for _, ndvi := range []float64{math.NaN(), math.Inf(1), 1.2, -1.01} {
		if _, err := Estimate(ndvi); !errors.Is(err, ErrInvalidIndex) {
			t.Errorf("Estimate(%v) err = %v, want ErrInvalidIndex", ndvi, err)
		}
	}
}

func TestEstimateFinance(t *testing.T) {
	f := EstimateFinance(8, 250)
	if f.PerHectareYear != 120 {
		t.Errorf("PerHectareYear = %v, want 120", f.PerHectareYear)
	}
	if f.Per100HectareYear != 12000 {
		t.Errorf("Per100HectareYear = %v, want 12000", f.Per100HectareYear)
	}
	if f.Projection10Year != 120000 {
		t.Errorf("Projection10Year = %v, want 120000", f.Projection10Year)
	}
	if f.AreaTCO2Year != 2000 {
		t.Errorf("AreaTCO2Year = %v, want 2000", f.AreaTCO2Year)
	}
	if f.Equivalent100ha != 800 {
		t.Errorf("Equivalent100ha = %v, want 800", f.Equivalent100ha)
	}
}
