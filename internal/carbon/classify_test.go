package carbon

import "testing"

func TestClassifyNDVI(t *testing.T) {
	tests := []struct {
		ndvi float64
		want VegetationClass
	}{
		{0.75, ClassDenseForest},
		{0.61, ClassDenseForest},
		{0.6, ClassModerateForest},
		{0.41, ClassModerateForest},
		{0.4, ClassSparse},
		{0.21, ClassSparse},
		{0.2, ClassBare},
		{-0.3, ClassBare},
	}
	for _, tt := range tests {
		if got := ClassifyNDVI(tt.ndvi); got != tt.want {
			t.Errorf("ClassifyNDVI(%v) = %q, want %q", tt.ndvi, got, tt.want)
		}
	}
}

func TestForestCover(t *testing.T) {
	tests := []struct {
		ndvi float64
		want float64
	}{
		{0.1, 0},
		{0.2, 0},
		{0.45, 50},
		{0.7, 100},
		{0.95, 100},
	}
	for _, tt := range tests {
		if got := ForestCover(tt.ndvi); !approx(got, tt.want, 1e-9) {
			t.Errorf("ForestCover(%v) = %v, want %v", tt.ndvi, got, tt.want)
		}
	}
}

func TestChecks(t *testing.T) {
	if !EVIConsistent(0.5, 0.6) {
		t.Error("EVI 0.5 vs NDVI 0.6 should be consistent")
	}
	if EVIConsistent(0.3, 0.6) {
		t.Error("EVI 0.3 vs NDVI 0.6 should not be consistent")
	}
	if !LAIOptimal(4) || !LAIOptimal(8) {
		t.Error("LAI range bounds are inclusive")
	}
	if LAIOptimal(3.99) || LAIOptimal(8.01) {
		t.Error("LAI outside 4-8 should not be optimal")
	}
	if Additionality(0.51) == Additionality(0.5) {
		t.Error("additionality should change above 0.5")
	}
}

func TestCertification(t *testing.T) {
	tests := []struct {
		co2  float64
		want CertificationLevel
	}{
		{8.42, CertificationHigh},
		{5, CertificationModerate},
		{2.1, CertificationModerate},
		{2, CertificationLow},
		{0, CertificationLow},
	}
	for _, tt := range tests {
		if got := Certification(tt.co2); got != tt.want {
			t.Errorf("Certification(%v) = %q, want %q", tt.co2, got, tt.want)
		}
	}
	if CertificationHigh.CSSClass() != "cert-high" {
		t.Errorf("CSSClass = %q", CertificationHigh.CSSClass())
	}
}
