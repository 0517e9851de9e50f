package carbon

import "math"

// VegetationClass is a coarse density category derived from NDVI.
type VegetationClass string

const (
	ClassDenseForest    VegetationClass = "Dense forest"
	ClassModerateForest VegetationClass = "Moderate forest"
	ClassSparse         VegetationClass = "Sparse vegetation"
	ClassBare           VegetationClass = "Little or no vegetation"
)

// ClassifyNDVI buckets an NDVI value into a vegetation class.
func ClassifyNDVI(ndvi float64) VegetationClass {
	switch {
	case ndvi > 0.6:
		return ClassDenseForest
	case ndvi > 0.4:
		return ClassModerateForest
	case ndvi > 0.2:
		return ClassSparse
	default:
		return ClassBare
	}
}

// ForestCover estimates forest cover percentage from NDVI, linear between 0.2 and 0.7.
func ForestCover(ndvi float64) float64 {
	return math.Max(0, math.Min(100, (ndvi-0.2)*200))
}

// EVIConsistent reports whether EVI and NDVI agree within 0.2.
func EVIConsistent(evi, ndvi float64) bool {
	return math.Abs(evi-ndvi) < 0.2
}

// LAIOptimal reports whether LAI is inside the typical forest range of 4-8 m²/m².
func LAIOptimal(lai float64) bool {
	return lai >= 4 && lai <= 8
}

// Additionality gives a first-pass additionality assessment.
func Additionality(ndvi float64) string {
	if ndvi > 0.5 {
		return "Potential (requires business-as-usual analysis)"
	}
	return "Requires review"
}

// CertificationLevel ranks how likely an area is to qualify for carbon credits.
type CertificationLevel string

const (
	CertificationHigh     CertificationLevel = "high"
	CertificationModerate CertificationLevel = "moderate"
	CertificationLow      CertificationLevel = "low"
)

func Certification(co2 float64) CertificationLevel {
	switch {
	case co2 > 5:
		return CertificationHigh
	case co2 > 2:
		return CertificationModerate
	default:
		return CertificationLow
	}
}

// Description returns the human readable certification assessment.
func (l CertificationLevel) Description() string {
	switch l {
	case CertificationHigh:
		return "High potential for certification"
	case CertificationModerate:
		return "Moderate potential (can improve)"
	default:
		return "Requires management interventions"
	}
}

// CSSClass returns the CSS class used on the result page.
func (l CertificationLevel) CSSClass() string {
	return "cert-" + string(l)
}
