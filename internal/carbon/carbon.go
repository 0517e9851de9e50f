package carbon

import (
	"errors"
	"fmt"
	"math"

	"github.com/lox/afolu/internal/models"
)

// IPCC Tier 1 defaults for tropical forest.
const (
	AGBCoefficient = 10.5
	AGBExponent    = 1.5
	CarbonFraction = 0.47 // carbon content of dry biomass
	CO2PerCarbon   = 3.67 // molecular mass ratio CO2/C

	// Uncertainty shown next to each estimate, in percent.
	UncertaintyPct = 30
)

var ErrInvalidIndex = errors.New("index value out of range")

// AGB returns above-ground biomass in Mg/ha for an NDVI value.
// Negative NDVI carries no biomass and is treated as zero.
func AGB(ndvi float64) float64 {
	if ndvi <= 0 {
		return 0
	}
	return AGBCoefficient * math.Pow(ndvi, AGBExponent)
}

// Carbon converts biomass (Mg/ha) to carbon stock (tC/ha).
func Carbon(agb float64) float64 {
	return agb * CarbonFraction
}

// CO2 converts carbon stock (tC/ha) to CO2 sequestration (tCO2/ha/yr).
func CO2(carbon float64) float64 {
	return carbon * CO2PerCarbon
}

// Estimate runs the full NDVI -> AGB -> carbon -> CO2 chain.
func Estimate(ndvi float64) (models.CarbonStats, error) {
	if err := ValidateIndex("NDVI", ndvi); err != nil {
		return models.CarbonStats{}, err
	}
	agb := AGB(ndvi)
	c := Carbon(agb)
	return models.CarbonStats{
		AGB:    agb,
		Carbon: c,
		CO2:    CO2(c),
	}, nil
}

// ValidateIndex checks that a normalized difference index is finite and in [-1, 1].
func ValidateIndex(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s is not finite: %w", name, ErrInvalidIndex)
	}
	if v < -1 || v > 1 {
		return fmt.Errorf("%s = %.4f outside [-1, 1]: %w", name, v, ErrInvalidIndex)
	}
	return nil
}

// ValidateIndices checks every index returned by an imagery provider.
// EVI is unbounded in theory, so only finiteness is enforced for it and LAI.
func ValidateIndices(s models.IndexStats) error {
	if err := ValidateIndex("NDVI", s.NDVI); err != nil {
		return err
	}
	if err := ValidateIndex("NBR", s.NBR); err != nil {
		return err
	}
	for name, v := range map[string]float64{"EVI": s.EVI, "LAI": s.LAI} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite: %w", name, ErrInvalidIndex)
		}
	}
	return nil
}
