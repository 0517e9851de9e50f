package carbon

// Reference voluntary market price range (Verra VCS 2024), USD per tCO2.
const (
	PriceLowUSD  = 15.0
	PriceHighUSD = 18.0

	referenceHectares = 100
	projectionYears   = 10
)

// Finance holds revenue estimates at the low reference price.
type Finance struct {
	PerHectareYear    float64 `json:"usd_per_ha_yr"`
	Per100HectareYear float64 `json:"usd_per_100ha_yr"`
	Projection10Year  float64 `json:"usd_100ha_10yr"`
	AreaYear          float64 `json:"usd_area_yr"`
	AreaTCO2Year      float64 `json:"tco2_area_yr"`
	Equivalent100ha   float64 `json:"tco2_100ha_yr"`
}

// EstimateFinance projects carbon revenue from a per-hectare CO2 rate.
// Projections assume the stock is retained for the whole period.
func EstimateFinance(co2PerHa, areaHa float64) Finance {
	perHa := co2PerHa * PriceLowUSD
	return Finance{
		PerHectareYear:    perHa,
		Per100HectareYear: perHa * referenceHectares,
		Projection10Year:  perHa * referenceHectares * projectionYears,
		AreaYear:          perHa * areaHa,
		AreaTCO2Year:      co2PerHa * areaHa,
		Equivalent100ha:   co2PerHa * referenceHectares,
	}
}
