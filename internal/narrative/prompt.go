package narrative

import (
	"fmt"
	"strings"
	"time"

	"github.com/lox/afolu/internal/carbon"
	"github.com/lox/afolu/internal/models"
)

const systemPrompt = `You are a remote-sensing and forest carbon specialist who writes
technical assessments for AFOLU carbon credit projects. Be precise about
uncertainty and never invent field data.`

// BuildPrompt renders the analysis into the request sent to the model.
func BuildPrompt(a *models.Analysis) string {
	var b strings.Builder

	b.WriteString("PROFESSIONAL AFOLU CARBON POTENTIAL ANALYSIS\n\n")

	b.WriteString("GEOSPATIAL DATA:\n")
	b.WriteString("- Sensor: Sentinel-2 Level-2A (10 m resolution)\n")
	fmt.Fprintf(&b, "- Period: %s to %s\n", a.StartDate.Format(time.DateOnly), a.EndDate.Format(time.DateOnly))
	fmt.Fprintf(&b, "- Maximum cloud cover: %.0f%%\n", a.CloudCover)
	fmt.Fprintf(&b, "- Scenes used: %d\n", a.ImageCount)
	if a.AreaHectares > 0 {
		fmt.Fprintf(&b, "- Area of interest: %.1f ha\n", a.AreaHectares)
	}

	b.WriteString("\nVEGETATION METRICS:\n")
	fmt.Fprintf(&b, "- NDVI: %.3f\n", a.Indices.NDVI)
	b.WriteString("  Scale -1 to +1. >0.6 dense forest, 0.4-0.6 moderate forest, <0.2 little vegetation\n")
	fmt.Fprintf(&b, "- EVI: %.3f\n", a.Indices.EVI)
	b.WriteString("  More sensitive to canopy structure than NDVI\n")
	fmt.Fprintf(&b, "- LAI: %.3f\n", a.Indices.LAI)
	b.WriteString("  Typical forest range: 4-8 m²/m²\n")
	fmt.Fprintf(&b, "- NBR: %.3f\n", a.Indices.NBR)

	b.WriteString("\nCARBON ESTIMATES (IPCC Tier 1):\n")
	fmt.Fprintf(&b, "- Above-ground biomass (AGB): %.2f Mg/ha\n", a.Carbon.AGB)
	fmt.Fprintf(&b, "- Carbon stock: %.2f tC/ha\n", a.Carbon.Carbon)
	fmt.Fprintf(&b, "- CO2 sequestration: %.2f tCO2/ha/yr (±%d%%)\n", a.Carbon.CO2, carbon.UncertaintyPct)

	if lc := a.LandCover; lc != nil {
		b.WriteString("\nLAND COVER CHANGE (ESA WorldCover):\n")
		fmt.Fprintf(&b, "- %d to %d: %.1f%% of pixels changed class\n", lc.FromYear, lc.ToYear, lc.ChangedFraction*100)
	}

	b.WriteString(`
RESPONSE REQUIREMENTS:

1. INDEX INTERPRETATION
   - Assess the quality and reliability of the NDVI/EVI data
   - Identify anomalies or classification limitations
   - Compare with typical ranges for tropical ecosystems

2. METHODOLOGICAL VALIDATION
   - Check conformity with the IPCC 2019 Refinement (AFOLU)
   - Flag critical methodological assumptions
   - Identify sources of uncertainty

3. CARBON ESTIMATE
   - Validate the calculated tCO2/ha/yr figures
   - Give confidence ranges (± percentage)
   - Compare with reference values by ecosystem type

4. CREDIT ELIGIBILITY
   - Does the area meet minimum certification requirements?
   - Recommendations to improve credit potential
   - Next steps for validation and verification

5. STRATEGIC RECOMMENDATIONS
   - Recommended management interventions
   - Suggested monitoring (frequency and method)
   - Carbon revenue estimates

Write a professional analysis suitable for environmental audit reports.
Keep the tone technical but accessible. Use structured markdown with headers.
`)
	return b.String()
}
