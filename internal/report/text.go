// Package report renders analyses as downloadable TXT, CSV and PNG files.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/lox/afolu/internal/carbon"
	"github.com/lox/afolu/internal/models"
)

const narrativeUnavailable = "Not available (no narrative was generated for this analysis)."

type textData struct {
	A             *models.Analysis
	GeneratedAt   time.Time
	Class         carbon.VegetationClass
	ForestCover   float64
	EVIConsistent bool
	LAIOptimal    bool
	Additionality string
	Certification carbon.CertificationLevel
	Finance       carbon.Finance
	Uncertainty   int
	Narrative     string
	PriceLow      float64
	PriceHigh     float64
}

var funcs = template.FuncMap{
	"f0":   func(v float64) string { return fmt.Sprintf("%.0f", v) },
	"f1":   func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"f2":   func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"f4":   func(v float64) string { return fmt.Sprintf("%.4f", v) },
	"pct":  func(v float64) string { return fmt.Sprintf("%.1f", v*100) },
	"date": func(t time.Time) string { return t.Format(time.DateOnly) },
	"indent": func(s string) string {
		return "   " + strings.ReplaceAll(s, "\n", "\n   ")
	},
}

var textTmpl = template.Must(template.New("report.txt").Funcs(funcs).Parse(`==========================================================================
            AFOLU CARBON ANALYSIS TECHNICAL REPORT
                  CARBON CREDIT PROJECT ASSESSMENT
==========================================================================

ANALYSIS DATE:   {{.GeneratedAt.Format "2006-01-02 15:04:05"}}
PERIOD ANALYSED: {{date .A.StartDate}} to {{date .A.EndDate}}
ANALYSIS ID:     {{.A.ID}}

--------------------------------------------------------------------------

1. INPUT DATA
   - Sensor: Sentinel-2 Level-2A
   - Resolution: 10 metres
   - NIR band: B8 | Red band: B4 | Blue band: B2 | SWIR band: B12
   - Cloud filter: < {{f0 .A.CloudCover}}%
   - Scenes processed: {{.A.ImageCount}}
   - Processing platform: {{.A.Provider}}
{{- if gt .A.AreaHectares 0.0}}
   - Area of interest: {{f1 .A.AreaHectares}} ha
{{- end}}
{{- range .A.Warnings}}
   ! {{.}}
{{- end}}

2. VEGETATION METRICS

   NDVI (Normalized Difference Vegetation Index):
   |- Value: {{f4 .A.Indices.NDVI}}
   |- Class: {{.Class}}
   '- Estimated forest cover: {{f0 .ForestCover}}%

   EVI (Enhanced Vegetation Index):
   |- Value: {{f4 .A.Indices.EVI}}
   '- Check: {{if .EVIConsistent}}consistent with NDVI{{else}}review NDVI/EVI correlation{{end}}

   LAI (Leaf Area Index):
   |- Value: {{f2 .A.Indices.LAI}} m²/m²
   '- Interpretation: {{if .LAIOptimal}}optimal for forest{{else}}outside typical forest range{{end}}

   NBR (Normalized Burn Ratio):
   '- Value: {{f4 .A.Indices.NBR}}
{{- with .A.LandCover}}

   Land cover change (ESA WorldCover {{.FromYear}}-{{.ToYear}}):
   '- Changed pixels: {{pct .ChangedFraction}}% ({{f0 .ChangedPixels}} px at 10 m)
{{- end}}

3. CARBON ESTIMATION

   Above-ground biomass (AGB):
   |- Value: {{f2 .A.Carbon.AGB}} Mg/ha
   '- Formula: AGB = 10.5 x NDVI^1.5 (IPCC Tier 1)

   Carbon stock:
   |- Value: {{f2 .A.Carbon.Carbon}} tC/ha
   '- Conversion factor: 0.47 (carbon fraction of dry biomass)

   CO2 SEQUESTRATION [KEY METRIC]:
   |- Value: {{f2 .A.Carbon.CO2}} tCO2/ha/yr
   |- Uncertainty: ±{{.Uncertainty}}%
   |- Annual equivalent (100 ha): {{f0 .Finance.Equivalent100ha}} tCO2
{{- if gt .A.AreaHectares 0.0}}
   '- Annual total (area analysed): {{f0 .Finance.AreaTCO2Year}} tCO2
{{- end}}

4. METHODOLOGICAL VALIDATION

   IPCC 2019 conformity:
     - Tier 1 default equations
     - Data: Sentinel-2 (resolution finer than 100 m is acceptable)
     - Period: {{date .A.StartDate}} to {{date .A.EndDate}} (minimum 5 years recommended)

   Known limitations:
     - Field validation recommended
     - Potential uncertainty in heterogeneous canopies
     - Soil carbon not included (requires additional analysis)

5. CARBON CREDIT ELIGIBILITY

   Criteria:
   |- Additionality: {{.Additionality}}
   |- Permanence: review annual changes
   |- Leakage: requires territorial baseline analysis
   '- Verifiability: public data (Sentinel-2)

   Certification potential:
   '- {{.Certification.Description}}

6. EXPERT ANALYSIS (AI)

{{indent .Narrative}}

7. RECOMMENDATIONS

   Immediate (0-3 months):
   [ ] Validate with field data (DBH, minimum 50 trees)
   [ ] Establish permanent GPS control plots
   [ ] Document the full methodology

   Short term (3-6 months):
   [ ] Submit methodology for approval (Verra/Gold Standard)
   [ ] Prepare a Monitoring and Verification Plan
   [ ] Start the degradation baseline

   Medium term (6-12 months):
   [ ] First independent verification
   [ ] Carbon credit issuance
   [ ] Structure revenue and benefit sharing

8. FINANCIAL ESTIMATE

   Reference price (Verra VCS 2024): ${{f0 .PriceLow}}-{{f0 .PriceHigh}}/tCO2

   Annual potential:
   |- Per hectare: ${{f2 .Finance.PerHectareYear}}/yr
   |- Per 100 hectares: ${{f0 .Finance.Per100HectareYear}}/yr
{{- if gt .A.AreaHectares 0.0}}
   '- Area analysed: ${{f0 .Finance.AreaYear}}/yr
{{- end}}

   10-year projection (assuming retention):
   '- ${{f0 .Finance.Projection10Year}} USD (100 ha)

--------------------------------------------------------------------------

RECOMMENDED CERTIFICATIONS:
- VCS (Verified Carbon Standard) - most stringent
- Gold Standard for the SDGs - higher price
- Plan Vivo - community projects

NEXT STEPS:
1. Contact an accredited independent validator
2. Submit the methodology for approval
3. Start the operating period (36 months typical)
4. Annual verification report

--------------------------------------------------------------------------

TECHNICAL REFERENCES:
- IPCC 2019: Refinement to the 2006 IPCC Guidelines
- GFOI Methods Document v3.1
- Verra VCS Standard v4.4
- Gold Standard Carbon Methodologies

CONFIDENTIALITY: This document contains confidential technical information.
Distribution restricted to authorised parties.

==========================================================================
Generated by: AFOLU Carbon Analysis Platform
==========================================================================
`))

// Text renders the full technical report. Output depends only on the
// analysis and now.
func Text(a *models.Analysis, now time.Time) ([]byte, error) {
	narrative := a.NarrativeText()
	if narrative == "" {
		narrative = narrativeUnavailable
	}
	data := textData{
		A:             a,
		GeneratedAt:   now,
		Class:         carbon.ClassifyNDVI(a.Indices.NDVI),
		ForestCover:   carbon.ForestCover(a.Indices.NDVI),
		EVIConsistent: carbon.EVIConsistent(a.Indices.EVI, a.Indices.NDVI),
		LAIOptimal:    carbon.LAIOptimal(a.Indices.LAI),
		Additionality: carbon.Additionality(a.Indices.NDVI),
		Certification: carbon.Certification(a.Carbon.CO2),
		Finance:       carbon.EstimateFinance(a.Carbon.CO2, a.AreaHectares),
		Uncertainty:   carbon.UncertaintyPct,
		Narrative:     narrative,
		PriceLow:      carbon.PriceLowUSD,
		PriceHigh:     carbon.PriceHighUSD,
	}

	var buf bytes.Buffer
	if err := textTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename returns a timestamped download name such as
// carbon_report_20240131_154500.txt.
func Filename(kind, ext string, now time.Time) string {
	return fmt.Sprintf("carbon_%s_%s.%s", kind, now.Format("20060102_150405"), ext)
}
