package api

import (
	"time"

	"github.com/lox/afolu/internal/carbon"
	"github.com/lox/afolu/internal/models"
	"github.com/lox/afolu/internal/store"
)

// IndexData drives the map page.
type IndexData struct {
	Provider           string
	NarratorConfigured bool
	DefaultStart       time.Time
	DefaultEnd         time.Time
	DefaultCloudCover  float64
	Recent             []models.AnalysisSummary
}

// AnalysisView is an analysis with its derived classifications.
type AnalysisView struct {
	*models.Analysis
	Class              carbon.VegetationClass
	ForestCover        float64
	EVIConsistent      bool
	LAIOptimal         bool
	Additionality      string
	Certification      carbon.CertificationLevel
	Finance            carbon.Finance
	Uncertainty        int
	Narrative          string
	NarratorConfigured bool
}

func newAnalysisView(a *models.Analysis, narratorConfigured bool) AnalysisView {
	return AnalysisView{
		Analysis:           a,
		Class:              carbon.ClassifyNDVI(a.Indices.NDVI),
		ForestCover:        carbon.ForestCover(a.Indices.NDVI),
		EVIConsistent:      carbon.EVIConsistent(a.Indices.EVI, a.Indices.NDVI),
		LAIOptimal:         carbon.LAIOptimal(a.Indices.LAI),
		Additionality:      carbon.Additionality(a.Indices.NDVI),
		Certification:      carbon.Certification(a.Carbon.CO2),
		Finance:            carbon.EstimateFinance(a.Carbon.CO2, a.AreaHectares),
		Uncertainty:        carbon.UncertaintyPct,
		Narrative:          a.NarrativeText(),
		NarratorConfigured: narratorConfigured,
	}
}

// analysisResponse is the JSON shape returned by the API.
type analysisResponse struct {
	*models.Analysis
	Classification string         `json:"classification"`
	ForestCoverPct float64        `json:"forest_cover_pct"`
	Certification  string         `json:"certification"`
	UncertaintyPct int            `json:"uncertainty_pct"`
	Finance        carbon.Finance `json:"finance"`
	Narrative      *string        `json:"narrative"`
	NarrativeModel string         `json:"narrative_model,omitempty"`
	NarratedAt     *time.Time     `json:"narrated_at,omitempty"`
}

func newAnalysisResponse(a *models.Analysis) analysisResponse {
	resp := analysisResponse{
		Analysis:       a,
		Classification: string(carbon.ClassifyNDVI(a.Indices.NDVI)),
		ForestCoverPct: carbon.ForestCover(a.Indices.NDVI),
		Certification:  string(carbon.Certification(a.Carbon.CO2)),
		UncertaintyPct: carbon.UncertaintyPct,
		Finance:        carbon.EstimateFinance(a.Carbon.CO2, a.AreaHectares),
	}
	if a.Narrative.Valid {
		text := a.Narrative.String
		resp.Narrative = &text
		resp.NarrativeModel = a.NarrativeModel.String
	}
	if a.NarratedAt.Valid {
		t := a.NarratedAt.Time
		resp.NarratedAt = &t
	}
	return resp
}

type HealthStatus struct {
	Status           string                       `json:"status"`
	SchemaVersion    int                          `json:"schema_version"`
	Provider         string                       `json:"provider"`
	NarrativeEnabled bool                         `json:"narrative_enabled"`
	Imagery          []store.ImageryHealthSummary `json:"imagery,omitempty"`
	ImageryFailures  int                          `json:"imagery_failures_24h"`
	ImageryErrors    []string                     `json:"imagery_errors_1h,omitempty"`
	Errors           []string                     `json:"errors,omitempty"`
}
