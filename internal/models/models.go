package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// AnalysisParams are the user inputs for one analysis run.
type AnalysisParams struct {
	AOI        json.RawMessage // GeoJSON polygon or multipolygon
	StartDate  time.Time
	EndDate    time.Time
	CloudCover float64 // maximum CLOUDY_PIXEL_PERCENTAGE, 0..100
	LandCover  bool    // also run the land-cover change comparison
}

type IndexStats struct {
	NDVI float64 `json:"ndvi"`
	EVI  float64 `json:"evi"`
	LAI  float64 `json:"lai"`
	NBR  float64 `json:"nbr"`
}

type CarbonStats struct {
	AGB    float64 `json:"agb_mg_ha"`
	Carbon float64 `json:"carbon_tc_ha"`
	CO2    float64 `json:"co2_tco2_ha_yr"`
}

type LandCoverChange struct {
	FromYear        int     `json:"from_year"`
	ToYear          int     `json:"to_year"`
	ChangedFraction float64 `json:"changed_fraction"`
	ChangedPixels   float64 `json:"changed_pixels"`
}

type Analysis struct {
	ID             string           `json:"id"`
	CreatedAt      time.Time        `json:"created_at"`
	Provider       string           `json:"provider"`
	AOI            json.RawMessage  `json:"aoi"`
	AreaHectares   float64          `json:"area_ha"`
	StartDate      time.Time        `json:"start_date"`
	EndDate        time.Time        `json:"end_date"`
	CloudCover     float64          `json:"cloud_cover"`
	ImageCount     int              `json:"image_count"`
	Indices        IndexStats       `json:"indices"`
	Carbon         CarbonStats      `json:"carbon"`
	LandCover      *LandCoverChange `json:"land_cover,omitempty"`
	Narrative      sql.NullString   `json:"-"`
	NarrativeModel sql.NullString   `json:"-"`
	NarratedAt     sql.NullTime     `json:"-"`
	Warnings       []string         `json:"warnings,omitempty"`
}

// NarrativeText returns the stored narrative or an empty string.
func (a *Analysis) NarrativeText() string {
	if a.Narrative.Valid {
		return a.Narrative.String
	}
	return ""
}

// AnalysisSummary is the row shape used for history listings.
type AnalysisSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Provider     string    `json:"provider"`
	AreaHectares float64   `json:"area_ha"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	NDVI         float64   `json:"ndvi"`
	CO2          float64   `json:"co2_tco2_ha_yr"`
	HasNarrative bool      `json:"has_narrative"`
}
