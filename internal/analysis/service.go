// Package analysis runs the AOI → imagery → carbon pipeline and keeps the
// results in the store.
package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lox/afolu/internal/aoi"
	"github.com/lox/afolu/internal/cache"
	"github.com/lox/afolu/internal/carbon"
	"github.com/lox/afolu/internal/imagery"
	"github.com/lox/afolu/internal/metrics"
	"github.com/lox/afolu/internal/models"
	"github.com/lox/afolu/internal/narrative"
	"github.com/lox/afolu/internal/report"
	"github.com/lox/afolu/internal/store"
)

// ErrInvalidInput wraps every user input validation failure.
var ErrInvalidInput = errors.New("invalid input")

// Land-cover comparison years; the only pair with published WorldCover maps.
const (
	LandCoverFromYear = 2020
	LandCoverToYear   = 2021
)

type Narrator interface {
	Narrate(ctx context.Context, a *models.Analysis) (string, error)
	Model() string
}

type Service struct {
	store    *store.Store
	provider imagery.Provider
	narrator Narrator
	cache    *cache.Cache[imagery.Result]

	now   func() time.Time
	newID func() string
}

// NewService wires the pipeline. provider, narrator and c may be nil: a
// missing provider or narrator surfaces as ErrMissingCredentials, a missing
// cache disables caching.
func NewService(st *store.Store, provider imagery.Provider, narrator Narrator, c *cache.Cache[imagery.Result]) *Service {
	return &Service{
		store:    st,
		provider: provider,
		narrator: narrator,
		cache:    c,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (s *Service) ProviderName() string {
	if s.provider == nil {
		return "unconfigured"
	}
	return s.provider.Name()
}

func (s *Service) NarratorConfigured() bool {
	return s.narrator != nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func parseArea(raw []byte) (*aoi.AOI, []string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return aoi.Default(), []string{aoi.DefaultWarning}, nil
	}
	area, err := aoi.Parse(trimmed)
	if err != nil {
		return nil, nil, invalid("area of interest: %v", err)
	}
	return area, nil, nil
}

// Run validates the parameters, fetches index statistics (from cache when
// possible), derives the carbon estimate and persists the analysis.
func (s *Service) Run(ctx context.Context, p models.AnalysisParams) (*models.Analysis, error) {
	area, warnings, err := parseArea(p.AOI)
	if err != nil {
		return nil, err
	}
	req := imagery.Request{AOI: area, Start: p.StartDate, End: p.EndDate, CloudCover: p.CloudCover}
	if err := req.Validate(); err != nil {
		return nil, invalid("%v", err)
	}
	if s.provider == nil {
		return nil, imagery.ErrMissingCredentials
	}

	provider := s.provider.Name()

	// Index statistics and the land-cover comparison are independent
	// requests; a failed index request cancels the comparison.
	g, gctx := errgroup.WithContext(ctx)
	var res *imagery.Result
	g.Go(func() error {
		var err error
		res, err = s.indexStats(gctx, req)
		return err
	})
	var landCover *models.LandCoverChange
	var landCoverWarning string
	if p.LandCover {
		g.Go(func() error {
			landCover, landCoverWarning = s.landCover(gctx, provider, area)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.AnalysesTotal.WithLabelValues(provider, "error").Inc()
		return nil, err
	}
	if err := carbon.ValidateIndices(res.Indices); err != nil {
		metrics.AnalysesTotal.WithLabelValues(provider, "error").Inc()
		return nil, fmt.Errorf("%s returned unusable indices: %w", provider, err)
	}
	est, err := carbon.Estimate(res.Indices.NDVI)
	if err != nil {
		return nil, fmt.Errorf("estimate carbon: %w", err)
	}

	geometry, err := area.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("encode aoi: %w", err)
	}

	a := &models.Analysis{
		ID:           s.newID(),
		CreatedAt:    s.now().UTC(),
		Provider:     provider,
		AOI:          geometry,
		AreaHectares: area.AreaHectares(),
		StartDate:    p.StartDate,
		EndDate:      p.EndDate,
		CloudCover:   p.CloudCover,
		ImageCount:   res.ImageCount,
		Indices:      res.Indices,
		Carbon:       est,
		LandCover:    landCover,
		Warnings:     warnings,
	}
	if landCoverWarning != "" {
		a.Warnings = append(a.Warnings, landCoverWarning)
	}

	if err := s.store.InsertAnalysis(a); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}
	metrics.AnalysesTotal.WithLabelValues(provider, "ok").Inc()
	log.Printf("analysis: %s %s %.1f ha, NDVI %.3f, CO2 %.2f tCO2/ha/yr",
		a.ID, provider, a.AreaHectares, a.Indices.NDVI, a.Carbon.CO2)
	return a, nil
}

func (s *Service) indexStats(ctx context.Context, req imagery.Request) (*imagery.Result, error) {
	var key string
	if s.cache != nil {
		geometry, err := req.AOI.GeoJSON()
		if err != nil {
			return nil, fmt.Errorf("encode aoi: %w", err)
		}
		key = cache.Key(s.provider.Name(), string(geometry),
			req.Start.Format(time.DateOnly), req.End.Format(time.DateOnly), req.CloudCover)
		if res, ok := s.cache.Get(key); ok {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return &res, nil
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	res, err := s.provider.IndexStats(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(key, *res); err != nil {
			log.Printf("analysis: cache set: %v", err)
		}
	}
	return res, nil
}

// landCover runs the land-cover comparison. Failures come back as a
// warning; the carbon result stands on its own.
func (s *Service) landCover(ctx context.Context, provider string, area *aoi.AOI) (*models.LandCoverChange, string) {
	detector, ok := s.provider.(imagery.ChangeDetector)
	if !ok {
		return nil, fmt.Sprintf("Land cover change is not available from %s.", provider)
	}
	lc, err := detector.LandCoverChange(ctx, area, LandCoverFromYear, LandCoverToYear)
	if err != nil {
		log.Printf("analysis: land cover change from %s: %v", provider, err)
		return nil, fmt.Sprintf("Land cover change could not be computed: %v", err)
	}
	return lc, ""
}

func (s *Service) Get(id string) (*models.Analysis, error) {
	return s.store.GetAnalysis(id)
}

func (s *Service) List(limit int) ([]models.AnalysisSummary, error) {
	return s.store.ListAnalyses(limit)
}

func (s *Service) Delete(id string) error {
	return s.store.DeleteAnalysis(id)
}

// Narrate (re)generates the narrative for a stored analysis. The analysis
// is left untouched when generation fails.
func (s *Service) Narrate(ctx context.Context, id string) (*models.Analysis, error) {
	a, err := s.store.GetAnalysis(id)
	if err != nil {
		return nil, err
	}
	if s.narrator == nil {
		return nil, narrative.ErrMissingCredentials
	}

	text, err := s.narrator.Narrate(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("generate narrative: %w", err)
	}
	if err := s.store.SetNarrative(id, text, s.narrator.Model()); err != nil {
		return nil, err
	}
	return s.store.GetAnalysis(id)
}

// Export is a rendered download.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

const (
	FormatText  = "txt"
	FormatCSV   = "csv"
	FormatChart = "png"
)

func (s *Service) Export(id, format string) (*Export, error) {
	a, err := s.store.GetAnalysis(id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var e Export
	switch format {
	case FormatText:
		e.Data, err = report.Text(a, now)
		e.Filename = report.Filename("report", "txt", now)
		e.ContentType = "text/plain; charset=utf-8"
	case FormatCSV:
		e.Data, err = report.CSV(a)
		e.Filename = report.Filename("data", "csv", now)
		e.ContentType = "text/csv; charset=utf-8"
	case FormatChart:
		e.Data, err = report.Chart(a)
		e.Filename = report.Filename("chart", "png", now)
		e.ContentType = "image/png"
	default:
		return nil, invalid("unknown export format %q", format)
	}
	if err != nil {
		return nil, err
	}
	metrics.ReportsExported.WithLabelValues(format).Inc()
	return &e, nil
}

// Defaults used when a request omits them: the last 365 days and at most
// 10% cloudy pixels.
const (
	DefaultCloudCover = 10.0
	DefaultPeriod     = 365 * 24 * time.Hour
)

func DefaultParams(now time.Time) models.AnalysisParams {
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return models.AnalysisParams{
		StartDate:  end.Add(-DefaultPeriod),
		EndDate:    end,
		CloudCover: DefaultCloudCover,
	}
}
