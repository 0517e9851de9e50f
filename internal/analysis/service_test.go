package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/afolu/internal/aoi"
	"github.com/lox/afolu/internal/cache"
	"github.com/lox/afolu/internal/imagery"
	"github.com/lox/afolu/internal/models"
	"github.com/lox/afolu/internal/narrative"
	"github.com/lox/afolu/internal/store"
)

type fakeProvider struct {
	calls  int
	result *imagery.Result
	err    error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) IndexStats(ctx context.Context, req imagery.Request) (*imagery.Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	r := *p.result
	return &r, nil
}

type fakeDetector struct {
	fakeProvider
	change *models.LandCoverChange
	err    error
}

func (d *fakeDetector) LandCoverChange(ctx context.Context, area *aoi.AOI, from, to int) (*models.LandCoverChange, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.change, nil
}

type fakeNarrator struct {
	text string
	err  error
}

func (n *fakeNarrator) Narrate(ctx context.Context, a *models.Analysis) (string, error) {
	return n.text, n.err
}

func (n *fakeNarrator) Model() string { return "fake-model" }

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

const square = `{"type":"Polygon","coordinates":[[[0,0],[0.009,0],[0.009,0.009],[0,0.009],[0,0]]]}`

func params() models.AnalysisParams {
	return models.AnalysisParams{
		AOI:        json.RawMessage(square),
		StartDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		CloudCover: 20,
	}
}

func goodResult() *imagery.Result {
	return &imagery.Result{
		Indices:    models.IndexStats{NDVI: 0.6, EVI: 0.45, LAI: 1.8, NBR: 0.4},
		ImageCount: 9,
	}
}

func TestRun(t *testing.T) {
	st := setupTestStore(t)
	provider := &fakeProvider{result: goodResult()}
	svc := NewService(st, provider, nil, nil)
	svc.newID = func() string { return "fixed-id" }

	a, err := svc.Run(context.Background(), params())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if a.ID != "fixed-id" || a.Provider != "fake" || a.ImageCount != 9 {
		t.Errorf("analysis = %+v", a)
	}
	if math.Abs(a.Carbon.CO2-8.41744) > 1e-4 {
		t.Errorf("CO2 = %v, want ~8.41744", a.Carbon.CO2)
	}
	if a.AreaHectares < 95 || a.AreaHectares > 105 {
		t.Errorf("AreaHectares = %v, want ~100", a.AreaHectares)
	}
	if len(a.Warnings) != 0 {
		t.Errorf("Warnings = %v", a.Warnings)
	}

	stored, err := svc.Get("fixed-id")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Indices != a.Indices {
		t.Errorf("stored indices = %+v", stored.Indices)
	}
}

func TestRun_DefaultAOI(t *testing.T) {
	svc := NewService(setupTestStore(t), &fakeProvider{result: goodResult()}, nil, nil)

	p := params()
	p.AOI = nil
	a, err := svc.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(a.Warnings) != 1 || a.Warnings[0] != aoi.DefaultWarning {
		t.Errorf("Warnings = %v", a.Warnings)
	}
	if a.AreaHectares < 30000 {
		t.Errorf("AreaHectares = %v, want default ~31400", a.AreaHectares)
	}
}

func TestRun_Validation(t *testing.T) {
	svc := NewService(setupTestStore(t), &fakeProvider{result: goodResult()}, nil, nil)

	tests := []struct {
		name   string
		modify func(*models.AnalysisParams)
	}{
		{"bad geojson", func(p *models.AnalysisParams) { p.AOI = json.RawMessage(`{"type":"Point","coordinates":[0,0]}`) }},
		{"reversed dates", func(p *models.AnalysisParams) { p.StartDate, p.EndDate = p.EndDate, p.StartDate }},
		{"cloud cover", func(p *models.AnalysisParams) { p.CloudCover = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := params()
			tt.modify(&p)
			if _, err := svc.Run(context.Background(), p); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestRun_MissingProvider(t *testing.T) {
	svc := NewService(setupTestStore(t), nil, nil, nil)
	if _, err := svc.Run(context.Background(), params()); !errors.Is(err, imagery.ErrMissingCredentials) {
		t.Errorf("err = %v, want ErrMissingCredentials", err)
	}
	if svc.ProviderName() != "unconfigured" {
		t.Errorf("ProviderName = %q", svc.ProviderName())
	}
}

func TestRun_ProviderErrors(t *testing.T) {
	svc := NewService(setupTestStore(t), &fakeProvider{err: imagery.ErrNoImagery}, nil, nil)
	if _, err := svc.Run(context.Background(), params()); !errors.Is(err, imagery.ErrNoImagery) {
		t.Errorf("err = %v, want ErrNoImagery", err)
	}

	bad := goodResult()
	bad.Indices.NDVI = 1.7
	svc = NewService(setupTestStore(t), &fakeProvider{result: bad}, nil, nil)
	if _, err := svc.Run(context.Background(), params()); err == nil {
		t.Error("expected error for out-of-range NDVI")
	}
}

func TestRun_UsesCache(t *testing.T) {
	provider := &fakeProvider{result: goodResult()}
	c := cache.New[imagery.Result](t.TempDir(), time.Hour)
	svc := NewService(setupTestStore(t), provider, nil, c)

	for i := 0; i < 2; i++ {
		if _, err := svc.Run(context.Background(), params()); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}

	p := params()
	p.CloudCover = 30
	if _, err := svc.Run(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if provider.calls != 2 {
		t.Errorf("provider calls = %d, want 2 after changing cloud cover", provider.calls)
	}
}

func TestRun_LandCover(t *testing.T) {
	detector := &fakeDetector{
		fakeProvider: fakeProvider{result: goodResult()},
		change:       &models.LandCoverChange{FromYear: 2020, ToYear: 2021, ChangedFraction: 0.1},
	}
	svc := NewService(setupTestStore(t), detector, nil, nil)

	p := params()
	p.LandCover = true
	a, err := svc.Run(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if a.LandCover == nil || a.LandCover.ChangedFraction != 0.1 {
		t.Errorf("LandCover = %+v", a.LandCover)
	}

	detector.err = errors.New("quota")
	a, err = svc.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("land cover failure should not fail the run: %v", err)
	}
	if a.LandCover != nil || len(a.Warnings) != 1 || !strings.Contains(a.Warnings[0], "quota") {
		t.Errorf("LandCover = %+v, Warnings = %v", a.LandCover, a.Warnings)
	}

	svc = NewService(setupTestStore(t), &fakeProvider{result: goodResult()}, nil, nil)
	a, err = svc.Run(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Warnings) != 1 || !strings.Contains(a.Warnings[0], "not available") {
		t.Errorf("Warnings = %v", a.Warnings)
	}
}

func TestNarrate(t *testing.T) {
	st := setupTestStore(t)
	narrator := &fakeNarrator{text: "## Interpretation\nHealthy canopy."}
	svc := NewService(st, &fakeProvider{result: goodResult()}, narrator, nil)

	a, err := svc.Run(context.Background(), params())
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.Narrate(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Narrate: %v", err)
	}
	if got.NarrativeText() != narrator.text || got.NarrativeModel.String != "fake-model" {
		t.Errorf("narrative = %q (%q)", got.NarrativeText(), got.NarrativeModel.String)
	}

	narrator.err = errors.New("upstream down")
	if _, err := svc.Narrate(context.Background(), a.ID); err == nil {
		t.Error("expected narrator error")
	}
	kept, _ := svc.Get(a.ID)
	if kept.NarrativeText() != narrator.text {
		t.Error("failed regeneration should keep the previous narrative")
	}

	if _, err := svc.Narrate(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	svc = NewService(st, nil, nil, nil)
	if _, err := svc.Narrate(context.Background(), a.ID); !errors.Is(err, narrative.ErrMissingCredentials) {
		t.Errorf("err = %v, want narrative.ErrMissingCredentials", err)
	}
}

func TestExport(t *testing.T) {
	svc := NewService(setupTestStore(t), &fakeProvider{result: goodResult()}, nil, nil)
	svc.now = func() time.Time { return time.Date(2025, 3, 4, 15, 4, 5, 0, time.UTC) }

	a, err := svc.Run(context.Background(), params())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		format, filename, contentType string
	}{
		{FormatText, "carbon_report_20250304_150405.txt", "text/plain; charset=utf-8"},
		{FormatCSV, "carbon_data_20250304_150405.csv", "text/csv; charset=utf-8"},
		{FormatChart, "carbon_chart_20250304_150405.png", "image/png"},
	}
	for _, tt := range tests {
		e, err := svc.Export(a.ID, tt.format)
		if err != nil {
			t.Errorf("Export(%s): %v", tt.format, err)
			continue
		}
		if e.Filename != tt.filename || e.ContentType != tt.contentType || len(e.Data) == 0 {
			t.Errorf("Export(%s) = %q %q %d bytes", tt.format, e.Filename, e.ContentType, len(e.Data))
		}
	}

	if _, err := svc.Export(a.ID, "pdf"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.Export("missing", FormatText); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
