package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/afolu/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func testAnalysis(id string, created time.Time) *models.Analysis {
	return &models.Analysis{
		ID:           id,
		CreatedAt:    created,
		Provider:     "earthengine",
		AOI:          json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`),
		AreaHectares: 1234.5,
		StartDate:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		CloudCover:   20,
		ImageCount:   42,
		Indices:      models.IndexStats{NDVI: 0.6, EVI: 0.45, LAI: 3.2, NBR: 0.5},
		Carbon:       models.CarbonStats{AGB: 4.88, Carbon: 2.29, CO2: 8.42},
	}
}

func TestInsertAndGetAnalysis(t *testing.T) {
	store := setupTestStore(t)

	a := testAnalysis("a1", time.Now().UTC())
	a.LandCover = &models.LandCoverChange{FromYear: 2020, ToYear: 2021, ChangedFraction: 0.12, ChangedPixels: 340}
	a.Warnings = []string{"default area used"}

	if err := store.InsertAnalysis(a); err != nil {
		t.Fatalf("InsertAnalysis: %v", err)
	}

	got, err := store.GetAnalysis("a1")
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if got.Provider != "earthengine" {
		t.Errorf("Provider = %q, want earthengine", got.Provider)
	}
	if got.Indices != a.Indices {
		t.Errorf("Indices = %+v, want %+v", got.Indices, a.Indices)
	}
	if got.Carbon != a.Carbon {
		t.Errorf("Carbon = %+v, want %+v", got.Carbon, a.Carbon)
	}
	if got.ImageCount != 42 {
		t.Errorf("ImageCount = %d, want 42", got.ImageCount)
	}
	if !got.StartDate.Equal(a.StartDate) || !got.EndDate.Equal(a.EndDate) {
		t.Errorf("dates = %v..%v, want %v..%v", got.StartDate, got.EndDate, a.StartDate, a.EndDate)
	}
	if got.LandCover == nil || got.LandCover.ChangedFraction != 0.12 {
		t.Errorf("LandCover = %+v", got.LandCover)
	}
	if len(got.Warnings) != 1 || got.Warnings[0] != "default area used" {
		t.Errorf("Warnings = %v", got.Warnings)
	}
	if got.Narrative.Valid {
		t.Error("Narrative should be unset")
	}
}

func TestGetAnalysis_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetAnalysis("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListAnalyses_NewestFirst(t *testing.T) {
	store := setupTestStore(t)

	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		if err := store.InsertAnalysis(testAnalysis(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.SetNarrative("mid", "text", "gpt-4o-mini"); err != nil {
		t.Fatal(err)
	}

	list, err := store.ListAnalyses(2)
	if err != nil {
		t.Fatalf("ListAnalyses: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].ID != "new" || list[1].ID != "mid" {
		t.Errorf("order = %s, %s; want new, mid", list[0].ID, list[1].ID)
	}
	if list[0].HasNarrative || !list[1].HasNarrative {
		t.Errorf("HasNarrative = %v, %v; want false, true", list[0].HasNarrative, list[1].HasNarrative)
	}
	if list[0].CO2 != 8.42 {
		t.Errorf("CO2 = %v, want 8.42", list[0].CO2)
	}
}

func TestSetNarrative(t *testing.T) {
	store := setupTestStore(t)

	if err := store.InsertAnalysis(testAnalysis("a1", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
	if err := store.SetNarrative("a1", "## Interpretation", "gpt-4o-mini"); err != nil {
		t.Fatalf("SetNarrative: %v", err)
	}

	got, err := store.GetAnalysis("a1")
	if err != nil {
		t.Fatal(err)
	}
	if got.NarrativeText() != "## Interpretation" {
		t.Errorf("Narrative = %q", got.NarrativeText())
	}
	if got.NarrativeModel.String != "gpt-4o-mini" {
		t.Errorf("NarrativeModel = %q", got.NarrativeModel.String)
	}
	if !got.NarratedAt.Valid {
		t.Error("NarratedAt should be set")
	}

	if err := store.SetNarrative("missing", "x", "m"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetNarrative(missing) err = %v, want ErrNotFound", err)
	}
}

func TestDeleteAnalysis(t *testing.T) {
	store := setupTestStore(t)

	if err := store.InsertAnalysis(testAnalysis("a1", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteAnalysis("a1"); err != nil {
		t.Fatalf("DeleteAnalysis: %v", err)
	}
	if _, err := store.GetAnalysis("a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAnalysis after delete err = %v", err)
	}
	if err := store.DeleteAnalysis("a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestImageryRun_StartAndComplete(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.StartImageryRun("earthengine", "value:compute")
	if err != nil {
		t.Fatalf("StartImageryRun: %v", err)
	}
	if run.ID == 0 {
		t.Error("run.ID should be set")
	}

	run.HTTPStatus = sql.NullInt64{Int64: 200, Valid: true}
	run.ResponseSizeBytes = sql.NullInt64{Int64: 512, Valid: true}
	run.Attempts = sql.NullInt64{Int64: 1, Valid: true}
	run.Success = true
	if err := store.CompleteImageryRun(run); err != nil {
		t.Fatalf("CompleteImageryRun: %v", err)
	}

	failed, err := store.StartImageryRun("earthengine", "value:compute")
	if err != nil {
		t.Fatal(err)
	}
	failed.HTTPStatus = sql.NullInt64{Int64: 429, Valid: true}
	failed.ErrorMessage = sql.NullString{String: "quota exceeded", Valid: true}
	if err := store.CompleteImageryRun(failed); err != nil {
		t.Fatal(err)
	}

	health, err := store.GetImageryHealth(1)
	if err != nil {
		t.Fatalf("GetImageryHealth: %v", err)
	}
	var found bool
	for _, h := range health {
		if h.Provider == "earthengine" && h.Endpoint == "value:compute" {
			found = true
			if h.TotalRuns != 2 || h.SuccessRuns != 1 || h.FailedRuns != 1 {
				t.Errorf("health = %+v, want 2 runs, 1 success, 1 failed", h)
			}
			if h.TotalBytes != 512 {
				t.Errorf("TotalBytes = %d, want 512", h.TotalBytes)
			}
		}
	}
	if !found {
		t.Error("expected health summary for earthengine/value:compute")
	}

	errs, err := store.GetRecentImageryErrors(10)
	if err != nil {
		t.Fatalf("GetRecentImageryErrors: %v", err)
	}
	if len(errs) != 1 || errs[0].ErrorMessage.String != "quota exceeded" {
		t.Errorf("errors = %+v", errs)
	}

	if err := store.CompleteImageryRun(nil); err != nil {
		t.Errorf("CompleteImageryRun(nil) = %v", err)
	}
}

func TestRawPayload_StoreAndDedupe(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.StartImageryRun("copernicus", "statistics")
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte(`{"data":[{"interval":{"from":"2024-01-01"}}]}`)

	id, err := store.StoreRawPayload(&run.ID, "copernicus", "statistics", payload)
	if err != nil {
		t.Fatalf("StoreRawPayload: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero payload id")
	}

	dup, err := store.StoreRawPayload(nil, "copernicus", "statistics", payload)
	if err != nil {
		t.Fatal(err)
	}
	if dup != 0 {
		t.Errorf("duplicate id = %d, want 0", dup)
	}

	got, err := store.GetRawPayload(id)
	if err != nil {
		t.Fatalf("GetRawPayload: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("payload = %s, want %s", got, payload)
	}

	stats, err := store.GetRawPayloadStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalCount != 1 || stats.CountByProvider["copernicus"] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	deleted, err := store.CleanupOldRawPayloads(30)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0 for fresh payload", deleted)
	}
}

func TestMigrationVersion(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("MigrationVersion = %d, want %d", version, len(migrations))
	}

	if err := store.Migrate(); err != nil {
		t.Errorf("second Migrate: %v", err)
	}
}

func TestOpen_ConcurrentWriters(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "afolu.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers*3)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := store.StartImageryRun("earthengine", "value:compute")
			if err != nil {
				errs <- fmt.Errorf("StartImageryRun: %w", err)
				return
			}
			run.Success = true
			if err := store.CompleteImageryRun(run); err != nil {
				errs <- fmt.Errorf("CompleteImageryRun: %w", err)
			}
			if err := store.InsertAnalysis(testAnalysis(fmt.Sprintf("a%d", i), time.Now().UTC())); err != nil {
				errs <- fmt.Errorf("InsertAnalysis: %w", err)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	list, err := store.ListAnalyses(writers * 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != writers {
		t.Errorf("stored %d analyses, want %d", len(list), writers)
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestUpstreamFailures(t *testing.T) {
	store := setupTestStore(t)

	complete := func(status int64, msg string) {
		t.Helper()
		run, err := store.StartImageryRun("earthengine", "value:compute")
		if err != nil {
			t.Fatal(err)
		}
		if status != 0 {
			run.HTTPStatus = sql.NullInt64{Int64: status, Valid: true}
		}
		if msg != "" {
			run.ErrorMessage = sql.NullString{String: msg, Valid: true}
		}
		run.Success = msg == ""
		if err := store.CompleteImageryRun(run); err != nil {
			t.Fatal(err)
		}
	}

	complete(200, "")
	complete(400, "earthengine value:compute: status 400: geometry has too many edges")
	complete(0, "earthengine value:compute: context canceled")
	complete(503, "earthengine value:compute: status 503: backend unavailable")
	complete(0, "earthengine value:compute: dial tcp: connection refused")
	if _, err := store.StartImageryRun("earthengine", "value:compute"); err != nil {
		t.Fatal(err)
	}

	n, err := store.CountUpstreamFailures(24)
	if err != nil {
		t.Fatalf("CountUpstreamFailures: %v", err)
	}
	if n != 2 {
		t.Errorf("CountUpstreamFailures = %d, want 2 (503 and connection refused)", n)
	}

	runs, err := store.GetRecentUpstreamFailures(1, 10)
	if err != nil {
		t.Fatalf("GetRecentUpstreamFailures: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("GetRecentUpstreamFailures = %d runs, want 2", len(runs))
	}
	for _, r := range runs {
		if r.HTTPStatus.Valid && r.HTTPStatus.Int64 < 500 {
			t.Errorf("unexpected client error run %+v", r)
		}
	}
}
