package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/lox/afolu/internal/models"
)

// ErrNotFound is returned when an analysis ID does not exist.
var ErrNotFound = errors.New("analysis not found")

type Store struct {
	db *sql.DB
}

// Open opens the sqlite database at path. The pragmas ride on the DSN so
// every pooled connection waits on the write lock instead of failing with
// SQLITE_BUSY.
func Open(path string) (*sql.DB, error) {
	return sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping checks that the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

const analysisColumns = `id, created_at, provider, aoi_geojson, area_ha, start_date, end_date, cloud_cover, image_count,
	ndvi, evi, lai, nbr, agb, carbon, co2, narrative, narrative_model, narrated_at, land_cover_json, warnings_json`

func (s *Store) InsertAnalysis(a *models.Analysis) error {
	landCover, warnings, err := encodeExtras(a)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO analyses (`+analysisColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.CreatedAt.UTC(), a.Provider, string(a.AOI), a.AreaHectares, a.StartDate, a.EndDate, a.CloudCover, a.ImageCount,
		a.Indices.NDVI, a.Indices.EVI, a.Indices.LAI, a.Indices.NBR, a.Carbon.AGB, a.Carbon.Carbon, a.Carbon.CO2,
		a.Narrative, a.NarrativeModel, a.NarratedAt, landCover, warnings)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

func encodeExtras(a *models.Analysis) (landCover, warnings sql.NullString, err error) {
	if a.LandCover != nil {
		b, err := json.Marshal(a.LandCover)
		if err != nil {
			return landCover, warnings, fmt.Errorf("encode land cover: %w", err)
		}
		landCover = sql.NullString{String: string(b), Valid: true}
	}
	if len(a.Warnings) > 0 {
		b, err := json.Marshal(a.Warnings)
		if err != nil {
			return landCover, warnings, fmt.Errorf("encode warnings: %w", err)
		}
		warnings = sql.NullString{String: string(b), Valid: true}
	}
	return landCover, warnings, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scanner) (*models.Analysis, error) {
	var a models.Analysis
	var aoi string
	var areaHa sql.NullFloat64
	var imageCount sql.NullInt64
	var landCover, warnings sql.NullString
	err := row.Scan(&a.ID, &a.CreatedAt, &a.Provider, &aoi, &areaHa, &a.StartDate, &a.EndDate, &a.CloudCover, &imageCount,
		&a.Indices.NDVI, &a.Indices.EVI, &a.Indices.LAI, &a.Indices.NBR, &a.Carbon.AGB, &a.Carbon.Carbon, &a.Carbon.CO2,
		&a.Narrative, &a.NarrativeModel, &a.NarratedAt, &landCover, &warnings)
	if err != nil {
		return nil, err
	}
	a.AOI = json.RawMessage(aoi)
	a.AreaHectares = areaHa.Float64
	a.ImageCount = int(imageCount.Int64)
	if landCover.Valid {
		var lc models.LandCoverChange
		if err := json.Unmarshal([]byte(landCover.String), &lc); err != nil {
			return nil, fmt.Errorf("decode land cover: %w", err)
		}
		a.LandCover = &lc
	}
	if warnings.Valid {
		if err := json.Unmarshal([]byte(warnings.String), &a.Warnings); err != nil {
			return nil, fmt.Errorf("decode warnings: %w", err)
		}
	}
	return &a, nil
}

func (s *Store) GetAnalysis(id string) (*models.Analysis, error) {
	row := s.db.QueryRow(`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAnalyses returns the most recent analyses, newest first.
func (s *Store) ListAnalyses(limit int) ([]models.AnalysisSummary, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, provider, area_ha, start_date, end_date, ndvi, co2, narrative IS NOT NULL
		FROM analyses
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AnalysisSummary
	for rows.Next() {
		var sum models.AnalysisSummary
		var areaHa sql.NullFloat64
		if err := rows.Scan(&sum.ID, &sum.CreatedAt, &sum.Provider, &areaHa, &sum.StartDate, &sum.EndDate, &sum.NDVI, &sum.CO2, &sum.HasNarrative); err != nil {
			return nil, err
		}
		sum.AreaHectares = areaHa.Float64
		out = append(out, sum)
	}
	return out, rows.Err()
}

// SetNarrative stores (or replaces) the generated narrative for an analysis.
func (s *Store) SetNarrative(id, narrative, model string) error {
	res, err := s.db.Exec(`
		UPDATE analyses SET narrative = ?, narrative_model = ?, narrated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, narrative, model, id)
	if err != nil {
		return fmt.Errorf("update narrative: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAnalysis(id string) error {
	res, err := s.db.Exec(`DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete analysis: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
