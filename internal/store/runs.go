package store

import (
	"database/sql"
	"time"
)

// ImageryRun audits a single call to an imagery provider.
type ImageryRun struct {
	ID                int64
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	Provider          string // "earthengine", "copernicus"
	Endpoint          string // "value:compute", "statistics", ...
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	Attempts          sql.NullInt64
	Success           bool
	ErrorMessage      sql.NullString
}

func (s *Store) StartImageryRun(provider, endpoint string) (*ImageryRun, error) {
	run := &ImageryRun{
		StartedAt: time.Now().UTC(),
		Provider:  provider,
		Endpoint:  endpoint,
	}

	result, err := s.db.Exec(`
		INSERT INTO imagery_runs (started_at, provider, endpoint, success)
		VALUES (?, ?, ?, FALSE)
	`, run.StartedAt, run.Provider, run.Endpoint)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteImageryRun records the outcome of a run. A nil run is ignored.
func (s *Store) CompleteImageryRun(run *ImageryRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE imagery_runs SET
			finished_at = ?,
			http_status = ?,
			response_size_bytes = ?,
			attempts = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HTTPStatus, run.ResponseSizeBytes, run.Attempts,
		run.Success, run.ErrorMessage, run.ID)
	return err
}

type ImageryHealthSummary struct {
	Date        string `json:"date"`
	Provider    string `json:"provider"`
	Endpoint    string `json:"endpoint"`
	TotalRuns   int    `json:"total_runs"`
	SuccessRuns int    `json:"success_runs"`
	FailedRuns  int    `json:"failed_runs"`
	TotalBytes  int64  `json:"total_bytes"`
}

// GetImageryHealth returns per-day provider call summaries for the last N days.
func (s *Store) GetImageryHealth(days int) ([]ImageryHealthSummary, error) {
	rows, err := s.db.Query(`
		SELECT
			DATE(SUBSTR(started_at, 1, 19)) as date,
			provider,
			endpoint,
			COUNT(*) as total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) as success_runs,
			SUM(CASE WHEN NOT success THEN 1 ELSE 0 END) as failed_runs,
			COALESCE(SUM(response_size_bytes), 0) as total_bytes
		FROM imagery_runs
		WHERE SUBSTR(started_at, 1, 19) > datetime('now', '-' || ? || ' days')
		GROUP BY date, provider, endpoint
		ORDER BY date DESC, provider, endpoint
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ImageryHealthSummary
	for rows.Next() {
		var h ImageryHealthSummary
		if err := rows.Scan(&h.Date, &h.Provider, &h.Endpoint, &h.TotalRuns,
			&h.SuccessRuns, &h.FailedRuns, &h.TotalBytes); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

func (s *Store) GetRecentImageryErrors(limit int) ([]ImageryRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, provider, endpoint,
			   http_status, response_size_bytes, attempts, success, error_message
		FROM imagery_runs
		WHERE success = FALSE
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ImageryRun
	for rows.Next() {
		var r ImageryRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Provider, &r.Endpoint,
			&r.HTTPStatus, &r.ResponseSizeBytes, &r.Attempts, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// upstreamFailure matches failed runs the provider or the network is to
// blame for: 5xx responses and transport errors. Runs still in flight,
// requests the upstream rejected (4xx) and requests cancelled by the caller
// are excluded.
const upstreamFailure = `success = FALSE AND finished_at IS NOT NULL
	AND (http_status >= 500
		OR (http_status IS NULL AND COALESCE(error_message, '') NOT LIKE '%context canceled%'))`

// CountUpstreamFailures counts upstream failures started in the last hours.
func (s *Store) CountUpstreamFailures(hours int) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM imagery_runs
		WHERE `+upstreamFailure+`
		AND SUBSTR(started_at, 1, 19) > datetime('now', '-' || ? || ' hours')
	`, hours).Scan(&n)
	return n, err
}

// GetRecentUpstreamFailures returns the latest upstream failures started in
// the last hours, newest first.
func (s *Store) GetRecentUpstreamFailures(hours, limit int) ([]ImageryRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, provider, endpoint,
			   http_status, response_size_bytes, attempts, success, error_message
		FROM imagery_runs
		WHERE `+upstreamFailure+`
		AND SUBSTR(started_at, 1, 19) > datetime('now', '-' || ? || ' hours')
		ORDER BY started_at DESC
		LIMIT ?
	`, hours, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ImageryRun
	for rows.Next() {
		var r ImageryRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Provider, &r.Endpoint,
			&r.HTTPStatus, &r.ResponseSizeBytes, &r.Attempts, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// CleanupOldImageryRuns deletes audit rows older than retentionDays.
func (s *Store) CleanupOldImageryRuns(retentionDays int) (int64, error) {
	result, err := s.db.Exec(`
		DELETE FROM imagery_runs
		WHERE SUBSTR(started_at, 1, 19) < datetime('now', '-' || ? || ' days')
		AND id NOT IN (SELECT imagery_run_id FROM raw_payloads WHERE imagery_run_id IS NOT NULL)
	`, retentionDays)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
