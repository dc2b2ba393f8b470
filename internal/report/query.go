package report

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

// QueryService answers questions about past runs. It uses DuckDB to query
// the Parquet report files directly.
type QueryService struct {
	db *sql.DB
}

// NewQueryService opens an in-memory DuckDB database.
func NewQueryService() (*QueryService, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &QueryService{db: db}, nil
}

// Close closes the query service.
func (s *QueryService) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// reportFiles globs for report files under dir. A nil, nil return means no
// runs have been recorded yet; callers treat that as an empty history rather
// than an error.
func reportFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "run-*.parquet"))
	if err != nil {
		return nil, fmt.Errorf("glob report files: %w", err)
	}
	return matches, nil
}

// RunSummary aggregates one run's report rows.
type RunSummary struct {
	RunID     string
	Started   time.Time
	Downloads int64
	Failures  int64
	Bytes     int64
	P50Ms     float64
	P95Ms     float64
	MaxMs     int64
}

// RunSummaries returns one summary per run found under dir, oldest first.
func (s *QueryService) RunSummaries(ctx context.Context, dir string) ([]RunSummary, error) {
	pattern := filepath.Join(dir, "run-*.parquet")
	if files, err := reportFiles(dir); err != nil {
		return nil, err
	} else if len(files) == 0 {
		return nil, nil
	}

	query := `
		SELECT
			run_id,
			min(timestamp_ms),
			count(*),
			sum(CASE WHEN ok THEN 0 ELSE 1 END),
			sum(bytes),
			quantile_cont(duration_ms, 0.50),
			quantile_cont(duration_ms, 0.95),
			max(duration_ms)
		FROM read_parquet($1)
		GROUP BY run_id
		ORDER BY run_id
	`

	rows, err := s.db.QueryContext(ctx, query, pattern)
	if err != nil {
		return nil, fmt.Errorf("query run summaries: %w", err)
	}
	defer rows.Close()

	var results []RunSummary
	for rows.Next() {
		var r RunSummary
		var startedMs int64
		if err := rows.Scan(&r.RunID, &startedMs, &r.Downloads, &r.Failures,
			&r.Bytes, &r.P50Ms, &r.P95Ms, &r.MaxMs); err != nil {
			return nil, fmt.Errorf("scan run summary: %w", err)
		}
		r.Started = time.UnixMilli(startedMs).UTC()
		results = append(results, r)
	}

	return results, rows.Err()
}

// KindSummary aggregates one download kind within a run.
type KindSummary struct {
	Kind      string
	Downloads int64
	Failures  int64
	Bytes     int64
	AvgMs     float64
}

// KindBreakdown returns per-kind totals for a single run.
func (s *QueryService) KindBreakdown(ctx context.Context, dir, runID string) ([]KindSummary, error) {
	pattern := filepath.Join(dir, "run-*.parquet")
	if files, err := reportFiles(dir); err != nil {
		return nil, err
	} else if len(files) == 0 {
		return nil, nil
	}

	query := `
		SELECT
			kind,
			count(*),
			sum(CASE WHEN ok THEN 0 ELSE 1 END),
			sum(bytes),
			avg(duration_ms)
		FROM read_parquet($1)
		WHERE run_id = $2
		GROUP BY kind
		ORDER BY kind
	`

	rows, err := s.db.QueryContext(ctx, query, pattern, runID)
	if err != nil {
		return nil, fmt.Errorf("query kind breakdown: %w", err)
	}
	defer rows.Close()

	var results []KindSummary
	for rows.Next() {
		var k KindSummary
		if err := rows.Scan(&k.Kind, &k.Downloads, &k.Failures, &k.Bytes, &k.AvgMs); err != nil {
			return nil, fmt.Errorf("scan kind summary: %w", err)
		}
		results = append(results, k)
	}

	return results, rows.Err()
}

// Failures returns the failed downloads of a single run.
func (s *QueryService) Failures(ctx context.Context, dir, runID string) ([]DownloadRow, error) {
	pattern := filepath.Join(dir, "run-*.parquet")
	if files, err := reportFiles(dir); err != nil {
		return nil, err
	} else if len(files) == 0 {
		return nil, nil
	}

	query := `
		SELECT kind, milieu, name, url_path, attempts, error
		FROM read_parquet($1)
		WHERE run_id = $2 AND NOT ok
		ORDER BY timestamp_ms
	`

	rows, err := s.db.QueryContext(ctx, query, pattern, runID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var results []DownloadRow
	for rows.Next() {
		r := DownloadRow{RunID: runID}
		if err := rows.Scan(&r.Kind, &r.Milieu, &r.Name, &r.URLPath, &r.Attempts, &r.Error); err != nil {
			return nil, fmt.Errorf("scan failure row: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}
