package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// RunMetricsRow is one completed run's accounting, appended to metric_data.
// RunNo is assigned by the database and only populated on reads.
type RunMetricsRow struct {
	RunNo         int     `json:"run_no"`
	Date          string  `json:"date"`
	ThreadCount   int     `json:"thread_count"`
	OSCount       int     `json:"os_count"`
	RegionCount   int     `json:"region_count"`
	InitSeconds   float64 `json:"init_seconds"`
	RunSeconds    float64 `json:"run_seconds"`
	CSVBytesDelta int64   `json:"csv_bytes_delta"`
	DBBytesDelta  int64   `json:"db_bytes_delta"`
	ErrorCount    int     `json:"error_count"`
	CommandLine   string  `json:"command_line"`
}

// InsertRunMetrics appends one metrics row. Rows only accrete; there is no
// update path.
func (s *Store) InsertRunMetrics(ctx context.Context, row RunMetricsRow) error {
	query := `
		INSERT INTO metric_data (
			date, thread_count, os_count, region_count,
			init_seconds, run_seconds, csv_bytes_delta, db_bytes_delta,
			error_count, command_line
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		row.Date, row.ThreadCount, row.OSCount, row.RegionCount,
		row.InitSeconds, row.RunSeconds, row.CSVBytesDelta, row.DBBytesDelta,
		row.ErrorCount, row.CommandLine,
	)
	if err != nil {
		return fmt.Errorf("insert run metrics: %w", err)
	}
	return nil
}

// LatestRunMetrics returns the accounting row of the most recent run, or
// ErrNotFound when no run has completed yet.
func (s *Store) LatestRunMetrics(ctx context.Context) (RunMetricsRow, error) {
	query := `
		SELECT run_no, date::text, thread_count, os_count, region_count,
		       init_seconds, run_seconds, csv_bytes_delta, db_bytes_delta,
		       error_count, command_line
		FROM metric_data
		ORDER BY run_no DESC
		LIMIT 1
	`

	var row RunMetricsRow
	err := s.pool.QueryRow(ctx, query).Scan(
		&row.RunNo, &row.Date, &row.ThreadCount, &row.OSCount, &row.RegionCount,
		&row.InitSeconds, &row.RunSeconds, &row.CSVBytesDelta, &row.DBBytesDelta,
		&row.ErrorCount, &row.CommandLine,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return RunMetricsRow{}, ErrNotFound
	}
	if err != nil {
		return RunMetricsRow{}, fmt.Errorf("latest run metrics: %w", err)
	}
	return row, nil
}
