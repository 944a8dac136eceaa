package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const syncRunColumns = "id, started_at, finished_at, devices_synced, devices_failed, total_fetched, total_inserted, total_duplicates, total_invalid, total_unmatched, total_errors, report_json"

// RecordSyncRun stores a finished sync run.
func (s *Store) RecordSyncRun(ctx context.Context, run SyncRun) error {
	if run.ID == "" {
		return errors.New("sync run id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (`+syncRunColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.DevicesSynced,
		run.DevicesFailed,
		run.TotalFetched,
		run.TotalInserted,
		run.TotalDuplicates,
		run.TotalInvalid,
		run.TotalUnmatched,
		run.TotalErrors,
		nullableString(run.ReportJSON),
	)
	if err != nil {
		return fmt.Errorf("record sync run: %w", err)
	}
	return nil
}

// LastSyncRun returns the most recently finished run or nil.
func (s *Store) LastSyncRun(ctx context.Context) (*SyncRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs ORDER BY finished_at DESC LIMIT 1`)
	var (
		run         SyncRun
		startedRaw  string
		finishedRaw string
		report      sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&startedRaw,
		&finishedRaw,
		&run.DevicesSynced,
		&run.DevicesFailed,
		&run.TotalFetched,
		&run.TotalInserted,
		&run.TotalDuplicates,
		&run.TotalInvalid,
		&run.TotalUnmatched,
		&run.TotalErrors,
		&report,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last sync run: %w", err)
	}
	if run.StartedAt, err = parseTime(startedRaw); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseTime(finishedRaw); err != nil {
		return nil, err
	}
	run.ReportJSON = report.String
	return &run, nil
}
