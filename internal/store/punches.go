package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"punchsync/internal/punch"
)

const punchColumns = "id, employee_code, punched_at, punch_date, device_id, kind, is_processed, processed_at, created_at"

func scanPunch(scanner interface{ Scan(dest ...any) error }) (*RawPunch, error) {
	var (
		p            RawPunch
		punchedRaw   string
		kindRaw      string
		processed    int
		processedRaw sql.NullString
		createdRaw   string
	)
	if err := scanner.Scan(
		&p.ID,
		&p.EmployeeCode,
		&punchedRaw,
		&p.PunchDate,
		&p.DeviceID,
		&kindRaw,
		&processed,
		&processedRaw,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	var err error
	if p.PunchedAt, err = parseTime(punchedRaw); err != nil {
		return nil, err
	}
	if p.Kind, err = punch.ParseKind(kindRaw); err != nil {
		return nil, err
	}
	if p.ProcessedAt, err = parseNullableTime(processedRaw); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdRaw); err != nil {
		return nil, err
	}
	p.Processed = processed != 0
	return &p, nil
}

func scanPunches(rows *sql.Rows) ([]*RawPunch, error) {
	defer rows.Close()
	var out []*RawPunch
	for rows.Next() {
		p, err := scanPunch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan punch: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// NewPunch is a validated punch ready to store.
type NewPunch struct {
	EmployeeCode string
	PunchedAt    time.Time
	DeviceID     string
	Kind         punch.Kind
}

// InsertPunch stores p unless a punch with the same employee, instant, and
// device exists. It reports whether a row was created. The check and insert
// are one statement, so concurrent syncs of a terminal cannot both insert.
func (s *Store) InsertPunch(ctx context.Context, p NewPunch) (bool, error) {
	if p.EmployeeCode == "" || p.DeviceID == "" || p.PunchedAt.IsZero() {
		return false, errors.New("punch requires employee, device, and timestamp")
	}
	if !p.Kind.Valid() {
		return false, fmt.Errorf("punch kind %q is not valid", p.Kind)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_punches (employee_code, punched_at, punch_date, device_id, kind, is_processed, created_at)
         VALUES (?, ?, ?, ?, ?, 0, ?)
         ON CONFLICT(employee_code, punched_at, device_id) DO NOTHING`,
		p.EmployeeCode,
		formatTime(p.PunchedAt),
		punch.DateOf(p.PunchedAt, s.loc),
		p.DeviceID,
		string(p.Kind),
		formatTime(s.now()),
	)
	if err != nil {
		return false, fmt.Errorf("insert punch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// LastPunchKind returns the kind of the employee's latest punch on date.
func (s *Store) LastPunchKind(ctx context.Context, employeeCode, date string) (punch.Kind, bool, error) {
	var kindRaw string
	err := s.db.QueryRowContext(ctx,
		`SELECT kind FROM raw_punches
         WHERE employee_code = ? AND punch_date = ?
         ORDER BY punched_at DESC, id DESC LIMIT 1`,
		employeeCode, date,
	).Scan(&kindRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("last punch kind: %w", err)
	}
	kind, err := punch.ParseKind(kindRaw)
	if err != nil {
		return "", false, err
	}
	return kind, true, nil
}

// PunchFilter scopes punch queries. Empty fields match everything.
type PunchFilter struct {
	EmployeeCode string
	Date         string
}

func (f PunchFilter) where(base string) (string, []any) {
	query := base
	var args []any
	if f.EmployeeCode != "" {
		query += " AND employee_code = ?"
		args = append(args, f.EmployeeCode)
	}
	if f.Date != "" {
		query += " AND punch_date = ?"
		args = append(args, f.Date)
	}
	return query, args
}

// UnprocessedPunches returns unprocessed punches ordered by time.
func (s *Store) UnprocessedPunches(ctx context.Context, filter PunchFilter) ([]*RawPunch, error) {
	query, args := filter.where(`SELECT ` + punchColumns + ` FROM raw_punches WHERE is_processed = 0`)
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY punched_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed punches: %w", err)
	}
	return scanPunches(rows)
}

// Punches returns every stored punch matching filter ordered by time.
func (s *Store) Punches(ctx context.Context, filter PunchFilter) ([]*RawPunch, error) {
	query, args := filter.where(`SELECT ` + punchColumns + ` FROM raw_punches WHERE 1 = 1`)
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY punched_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list punches: %w", err)
	}
	return scanPunches(rows)
}

// DayPunches returns every punch for the employee on date, processed or not,
// ordered by time.
func (t *Tx) DayPunches(ctx context.Context, employeeCode, date string) ([]*RawPunch, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+punchColumns+` FROM raw_punches
         WHERE employee_code = ? AND punch_date = ?
         ORDER BY punched_at, id`,
		employeeCode, date,
	)
	if err != nil {
		return nil, fmt.Errorf("list day punches: %w", err)
	}
	return scanPunches(rows)
}

// MarkProcessed flags punches processed at the given instant.
func (t *Tx) MarkProcessed(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, formatTime(at))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := t.tx.ExecContext(ctx,
		`UPDATE raw_punches SET is_processed = 1, processed_at = ? WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("mark punches processed: %w", err)
	}
	return nil
}

// ResetProcessed clears the processed flag so aggregation recomputes the
// matching days. It returns the number of punches reset.
func (s *Store) ResetProcessed(ctx context.Context, filter PunchFilter) (int, error) {
	query, args := filter.where(`UPDATE raw_punches SET is_processed = 0, processed_at = NULL WHERE is_processed = 1`)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset processed punches: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// CountUnprocessed returns the number of punches awaiting aggregation.
func (s *Store) CountUnprocessed(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM raw_punches WHERE is_processed = 0`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unprocessed punches: %w", err)
	}
	return count, nil
}

// CountPunches returns the number of stored punches.
func (s *Store) CountPunches(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM raw_punches`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count punches: %w", err)
	}
	return count, nil
}
