package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const attendanceColumns = "id, employee_code, work_date, status, check_in, check_out, work_hours, late_minutes, early_leave_minutes, overtime_hours, created_at, updated_at"

func scanAttendance(scanner interface{ Scan(dest ...any) error }) (*Attendance, error) {
	var (
		a           Attendance
		statusRaw   string
		checkInRaw  sql.NullString
		checkOutRaw sql.NullString
		workRaw     string
		overtimeRaw string
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&a.ID,
		&a.EmployeeCode,
		&a.Date,
		&statusRaw,
		&checkInRaw,
		&checkOutRaw,
		&workRaw,
		&a.LateMinutes,
		&a.EarlyLeaveMinutes,
		&overtimeRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	a.Status = Status(statusRaw)
	var err error
	if a.CheckIn, err = parseNullableTime(checkInRaw); err != nil {
		return nil, err
	}
	if a.CheckOut, err = parseNullableTime(checkOutRaw); err != nil {
		return nil, err
	}
	if a.WorkHours, err = parseDecimal(workRaw); err != nil {
		return nil, err
	}
	if a.OvertimeHours, err = parseDecimal(overtimeRaw); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(createdRaw); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedRaw); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAttendanceRows(rows *sql.Rows) ([]*Attendance, error) {
	defer rows.Close()
	var out []*Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAttendance returns the row for (employee, date) or nil.
func (s *Store) GetAttendance(ctx context.Context, employeeCode, date string) (*Attendance, error) {
	return getAttendance(ctx, s.db, employeeCode, date)
}

// GetAttendance returns the row for (employee, date) or nil inside the
// transaction.
func (t *Tx) GetAttendance(ctx context.Context, employeeCode, date string) (*Attendance, error) {
	return getAttendance(ctx, t.tx, employeeCode, date)
}

func getAttendance(ctx context.Context, q querier, employeeCode, date string) (*Attendance, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM daily_attendance WHERE employee_code = ? AND work_date = ?`,
		employeeCode, date,
	)
	a, err := scanAttendance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return a, nil
}

// SaveAttendance inserts or updates the row for (employee, date). The
// created_at of an existing row is preserved.
func (t *Tx) SaveAttendance(ctx context.Context, a *Attendance) error {
	if a == nil {
		return errors.New("attendance is nil")
	}
	now := t.store.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO daily_attendance (
             employee_code, work_date, status, check_in, check_out, work_hours,
             late_minutes, early_leave_minutes, overtime_hours, created_at, updated_at
         ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(employee_code, work_date) DO UPDATE SET
             status = excluded.status,
             check_in = excluded.check_in,
             check_out = excluded.check_out,
             work_hours = excluded.work_hours,
             late_minutes = excluded.late_minutes,
             early_leave_minutes = excluded.early_leave_minutes,
             overtime_hours = excluded.overtime_hours,
             updated_at = excluded.updated_at
         RETURNING id`,
		a.EmployeeCode,
		a.Date,
		string(a.Status),
		nullableTime(a.CheckIn),
		nullableTime(a.CheckOut),
		formatDecimal(a.WorkHours),
		a.LateMinutes,
		a.EarlyLeaveMinutes,
		formatDecimal(a.OvertimeHours),
		formatTime(a.CreatedAt),
		formatTime(a.UpdatedAt),
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("save attendance: %w", err)
	}
	return nil
}

// InsertAttendanceIfAbsent creates a punch-less row with status unless a row
// exists. It reports whether a row was created.
func (s *Store) InsertAttendanceIfAbsent(ctx context.Context, employeeCode, date string, status Status) (bool, error) {
	now := formatTime(s.now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_attendance (employee_code, work_date, status, work_hours, overtime_hours, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(employee_code, work_date) DO NOTHING`,
		employeeCode, date, string(status), formatDecimal(decimal.Zero), formatDecimal(decimal.Zero), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert attendance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// AttendanceOn returns every row for date ordered by employee.
func (s *Store) AttendanceOn(ctx context.Context, date string) ([]*Attendance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attendanceColumns+` FROM daily_attendance WHERE work_date = ? ORDER BY employee_code`, date)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return scanAttendanceRows(rows)
}

// LateArrivals returns late rows with positive late minutes on date.
func (s *Store) LateArrivals(ctx context.Context, date string) ([]*Attendance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attendanceColumns+` FROM daily_attendance
         WHERE work_date = ? AND status = ? AND late_minutes > 0
         ORDER BY late_minutes DESC, employee_code`,
		date, string(StatusLate),
	)
	if err != nil {
		return nil, fmt.Errorf("list late arrivals: %w", err)
	}
	return scanAttendanceRows(rows)
}

// RecentAttendance returns the newest rows by date then creation time.
func (s *Store) RecentAttendance(ctx context.Context, limit int) ([]*Attendance, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attendanceColumns+` FROM daily_attendance
         ORDER BY work_date DESC, created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent attendance: %w", err)
	}
	return scanAttendanceRows(rows)
}
