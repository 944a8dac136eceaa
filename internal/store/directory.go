package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const employeeColumns = `e.emp_code, e.name, e.device_user_id, e.is_active,
    s.id, s.name, s.start_time, s.end_time, s.break_minutes`

const employeeFrom = ` FROM employees e LEFT JOIN shifts s ON s.id = e.shift_id`

func scanEmployee(scanner interface{ Scan(dest ...any) error }) (*Employee, error) {
	var (
		emp          Employee
		deviceUserID sql.NullString
		active       int
		shiftID      sql.NullInt64
		shiftName    sql.NullString
		shiftStart   sql.NullString
		shiftEnd     sql.NullString
		shiftBreak   sql.NullInt64
	)
	if err := scanner.Scan(
		&emp.Code,
		&emp.Name,
		&deviceUserID,
		&active,
		&shiftID,
		&shiftName,
		&shiftStart,
		&shiftEnd,
		&shiftBreak,
	); err != nil {
		return nil, err
	}
	emp.DeviceUserID = deviceUserID.String
	emp.Active = active != 0
	if shiftID.Valid {
		emp.Shift = &Shift{
			ID:           shiftID.Int64,
			Name:         shiftName.String,
			StartTime:    shiftStart.String,
			EndTime:      shiftEnd.String,
			BreakMinutes: int(shiftBreak.Int64),
		}
	}
	return &emp, nil
}

// UpsertShift creates or replaces the shift with the same name and returns
// its id.
func (s *Store) UpsertShift(ctx context.Context, shift Shift) (int64, error) {
	if strings.TrimSpace(shift.Name) == "" {
		return 0, errors.New("shift name is required")
	}
	if _, err := ParseClock(shift.StartTime); err != nil {
		return 0, fmt.Errorf("shift %s start: %w", shift.Name, err)
	}
	if _, err := ParseClock(shift.EndTime); err != nil {
		return 0, fmt.Errorf("shift %s end: %w", shift.Name, err)
	}
	if shift.BreakMinutes < 0 {
		return 0, fmt.Errorf("shift %s: break minutes must be >= 0", shift.Name)
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO shifts (name, start_time, end_time, break_minutes) VALUES (?, ?, ?, ?)
         ON CONFLICT(name) DO UPDATE SET
             start_time = excluded.start_time,
             end_time = excluded.end_time,
             break_minutes = excluded.break_minutes
         RETURNING id`,
		shift.Name, shift.StartTime, shift.EndTime, shift.BreakMinutes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert shift: %w", err)
	}
	return id, nil
}

// ShiftByName returns the named shift or nil.
func (s *Store) ShiftByName(ctx context.Context, name string) (*Shift, error) {
	var shift Shift
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, start_time, end_time, break_minutes FROM shifts WHERE name = ?`, name,
	).Scan(&shift.ID, &shift.Name, &shift.StartTime, &shift.EndTime, &shift.BreakMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shift: %w", err)
	}
	return &shift, nil
}

// UpsertEmployee creates or replaces an employee. A nil shiftID clears the
// shift.
func (s *Store) UpsertEmployee(ctx context.Context, emp Employee, shiftID *int64) error {
	if strings.TrimSpace(emp.Code) == "" {
		return errors.New("employee code is required")
	}
	var shift any
	if shiftID != nil {
		shift = *shiftID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO employees (emp_code, name, device_user_id, is_active, shift_id) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(emp_code) DO UPDATE SET
             name = excluded.name,
             device_user_id = excluded.device_user_id,
             is_active = excluded.is_active,
             shift_id = excluded.shift_id`,
		emp.Code, emp.Name, nullableString(strings.TrimSpace(emp.DeviceUserID)), boolToInt(emp.Active), shift,
	)
	if err != nil {
		return fmt.Errorf("upsert employee %s: %w", emp.Code, err)
	}
	return nil
}

// DeleteEmployee removes an employee from the directory. Stored punches and
// attendance are kept.
func (s *Store) DeleteEmployee(ctx context.Context, code string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM employees WHERE emp_code = ?`, code)
	if err != nil {
		return false, fmt.Errorf("delete employee: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// EmployeeByDeviceUserID maps a terminal user id to an employee, active or
// not. It returns nil when no employee carries the id.
func (s *Store) EmployeeByDeviceUserID(ctx context.Context, deviceUserID string) (*Employee, error) {
	deviceUserID = strings.TrimSpace(deviceUserID)
	if deviceUserID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+employeeColumns+employeeFrom+` WHERE e.device_user_id = ?`, deviceUserID)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get employee by device user id: %w", err)
	}
	return emp, nil
}

// EmployeeByCode returns the employee or nil.
func (s *Store) EmployeeByCode(ctx context.Context, code string) (*Employee, error) {
	return employeeByCode(ctx, s.db, code)
}

// EmployeeByCode returns the employee or nil inside the transaction.
func (t *Tx) EmployeeByCode(ctx context.Context, code string) (*Employee, error) {
	return employeeByCode(ctx, t.tx, code)
}

func employeeByCode(ctx context.Context, q querier, code string) (*Employee, error) {
	row := q.QueryRowContext(ctx, `SELECT `+employeeColumns+employeeFrom+` WHERE e.emp_code = ?`, code)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return emp, nil
}

// ListEmployees returns employees ordered by code.
func (s *Store) ListEmployees(ctx context.Context, activeOnly bool) ([]*Employee, error) {
	query := `SELECT ` + employeeColumns + employeeFrom
	if activeOnly {
		query += ` WHERE e.is_active = 1`
	}
	query += ` ORDER BY e.emp_code`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var out []*Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}

// AddLeave records a leave range.
func (s *Store) AddLeave(ctx context.Context, leave Leave) (int64, error) {
	if leave.Status == "" {
		leave.Status = LeavePending
	}
	if leave.EndDate < leave.StartDate {
		return 0, fmt.Errorf("leave for %s ends before it starts", leave.EmployeeCode)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO leaves (employee_code, start_date, end_date, status) VALUES (?, ?, ?, ?)`,
		leave.EmployeeCode, leave.StartDate, leave.EndDate, string(leave.Status),
	)
	if err != nil {
		return 0, fmt.Errorf("insert leave: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// ClearLeaves drops every leave for an employee.
func (s *Store) ClearLeaves(ctx context.Context, code string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM leaves WHERE employee_code = ?`, code); err != nil {
		return fmt.Errorf("clear leaves: %w", err)
	}
	return nil
}

// HasApprovedLeave reports whether an approved leave covers date.
func (s *Store) HasApprovedLeave(ctx context.Context, code, date string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM leaves
         WHERE employee_code = ? AND status = ? AND start_date <= ? AND end_date >= ?`,
		code, string(LeaveApproved), date, date,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check leave: %w", err)
	}
	return count > 0, nil
}
