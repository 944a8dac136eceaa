package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"punchsync/internal/punch"
)

// Shift is an employee's expected working window.
type Shift struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	BreakMinutes int    `json:"break_minutes"`
}

// StartOn returns the shift start on date in loc.
func (s Shift) StartOn(date string, loc *time.Location) (time.Time, error) {
	return ClockOn(date, s.StartTime, loc)
}

// EndOn returns the shift end on date in loc.
func (s Shift) EndOn(date string, loc *time.Location) (time.Time, error) {
	return ClockOn(date, s.EndTime, loc)
}

// Employee is a directory entry.
type Employee struct {
	Code         string `json:"emp_code"`
	Name         string `json:"name"`
	DeviceUserID string `json:"device_user_id,omitempty"`
	Active       bool   `json:"is_active"`
	Shift        *Shift `json:"shift,omitempty"`
}

// LeaveStatus is the approval state of a leave request.
type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveRejected LeaveStatus = "rejected"
)

// Leave is a date range an employee is away.
type Leave struct {
	ID           int64       `json:"id"`
	EmployeeCode string      `json:"employee_code"`
	StartDate    string      `json:"start_date"`
	EndDate      string      `json:"end_date"`
	Status       LeaveStatus `json:"status"`
}

// RawPunch is one stored terminal swipe.
type RawPunch struct {
	ID           int64      `json:"id"`
	EmployeeCode string     `json:"employee_code"`
	PunchedAt    time.Time  `json:"punched_at"`
	PunchDate    string     `json:"punch_date"`
	DeviceID     string     `json:"device_id"`
	Kind         punch.Kind `json:"kind"`
	Processed    bool       `json:"is_processed"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Status is a daily attendance outcome.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusHalfDay Status = "half_day"
	StatusOnLeave Status = "on_leave"
)

// Attendance is the per-employee, per-day aggregate.
type Attendance struct {
	ID                int64           `json:"id"`
	EmployeeCode      string          `json:"employee"`
	Date              string          `json:"date"`
	Status            Status          `json:"status"`
	CheckIn           *time.Time      `json:"check_in"`
	CheckOut          *time.Time      `json:"check_out"`
	WorkHours         decimal.Decimal `json:"work_hours"`
	LateMinutes       int             `json:"late_minutes"`
	EarlyLeaveMinutes int             `json:"early_leave_minutes"`
	OvertimeHours     decimal.Decimal `json:"overtime_hours"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// SyncRun is the stored summary of one SyncAll call.
type SyncRun struct {
	ID              string    `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DevicesSynced   int       `json:"devices_synced"`
	DevicesFailed   int       `json:"devices_failed"`
	TotalFetched    int       `json:"total_fetched"`
	TotalInserted   int       `json:"total_inserted"`
	TotalDuplicates int       `json:"total_duplicates"`
	TotalInvalid    int       `json:"total_invalid"`
	TotalUnmatched  int       `json:"total_unmatched_employee"`
	TotalErrors     int       `json:"total_errors"`
	ReportJSON      string    `json:"-"`
}

// ParseClock parses "15:04" or "15:04:05" into an offset from midnight.
func ParseClock(value string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("clock %q: want HH:MM or HH:MM:SS", value)
	}
	limits := []int{23, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var offset time.Duration
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > limits[i] || len(part) != 2 {
			return 0, fmt.Errorf("clock %q: invalid field %q", value, part)
		}
		offset += time.Duration(n) * units[i]
	}
	return offset, nil
}

// ClockOn returns the wall-clock time on date in loc.
func ClockOn(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation(punch.DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", date, err)
	}
	offset, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	sec := int(offset % time.Minute / time.Second)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, sec, 0, loc), nil
}
