package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"punchsync/internal/attendance"
	"punchsync/internal/ingest"
	"punchsync/internal/registry"
	"punchsync/internal/scheduler"
	"punchsync/internal/store"
	"punchsync/internal/syncer"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func formatHours(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FromDevices converts registry devices in order.
func FromDevices(devices []registry.Device) []Device {
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, Device{Name: d.Name, Host: d.Host, Port: d.Port, Address: d.Address()})
	}
	return out
}

// FromDeviceStats converts one device's ingestion stats.
func FromDeviceStats(stats ingest.Stats) DeviceStats {
	return DeviceStats{
		Device:            stats.Device,
		Address:           stats.Address,
		Fetched:           stats.Fetched,
		Inserted:          stats.Inserted,
		Duplicates:        stats.Duplicates,
		Invalid:           stats.Invalid,
		UnmatchedEmployee: stats.UnmatchedEmployee,
		Errors:            stats.Errors,
		InvalidReasons:    stats.InvalidReasons,
		Error:             stats.Error,
		ErrorKind:         stats.ErrorKind,
		DurationMillis:    stats.Duration.Milliseconds(),
	}
}

// FromAggregationStats converts aggregation counters; nil stays nil.
func FromAggregationStats(stats *attendance.Stats) *AggregationStats {
	if stats == nil {
		return nil
	}
	return &AggregationStats{
		ProcessedLogs: stats.ProcessedLogs,
		Created:       stats.Created,
		Updated:       stats.Updated,
		Errors:        stats.Errors,
	}
}

// FromReport converts a sync report.
func FromReport(report syncer.Report) SyncReport {
	dto := SyncReport{
		RunID:                  report.RunID,
		StartedAt:              formatTime(report.StartedAt),
		FinishedAt:             formatTime(report.FinishedAt),
		DevicesSynced:          report.DevicesSynced,
		DevicesFailed:          report.DevicesFailed,
		TotalFetched:           report.TotalFetched,
		TotalInserted:          report.TotalInserted,
		TotalDuplicates:        report.TotalDuplicates,
		TotalInvalid:           report.TotalInvalid,
		TotalUnmatchedEmployee: report.TotalUnmatchedEmployee,
		TotalErrors:            report.TotalErrors,
		Devices:                make([]DeviceStats, 0, len(report.Devices)),
		Aggregation:            FromAggregationStats(report.Aggregation),
		AggregationError:       report.AggregationError,
	}
	for _, stats := range report.Devices {
		dto.Devices = append(dto.Devices, FromDeviceStats(stats))
	}
	return dto
}

// FromSyncRun converts a stored run, decoding its per-device breakdown.
func FromSyncRun(run *store.SyncRun) (*SyncReport, error) {
	if run == nil {
		return nil, nil
	}
	dto := &SyncReport{
		RunID:                  run.ID,
		StartedAt:              formatTime(run.StartedAt),
		FinishedAt:             formatTime(run.FinishedAt),
		DevicesSynced:          run.DevicesSynced,
		DevicesFailed:          run.DevicesFailed,
		TotalFetched:           run.TotalFetched,
		TotalInserted:          run.TotalInserted,
		TotalDuplicates:        run.TotalDuplicates,
		TotalInvalid:           run.TotalInvalid,
		TotalUnmatchedEmployee: run.TotalUnmatched,
		TotalErrors:            run.TotalErrors,
		Devices:                []DeviceStats{},
	}
	if run.ReportJSON == "" {
		return dto, nil
	}
	var devices []ingest.Stats
	if err := json.Unmarshal([]byte(run.ReportJSON), &devices); err != nil {
		return dto, fmt.Errorf("decode sync run %s devices: %w", run.ID, err)
	}
	for _, stats := range devices {
		dto.Devices = append(dto.Devices, FromDeviceStats(stats))
	}
	return dto, nil
}

// FromAttendance converts one attendance row.
func FromAttendance(row *store.Attendance) AttendanceRow {
	if row == nil {
		return AttendanceRow{}
	}
	return AttendanceRow{
		EmployeeCode:      row.EmployeeCode,
		Date:              row.Date,
		Status:            string(row.Status),
		CheckIn:           formatTimePtr(row.CheckIn),
		CheckOut:          formatTimePtr(row.CheckOut),
		WorkHours:         formatHours(row.WorkHours),
		LateMinutes:       row.LateMinutes,
		EarlyLeaveMinutes: row.EarlyLeaveMinutes,
		OvertimeHours:     formatHours(row.OvertimeHours),
	}
}

// FromSyncStatus converts the sync status view. A last run whose device
// breakdown cannot be decoded is still reported with its totals.
func FromSyncStatus(status syncer.Status) SyncStatus {
	dto := SyncStatus{
		UnprocessedCount:  status.UnprocessedCount,
		LastSyncTime:      formatTimePtr(status.LastSyncTime),
		DevicesConfigured: status.DevicesConfigured,
		RecentAttendance:  make([]AttendanceRow, 0, len(status.RecentAttendance)),
	}
	if status.LastRun != nil {
		dto.LastRun, _ = FromSyncRun(status.LastRun)
	}
	for _, row := range status.RecentAttendance {
		dto.RecentAttendance = append(dto.RecentAttendance, FromAttendance(row))
	}
	return dto
}

// FromJobs converts scheduler job statuses in order.
func FromJobs(jobs []scheduler.JobStatus) []Job {
	out := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, Job{
			Name:      j.Name,
			Spec:      j.Spec,
			Next:      formatTime(j.Next),
			LastRun:   formatTime(j.LastRun),
			LastError: j.LastError,
			Runs:      j.Runs,
		})
	}
	return out
}
