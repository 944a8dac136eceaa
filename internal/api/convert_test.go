package api

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"punchsync/internal/attendance"
	"punchsync/internal/ingest"
	"punchsync/internal/registry"
	"punchsync/internal/scheduler"
	"punchsync/internal/store"
	"punchsync/internal/syncer"
)

func TestFromReport(t *testing.T) {
	riyadh := time.FixedZone("AST", 3*3600)
	report := syncer.Report{
		RunID:         "run-1",
		StartedAt:     time.Date(2024, 3, 4, 12, 0, 0, 0, riyadh),
		DevicesSynced: 1,
		DevicesFailed: 1,
		TotalInserted: 3,
		Devices: []ingest.Stats{
			{Device: "gate", Inserted: 3, InvalidReasons: map[string]int{"future": 1}, Duration: 1500 * time.Millisecond},
			{Device: "dock", Error: "connection error", ErrorKind: "connection"},
		},
		Aggregation: &attendance.Stats{ProcessedLogs: 3, Created: 1},
	}
	dto := FromReport(report)
	if dto.StartedAt != "2024-03-04T09:00:00.000Z" || dto.FinishedAt != "" {
		t.Fatalf("unexpected timestamps %q %q", dto.StartedAt, dto.FinishedAt)
	}
	if len(dto.Devices) != 2 || dto.Devices[0].DurationMillis != 1500 || dto.Devices[1].ErrorKind != "connection" {
		t.Fatalf("unexpected devices %+v", dto.Devices)
	}
	if dto.Aggregation == nil || dto.Aggregation.ProcessedLogs != 3 {
		t.Fatalf("unexpected aggregation %+v", dto.Aggregation)
	}

	raw, err := json.Marshal(dto)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"runId":"run-1"`, `"devicesFailed":1`, `"invalidReasons":{"future":1}`} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("expected %s in %s", key, raw)
		}
	}
	if strings.Contains(string(raw), "finishedAt") {
		t.Fatalf("zero finish time should be omitted: %s", raw)
	}
}

func TestFromAttendanceFormatsHours(t *testing.T) {
	in := time.Date(2024, 3, 4, 9, 20, 0, 0, time.UTC)
	row := FromAttendance(&store.Attendance{
		EmployeeCode:  "E001",
		Date:          "2024-03-04",
		Status:        store.StatusLate,
		CheckIn:       &in,
		WorkHours:     decimal.RequireFromString("8"),
		LateMinutes:   20,
		OvertimeHours: decimal.Zero,
	})
	if row.WorkHours != "8.00" || row.OvertimeHours != "0.00" {
		t.Fatalf("unexpected hours %q %q", row.WorkHours, row.OvertimeHours)
	}
	if row.CheckIn != "2024-03-04T09:20:00.000Z" || row.CheckOut != "" || row.Status != "late" {
		t.Fatalf("unexpected row %+v", row)
	}
}

func TestFromSyncStatusDecodesLastRun(t *testing.T) {
	finished := time.Date(2024, 3, 4, 9, 0, 5, 0, time.UTC)
	devices, _ := json.Marshal([]ingest.Stats{{Device: "gate", Fetched: 4, Inserted: 2}})
	status := syncer.Status{
		UnprocessedCount:  2,
		LastSyncTime:      &finished,
		DevicesConfigured: 1,
		LastRun: &store.SyncRun{
			ID:             "run-1",
			FinishedAt:     finished,
			TotalUnmatched: 1,
			ReportJSON:     string(devices),
		},
	}
	dto := FromSyncStatus(status)
	if dto.LastSyncTime != "2024-03-04T09:00:05.000Z" || dto.RecentAttendance == nil {
		t.Fatalf("unexpected status %+v", dto)
	}
	if dto.LastRun == nil || dto.LastRun.TotalUnmatchedEmployee != 1 || len(dto.LastRun.Devices) != 1 || dto.LastRun.Devices[0].Fetched != 4 {
		t.Fatalf("unexpected last run %+v", dto.LastRun)
	}
}

func TestFromSyncRunRejectsBrokenDevices(t *testing.T) {
	dto, err := FromSyncRun(&store.SyncRun{ID: "run-2", TotalInserted: 5, ReportJSON: "{"})
	if err == nil {
		t.Fatal("expected decode error")
	}
	if dto == nil || dto.TotalInserted != 5 {
		t.Fatalf("expected totals despite the error, got %+v", dto)
	}
}

func TestFromDevicesAndJobs(t *testing.T) {
	devices := FromDevices([]registry.Device{{Name: "gate", Host: "10.0.0.5", Port: 4370}})
	if len(devices) != 1 || devices[0].Address != "10.0.0.5:4370" {
		t.Fatalf("unexpected devices %+v", devices)
	}
	jobs := FromJobs([]scheduler.JobStatus{{Name: "sync", Spec: "@every 15m", Runs: 2, LastError: "boom"}})
	if len(jobs) != 1 || jobs[0].Next != "" || jobs[0].Runs != 2 || jobs[0].LastError != "boom" {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
}
