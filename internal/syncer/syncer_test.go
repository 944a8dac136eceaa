package syncer_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"punchsync/internal/attendance"
	"punchsync/internal/logging"
	"punchsync/internal/services"
	"punchsync/internal/store"
	"punchsync/internal/syncer"
	"punchsync/internal/terminal"
	"punchsync/internal/terminal/terminaltest"
	"punchsync/internal/testsupport"
)

var now = time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 4, hour, minute, 0, 0, time.UTC)
}

func rec(userID string, ts time.Time) terminal.Record {
	return terminal.Record{UserID: userID, Timestamp: ts}
}

type fixture struct {
	st     *store.Store
	driver *terminaltest.Driver
	orch   *syncer.Orchestrator
}

func newFixture(t *testing.T, devices string) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithDevices(devices))
	st := testsupport.MustOpenStore(t, cfg)
	shiftID := testsupport.SeedShift(t, st, "day", "09:00", "17:00", 30)
	testsupport.SeedEmployee(t, st, "E001", "7", shiftID)

	driver := terminaltest.NewDriver()
	orch := syncer.New(cfg, st, driver, nil, logging.NewNop())
	orch.SetClock(func() time.Time { return now })
	return &fixture{st: st, driver: driver, orch: orch}
}

func TestSyncAllEndToEnd(t *testing.T) {
	f := newFixture(t, "gate|10.0.0.5:4370")
	f.driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal(
		rec("7", at(9, 0)),
		rec("7", at(13, 0)),
		rec("7", at(17, 30)),
	))
	ctx := context.Background()

	report, err := f.orch.SyncAll(ctx, syncer.Options{AutoAggregate: true})
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if report.DevicesSynced != 1 || report.DevicesFailed != 0 || report.TotalFetched != 3 || report.TotalInserted != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Aggregation == nil || report.Aggregation.ProcessedLogs != 3 || report.Aggregation.Created != 1 {
		t.Fatalf("expected aggregation stats, got %+v", report.Aggregation)
	}

	row, err := f.st.GetAttendance(ctx, "E001", "2024-03-04")
	if err != nil || row == nil {
		t.Fatalf("GetAttendance: %v %v", row, err)
	}
	// Alternation makes the 13:00 swipe a check_out and 17:30 a check_in, so
	// the day closes at 13:00.
	if !row.CheckIn.Equal(at(9, 0)) || !row.CheckOut.Equal(at(13, 0)) {
		t.Fatalf("unexpected bounds %v %v", row.CheckIn, row.CheckOut)
	}
	if row.WorkHours.StringFixed(2) != "3.50" || row.Status != store.StatusPresent {
		t.Fatalf("unexpected row %+v", row)
	}

	punches, _ := f.st.Punches(ctx, store.PunchFilter{})
	if len(punches) != 3 {
		t.Fatalf("expected 3 punches, got %d", len(punches))
	}
	for _, p := range punches {
		if !p.Processed {
			t.Fatalf("punch %d not processed", p.ID)
		}
	}
}

func TestSyncAllEndToEndWithDeviceStates(t *testing.T) {
	f := newFixture(t, "gate|10.0.0.5:4370")
	in := rec("7", at(9, 0))
	in.Punch = terminaltest.IntPtr(0)
	breakOut := rec("7", at(13, 0))
	breakOut.Punch = terminaltest.IntPtr(2)
	out := rec("7", at(17, 30))
	out.Status = terminaltest.IntPtr(1)
	f.driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal(in, breakOut, out))

	if _, err := f.orch.SyncAll(context.Background(), syncer.Options{AutoAggregate: true}); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	row, _ := f.st.GetAttendance(context.Background(), "E001", "2024-03-04")
	if row == nil || !row.CheckOut.Equal(at(17, 30)) || row.WorkHours.StringFixed(2) != "8.00" {
		t.Fatalf("unexpected row %+v", row)
	}
	if row.OvertimeHours.StringFixed(2) != "0.50" {
		t.Fatalf("overtime = %s, want 0.50", row.OvertimeHours)
	}
}

func TestSyncAllIsolatesDeviceFailures(t *testing.T) {
	f := newFixture(t, "gate|10.0.0.5:4370,dock|10.0.0.6:4370,yard|10.0.0.7")
	f.driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal(rec("7", at(9, 0))))
	f.driver.Add("10.0.0.7", 4370, terminaltest.NewTerminal(rec("7", at(17, 0)), rec("99", at(17, 1))))

	report, err := f.orch.SyncAll(context.Background(), syncer.Options{})
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if report.DevicesSynced != 2 || report.DevicesFailed != 1 {
		t.Fatalf("unexpected device counts %+v", report)
	}
	if report.TotalInserted != 2 || report.TotalUnmatchedEmployee != 1 || report.TotalFetched != 3 {
		t.Fatalf("unexpected totals %+v", report)
	}
	names := []string{"gate", "dock", "yard"}
	for i, stats := range report.Devices {
		if stats.Device != names[i] {
			t.Fatalf("device %d = %s, want %s", i, stats.Device, names[i])
		}
	}
	if !report.Devices[1].Failed() || report.Devices[1].ErrorKind != "connection" {
		t.Fatalf("expected dock to fail, got %+v", report.Devices[1])
	}
	if report.Aggregation != nil {
		t.Fatal("expected no aggregation without auto_aggregate")
	}
}

func TestSyncAllWithoutDevices(t *testing.T) {
	f := newFixture(t, "")
	report, err := f.orch.SyncAll(context.Background(), syncer.Options{AutoAggregate: true})
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if report.DevicesSynced != 0 || report.DevicesFailed != 0 || report.TotalFetched != 0 || len(report.Devices) != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

func TestSyncAllSingleDevice(t *testing.T) {
	f := newFixture(t, "gate|10.0.0.5:4370,dock|10.0.0.6:4370")
	gate := f.driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal(rec("7", at(9, 0))))
	dock := f.driver.Add("10.0.0.6", 4370, terminaltest.NewTerminal(rec("7", at(17, 0))))

	report, err := f.orch.SyncAll(context.Background(), syncer.Options{Device: "DOCK"})
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if len(report.Devices) != 1 || report.Devices[0].Device != "dock" || report.TotalInserted != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if connects, _, _, _ := gate.Counts(); connects != 0 {
		t.Fatalf("gate should not be contacted, got %d connects", connects)
	}
	if connects, _, _, _ := dock.Counts(); connects != 1 {
		t.Fatalf("expected one dock connect, got %d", connects)
	}

	_, err = f.orch.SyncAll(context.Background(), syncer.Options{Device: "roof"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSyncAllSkipsAggregationWithoutInserts(t *testing.T) {
	f := newFixture(t, "gate|10.0.0.5:4370")
	f.driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal(rec("7", at(9, 0))))
	ctx := context.Background()

	if _, err := f.orch.SyncAll(ctx, syncer.Options{}); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	report, err := f.orch.SyncAll(ctx, syncer.Options{AutoAggregate: true})
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if report.TotalDuplicates != 1 || report.Aggregation != nil {
		t.Fatalf("expected duplicates only and no aggregation, got %+v", report)
	}
	if n, _ := f.st.CountUnprocessed(ctx); n != 1 {
		t.Fatalf("expected punch left for the next aggregation, got %d", n)
	}
}

func TestConcurrentSyncsDoNotDuplicate(t *testing.T) {
	f := newFixture(t, "gate|10.0.0.5:4370")
	var records []terminal.Record
	for i := 0; i < 20; i++ {
		records = append(records, rec("7", at(9, i)))
	}
	f.driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal(records...))
	ctx := context.Background()

	var wg sync.WaitGroup
	reports := make([]syncer.Report, 3)
	for i := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i], _ = f.orch.SyncAll(ctx, syncer.Options{})
		}()
	}
	wg.Wait()

	inserted := 0
	for _, r := range reports {
		inserted += r.TotalInserted
	}
	count, _ := f.st.CountPunches(ctx)
	if count != 20 || inserted != 20 {
		t.Fatalf("expected 20 stored and inserted, got count=%d inserted=%d", count, inserted)
	}
}

func TestSyncAllWindow(t *testing.T) {
	f := newFixture(t, "gate|10.0.0.5:4370")
	old := rec("7", now.AddDate(0, 0, -3))
	f.driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal(old, rec("7", at(9, 0))))

	since, until := syncer.Window(2, now)
	report, err := f.orch.SyncAll(context.Background(), syncer.Options{Since: since, Until: until})
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if report.TotalFetched != 1 || report.TotalInserted != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if since, _ := syncer.Window(0, now); since != nil {
		t.Fatal("expected open lower bound for zero days")
	}
}

func TestGetSyncStatus(t *testing.T) {
	f := newFixture(t, "gate|10.0.0.5:4370,dock|10.0.0.6")
	f.driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal(rec("7", at(9, 0))))
	ctx := context.Background()

	status, err := f.orch.GetSyncStatus(ctx)
	if err != nil {
		t.Fatalf("GetSyncStatus: %v", err)
	}
	if status.DevicesConfigured != 2 || status.LastSyncTime != nil || status.UnprocessedCount != 0 || len(status.RecentAttendance) != 0 {
		t.Fatalf("unexpected initial status %+v", status)
	}

	report, err := f.orch.SyncAll(ctx, syncer.Options{})
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	status, err = f.orch.GetSyncStatus(ctx)
	if err != nil {
		t.Fatalf("GetSyncStatus: %v", err)
	}
	if status.UnprocessedCount != 1 || status.LastSyncTime == nil || !status.LastSyncTime.Equal(now) {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.LastRun.ID != report.RunID || status.LastRun.DevicesFailed != 1 {
		t.Fatalf("unexpected last run %+v", status.LastRun)
	}
	var devices []map[string]any
	if err := json.Unmarshal([]byte(status.LastRun.ReportJSON), &devices); err != nil || len(devices) != 2 {
		t.Fatalf("unexpected stored device report %q err=%v", status.LastRun.ReportJSON, err)
	}

	if _, err := f.orch.Aggregator().Run(ctx, attendance.Filter{}); err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	status, _ = f.orch.GetSyncStatus(ctx)
	if status.UnprocessedCount != 0 || len(status.RecentAttendance) != 1 {
		t.Fatalf("unexpected status after aggregation %+v", status)
	}
}

func TestTestConnection(t *testing.T) {
	f := newFixture(t, "")
	term := f.driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal(rec("7", at(9, 0))))
	ctx := context.Background()

	result := f.orch.TestConnection(ctx, "10.0.0.5", 0)
	if !result.Success || result.DeviceInfo == nil || result.DeviceInfo.Serial != "FAKE0001" || result.DeviceInfo.RecordsCount != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if term.Disabled() {
		t.Fatal("terminal left disabled")
	}

	term.FailConnects(1)
	result = f.orch.TestConnection(ctx, "10.0.0.5", 4370)
	if result.Success || result.ErrorKind != "connection" {
		t.Fatalf("expected single failed attempt, got %+v", result)
	}
	if connects, _, _, _ := term.Counts(); connects != 2 {
		t.Fatalf("expected no retry on test connection, got %d connects", connects)
	}
}

func TestListConfiguredDevices(t *testing.T) {
	f := newFixture(t, "gate|10.0.0.5:4371, 10.0.0.6 ,bad|host:notaport")
	devices := f.orch.ListConfiguredDevices()
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %+v", devices)
	}
	if devices[0].Name != "gate" || devices[0].Port != 4371 || devices[1].Name != "10.0.0.6:4370" {
		t.Fatalf("unexpected devices %+v", devices)
	}
}
