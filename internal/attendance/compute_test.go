package attendance_test

import (
	"testing"
	"time"

	"punchsync/internal/attendance"
	"punchsync/internal/punch"
	"punchsync/internal/store"
)

const day = "2024-03-04"

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 4, hour, minute, 0, 0, time.UTC)
}

func raw(kind punch.Kind, ts time.Time) *store.RawPunch {
	return &store.RawPunch{EmployeeCode: "E001", PunchedAt: ts, PunchDate: day, Kind: kind}
}

func shift(start, end string, breakMinutes int) *store.Shift {
	return &store.Shift{Name: "day", StartTime: start, EndTime: end, BreakMinutes: breakMinutes}
}

func TestComputeWorkHoursSubtractsBreak(t *testing.T) {
	got, err := attendance.Compute([]*store.RawPunch{
		raw(punch.CheckIn, at(9, 0)),
		raw(punch.CheckOut, at(17, 30)),
	}, shift("09:00", "17:30", 30), day, time.UTC)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got.WorkHours.StringFixed(2) != "8.00" {
		t.Fatalf("work hours = %s, want 8.00", got.WorkHours)
	}
	if got.Status != store.StatusPresent || got.LateMinutes != 0 || got.EarlyLeaveMinutes != 0 || !got.OvertimeHours.IsZero() {
		t.Fatalf("unexpected day %+v", got)
	}
}

func TestComputeLateness(t *testing.T) {
	cases := []struct {
		checkIn    time.Time
		wantLate   int
		wantStatus store.Status
	}{
		{at(9, 20), 20, store.StatusLate},
		{at(8, 55), 0, store.StatusPresent},
		{at(9, 0), 0, store.StatusPresent},
		{at(9, 0).Add(59 * time.Second), 0, store.StatusPresent},
	}
	for _, tc := range cases {
		got, err := attendance.Compute([]*store.RawPunch{raw(punch.CheckIn, tc.checkIn)}, shift("09:00", "17:00", 0), day, time.UTC)
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if got.LateMinutes != tc.wantLate || got.Status != tc.wantStatus {
			t.Fatalf("check_in %s: late=%d status=%s, want %d %s",
				tc.checkIn.Format("15:04:05"), got.LateMinutes, got.Status, tc.wantLate, tc.wantStatus)
		}
	}
}

func TestComputeOvertimeAndEarlyLeave(t *testing.T) {
	got, err := attendance.Compute([]*store.RawPunch{
		raw(punch.CheckIn, at(9, 0)),
		raw(punch.CheckOut, at(18, 15)),
	}, shift("09:00", "17:00", 0), day, time.UTC)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got.OvertimeHours.StringFixed(2) != "1.25" || got.EarlyLeaveMinutes != 0 {
		t.Fatalf("unexpected overtime day %+v", got)
	}

	got, err = attendance.Compute([]*store.RawPunch{
		raw(punch.CheckIn, at(9, 0)),
		raw(punch.CheckOut, at(16, 30)),
	}, shift("09:00", "17:00", 0), day, time.UTC)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got.EarlyLeaveMinutes != 30 || !got.OvertimeHours.IsZero() {
		t.Fatalf("unexpected early leave day %+v", got)
	}
}

func TestComputeLateWithoutCheckOut(t *testing.T) {
	got, err := attendance.Compute([]*store.RawPunch{raw(punch.CheckIn, at(9, 45))}, shift("09:00", "17:00", 60), day, time.UTC)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got.CheckOut != nil || !got.WorkHours.IsZero() {
		t.Fatalf("expected open day, got %+v", got)
	}
	if got.LateMinutes != 45 || got.Status != store.StatusLate {
		t.Fatalf("expected lateness from check_in alone, got %+v", got)
	}
}

func TestComputeUsesEarliestInAndLatestOut(t *testing.T) {
	got, err := attendance.Compute([]*store.RawPunch{
		raw(punch.CheckOut, at(12, 0)),
		raw(punch.CheckIn, at(13, 0)),
		raw(punch.CheckIn, at(8, 30)),
		raw(punch.BreakOut, at(10, 0)),
		raw(punch.CheckOut, at(17, 0)),
	}, nil, day, time.UTC)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !got.CheckIn.Equal(at(8, 30)) || !got.CheckOut.Equal(at(17, 0)) {
		t.Fatalf("unexpected bounds %v %v", got.CheckIn, got.CheckOut)
	}
	if got.WorkHours.StringFixed(2) != "8.50" {
		t.Fatalf("work hours = %s, want 8.50 without a shift break", got.WorkHours)
	}
}

func TestComputeOvernightShift(t *testing.T) {
	night := shift("22:00", "06:00", 0)

	evening, err := attendance.Compute([]*store.RawPunch{raw(punch.CheckIn, at(22, 10))}, night, day, time.UTC)
	if err != nil {
		t.Fatalf("Compute evening: %v", err)
	}
	if evening.LateMinutes != 10 || evening.Status != store.StatusLate || evening.CheckOut != nil {
		t.Fatalf("unexpected evening %+v", evening)
	}

	morning, err := attendance.Compute([]*store.RawPunch{
		raw(punch.CheckOut, time.Date(2024, 3, 5, 6, 30, 0, 0, time.UTC)),
	}, night, "2024-03-05", time.UTC)
	if err != nil {
		t.Fatalf("Compute morning: %v", err)
	}
	if morning.EarlyLeaveMinutes != 0 || morning.OvertimeHours.StringFixed(2) != "0.50" || morning.Status != store.StatusPresent {
		t.Fatalf("unexpected morning %+v", morning)
	}
}

func TestComputeShiftInZone(t *testing.T) {
	riyadh := time.FixedZone("AST", 3*60*60)
	// 06:20 UTC is 09:20 in Riyadh.
	got, err := attendance.Compute([]*store.RawPunch{raw(punch.CheckIn, at(6, 20))}, shift("09:00", "17:00", 0), day, riyadh)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got.LateMinutes != 20 {
		t.Fatalf("late = %d, want 20", got.LateMinutes)
	}
}

func TestComputeCheckOutBeforeCheckIn(t *testing.T) {
	got, err := attendance.Compute([]*store.RawPunch{
		raw(punch.CheckOut, at(8, 0)),
		raw(punch.CheckIn, at(9, 0)),
	}, nil, day, time.UTC)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !got.WorkHours.IsZero() {
		t.Fatalf("expected zero work hours, got %s", got.WorkHours)
	}
}
