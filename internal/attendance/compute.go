package attendance

import (
	"time"

	"github.com/shopspring/decimal"

	"punchsync/internal/punch"
	"punchsync/internal/store"
)

var (
	secondsPerHour = decimal.NewFromInt(3600)
	minutesPerHour = decimal.NewFromInt(60)
)

// Day is the computed aggregate for one employee on one date.
type Day struct {
	CheckIn           *time.Time
	CheckOut          *time.Time
	WorkHours         decimal.Decimal
	LateMinutes       int
	EarlyLeaveMinutes int
	OvertimeHours     decimal.Decimal
	Status            store.Status
}

// Compute derives the day from punches. check_in is the earliest check_in
// punch and check_out the latest check_out punch. Shift start and end are
// both placed on date in loc, so an overnight shift splits across two dates:
// the evening check-in is judged against the start and the next morning's
// check-out against the end.
func Compute(punches []*store.RawPunch, shift *store.Shift, date string, loc *time.Location) (Day, error) {
	day := Day{
		WorkHours:     decimal.Zero,
		OvertimeHours: decimal.Zero,
		Status:        store.StatusPresent,
	}
	for _, p := range punches {
		ts := p.PunchedAt
		switch p.Kind {
		case punch.CheckIn:
			if day.CheckIn == nil || ts.Before(*day.CheckIn) {
				day.CheckIn = &ts
			}
		case punch.CheckOut:
			if day.CheckOut == nil || ts.After(*day.CheckOut) {
				day.CheckOut = &ts
			}
		}
	}

	if day.CheckIn != nil && day.CheckOut != nil {
		day.WorkHours = workHours(*day.CheckIn, *day.CheckOut, shift)
	}

	if shift == nil {
		return day, nil
	}
	start, err := shift.StartOn(date, loc)
	if err != nil {
		return Day{}, err
	}
	end, err := shift.EndOn(date, loc)
	if err != nil {
		return Day{}, err
	}

	if day.CheckIn != nil && day.CheckIn.After(start) {
		day.LateMinutes = int(day.CheckIn.Sub(start) / time.Minute)
	}
	if day.CheckOut != nil {
		switch {
		case day.CheckOut.Before(end):
			day.EarlyLeaveMinutes = int(end.Sub(*day.CheckOut) / time.Minute)
		case day.CheckOut.After(end):
			day.OvertimeHours = hours(day.CheckOut.Sub(end))
		}
	}
	if day.LateMinutes > 0 {
		day.Status = store.StatusLate
	}
	return day, nil
}

func workHours(in, out time.Time, shift *store.Shift) decimal.Decimal {
	if !out.After(in) {
		return decimal.Zero
	}
	worked := decimal.NewFromInt(int64(out.Sub(in) / time.Second)).Div(secondsPerHour)
	if shift != nil && shift.BreakMinutes > 0 {
		worked = worked.Sub(decimal.NewFromInt(int64(shift.BreakMinutes)).Div(minutesPerHour))
	}
	if worked.IsNegative() {
		return decimal.Zero
	}
	return worked.Round(2)
}

func hours(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(d / time.Second)).Div(secondsPerHour).Round(2)
}
