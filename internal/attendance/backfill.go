package attendance

import (
	"context"
	"fmt"
	"time"

	"punchsync/internal/logging"
	"punchsync/internal/notifications"
	"punchsync/internal/punch"
	"punchsync/internal/services"
	"punchsync/internal/store"
)

// DaySummary counts a date's attendance rows by status after a backfill.
type DaySummary struct {
	Date           string `json:"date"`
	TotalEmployees int    `json:"total_employees"`
	Created        int    `json:"created"`
	Present        int    `json:"present"`
	Late           int    `json:"late"`
	Absent         int    `json:"absent"`
	OnLeave        int    `json:"on_leave"`
	HalfDay        int    `json:"half_day"`
}

// Today returns the current date in the aggregator's zone.
func (a *Aggregator) Today() string {
	return punch.DateOf(a.now(), a.loc)
}

// Yesterday returns the date before now in the aggregator's zone.
func (a *Aggregator) Yesterday() string {
	return punch.DateOf(a.now().AddDate(0, 0, -1), a.loc)
}

// Backfill gives every active employee without a row on date an on_leave
// row when an approved leave covers the date, otherwise absent. Existing
// rows are never touched. Only past dates are accepted.
func (a *Aggregator) Backfill(ctx context.Context, date string) (DaySummary, error) {
	summary := DaySummary{Date: date}
	day, err := time.ParseInLocation(punch.DateLayout, date, a.loc)
	if err != nil {
		return summary, services.Wrap(services.ErrValidation, "attendance", "backfill", fmt.Sprintf("date %q", date), err)
	}
	if today := punch.DateOf(a.now(), a.loc); date >= today {
		return summary, services.Wrap(services.ErrValidation, "attendance", "backfill",
			fmt.Sprintf("%s is not in the past", day.Format(punch.DateLayout)), nil)
	}

	employees, err := a.store.ListEmployees(ctx, true)
	if err != nil {
		return summary, err
	}
	summary.TotalEmployees = len(employees)

	for _, emp := range employees {
		status := store.StatusAbsent
		onLeave, err := a.store.HasApprovedLeave(ctx, emp.Code, date)
		if err != nil {
			return summary, err
		}
		if onLeave {
			status = store.StatusOnLeave
		}
		created, err := a.store.InsertAttendanceIfAbsent(ctx, emp.Code, date, status)
		if err != nil {
			return summary, err
		}
		if created {
			summary.Created++
		}
	}

	rows, err := a.store.AttendanceOn(ctx, date)
	if err != nil {
		return summary, err
	}
	for _, row := range rows {
		switch row.Status {
		case store.StatusPresent:
			summary.Present++
		case store.StatusLate:
			summary.Late++
		case store.StatusAbsent:
			summary.Absent++
		case store.StatusOnLeave:
			summary.OnLeave++
		case store.StatusHalfDay:
			summary.HalfDay++
		}
	}

	a.logger.Info("attendance backfilled",
		logging.String(logging.FieldEventType, "backfill_complete"),
		logging.String(logging.FieldDate, date),
		logging.Int("created", summary.Created),
		logging.Int("absent", summary.Absent),
		logging.Int("on_leave", summary.OnLeave),
	)
	return summary, nil
}

// NotifyLate sends one late-arrival notice per late row on date and returns
// how many were delivered. A failed delivery is logged and skipped.
func (a *Aggregator) NotifyLate(ctx context.Context, date string, notifier notifications.Service) (int, error) {
	if _, err := time.Parse(punch.DateLayout, date); err != nil {
		return 0, services.Wrap(services.ErrValidation, "attendance", "notify late", fmt.Sprintf("date %q", date), err)
	}
	rows, err := a.store.LateArrivals(ctx, date)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, row := range rows {
		late := notifications.LateArrival{
			EmployeeCode: row.EmployeeCode,
			Date:         row.Date,
			Minutes:      row.LateMinutes,
			CheckIn:      row.CheckIn,
		}
		if emp, err := a.store.EmployeeByCode(ctx, row.EmployeeCode); err == nil && emp != nil {
			late.Name = emp.Name
		}
		if err := notifier.NotifyLateArrival(ctx, late); err != nil {
			logging.WarnWithContext(a.logger, "late arrival notice failed", "notification_failed",
				logging.String(logging.FieldEmployee, row.EmployeeCode),
				logging.String(logging.FieldDate, date),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
				logging.String(logging.FieldImpact, "the late arrival is not announced"),
			)
			continue
		}
		sent++
	}
	a.logger.Info("late arrival notices sent",
		logging.String(logging.FieldDate, date),
		logging.Int("late", len(rows)),
		logging.Int("sent", sent),
	)
	return sent, nil
}
