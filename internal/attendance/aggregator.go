package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"punchsync/internal/logging"
	"punchsync/internal/punch"
	"punchsync/internal/services"
	"punchsync/internal/store"
)

// Filter scopes aggregation. Empty fields match everything.
type Filter struct {
	EmployeeCode string `json:"employee,omitempty"`
	Date         string `json:"date,omitempty"`
}

// Stats summarizes one aggregation run.
type Stats struct {
	ProcessedLogs int `json:"processed_logs"`
	Created       int `json:"created"`
	Updated       int `json:"updated"`
	Errors        int `json:"errors"`
}

// Aggregator builds daily attendance from raw punches. It has no terminal
// dependency.
type Aggregator struct {
	store  *store.Store
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// New returns an aggregator over st. Shift times are evaluated in the
// store's zone.
func New(st *store.Store, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:  st,
		loc:    st.Location(),
		now:    time.Now,
		logger: logging.NewComponentLogger(logger, "attendance"),
	}
}

// SetClock replaces the clock used for processed_at and backfill defaults.
func (a *Aggregator) SetClock(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

type groupKey struct {
	employee string
	date     string
}

// Run aggregates every unprocessed punch matching filter. Each (employee,
// date) group commits in its own transaction; a failing group is counted and
// left unprocessed. The returned error is non-nil only when the punches
// cannot be listed.
func (a *Aggregator) Run(ctx context.Context, filter Filter) (Stats, error) {
	var stats Stats
	if filter.Date != "" {
		if _, err := time.Parse(punch.DateLayout, filter.Date); err != nil {
			return stats, services.Wrap(services.ErrValidation, "attendance", "run", fmt.Sprintf("date %q", filter.Date), err)
		}
	}
	pending, err := a.store.UnprocessedPunches(ctx, store.PunchFilter{EmployeeCode: filter.EmployeeCode, Date: filter.Date})
	if err != nil {
		return stats, services.Wrap(services.ErrAggregation, "attendance", "list unprocessed", "", err)
	}
	if len(pending) == 0 {
		a.logger.Debug("no unprocessed punches")
		return stats, nil
	}

	var order []groupKey
	groups := make(map[groupKey][]int64)
	for _, p := range pending {
		key := groupKey{employee: p.EmployeeCode, date: p.PunchDate}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p.ID)
	}

	for _, key := range order {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		ids := groups[key]
		created, err := a.processGroup(ctx, key, ids)
		if err != nil {
			stats.Errors++
			logging.WarnWithContext(a.logger, "attendance group failed", "aggregation_failed",
				logging.String(logging.FieldEmployee, key.employee),
				logging.String(logging.FieldDate, key.date),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "fix the employee record then rerun aggregate"),
				logging.String(logging.FieldImpact, "punches stay unprocessed for this day"),
			)
			continue
		}
		stats.ProcessedLogs += len(ids)
		if created {
			stats.Created++
		} else {
			stats.Updated++
		}
	}

	a.logger.Info("aggregation complete",
		logging.String(logging.FieldEventType, "aggregation_complete"),
		logging.Int("groups", len(order)),
		logging.Int("processed_logs", stats.ProcessedLogs),
		logging.Int("created", stats.Created),
		logging.Int("updated", stats.Updated),
		logging.Int("errors", stats.Errors),
	)
	return stats, nil
}

func (a *Aggregator) processGroup(ctx context.Context, key groupKey, ids []int64) (bool, error) {
	var created bool
	err := a.store.WithTx(ctx, func(tx *store.Tx) error {
		emp, err := tx.EmployeeByCode(ctx, key.employee)
		if err != nil {
			return err
		}
		if emp == nil {
			return services.Wrap(services.ErrAggregation, "attendance", "aggregate",
				fmt.Sprintf("employee %s no longer exists", key.employee), nil)
		}

		day, err := tx.DayPunches(ctx, key.employee, key.date)
		if err != nil {
			return err
		}
		computed, err := Compute(day, emp.Shift, key.date, a.loc)
		if err != nil {
			return services.Wrap(services.ErrAggregation, "attendance", "compute", key.employee, err)
		}

		existing, err := tx.GetAttendance(ctx, key.employee, key.date)
		if err != nil {
			return err
		}
		row := &store.Attendance{EmployeeCode: key.employee, Date: key.date}
		if existing != nil {
			row.ID = existing.ID
			row.CreatedAt = existing.CreatedAt
		}
		created = existing == nil
		row.Status = computed.Status
		if existing != nil && !derivedStatus(existing.Status) {
			row.Status = existing.Status
		}
		row.CheckIn = computed.CheckIn
		row.CheckOut = computed.CheckOut
		row.WorkHours = computed.WorkHours
		row.LateMinutes = computed.LateMinutes
		row.EarlyLeaveMinutes = computed.EarlyLeaveMinutes
		row.OvertimeHours = computed.OvertimeHours

		if err := tx.SaveAttendance(ctx, row); err != nil {
			return err
		}
		return tx.MarkProcessed(ctx, ids, a.now())
	})
	return created, err
}

// derivedStatus reports whether status is one aggregation or backfill sets.
// Anything else, such as half_day, was set elsewhere and is kept.
func derivedStatus(status store.Status) bool {
	switch status {
	case store.StatusPresent, store.StatusLate, store.StatusAbsent, store.StatusOnLeave:
		return true
	}
	return false
}
