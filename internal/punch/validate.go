package punch

import (
	"fmt"
	"time"

	"punchsync/internal/services"
)

// MaxAge is how far in the past a punch may be. A punch exactly MaxAge old
// is accepted.
const MaxAge = 365 * 24 * time.Hour

// Reason names the rule a record failed.
type Reason string

const (
	ReasonMissingTimestamp Reason = "missing_timestamp"
	ReasonFuture           Reason = "future_timestamp"
	ReasonTooOld           Reason = "stale_timestamp"
	ReasonInactive         Reason = "inactive_employee"
)

// Employee is the directory data the validator needs.
type Employee struct {
	Code   string
	Active bool
}

// InvalidError reports why a record was rejected.
type InvalidError struct {
	Reason Reason
	Detail string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// Unwrap ties every rejection to services.ErrValidation.
func (e *InvalidError) Unwrap() error { return services.ErrValidation }

// Validate checks one record against now. Rules run in order and the first
// failure wins: timestamp present, not in the future, not older than MaxAge,
// employee active. It returns nil for a valid record.
func Validate(ts time.Time, emp Employee, now time.Time) error {
	if ts.IsZero() {
		return &InvalidError{Reason: ReasonMissingTimestamp, Detail: "record carries no timestamp"}
	}
	if ts.After(now) {
		return &InvalidError{Reason: ReasonFuture, Detail: fmt.Sprintf("timestamp %s is after %s", ts.Format(time.RFC3339), now.Format(time.RFC3339))}
	}
	if ts.Before(now.Add(-MaxAge)) {
		return &InvalidError{Reason: ReasonTooOld, Detail: fmt.Sprintf("timestamp %s is older than 365 days", ts.Format(time.RFC3339))}
	}
	if !emp.Active {
		return &InvalidError{Reason: ReasonInactive, Detail: fmt.Sprintf("employee %s is not active", emp.Code)}
	}
	return nil
}
