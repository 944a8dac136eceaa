package punch

import (
	"context"
	"time"

	"punchsync/internal/terminal"
)

// DayLookup returns the kind of the latest stored punch for an employee on a
// calendar date.
type DayLookup interface {
	LastPunchKind(ctx context.Context, employeeCode, date string) (Kind, bool, error)
}

// Resolver infers punch kinds.
type Resolver struct {
	lookup DayLookup
	loc    *time.Location
}

// NewResolver returns a resolver that reads same-day punches through lookup
// and derives calendar dates in loc.
func NewResolver(lookup DayLookup, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{lookup: lookup, loc: loc}
}

// FromHints maps terminal-supplied state. The punch-state code wins over the
// binary status flag; out-of-range codes are ignored.
func FromHints(rec terminal.Record) (Kind, bool) {
	if rec.Punch != nil {
		if p := *rec.Punch; p >= 0 && p < len(Kinds) {
			return Kinds[p], true
		}
	}
	if rec.Status != nil {
		switch *rec.Status {
		case 0:
			return CheckIn, true
		case 1:
			return CheckOut, true
		}
	}
	return "", false
}

// Resolve returns the kind for rec stamped at ts. Without terminal hints it
// alternates against the employee's latest punch that day: none or a
// check_out/break_out means check_in, check_in/break_in means check_out.
//
// The alternation is a best-effort guess. A forgotten punch flips every later
// punch that day.
func (r *Resolver) Resolve(ctx context.Context, rec terminal.Record, employeeCode string, ts time.Time) (Kind, error) {
	if kind, ok := FromHints(rec); ok {
		return kind, nil
	}
	if r.lookup == nil {
		return CheckIn, nil
	}
	last, ok, err := r.lookup.LastPunchKind(ctx, employeeCode, DateOf(ts, r.loc))
	if err != nil {
		return "", err
	}
	if !ok {
		return CheckIn, nil
	}
	return Alternate(last), nil
}

// Alternate returns the kind that follows last in the fallback sequence.
func Alternate(last Kind) Kind {
	switch last {
	case CheckIn, BreakIn:
		return CheckOut
	default:
		return CheckIn
	}
}
