// Package punch classifies raw terminal swipes.
//
// Validate applies per-record sanity checks and Resolver infers the semantic
// punch kind. Both are free of I/O apart from the same-day lookup the
// resolver is given.
package punch

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the semantic type of a punch.
type Kind string

const (
	CheckIn  Kind = "check_in"
	CheckOut Kind = "check_out"
	BreakOut Kind = "break_out"
	BreakIn  Kind = "break_in"
)

// Kinds lists every punch kind in terminal punch-state order.
var Kinds = []Kind{CheckIn, CheckOut, BreakOut, BreakIn}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case CheckIn, CheckOut, BreakOut, BreakIn:
		return true
	}
	return false
}

// ParseKind parses a stored kind.
func ParseKind(value string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(value)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown punch kind %q", value)
	}
	return k, nil
}

// DateLayout formats calendar dates.
const DateLayout = "2006-01-02"

// DateOf returns the calendar date of ts in loc.
func DateOf(ts time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return ts.In(loc).Format(DateLayout)
}
