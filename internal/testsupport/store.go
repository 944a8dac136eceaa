package testsupport

import (
	"context"
	"testing"

	"punchsync/internal/config"
	"punchsync/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedShift creates a shift and returns its id.
func SeedShift(t testing.TB, st *store.Store, name, start, end string, breakMinutes int) int64 {
	t.Helper()

	id, err := st.UpsertShift(context.Background(), store.Shift{
		Name:         name,
		StartTime:    start,
		EndTime:      end,
		BreakMinutes: breakMinutes,
	})
	if err != nil {
		t.Fatalf("UpsertShift: %v", err)
	}
	return id
}

// SeedEmployee creates an active employee. A zero shiftID leaves the
// employee without a shift.
func SeedEmployee(t testing.TB, st *store.Store, code, deviceUserID string, shiftID int64) {
	t.Helper()

	var shift *int64
	if shiftID != 0 {
		shift = &shiftID
	}
	err := st.UpsertEmployee(context.Background(), store.Employee{
		Code:         code,
		Name:         "Employee " + code,
		DeviceUserID: deviceUserID,
		Active:       true,
	}, shift)
	if err != nil {
		t.Fatalf("UpsertEmployee: %v", err)
	}
}
