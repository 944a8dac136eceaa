// Package store persists punchsync state in SQLite.
//
// It owns the employee directory (shifts, employees, leaves), the raw punch
// log, daily attendance aggregates, and sync run history. Instants are stored
// as fixed-width UTC text and calendar dates as YYYY-MM-DD in the configured
// attendance zone. Raw punches are unique per (employee, instant, terminal);
// InsertPunch relies on that constraint for idempotent ingestion.
//
// Multi-statement updates go through WithTx. Code inside a transaction must
// only use the Tx methods: the pool holds a single connection.
package store
