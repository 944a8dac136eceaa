// Package api defines the wire-format types and converters for the daemon's
// HTTP API and the CLI's --json output. It translates sync reports, sync
// status, attendance rows, and scheduler jobs into transport-friendly DTOs so
// consumers never couple to store or syncer types.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps are RFC3339 in UTC with
// milliseconds; zero times are omitted. Hour quantities are fixed two-place
// decimal strings ("8.00") so clients never see float rounding.
package api
