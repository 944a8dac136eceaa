// Package attendance folds raw punches into daily attendance rows.
//
// Aggregator.Run picks up unprocessed punches, groups them by employee and
// calendar date, and recomputes each day from every punch stored for it, so
// reruns converge on the same values. Backfill fills punch-less days with
// absent or on_leave rows, and NotifyLate reports late arrivals.
package attendance
