// Package logs reads the daemon's rotating log file for `punchsync logs`.
//
// Last returns the newest lines with bounded memory; Follow polls for lines
// appended after an offset and starts over when the file is rotated. Both
// can keep only lines carrying one event_type, in either the console or the
// JSON log format.
package logs
