// Command punchsync pulls punches from biometric time clocks, reconciles them
// into daily attendance, and runs the background daemon that does both on a
// schedule.
//
// One-shot commands (sync, aggregate, backfill, notify-late, devices,
// employees) open the database directly. The daemon subcommands talk to a
// running daemon over its HTTP API.
package main
