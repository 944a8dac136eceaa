// Package syncer is the entry point the CLI, scheduler, and HTTP API call.
//
// SyncAll ingests every configured terminal independently, sums the
// per-device stats into one Report, optionally aggregates new punches, and
// records the run. Per-record and per-device failures only surface as
// counters and per-device error strings.
package syncer
