// Package daemon coordinates the long-running punchsync process.
//
// It wires configuration, the attendance store, the sync orchestrator, and
// the cron scheduler into a single lifecycle with flock-based locking to
// prevent multiple instances. While running it serves a small JSON API for
// status, the configured devices, and on-demand syncs.
//
// Keep orchestration logic here: sync and aggregation live in their own
// packages while the daemon focuses on startup, shutdown, and exposure.
package daemon
