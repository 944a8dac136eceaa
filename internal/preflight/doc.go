// Package preflight provides readiness checks for the filesystem paths and
// external services punchsync depends on.
//
// The daemon runs RunAll at startup and logs failures; the CLI "punchsync
// status" command renders the same results. Checks for optional services
// are skipped when the service is not configured.
package preflight
