// Package daemonctl controls a punchsync daemon from the CLI: it launches
// the detached process, talks to its HTTP API, and stops it by pid.
package daemonctl
