// Package daemonrun hosts the foreground daemon process: it builds the
// logger, store, terminal driver, orchestrator, and scheduler from config,
// writes a pid file, and runs the daemon until a signal arrives.
package daemonrun
