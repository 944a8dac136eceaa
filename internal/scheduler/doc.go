// Package scheduler runs the daemon's periodic jobs on cron specs: device
// sync over a lookback window, the nightly attendance backfill for
// yesterday, and late-arrival notices for today.
//
// Overlapping ticks of the same job are skipped rather than queued.
package scheduler
