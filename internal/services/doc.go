// Package services defines shared utilities consumed by the sync pipeline,
// the aggregator, and the outer command surfaces.
//
// Key responsibilities:
//   - Context helpers that stamp sync run IDs and terminal names for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (connection, driver, validation, aggregation) so callers can decide
//     whether a failure is retried, counted, or surfaced.
//
// Use these helpers when wiring new pipeline stages so error handling and
// observability stay uniform across devices.
package services
