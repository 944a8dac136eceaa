// Package ingest pulls one terminal's punch buffer into the raw punch log.
//
// A run connects with retry, fetches the buffer in the requested window,
// maps each record to an employee, validates it, resolves its punch kind,
// and inserts it unless the same swipe is already stored. Per-record
// failures are counted and never abort the batch. The terminal is always
// re-enabled and disconnected before Run returns.
package ingest
