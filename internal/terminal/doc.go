// Package terminal wraps a single fingerprint time-clock connection.
//
// A Client owns one Session obtained from an injected Driver. Connect retries
// with a fixed delay and puts the terminal into transfer mode; Disconnect
// restores interactive mode and is safe to call unconditionally. Read
// operations on a client that is not connected return no data.
//
// Drivers speak the terminal protocol; see the bridge subpackage for the HTTP
// gateway driver and terminaltest for a scripted in-memory one.
package terminal
