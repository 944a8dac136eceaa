// Package config loads, normalizes, and validates punchsync configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a working-directory .env file, and
// honours environment fallbacks such as PUNCHSYNC_DEVICES. The Config type
// centralizes every knob the daemon and CLI need: storage paths, the terminal
// list and connection policy, the attendance time zone, schedules, and
// notification settings.
//
// The terminal list is read once here and handed to the registry; nothing
// downstream re-reads configuration storage ad hoc.
package config
