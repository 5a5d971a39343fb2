// Package config loads, normalizes, and validates conveyor configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and checks field constraints with struct
// validation tags before applying cross-field rules. The Config type
// centralizes every knob the daemon and CLI need, including the per-file
// logging switch and the max-errors-before-cancel threshold handed to every job.
package config
