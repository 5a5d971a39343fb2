// Package services defines shared utilities consumed by the conveyor
// components.
//
// Key responsibilities:
//   - Context helpers that stamp transfer, attempt, and correlation
//     identifiers for logging.
//   - Sentinel error markers plus the Wrap helper so callers can tell a busy
//     queue from a bad pass phrase or a validation failure.
//   - Kind round-tripping so the markers survive the IPC boundary.
package services
