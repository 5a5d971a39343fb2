// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// Every request carries a request id that the server threads into the
// context so daemon log lines for one CLI call share a correlation id. Errors
// cross the socket as "[kind] message" and the client rebuilds them with
// services.FromKind, so callers can still use errors.Is against the service
// markers.
package ipc
