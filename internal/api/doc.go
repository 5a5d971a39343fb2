// Package api is the operator-facing facade over the conveyor core. It
// exposes every enqueue, control, query, vault and synchronization operation
// through one Service and translates internal models into transport-friendly
// DTOs for the IPC layer and the CLI.
//
// # Key Types
//
// Service: wraps the engine, job store, vault and synchronization service.
//
// Transfer/Attempt/Item: queue records with timestamps rendered as RFC3339
// strings and enums as their upper-case names.
//
// Account: a grid account without its password ciphertext.
//
// EngineStatus: running status, error status, active transfer and queue
// counts.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Lookups that find nothing return
// services.ErrNotFound rather than a nil DTO so the IPC layer can map the
// error kind onto the wire.
package api
