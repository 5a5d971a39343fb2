// Package remote defines the contract between the conveyor and a grid
// storage client: the operations a client performs, the immutable progress
// values it reports, and the shared control block it polls between files.
//
// Clients never block on the control block. They check Control.Checkpoint
// before each file and stop at that point when the job is paused, cancelled,
// or has accumulated too many per-file errors.
package remote
