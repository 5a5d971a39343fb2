// Package daemon hosts the long-running conveyor process: it takes the
// single-instance lock, starts the execution engine, and runs the supporting
// loops (FlowSpec reload, synchronization scheduler, HTTP status and metrics
// endpoint) in one errgroup that is torn down together on Stop.
//
// The IPC server in internal/ipc drives a Daemon; the CLI never touches it
// directly.
package daemon
