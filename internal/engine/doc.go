// Package engine is the conveyor's single coordinator. It owns the dispatch
// loop that dequeues one transfer at a time, runs it on a worker goroutine
// against the remote client, and publishes running status, error status, and
// per-file progress to subscribed listeners.
//
// At most one worker exists at any moment. A launch requires both an idle
// engine and the queue lock moving from IDLE to RUNNING, so vault operations
// holding the lock delay dispatch instead of racing it. The lock returning to
// IDLE wakes the loop, as does every enqueue and a periodic poll.
package engine
