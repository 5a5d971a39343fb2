// Package synch stores recurring synchronization definitions and turns them
// into SYNCH transfers.
//
// A Synchronization names a local directory, a remote collection, a
// direction and a frequency. TriggerNow enqueues one run unless an earlier
// run of the same synchronization is still ENQUEUED, PROCESSING or PAUSED.
// The Scheduler triggers due synchronizations on a fixed cadence through the
// same path, and the engine reports each run's outcome back through
// RecordOutcome.
package synch
