// Package queue persists transfers, their attempts, and per-file items in
// SQLite and owns every state transition a transfer goes through.
//
// A transfer is created ENQUEUED with status OK. DequeueNext hands out the
// oldest transfer that is ENQUEUED, PROCESSING (left behind by a crash), or
// PAUSED and flips it to PROCESSING. Each execution try opens an attempt whose
// last successful path is the restart cursor: BeginAttempt seeds it from the
// previous attempt, Restart keeps that history, and Resubmit discards it.
// COMPLETE and CANCELLED transfers are terminal and only leave the table
// through the purge helpers.
package queue
