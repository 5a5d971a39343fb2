// Package database owns the conveyor's SQLite file: connection pragmas, the
// embedded schema and its version check, busy retries, and the small scan
// helpers shared by the queue, vault, and synchronization stores.
package database
