// Package notifications posts transfer outcome alerts to an ntfy topic.
//
// The daemon subscribes a Listener to the engine; finished transfers with
// ERROR or WARNING status (and OK ones when notify_success is set) become
// one ntfy message each. Delivery runs off the engine goroutine and failures
// are logged, never returned to the engine.
package notifications
