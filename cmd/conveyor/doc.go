// Package main hosts the conveyor CLI entrypoint and command graph.
//
// The Cobra command tree translates terminal invocations into IPC calls
// against the daemon: enqueueing transfers, inspecting and maintaining the
// queue, unlocking the credential vault, and managing synchronizations.
// Configuration resolution and socket discovery live in commandContext so
// subcommands only deal with presentation.
//
// The same binary runs the daemon itself through `conveyor daemon run`.
package main
