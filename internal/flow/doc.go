// Package flow selects and runs the hook chains that surround a transfer.
//
// A Spec is a policy rule loaded from YAML files in the flow spec directory.
// Its selector matches a transfer by grid host, zone, and action; host and
// zone accept glob wildcards compared case-insensitively. Every matching spec
// applies, in cache order, so the selected chains run one after another.
//
// Hooks are registered by name in a Registry. The Runner executes the
// pre-operation, pre-file, post-file, and post-operation chains and folds
// each hook's ExecResult into a single verdict for the caller.
package flow
