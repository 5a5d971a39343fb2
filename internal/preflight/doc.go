// Package preflight provides readiness checks for the filesystem paths and
// services conveyor depends on.
//
// The CLI "conveyor config check" command runs RunAll and prints one line per
// check. Checks for optional features are skipped when the feature is not
// configured.
package preflight
