// Package preflight provides readiness checks for the filesystem paths and
// services the daemon depends on.
//
// The daemon runs RunAll once at startup and refuses to start when a
// required check fails; the CLI status command reuses the individual check
// functions to display health. Optional services (ntfy) only degrade the
// report, never block startup.
package preflight
