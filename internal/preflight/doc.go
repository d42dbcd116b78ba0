// Package preflight provides readiness checks for the paths, binaries, and
// history backends vconv depends on.
//
// The daemon runs RunAll at startup and logs failures without refusing to
// start; the CLI "vconv status" command renders the same results.
package preflight
