// Command vconv runs the conversion daemon and talks to it.
//
// `vconv serve` runs the daemon in the foreground; `vconv start` and
// `vconv stop` manage it in the background. Queue commands require a
// running daemon. History commands fall back to opening the history store
// directly when the daemon is down. `vconv convert` runs an in-process queue
// without a daemon.
package main
