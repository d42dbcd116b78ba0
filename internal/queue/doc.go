// Package queue owns the conversion job list and the scheduler that drives
// it.
//
// The Scheduler is the single owner of job state. It runs at most one job at
// a time and keeps an explicit Idle/Busy mode; Notify is the only way work is
// started, and every state change (enqueue, completion, removal) ends by
// calling it. Re-entrant calls while Busy are no-ops.
//
// Removing the converting job cancels its context and halts its engine. Clear
// is a hard abort of the whole list. Completions that arrive for a run which
// was removed or cleared are discarded via a per-run token.
//
// Jobs live in memory only; completed results are handed to the history
// store, which is the durable record.
package queue
