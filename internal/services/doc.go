// Package services defines shared utilities consumed by the conversion
// executor, the queue scheduler, and the history store.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, executor stages, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper, so callers can classify
//     failures with errors.Is and surface a generic message on failed jobs.
package services
