// Package api defines wire-format types, converters, and the HTTP client for
// the daemon API. It translates queue jobs and history entries into
// transport-friendly DTOs that the CLI and other consumers can render without
// coupling to internal types.
//
// # Key Types
//
// Job: transport representation of a queue job with progress, error, and
// result metadata. Payload bytes are never inlined; results are downloaded
// from /api/queue/{id}/result.
//
// HistoryEntry: a completed conversion with its thumbnail exposed as a URL
// behind a transient display handle.
//
// DaemonStatus: daemon running state, scheduler summary, and dependencies.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums (queue.Status, queue.Mode) are
// exposed as lowercase strings. Timestamps use RFC3339 with milliseconds.
package api
