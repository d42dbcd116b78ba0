// Package history persists completed conversions across sessions.
//
// Two tiers sit behind the Store interface. The primary SQLStore keeps full
// entries, payloads included, in sqlite or postgres. The FallbackStore keeps
// metadata only (payload bytes are dropped and their lengths recorded) as a
// single capped list in a flat key-value backend, pebble or redis.
// TieredStore routes every operation to the primary and degrades to the
// fallback when the primary cannot be opened or fails; its List also turns
// thumbnail bytes into transient display handles through a Materializer.
package history
