// Package config loads, normalizes, and validates vconv configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VCONV_HISTORY_DSN and VCONV_REDIS_ADDR. The Config type centralizes every
// knob the daemon and CLI need so the engine, the history tiers, and the
// logging pipeline are configured in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
