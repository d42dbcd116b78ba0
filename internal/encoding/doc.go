// Package encoding runs single conversion jobs against a transcoding engine.
//
// Executor drives one fresh engine instance per job through load, input
// staging, execution, and output collection, translating the engine's log
// stream into integer progress percentages. Thumbnailer extracts a preview
// frame with its own short-lived engine and never fails the caller.
package encoding
