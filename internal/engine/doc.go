// Package engine drives the external transcoding engine.
//
// An Engine instance owns a private scratch directory that serves as its
// virtual file namespace: inputs are written into it, the engine runs with it
// as the working directory, and outputs are read back out. Instances are
// single-use; Terminate kills any running process and deletes the namespace.
//
// FFmpeg is the production implementation. Process execution goes through
// the Executor interface so tests can feed canned log output without an
// ffmpeg binary.
package engine
