package engine

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotLoaded is returned when an engine is used before Load succeeds.
	ErrNotLoaded = errors.New("engine not loaded")
	// ErrTerminated is returned once Terminate has been called.
	ErrTerminated = errors.New("engine terminated")
	// ErrInvalidName is returned for namespace names that are not plain file names.
	ErrInvalidName = errors.New("invalid engine file name")
)

// LoadConfig describes where the engine binary lives and where its scratch
// namespace is created.
type LoadConfig struct {
	Binary  string
	WorkDir string
}

// Engine is one transcoding engine instance.
type Engine interface {
	// Load prepares the instance. It may take a long time and has no timeout.
	Load(ctx context.Context, cfg LoadConfig) error
	// OnLog registers an observer for every log line the engine emits.
	OnLog(fn func(line string))
	// WriteInput copies r into the namespace under name.
	WriteInput(name string, r io.Reader) error
	// Execute runs the engine with args. Relative file names in args resolve
	// inside the namespace.
	Execute(ctx context.Context, args []string) error
	// ReadOutput returns the bytes of a file the engine produced.
	ReadOutput(name string) ([]byte, error)
	// Terminate kills any running process and releases the namespace. It is
	// idempotent and safe before Load.
	Terminate()
}

// Factory creates a fresh, unloaded engine instance.
type Factory func() Engine
