package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"vconv/internal/services"
)

// tailLines bounds how much engine output is kept for error reporting.
const tailLines = 8

// Option configures an FFmpeg engine.
type Option func(*FFmpeg)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(f *FFmpeg) {
		if exec != nil {
			f.exec = exec
		}
	}
}

// WithLookPath overrides binary resolution during Load.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(f *FFmpeg) {
		if fn != nil {
			f.lookPath = fn
		}
	}
}

// FFmpeg runs the ffmpeg CLI inside a per-instance scratch directory.
type FFmpeg struct {
	exec     Executor
	lookPath func(string) (string, error)

	mu         sync.Mutex
	binary     string
	dir        string
	observers  []func(string)
	cancel     context.CancelFunc
	terminated bool
	tail       []string
}

// NewFFmpeg constructs an unloaded ffmpeg engine.
func NewFFmpeg(opts ...Option) *FFmpeg {
	f := &FFmpeg{
		exec:     commandExecutor{},
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFFmpegFactory returns a Factory producing fresh ffmpeg engines.
func NewFFmpegFactory(opts ...Option) Factory {
	return func() Engine {
		return NewFFmpeg(opts...)
	}
}

func (f *FFmpeg) Load(ctx context.Context, cfg LoadConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	resolved, err := f.lookPath(binary)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "engine", "load", fmt.Sprintf("locate %s", binary), err)
	}
	if cfg.WorkDir != "" {
		if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
			return services.Wrap(services.ErrExternalTool, "engine", "load", "create work dir", err)
		}
	}
	dir, err := os.MkdirTemp(cfg.WorkDir, "vconv-engine-")
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "engine", "load", "create namespace", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.terminated {
		_ = os.RemoveAll(dir)
		return ErrTerminated
	}
	if f.dir != "" {
		_ = os.RemoveAll(f.dir)
	}
	f.binary = resolved
	f.dir = dir
	return nil
}

func (f *FFmpeg) OnLog(fn func(line string)) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	f.observers = append(f.observers, fn)
	f.mu.Unlock()
}

func (f *FFmpeg) WriteInput(name string, r io.Reader) error {
	path, err := f.pathFor(name)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return nil
}

func (f *FFmpeg) ReadOutput(name string) ([]byte, error) {
	path, err := f.pathFor(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (f *FFmpeg) Execute(ctx context.Context, args []string) error {
	f.mu.Lock()
	if f.terminated {
		f.mu.Unlock()
		return ErrTerminated
	}
	if f.dir == "" {
		f.mu.Unlock()
		return ErrNotLoaded
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.tail = f.tail[:0]
	dir, binary := f.dir, f.binary
	f.mu.Unlock()
	defer cancel()

	full := append([]string{"-nostdin", "-y"}, args...)
	err := f.exec.Run(runCtx, dir, binary, full, f.dispatch)

	f.mu.Lock()
	f.cancel = nil
	terminated := f.terminated
	tail := strings.Join(f.tail, " | ")
	f.mu.Unlock()

	switch {
	case err == nil:
		return nil
	case terminated:
		return ErrTerminated
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: %w", services.ErrCanceled, ctx.Err())
	}
	message := "ffmpeg exited with error"
	if tail != "" {
		message = fmt.Sprintf("%s (%s)", message, tail)
	}
	return services.Wrap(services.ErrExternalTool, "engine", "execute", message, err)
}

func (f *FFmpeg) Terminate() {
	f.mu.Lock()
	if f.terminated {
		f.mu.Unlock()
		return
	}
	f.terminated = true
	cancel := f.cancel
	dir := f.dir
	f.dir = ""
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if dir != "" {
		_ = os.RemoveAll(dir)
	}
}

// Dir returns the scratch namespace, or "" when unloaded or terminated.
func (f *FFmpeg) Dir() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dir
}

func (f *FFmpeg) dispatch(line string) {
	f.mu.Lock()
	if len(f.tail) == tailLines {
		copy(f.tail, f.tail[1:])
		f.tail = f.tail[:tailLines-1]
	}
	f.tail = append(f.tail, strings.TrimSpace(line))
	observers := append([]func(string){}, f.observers...)
	f.mu.Unlock()

	for _, fn := range observers {
		fn(line)
	}
}

func (f *FFmpeg) pathFor(name string) (string, error) {
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.terminated {
		return "", ErrTerminated
	}
	if f.dir == "" {
		return "", ErrNotLoaded
	}
	return filepath.Join(f.dir, name), nil
}
