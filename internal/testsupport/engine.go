package testsupport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"vconv/internal/engine"
)

// FakeEngine is an in-memory engine.Engine. Execute replays Lines to the
// registered observers and then materializes Outputs in the namespace.
type FakeEngine struct {
	LoadErr error
	ExecErr error
	Lines   []string
	Outputs map[string][]byte
	// Block, when set, makes Execute wait until it is closed, the engine is
	// terminated, or the context ends.
	Block chan struct{}

	mu         sync.Mutex
	loaded     bool
	terminated bool
	halt       chan struct{}
	files      map[string][]byte
	observers  []func(string)
	args       [][]string
	started    chan struct{}
}

// NewFakeEngine returns an engine that produces outputs when executed.
func NewFakeEngine(outputs map[string][]byte) *FakeEngine {
	return &FakeEngine{Outputs: outputs}
}

func (f *FakeEngine) init() {
	if f.halt == nil {
		f.halt = make(chan struct{})
		f.started = make(chan struct{})
		f.files = make(map[string][]byte)
	}
}

func (f *FakeEngine) Load(ctx context.Context, _ engine.LoadConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if f.terminated {
		return engine.ErrTerminated
	}
	if f.LoadErr != nil {
		return f.LoadErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.loaded = true
	return nil
}

func (f *FakeEngine) OnLog(fn func(string)) {
	f.mu.Lock()
	f.observers = append(f.observers, fn)
	f.mu.Unlock()
}

func (f *FakeEngine) WriteInput(name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loaded || f.terminated {
		return engine.ErrNotLoaded
	}
	f.files[name] = data
	return nil
}

func (f *FakeEngine) Execute(ctx context.Context, args []string) error {
	f.mu.Lock()
	f.init()
	if f.terminated {
		f.mu.Unlock()
		return engine.ErrTerminated
	}
	if !f.loaded {
		f.mu.Unlock()
		return engine.ErrNotLoaded
	}
	f.args = append(f.args, append([]string(nil), args...))
	observers := append([]func(string){}, f.observers...)
	halt, started := f.halt, f.started
	f.mu.Unlock()

	select {
	case <-started:
	default:
		close(started)
	}

	for _, line := range f.Lines {
		for _, fn := range observers {
			fn(line)
		}
	}
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-halt:
			return engine.ErrTerminated
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.ExecErr != nil {
		return f.ExecErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.terminated {
		return engine.ErrTerminated
	}
	for name, data := range f.Outputs {
		f.files[name] = data
	}
	return nil
}

func (f *FakeEngine) ReadOutput(name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[name]
	if !ok {
		return nil, fmt.Errorf("read %s: file does not exist", name)
	}
	return bytes.Clone(data), nil
}

func (f *FakeEngine) Terminate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if f.terminated {
		return
	}
	f.terminated = true
	close(f.halt)
}

// Started is closed once Execute has been entered.
func (f *FakeEngine) Started() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	return f.started
}

// Terminated reports whether Terminate has been called.
func (f *FakeEngine) Terminated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminated
}

// Args returns every argument list passed to Execute.
func (f *FakeEngine) Args() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.args))
	copy(out, f.args)
	return out
}

// Input returns the bytes written under name.
func (f *FakeEngine) Input(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[name]
	return data, ok
}

// EngineRecorder hands out fake engines from Build and remembers them.
type EngineRecorder struct {
	Build func(n int) *FakeEngine

	mu      sync.Mutex
	engines []*FakeEngine
	created chan *FakeEngine
}

// NewEngineRecorder constructs a recorder. build receives the zero-based
// index of the engine being created.
func NewEngineRecorder(build func(n int) *FakeEngine) *EngineRecorder {
	return &EngineRecorder{Build: build, created: make(chan *FakeEngine, 64)}
}

// Factory adapts the recorder to engine.Factory.
func (r *EngineRecorder) Factory() engine.Factory {
	return func() engine.Engine {
		r.mu.Lock()
		n := len(r.engines)
		r.mu.Unlock()
		var eng *FakeEngine
		if r.Build != nil {
			eng = r.Build(n)
		}
		if eng == nil {
			eng = NewFakeEngine(nil)
		}
		r.mu.Lock()
		r.engines = append(r.engines, eng)
		r.mu.Unlock()
		select {
		case r.created <- eng:
		default:
		}
		return eng
	}
}

// Engines returns every engine created so far.
func (r *EngineRecorder) Engines() []*FakeEngine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*FakeEngine(nil), r.engines...)
}

// Created delivers engines as they are built.
func (r *EngineRecorder) Created() <-chan *FakeEngine {
	return r.created
}
