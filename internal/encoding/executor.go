package encoding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"vconv/internal/engine"
	"vconv/internal/formats"
	"vconv/internal/logging"
	"vconv/internal/services"
)

// Opener returns a fresh reader over a job's source bytes.
type Opener func() (io.ReadCloser, error)

// Request describes one conversion.
type Request struct {
	JobID        string
	SourceName   string
	SourceFormat string
	TargetFormat string
	Open         Opener
}

// Output is the converted payload.
type Output struct {
	Data      []byte
	MediaType string
	Filename  string
	Elapsed   time.Duration
}

// Executor runs conversions one at a time. Each Run uses a fresh engine from
// the factory; Halt terminates the engine owned by a given job.
type Executor struct {
	factory engine.Factory
	load    engine.LoadConfig
	logger  *slog.Logger

	mu         sync.Mutex
	current    engine.Engine
	currentJob string
}

// NewExecutor constructs an executor.
func NewExecutor(factory engine.Factory, load engine.LoadConfig, logger *slog.Logger) *Executor {
	return &Executor{
		factory: factory,
		load:    load,
		logger:  logging.NewComponentLogger(logger, "executor"),
	}
}

// Run converts req, reporting progress through onProgress (which may be nil).
// The engine is terminated before Run returns, whatever the outcome.
func (e *Executor) Run(ctx context.Context, req Request, onProgress func(int)) (Output, error) {
	if e == nil || e.factory == nil {
		return Output{}, services.Wrap(services.ErrConfiguration, "executor", "run", "engine factory not configured", nil)
	}
	if req.Open == nil {
		return Output{}, services.Wrap(services.ErrValidation, "executor", "run", "request has no source", nil)
	}
	source := formats.Normalize(req.SourceFormat)
	target := formats.Normalize(req.TargetFormat)
	ctx = services.WithJobID(ctx, req.JobID)
	logger := logging.WithContext(ctx, e.logger)
	started := time.Now()

	eng := e.factory()
	e.setCurrent(req.JobID, eng)
	defer func() {
		eng.Terminate()
		e.clearCurrent(eng)
	}()

	logger.Info("loading engine", logging.String("binary", e.load.Binary))
	if err := eng.Load(services.WithStage(ctx, "load"), e.load); err != nil {
		return Output{}, stageError("load", "load engine", err)
	}

	sampler := logging.NewProgressSampler(10)
	extractor := newProgressExtractor(func(percent int) {
		if sampler.ShouldLog(req.JobID, percent) {
			logger.Debug("conversion progress", logging.Percent(percent))
		}
		if onProgress != nil {
			onProgress(percent)
		}
	})
	eng.OnLog(extractor.observe)

	inputName := "input." + source
	outputName := "output." + target

	reader, err := req.Open()
	if err != nil {
		return Output{}, stageError("stage_input", "open source", err)
	}
	err = eng.WriteInput(inputName, reader)
	reader.Close()
	if err != nil {
		return Output{}, stageError("stage_input", "write input", err)
	}

	args := []string{"-i", inputName}
	args = append(args, formats.Resolve(source, target)...)
	args = append(args, outputName)
	logger.Info("launching conversion",
		logging.String("source", req.SourceName),
		logging.String("command", strings.Join(args, " ")),
	)
	if err := eng.Execute(services.WithStage(ctx, "execute"), args); err != nil {
		return Output{}, stageError("execute", "run engine", err)
	}

	data, err := eng.ReadOutput(outputName)
	if err != nil {
		return Output{}, stageError("collect", "read output", err)
	}
	if len(data) == 0 {
		return Output{}, services.Wrap(services.ErrExternalTool, "executor", "collect", "engine produced an empty output", nil)
	}

	out := Output{
		Data:      data,
		MediaType: formats.MediaType(target),
		Filename:  formats.ConvertedFilename(req.SourceName, target),
		Elapsed:   time.Since(started),
	}
	logger.Info("conversion complete",
		logging.String("output", out.Filename),
		logging.Bytes("output_bytes", int64(len(data))),
		logging.Duration("elapsed", out.Elapsed),
	)
	return out, nil
}

// Halt terminates the engine running jobID. It is a no-op when that job is
// not the one in flight, so a late Halt never touches the next job's engine.
func (e *Executor) Halt(jobID string) bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	eng := e.current
	match := eng != nil && e.currentJob == jobID
	e.mu.Unlock()
	if !match {
		return false
	}
	eng.Terminate()
	return true
}

// Active returns the job whose engine is currently held, if any.
func (e *Executor) Active() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentJob, e.current != nil
}

func (e *Executor) setCurrent(jobID string, eng engine.Engine) {
	e.mu.Lock()
	e.current = eng
	e.currentJob = jobID
	e.mu.Unlock()
}

func (e *Executor) clearCurrent(eng engine.Engine) {
	e.mu.Lock()
	if e.current == eng {
		e.current = nil
		e.currentJob = ""
	}
	e.mu.Unlock()
}

// stageError tags err with ErrExternalTool unless it already carries a
// classification marker.
func stageError(stage, operation string, err error) error {
	if errors.Is(err, engine.ErrTerminated) {
		return fmt.Errorf("%w: %s: %w", services.ErrCanceled, stage, err)
	}
	for _, marker := range []error{services.ErrExternalTool, services.ErrConfiguration, services.ErrCanceled, services.ErrTimeout} {
		if errors.Is(err, marker) {
			return fmt.Errorf("%s: %w", stage, err)
		}
	}
	return services.Wrap(services.ErrExternalTool, "executor", stage, operation, err)
}
