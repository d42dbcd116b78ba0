package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"vconv/internal/config"
	"vconv/internal/deps"
	"vconv/internal/encoding"
	"vconv/internal/engine"
	"vconv/internal/handles"
	"vconv/internal/history"
	"vconv/internal/logging"
	"vconv/internal/preflight"
	"vconv/internal/queue"
)

// Options customizes daemon construction.
type Options struct {
	// EngineFactory overrides the ffmpeg engine, for tests.
	EngineFactory engine.Factory
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	scheduler *queue.Scheduler
	history   *history.TieredStore
	handles   *handles.Registry

	lockPath string
	lock     *flock.Flock
	cron     *cron.Cron
	api      *apiServer

	running atomic.Bool
	closed  atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool
	PID             int
	Queue           queue.Summary
	LockFilePath    string
	HistoryDriver   string
	HistoryFallback string
	Dependencies    []deps.Status
}

// New constructs a daemon with initialized dependencies. The history
// fallback tier is opened here; the primary tier opens on first use.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	registry := handles.NewRegistry(time.Duration(cfg.History.HandleTTLSeconds) * time.Second)
	store, err := history.Open(ctx, cfg, logger, registry)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	factory := opts.EngineFactory
	if factory == nil {
		factory = engine.NewFFmpegFactory()
	}
	load := engine.LoadConfig{Binary: cfg.Engine.FFmpegBinary, WorkDir: cfg.Engine.WorkDir}
	executor := encoding.NewExecutor(factory, load, logger)
	thumbnailer := encoding.NewThumbnailer(factory, load, cfg.Conversion.ThumbnailOffset, cfg.Conversion.ThumbnailSize, logger)
	scheduler := queue.New(executor, queue.Options{
		MaxInputBytes: cfg.MaxInputBytes(),
		Thumbnails:    thumbnailer,
		History:       store,
		Logger:        logger,
	})

	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		scheduler: scheduler,
		history:   store,
		handles:   registry,
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, starts housekeeping, and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.closed.Load() {
		return errors.New("daemon closed")
	}
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vconv daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	for _, result := range preflight.RunAll(runCtx, d.cfg) {
		if !result.Passed {
			logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldImpact, "conversions or history may be degraded"),
			)
		}
	}
	for _, dep := range preflight.CheckSystemDeps(d.cfg) {
		if !dep.Available {
			logging.WarnWithContext(d.logger, "dependency unavailable", "dependency_missing",
				logging.String("dependency", dep.Name),
				logging.String("detail", dep.Detail),
				logging.String(logging.FieldErrorHint, "install ffmpeg or set engine.ffmpeg_binary"),
				logging.String(logging.FieldImpact, "conversions will fail"),
			)
		}
	}

	if err := d.startMaintenance(); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return err
	}
	if err := d.api.start(runCtx); err != nil {
		d.stopMaintenance()
		_ = d.lock.Unlock()
		cancel()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("vconv daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the active conversion, stops background services, and releases
// the daemon lock. A stopped daemon cannot be restarted.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.stopMaintenance()
	d.scheduler.Close()
	d.closed.Store(true)
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("vconv daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.scheduler.Close()
	d.closed.Store(true)
	if d.history != nil {
		return d.history.Close()
	}
	return nil
}

// Scheduler exposes the conversion scheduler.
func (d *Daemon) Scheduler() *queue.Scheduler { return d.scheduler }

// History exposes the tiered history store.
func (d *Daemon) History() *history.TieredStore { return d.history }

// Addr returns the bound API address once started.
func (d *Daemon) Addr() string { return d.api.addr() }

// Status returns the current daemon status.
func (d *Daemon) Status(context.Context) Status {
	return Status{
		Running:         d.running.Load(),
		PID:             os.Getpid(),
		Queue:           d.scheduler.Summary(),
		LockFilePath:    d.lockPath,
		HistoryDriver:   d.cfg.History.Driver,
		HistoryFallback: d.cfg.History.Fallback,
		Dependencies:    preflight.CheckSystemDeps(d.cfg),
	}
}
