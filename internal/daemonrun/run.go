package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"vconv/internal/config"
	"vconv/internal/daemon"
	"vconv/internal/deps"
	"vconv/internal/engine"
	"vconv/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// EngineFactory replaces the ffmpeg engine; nil uses ffmpeg.
	EngineFactory engine.Factory
	// Ready, when set, receives the bound API address once the daemon is serving.
	Ready chan<- string
}

// Run starts the vconv daemon and blocks until the context is cancelled or
// the process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logPath := cfg.LogPath()
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	// No job exists yet, so every staged upload left by a previous run is
	// an orphan.
	logging.Prune(logger, logging.Days(cfg.Logging.RetentionDays),
		logging.RetentionTarget{Kind: "log", Dir: cfg.Paths.LogDir, Pattern: "*.log", Keep: logging.KeepPaths(logPath)},
		logging.RetentionTarget{Kind: "upload", Dir: cfg.Paths.StagingDir, Pattern: daemon.StagedUploadPattern, MaxAge: daemon.StagedUploadMaxAge},
	)

	d, err := daemon.New(signalCtx, cfg, logger, daemon.Options{EngineFactory: opts.EngineFactory})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the other vconv instance or check paths.api_bind"),
		)
		return err
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	if opts.Ready != nil {
		opts.Ready <- d.Addr()
	}

	<-signalCtx.Done()
	logger.Info("vconv daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffmpeg := deps.CheckFFmpeg(cfg.Engine.FFmpegBinary)
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("ffmpeg_available", ffmpeg.Available),
		logging.String("ffmpeg", ffmpeg.Summary()),
		logging.String("history_driver", cfg.History.Driver),
		logging.String("history_fallback", cfg.History.Fallback),
		logging.String("api_bind", cfg.Paths.APIBind),
	)
}
