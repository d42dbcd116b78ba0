package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"vconv/internal/config"
	"vconv/internal/encoding"
	"vconv/internal/engine"
	"vconv/internal/formats"
	"vconv/internal/handles"
	"vconv/internal/history"
	"vconv/internal/logging"
	"vconv/internal/queue"
)

type convertOptions struct {
	Target    string
	OutDir    string
	NoHistory bool
	Factory   engine.Factory
	Logger    *slog.Logger
	// Progress receives the progress bars; nil disables them.
	Progress io.Writer
}

type convertSummary struct {
	Written  []string
	Rejected int
	Failed   int
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var opts convertOptions

	cmd := &cobra.Command{
		Use:   "convert <file>...",
		Short: "Convert files in-process, one at a time, without the daemon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{
				Level:            "warn",
				Format:           cfg.Logging.Format,
				OutputPaths:      []string{"stderr"},
				ErrorOutputPaths: []string{"stderr"},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			opts.Logger = logger
			opts.Factory = engine.NewFFmpegFactory()
			opts.Progress = cmd.ErrOrStderr()

			summary, err := runConversions(cmd.Context(), cfg, args, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if missed := summary.Failed + summary.Rejected; missed > 0 {
				return fmt.Errorf("%d of %d files were not converted", missed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Target, "to", "t", "", "Target format (mp4, mkv, webm, avi); defaults to conversion.default_target")
	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", ".", "Directory for converted files")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not record conversions in history")
	return cmd
}

// runConversions queues every path on a private scheduler, waits for the
// queue to drain, and writes completed results into opts.OutDir.
func runConversions(ctx context.Context, cfg *config.Config, paths []string, opts convertOptions, out io.Writer) (convertSummary, error) {
	var summary convertSummary
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	target := formats.Normalize(opts.Target)
	if target == "" {
		target = cfg.Conversion.DefaultTarget
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return summary, fmt.Errorf("create output directory: %w", err)
	}

	var historyWriter queue.HistoryWriter
	if !opts.NoHistory {
		registry := handles.NewRegistry(time.Duration(cfg.History.HandleTTLSeconds) * time.Second)
		store, err := history.Open(ctx, cfg, logger, registry)
		if err != nil {
			fmt.Fprintf(out, "History unavailable, conversions will not be recorded: %v\n", err)
		} else {
			defer store.Close()
			historyWriter = store
		}
	}

	load := engine.LoadConfig{Binary: cfg.Engine.FFmpegBinary, WorkDir: cfg.Engine.WorkDir}
	sched := queue.New(encoding.NewExecutor(opts.Factory, load, logger), queue.Options{
		MaxInputBytes: cfg.MaxInputBytes(),
		Thumbnails:    encoding.NewThumbnailer(opts.Factory, load, cfg.Conversion.ThumbnailOffset, cfg.Conversion.ThumbnailSize, logger),
		History:       historyWriter,
		Logger:        logger,
	})
	defer sched.Close()

	events, unsubscribe := sched.Subscribe(256)
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		renderProgress(events, opts.Progress)
	}()

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			summary.Rejected++
			fmt.Fprintf(out, "Rejected %s: %v\n", path, err)
			continue
		}
		_, err = sched.Enqueue(ctx, queue.Upload{
			Source: queue.Source{Name: filepath.Base(path), Size: info.Size(), Path: path},
			Target: target,
		})
		if err != nil {
			summary.Rejected++
			fmt.Fprintf(out, "Rejected %v\n", err)
		}
	}

	drainErr := sched.Drain(ctx)
	unsubscribe()
	<-rendered
	if drainErr != nil {
		return summary, drainErr
	}

	for _, job := range sched.Jobs() {
		switch job.Status {
		case queue.StatusCompleted:
			dest := filepath.Join(opts.OutDir, job.ResultFilename)
			if err := os.WriteFile(dest, job.Result, 0o644); err != nil {
				return summary, fmt.Errorf("write %s: %w", dest, err)
			}
			summary.Written = append(summary.Written, dest)
			fmt.Fprintf(out, "Converted %s → %s\n", job.Source.Name, dest)
		case queue.StatusError:
			summary.Failed++
			fmt.Fprintf(out, "Failed %s: %s\n", job.Source.Name, job.Error)
		}
	}
	return summary, nil
}

// renderProgress draws one bar per job as it converts.
func renderProgress(events <-chan queue.Event, w io.Writer) {
	var bar *progressbar.ProgressBar
	for evt := range events {
		if w == nil {
			continue
		}
		switch evt.Kind {
		case queue.EventStarted:
			bar = progressbar.NewOptions(100,
				progressbar.OptionSetWriter(w),
				progressbar.OptionSetDescription(evt.Job.Source.Name),
				progressbar.OptionSetWidth(30),
				progressbar.OptionSetPredictTime(false),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
			)
		case queue.EventProgress:
			if bar != nil {
				_ = bar.Set(evt.Job.Progress)
			}
		case queue.EventCompleted:
			if bar != nil {
				_ = bar.Finish()
				bar = nil
			}
		case queue.EventFailed, queue.EventRemoved, queue.EventCleared:
			if bar != nil {
				_ = bar.Exit()
				fmt.Fprintln(w)
				bar = nil
			}
		}
	}
}
