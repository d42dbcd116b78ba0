package daemon

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"vconv/internal/logging"
)

const (
	// StagedUploadPattern matches uploads written to paths.staging_dir.
	StagedUploadPattern = "upload-*"
	// StagedUploadMaxAge is how long an unreferenced staged upload may
	// linger before maintenance deletes it.
	StagedUploadMaxAge = time.Hour
)

func (d *Daemon) startMaintenance() error {
	schedule := d.cfg.Maintenance.Schedule
	if schedule == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, d.runMaintenance); err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}
	c.Start()
	d.cron = c
	d.logger.Info("maintenance scheduled", logging.String("schedule", schedule))
	return nil
}

func (d *Daemon) stopMaintenance() {
	if d.cron == nil {
		return
	}
	<-d.cron.Stop().Done()
	d.cron = nil
}

// runMaintenance drops expired display handles and prunes old logs and
// orphaned staged uploads.
func (d *Daemon) runMaintenance() {
	swept := d.handles.Sweep()

	var inUse []string
	for _, job := range d.scheduler.Jobs() {
		if job.Source.Owned && !job.Status.IsTerminal() {
			inUse = append(inUse, job.Source.Path)
		}
	}
	pruned := logging.Prune(d.logger, logging.Days(d.cfg.Logging.RetentionDays),
		logging.RetentionTarget{Kind: "log", Dir: d.cfg.Paths.LogDir, Pattern: "*.log", Keep: logging.KeepPaths(d.cfg.LogPath())},
		logging.RetentionTarget{Kind: "upload", Dir: d.cfg.Paths.StagingDir, Pattern: StagedUploadPattern, MaxAge: StagedUploadMaxAge, Keep: logging.KeepPaths(inUse...)},
	)
	d.logger.Debug("maintenance complete",
		logging.Int("handles_swept", swept),
		logging.Int("files_pruned", pruned.Removed),
		logging.Bytes("freed_bytes", pruned.Bytes),
		logging.String(logging.FieldEventType, "maintenance_complete"),
	)
}
