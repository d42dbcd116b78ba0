package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"vconv/internal/encoding"
	"vconv/internal/formats"
	"vconv/internal/history"
	"vconv/internal/logging"
	"vconv/internal/services"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("scheduler closed")

// Runner converts one job at a time and can halt the job it is running.
type Runner interface {
	Run(ctx context.Context, req encoding.Request, onProgress func(int)) (encoding.Output, error)
	Halt(jobID string) bool
}

// Thumbnailer produces a best-effort preview for a new job.
type Thumbnailer interface {
	Generate(ctx context.Context, name string, open encoding.Opener) encoding.Thumbnail
}

// HistoryWriter receives completed conversions.
type HistoryWriter interface {
	Save(ctx context.Context, entry history.Entry) error
}

// Options configures a Scheduler.
type Options struct {
	// MaxInputBytes caps accepted uploads. Zero uses formats.DefaultMaxInputBytes.
	MaxInputBytes int64
	Thumbnails    Thumbnailer
	History       HistoryWriter
	Logger        *slog.Logger
	Clock         func() time.Time
}

// Scheduler owns the job list and runs pending jobs in insertion order.
type Scheduler struct {
	runner   Runner
	thumbs   Thumbnailer
	history  HistoryWriter
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.Mutex
	jobs      []*Job
	mode      Mode
	active    string
	cancelRun context.CancelFunc
	runToken  uint64
	changed   chan struct{}
	closed    bool

	subMu       sync.Mutex
	subscribers map[int]chan Event
	nextSub     int
}

// New constructs an idle scheduler.
func New(runner Runner, opts Options) *Scheduler {
	maxBytes := opts.MaxInputBytes
	if maxBytes <= 0 {
		maxBytes = formats.DefaultMaxInputBytes
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		runner:      runner,
		thumbs:      opts.Thumbnails,
		history:     opts.History,
		maxBytes:    maxBytes,
		logger:      logging.NewComponentLogger(opts.Logger, "queue"),
		now:         now,
		baseCtx:     ctx,
		stop:        stop,
		mode:        ModeIdle,
		changed:     make(chan struct{}),
		subscribers: make(map[int]chan Event),
	}
}

// Enqueue validates the upload, generates its thumbnail, and appends a
// pending job. A rejected upload returns a *formats.ValidationError and
// creates no job. Owned sources are released when the upload is rejected.
func (s *Scheduler) Enqueue(ctx context.Context, up Upload) (Job, error) {
	target := formats.Normalize(up.Target)
	if err := formats.Validate(up.Source.Name, up.Source.Size, target, s.maxBytes); err != nil {
		up.Source.release()
		return Job{}, err
	}

	job := &Job{
		ID:           uuid.NewString(),
		Source:       up.Source,
		SourceFormat: formats.SourceFormat(up.Source.Name),
		TargetFormat: target,
		Status:       StatusPending,
		CreatedAt:    s.now(),
	}

	thumb := encoding.Thumbnail{MediaType: encoding.ThumbnailMediaType}
	if s.thumbs != nil {
		thumb = s.thumbs.Generate(services.WithJobID(ctx, job.ID), up.Source.Name, up.Source.Open)
	}
	job.Thumbnail = thumb.Data
	job.ThumbnailMIME = thumb.MediaType

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		up.Source.release()
		return Job{}, ErrClosed
	}
	s.jobs = append(s.jobs, job)
	snap := job.snapshot()
	s.signalLocked()
	s.mu.Unlock()

	s.logger.Info("job queued",
		logging.JobID(snap.ID),
		logging.String("source", snap.Source.Name),
		logging.String("target", snap.TargetFormat),
		logging.Bytes("source_bytes", snap.Source.Size),
	)
	s.publish(Event{Kind: EventAdded, Job: snap})
	s.Notify()
	return snap, nil
}

// Notify starts the first pending job when the scheduler is idle. It is safe
// to call at any time; calls while busy or with nothing pending do nothing.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	if s.closed || s.mode == ModeBusy {
		s.mu.Unlock()
		return
	}
	job := s.nextPendingLocked()
	if job == nil {
		s.mu.Unlock()
		return
	}

	job.Status = StatusConverting
	job.Progress = 0
	job.StartedAt = s.now()
	s.mode = ModeBusy
	s.active = job.ID
	s.runToken++
	token := s.runToken
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.cancelRun = cancel
	req := encoding.Request{
		JobID:        job.ID,
		SourceName:   job.Source.Name,
		SourceFormat: job.SourceFormat,
		TargetFormat: job.TargetFormat,
		Open:         job.Source.Open,
	}
	snap := job.snapshot()
	s.signalLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	s.publish(Event{Kind: EventStarted, Job: snap})
	go s.run(services.WithJobID(ctx, req.JobID), token, req)
}

func (s *Scheduler) run(ctx context.Context, token uint64, req encoding.Request) {
	defer s.wg.Done()
	out, err := s.runner.Run(ctx, req, func(percent int) {
		s.updateProgress(token, req.JobID, percent)
	})
	s.finish(ctx, token, req.JobID, out, err)
}

func (s *Scheduler) updateProgress(token uint64, jobID string, percent int) {
	s.mu.Lock()
	if token != s.runToken {
		s.mu.Unlock()
		return
	}
	job := s.findLocked(jobID)
	if job == nil || job.Status != StatusConverting || job.Progress == percent {
		s.mu.Unlock()
		return
	}
	job.Progress = percent
	snap := job.snapshot()
	s.signalLocked()
	s.mu.Unlock()
	s.publish(Event{Kind: EventProgress, Job: snap})
}

func (s *Scheduler) finish(ctx context.Context, token uint64, jobID string, out encoding.Output, runErr error) {
	logger := logging.WithContext(ctx, s.logger)

	s.mu.Lock()
	if token != s.runToken {
		s.mu.Unlock()
		logger.Debug("discarding result of cancelled run")
		return
	}
	job := s.findLocked(jobID)
	if job == nil {
		s.releaseRunLocked()
		s.mu.Unlock()
		s.Notify()
		return
	}

	job.FinishedAt = s.now()
	kind := EventCompleted
	var entry *history.Entry
	if runErr != nil {
		job.Status = StatusError
		job.Error = services.FailureMessage(runErr)
		kind = EventFailed
	} else {
		job.Status = StatusCompleted
		job.Progress = 100
		job.Result = out.Data
		job.ResultMIME = out.MediaType
		job.ResultFilename = out.Filename
		entry = &history.Entry{
			ID:                job.ID,
			OriginalFilename:  job.Source.Name,
			ConvertedFilename: out.Filename,
			OutputFormat:      job.TargetFormat,
			Result:            out.Data,
			ResultMIME:        out.MediaType,
			Thumbnail:         job.Thumbnail,
			ThumbnailMIME:     job.ThumbnailMIME,
			Timestamp:         job.FinishedAt,
		}
	}
	source := job.Source
	snap := job.snapshot()
	s.signalLocked()
	s.mu.Unlock()

	source.release()
	if runErr != nil {
		logging.ErrorWithContext(logger, "conversion failed", "conversion_failed",
			logging.String("source", snap.Source.Name),
			logging.Error(runErr),
			logging.String(logging.FieldErrorHint, "check the ffmpeg output in the daemon log"),
		)
	} else {
		logger.Info("conversion completed",
			logging.String("output", snap.ResultFilename),
			logging.Bytes("result_bytes", int64(len(snap.Result))),
		)
	}
	s.publish(Event{Kind: kind, Job: snap})

	if entry != nil && s.history != nil {
		if err := s.history.Save(context.WithoutCancel(ctx), *entry); err != nil {
			logging.WarnWithContext(logger, "history entry not saved", "history_save_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "conversion succeeded but will not appear in history"),
			)
		}
	}

	s.mu.Lock()
	if token == s.runToken {
		s.releaseRunLocked()
	}
	s.signalLocked()
	s.mu.Unlock()
	s.Notify()
}

// releaseRunLocked returns the scheduler to Idle after the active run ends.
func (s *Scheduler) releaseRunLocked() {
	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}
	s.mode = ModeIdle
	s.active = ""
}

// abortActiveLocked halts the active run and invalidates its token so a late
// completion is discarded.
func (s *Scheduler) abortActiveLocked() {
	if s.mode != ModeBusy {
		return
	}
	active := s.active
	s.runToken++
	s.releaseRunLocked()
	if s.runner != nil {
		s.runner.Halt(active)
	}
	s.logger.Info("conversion halted", logging.JobID(active))
}

// Remove deletes a job. Removing the converting job halts it and lets the
// next pending job start.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	idx := slices.IndexFunc(s.jobs, func(j *Job) bool { return j.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("job %s: %w", id, services.ErrNotFound)
	}
	job := s.jobs[idx]
	halted := s.mode == ModeBusy && s.active == id
	if halted {
		s.abortActiveLocked()
	}
	s.jobs = slices.Delete(s.jobs, idx, idx+1)
	snap := job.snapshot()
	s.signalLocked()
	s.mu.Unlock()

	if !snap.Status.IsTerminal() {
		snap.Source.release()
	}
	s.publish(Event{Kind: EventRemoved, Job: snap})
	if halted {
		s.Notify()
	}
	return nil
}

// Clear halts any active job and empties the list.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	s.abortActiveLocked()
	jobs := s.jobs
	s.jobs = nil
	s.signalLocked()
	s.mu.Unlock()

	for _, job := range jobs {
		if !job.Status.IsTerminal() {
			job.Source.release()
		}
	}
	s.logger.Info("queue cleared", logging.Int("jobs", len(jobs)))
	s.publish(Event{Kind: EventCleared})
}

// Jobs returns snapshots of every job in insertion order.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.snapshot())
	}
	return out
}

// Job returns a snapshot of one job.
func (s *Scheduler) Job(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.findLocked(id)
	if job == nil {
		return Job{}, false
	}
	return job.snapshot(), true
}

// Mode returns the current processing mode.
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Summary counts jobs by status.
func (s *Scheduler) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := Summary{Mode: s.mode, ActiveJob: s.active}
	for _, job := range s.jobs {
		switch job.Status {
		case StatusPending:
			sum.Pending++
		case StatusConverting:
			sum.Converting++
		case StatusCompleted:
			sum.Completed++
		case StatusError:
			sum.Failed++
		}
	}
	return sum
}

// Drain blocks until the scheduler is idle with nothing pending.
func (s *Scheduler) Drain(ctx context.Context) error {
	for {
		s.mu.Lock()
		done := s.mode == ModeIdle && s.nextPendingLocked() == nil
		changed := s.changed
		s.mu.Unlock()
		if done {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Subscribe returns a channel of events and a function that cancels the
// subscription. Events are dropped for subscribers whose buffer is full.
func (s *Scheduler) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

// Close halts the active job, stops accepting uploads, and waits for the
// run goroutine to exit.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.abortActiveLocked()
	s.signalLocked()
	s.mu.Unlock()
	s.stop()
	s.wg.Wait()
}

func (s *Scheduler) publish(evt Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (s *Scheduler) signalLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Scheduler) nextPendingLocked() *Job {
	for _, job := range s.jobs {
		if job.Status == StatusPending {
			return job
		}
	}
	return nil
}

func (s *Scheduler) findLocked(id string) *Job {
	for _, job := range s.jobs {
		if job.ID == id {
			return job
		}
	}
	return nil
}
