package queue

import (
	"bytes"
	"io"
	"os"
	"time"
)

// Status represents the lifecycle of a conversion job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConverting Status = "converting"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Mode is the scheduler's processing state.
type Mode string

const (
	ModeIdle Mode = "idle"
	ModeBusy Mode = "busy"
)

// Source references a job's input. Exactly one of Path or Data carries the
// bytes.
type Source struct {
	Name string
	Size int64
	Path string
	Data []byte
	// Owned marks Path as a staged copy the scheduler deletes once the job
	// no longer needs it.
	Owned bool
}

// Open returns a fresh reader over the source bytes.
func (s Source) Open() (io.ReadCloser, error) {
	if s.Path != "" {
		return os.Open(s.Path)
	}
	return io.NopCloser(bytes.NewReader(s.Data)), nil
}

func (s Source) release() {
	if s.Owned && s.Path != "" {
		_ = os.Remove(s.Path)
	}
}

// Upload is a request to convert Source into Target.
type Upload struct {
	Source Source
	Target string
}

// Job is one conversion tracked by the scheduler. Snapshots returned by the
// scheduler share Result and Thumbnail with the live job; treat them as
// read-only.
type Job struct {
	ID             string
	Source         Source
	SourceFormat   string
	TargetFormat   string
	Status         Status
	Progress       int
	Result         []byte
	ResultMIME     string
	ResultFilename string
	Thumbnail      []byte
	ThumbnailMIME  string
	Error          string
	CreatedAt      time.Time
	StartedAt      time.Time
	FinishedAt     time.Time
}

func (j *Job) snapshot() Job {
	return *j
}

// Summary aggregates scheduler state for status displays.
type Summary struct {
	Mode       Mode
	ActiveJob  string
	Pending    int
	Converting int
	Completed  int
	Failed     int
}

// EventKind identifies what changed.
type EventKind string

const (
	EventAdded     EventKind = "added"
	EventStarted   EventKind = "started"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventRemoved   EventKind = "removed"
	EventCleared   EventKind = "cleared"
)

// Event is delivered to subscribers after each state change. Job is empty
// for EventCleared.
type Event struct {
	Kind EventKind
	Job  Job
}
