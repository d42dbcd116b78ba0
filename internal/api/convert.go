package api

import (
	"time"

	"vconv/internal/handles"
	"vconv/internal/history"
	"vconv/internal/queue"
)

// FromJob converts a queue job snapshot into its transport form.
func FromJob(job queue.Job) Job {
	dto := Job{
		ID:           job.ID,
		SourceName:   job.Source.Name,
		SourceSize:   job.Source.Size,
		SourceFormat: job.SourceFormat,
		TargetFormat: job.TargetFormat,
		Status:       string(job.Status),
		Progress:     job.Progress,
		Error:        job.Error,
		ThumbnailURL: handles.Placeholder,
		CreatedAt:    formatTime(job.CreatedAt),
		StartedAt:    formatTime(job.StartedAt),
		FinishedAt:   formatTime(job.FinishedAt),
	}
	if len(job.Thumbnail) > 0 {
		dto.ThumbnailURL = "/api/queue/" + job.ID + "/thumbnail"
	}
	if job.Status == queue.StatusCompleted {
		dto.ResultMIME = job.ResultMIME
		dto.ResultFilename = job.ResultFilename
		dto.ResultSize = len(job.Result)
		dto.ResultURL = "/api/queue/" + job.ID + "/result"
	}
	return dto
}

// FromJobs converts a slice of snapshots.
func FromJobs(jobs []queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromHistoryEntry converts a history entry into its transport form.
func FromHistoryEntry(entry history.Entry) HistoryEntry {
	dto := HistoryEntry{
		ID:                entry.ID,
		OriginalFilename:  entry.OriginalFilename,
		ConvertedFilename: entry.ConvertedFilename,
		OutputFormat:      entry.OutputFormat,
		ResultMIME:        entry.ResultMIME,
		ResultSize:        entry.ResultSize,
		ThumbnailMIME:     entry.ThumbnailMIME,
		ThumbnailSize:     entry.ThumbnailSize,
		ThumbnailURL:      HandleURL(entry.ThumbnailHandle),
		Timestamp:         formatTime(entry.Timestamp),
		Degraded:          entry.Degraded,
	}
	if !entry.Degraded && entry.ResultSize > 0 {
		dto.DownloadURL = "/api/history/" + entry.ID + "/file"
	}
	return dto
}

// FromHistoryEntries converts a slice of entries preserving order.
func FromHistoryEntries(entries []history.Entry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromHistoryEntry(entry))
	}
	return out
}

// HandleURL maps a display handle onto the route that serves it.
func HandleURL(handle string) string {
	switch handle {
	case "", handles.Placeholder:
		return handles.Placeholder
	default:
		return "/api/handles/" + handle
	}
}

// FromQueueSummary converts scheduler counts.
func FromQueueSummary(sum queue.Summary) QueueStats {
	return QueueStats{
		Pending:    sum.Pending,
		Converting: sum.Converting,
		Completed:  sum.Completed,
		Failed:     sum.Failed,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
