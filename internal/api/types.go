package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a queue job in a transport-friendly format.
type Job struct {
	ID             string `json:"id"`
	SourceName     string `json:"sourceName"`
	SourceSize     int64  `json:"sourceSize"`
	SourceFormat   string `json:"sourceFormat"`
	TargetFormat   string `json:"targetFormat"`
	Status         string `json:"status"`
	Progress       int    `json:"progress"`
	Error          string `json:"error,omitempty"`
	ResultMIME     string `json:"resultMime,omitempty"`
	ResultFilename string `json:"resultFilename,omitempty"`
	ResultSize     int    `json:"resultSize,omitempty"`
	ResultURL      string `json:"resultUrl,omitempty"`
	ThumbnailURL   string `json:"thumbnailUrl"`
	CreatedAt      string `json:"createdAt,omitempty"`
	StartedAt      string `json:"startedAt,omitempty"`
	FinishedAt     string `json:"finishedAt,omitempty"`
}

// HistoryEntry describes a completed conversion.
type HistoryEntry struct {
	ID                string `json:"id"`
	OriginalFilename  string `json:"originalFilename"`
	ConvertedFilename string `json:"convertedFilename"`
	OutputFormat      string `json:"outputFormat"`
	ResultMIME        string `json:"resultMime"`
	ResultSize        int64  `json:"resultSize"`
	ThumbnailMIME     string `json:"thumbnailMime"`
	ThumbnailSize     int64  `json:"thumbnailSize"`
	ThumbnailURL      string `json:"thumbnailUrl"`
	DownloadURL       string `json:"downloadUrl,omitempty"`
	Timestamp         string `json:"timestamp"`
	Degraded          bool   `json:"degraded"`
}

// QueueStats counts jobs by status.
type QueueStats struct {
	Pending    int `json:"pending"`
	Converting int `json:"converting"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running         bool               `json:"running"`
	PID             int                `json:"pid"`
	Mode            string             `json:"mode"`
	ActiveJob       string             `json:"activeJob,omitempty"`
	Queue           QueueStats         `json:"queue"`
	LockFilePath    string             `json:"lockFilePath"`
	HistoryDriver   string             `json:"historyDriver"`
	HistoryFallback string             `json:"historyFallback"`
	Dependencies    []DependencyStatus `json:"dependencies"`
}

// QueueListResponse wraps a collection of jobs.
type QueueListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// Rejection reports an upload that failed validation.
type Rejection struct {
	Name  string `json:"name"`
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// EnqueueResponse lists the jobs created by an upload and the files that
// were rejected.
type EnqueueResponse struct {
	Jobs     []Job       `json:"jobs"`
	Rejected []Rejection `json:"rejected,omitempty"`
}

// HistoryListResponse wraps history entries, newest first.
type HistoryListResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
