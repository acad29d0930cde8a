package api

import "time"

// Request describes a translation request in a transport-friendly format.
type Request struct {
	ID             int64  `json:"id"`
	MediaID        int64  `json:"mediaId"`
	MediaKind      string `json:"mediaKind"`
	Title          string `json:"title"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
	SubtitlePath   string `json:"subtitlePath,omitempty"`
	Status         string `json:"status"`
	Progress       int    `json:"progress"`
	CreatedAt      string `json:"createdAt,omitempty"`
	CompletedAt    string `json:"completedAt,omitempty"`
	JobID          string `json:"jobId,omitempty"`
}

// RequestListResponse wraps a request page plus the unpaged total.
type RequestListResponse struct {
	Requests []Request `json:"requests"`
	Total    int       `json:"total"`
}

// RequestResponse wraps a single request.
type RequestResponse struct {
	Request Request `json:"request"`
}

// CreateRequestInput is the POST /api/requests body.
type CreateRequestInput struct {
	MediaKind      string `json:"mediaKind"`
	MediaID        int64  `json:"mediaId"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
	SubtitlePath   string `json:"subtitlePath,omitempty"`
	ForcePriority  bool   `json:"forcePriority,omitempty"`
}

// CreateRequestResponse reports the enqueued request; Created is false when
// an identical active request already existed.
type CreateRequestResponse struct {
	Request Request `json:"request"`
	Created bool    `json:"created"`
}

// RequestLogEntry is one audit line of a request.
type RequestLogEntry struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// RequestLogsResponse wraps a request's audit trail.
type RequestLogsResponse struct {
	Logs []RequestLogEntry `json:"logs"`
}

// ActiveCountResponse reports the pending plus in-progress request count.
type ActiveCountResponse struct {
	Count int `json:"count"`
}

// ReenqueueInput is the POST /api/requests/reenqueue body.
type ReenqueueInput struct {
	IncludeInProgress bool `json:"includeInProgress"`
}

// ReenqueueResponse reports the sweep outcome.
type ReenqueueResponse struct {
	Reenqueued int `json:"reenqueued"`
	Skipped    int `json:"skipped"`
}

// DedupeResponse reports how many duplicate historical rows were removed.
type DedupeResponse struct {
	Removed int64 `json:"removed"`
}

// MediaItem describes a library entry with its automation state.
type MediaItem struct {
	ID               int64  `json:"id"`
	Kind             string `json:"kind"`
	Title            string `json:"title"`
	Path             string `json:"path"`
	TranslationState string `json:"translationState"`
	Excluded         bool   `json:"excluded"`
	Priority         bool   `json:"priority"`
	AgeThresholdHrs  *int   `json:"ageThresholdHours,omitempty"`
	SeasonID         *int64 `json:"seasonId,omitempty"`
}

// MediaListResponse wraps a media listing.
type MediaListResponse struct {
	Items []MediaItem `json:"items"`
}

// MediaToggleInput is the body of the exclusion and priority toggles.
type MediaToggleInput struct {
	Value bool `json:"value"`
}

// MediaThresholdInput sets or clears the per-media age threshold.
type MediaThresholdInput struct {
	Hours *int `json:"hours"`
}

// IntegrityCheckInput names the pair of files to validate.
type IntegrityCheckInput struct {
	SourcePath string `json:"sourcePath"`
	TargetPath string `json:"targetPath"`
}

// IntegrityCheckResponse is the verdict for one pair.
type IntegrityCheckResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// IntegritySweepResponse reports how many translated sidecars a bulk sweep
// removed as invalid.
type IntegritySweepResponse struct {
	Removed int `json:"removed"`
}

// UsageResponse is the provider usage gate snapshot.
type UsageResponse struct {
	RequestsUsed int       `json:"requestsUsed"`
	Allowed      int       `json:"allowed"`
	Paused       bool      `json:"paused"`
	ResetAt      time.Time `json:"resetAt"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running        bool          `json:"running"`
	DatabasePath   string        `json:"databasePath"`
	LockPath       string        `json:"lockPath"`
	WorkerLimit    int           `json:"workerLimit"`
	ActiveWorkers  int           `json:"activeWorkers"`
	ActiveRequests int           `json:"activeRequests"`
	Usage          UsageResponse `json:"usage"`
}

// LogEvent is one structured log line from the daemon's stream buffer.
type LogEvent struct {
	Sequence  uint64            `json:"seq"`
	Timestamp time.Time         `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	RequestID int64             `json:"request_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse is a page of log events plus the cursor for the next
// fetch.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// ProgressEvent is one SSE frame of a request's event stream.
type ProgressEvent struct {
	RequestID int64  `json:"requestId"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// TestTranslationEvent is one SSE frame of a test translation run.
type TestTranslationEvent struct {
	Stage  string `json:"stage"` // "started", "result", "error"
	Line   string `json:"line,omitempty"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}
