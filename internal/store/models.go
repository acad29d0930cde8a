package store

import "time"

// MediaKind distinguishes the two media variants.
type MediaKind string

const (
	KindMovie   MediaKind = "movie"
	KindEpisode MediaKind = "episode"
)

// ValidKind reports whether the kind is one of the known variants.
func ValidKind(kind MediaKind) bool {
	return kind == KindMovie || kind == KindEpisode
}

// TranslationState is the per-media automation state.
type TranslationState string

const (
	StateUnknown             TranslationState = "unknown"
	StateNotApplicable       TranslationState = "not_applicable"
	StatePending             TranslationState = "pending"
	StateInProgress          TranslationState = "in_progress"
	StateComplete            TranslationState = "complete"
	StateStale               TranslationState = "stale"
	StateNoSuitableSubtitles TranslationState = "no_suitable_subtitles"
	StateFailed              TranslationState = "failed"
	StateAwaitingSource      TranslationState = "awaiting_source"
)

// RequestStatus is the lifecycle of a translation request.
type RequestStatus string

const (
	StatusPending     RequestStatus = "pending"
	StatusInProgress  RequestStatus = "in_progress"
	StatusCompleted   RequestStatus = "completed"
	StatusCancelled   RequestStatus = "cancelled"
	StatusFailed      RequestStatus = "failed"
	StatusInterrupted RequestStatus = "interrupted"
)

// IsActiveStatus reports whether a status keeps the request's uniqueness
// sentinel set.
func IsActiveStatus(status RequestStatus) bool {
	return status == StatusPending || status == StatusInProgress
}

// Show groups seasons of episodic media.
type Show struct {
	ID         int64
	ExternalID string
	Title      string
	Path       string
	DateAdded  time.Time
}

// Season belongs to a show.
type Season struct {
	ID     int64
	ShowID int64
	Number int
}

// Media is one movie or episode. Episodes carry a SeasonID.
type Media struct {
	ID                      int64
	Kind                    MediaKind
	ExternalID              string
	Title                   string
	Path                    string
	FileName                string
	DateAdded               time.Time
	ExcludeFromTranslation  bool
	IsPriority              bool
	PriorityDate            *time.Time
	TranslationAgeThreshold *int
	SeasonID                *int64

	TranslationState     TranslationState
	IndexedAt            *time.Time
	StateSettingsVersion int64
	LastSubtitleCheckAt  *time.Time
}

// EmbeddedSubtitle is one probed subtitle stream of a media container.
type EmbeddedSubtitle struct {
	ID            int64
	MediaID       int64
	StreamIndex   int
	Language      string
	Title         string
	CodecName     string
	IsTextBased   bool
	IsDefault     bool
	IsForced      bool
	IsExtracted   bool
	ExtractedPath string
}

// TranslationRequest is one persistent queue entry.
type TranslationRequest struct {
	ID             int64
	MediaID        int64
	MediaKind      MediaKind
	Title          string
	SourceLanguage string
	TargetLanguage string
	SubtitlePath   string
	Status         RequestStatus
	Progress       int
	CreatedAt      time.Time
	CompletedAt    *time.Time
	JobID          string
}

// IsActive reports whether the request still occupies its uniqueness slot.
func (r *TranslationRequest) IsActive() bool {
	return IsActiveStatus(r.Status)
}

// RequestLog is one audit line of a request.
type RequestLog struct {
	ID        int64
	RequestID int64
	Level     string
	Message   string
	Details   string
	CreatedAt time.Time
}

// CleanupLog records one removed orphan sidecar.
type CleanupLog struct {
	ID        int64
	Path      string
	Reason    string
	CreatedAt time.Time
}

// ProviderLog records one provider usage or rate event.
type ProviderLog struct {
	ID        int64
	Provider  string
	Event     string
	Details   string
	CreatedAt time.Time
}
