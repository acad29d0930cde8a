package api

import (
	"time"

	"translarr/internal/store"
)

const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders a timestamp the way API payloads expect.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromRequest converts a store row into the transport shape.
func FromRequest(req *store.TranslationRequest) Request {
	out := Request{
		ID:             req.ID,
		MediaID:        req.MediaID,
		MediaKind:      string(req.MediaKind),
		Title:          req.Title,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		SubtitlePath:   req.SubtitlePath,
		Status:         string(req.Status),
		Progress:       req.Progress,
		CreatedAt:      FormatTime(req.CreatedAt),
		JobID:          req.JobID,
	}
	if req.CompletedAt != nil {
		out.CompletedAt = FormatTime(*req.CompletedAt)
	}
	return out
}

// FromRequests converts a slice of store rows.
func FromRequests(rows []*store.TranslationRequest) []Request {
	if len(rows) == 0 {
		return nil
	}
	out := make([]Request, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromRequest(row))
	}
	return out
}

// FromMedia converts a media row into the transport shape.
func FromMedia(m *store.Media) MediaItem {
	return MediaItem{
		ID:               m.ID,
		Kind:             string(m.Kind),
		Title:            m.Title,
		Path:             m.Path,
		TranslationState: string(m.TranslationState),
		Excluded:         m.ExcludeFromTranslation,
		Priority:         m.IsPriority,
		AgeThresholdHrs:  m.TranslationAgeThreshold,
		SeasonID:         m.SeasonID,
	}
}

// FromMediaList converts a slice of media rows.
func FromMediaList(rows []*store.Media) []MediaItem {
	if len(rows) == 0 {
		return nil
	}
	out := make([]MediaItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromMedia(row))
	}
	return out
}

// FromRequestLogs converts a request's audit rows.
func FromRequestLogs(rows []*store.RequestLog) []RequestLogEntry {
	if len(rows) == 0 {
		return nil
	}
	out := make([]RequestLogEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, RequestLogEntry{
			Level:     row.Level,
			Message:   row.Message,
			Details:   row.Details,
			CreatedAt: FormatTime(row.CreatedAt),
		})
	}
	return out
}
