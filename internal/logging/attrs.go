package logging

import (
	"io"
	"log/slog"
	"time"
)

type Attr = slog.Attr

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRequestID is the standardized structured logging key for translation request identifiers.
	FieldRequestID = "request_id"
	// FieldMediaID is the standardized structured logging key for media identifiers.
	FieldMediaID = "media_id"
	// FieldMediaKind identifies whether a log line concerns a movie or an episode.
	FieldMediaKind = "media_kind"
	// FieldProvider names the translation provider involved in an operation.
	FieldProvider = "provider"
	// FieldSourceLang and FieldTargetLang carry the translation language pair.
	FieldSourceLang = "source_lang"
	FieldTargetLang = "target_lang"
	// FieldJobID carries the worker-assigned job identifier.
	FieldJobID = "job_id"
)

func Any(key string, value any) Attr { return slog.Any(key, value) }

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Float64(key string, value float64) Attr { return slog.Float64(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

// Error wraps an error into the conventional "error" attribute.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// NewNop returns a logger that discards every record.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
}

// OrNop returns the provided logger, or a nop logger when nil.
func OrNop(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	return logger
}
