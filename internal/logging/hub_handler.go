package logging

import (
	"context"
	"log/slog"
	"strconv"
)

// hubHandler forwards every record to the stream hub in addition to the
// wrapped handler. Attributes added via With are folded into each event.
type hubHandler struct {
	inner slog.Handler
	hub   *StreamHub
	attrs []slog.Attr
}

func newHubHandler(inner slog.Handler, hub *StreamHub) slog.Handler {
	return &hubHandler{inner: inner, hub: hub}
}

func (h *hubHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *hubHandler) Handle(ctx context.Context, record slog.Record) error {
	evt := LogEvent{
		Timestamp: record.Time.UTC(),
		Level:     record.Level.String(),
		Message:   record.Message,
	}
	fields := make(map[string]string)
	consume := func(attr slog.Attr) {
		value := attr.Value.Resolve().String()
		switch attr.Key {
		case FieldComponent:
			evt.Component = value
		case FieldRequestID:
			if id, err := strconv.ParseInt(value, 10, 64); err == nil {
				evt.RequestID = id
			}
		default:
			fields[attr.Key] = value
		}
	}
	for _, attr := range h.attrs {
		consume(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		consume(attr)
		return true
	})
	if len(fields) > 0 {
		evt.Fields = fields
	}
	h.hub.Publish(evt)
	return h.inner.Handle(ctx, record)
}

func (h *hubHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &hubHandler{inner: h.inner.WithAttrs(attrs), hub: h.hub, attrs: merged}
}

func (h *hubHandler) WithGroup(name string) slog.Handler {
	return &hubHandler{inner: h.inner.WithGroup(name), hub: h.hub, attrs: h.attrs}
}
