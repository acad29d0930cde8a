package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AppendRequestLog adds one audit line to a request's history.
func (s *Store) AppendRequestLog(ctx context.Context, requestID int64, level, message, details string) error {
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO translation_request_logs (request_id, level, message, details, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		requestID, level, message, nullableString(details), formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("append request log: %w", err)
	}
	return nil
}

// ListRequestLogs returns a request's audit lines oldest first.
func (s *Store) ListRequestLogs(ctx context.Context, requestID int64) ([]*RequestLog, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, request_id, level, message, details, created_at
         FROM translation_request_logs WHERE request_id = ? ORDER BY id ASC`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("list request logs: %w", err)
	}
	defer rows.Close()
	var out []*RequestLog
	for rows.Next() {
		var (
			entry      RequestLog
			details    sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.RequestID, &entry.Level, &entry.Message, &details, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan request log: %w", err)
		}
		entry.Details = details.String
		if t, err := parseTimeString(createdRaw); err == nil {
			entry.CreatedAt = t
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}

// AppendCleanupLog records a removed orphan sidecar.
func (s *Store) AppendCleanupLog(ctx context.Context, path, reason string) error {
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO subtitle_cleanup_logs (path, reason, created_at) VALUES (?, ?, ?)`,
		path, reason, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("append cleanup log: %w", err)
	}
	return nil
}

// AppendProviderLog records a provider usage or rate event.
func (s *Store) AppendProviderLog(ctx context.Context, provider, event, details string) error {
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO subtitle_provider_logs (provider, event, details, created_at) VALUES (?, ?, ?, ?)`,
		provider, event, nullableString(details), formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("append provider log: %w", err)
	}
	return nil
}

// ListProviderLogs returns the most recent provider events, newest first.
func (s *Store) ListProviderLogs(ctx context.Context, limit int) ([]*ProviderLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, provider, event, details, created_at
         FROM subtitle_provider_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list provider logs: %w", err)
	}
	defer rows.Close()
	var out []*ProviderLog
	for rows.Next() {
		var (
			entry      ProviderLog
			details    sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.Provider, &entry.Event, &details, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan provider log: %w", err)
		}
		entry.Details = details.String
		if t, err := parseTimeString(createdRaw); err == nil {
			entry.CreatedAt = t
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}
