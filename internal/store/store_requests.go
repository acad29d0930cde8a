package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const requestColumns = "id, media_id, media_kind, title, source_language, target_language, " +
	"subtitle_path, status, progress, created_at, completed_at, job_id"

// ErrDuplicateActiveRequest is returned when a second active request for the
// same (media, language pair) tuple is attempted.
var ErrDuplicateActiveRequest = errors.New("active request already exists for tuple")

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func scanRequest(scanner interface{ Scan(dest ...any) error }) (*TranslationRequest, error) {
	var (
		id           int64
		mediaID      int64
		mediaKind    string
		title        string
		sourceLang   string
		targetLang   string
		subtitlePath sql.NullString
		status       string
		progress     int
		createdRaw   string
		completedRaw sql.NullString
		jobID        sql.NullString
	)
	if err := scanner.Scan(
		&id, &mediaID, &mediaKind, &title, &sourceLang, &targetLang,
		&subtitlePath, &status, &progress, &createdRaw, &completedRaw, &jobID,
	); err != nil {
		return nil, err
	}
	req := &TranslationRequest{
		ID:             id,
		MediaID:        mediaID,
		MediaKind:      MediaKind(mediaKind),
		Title:          title,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
		SubtitlePath:   subtitlePath.String,
		Status:         RequestStatus(status),
		Progress:       progress,
		JobID:          jobID.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		req.CreatedAt = created
	}
	if completedRaw.Valid {
		if t, err := parseTimeString(completedRaw.String); err == nil {
			req.CompletedAt = &t
		}
	}
	return req, nil
}

// CreateRequest inserts a pending request. When an active request already
// exists for the tuple, the existing row is returned with created=false.
func (s *Store) CreateRequest(ctx context.Context, req *TranslationRequest) (*TranslationRequest, bool, error) {
	if req == nil {
		return nil, false, errors.New("request is nil")
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO translation_requests (
            media_id, media_kind, title, source_language, target_language,
            subtitle_path, status, progress, created_at, is_active
        ) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, 1)`,
		req.MediaID, string(req.MediaKind), req.Title, req.SourceLanguage, req.TargetLanguage,
		nullableString(req.SubtitlePath), string(StatusPending), formatTime(time.Now()),
	)
	if isUniqueViolation(err) {
		existing, lookupErr := s.ActiveRequestForTuple(ctx, req.MediaID, req.MediaKind, req.SourceLanguage, req.TargetLanguage)
		if lookupErr != nil {
			return nil, false, lookupErr
		}
		if existing == nil {
			return nil, false, ErrDuplicateActiveRequest
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}
	created, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// GetRequest fetches a request by identifier.
func (s *Store) GetRequest(ctx context.Context, id int64) (*TranslationRequest, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+requestColumns+` FROM translation_requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return req, nil
}

// ActiveRequestForTuple returns the active request occupying the uniqueness
// slot, if any.
func (s *Store) ActiveRequestForTuple(ctx context.Context, mediaID int64, kind MediaKind, sourceLang, targetLang string) (*TranslationRequest, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+requestColumns+` FROM translation_requests
         WHERE media_id = ? AND media_kind = ? AND source_language = ? AND target_language = ? AND is_active = 1`,
		mediaID, string(kind), sourceLang, targetLang)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active request for tuple: %w", err)
	}
	return req, nil
}

// HasActiveRequestForMedia reports whether any active request references the
// media row.
func (s *Store) HasActiveRequestForMedia(ctx context.Context, kind MediaKind, mediaID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM translation_requests WHERE media_id = ? AND media_kind = ? AND is_active = 1`,
		mediaID, string(kind)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("active request for media: %w", err)
	}
	return count > 0, nil
}

// SetRequestStatus transitions a request. Leaving the active statuses clears
// the uniqueness sentinel and stamps completed_at.
func (s *Store) SetRequestStatus(ctx context.Context, id int64, status RequestStatus) error {
	if IsActiveStatus(status) {
		if err := s.execWithoutResultRetry(ctx,
			`UPDATE translation_requests SET status = ?, is_active = 1, completed_at = NULL WHERE id = ?`,
			string(status), id,
		); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateActiveRequest
			}
			return fmt.Errorf("set request status: %w", err)
		}
		return nil
	}
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE translation_requests SET status = ?, is_active = NULL, completed_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), id,
	); err != nil {
		return fmt.Errorf("set request status: %w", err)
	}
	return nil
}

// SetRequestProgress raises the progress value; it never moves backwards.
func (s *Store) SetRequestProgress(ctx context.Context, id int64, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE translation_requests SET progress = MAX(progress, ?) WHERE id = ?`,
		progress, id,
	); err != nil {
		return fmt.Errorf("set request progress: %w", err)
	}
	return nil
}

// SetRequestJobID records the worker-assigned job identifier.
func (s *Store) SetRequestJobID(ctx context.Context, id int64, jobID string) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE translation_requests SET job_id = ? WHERE id = ?`,
		nullableString(jobID), id,
	); err != nil {
		return fmt.Errorf("set request job id: %w", err)
	}
	return nil
}

// ReactivateRequest puts a finished request back in the queue. Fails with
// ErrDuplicateActiveRequest when another active request holds the tuple.
func (s *Store) ReactivateRequest(ctx context.Context, id int64) error {
	err := s.execWithoutResultRetry(ctx,
		`UPDATE translation_requests
         SET status = ?, progress = 0, is_active = 1, completed_at = NULL, job_id = NULL
         WHERE id = ?`,
		string(StatusPending), id,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateActiveRequest
	}
	if err != nil {
		return fmt.Errorf("reactivate request: %w", err)
	}
	return nil
}

// DeleteRequest removes a request; its logs cascade.
func (s *Store) DeleteRequest(ctx context.Context, id int64) error {
	if err := s.execWithoutResultRetry(ctx,
		`DELETE FROM translation_requests WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	return nil
}

// NextPendingRequest returns the oldest pending request, priority media
// first, for the dispatcher poll.
func (s *Store) NextPendingRequest(ctx context.Context) (*TranslationRequest, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+prefixColumns("r", requestColumns)+` FROM translation_requests r
         LEFT JOIN media m ON m.id = r.media_id AND m.kind = r.media_kind
         WHERE r.status = ?
         ORDER BY COALESCE(m.is_priority, 0) DESC, r.created_at ASC, r.id ASC
         LIMIT 1`,
		string(StatusPending))
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending request: %w", err)
	}
	return req, nil
}

// PendingRequests returns up to limit pending requests in dispatch order.
func (s *Store) PendingRequests(ctx context.Context, limit int) ([]*TranslationRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+prefixColumns("r", requestColumns)+` FROM translation_requests r
         LEFT JOIN media m ON m.id = r.media_id AND m.kind = r.media_kind
         WHERE r.status = ?
         ORDER BY COALESCE(m.is_priority, 0) DESC, r.created_at ASC, r.id ASC
         LIMIT ?`,
		string(StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("pending requests: %w", err)
	}
	defer rows.Close()
	var out []*TranslationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("pending requests: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// ActiveRequestCount counts requests still holding a queue slot.
func (s *Store) ActiveRequestCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM translation_requests WHERE is_active = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("active request count: %w", err)
	}
	return count, nil
}

// SweepInterrupted transitions rows left in progress by a previous process
// to interrupted. Run once at startup, before workers start.
func (s *Store) SweepInterrupted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE translation_requests
         SET status = ?, is_active = NULL, completed_at = ?
         WHERE status = ?`,
		string(StatusInterrupted), formatTime(time.Now()), string(StatusInProgress),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep interrupted: %w", err)
	}
	return res.RowsAffected()
}

// DedupeRequests collapses duplicate rows per (media, kind, source, target)
// tuple: the lowest id survives, the audit logs of removed rows are rewired
// to it, and active rows are never touched.
func (s *Store) DedupeRequests(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	const duplicates = `
        SELECT id FROM translation_requests
        WHERE is_active IS NULL AND id NOT IN (
            SELECT MIN(id) FROM translation_requests
            GROUP BY media_id, media_kind, source_language, target_language
        )`

	var removed int64
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		// Move the logs before the cascade delete can take them.
		if _, err := tx.ExecContext(ctx, `
            UPDATE translation_request_logs
            SET request_id = (
                SELECT MIN(t.id) FROM translation_requests t
                JOIN translation_requests cur ON cur.id = translation_request_logs.request_id
                WHERE t.media_id = cur.media_id AND t.media_kind = cur.media_kind
                  AND t.source_language = cur.source_language
                  AND t.target_language = cur.target_language)
            WHERE request_id IN (`+duplicates+`)`); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM translation_requests WHERE id IN (`+duplicates+`)`)
		if err != nil {
			return err
		}
		if removed, err = res.RowsAffected(); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("dedupe requests: %w", err)
	}
	return removed, nil
}

// RequestListOptions shapes the paginated request listing.
type RequestListOptions struct {
	SearchQuery string
	OrderBy     string
	Ascending   bool
	Page        int
	PageSize    int
}

var requestOrderColumns = map[string]string{
	"id":              "id",
	"title":           "title",
	"status":          "status",
	"progress":        "progress",
	"created_at":      "created_at",
	"completed_at":    "completed_at",
	"source_language": "source_language",
	"target_language": "target_language",
}

// ListRequests returns one page of requests plus the total match count.
func (s *Store) ListRequests(ctx context.Context, opts RequestListOptions) ([]*TranslationRequest, int, error) {
	ctx = ensureContext(ctx)
	where := ""
	var args []any
	if q := strings.TrimSpace(opts.SearchQuery); q != "" {
		where = ` WHERE title LIKE ? ESCAPE '\'`
		escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(q)
		args = append(args, "%"+escaped+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM translation_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	orderCol, ok := requestOrderColumns[strings.ToLower(opts.OrderBy)]
	if !ok {
		orderCol = "created_at"
	}
	direction := "DESC"
	if opts.Ascending {
		direction = "ASC"
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	page := opts.Page
	if page < 1 {
		page = 1
	}
	query := `SELECT ` + requestColumns + ` FROM translation_requests` + where +
		` ORDER BY ` + orderCol + ` ` + direction + `, id ` + direction +
		` LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()
	var out []*TranslationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, req)
	}
	return out, total, rows.Err()
}

func prefixColumns(alias, columns string) string {
	return alias + "." + strings.ReplaceAll(columns, ", ", ", "+alias+".")
}
