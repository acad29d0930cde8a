package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const mediaColumns = "id, kind, external_id, title, path, file_name, date_added, " +
	"exclude_from_translation, is_priority, priority_date, translation_age_threshold, season_id, " +
	"translation_state, indexed_at, state_settings_version, last_subtitle_check_at"

func scanMedia(scanner interface{ Scan(dest ...any) error }) (*Media, error) {
	var (
		id           int64
		kind         string
		externalID   string
		title        string
		path         string
		fileName     string
		dateAddedRaw string
		exclude      int
		priority     int
		priorityRaw  sql.NullString
		ageThreshold sql.NullInt64
		seasonID     sql.NullInt64
		state        string
		indexedRaw   sql.NullString
		settingsVer  int64
		lastCheckRaw sql.NullString
	)
	if err := scanner.Scan(
		&id, &kind, &externalID, &title, &path, &fileName, &dateAddedRaw,
		&exclude, &priority, &priorityRaw, &ageThreshold, &seasonID,
		&state, &indexedRaw, &settingsVer, &lastCheckRaw,
	); err != nil {
		return nil, err
	}

	m := &Media{
		ID:                     id,
		Kind:                   MediaKind(kind),
		ExternalID:             externalID,
		Title:                  title,
		Path:                   path,
		FileName:               fileName,
		ExcludeFromTranslation: exclude != 0,
		IsPriority:             priority != 0,
		TranslationState:       TranslationState(state),
		StateSettingsVersion:   settingsVer,
	}
	if added, err := parseTimeString(dateAddedRaw); err == nil {
		m.DateAdded = added
	}
	if priorityRaw.Valid {
		if t, err := parseTimeString(priorityRaw.String); err == nil {
			m.PriorityDate = &t
		}
	}
	if ageThreshold.Valid {
		v := int(ageThreshold.Int64)
		m.TranslationAgeThreshold = &v
	}
	if seasonID.Valid {
		v := seasonID.Int64
		m.SeasonID = &v
	}
	if indexedRaw.Valid {
		if t, err := parseTimeString(indexedRaw.String); err == nil {
			m.IndexedAt = &t
		}
	}
	if lastCheckRaw.Valid {
		if t, err := parseTimeString(lastCheckRaw.String); err == nil {
			m.LastSubtitleCheckAt = &t
		}
	}
	return m, nil
}

// UpsertShow creates or refreshes a show keyed by external identifier.
func (s *Store) UpsertShow(ctx context.Context, externalID, title, path string) (int64, error) {
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO shows (external_id, title, path, date_added) VALUES (?, ?, ?, ?)
         ON CONFLICT(external_id) DO UPDATE SET title = excluded.title, path = excluded.path`,
		externalID, title, nullableString(path), formatTime(time.Now()),
	); err != nil {
		return 0, fmt.Errorf("upsert show: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM shows WHERE external_id = ?`, externalID).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve show id: %w", err)
	}
	return id, nil
}

// UpsertSeason creates a season of a show when missing.
func (s *Store) UpsertSeason(ctx context.Context, showID int64, number int) (int64, error) {
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO seasons (show_id, number) VALUES (?, ?)
         ON CONFLICT(show_id, number) DO NOTHING`,
		showID, number,
	); err != nil {
		return 0, fmt.Errorf("upsert season: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM seasons WHERE show_id = ? AND number = ?`, showID, number).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve season id: %w", err)
	}
	return id, nil
}

// UpsertMedia creates or refreshes a media row keyed by (external_id, kind).
// Library facts are updated; automation state and user toggles are preserved
// on conflict.
func (s *Store) UpsertMedia(ctx context.Context, m *Media) (*Media, error) {
	if m == nil {
		return nil, errors.New("media is nil")
	}
	if !ValidKind(m.Kind) {
		return nil, fmt.Errorf("unknown media kind %q", m.Kind)
	}
	dateAdded := m.DateAdded
	if dateAdded.IsZero() {
		dateAdded = time.Now().UTC()
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO media (
            kind, external_id, title, path, file_name, date_added, season_id
        ) VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(external_id, kind) DO UPDATE SET
            title = excluded.title,
            path = excluded.path,
            file_name = excluded.file_name,
            season_id = excluded.season_id`,
		string(m.Kind), m.ExternalID, m.Title, m.Path, m.FileName,
		formatTime(dateAdded), nullableInt64(m.SeasonID),
	); err != nil {
		return nil, fmt.Errorf("upsert media: %w", err)
	}
	return s.GetMediaByExternalID(ctx, m.Kind, m.ExternalID)
}

// GetMedia fetches a media row by kind and identifier.
func (s *Store) GetMedia(ctx context.Context, kind MediaKind, id int64) (*Media, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE id = ? AND kind = ?`, id, string(kind))
	m, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return m, nil
}

// GetMediaByExternalID fetches a media row by its library identity.
func (s *Store) GetMediaByExternalID(ctx context.Context, kind MediaKind, externalID string) (*Media, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE external_id = ? AND kind = ?`, externalID, string(kind))
	m, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get media by external id: %w", err)
	}
	return m, nil
}

// ListMedia returns media rows of a kind ordered by date added, or all kinds
// when kind is empty.
func (s *Store) ListMedia(ctx context.Context, kind MediaKind) ([]*Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY date_added ASC, id ASC`
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()
	var out []*Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetExclusion toggles the per-media automation opt-out.
func (s *Store) SetExclusion(ctx context.Context, kind MediaKind, id int64, excluded bool) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE media SET exclude_from_translation = ? WHERE id = ? AND kind = ?`,
		boolToInt(excluded), id, string(kind),
	); err != nil {
		return fmt.Errorf("set exclusion: %w", err)
	}
	return nil
}

// SetPriority toggles the priority flag, stamping priority_date on enable.
func (s *Store) SetPriority(ctx context.Context, kind MediaKind, id int64, priority bool) error {
	var date any
	if priority {
		date = formatTime(time.Now())
	}
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE media SET is_priority = ?, priority_date = ? WHERE id = ? AND kind = ?`,
		boolToInt(priority), date, id, string(kind),
	); err != nil {
		return fmt.Errorf("set priority: %w", err)
	}
	return nil
}

// IsPriority reports the priority flag of a media row; unknown rows are not
// priority. Shaped for the worker pool's acquire-time lookup.
func (s *Store) IsPriority(ctx context.Context, kind MediaKind, id int64) bool {
	var priority int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT is_priority FROM media WHERE id = ? AND kind = ?`, id, string(kind)).Scan(&priority)
	return err == nil && priority != 0
}

// SetAgeThreshold overrides (or clears, with nil) the per-media minimum age.
func (s *Store) SetAgeThreshold(ctx context.Context, kind MediaKind, id int64, hours *int) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE media SET translation_age_threshold = ? WHERE id = ? AND kind = ?`,
		nullableInt(hours), id, string(kind),
	); err != nil {
		return fmt.Errorf("set age threshold: %w", err)
	}
	return nil
}

// SetTranslationState writes the automation state together with the language
// settings version it was computed under.
func (s *Store) SetTranslationState(ctx context.Context, kind MediaKind, id int64, state TranslationState, settingsVersion int64) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE media SET translation_state = ?, state_settings_version = ? WHERE id = ? AND kind = ?`,
		string(state), settingsVersion, id, string(kind),
	); err != nil {
		return fmt.Errorf("set translation state: %w", err)
	}
	return nil
}

// MarkAllStale resets every row to stale when the state-affecting settings
// change. In-flight rows are left alone; their state is re-derived when the
// active request finishes.
func (s *Store) MarkAllStale(ctx context.Context, settingsVersion int64) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE media SET translation_state = ?, state_settings_version = ?
         WHERE translation_state != ?`,
		string(StateStale), settingsVersion, string(StateInProgress),
	)
	if err != nil {
		return 0, fmt.Errorf("mark all stale: %w", err)
	}
	return res.RowsAffected()
}

// SetIndexedAt stamps the embedded-track probe time.
func (s *Store) SetIndexedAt(ctx context.Context, kind MediaKind, id int64, at time.Time) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE media SET indexed_at = ? WHERE id = ? AND kind = ?`,
		formatTime(at), id, string(kind),
	); err != nil {
		return fmt.Errorf("set indexed at: %w", err)
	}
	return nil
}

// SetLastSubtitleCheck stamps the last sidecar-directory inspection time.
func (s *Store) SetLastSubtitleCheck(ctx context.Context, kind MediaKind, id int64, at time.Time) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE media SET last_subtitle_check_at = ? WHERE id = ? AND kind = ?`,
		formatTime(at), id, string(kind),
	); err != nil {
		return fmt.Errorf("set last subtitle check: %w", err)
	}
	return nil
}

// MediaNeedingTranslation returns rows in a translatable state that have no
// active request and are older than their age threshold, priority rows first
// when priorityFirst is set, then by date added ascending. defaultAgeHours
// applies when the row carries no override.
func (s *Store) MediaNeedingTranslation(ctx context.Context, limit int, priorityFirst bool, defaultAgeHours map[MediaKind]int) ([]*Media, error) {
	if limit <= 0 {
		limit = 50
	}
	cutoffFor := func(kind MediaKind) string {
		hours := defaultAgeHours[kind]
		return time.Now().UTC().Add(-time.Duration(hours) * time.Hour).Format("2006-01-02 15:04:05")
	}

	order := "m.date_added ASC, m.id ASC"
	if priorityFirst {
		order = "m.is_priority DESC, " + order
	}
	prefixed := "m." + strings.ReplaceAll(mediaColumns, ", ", ", m.")
	query := `SELECT ` + prefixed + ` FROM media m
        WHERE m.translation_state IN (?, ?, ?)
          AND m.exclude_from_translation = 0
          AND NOT EXISTS (
              SELECT 1 FROM translation_requests r
              WHERE r.media_id = m.id AND r.media_kind = m.kind AND r.is_active = 1
          )
          AND (
              (m.translation_age_threshold IS NOT NULL
                  AND datetime(m.date_added) <= datetime('now', '-' || m.translation_age_threshold || ' hours'))
              OR (m.translation_age_threshold IS NULL AND m.kind = 'movie' AND datetime(m.date_added) <= ?)
              OR (m.translation_age_threshold IS NULL AND m.kind = 'episode' AND datetime(m.date_added) <= ?)
          )
        ORDER BY ` + order + ` LIMIT ?`

	rows, err := s.db.QueryContext(ensureContext(ctx), query,
		string(StatePending), string(StateStale), string(StateUnknown),
		cutoffFor(KindMovie), cutoffFor(KindEpisode), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("media needing translation: %w", err)
	}
	defer rows.Close()
	var out []*Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMedia removes a media row; embedded subtitle rows cascade.
func (s *Store) DeleteMedia(ctx context.Context, kind MediaKind, id int64) error {
	if err := s.execWithoutResultRetry(ctx,
		`DELETE FROM media WHERE id = ? AND kind = ?`, id, string(kind),
	); err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	return nil
}
