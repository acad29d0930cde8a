package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const subtitleColumns = "id, media_id, stream_index, language, title, codec_name, " +
	"is_text_based, is_default, is_forced, is_extracted, extracted_path"

func scanEmbeddedSubtitle(scanner interface{ Scan(dest ...any) error }) (*EmbeddedSubtitle, error) {
	var (
		id            int64
		mediaID       int64
		streamIndex   int
		language      sql.NullString
		title         sql.NullString
		codecName     string
		isTextBased   int
		isDefault     int
		isForced      int
		isExtracted   int
		extractedPath sql.NullString
	)
	if err := scanner.Scan(
		&id, &mediaID, &streamIndex, &language, &title, &codecName,
		&isTextBased, &isDefault, &isForced, &isExtracted, &extractedPath,
	); err != nil {
		return nil, err
	}
	return &EmbeddedSubtitle{
		ID:            id,
		MediaID:       mediaID,
		StreamIndex:   streamIndex,
		Language:      language.String,
		Title:         title.String,
		CodecName:     codecName,
		IsTextBased:   isTextBased != 0,
		IsDefault:     isDefault != 0,
		IsForced:      isForced != 0,
		IsExtracted:   isExtracted != 0,
		ExtractedPath: extractedPath.String,
	}, nil
}

// ReplaceEmbeddedSubtitles swaps the full embedded inventory of a media row
// in one transaction, as produced by a fresh probe.
func (s *Store) ReplaceEmbeddedSubtitles(ctx context.Context, mediaID int64, tracks []*EmbeddedSubtitle) error {
	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin subtitle tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM embedded_subtitles WHERE media_id = ?`, mediaID); err != nil {
		return fmt.Errorf("clear embedded subtitles: %w", err)
	}
	for _, track := range tracks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO embedded_subtitles (
                media_id, stream_index, language, title, codec_name,
                is_text_based, is_default, is_forced, is_extracted, extracted_path
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			mediaID, track.StreamIndex, nullableString(track.Language), nullableString(track.Title),
			track.CodecName, boolToInt(track.IsTextBased), boolToInt(track.IsDefault),
			boolToInt(track.IsForced), boolToInt(track.IsExtracted), nullableString(track.ExtractedPath),
		); err != nil {
			return fmt.Errorf("insert embedded subtitle: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit embedded subtitles: %w", err)
	}
	return nil
}

// ListEmbeddedSubtitles returns the probed tracks of a media row in stream
// order.
func (s *Store) ListEmbeddedSubtitles(ctx context.Context, mediaID int64) ([]*EmbeddedSubtitle, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+subtitleColumns+` FROM embedded_subtitles WHERE media_id = ? ORDER BY stream_index ASC`,
		mediaID,
	)
	if err != nil {
		return nil, fmt.Errorf("list embedded subtitles: %w", err)
	}
	defer rows.Close()
	var out []*EmbeddedSubtitle
	for rows.Next() {
		track, err := scanEmbeddedSubtitle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan embedded subtitle: %w", err)
		}
		out = append(out, track)
	}
	return out, rows.Err()
}

// GetEmbeddedSubtitle fetches one track by identifier.
func (s *Store) GetEmbeddedSubtitle(ctx context.Context, id int64) (*EmbeddedSubtitle, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+subtitleColumns+` FROM embedded_subtitles WHERE id = ?`, id)
	track, err := scanEmbeddedSubtitle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get embedded subtitle: %w", err)
	}
	return track, nil
}

// MarkExtracted flips a track to extracted with its sidecar path. The two
// fields change together so a failed extraction never half-updates the row.
func (s *Store) MarkExtracted(ctx context.Context, id int64, extractedPath string) error {
	if extractedPath == "" {
		return errors.New("extracted path is empty")
	}
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE embedded_subtitles SET is_extracted = 1, extracted_path = ? WHERE id = ?`,
		extractedPath, id,
	); err != nil {
		return fmt.Errorf("mark extracted: %w", err)
	}
	return nil
}
