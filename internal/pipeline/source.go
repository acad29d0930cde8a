package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"translarr/internal/fileutil"
	"translarr/internal/language"
	"translarr/internal/logging"
	"translarr/internal/media/probe"
	"translarr/internal/scoring"
	"translarr/internal/settings"
	"translarr/internal/store"
	"translarr/internal/translator"
)

// resolveSource finds the subtitle file to translate: the explicit request
// path, then a sidecar in the source language, then the best embedded track,
// extracted on demand.
func (p *Pipeline) resolveSource(ctx context.Context, req *store.TranslationRequest, media *store.Media) (string, error) {
	if req.SubtitlePath != "" {
		if fileutil.Exists(req.SubtitlePath) {
			return req.SubtitlePath, nil
		}
		return "", translator.NewError(translator.KindNoSource, req.SubtitlePath, os.ErrNotExist)
	}

	if path := p.findSidecar(ctx, media, req.SourceLanguage); path != "" {
		return path, nil
	}

	rows, err := p.embeddedTracks(ctx, media)
	if err != nil {
		return "", err
	}
	streams := make([]probe.SubtitleStream, 0, len(rows))
	byIndex := make(map[int]*store.EmbeddedSubtitle, len(rows))
	for _, row := range rows {
		byIndex[row.StreamIndex] = row
		streams = append(streams, probe.SubtitleStream{
			StreamIndex: row.StreamIndex,
			Language:    row.Language,
			Title:       row.Title,
			CodecName:   row.CodecName,
			IsTextBased: row.IsTextBased,
			IsDefault:   row.IsDefault,
			IsForced:    row.IsForced,
		})
	}

	matchedLang, picked := scoring.Pick(streams, []string{req.SourceLanguage})
	if picked == nil {
		return "", translator.NewError(translator.KindNoSource,
			fmt.Sprintf("no embedded track matches %s", req.SourceLanguage), nil)
	}
	row := byIndex[picked.StreamIndex]
	if row.IsExtracted && fileutil.Exists(row.ExtractedPath) {
		return row.ExtractedPath, nil
	}

	lang := language.ToISO2(matchedLang)
	if lang == "" {
		lang = language.ToISO2(req.SourceLanguage)
	}
	outPath := fileutil.SidecarPath(media.Path, "embedded", lang, probe.SidecarExtension(picked.CodecName))
	if err := p.extract(ctx, media.Path, *picked, outPath); err != nil {
		return "", err
	}
	if err := p.store.MarkExtracted(ctx, row.ID, outPath); err != nil {
		return "", translator.NewError(translator.KindInternal, "record extraction", err)
	}
	p.logger.Info("embedded track extracted",
		logging.Int64(logging.FieldMediaID, media.ID),
		logging.Int("stream", picked.StreamIndex),
		logging.String("path", outPath))
	return outPath, nil
}

// embeddedTracks returns the stored track inventory, probing the container
// first when the media was never indexed. A probe failure is retried once.
func (p *Pipeline) embeddedTracks(ctx context.Context, media *store.Media) ([]*store.EmbeddedSubtitle, error) {
	rows, err := p.store.ListEmbeddedSubtitles(ctx, media.ID)
	if err != nil {
		return nil, translator.NewError(translator.KindInternal, "list embedded tracks", err)
	}
	if len(rows) > 0 || media.IndexedAt != nil || p.prober == nil {
		return rows, nil
	}

	streams, err := p.prober.SubtitleStreams(ctx, media.Path)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, contextKind(cerr)
		}
		streams, err = p.prober.SubtitleStreams(ctx, media.Path)
	}
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, contextKind(cerr)
		}
		return nil, translator.NewError(translator.KindProbeFailed, media.Path, err)
	}

	rows = rows[:0]
	for _, s := range streams {
		rows = append(rows, &store.EmbeddedSubtitle{
			MediaID:     media.ID,
			StreamIndex: s.StreamIndex,
			Language:    s.Language,
			Title:       s.Title,
			CodecName:   s.CodecName,
			IsTextBased: s.IsTextBased,
			IsDefault:   s.IsDefault,
			IsForced:    s.IsForced,
		})
	}
	if err := p.store.ReplaceEmbeddedSubtitles(ctx, media.ID, rows); err != nil {
		return nil, translator.NewError(translator.KindInternal, "store embedded tracks", err)
	}
	if err := p.store.SetIndexedAt(ctx, media.Kind, media.ID, nowUTC()); err != nil {
		return nil, translator.NewError(translator.KindInternal, "stamp index time", err)
	}
	return p.store.ListEmbeddedSubtitles(ctx, media.ID)
}

func nowUTC() time.Time { return time.Now().UTC() }

// extract pulls the embedded track into outPath, retrying once.
func (p *Pipeline) extract(ctx context.Context, mediaPath string, stream probe.SubtitleStream, outPath string) error {
	if p.prober == nil {
		return translator.NewError(translator.KindExtractFailed, "no extractor configured", nil)
	}
	err := p.prober.Extract(ctx, mediaPath, stream, outPath)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return contextKind(cerr)
		}
		err = p.prober.Extract(ctx, mediaPath, stream, outPath)
	}
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return contextKind(cerr)
		}
		return translator.NewError(translator.KindExtractFailed, outPath, err)
	}
	return nil
}

// findSidecar returns an existing sidecar in the wanted language next to the
// media file. Sidecars carrying our own output tag are ignored so a previous
// translation is never fed back in as a source.
func (p *Pipeline) findSidecar(ctx context.Context, media *store.Media, lang string) string {
	ownTag := ""
	if p.settings.Bool(ctx, settings.KeyUseSubtitleTagging) {
		ownTag = p.settings.Get(ctx, settings.KeySubtitleTag)
	}
	dir := filepath.Dir(media.Path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	mediaBase := strings.TrimSuffix(filepath.Base(media.Path), filepath.Ext(media.Path))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, ok := fileutil.ParseSidecar(entry.Name())
		if !ok || info.MediaBase != mediaBase {
			continue
		}
		if info.Ext != "srt" && info.Ext != "ass" && info.Ext != "ssa" {
			continue
		}
		if ownTag != "" && info.Tag == ownTag {
			continue
		}
		if language.Matches(info.Language, lang) {
			return filepath.Join(dir, entry.Name())
		}
	}
	return ""
}
