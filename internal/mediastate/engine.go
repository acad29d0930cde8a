// Package mediastate computes the per-media automation state from the
// sidecar directory, the embedded track inventory, and the request queue.
// It exclusively owns writes to the media translation state fields.
package mediastate

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"translarr/internal/fileutil"
	"translarr/internal/language"
	"translarr/internal/logging"
	"translarr/internal/settings"
	"translarr/internal/store"
)

// Engine recomputes and persists media translation states.
type Engine struct {
	store    *store.Store
	settings *settings.Service
	logger   *slog.Logger
}

// NewEngine wires the state engine.
func NewEngine(st *store.Store, svc *settings.Service, logger *slog.Logger) *Engine {
	return &Engine{
		store:    st,
		settings: svc,
		logger:   logging.OrNop(logger).With(logging.String(logging.FieldComponent, "mediastate")),
	}
}

// Compute derives the state of one media row without writing it.
func (e *Engine) Compute(ctx context.Context, media *store.Media) (store.TranslationState, error) {
	sourceLangs := e.settings.Languages(ctx, settings.KeySourceLanguages)
	targetLangs := e.settings.Languages(ctx, settings.KeyTargetLanguages)

	if media.ExcludeFromTranslation || len(sourceLangs) == 0 || len(targetLangs) == 0 {
		return store.StateNotApplicable, nil
	}

	sidecars := e.scanSidecars(media)
	hasSource := false
	for _, lang := range sourceLangs {
		if _, ok := sidecars[lang]; ok {
			hasSource = true
			break
		}
	}
	if !hasSource {
		tracks, err := e.store.ListEmbeddedSubtitles(ctx, media.ID)
		if err != nil {
			return store.StateUnknown, err
		}
		suitable, textBased := classifyTracks(tracks, sourceLangs)
		if !suitable {
			if textBased {
				return store.StateAwaitingSource, nil
			}
			return store.StateNoSuitableSubtitles, nil
		}
	}

	active, err := e.store.HasActiveRequestForMedia(ctx, media.Kind, media.ID)
	if err != nil {
		return store.StateUnknown, err
	}
	if active {
		return store.StateInProgress, nil
	}

	allTargets := true
	for _, lang := range targetLangs {
		if _, ok := sidecars[lang]; !ok {
			allTargets = false
			break
		}
	}
	if allTargets {
		return store.StateComplete, nil
	}
	return store.StatePending, nil
}

// Refresh computes and persists the state of one media row, stamping the
// sidecar-check time and the current language settings version.
func (e *Engine) Refresh(ctx context.Context, media *store.Media) (store.TranslationState, error) {
	state, err := e.Compute(ctx, media)
	if err != nil {
		return state, err
	}
	version := e.settings.LanguageSettingsVersion(ctx)
	if err := e.store.SetTranslationState(ctx, media.Kind, media.ID, state, version); err != nil {
		return state, err
	}
	if err := e.store.SetLastSubtitleCheck(ctx, media.Kind, media.ID, time.Now().UTC()); err != nil {
		return state, err
	}
	if state != media.TranslationState {
		e.logger.Debug("media state changed",
			logging.String(logging.FieldMediaKind, string(media.Kind)),
			logging.Int64(logging.FieldMediaID, media.ID),
			logging.String("from", string(media.TranslationState)),
			logging.String("to", string(state)))
	}
	return state, nil
}

// OnRequestFinished recomputes state after a request left the queue. Failed
// terminal requests mark the media failed; otherwise completion re-derives
// complete-versus-pending from the sidecar set.
func (e *Engine) OnRequestFinished(ctx context.Context, kind store.MediaKind, mediaID int64, status store.RequestStatus) error {
	media, err := e.store.GetMedia(ctx, kind, mediaID)
	if err != nil || media == nil {
		return err
	}
	version := e.settings.LanguageSettingsVersion(ctx)
	if status == store.StatusFailed {
		return e.store.SetTranslationState(ctx, kind, mediaID, store.StateFailed, version)
	}
	_, err = e.Refresh(ctx, media)
	return err
}

// MarkAllStale invalidates the derived state of every media row after a
// configuration change that feeds the derivation, so even rows parked in
// not-applicable or awaiting-source get another look. In-flight media are
// not preempted; their state is re-derived when the request finishes.
func (e *Engine) MarkAllStale(ctx context.Context) (int64, error) {
	version := e.settings.LanguageSettingsVersion(ctx)
	changed, err := e.store.MarkAllStale(ctx, version)
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		e.logger.Info("media marked stale", logging.Int64("count", changed), logging.Int64("version", version))
	}
	return changed, nil
}

// MediaNeedingTranslation lists eligible media honoring the per-kind age
// thresholds from settings.
func (e *Engine) MediaNeedingTranslation(ctx context.Context, limit int, priorityFirst bool) ([]*store.Media, error) {
	thresholds := map[store.MediaKind]int{
		store.KindMovie:   e.settings.Int(ctx, settings.KeyMovieAgeThreshold),
		store.KindEpisode: e.settings.Int(ctx, settings.KeyShowAgeThreshold),
	}
	return e.store.MediaNeedingTranslation(ctx, limit, priorityFirst, thresholds)
}

// PickSourceLanguage returns the first of the configured source languages the
// media actually has a subtitle for, sidecars first, then embedded text
// tracks. Empty when none matches.
func (e *Engine) PickSourceLanguage(ctx context.Context, media *store.Media, sources []string) string {
	sidecars := e.scanSidecars(media)
	for _, lang := range sources {
		if _, ok := sidecars[lang]; ok {
			return lang
		}
	}
	tracks, err := e.store.ListEmbeddedSubtitles(ctx, media.ID)
	if err != nil {
		return ""
	}
	for _, lang := range sources {
		for _, track := range tracks {
			if track.IsTextBased && language.Matches(track.Language, lang) {
				return lang
			}
		}
	}
	return ""
}

// scanSidecars maps two-letter language codes to sidecar paths found next to
// the media file.
func (e *Engine) scanSidecars(media *store.Media) map[string]string {
	out := make(map[string]string)
	dir := filepath.Dir(media.Path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
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
		lang := language.ToISO2(info.Language)
		if lang == "" {
			continue
		}
		if _, seen := out[lang]; !seen {
			out[lang] = filepath.Join(dir, entry.Name())
		}
	}
	return out
}

// classifyTracks reports whether a text-based track matches a source
// language, and whether any text-based track exists at all.
func classifyTracks(tracks []*store.EmbeddedSubtitle, sourceLangs []string) (suitable, textBased bool) {
	for _, track := range tracks {
		if !track.IsTextBased {
			continue
		}
		textBased = true
		for _, lang := range sourceLangs {
			if language.Matches(track.Language, lang) {
				return true, true
			}
		}
	}
	return false, textBased
}
