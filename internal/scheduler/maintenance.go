package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"translarr/internal/fileutil"
	"translarr/internal/integrity"
	"translarr/internal/language"
	"translarr/internal/logging"
	"translarr/internal/media/probe"
	"translarr/internal/settings"
	"translarr/internal/store"
)

const maintenanceWidth = 4

// Maintain runs the maintenance pass: integrity sweep over completed media,
// orphan sidecar cleanup, and the background extraction sweep when the
// extraction mode asks for it.
func (s *Scheduler) Maintain(ctx context.Context) {
	if n, err := s.IntegritySweep(ctx); err != nil {
		s.logger.Error("integrity sweep", logging.Error(err))
	} else if n > 0 {
		s.logger.Warn("integrity sweep flagged media", logging.Int("flagged", n))
	}
	if n, err := s.CleanupOrphans(ctx); err != nil {
		s.logger.Error("orphan cleanup", logging.Error(err))
	} else if n > 0 {
		s.logger.Info("orphan sidecars removed", logging.Int("removed", n))
	}
	if s.settings.Get(ctx, settings.KeyExtractionMode) == settings.ExtractAll {
		if n, err := s.ExtractAllSweep(ctx); err != nil {
			s.logger.Error("extraction sweep", logging.Error(err))
		} else if n > 0 {
			s.logger.Info("embedded tracks extracted", logging.Int("extracted", n))
		}
	}
}

// IntegritySweep re-validates the target sidecars of completed media. A bad
// target is deleted and the media re-derived so the next sweep retranslates
// it. Returns the number of media flagged.
func (s *Scheduler) IntegritySweep(ctx context.Context) (int, error) {
	if !s.settings.Bool(ctx, settings.KeyIntegrityValidation) {
		return 0, nil
	}
	media, err := s.store.ListMedia(ctx, "")
	if err != nil {
		return 0, err
	}
	sources := s.settings.Languages(ctx, settings.KeySourceLanguages)
	targets := s.settings.Languages(ctx, settings.KeyTargetLanguages)
	validator := integrity.NewValidator()
	validator.MinRatio = s.settings.Float(ctx, settings.KeyValidationMinRatio)

	var g errgroup.Group
	g.SetLimit(maintenanceWidth)
	flagged := make([]bool, len(media))
	for i, m := range media {
		if m.TranslationState != store.StateComplete {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			flagged[i] = s.checkMediaIntegrity(ctx, m, validator, sources, targets)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	count := 0
	for _, f := range flagged {
		if f {
			count++
		}
	}
	return count, nil
}

// checkMediaIntegrity validates each target sidecar of one media row against
// its source sidecar. Reports whether anything was removed.
func (s *Scheduler) checkMediaIntegrity(ctx context.Context, m *store.Media, validator *integrity.Validator, sources, targets []string) bool {
	sidecars := sidecarsOf(m)
	var sourcePath string
	for _, lang := range sources {
		if path, ok := sidecars[lang]; ok {
			sourcePath = path
			break
		}
	}
	if sourcePath == "" {
		return false
	}
	removed := false
	for _, lang := range targets {
		targetPath, ok := sidecars[lang]
		if !ok || targetPath == sourcePath {
			continue
		}
		if ok, reason := validator.ValidateFiles(sourcePath, targetPath); !ok {
			s.logger.Warn("integrity sweep removing target",
				logging.String("path", targetPath),
				logging.String("reason", reason))
			_ = os.Remove(targetPath)
			_ = s.store.AppendCleanupLog(ctx, targetPath, reason)
			removed = true
		}
	}
	if removed {
		if _, err := s.state.Refresh(ctx, m); err != nil {
			s.logger.Error("refresh after sweep", logging.Int64(logging.FieldMediaID, m.ID), logging.Error(err))
		}
	}
	return removed
}

// CleanupOrphans deletes tagged sidecars whose media file no longer exists
// under that base name. Only files carrying the configured subtitle tag are
// candidates; untagged sidecars are never touched.
func (s *Scheduler) CleanupOrphans(ctx context.Context) (int, error) {
	tag := strings.TrimSpace(s.settings.Get(ctx, settings.KeySubtitleTag))
	if tag == "" {
		return 0, nil
	}
	media, err := s.store.ListMedia(ctx, "")
	if err != nil {
		return 0, err
	}

	// Known media base names per directory.
	basesByDir := make(map[string]map[string]struct{})
	for _, m := range media {
		dir := filepath.Dir(m.Path)
		if basesByDir[dir] == nil {
			basesByDir[dir] = make(map[string]struct{})
		}
		base := strings.TrimSuffix(filepath.Base(m.Path), filepath.Ext(m.Path))
		basesByDir[dir][base] = struct{}{}
	}

	removed := 0
	for dir, bases := range basesByDir {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, ok := fileutil.ParseSidecar(entry.Name())
			if !ok || info.Tag != tag {
				continue
			}
			if _, known := bases[info.MediaBase]; known {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				s.logger.Error("remove orphan", logging.String("path", path), logging.Error(err))
				continue
			}
			_ = s.store.AppendCleanupLog(ctx, path, "orphaned: media file renamed or removed")
			removed++
		}
	}
	return removed, nil
}

// ExtractAllSweep extracts every text-based embedded track in a configured
// source language that has not been extracted yet.
func (s *Scheduler) ExtractAllSweep(ctx context.Context) (int, error) {
	if s.prober == nil {
		return 0, nil
	}
	sources := s.settings.Languages(ctx, settings.KeySourceLanguages)
	if len(sources) == 0 {
		return 0, nil
	}
	media, err := s.store.ListMedia(ctx, "")
	if err != nil {
		return 0, err
	}

	var g errgroup.Group
	g.SetLimit(maintenanceWidth)
	counts := make([]int, len(media))
	for i, m := range media {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := s.extractMediaTracks(ctx, m, sources)
			counts[i] = n
			if err != nil {
				s.logger.Error("extract tracks", logging.Int64(logging.FieldMediaID, m.ID), logging.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

func (s *Scheduler) extractMediaTracks(ctx context.Context, m *store.Media, sources []string) (int, error) {
	tracks, err := s.store.ListEmbeddedSubtitles(ctx, m.ID)
	if err != nil {
		return 0, err
	}
	extracted := 0
	for _, track := range tracks {
		if !track.IsTextBased || track.IsExtracted {
			continue
		}
		matched := ""
		for _, lang := range sources {
			if language.Matches(track.Language, lang) {
				matched = lang
				break
			}
		}
		if matched == "" {
			continue
		}
		outPath := fileutil.SidecarPath(m.Path, "embedded", language.ToISO2(matched), probe.SidecarExtension(track.CodecName))
		if err := s.prober.Extract(ctx, m.Path, streamOf(track), outPath); err != nil {
			return extracted, err
		}
		if err := s.store.MarkExtracted(ctx, track.ID, outPath); err != nil {
			return extracted, err
		}
		extracted++
	}
	return extracted, nil
}

func streamOf(track *store.EmbeddedSubtitle) probe.SubtitleStream {
	return probe.SubtitleStream{
		StreamIndex: track.StreamIndex,
		Language:    track.Language,
		Title:       track.Title,
		CodecName:   track.CodecName,
		IsTextBased: track.IsTextBased,
		IsDefault:   track.IsDefault,
		IsForced:    track.IsForced,
	}
}

func sidecarsOf(m *store.Media) map[string]string {
	out := make(map[string]string)
	dir := filepath.Dir(m.Path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	base := strings.TrimSuffix(filepath.Base(m.Path), filepath.Ext(m.Path))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, ok := fileutil.ParseSidecar(entry.Name())
		if !ok || info.MediaBase != base {
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
