// Package pipeline runs one translation request end-to-end: source
// resolution, parsing, batching, provider calls with fallback and deferred
// repair, post-processing, integrity validation, and the atomic write.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"translarr/internal/fileutil"
	"translarr/internal/integrity"
	"translarr/internal/language"
	"translarr/internal/logging"
	"translarr/internal/media/probe"
	"translarr/internal/providers"
	"translarr/internal/requests"
	"translarr/internal/settings"
	"translarr/internal/store"
	"translarr/internal/subtitle"
	"translarr/internal/translator"
)

// ProviderFactory builds the translator for one request, honoring the
// current settings.
type ProviderFactory func(ctx context.Context) (providers.Translator, error)

// Pipeline executes translation requests.
type Pipeline struct {
	store       *store.Store
	settings    *settings.Service
	requests    *requests.Service
	prober      *probe.Prober
	validator   *integrity.Validator
	newProvider ProviderFactory
	logger      *slog.Logger
}

// New wires a pipeline.
func New(st *store.Store, svc *settings.Service, reqs *requests.Service, prober *probe.Prober, factory ProviderFactory, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:       st,
		settings:    svc,
		requests:    reqs,
		prober:      prober,
		validator:   integrity.NewValidator(),
		newProvider: factory,
		logger:      logging.OrNop(logger).With(logging.String(logging.FieldComponent, "pipeline")),
	}
}

// Run translates one request. Errors carry a translator.Kind the dispatcher
// maps to the terminal request status.
func (p *Pipeline) Run(ctx context.Context, req *store.TranslationRequest) error {
	if timeout := p.settings.Seconds(ctx, settings.KeyRequestTimeout); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	media, err := p.store.GetMedia(ctx, req.MediaKind, req.MediaID)
	if err != nil {
		return translator.NewError(translator.KindInternal, "load media", err)
	}
	if media == nil {
		return translator.NewError(translator.KindInternal, fmt.Sprintf("media %s/%d missing", req.MediaKind, req.MediaID), nil)
	}

	// The resolved path stays in-memory; the stored request keeps only an
	// explicitly supplied sidecar path.
	sourcePath, err := p.resolveSource(ctx, req, media)
	if err != nil {
		return err
	}
	p.requests.AppendLog(ctx, req.ID, "info", "source resolved", sourcePath)

	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return translator.NewError(translator.KindNoSource, "read source", err)
	}
	doc, err := subtitle.Parse(data)
	if err != nil {
		return translator.NewError(translator.KindMalformed, sourcePath, err)
	}

	provider, err := p.newProvider(ctx)
	if err != nil {
		return translator.NewError(translator.KindInternal, "build provider", err)
	}

	translations, err := p.translate(ctx, req, doc, provider)
	if err != nil {
		return err
	}

	targetPath, err := p.finalize(ctx, req, media, data, doc, translations, provider.Name())
	if err != nil {
		return err
	}
	p.requests.AppendLog(ctx, req.ID, "info", "translation written", targetPath)
	return nil
}

// translate runs the batch, fallback, and repair layers, returning the
// per-position translations.
func (p *Pipeline) translate(ctx context.Context, req *store.TranslationRequest, doc *subtitle.Document, provider providers.Translator) (map[int]string, error) {
	ignoreCaptions := p.settings.Bool(ctx, settings.KeyIgnoreCaptions)

	cues := doc.Cues()
	var translatable []subtitle.Cue
	for _, cue := range cues {
		if subtitle.IsDrawingCommand(cue.Text) || subtitle.IsMeaningless(cue.Text) {
			continue
		}
		if ignoreCaptions && subtitle.IsCaption(cue.Text) {
			continue
		}
		translatable = append(translatable, cue)
	}
	if len(translatable) == 0 {
		return map[int]string{}, nil
	}

	if !p.settings.Bool(ctx, settings.KeyUseBatchTranslation) {
		return p.translateSingles(ctx, req, translatable, provider)
	}

	batchCfg := translator.BatchConfig{
		MaxBatchSize:   p.settings.Int(ctx, settings.KeyMaxBatchSize),
		ContextEnabled: p.settings.Bool(ctx, settings.KeyBatchContextEnabled),
		ContextBefore:  p.settings.Int(ctx, settings.KeyBatchContextBefore),
		ContextAfter:   p.settings.Int(ctx, settings.KeyBatchContextAfter),
	}
	fallbackCfg := translator.FallbackConfig{
		Enabled:          p.settings.Bool(ctx, settings.KeyEnableBatchFallback),
		MaxSplitAttempts: p.settings.Int(ctx, settings.KeyMaxBatchSplitAttempts),
	}

	batches := translator.BuildBatches(cues, translatable, batchCfg)
	results := make(map[int]string, len(translatable))
	var leftovers []int
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return nil, contextKind(err)
		}
		batchResult, missing, err := translator.TranslateWithFallback(
			ctx, provider, batch, req.SourceLanguage, req.TargetLanguage, fallbackCfg)
		if err != nil {
			return nil, providerKind(err)
		}
		for position, text := range batchResult {
			results[position] = text
		}
		leftovers = append(leftovers, missing...)
		percent := int(math.Floor(100 * float64(i+1) / float64(len(batches))))
		_ = p.requests.Progress(ctx, req.ID, percent)
	}

	if len(leftovers) > 0 && p.settings.Get(ctx, settings.KeyBatchRetryMode) == settings.RetryModeDeferred {
		p.requests.AppendLog(ctx, req.ID, "warning", "repairing missing positions",
			fmt.Sprintf("%d positions", len(leftovers)))
		repairCfg := translator.RepairConfig{
			Enabled:       true,
			ContextRadius: p.settings.Int(ctx, settings.KeyRepairContextRadius),
			MaxRetries:    p.settings.Int(ctx, settings.KeyRepairMaxRetries),
			BatchSize:     p.settings.Int(ctx, settings.KeyMaxBatchSize),
			Fallback:      fallbackCfg,
		}
		repaired, stillMissing, err := translator.ExecuteRepair(
			ctx, provider, leftovers, cues, req.SourceLanguage, req.TargetLanguage, repairCfg)
		if err != nil {
			return nil, providerKind(err)
		}
		for position, text := range repaired {
			results[position] = text
		}
		leftovers = stillMissing
	}
	if len(leftovers) > 0 {
		return nil, translator.NewError(translator.KindInvalidResponse,
			fmt.Sprintf("%d positions untranslated after repair", len(leftovers)), providers.ErrInvalidResponse)
	}
	return results, nil
}

// translateSingles is the line-at-a-time mode used when batch translation is
// disabled.
func (p *Pipeline) translateSingles(ctx context.Context, req *store.TranslationRequest, translatable []subtitle.Cue, provider providers.Translator) (map[int]string, error) {
	results := make(map[int]string, len(translatable))
	for i, cue := range translatable {
		if err := ctx.Err(); err != nil {
			return nil, contextKind(err)
		}
		text, err := provider.TranslateSingle(ctx, subtitle.RemoveMarkup(cue.Text), req.SourceLanguage, req.TargetLanguage)
		if err != nil {
			return nil, providerKind(err)
		}
		results[cue.Position] = text
		percent := int(math.Floor(100 * float64(i+1) / float64(len(translatable))))
		_ = p.requests.Progress(ctx, req.ID, percent)
	}
	return results, nil
}

// finalize applies translations and post-processing, validates, and writes
// the target sidecar. Returns the written path.
func (p *Pipeline) finalize(ctx context.Context, req *store.TranslationRequest, media *store.Media, sourceData []byte, doc *subtitle.Document, translations map[int]string, providerName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", contextKind(err)
	}

	stripFormatting := p.settings.Bool(ctx, settings.KeyStripFormatting)
	cleanDrawings := p.settings.Bool(ctx, settings.KeyCleanSourceASSDrawings)

	for _, cue := range doc.Cues() {
		text, ok := translations[cue.Position]
		if !ok {
			if cleanDrawings && subtitle.IsDrawingCommand(cue.Text) && subtitle.RemoveMarkup(cue.Text) != "" {
				_ = doc.SetText(cue.Position, "")
			}
			continue
		}
		if stripFormatting {
			text = subtitle.StripTags(text)
		}
		if err := doc.SetText(cue.Position, text); err != nil {
			return "", translator.NewError(translator.KindInternal, "apply translation", err)
		}
	}

	if p.settings.Bool(ctx, settings.KeyFixOverlapping) {
		clampOverlaps(doc)
	}
	if p.settings.Bool(ctx, settings.KeyAddTranslatorInfo) {
		note := fmt.Sprintf("Translated from %s to %s (%s)",
			language.DisplayName(req.SourceLanguage), language.DisplayName(req.TargetLanguage), providerName)
		doc.InsertLeadingCue(note, 4*time.Second)
	}

	targetPath := p.targetPath(ctx, media, req.TargetLanguage, doc.Format())

	if p.settings.Bool(ctx, settings.KeyIntegrityValidation) {
		source, err := subtitle.Parse(sourceData)
		if err != nil {
			return "", translator.NewError(translator.KindMalformed, "re-parse source", err)
		}
		p.validator.MinRatio = p.settings.Float(ctx, settings.KeyValidationMinRatio)
		if ok, reason := p.validator.Validate(source, doc); !ok {
			_ = os.Remove(targetPath)
			return "", translator.NewError(translator.KindIntegrityFailed, reason, nil)
		}
	}

	if err := fileutil.WriteAtomic(targetPath, doc.Emit(), 0o644); err != nil {
		return "", translator.NewError(translator.KindInternal, "write target", err)
	}
	return targetPath, nil
}

// targetPath builds the output sidecar name, honoring the tagging and
// language-tag settings.
func (p *Pipeline) targetPath(ctx context.Context, media *store.Media, targetLang string, format subtitle.Format) string {
	tag := ""
	if p.settings.Bool(ctx, settings.KeyUseSubtitleTagging) {
		tag = p.settings.Get(ctx, settings.KeySubtitleTag)
	}
	lang := language.ToISO2(targetLang)
	if p.settings.Bool(ctx, settings.KeyRemoveLanguageTag) {
		lang = ""
	}
	ext := string(format)
	parts := []string{strings.TrimSuffix(media.Path, filepath.Ext(media.Path))}
	if tag != "" {
		parts = append(parts, tag)
	}
	if lang != "" {
		parts = append(parts, lang)
	}
	parts = append(parts, ext)
	return strings.Join(parts, ".")
}

// clampOverlaps enforces cue[i].end <= cue[i+1].start.
func clampOverlaps(doc *subtitle.Document) {
	cues := doc.Cues()
	for i := 0; i < len(cues)-1; i++ {
		if cues[i].End > cues[i+1].Start {
			_ = doc.SetTiming(cues[i].Position, cues[i].Start, cues[i+1].Start)
		}
	}
}

// providerKind maps provider and context errors to pipeline error kinds.
func providerKind(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return translator.NewError(translator.KindCancelled, "", err)
	case errors.Is(err, context.DeadlineExceeded):
		return translator.NewError(translator.KindTimedOut, "", err)
	case errors.Is(err, providers.ErrDailyLimitReached):
		return translator.NewError(translator.KindDailyLimit, "", err)
	case errors.Is(err, providers.ErrPaymentRequired):
		return translator.NewError(translator.KindPaymentRequired, "", err)
	case errors.Is(err, providers.ErrInvalidResponse):
		return translator.NewError(translator.KindInvalidResponse, "", err)
	case errors.Is(err, providers.ErrTransient):
		return translator.NewError(translator.KindTransient, "retries exhausted", err)
	default:
		return translator.NewError(translator.KindInternal, "provider call", err)
	}
}

func contextKind(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return translator.NewError(translator.KindTimedOut, "", err)
	}
	return translator.NewError(translator.KindCancelled, "", err)
}
