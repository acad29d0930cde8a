package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"translarr/internal/providers"
	"translarr/internal/requests"
	"translarr/internal/settings"
	"translarr/internal/store"
	"translarr/internal/subtitle"
	"translarr/internal/translator"
	"translarr/internal/workers"
)

type scriptedProvider struct {
	mu      sync.Mutex
	calls   int
	batchFn func(call int, items []providers.Item) (map[int]string, error)
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) TranslateSingle(ctx context.Context, line, sourceLang, targetLang string) (string, error) {
	return "RO: " + line, nil
}

func (p *scriptedProvider) TranslateBatch(ctx context.Context, items []providers.Item, sourceLang, targetLang string, opts providers.BatchOptions) (map[int]string, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.mu.Unlock()
	return p.batchFn(call, items)
}

func (p *scriptedProvider) Models(ctx context.Context) ([]string, error)    { return nil, nil }
func (p *scriptedProvider) Languages(ctx context.Context) ([]string, error) { return nil, nil }

func answerAll(call int, items []providers.Item) (map[int]string, error) {
	out := make(map[int]string, len(items))
	for _, item := range items {
		out[item.Position] = "RO: " + item.Line
	}
	return out, nil
}

type testEnv struct {
	store    *store.Store
	settings *settings.Service
	requests *requests.Service
	pool     *workers.Pool
	provider *scriptedProvider
	pipeline *Pipeline
	dir      string
	media    *store.Media
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "translarr.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	env := &testEnv{
		store:    st,
		settings: settings.NewService(st, nil),
		pool:     workers.NewPool(2, nil, nil),
		provider: &scriptedProvider{batchFn: answerAll},
		dir:      t.TempDir(),
	}
	env.requests = requests.NewService(st, env.pool, nil, nil)
	env.pipeline = New(st, env.settings, env.requests, nil,
		func(ctx context.Context) (providers.Translator, error) { return env.provider, nil }, nil)

	mediaPath := filepath.Join(env.dir, "movie.mkv")
	if err := os.WriteFile(mediaPath, []byte("mkv"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	env.media, err = st.UpsertMedia(context.Background(), &store.Media{
		Kind:       store.KindMovie,
		ExternalID: "tt100",
		Title:      "Movie",
		Path:       mediaPath,
		FileName:   "movie.mkv",
	})
	if err != nil {
		t.Fatalf("upsert media: %v", err)
	}
	return env
}

func (env *testEnv) writeSourceSidecar(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(env.dir, "movie.en.srt")
	if err := os.WriteFile(path, []byte(srtBody(lines...)), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}
	return path
}

func (env *testEnv) newRequest(t *testing.T) *store.TranslationRequest {
	t.Helper()
	req, _, err := env.store.CreateRequest(context.Background(), &store.TranslationRequest{
		MediaID:        env.media.ID,
		MediaKind:      store.KindMovie,
		Title:          env.media.Title,
		SourceLanguage: "en",
		TargetLanguage: "ro",
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

func srtBody(lines ...string) string {
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%d\n00:00:%02d,000 --> 00:00:%02d,500\n%s\n\n", i+1, i*2, i*2+1, line)
	}
	return b.String()
}

func readCues(t *testing.T, path string) []subtitle.Cue {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	doc, err := subtitle.Parse(data)
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return doc.Cues()
}

func runKind(t *testing.T, env *testEnv, req *store.TranslationRequest) translator.Kind {
	t.Helper()
	err := env.pipeline.Run(context.Background(), req)
	if err == nil {
		t.Fatalf("expected run to fail")
	}
	return translator.KindOf(err)
}

func TestRunWritesTargetSidecar(t *testing.T) {
	env := newTestEnv(t)
	env.writeSourceSidecar(t, "Hello there", "General Kenobi", "You are bold")
	req := env.newRequest(t)

	if err := env.pipeline.Run(context.Background(), req); err != nil {
		t.Fatalf("run: %v", err)
	}

	target := filepath.Join(env.dir, "movie.ro.srt")
	cues := readCues(t, target)
	if len(cues) != 3 {
		t.Fatalf("expected 3 cues, got %d", len(cues))
	}
	for _, cue := range cues {
		if !strings.HasPrefix(cue.Text, "RO: ") {
			t.Fatalf("cue %d not translated: %q", cue.Position, cue.Text)
		}
	}

	got, err := env.store.GetRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.Progress != 100 {
		t.Fatalf("progress not driven to 100, got %d", got.Progress)
	}
	// Auto-resolved sources are never written back to the request row.
	if got.SubtitlePath != "" {
		t.Fatalf("resolved source path leaked into the request: %q", got.SubtitlePath)
	}
}

func TestRunUsesExplicitSubtitlePath(t *testing.T) {
	env := newTestEnv(t)
	custom := filepath.Join(env.dir, "custom.en.srt")
	if err := os.WriteFile(custom, []byte(srtBody("Only line")), 0o644); err != nil {
		t.Fatalf("write custom source: %v", err)
	}
	req := env.newRequest(t)
	req.SubtitlePath = custom

	if err := env.pipeline.Run(context.Background(), req); err != nil {
		t.Fatalf("run: %v", err)
	}
	cues := readCues(t, filepath.Join(env.dir, "movie.ro.srt"))
	if cues[0].Text != "RO: Only line" {
		t.Fatalf("unexpected translation: %q", cues[0].Text)
	}
}

func TestRunNoSourceAvailable(t *testing.T) {
	env := newTestEnv(t)
	req := env.newRequest(t)
	if kind := runKind(t, env, req); kind != translator.KindNoSource {
		t.Fatalf("expected no-source, got %s", kind)
	}
}

func TestRunIgnoresCaptions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.settings.Set(ctx, settings.KeyIgnoreCaptions, "true"); err != nil {
		t.Fatalf("set: %v", err)
	}
	env.writeSourceSidecar(t, "[door slams]", "Who is there?")
	req := env.newRequest(t)

	if err := env.pipeline.Run(ctx, req); err != nil {
		t.Fatalf("run: %v", err)
	}
	cues := readCues(t, filepath.Join(env.dir, "movie.ro.srt"))
	if cues[0].Text != "[door slams]" {
		t.Fatalf("caption must pass through untouched: %q", cues[0].Text)
	}
	if cues[1].Text != "RO: Who is there?" {
		t.Fatalf("dialogue not translated: %q", cues[1].Text)
	}
}

func TestRunImmediateModeFailsOnMissing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_ = env.settings.Set(ctx, settings.KeyEnableBatchFallback, "false")
	_ = env.settings.Set(ctx, settings.KeyBatchRetryMode, settings.RetryModeImmediate)
	env.writeSourceSidecar(t, "One", "Two", "Three")
	env.provider.batchFn = func(call int, items []providers.Item) (map[int]string, error) {
		out, _ := answerAll(call, items)
		delete(out, items[len(items)-1].Position)
		return out, nil
	}
	req := env.newRequest(t)

	if kind := runKind(t, env, req); kind != translator.KindInvalidResponse {
		t.Fatalf("expected invalid-response, got %s", kind)
	}
	if _, err := os.Stat(filepath.Join(env.dir, "movie.ro.srt")); !os.IsNotExist(err) {
		t.Fatalf("no target may exist after a failed run")
	}
}

func TestRunDeferredRepairRecoversMissing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_ = env.settings.Set(ctx, settings.KeyEnableBatchFallback, "false")
	env.writeSourceSidecar(t, "One", "Two", "Three")
	env.provider.batchFn = func(call int, items []providers.Item) (map[int]string, error) {
		out, _ := answerAll(call, items)
		if call == 1 {
			delete(out, 1)
		}
		return out, nil
	}
	req := env.newRequest(t)

	if err := env.pipeline.Run(ctx, req); err != nil {
		t.Fatalf("run: %v", err)
	}
	cues := readCues(t, filepath.Join(env.dir, "movie.ro.srt"))
	if cues[1].Text != "RO: Two" {
		t.Fatalf("repair did not fill position 1: %q", cues[1].Text)
	}
}

func TestRunDailyLimit(t *testing.T) {
	env := newTestEnv(t)
	env.writeSourceSidecar(t, "One", "Two")
	env.provider.batchFn = func(call int, items []providers.Item) (map[int]string, error) {
		return nil, providers.ErrDailyLimitReached
	}
	req := env.newRequest(t)
	if kind := runKind(t, env, req); kind != translator.KindDailyLimit {
		t.Fatalf("expected daily-limit, got %s", kind)
	}
}

func TestRunIntegrityRejectsDrawingOutput(t *testing.T) {
	env := newTestEnv(t)
	env.writeSourceSidecar(t, "One", "Two", "Three")
	env.provider.batchFn = func(call int, items []providers.Item) (map[int]string, error) {
		out := make(map[int]string, len(items))
		for _, item := range items {
			out[item.Position] = "m 0 0 l 10 10 c"
		}
		return out, nil
	}
	req := env.newRequest(t)

	if kind := runKind(t, env, req); kind != translator.KindIntegrityFailed {
		t.Fatalf("expected integrity failure, got %s", kind)
	}
	if _, err := os.Stat(filepath.Join(env.dir, "movie.ro.srt")); !os.IsNotExist(err) {
		t.Fatalf("no target may survive a failed integrity check")
	}
}

func TestRunCancelledMidBatch(t *testing.T) {
	env := newTestEnv(t)
	env.writeSourceSidecar(t, "One", "Two")
	ctx, cancel := context.WithCancel(context.Background())
	env.provider.batchFn = func(call int, items []providers.Item) (map[int]string, error) {
		cancel()
		return nil, context.Canceled
	}
	req := env.newRequest(t)

	err := env.pipeline.Run(ctx, req)
	if err == nil || translator.KindOf(err) != translator.KindCancelled {
		t.Fatalf("expected cancelled, got %v", err)
	}
}

func TestRunPostProcessing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_ = env.settings.Set(ctx, settings.KeyStripFormatting, "true")
	_ = env.settings.Set(ctx, settings.KeyAddTranslatorInfo, "true")
	env.writeSourceSidecar(t, "One", "Two")
	env.provider.batchFn = func(call int, items []providers.Item) (map[int]string, error) {
		out := make(map[int]string, len(items))
		for _, item := range items {
			out[item.Position] = "<i>RO: " + item.Line + "</i>"
		}
		return out, nil
	}
	req := env.newRequest(t)

	if err := env.pipeline.Run(ctx, req); err != nil {
		t.Fatalf("run: %v", err)
	}
	cues := readCues(t, filepath.Join(env.dir, "movie.ro.srt"))
	if len(cues) != 3 {
		t.Fatalf("translator note cue missing, got %d cues", len(cues))
	}
	if !strings.Contains(cues[0].Text, "Translated from") {
		t.Fatalf("leading note missing: %q", cues[0].Text)
	}
	if strings.Contains(cues[1].Text, "<i>") {
		t.Fatalf("formatting not stripped: %q", cues[1].Text)
	}
}

func TestTargetPathVariants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if got := env.pipeline.targetPath(ctx, env.media, "ro", subtitle.FormatSRT); filepath.Base(got) != "movie.ro.srt" {
		t.Fatalf("plain path: %s", got)
	}
	_ = env.settings.Set(ctx, settings.KeyUseSubtitleTagging, "true")
	if got := env.pipeline.targetPath(ctx, env.media, "ro", subtitle.FormatSRT); filepath.Base(got) != "movie.translated.ro.srt" {
		t.Fatalf("tagged path: %s", got)
	}
	_ = env.settings.Set(ctx, settings.KeyRemoveLanguageTag, "true")
	if got := env.pipeline.targetPath(ctx, env.media, "ro", subtitle.FormatSRT); filepath.Base(got) != "movie.translated.srt" {
		t.Fatalf("untagged language: %s", got)
	}
}

func TestProviderKindMapping(t *testing.T) {
	cases := []struct {
		err  error
		kind translator.Kind
	}{
		{providers.ErrDailyLimitReached, translator.KindDailyLimit},
		{providers.ErrPaymentRequired, translator.KindPaymentRequired},
		{providers.ErrInvalidResponse, translator.KindInvalidResponse},
		{providers.ErrTransient, translator.KindTransient},
		{context.Canceled, translator.KindCancelled},
		{context.DeadlineExceeded, translator.KindTimedOut},
		{errors.New("boom"), translator.KindInternal},
	}
	for _, tc := range cases {
		if got := translator.KindOf(providerKind(tc.err)); got != tc.kind {
			t.Fatalf("%v mapped to %s, want %s", tc.err, got, tc.kind)
		}
	}
}
