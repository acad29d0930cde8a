package settings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeBackend struct {
	mu     sync.Mutex
	values map[string]string
	loads  int
	fail   bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{values: make(map[string]string)}
}

func (b *fakeBackend) AllSettings(ctx context.Context) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return nil, errors.New("backend down")
	}
	b.loads++
	out := make(map[string]string, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out, nil
}

func (b *fakeBackend) SetSetting(ctx context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
	return nil
}

func TestGetUsesDefaults(t *testing.T) {
	svc := NewService(newFakeBackend(), nil)
	ctx := context.Background()
	if got := svc.Get(ctx, KeyMaxBatchSize); got != "50" {
		t.Fatalf("unset key must fall back to default, got %q", got)
	}
	if got := svc.Int(ctx, KeyMaxBatchSize); got != 50 {
		t.Fatalf("Int default, got %d", got)
	}
	if svc.Bool(ctx, KeyEnableBatchFallback) != true {
		t.Fatalf("Bool default")
	}
	if got := svc.Seconds(ctx, KeyRetryDelay); got != 2*time.Second {
		t.Fatalf("Seconds default, got %v", got)
	}
}

func TestReadThroughCache(t *testing.T) {
	backend := newFakeBackend()
	backend.values[KeyMaxBatchSize] = "25"
	svc := NewService(backend, nil)

	now := time.Now()
	svc.SetClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if got := svc.Int(ctx, KeyMaxBatchSize); got != 25 {
			t.Fatalf("got %d", got)
		}
	}
	if backend.loads != 1 {
		t.Fatalf("expected one backend load, got %d", backend.loads)
	}

	// Within the sliding window: still cached.
	now = now.Add(20 * time.Minute)
	svc.Int(ctx, KeyMaxBatchSize)
	if backend.loads != 1 {
		t.Fatalf("sliding window should keep the cache, loads %d", backend.loads)
	}

	// Past the sliding window: reload.
	now = now.Add(31 * time.Minute)
	svc.Int(ctx, KeyMaxBatchSize)
	if backend.loads != 2 {
		t.Fatalf("expired sliding window should reload, loads %d", backend.loads)
	}

	// The absolute ceiling reloads even with constant access.
	for i := 0; i < 7; i++ {
		now = now.Add(10 * time.Minute)
		svc.Int(ctx, KeyMaxBatchSize)
	}
	if backend.loads < 3 {
		t.Fatalf("absolute ttl should force reload, loads %d", backend.loads)
	}
}

func TestSetInvalidatesAndNotifies(t *testing.T) {
	backend := newFakeBackend()
	svc := NewService(backend, nil)
	ctx := context.Background()

	svc.Get(ctx, KeyMaxBatchSize)
	var notified []string
	unsubscribe := svc.Subscribe(func(key string) { notified = append(notified, key) })

	if err := svc.Set(ctx, KeyMaxBatchSize, "10"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := svc.Int(ctx, KeyMaxBatchSize); got != 10 {
		t.Fatalf("stale cache after set, got %d", got)
	}
	if len(notified) != 1 || notified[0] != KeyMaxBatchSize {
		t.Fatalf("subscriber not notified: %v", notified)
	}

	unsubscribe()
	if err := svc.Set(ctx, KeyMaxBatchSize, "15"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(notified) != 1 {
		t.Fatalf("unsubscribed callback must not fire")
	}
}

func TestLanguageVersionBump(t *testing.T) {
	backend := newFakeBackend()
	svc := NewService(backend, nil)
	ctx := context.Background()

	if v := svc.LanguageSettingsVersion(ctx); v != 0 {
		t.Fatalf("initial version %d", v)
	}
	if err := svc.Set(ctx, KeySourceLanguages, "en, de"); err != nil {
		t.Fatalf("set source languages: %v", err)
	}
	if v := svc.LanguageSettingsVersion(ctx); v != 1 {
		t.Fatalf("expected version 1, got %d", v)
	}
	if err := svc.Set(ctx, KeyTargetLanguages, "ro"); err != nil {
		t.Fatalf("set target languages: %v", err)
	}
	if v := svc.LanguageSettingsVersion(ctx); v != 2 {
		t.Fatalf("expected version 2, got %d", v)
	}

	// Caption handling feeds the state derivation, so it bumps too.
	if err := svc.Set(ctx, KeyIgnoreCaptions, "true"); err != nil {
		t.Fatalf("set ignore captions: %v", err)
	}
	if v := svc.LanguageSettingsVersion(ctx); v != 3 {
		t.Fatalf("expected version 3, got %d", v)
	}

	// Unrelated keys leave the version alone.
	if err := svc.Set(ctx, KeyMaxBatchSize, "30"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v := svc.LanguageSettingsVersion(ctx); v != 3 {
		t.Fatalf("unrelated set must not bump version, got %d", v)
	}
}

func TestSetRejectsInvalidLanguageList(t *testing.T) {
	svc := NewService(newFakeBackend(), nil)
	if err := svc.Set(context.Background(), KeySourceLanguages, "en, not-a-language-code!!"); err == nil {
		t.Fatalf("expected invalid language list to be rejected")
	}
	if v := svc.LanguageSettingsVersion(context.Background()); v != 0 {
		t.Fatalf("rejected set must not bump version, got %d", v)
	}
}

func TestLanguagesAccessor(t *testing.T) {
	backend := newFakeBackend()
	backend.values[KeySourceLanguages] = "en, eng, DE"
	svc := NewService(backend, nil)
	got := svc.Languages(context.Background(), KeySourceLanguages)
	if len(got) != 2 || got[0] != "en" || got[1] != "de" {
		t.Fatalf("expected normalized deduplicated list, got %v", got)
	}
}

func TestGetFallsBackWhenBackendFails(t *testing.T) {
	backend := newFakeBackend()
	backend.fail = true
	svc := NewService(backend, nil)
	if got := svc.Get(context.Background(), KeyMaxBatchSize); got != "50" {
		t.Fatalf("backend failure must fall back to default, got %q", got)
	}
}
