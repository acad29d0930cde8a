package daemon

import (
	"context"
	"path/filepath"
	"testing"

	"translarr/internal/config"
	"translarr/internal/logging"
	"translarr/internal/settings"
	"translarr/internal/store"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, _, _, err := config.Load(filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Paths.DatabasePath = filepath.Join(dir, "translarr.db")
	cfg.Paths.LockPath = filepath.Join(dir, "translarr.lock")
	cfg.Paths.APIBind = "127.0.0.1:0"
	return cfg
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	d, err := New(newTestConfig(t), logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDaemonStartStop(t *testing.T) {
	d := newTestDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("daemon must report running after start")
	}
	if status.WorkerLimit < 1 {
		t.Fatalf("worker limit: %d", status.WorkerLimit)
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("daemon must report stopped after stop")
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	first := newTestDaemon(t)
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("start first: %v", err)
	}
	defer first.Stop()

	second, err := New(first.cfg, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("new second: %v", err)
	}
	defer second.Close()
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("second instance must fail to acquire the lock")
	}
}

func TestDaemonSettingChangeResizesPool(t *testing.T) {
	d := newTestDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	if err := d.settings.Set(ctx, "max_parallel_translations", "5"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if limit := d.pool.Limit(); limit != 5 {
		t.Fatalf("pool limit after setting change: %d", limit)
	}
}

func TestDaemonCaptionToggleMarksMediaStale(t *testing.T) {
	d := newTestDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	media := seedMovie(t, d)
	if err := d.store.SetTranslationState(ctx, store.KindMovie, media.ID, store.StateNotApplicable, 0); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	if err := d.settings.Set(ctx, settings.KeyIgnoreCaptions, "true"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := d.store.GetMedia(ctx, store.KindMovie, media.ID)
	if err != nil {
		t.Fatalf("get media: %v", err)
	}
	if got.TranslationState != store.StateStale {
		t.Fatalf("caption toggle must mark media stale, got %s", got.TranslationState)
	}
}

func TestParseAIParams(t *testing.T) {
	if params := parseAIParams(""); params != nil {
		t.Fatalf("empty input: %v", params)
	}
	if params := parseAIParams("not json"); params != nil {
		t.Fatalf("malformed input: %v", params)
	}
	params := parseAIParams(`{"temperature":0.2,"top_p":1}`)
	if len(params) != 2 {
		t.Fatalf("params: %v", params)
	}
	if params["temperature"] != 0.2 {
		t.Fatalf("temperature: %v", params["temperature"])
	}
}
