// Package daemon is the composition root: it opens the store, wires the
// services, enforces single-instance execution, and hosts the HTTP API.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"translarr/internal/config"
	"translarr/internal/indexer"
	"translarr/internal/logging"
	"translarr/internal/media/probe"
	"translarr/internal/mediastate"
	"translarr/internal/pipeline"
	"translarr/internal/providers"
	"translarr/internal/requests"
	"translarr/internal/scheduler"
	"translarr/internal/settings"
	"translarr/internal/store"
	"translarr/internal/workers"
)

const storeOpenAttempts = 3

// Daemon coordinates the background services and the API server.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	hub      *logging.StreamHub
	store    *store.Store
	settings *settings.Service
	pool     *workers.Pool
	requests *requests.Service
	state    *mediastate.Engine
	gate     *providers.UsageGate
	prober   *probe.Prober
	dispatch *pipeline.Dispatcher
	sched    *scheduler.Scheduler

	lock        *flock.Flock
	running     atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
	api         *apiServer
}

// Status is the daemon runtime snapshot served at /api/status.
type Status struct {
	Running        bool                    `json:"running"`
	DatabasePath   string                  `json:"databasePath"`
	LockPath       string                  `json:"lockPath"`
	WorkerLimit    int                     `json:"workerLimit"`
	ActiveWorkers  int                     `json:"activeWorkers"`
	ActiveRequests int                     `json:"activeRequests"`
	Usage          providers.UsageSnapshot `json:"usage"`
}

// New opens the store (with bounded retries) and wires every service. The
// returned daemon is not yet running; call Start.
func New(cfg *config.Config, logger *slog.Logger, hub *logging.StreamHub) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires a configuration")
	}
	logger = logging.OrNop(logger)

	var st *store.Store
	var err error
	for attempt := 1; attempt <= storeOpenAttempts; attempt++ {
		st, err = store.Open(cfg.Paths.DatabasePath)
		if err == nil {
			break
		}
		logger.Warn("store open failed",
			logging.Int("attempt", attempt),
			logging.Error(err))
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Paths.DatabasePath, err)
	}

	d := &Daemon{
		cfg:    cfg,
		logger: logger.With(logging.String(logging.FieldComponent, "daemon")),
		hub:    hub,
		store:  st,
		lock:   flock.New(cfg.Paths.LockPath),
	}
	ctx := context.Background()
	d.settings = settings.NewService(st, logger)

	d.gate = providers.NewUsageGate(providers.GateConfig{
		PlanRequestsPerDay:     d.settings.Int(ctx, settings.KeyPlanRequestsPerDay),
		OverrideRequestsPerDay: d.settings.Int(ctx, settings.KeyOverrideRequestsPerDay),
		RequestBuffer:          d.settings.Int(ctx, settings.KeyRequestBuffer),
	}, func(evt providers.UsageEvent) {
		_ = st.AppendProviderLog(context.Background(), evt.ModelID, evt.Kind,
			fmt.Sprintf("used=%d allowed=%d", evt.Used, evt.Allowed))
	})

	workerLimit := cfg.Workers.MaxParallelTranslations
	if fromSettings := d.settings.Int(ctx, settings.KeyMaxParallelTranslations); fromSettings > 0 {
		workerLimit = fromSettings
	}
	d.pool = workers.NewPool(workerLimit, func(mediaKind string, mediaID int64) bool {
		return st.IsPriority(context.Background(), store.MediaKind(mediaKind), mediaID)
	}, logger)

	d.requests = requests.NewService(st, d.pool, requests.NewProgressHub(), logger)
	d.state = mediastate.NewEngine(st, d.settings, logger)
	d.prober = probe.New(cfg.Tools.FFprobeBin, cfg.Tools.FFmpegBin)

	pl := pipeline.New(st, d.settings, d.requests, d.prober, d.providerFactory(), logger)
	d.dispatch = pipeline.NewDispatcher(st, d.requests, d.pool, pl, d.state, logger)

	var idx indexer.Indexer
	if cfg.Paths.MoviesDir != "" || cfg.Paths.ShowsDir != "" {
		idx = indexer.NewFilesystem(st, cfg.Paths.MoviesDir, cfg.Paths.ShowsDir, logger)
	}
	d.sched = scheduler.New(st, d.settings, d.state, d.requests, idx, d.prober, logger)

	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock, sweeps interrupted requests, and starts
// the dispatcher, scheduler, and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another translarr instance is already running")
	}

	if d.cfg.UsingDefaultCredentials() {
		d.logger.Warn("API is protected with the DEFAULT credentials; set TRANSLARR_API_USER and TRANSLARR_API_PASS")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if swept, err := d.requests.StartupSweep(runCtx); err != nil {
		d.releaseLock()
		cancel()
		return fmt.Errorf("startup sweep: %w", err)
	} else if swept > 0 {
		d.logger.Info("interrupted requests swept", logging.Int64("count", swept))
	}

	d.unsubscribe = d.settings.Subscribe(func(key string) {
		d.onSettingChanged(key)
	})

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.dispatch.Run(runCtx)
	}()

	if err := d.sched.Start(runCtx); err != nil {
		d.logger.Error("scheduler start", logging.Error(err))
	}
	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			d.Stop()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("translarr daemon started",
		logging.String("db", d.cfg.Paths.DatabasePath),
		logging.String("lock", d.cfg.Paths.LockPath))
	return nil
}

// onSettingChanged applies runtime-adjustable settings without a restart.
func (d *Daemon) onSettingChanged(key string) {
	ctx := context.Background()
	switch key {
	case settings.KeyMaxParallelTranslations:
		limit := d.settings.Int(ctx, settings.KeyMaxParallelTranslations)
		if limit > 0 {
			d.pool.Reconfigure(limit)
		}
	case settings.KeySourceLanguages, settings.KeyTargetLanguages, settings.KeyIgnoreCaptions:
		if _, err := d.state.MarkAllStale(ctx); err != nil {
			d.logger.Error("mark stale after settings change", logging.Error(err))
		}
	}
}

// Stop halts background processing and releases the lock.
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.unsubscribe != nil {
		d.unsubscribe()
		d.unsubscribe = nil
	}
	if d.sched != nil {
		d.sched.Stop()
	}
	d.wg.Wait()
	if d.api != nil {
		d.api.stop()
	}
	d.releaseLock()
	if d.running.Swap(false) {
		d.logger.Info("translarr daemon stopped")
	}
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release lock", logging.Error(err))
	}
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Status reports the runtime snapshot.
func (d *Daemon) Status(ctx context.Context) Status {
	active, _ := d.requests.ActiveCount(ctx)
	return Status{
		Running:        d.running.Load(),
		DatabasePath:   d.cfg.Paths.DatabasePath,
		LockPath:       d.cfg.Paths.LockPath,
		WorkerLimit:    d.pool.Limit(),
		ActiveWorkers:  d.pool.Active(),
		ActiveRequests: active,
		Usage:          d.gate.Snapshot(),
	}
}

// providerFactory builds the configured translation provider per request,
// reading the runtime settings and wrapping the metered chat provider with
// the usage gate.
func (d *Daemon) providerFactory() pipeline.ProviderFactory {
	return func(ctx context.Context) (providers.Translator, error) {
		retry := providers.RetryPolicy{
			MaxRetries: d.settings.Int(ctx, settings.KeyMaxRetries),
			Delay:      d.settings.Seconds(ctx, settings.KeyRetryDelay),
			Multiplier: d.settings.Float(ctx, settings.KeyRetryDelayMultiplier),
		}
		switch d.settings.Get(ctx, settings.KeyServiceType) {
		case "machine":
			return providers.NewMachineProvider(providers.MachineConfig{
				BaseURL: d.cfg.Machine.BaseURL,
				APIKey:  d.cfg.Machine.APIKey,
				Timeout: time.Duration(d.cfg.Machine.TimeoutSeconds) * time.Second,
				Retry:   retry,
			}), nil
		default:
			contextPrompt := ""
			if d.settings.Bool(ctx, settings.KeyAIContextPromptEnabled) {
				contextPrompt = d.settings.Get(ctx, settings.KeyAIContextPrompt)
			}
			inner := providers.NewChatProvider(providers.ChatConfig{
				BaseURL:       d.cfg.Chat.BaseURL,
				APIKey:        d.cfg.Chat.APIKey,
				Model:         d.cfg.Chat.Model,
				Prompt:        d.settings.Get(ctx, settings.KeyAIPrompt),
				ContextPrompt: contextPrompt,
				Params:        parseAIParams(d.settings.Get(ctx, settings.KeyCustomAIParameters)),
				Timeout:       time.Duration(d.cfg.Chat.TimeoutSeconds) * time.Second,
				Retry:         retry,
			})
			return providers.NewGatedTranslator(inner, d.gate, d.cfg.Chat.Model), nil
		}
	}
}

// parseAIParams decodes the custom_ai_parameters JSON object; malformed
// values are ignored rather than blocking translation.
func parseAIParams(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil
	}
	return params
}
