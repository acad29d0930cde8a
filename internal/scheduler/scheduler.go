// Package scheduler runs the recurring automation jobs: library indexing,
// the automated translation sweep, and the maintenance pass (integrity
// sweep, orphan sidecar cleanup, background extraction).
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"translarr/internal/indexer"
	"translarr/internal/logging"
	"translarr/internal/media/probe"
	"translarr/internal/mediastate"
	"translarr/internal/requests"
	"translarr/internal/settings"
	"translarr/internal/store"
)

// Scheduler owns the cron runner. Schedule changes through settings take
// effect without a restart.
type Scheduler struct {
	cron     *cron.Cron
	store    *store.Store
	settings *settings.Service
	state    *mediastate.Engine
	requests *requests.Service
	indexer  indexer.Indexer
	prober   *probe.Prober
	logger   *slog.Logger

	ctx         context.Context
	unsubscribe func()

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New wires the scheduler. The indexer and prober may be nil; the jobs that
// need them turn into no-ops.
func New(st *store.Store, svc *settings.Service, state *mediastate.Engine, reqs *requests.Service, idx indexer.Indexer, prober *probe.Prober, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		store:    st,
		settings: svc,
		state:    state,
		requests: reqs,
		indexer:  idx,
		prober:   prober,
		logger:   logging.OrNop(logger).With(logging.String(logging.FieldComponent, "scheduler")),
		entries:  make(map[string]cron.EntryID),
	}
}

// Start registers the jobs from the current settings and begins ticking.
// ctx bounds every job run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	if err := s.reschedule(ctx); err != nil {
		return err
	}
	s.unsubscribe = s.settings.Subscribe(func(key string) {
		switch key {
		case settings.KeyTranslationSchedule, settings.KeyMovieSchedule, settings.KeyShowSchedule:
			if err := s.reschedule(ctx); err != nil {
				s.logger.Error("reschedule", logging.Error(err))
			}
		}
	})
	s.cron.Start()
	return nil
}

// Stop halts the cron runner and waits for running jobs.
func (s *Scheduler) Stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	<-s.cron.Stop().Done()
}

func (s *Scheduler) reschedule(ctx context.Context) error {
	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context)
	}{
		{"translation_sweep", s.settings.Get(ctx, settings.KeyTranslationSchedule), s.runTranslationSweep},
		{"movie_index", s.settings.Get(ctx, settings.KeyMovieSchedule), s.runMovieIndex},
		{"show_index", s.settings.Get(ctx, settings.KeyShowSchedule), s.runShowIndex},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		if id, ok := s.entries[job.name]; ok {
			s.cron.Remove(id)
			delete(s.entries, job.name)
		}
		if job.schedule == "" {
			continue
		}
		run := job.run
		id, err := s.cron.AddFunc(job.schedule, func() { run(s.ctx) })
		if err != nil {
			s.logger.Error("invalid schedule",
				logging.String("job", job.name),
				logging.String("schedule", job.schedule),
				logging.Error(err))
			continue
		}
		s.entries[job.name] = id
		s.logger.Info("job scheduled",
			logging.String("job", job.name),
			logging.String("schedule", job.schedule))
	}
	return nil
}

func (s *Scheduler) runMovieIndex(ctx context.Context) {
	if s.indexer == nil {
		return
	}
	n, err := s.indexer.IndexMovies(ctx)
	if err != nil {
		s.logger.Error("movie index", logging.Error(err))
		return
	}
	s.logger.Info("movie index complete", logging.Int("indexed", n))
}

func (s *Scheduler) runShowIndex(ctx context.Context) {
	if s.indexer == nil {
		return
	}
	n, err := s.indexer.IndexShows(ctx)
	if err != nil {
		s.logger.Error("show index", logging.Error(err))
		return
	}
	s.logger.Info("show index complete", logging.Int("indexed", n))
}

func (s *Scheduler) runTranslationSweep(ctx context.Context) {
	created, err := s.TranslationSweep(ctx)
	if err != nil {
		s.logger.Error("translation sweep", logging.Error(err))
	}
	if created > 0 {
		s.logger.Info("translation sweep complete", logging.Int("requests", created))
	}
	s.Maintain(ctx)
}

// TranslationSweep enqueues requests for eligible media, capped per run.
// With translation_cycle enabled a full batch immediately triggers another
// pass until the eligible set drains.
func (s *Scheduler) TranslationSweep(ctx context.Context) (int, error) {
	if !s.settings.Bool(ctx, settings.KeyAutomationEnabled) {
		return 0, nil
	}
	sources := s.settings.Languages(ctx, settings.KeySourceLanguages)
	targets := s.settings.Languages(ctx, settings.KeyTargetLanguages)
	if len(sources) == 0 || len(targets) == 0 {
		return 0, nil
	}
	limit := s.settings.Int(ctx, settings.KeyMaxTranslationsRun)
	if limit <= 0 {
		limit = 10
	}
	cycle := s.settings.Bool(ctx, settings.KeyTranslationCycle)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		eligible, err := s.state.MediaNeedingTranslation(ctx, limit, true)
		if err != nil {
			return total, err
		}
		created := 0
		for _, media := range eligible {
			source := s.state.PickSourceLanguage(ctx, media, sources)
			if source == "" {
				// No matching subtitle yet; let the pipeline report the miss.
				source = sources[0]
			}
			for _, target := range targets {
				if created >= limit {
					break
				}
				_, isNew, err := s.requests.Create(ctx, requests.CreateInput{
					MediaKind:      media.Kind,
					MediaID:        media.ID,
					SourceLanguage: source,
					TargetLanguage: target,
				})
				if err != nil {
					s.logger.Error("enqueue translation",
						logging.String(logging.FieldMediaKind, string(media.Kind)),
						logging.Int64(logging.FieldMediaID, media.ID),
						logging.Error(err))
					continue
				}
				if isNew {
					created++
				}
			}
		}
		total += created
		if !cycle || created < limit {
			return total, nil
		}
	}
}
