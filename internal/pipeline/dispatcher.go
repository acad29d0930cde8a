package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"translarr/internal/logging"
	"translarr/internal/mediastate"
	"translarr/internal/requests"
	"translarr/internal/store"
	"translarr/internal/translator"
	"translarr/internal/workers"
)

const (
	defaultPollInterval = 5 * time.Second
	dispatchBatchLimit  = 100
	finishWriteTimeout  = 10 * time.Second
)

// Dispatcher polls the queue and hands pending requests to pool-gated
// workers. Ordering within the pool follows media priority, so a waiter for
// priority media overtakes earlier plain waiters.
type Dispatcher struct {
	store    *store.Store
	requests *requests.Service
	pool     *workers.Pool
	pipeline *Pipeline
	state    *mediastate.Engine
	logger   *slog.Logger

	pollInterval time.Duration

	mu       sync.Mutex
	inFlight map[int64]struct{}
	wg       sync.WaitGroup
}

// NewDispatcher wires the dispatch loop.
func NewDispatcher(st *store.Store, reqs *requests.Service, pool *workers.Pool, pl *Pipeline, state *mediastate.Engine, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:        st,
		requests:     reqs,
		pool:         pool,
		pipeline:     pl,
		state:        state,
		logger:       logging.OrNop(logger).With(logging.String(logging.FieldComponent, "dispatcher")),
		pollInterval: defaultPollInterval,
		inFlight:     make(map[int64]struct{}),
	}
}

// Run drives the dispatch loop until ctx is done, then waits for running
// workers to wind down.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		d.dispatchPending(ctx)
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return ctx.Err()
		case <-d.pool.Wake():
		case <-ticker.C:
		}
	}
}

// dispatchPending claims every pending request not already owned by a worker
// and parks each in the pool's waiter queue.
func (d *Dispatcher) dispatchPending(ctx context.Context) {
	pending, err := d.store.PendingRequests(ctx, dispatchBatchLimit)
	if err != nil {
		d.logger.Error("poll queue", logging.Error(err))
		return
	}
	for _, req := range pending {
		d.mu.Lock()
		if _, busy := d.inFlight[req.ID]; busy {
			d.mu.Unlock()
			continue
		}
		d.inFlight[req.ID] = struct{}{}
		d.mu.Unlock()

		d.wg.Add(1)
		go d.work(ctx, req)
	}
}

func (d *Dispatcher) work(ctx context.Context, req *store.TranslationRequest) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.inFlight, req.ID)
		d.mu.Unlock()
	}()

	slot, err := d.pool.Acquire(ctx, req.ID, string(req.MediaKind), req.MediaID)
	if err != nil {
		return
	}
	defer slot.Release()

	// The request may have been cancelled or removed while waiting.
	current, err := d.requests.Get(ctx, req.ID)
	if err != nil || current == nil || current.Status != store.StatusPending {
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	unregister := d.pool.RegisterJob(req.ID, cancel)
	defer unregister()

	if _, err := d.requests.Begin(ctx, req.ID); err != nil {
		d.logger.Error("begin request", logging.Int64(logging.FieldRequestID, req.ID), logging.Error(err))
		return
	}
	runErr := d.pipeline.Run(jobCtx, current)
	d.finish(ctx, current, runErr)
}

// finish maps the pipeline outcome to the terminal request status and lets
// the state engine re-derive the media state. During daemon shutdown the row
// is left in progress for the startup sweep.
func (d *Dispatcher) finish(parent context.Context, req *store.TranslationRequest, runErr error) {
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), finishWriteTimeout)
	defer cancel()

	if runErr == nil {
		if err := d.requests.Finish(ctx, req.ID, store.StatusCompleted, "translation completed"); err != nil {
			d.logger.Error("finish request", logging.Int64(logging.FieldRequestID, req.ID), logging.Error(err))
		}
		d.refreshState(ctx, req, store.StatusCompleted)
		return
	}

	kind := translator.KindOf(runErr)
	switch kind {
	case translator.KindCancelled:
		_ = d.requests.Finish(ctx, req.ID, store.StatusCancelled, "translation cancelled")
		d.refreshState(ctx, req, store.StatusCancelled)
	case translator.KindDailyLimit, translator.KindPaymentRequired:
		if err := d.requests.Pause(ctx, req.ID, runErr.Error()); err != nil {
			d.logger.Error("pause request", logging.Int64(logging.FieldRequestID, req.ID), logging.Error(err))
		}
	default:
		_ = d.requests.Finish(ctx, req.ID, store.StatusFailed, runErr.Error())
		d.refreshState(ctx, req, store.StatusFailed)
	}
}

func (d *Dispatcher) refreshState(ctx context.Context, req *store.TranslationRequest, status store.RequestStatus) {
	if d.state == nil {
		return
	}
	if err := d.state.OnRequestFinished(ctx, req.MediaKind, req.MediaID, status); err != nil {
		d.logger.Error("refresh media state",
			logging.String(logging.FieldMediaKind, string(req.MediaKind)),
			logging.Int64(logging.FieldMediaID, req.MediaID),
			logging.Error(err))
	}
}
