// Package requests implements the translation request lifecycle: creation
// with the single-active-tuple guarantee, operator actions (cancel, remove,
// retry, reenqueue, dedupe), worker-driven transitions, and the progress
// event hub. All status and progress writes to the queue go through here.
package requests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"translarr/internal/logging"
	"translarr/internal/store"
	"translarr/internal/workers"
)

// Operator action errors.
var (
	ErrNotFound         = errors.New("request not found")
	ErrRequestInFlight  = errors.New("request is in progress")
	ErrRequestStillHeld = errors.New("request still occupies its active slot")
)

// Service owns the request queue lifecycle.
type Service struct {
	store  *store.Store
	pool   *workers.Pool
	hub    *ProgressHub
	logger *slog.Logger
}

// NewService wires the request service.
func NewService(st *store.Store, pool *workers.Pool, hub *ProgressHub, logger *slog.Logger) *Service {
	if hub == nil {
		hub = NewProgressHub()
	}
	return &Service{
		store:  st,
		pool:   pool,
		hub:    hub,
		logger: logging.OrNop(logger).With(logging.String(logging.FieldComponent, "requests")),
	}
}

// Hub exposes the progress event hub for API subscribers.
func (s *Service) Hub() *ProgressHub { return s.hub }

// CreateInput describes a translation to enqueue.
type CreateInput struct {
	MediaKind      store.MediaKind
	MediaID        int64
	SourceLanguage string
	TargetLanguage string
	SubtitlePath   string
	ForcePriority  bool
}

// Create enqueues a pending request. A second call for an already active
// tuple is a no-op returning the existing row.
func (s *Service) Create(ctx context.Context, in CreateInput) (*store.TranslationRequest, bool, error) {
	media, err := s.store.GetMedia(ctx, in.MediaKind, in.MediaID)
	if err != nil {
		return nil, false, err
	}
	if media == nil {
		return nil, false, fmt.Errorf("media %s/%d: %w", in.MediaKind, in.MediaID, ErrNotFound)
	}

	req, created, err := s.store.CreateRequest(ctx, &store.TranslationRequest{
		MediaID:        media.ID,
		MediaKind:      media.Kind,
		Title:          media.Title,
		SourceLanguage: in.SourceLanguage,
		TargetLanguage: in.TargetLanguage,
		SubtitlePath:   in.SubtitlePath,
	})
	if err != nil {
		return nil, false, err
	}
	if !created {
		return req, false, nil
	}

	if in.ForcePriority && !media.IsPriority {
		if err := s.store.SetPriority(ctx, media.Kind, media.ID, true); err != nil {
			return nil, false, err
		}
		s.pool.NotifyPriorityChanged(string(media.Kind), media.ID)
	}

	_ = s.store.AppendRequestLog(ctx, req.ID, "info", "translation request created",
		fmt.Sprintf("%s -> %s", in.SourceLanguage, in.TargetLanguage))
	s.logger.Info("request created",
		logging.Int64(logging.FieldRequestID, req.ID),
		logging.String(logging.FieldMediaKind, string(media.Kind)),
		logging.Int64(logging.FieldMediaID, media.ID),
		logging.String(logging.FieldSourceLang, in.SourceLanguage),
		logging.String(logging.FieldTargetLang, in.TargetLanguage))
	s.publish(req.ID, store.StatusPending, 0, "queued")
	s.pool.Signal()
	return req, true, nil
}

// Cancel stops a request. Pending rows transition directly; in-progress rows
// have their job cancelled and the worker drives the final transition. The
// canonical row is returned.
func (s *Service) Cancel(ctx context.Context, id int64) (*store.TranslationRequest, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrNotFound
	}
	switch req.Status {
	case store.StatusPending:
		if err := s.store.SetRequestStatus(ctx, id, store.StatusCancelled); err != nil {
			return nil, err
		}
		_ = s.store.AppendRequestLog(ctx, id, "info", "cancelled before start", "")
		s.publish(id, store.StatusCancelled, req.Progress, "cancelled")
	case store.StatusInProgress:
		s.pool.CancelJob(id)
		_ = s.store.AppendRequestLog(ctx, id, "info", "cancellation requested", "")
	}
	return s.store.GetRequest(ctx, id)
}

// Remove deletes a request that is not running.
func (s *Service) Remove(ctx context.Context, id int64) error {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if req == nil {
		return ErrNotFound
	}
	if req.Status == store.StatusInProgress {
		return ErrRequestInFlight
	}
	return s.store.DeleteRequest(ctx, id)
}

// Retry clones a finished request into a fresh pending row; the old row
// stays as history.
func (s *Service) Retry(ctx context.Context, id int64) (*store.TranslationRequest, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrNotFound
	}
	if req.IsActive() {
		return nil, ErrRequestStillHeld
	}
	fresh, created, err := s.store.CreateRequest(ctx, &store.TranslationRequest{
		MediaID:        req.MediaID,
		MediaKind:      req.MediaKind,
		Title:          req.Title,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		SubtitlePath:   req.SubtitlePath,
	})
	if err != nil {
		return nil, err
	}
	if created {
		_ = s.store.AppendRequestLog(ctx, fresh.ID, "info", "retried",
			fmt.Sprintf("cloned from request %d", id))
		s.publish(fresh.ID, store.StatusPending, 0, "queued")
		s.pool.Signal()
	}
	return fresh, nil
}

// ReenqueueQueued re-signals the pool for still-queued rows. With
// includeInProgress, in-progress rows whose worker no longer exists are put
// back to pending; rows with a live job are skipped.
func (s *Service) ReenqueueQueued(ctx context.Context, includeInProgress bool) (reenqueued, skipped int, err error) {
	page := 1
	for {
		rows, total, err := s.store.ListRequests(ctx, store.RequestListOptions{
			OrderBy: "id", Ascending: true, Page: page, PageSize: 200,
		})
		if err != nil {
			return reenqueued, skipped, err
		}
		for _, req := range rows {
			switch req.Status {
			case store.StatusPending:
				reenqueued++
			case store.StatusInProgress:
				if !includeInProgress {
					continue
				}
				if s.pool.HasJob(req.ID) {
					skipped++
					continue
				}
				if err := s.store.SetRequestStatus(ctx, req.ID, store.StatusPending); err != nil {
					skipped++
					continue
				}
				_ = s.store.AppendRequestLog(ctx, req.ID, "warning", "reenqueued from abandoned run", "")
				s.publish(req.ID, store.StatusPending, 0, "reenqueued")
				reenqueued++
			}
		}
		if page*200 >= total {
			break
		}
		page++
	}
	if reenqueued > 0 {
		s.pool.Signal()
	}
	return reenqueued, skipped, nil
}

// Dedupe collapses duplicate rows per tuple onto the lowest id, carrying the
// audit logs over. Active duplicates cannot exist; the partial unique index
// enforces the invariant at the schema level.
func (s *Service) Dedupe(ctx context.Context) (int64, error) {
	removed, err := s.store.DedupeRequests(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("deduplicated requests", logging.Int64("removed", removed))
	}
	return removed, nil
}

// Logs returns a request's audit lines.
func (s *Service) Logs(ctx context.Context, id int64) ([]*store.RequestLog, error) {
	return s.store.ListRequestLogs(ctx, id)
}

// ActiveCount counts requests holding queue slots.
func (s *Service) ActiveCount(ctx context.Context) (int, error) {
	return s.store.ActiveRequestCount(ctx)
}

// List returns one page of requests plus the total count.
func (s *Service) List(ctx context.Context, opts store.RequestListOptions) ([]*store.TranslationRequest, int, error) {
	return s.store.ListRequests(ctx, opts)
}

// Get fetches one request.
func (s *Service) Get(ctx context.Context, id int64) (*store.TranslationRequest, error) {
	return s.store.GetRequest(ctx, id)
}

// RefreshPriorityForMedia forwards a priority toggle to waiting acquires.
func (s *Service) RefreshPriorityForMedia(kind store.MediaKind, mediaID int64) {
	s.pool.NotifyPriorityChanged(string(kind), mediaID)
}

// StartupSweep transitions rows abandoned by a previous process to
// interrupted. Must run before the dispatcher starts.
func (s *Service) StartupSweep(ctx context.Context) (int64, error) {
	swept, err := s.store.SweepInterrupted(ctx)
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		s.logger.Warn("interrupted requests from previous run", logging.Int64("count", swept))
	}
	return swept, nil
}

// Begin marks a request as running under a fresh job id. Worker-facing.
func (s *Service) Begin(ctx context.Context, id int64) (jobID string, err error) {
	jobID = uuid.NewString()
	if err := s.store.SetRequestStatus(ctx, id, store.StatusInProgress); err != nil {
		return "", err
	}
	if err := s.store.SetRequestJobID(ctx, id, jobID); err != nil {
		return "", err
	}
	_ = s.store.AppendRequestLog(ctx, id, "info", "translation started", "job "+jobID)
	s.publish(id, store.StatusInProgress, 0, "started")
	return jobID, nil
}

// Progress raises the request progress. Worker-facing; never regresses.
func (s *Service) Progress(ctx context.Context, id int64, percent int) error {
	if err := s.store.SetRequestProgress(ctx, id, percent); err != nil {
		return err
	}
	req, err := s.store.GetRequest(ctx, id)
	if err != nil || req == nil {
		return err
	}
	s.publish(id, req.Status, req.Progress, "")
	return nil
}

// Finish drives a request to its terminal status with an audit line.
// Worker-facing.
func (s *Service) Finish(ctx context.Context, id int64, status store.RequestStatus, message string) error {
	if store.IsActiveStatus(status) {
		return fmt.Errorf("finish requires a terminal status, got %s", status)
	}
	level := "info"
	if status == store.StatusFailed {
		level = "error"
	}
	_ = s.store.AppendRequestLog(ctx, id, level, message, "")
	if status == store.StatusCompleted {
		_ = s.store.SetRequestProgress(ctx, id, 100)
	}
	if err := s.store.SetRequestStatus(ctx, id, status); err != nil {
		return err
	}
	progress := 0
	if req, err := s.store.GetRequest(ctx, id); err == nil && req != nil {
		progress = req.Progress
	}
	s.publish(id, status, progress, message)
	return nil
}

// Pause returns an in-progress request to the pending queue after a
// provider-side stop (payment required, daily allowance spent). The request
// keeps its history and is retried on a later dispatch pass.
func (s *Service) Pause(ctx context.Context, id int64, message string) error {
	_ = s.store.AppendRequestLog(ctx, id, "warning", "translation paused", message)
	if err := s.store.SetRequestStatus(ctx, id, store.StatusPending); err != nil {
		return err
	}
	s.publish(id, store.StatusPending, 0, message)
	return nil
}

// AppendLog adds an audit line without changing state.
func (s *Service) AppendLog(ctx context.Context, id int64, level, message, details string) {
	_ = s.store.AppendRequestLog(ctx, id, level, message, details)
}

func (s *Service) publish(id int64, status store.RequestStatus, progress int, message string) {
	s.hub.Publish(Event{RequestID: id, Status: status, Progress: progress, Message: message})
}
