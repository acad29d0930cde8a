package requests

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"translarr/internal/store"
	"translarr/internal/workers"
)

func newTestService(t *testing.T) (*Service, *store.Store, *workers.Pool) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "translarr.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	pool := workers.NewPool(2, func(kind string, id int64) bool {
		return st.IsPriority(context.Background(), store.MediaKind(kind), id)
	}, nil)
	svc := NewService(st, pool, nil, nil)
	return svc, st, pool
}

func insertMovie(t *testing.T, st *store.Store, externalID string) *store.Media {
	t.Helper()
	m, err := st.UpsertMedia(context.Background(), &store.Media{
		Kind:       store.KindMovie,
		ExternalID: externalID,
		Title:      "Movie " + externalID,
		Path:       "/library/movies/" + externalID + "/movie.mkv",
		FileName:   "movie.mkv",
	})
	if err != nil {
		t.Fatalf("upsert media: %v", err)
	}
	return m
}

func createInput(m *store.Media) CreateInput {
	return CreateInput{
		MediaKind:      m.Kind,
		MediaID:        m.ID,
		SourceLanguage: "en",
		TargetLanguage: "ro",
	}
}

func drainSignal(pool *workers.Pool) bool {
	select {
	case <-pool.Wake():
		return true
	default:
		return false
	}
}

func TestCreateSignalsPoolAndDedupes(t *testing.T) {
	svc, st, pool := newTestService(t)
	ctx := context.Background()
	m := insertMovie(t, st, "tt1")

	req, created, err := svc.Create(ctx, createInput(m))
	if err != nil || !created {
		t.Fatalf("create: %v created=%v", err, created)
	}
	if !drainSignal(pool) {
		t.Fatalf("create must signal the pool")
	}
	logs, _ := svc.Logs(ctx, req.ID)
	if len(logs) == 0 {
		t.Fatalf("create must append an audit line")
	}

	again, created, err := svc.Create(ctx, createInput(m))
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if created || again.ID != req.ID {
		t.Fatalf("duplicate tuple must no-op: created=%v id=%d", created, again.ID)
	}
	if drainSignal(pool) {
		t.Fatalf("no-op create must not signal")
	}
}

func TestCreateForcePriority(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	m := insertMovie(t, st, "tt2")

	in := createInput(m)
	in.ForcePriority = true
	if _, _, err := svc.Create(ctx, in); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, _ := st.GetMedia(ctx, store.KindMovie, m.ID)
	if !got.IsPriority {
		t.Fatalf("force priority must flag the media row")
	}
}

func TestCancelPending(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	m := insertMovie(t, st, "tt3")
	req, _, _ := svc.Create(ctx, createInput(m))

	got, err := svc.Cancel(ctx, req.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != store.StatusCancelled {
		t.Fatalf("pending request must cancel directly, got %s", got.Status)
	}
}

func TestCancelInProgressDelegatesToWorker(t *testing.T) {
	svc, st, pool := newTestService(t)
	ctx := context.Background()
	m := insertMovie(t, st, "tt4")
	req, _, _ := svc.Create(ctx, createInput(m))

	if _, err := svc.Begin(ctx, req.ID); err != nil {
		t.Fatalf("begin: %v", err)
	}
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	deregister := pool.RegisterJob(req.ID, cancel)
	defer deregister()

	got, err := svc.Cancel(ctx, req.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != store.StatusInProgress {
		t.Fatalf("in-progress cancel must leave the worker in charge, got %s", got.Status)
	}
	select {
	case <-jobCtx.Done():
	case <-time.After(time.Second):
		t.Fatalf("cancel must propagate to the job context")
	}

	// The worker observes the token and drives the terminal transition.
	if err := svc.Finish(ctx, req.ID, store.StatusCancelled, "cancelled by operator"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	final, _ := svc.Get(ctx, req.ID)
	if final.Status != store.StatusCancelled || final.IsActive() {
		t.Fatalf("unexpected terminal row: %+v", final)
	}
}

func TestRemoveRejectsInFlight(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	m := insertMovie(t, st, "tt5")
	req, _, _ := svc.Create(ctx, createInput(m))
	if _, err := svc.Begin(ctx, req.ID); err != nil {
		t.Fatalf("begin: %v", err)
	}

	if err := svc.Remove(ctx, req.ID); !errors.Is(err, ErrRequestInFlight) {
		t.Fatalf("expected in-flight rejection, got %v", err)
	}
	if err := svc.Finish(ctx, req.ID, store.StatusFailed, "provider fatal"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := svc.Remove(ctx, req.ID); err != nil {
		t.Fatalf("remove after terminal: %v", err)
	}
	if got, _ := svc.Get(ctx, req.ID); got != nil {
		t.Fatalf("removed request still present")
	}
}

func TestRetryClonesHistory(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	m := insertMovie(t, st, "tt6")
	req, _, _ := svc.Create(ctx, createInput(m))

	if _, err := svc.Retry(ctx, req.ID); !errors.Is(err, ErrRequestStillHeld) {
		t.Fatalf("active request must not be retryable, got %v", err)
	}

	_ = svc.Finish(ctx, req.ID, store.StatusFailed, "provider fatal")
	fresh, err := svc.Retry(ctx, req.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if fresh.ID == req.ID {
		t.Fatalf("retry must create a fresh row")
	}
	old, _ := svc.Get(ctx, req.ID)
	if old == nil || old.Status != store.StatusFailed {
		t.Fatalf("old row must remain as history: %+v", old)
	}
}

func TestProgressEvents(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	m := insertMovie(t, st, "tt7")
	req, _, _ := svc.Create(ctx, createInput(m))

	events, unsubscribe := svc.Hub().Subscribe(req.ID)
	defer unsubscribe()

	if _, err := svc.Begin(ctx, req.ID); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := svc.Progress(ctx, req.ID, 40); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if err := svc.Finish(ctx, req.ID, store.StatusCompleted, "done"); err != nil {
		t.Fatalf("finish: %v", err)
	}

	var seen []Event
	timeout := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case evt := <-events:
			seen = append(seen, evt)
		case <-timeout:
			t.Fatalf("expected 3 events, got %d: %+v", len(seen), seen)
		}
	}
	if seen[0].Status != store.StatusInProgress {
		t.Fatalf("first event must be the start: %+v", seen[0])
	}
	if seen[1].Progress != 40 {
		t.Fatalf("second event must carry progress 40: %+v", seen[1])
	}
	last := seen[len(seen)-1]
	if last.Status != store.StatusCompleted || last.Progress != 100 {
		t.Fatalf("final event must be completed at 100: %+v", last)
	}
}

func TestStartupSweep(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	m := insertMovie(t, st, "tt8")
	req, _, _ := svc.Create(ctx, createInput(m))
	if _, err := svc.Begin(ctx, req.ID); err != nil {
		t.Fatalf("begin: %v", err)
	}

	swept, err := svc.StartupSweep(ctx)
	if err != nil || swept != 1 {
		t.Fatalf("sweep: %d (%v)", swept, err)
	}
	got, _ := svc.Get(ctx, req.ID)
	if got.Status != store.StatusInterrupted {
		t.Fatalf("expected interrupted, got %s", got.Status)
	}
}

func TestReenqueueQueued(t *testing.T) {
	svc, st, pool := newTestService(t)
	ctx := context.Background()

	pending := insertMovie(t, st, "tt9")
	pendingReq, _, _ := svc.Create(ctx, createInput(pending))
	_ = pendingReq

	abandoned := insertMovie(t, st, "tt10")
	abandonedReq, _, _ := svc.Create(ctx, createInput(abandoned))
	if _, err := svc.Begin(ctx, abandonedReq.ID); err != nil {
		t.Fatalf("begin: %v", err)
	}

	live := insertMovie(t, st, "tt11")
	liveReq, _, _ := svc.Create(ctx, createInput(live))
	if _, err := svc.Begin(ctx, liveReq.ID); err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, cancel := context.WithCancel(ctx)
	defer cancel()
	deregister := pool.RegisterJob(liveReq.ID, cancel)
	defer deregister()

	drainSignal(pool)
	reenqueued, skipped, err := svc.ReenqueueQueued(ctx, true)
	if err != nil {
		t.Fatalf("reenqueue: %v", err)
	}
	if reenqueued != 2 || skipped != 1 {
		t.Fatalf("expected 2 reenqueued 1 skipped, got %d/%d", reenqueued, skipped)
	}
	if !drainSignal(pool) {
		t.Fatalf("reenqueue must signal the pool")
	}
	got, _ := svc.Get(ctx, abandonedReq.ID)
	if got.Status != store.StatusPending {
		t.Fatalf("abandoned run must be pending again, got %s", got.Status)
	}
	got, _ = svc.Get(ctx, liveReq.ID)
	if got.Status != store.StatusInProgress {
		t.Fatalf("live run must be left alone, got %s", got.Status)
	}
}
