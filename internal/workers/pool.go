// Package workers provides the bounded-concurrency slot pool used by the
// translation dispatcher. Waiters are served FIFO within a priority class;
// the priority class always wins across classes.
package workers

import (
	"context"
	"log/slog"
	"sync"

	"translarr/internal/logging"
)

const (
	// MinWorkers and MaxWorkers bound the configurable pool size.
	MinWorkers = 1
	MaxWorkers = 20
)

// PriorityFunc reports whether the media row behind a waiter is flagged
// priority. It is consulted at acquire time and again on priority change
// notifications, so a flip while waiting takes effect.
type PriorityFunc func(mediaKind string, mediaID int64) bool

// Slot is a held unit of concurrency. Release is idempotent and must be
// called on every exit path, typically via defer.
type Slot struct {
	pool *Pool
	once sync.Once
}

// Release returns the slot to the pool.
func (s *Slot) Release() {
	s.once.Do(func() { s.pool.release() })
}

type waiter struct {
	requestID int64
	mediaKind string
	mediaID   int64
	priority  bool
	seq       uint64
	ready     chan struct{}
	granted   bool
}

// Pool is the slot semaphore with priority-aware waiters plus the per-request
// cancellation registry and the dispatcher wake signal.
type Pool struct {
	logger     *slog.Logger
	priorityFn PriorityFunc

	mu      sync.Mutex
	limit   int
	active  int
	nextSeq uint64
	waiters []*waiter
	cancels map[int64]context.CancelFunc

	signal chan struct{}
}

// NewPool builds a pool with the given worker limit, clamped to [1, 20].
func NewPool(maxWorkers int, priorityFn PriorityFunc, logger *slog.Logger) *Pool {
	if priorityFn == nil {
		priorityFn = func(string, int64) bool { return false }
	}
	return &Pool{
		logger:     logging.OrNop(logger).With(logging.String(logging.FieldComponent, "workers")),
		priorityFn: priorityFn,
		limit:      clampWorkers(maxWorkers),
		cancels:    make(map[int64]context.CancelFunc),
		signal:     make(chan struct{}, 1),
	}
}

func clampWorkers(n int) int {
	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

// Limit returns the current worker limit.
func (p *Pool) Limit() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limit
}

// Active returns the number of held slots.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Acquire blocks until a slot is free or ctx is done. The waiter's priority
// is read from the media row when the wait starts.
func (p *Pool) Acquire(ctx context.Context, requestID int64, mediaKind string, mediaID int64) (*Slot, error) {
	priority := p.priorityFn(mediaKind, mediaID)

	p.mu.Lock()
	w := &waiter{
		requestID: requestID,
		mediaKind: mediaKind,
		mediaID:   mediaID,
		priority:  priority,
		seq:       p.nextSeq,
		ready:     make(chan struct{}),
	}
	p.nextSeq++
	p.waiters = append(p.waiters, w)
	p.grantLocked()
	p.mu.Unlock()

	select {
	case <-w.ready:
		return &Slot{pool: p}, nil
	case <-ctx.Done():
		p.mu.Lock()
		if w.granted {
			// The grant raced the cancellation; hand the slot back.
			p.active--
			p.grantLocked()
			p.mu.Unlock()
			return nil, ctx.Err()
		}
		p.removeWaiterLocked(w)
		p.mu.Unlock()
		return nil, ctx.Err()
	}
}

// release is called by Slot.Release.
func (p *Pool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active > 0 {
		p.active--
	}
	p.grantLocked()
}

// grantLocked hands out slots to the best waiters while capacity remains.
// Priority waiters go first; within a class, lowest sequence wins.
func (p *Pool) grantLocked() {
	for p.active < p.limit && len(p.waiters) > 0 {
		best := 0
		for i := 1; i < len(p.waiters); i++ {
			if waiterBefore(p.waiters[i], p.waiters[best]) {
				best = i
			}
		}
		w := p.waiters[best]
		p.waiters = append(p.waiters[:best], p.waiters[best+1:]...)
		w.granted = true
		p.active++
		close(w.ready)
	}
}

func waiterBefore(a, b *waiter) bool {
	if a.priority != b.priority {
		return a.priority
	}
	return a.seq < b.seq
}

func (p *Pool) removeWaiterLocked(w *waiter) {
	for i, candidate := range p.waiters {
		if candidate == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// NotifyPriorityChanged re-reads the priority of every waiter tied to the
// media row and reorders accordingly.
func (p *Pool) NotifyPriorityChanged(mediaKind string, mediaID int64) {
	priority := p.priorityFn(mediaKind, mediaID)

	p.mu.Lock()
	changed := false
	for _, w := range p.waiters {
		if w.mediaKind == mediaKind && w.mediaID == mediaID && w.priority != priority {
			w.priority = priority
			changed = true
		}
	}
	if changed {
		p.grantLocked()
	}
	p.mu.Unlock()
	if changed {
		p.logger.Debug("waiter priority updated",
			logging.String(logging.FieldMediaKind, mediaKind),
			logging.Int64(logging.FieldMediaID, mediaID),
			slog.Bool("priority", priority))
	}
}

// Reconfigure changes the worker limit for future acquires. In-flight slots
// are unaffected; a raised limit grants waiting acquires immediately.
func (p *Pool) Reconfigure(maxWorkers int) {
	limit := clampWorkers(maxWorkers)
	p.mu.Lock()
	old := p.limit
	p.limit = limit
	if limit > old {
		p.grantLocked()
	}
	p.mu.Unlock()
	if old != limit {
		p.logger.Info("worker limit changed", slog.Int("from", old), slog.Int("to", limit))
	}
}

// Signal wakes the dispatcher so it re-polls the queue without waiting for
// the next tick. Coalesces when a wake is already pending.
func (p *Pool) Signal() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Wake exposes the dispatcher wake channel.
func (p *Pool) Wake() <-chan struct{} { return p.signal }

// RegisterJob stores the cancellation hook of a running request. It returns a
// deregistration func the worker defers.
func (p *Pool) RegisterJob(requestID int64, cancel context.CancelFunc) func() {
	p.mu.Lock()
	p.cancels[requestID] = cancel
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.cancels, requestID)
		p.mu.Unlock()
	}
}

// HasJob reports whether the request currently has a registered running job.
func (p *Pool) HasJob(requestID int64) bool {
	p.mu.Lock()
	_, ok := p.cancels[requestID]
	p.mu.Unlock()
	return ok
}

// CancelJob cancels the running request's context, if any. Returns whether a
// job was found.
func (p *Pool) CancelJob(requestID int64) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[requestID]
	p.mu.Unlock()
	if ok {
		cancel()
		p.logger.Info("job cancellation requested", logging.Int64(logging.FieldRequestID, requestID))
	}
	return ok
}
