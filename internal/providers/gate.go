package providers

import (
	"fmt"
	"sync"
	"time"
)

// GateConfig sizes the per-day request allowance of the metered provider.
type GateConfig struct {
	// PlanRequestsPerDay is the provider plan's daily allowance.
	PlanRequestsPerDay int
	// OverrideRequestsPerDay, when > 0, replaces the plan allowance.
	OverrideRequestsPerDay int
	// RequestBuffer is held back from the allowance as safety margin.
	RequestBuffer int
}

// UsageEvent is handed to the audit recorder on limit and pause events.
type UsageEvent struct {
	Kind      string // "limit_reached", "payment_required", "counter_reset"
	ModelID   string
	Used      int
	Allowed   int
	ResetAt   time.Time
	Timestamp time.Time
}

// UsageSnapshot is the dashboard view of the gate.
type UsageSnapshot struct {
	RequestsUsed int       `json:"requestsUsed"`
	Allowed      int       `json:"allowed"`
	Paused       bool      `json:"paused"`
	ResetAt      time.Time `json:"resetAt"`
}

// UsageGate tracks per-day request counts for the metered provider and
// enforces the payment-required pause. Safe for concurrent use.
type UsageGate struct {
	mu       sync.Mutex
	cfg      GateConfig
	used     int
	day      time.Time // UTC midnight of the counted day
	paused   bool
	resetAt  time.Time
	now      func() time.Time
	recorder func(UsageEvent)
}

// NewUsageGate constructs a gate. The recorder may be nil.
func NewUsageGate(cfg GateConfig, recorder func(UsageEvent)) *UsageGate {
	return &UsageGate{
		cfg:      cfg,
		now:      time.Now,
		recorder: recorder,
	}
}

// SetClock overrides the time source (tests).
func (g *UsageGate) SetClock(now func() time.Time) {
	g.mu.Lock()
	g.now = now
	g.mu.Unlock()
}

func (g *UsageGate) allowed() int {
	allowance := g.cfg.PlanRequestsPerDay
	if g.cfg.OverrideRequestsPerDay > 0 {
		allowance = g.cfg.OverrideRequestsPerDay
	}
	allowance -= g.cfg.RequestBuffer
	if allowance < 0 {
		allowance = 0
	}
	return allowance
}

// rollLocked resets the counter when the UTC day has advanced past the
// counted day, or past an explicit provider reset time.
func (g *UsageGate) rollLocked() {
	now := g.now().UTC()
	today := now.Truncate(24 * time.Hour)
	resetDue := !g.resetAt.IsZero() && now.After(g.resetAt)
	if g.day.IsZero() {
		g.day = today
		return
	}
	if today.After(g.day) || resetDue {
		if g.used > 0 || g.paused {
			g.emit(UsageEvent{Kind: "counter_reset", Used: g.used, Allowed: g.allowed(), Timestamp: now})
		}
		g.day = today
		g.used = 0
		g.paused = false
		g.resetAt = time.Time{}
	}
}

// EnsureRequestAllowed fails when the daily allowance is exhausted or the
// provider is paused awaiting payment.
func (g *UsageGate) EnsureRequestAllowed(modelID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLocked()

	if g.paused {
		return fmt.Errorf("%w: paused until %s", ErrPaymentRequired, g.resetAtLocked())
	}
	allowance := g.allowed()
	if allowance > 0 && g.used >= allowance {
		g.emit(UsageEvent{
			Kind:      "limit_reached",
			ModelID:   modelID,
			Used:      g.used,
			Allowed:   allowance,
			ResetAt:   g.nextMidnightLocked(),
			Timestamp: g.now().UTC(),
		})
		return fmt.Errorf("%w: %d/%d used", ErrDailyLimitReached, g.used, allowance)
	}
	return nil
}

// RecordRequest increments the counter atomically.
func (g *UsageGate) RecordRequest(modelID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLocked()
	g.used++
}

// NotifyPaymentRequired raises the global pause. A zero resetAt pauses until
// the next UTC midnight.
func (g *UsageGate) NotifyPaymentRequired(modelID string, resetAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLocked()
	g.paused = true
	if resetAt.IsZero() {
		resetAt = g.nextMidnightLocked()
	}
	g.resetAt = resetAt.UTC()
	g.emit(UsageEvent{
		Kind:      "payment_required",
		ModelID:   modelID,
		Used:      g.used,
		Allowed:   g.allowed(),
		ResetAt:   g.resetAt,
		Timestamp: g.now().UTC(),
	})
}

// Snapshot reports current usage for the dashboard.
func (g *UsageGate) Snapshot() UsageSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLocked()
	return UsageSnapshot{
		RequestsUsed: g.used,
		Allowed:      g.allowed(),
		Paused:       g.paused,
		ResetAt:      g.resetAtLocked(),
	}
}

func (g *UsageGate) resetAtLocked() time.Time {
	if !g.resetAt.IsZero() {
		return g.resetAt
	}
	return g.nextMidnightLocked()
}

func (g *UsageGate) nextMidnightLocked() time.Time {
	return g.now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
}

func (g *UsageGate) emit(evt UsageEvent) {
	if g.recorder != nil {
		g.recorder(evt)
	}
}
