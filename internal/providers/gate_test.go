package providers

import (
	"errors"
	"testing"
	"time"
)

func TestGateEnforcesDailyAllowance(t *testing.T) {
	gate := NewUsageGate(GateConfig{PlanRequestsPerDay: 3, RequestBuffer: 1}, nil)
	for i := 0; i < 2; i++ {
		if err := gate.EnsureRequestAllowed("m"); err != nil {
			t.Fatalf("request %d should be allowed: %v", i, err)
		}
		gate.RecordRequest("m")
	}
	if err := gate.EnsureRequestAllowed("m"); !errors.Is(err, ErrDailyLimitReached) {
		t.Fatalf("expected ErrDailyLimitReached, got %v", err)
	}
}

func TestGateOverrideBeatsPlan(t *testing.T) {
	gate := NewUsageGate(GateConfig{PlanRequestsPerDay: 1, OverrideRequestsPerDay: 5}, nil)
	for i := 0; i < 5; i++ {
		if err := gate.EnsureRequestAllowed("m"); err != nil {
			t.Fatalf("request %d should be allowed: %v", i, err)
		}
		gate.RecordRequest("m")
	}
	if err := gate.EnsureRequestAllowed("m"); !errors.Is(err, ErrDailyLimitReached) {
		t.Fatalf("expected ErrDailyLimitReached, got %v", err)
	}
}

func TestGateResetsAtUTCMidnight(t *testing.T) {
	current := time.Date(2026, 8, 24, 23, 0, 0, 0, time.UTC)
	gate := NewUsageGate(GateConfig{PlanRequestsPerDay: 1}, nil)
	gate.SetClock(func() time.Time { return current })

	gate.RecordRequest("m")
	if err := gate.EnsureRequestAllowed("m"); !errors.Is(err, ErrDailyLimitReached) {
		t.Fatalf("expected limit before midnight, got %v", err)
	}

	current = current.Add(2 * time.Hour) // past midnight
	if err := gate.EnsureRequestAllowed("m"); err != nil {
		t.Fatalf("expected counter reset after midnight, got %v", err)
	}
}

func TestGatePaymentRequiredPause(t *testing.T) {
	current := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	var events []UsageEvent
	gate := NewUsageGate(GateConfig{PlanRequestsPerDay: 100}, func(evt UsageEvent) {
		events = append(events, evt)
	})
	gate.SetClock(func() time.Time { return current })

	resetAt := current.Add(3 * time.Hour)
	gate.NotifyPaymentRequired("m", resetAt)

	if err := gate.EnsureRequestAllowed("m"); !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("expected ErrPaymentRequired while paused, got %v", err)
	}
	if len(events) != 1 || events[0].Kind != "payment_required" {
		t.Fatalf("expected payment_required audit event, got %+v", events)
	}

	current = resetAt.Add(time.Minute)
	if err := gate.EnsureRequestAllowed("m"); err != nil {
		t.Fatalf("expected pause lifted after resetAt, got %v", err)
	}
}

func TestGateSnapshot(t *testing.T) {
	gate := NewUsageGate(GateConfig{PlanRequestsPerDay: 10, RequestBuffer: 2}, nil)
	gate.RecordRequest("m")
	gate.RecordRequest("m")
	snap := gate.Snapshot()
	if snap.RequestsUsed != 2 || snap.Allowed != 8 || snap.Paused {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
