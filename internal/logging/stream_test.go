package logging

import (
	"context"
	"testing"
	"time"
)

func TestStreamHubPublishAndTail(t *testing.T) {
	hub := NewStreamHub(3)
	for i := 0; i < 5; i++ {
		hub.Publish(LogEvent{Message: "event"})
	}
	events, next := hub.Tail(10)
	if len(events) != 3 {
		t.Fatalf("expected buffer capped at 3, got %d", len(events))
	}
	if events[0].Sequence != 3 || events[2].Sequence != 5 {
		t.Fatalf("unexpected sequences %d..%d", events[0].Sequence, events[2].Sequence)
	}
	if next != 5 {
		t.Fatalf("expected next sequence 5, got %d", next)
	}
}

func TestStreamHubFetchWaits(t *testing.T) {
	hub := NewStreamHub(8)
	done := make(chan []LogEvent, 1)
	go func() {
		events, _, _ := hub.Fetch(context.Background(), 0, 10, true)
		done <- events
	}()
	time.Sleep(10 * time.Millisecond)
	hub.Publish(LogEvent{Message: "wake"})
	select {
	case events := <-done:
		if len(events) != 1 || events[0].Message != "wake" {
			t.Fatalf("unexpected events %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("fetch never woke")
	}
}

func TestStreamHubFetchHonorsContext(t *testing.T) {
	hub := NewStreamHub(8)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, _, err := hub.Fetch(ctx, 0, 10, true)
	if err == nil {
		t.Fatalf("expected context error")
	}
}
