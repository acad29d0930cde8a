package requests

import (
	"sync"
	"time"

	"translarr/internal/store"
)

// Event is one progress or state notification for a request.
type Event struct {
	RequestID int64
	Status    store.RequestStatus
	Progress  int
	Message   string
	Timestamp time.Time
}

const subscriberBuffer = 128

type subscriber struct {
	requestID int64
	ch        chan Event
}

// ProgressHub fans request events out to per-request subscriber groups.
// Delivery is ordered per request; a subscriber that falls more than the
// buffer behind loses oldest events rather than blocking publishers.
type ProgressHub struct {
	mu   sync.Mutex
	subs map[int]*subscriber
	next int
}

// NewProgressHub builds an empty hub.
func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[int]*subscriber)}
}

// Subscribe registers for one request's events; requestID 0 receives all.
// The returned func removes the subscription and closes the channel.
func (h *ProgressHub) Subscribe(requestID int64) (<-chan Event, func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	sub := &subscriber{requestID: requestID, ch: make(chan Event, subscriberBuffer)}
	h.subs[id] = sub
	h.mu.Unlock()

	return sub.ch, func() {
		h.mu.Lock()
		if existing, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(existing.ch)
		}
		h.mu.Unlock()
	}
}

// Publish delivers an event to the request's group.
func (h *ProgressHub) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.requestID != 0 && sub.requestID != evt.RequestID {
			continue
		}
		for {
			select {
			case sub.ch <- evt:
			default:
				// Full buffer: drop the oldest to preserve ordering of the
				// rest without blocking the publisher.
				select {
				case <-sub.ch:
				default:
				}
				continue
			}
			break
		}
	}
}
