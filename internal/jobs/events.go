package jobs

import (
	"sync"
	"time"

	"media-splitter/internal/domain"
)

// EventType classifies messages emitted during a batch.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeProgress EventType = "progress"
	EventTypeResult   EventType = "result"
	EventTypeError    EventType = "error"
)

// Event is a sequenced batch notification kept for later inspection.
type Event struct {
	Seq       int64            `json:"seq"`
	Timestamp time.Time        `json:"timestamp"`
	BatchID   string           `json:"batchId"`
	JobID     string           `json:"jobId,omitempty"`
	Index     int              `json:"index,omitempty"`
	Type      EventType        `json:"type"`
	Status    domain.JobStatus `json:"status,omitempty"`
	Message   string           `json:"message,omitempty"`
	Completed int              `json:"completed,omitempty"`
	Total     int              `json:"total,omitempty"`
	FileName  string           `json:"fileName,omitempty"`
	Size      int              `json:"size,omitempty"`
}

// EventBus stores recent events and provides incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
// A nil bus discards the event.
func (b *EventBus) Publish(event Event) Event {
	if b == nil {
		return event
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	return b.filter(func(e Event) bool { return e.Seq > seq })
}

// ForBatch returns the retained events of one batch in sequence order.
func (b *EventBus) ForBatch(batchID string) []Event {
	return b.filter(func(e Event) bool { return e.BatchID == batchID })
}

func (b *EventBus) filter(keep func(Event) bool) []Event {
	if b == nil {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if keep(event) {
			out = append(out, event)
		}
	}
	return out
}
