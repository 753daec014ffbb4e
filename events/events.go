/*
Package events publishes domain events after a business operation commits.

DELIVERY:
  Best effort. Publishing runs after the database commit and its failure
  never changes the outcome of the operation that produced the event.
  Consumers that need every event should reconcile from the ledger.

ROUTING KEYS:
  application.submitted
  application.status.changed
  ledger.transaction.recorded
  ledger.transaction.reversed
*/
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Routing keys.
const (
	ApplicationSubmitted     = "application.submitted"
	ApplicationStatusChanged = "application.status.changed"
	TransactionRecorded      = "ledger.transaction.recorded"
	TransactionReversed      = "ledger.transaction.reversed"
)

// Event is the envelope every message carries.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// New stamps a payload with a fresh ID.
func New(eventType string, at time.Time, payload any) Event {
	return Event{ID: uuid.New(), Type: eventType, OccurredAt: at.UTC(), Payload: payload}
}

// Publisher sends events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop discards events. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns what has been published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
