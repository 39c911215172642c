package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventReservationRequested = "reservation_requested"
	EventReservationConfirmed = "reservation_confirmed"
	EventReservationDeclined  = "reservation_declined"
	EventReservationStarted   = "reservation_started"
	EventReservationClosed    = "reservation_closed"
	EventReservationCanceled  = "reservation_canceled"
	EventReservationExpired   = "reservation_expired"
	EventReservationMoved     = "reservation_moved"
	EventPaymentSettled       = "payment_settled"
)

// ReservationEventPayload is the snapshot event consumers get. It carries
// enough to route the event to the right realtime rooms without a DB trip.
type ReservationEventPayload struct {
	ReservationID string    `json:"reservation_id"`
	VenueID       string    `json:"venue_id"`
	TableID       string    `json:"table_id"`
	ClientID      string    `json:"client_id"`
	Status        string    `json:"status"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Guests        int       `json:"guests,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	ActorRole     string    `json:"actor_role,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub. Handlers run synchronously on the
// publisher's goroutine.
type EventBus struct {
	subscribers map[string][]EventHandler
	anyHandlers []EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type. The realtime router
// uses this to mirror all state changes.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.anyHandlers = append(b.anyHandlers, handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.anyHandlers...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
