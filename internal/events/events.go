package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventBookingCreated    = "booking_created"
	EventBookingCancelled  = "booking_cancelled"
	EventScheduleCancelled = "schedule_cancelled"
)

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID  string `json:"booking_id"`
	ScheduleID string `json:"schedule_id"`
	CourseID   string `json:"course_id"`
	UserID     string `json:"user_id"`
	Status     string `json:"status"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	ByAdmin    bool   `json:"by_admin,omitempty"`
}

// ScheduleEventPayload describes a schedule-level transition, including how
// many active bookings a cascade cancelled.
type ScheduleEventPayload struct {
	ScheduleID     string `json:"schedule_id"`
	CourseID       string `json:"course_id"`
	Status         string `json:"status"`
	CancelledCount int    `json:"cancelled_count,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
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
