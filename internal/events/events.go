package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"consultbook/internal/models"
)

const (
	EventConsultationRequested        = "consultation_requested"
	EventConsultationValidationFailed = "consultation_validation_failed"
	EventConsultationSubmissionFailed = "consultation_submission_failed"
	EventConsultationStatusChanged    = "consultation_status_changed"
)

// ConsultationEventPayload describes the minimal consultation snapshot for event consumers.
type ConsultationEventPayload struct {
	ConsultationID int64    `json:"consultation_id,omitempty"`
	Reference      string   `json:"reference,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	Date           string   `json:"date,omitempty"`
	StartTime      string   `json:"start_time,omitempty"`
	EndTime        string   `json:"end_time,omitempty"`
	Duration       int      `json:"duration,omitempty"`
	Email          string   `json:"email,omitempty"`
	Status         string   `json:"status,omitempty"`
	MissingFields  []string `json:"missing_fields,omitempty"`
	InvalidFields  []string `json:"invalid_fields,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// PayloadFromConsultation fills the payload from a stored consultation.
func PayloadFromConsultation(c *models.Consultation) ConsultationEventPayload {
	return ConsultationEventPayload{
		ConsultationID: c.ID,
		Reference:      c.Reference,
		Date:           c.DateString(),
		StartTime:      c.StartTime,
		EndTime:        c.EndTime,
		Duration:       c.Duration,
		Email:          c.Email,
		Status:         c.Status,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload into v.
func (e *Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	seq         int64
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

// Publish notifies subscribers of the event type. Every handler runs even if
// an earlier one fails; the failures are joined.
func (b *EventBus) Publish(event *Event) error {
	b.mu.Lock()
	b.seq++
	if event.ID == 0 {
		event.ID = b.seq
	}
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			errs = append(errs, fmt.Errorf("%s handler: %w", event.Type, err))
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
