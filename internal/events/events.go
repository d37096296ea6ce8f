package events

import (
	"encoding/json"
	"sync"
	"time"

	"salonbook/internal/models"

	"github.com/rs/zerolog"
)

const (
	EventReservationCreated       = "reservation_created"
	EventReservationConverted     = "reservation_converted"
	EventReservationStatusChanged = "reservation_status_changed"
	EventReservationDeleted       = "reservation_deleted"
)

// ReservationEvents lists every event type a reservation change can emit.
var ReservationEvents = []string{
	EventReservationCreated,
	EventReservationConverted,
	EventReservationStatusChanged,
	EventReservationDeleted,
}

// ReservationEventPayload is the reservation snapshot handed to consumers.
type ReservationEventPayload struct {
	ReservationID  int64         `json:"reservation_id"`
	ServiceID      int64         `json:"service_id"`
	ClientID       int64         `json:"client_id,omitempty"`
	Date           string        `json:"date"`
	StartTime      string        `json:"start_time"`
	EndTime        string        `json:"end_time"`
	Status         models.Status `json:"status"`
	Kind           models.Kind   `json:"kind"`
	PreviousStatus models.Status `json:"previous_status,omitempty"`
	FinalPrice     int64         `json:"final_price"`
	ClientNotes    string        `json:"client_notes,omitempty"`
	AdminNotes     string        `json:"admin_notes,omitempty"`
	// set while the booker has not confirmed yet, for the mailer behind AMQP
	VerificationCode  string `json:"verification_code,omitempty"`
	VerificationToken string `json:"verification_token,omitempty"`
}

// NewReservationPayload snapshots r.
func NewReservationPayload(r *models.Reservation) ReservationEventPayload {
	return ReservationEventPayload{
		ReservationID: r.ID,
		ServiceID:     r.ServiceID,
		ClientID:      r.ClientID(),
		Date:          r.DateString(),
		StartTime:     r.StartTime.String(),
		EndTime:       r.EndTime.String(),
		Status:        r.Status(),
		Kind:          r.Lifecycle.Kind(),
		FinalPrice:    r.FinalPrice,
		ClientNotes:   r.ClientNotes,
		AdminNotes:    r.AdminNotes,

		VerificationCode:  r.VerificationCode,
		VerificationToken: r.VerificationToken,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// DecodePayload unmarshals the reservation snapshot carried by the event.
func (e *Event) DecodePayload() (ReservationEventPayload, error) {
	var p ReservationEventPayload
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for the given event types.
func (b *EventBus) Subscribe(handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish notifies subscribers of the event type. Handlers run synchronously
// in subscription order; a failing handler is logged and does not stop the rest.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("event handler failed")
		}
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
