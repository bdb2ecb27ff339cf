package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// Booking event types published on the broker; the type doubles as the channel name.
const (
	EventAppointmentCreated       = "appointment.created"
	EventAppointmentStatusChanged = "appointment.status_changed"
	EventAppointmentRescheduled   = "appointment.rescheduled"
	EventAppointmentUpdated       = "appointment.updated"
	EventAppointmentDeleted       = "appointment.deleted"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	AggregateID  int64           `db:"aggregate_id" json:"aggregate_id"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// AppointmentEvent is the payload of every booking event.
type AppointmentEvent struct {
	Appointment    Appointment       `json:"appointment"`
	PreviousStatus AppointmentStatus `json:"previous_status,omitempty"`
	PreviousSlot   *Slot             `json:"previous_slot,omitempty"`
	Actor          Actor             `json:"actor"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

func NewOutboxEvent(eventType string, payload AppointmentEvent) (*OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		ID:          uuid.New(),
		EventType:   eventType,
		AggregateID: payload.Appointment.ID,
		Payload:     body,
		Status:      OutboxStatusPending,
		CreatedAt:   payload.OccurredAt,
		UpdatedAt:   payload.OccurredAt,
	}, nil
}
