package model

import (
	"fmt"
	"strings"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "PENDING"
	AppointmentStatusConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentStatusCancelled AppointmentStatus = "CANCELLED"
	AppointmentStatusCompleted AppointmentStatus = "COMPLETED"
	AppointmentStatusNoShow    AppointmentStatus = "NO_SHOW"
)

// AllStatuses in lifecycle order.
var AllStatuses = []AppointmentStatus{
	AppointmentStatusPending,
	AppointmentStatusConfirmed,
	AppointmentStatusCancelled,
	AppointmentStatusCompleted,
	AppointmentStatusNoShow,
}

// statusTransitions lists every legal edge. Anything absent is illegal,
// including self-transitions and every edge out of a terminal state.
var statusTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusPending:   {AppointmentStatusConfirmed, AppointmentStatusCancelled},
	AppointmentStatusConfirmed: {AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow},
}

func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	status := AppointmentStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown appointment status %q", s)
	}
	return status, nil
}

func (s AppointmentStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s AppointmentStatus) IsTerminal() bool {
	return s.Valid() && len(statusTransitions[s]) == 0
}

// CanTransitionTo reports whether s -> next is a legal edge.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Reschedulable is true while the appointment still holds a live slot that may move.
func (s AppointmentStatus) Reschedulable() bool {
	return s == AppointmentStatusPending || s == AppointmentStatusConfirmed
}

type Appointment struct {
	Base
	PractitionerID int64             `db:"practitioner_id" json:"practitioner_id"`
	RequesterID    int64             `db:"requester_id" json:"requester_id"`
	Date           Date              `db:"appointment_date" json:"date"`
	Time           TimeOfDay         `db:"appointment_time" json:"time"`
	Reason         string            `db:"reason" json:"reason,omitempty"`
	Notes          string            `db:"notes" json:"notes,omitempty"`
	Status         AppointmentStatus `db:"status" json:"status"`

	// Denormalized for display and name sorting; not written back.
	PractitionerName string `db:"practitioner_name" json:"practitioner_name,omitempty"`
	RequesterName    string `db:"requester_name" json:"requester_name,omitempty"`
}

// Active appointments occupy their slot.
func (a *Appointment) Active() bool {
	return a.Status != AppointmentStatusCancelled
}

func (a *Appointment) Slot() Slot {
	return Slot{PractitionerID: a.PractitionerID, Date: a.Date, Time: a.Time}
}

// Slot identifies one bookable position in a practitioner's calendar.
type Slot struct {
	PractitionerID int64     `json:"practitioner_id"`
	Date           Date      `json:"date"`
	Time           TimeOfDay `json:"time"`
}

func (s Slot) Key() string {
	return fmt.Sprintf("slot:%d:%s:%s", s.PractitionerID, s.Date, s.Time)
}

type CreateAppointmentRequest struct {
	PractitionerID int64  `json:"practitioner_id" binding:"required,gt=0"`
	RequesterID    int64  `json:"requester_id" binding:"required,gt=0"`
	Date           string `json:"date" binding:"required,calendar_date"`
	Time           string `json:"time" binding:"required,hhmm"`
	Reason         string `json:"reason" binding:"max=500"`
	Notes          string `json:"notes" binding:"max=2000"`
}

// UpdateAppointmentRequest edits descriptive fields only; status and slot have their own operations.
type UpdateAppointmentRequest struct {
	Reason *string `json:"reason" binding:"omitempty,max=500"`
	Notes  *string `json:"notes" binding:"omitempty,max=2000"`
}

const (
	ReasonSlotAvailable     = "slot available"
	ReasonOutsideOpenHours  = "outside opening hours"
	ReasonSlotAlreadyBooked = "slot already booked"
)

// Availability is the advisory answer for one slot.
type Availability struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason"`
}
