package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/booking-engine/internal/model"
	"github.com/jwalitptl/booking-engine/internal/repository"
	"github.com/jwalitptl/booking-engine/pkg/errors"
	"github.com/jwalitptl/booking-engine/pkg/metrics"
)

const (
	DefaultSlotLength = 30 * time.Minute
	// MaxSlotRangeDays bounds OpenSlots so a single request cannot scan years.
	MaxSlotRangeDays = 62
)

// Resolver answers whether a practitioner can take a booking at a slot.
// Its answers are advisory; the ledger repeats the same evaluation under a
// slot lock before committing.
type Resolver struct {
	practitioners repository.PractitionerDirectory
	appointments  repository.AppointmentRepository
	slotLength    time.Duration
	loc           *time.Location
	now           func() time.Time
	metrics       *metrics.Metrics
}

type Option func(*Resolver)

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(r *Resolver) {
		if loc != nil {
			r.loc = loc
		}
	}
}

func WithSlotLength(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.slotLength = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

func NewResolver(practitioners repository.PractitionerDirectory, appointments repository.AppointmentRepository, opts ...Option) *Resolver {
	r := &Resolver{
		practitioners: practitioners,
		appointments:  appointments,
		slotLength:    DefaultSlotLength,
		loc:           time.UTC,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Today() model.Date {
	return model.Today(r.now(), r.loc)
}

func (r *Resolver) SlotLength() time.Duration {
	return r.slotLength
}

// ValidateSlotInput rejects past dates and malformed times.
func (r *Resolver) ValidateSlotInput(date model.Date, tod model.TimeOfDay) error {
	if date.IsZero() {
		return errors.Validation("date is required")
	}
	if !tod.Valid() {
		return errors.Validation(fmt.Sprintf("invalid time of day %d", int(tod)))
	}
	if date.Before(r.Today()) {
		return errors.Validation("date must be today or later")
	}
	return nil
}

// CheckAvailability runs the opening-hours check, then the booked check.
func (r *Resolver) CheckAvailability(ctx context.Context, practitionerID int64, date model.Date, tod model.TimeOfDay) (*model.Availability, error) {
	if err := r.ValidateSlotInput(date, tod); err != nil {
		return nil, err
	}

	p, err := r.practitioners.GetByID(ctx, practitionerID)
	if err != nil {
		return nil, err
	}

	result, err := r.Evaluate(ctx, p, model.Slot{PractitionerID: practitionerID, Date: date, Time: tod}, 0)
	if err != nil {
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.AvailabilityChecks.WithLabelValues(outcome(result)).Inc()
	}
	return result, nil
}

// Evaluate checks slot against p's schedule and the ledger, ignoring the
// appointment excludeID (the one being moved, if any).
func (r *Resolver) Evaluate(ctx context.Context, p *model.Practitioner, slot model.Slot, excludeID int64) (*model.Availability, error) {
	if !p.Schedule.OpenAt(slot.Date.Weekday(), slot.Time) {
		return &model.Availability{Available: false, Reason: model.ReasonOutsideOpenHours}, nil
	}

	existing, err := r.appointments.FindActiveAtSlot(ctx, slot, excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to check slot: %w", err)
	}
	if existing != nil {
		return &model.Availability{Available: false, Reason: model.ReasonSlotAlreadyBooked}, nil
	}

	return &model.Availability{Available: true, Reason: model.ReasonSlotAvailable}, nil
}

// OpenSlots lists every free slot start for the practitioner in [from, to].
// Slots earlier than now are omitted.
func (r *Resolver) OpenSlots(ctx context.Context, practitionerID int64, from, to model.Date) ([]model.Slot, error) {
	if from.IsZero() || to.IsZero() {
		return nil, errors.Validation("from and to are required")
	}
	if to.Before(from) {
		return nil, errors.Validation("to must not be before from")
	}
	if from.DaysUntil(to) >= MaxSlotRangeDays {
		return nil, errors.Validation(fmt.Sprintf("range must not exceed %d days", MaxSlotRangeDays))
	}

	p, err := r.practitioners.GetByID(ctx, practitionerID)
	if err != nil {
		return nil, err
	}

	now := r.now().In(r.loc)
	today := model.DateOf(now)
	if to.Before(today) {
		return []model.Slot{}, nil
	}
	if from.Before(today) {
		from = today
	}

	booked, err := r.appointments.ListAll(ctx, model.AppointmentFilter{
		PractitionerID: practitionerID,
		ActiveOnly:     true,
		From:           from,
		To:             to,
	}, model.SortOrder{Field: model.SortByDate, Dir: model.SortAsc})
	if err != nil {
		return nil, fmt.Errorf("failed to load booked slots: %w", err)
	}

	busy := make(map[model.Date]map[model.TimeOfDay]bool)
	for _, apt := range booked {
		if busy[apt.Date] == nil {
			busy[apt.Date] = make(map[model.TimeOfDay]bool)
		}
		busy[apt.Date][apt.Time] = true
	}

	slots := []model.Slot{}
	for day := from; !day.After(to); day = day.AddDays(1) {
		notBefore := model.TimeOfDay(0)
		if day.Equal(today) {
			notBefore = model.TimeOfDayOf(now)
		}
		for _, w := range p.Schedule.OpenWindows(day.Weekday()) {
			for _, t := range windowSlots(w, r.slotLength, busy[day], notBefore) {
				slots = append(slots, model.Slot{PractitionerID: practitionerID, Date: day, Time: t})
			}
		}
	}
	return slots, nil
}

func outcome(a *model.Availability) string {
	switch {
	case a.Available:
		return "available"
	case a.Reason == model.ReasonSlotAlreadyBooked:
		return "booked"
	}
	return "closed"
}
