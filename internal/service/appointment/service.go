package appointment

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jwalitptl/booking-engine/internal/lock"
	"github.com/jwalitptl/booking-engine/internal/model"
	"github.com/jwalitptl/booking-engine/internal/repository"
	"github.com/jwalitptl/booking-engine/internal/service/availability"
	"github.com/jwalitptl/booking-engine/pkg/errors"
	"github.com/jwalitptl/booking-engine/pkg/logger"
	"github.com/jwalitptl/booking-engine/pkg/metrics"
)

// Deps wires the ledger to its collaborators. Outbox, Locker, Logger and
// Metrics are optional.
type Deps struct {
	Appointments  repository.AppointmentRepository
	Practitioners repository.PractitionerDirectory
	Requesters    repository.RequesterDirectory
	Outbox        repository.OutboxRepository
	Resolver      *availability.Resolver
	Locker        lock.Locker
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
	Clock         func() time.Time
}

// Service is the booking ledger. Every write that claims a slot runs its
// availability check and its insert under the slot lock and inside one
// storage transaction.
type Service struct {
	repo          repository.AppointmentRepository
	practitioners repository.PractitionerDirectory
	requesters    repository.RequesterDirectory
	outbox        repository.OutboxRepository
	resolver      *availability.Resolver
	locker        lock.Locker
	log           *logger.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		repo:          d.Appointments,
		practitioners: d.Practitioners,
		requesters:    d.Requesters,
		outbox:        d.Outbox,
		resolver:      d.Resolver,
		locker:        d.Locker,
		log:           d.Logger,
		metrics:       d.Metrics,
		now:           d.Clock,
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.resolver == nil {
		s.resolver = availability.NewResolver(d.Practitioners, d.Appointments, availability.WithClock(s.now))
	}
	return s
}

// CreateAppointment books a new PENDING appointment. It fails with a
// validation error outside opening hours and a conflict error when another
// active appointment holds the slot.
func (s *Service) CreateAppointment(ctx context.Context, actor model.Actor, apt *model.Appointment) (*model.Appointment, error) {
	switch actor.Role {
	case model.RoleRequester:
		if apt.RequesterID == 0 {
			apt.RequesterID = actor.ID
		}
		if apt.RequesterID != actor.ID {
			return nil, errors.Forbidden("requesters may only book for themselves")
		}
	case model.RolePractitioner:
		if apt.PractitionerID == 0 {
			apt.PractitionerID = actor.ID
		}
		if apt.PractitionerID != actor.ID {
			return nil, errors.Forbidden("practitioners may only book into their own calendar")
		}
	case model.RoleAdmin:
	default:
		return nil, errors.Forbidden("unknown actor")
	}

	if apt.PractitionerID <= 0 {
		return nil, errors.Validation("practitioner_id is required")
	}
	if apt.RequesterID <= 0 {
		return nil, errors.Validation("requester_id is required")
	}
	if err := s.resolver.ValidateSlotInput(apt.Date, apt.Time); err != nil {
		return nil, err
	}

	p, err := s.practitioners.GetByID(ctx, apt.PractitionerID)
	if err != nil {
		return nil, err
	}
	rq, err := s.requesters.GetByID(ctx, apt.RequesterID)
	if err != nil {
		return nil, err
	}

	apt.ID = 0
	apt.Status = model.AppointmentStatusPending
	slot := apt.Slot()

	err = s.withLock(ctx, slot.Key(), func() error {
		return s.repo.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.claim(ctx, p, slot, 0); err != nil {
				return err
			}
			if err := s.repo.Create(ctx, apt); err != nil {
				return err
			}
			return s.emit(ctx, model.EventAppointmentCreated, actor, apt, "", nil)
		})
	})
	if err != nil {
		s.recordFailure(ctx, "create", slot, err)
		return nil, err
	}

	apt.PractitionerName = p.FullName()
	apt.RequesterName = rq.FirstName + " " + rq.LastName
	if s.metrics != nil {
		s.metrics.AppointmentsCreated.Inc()
	}
	s.log.WithContext(ctx).Info("appointment created",
		"appointment_id", apt.ID, "slot", slot.Key(), "actor_role", actor.Role)
	return apt, nil
}

func (s *Service) GetAppointment(ctx context.Context, actor model.Actor, id int64) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(apt) {
		return nil, errors.Forbidden("not a party to this appointment")
	}
	return apt, nil
}

// UpdateAppointment edits reason and notes while the appointment is still live.
func (s *Service) UpdateAppointment(ctx context.Context, actor model.Actor, id int64, req model.UpdateAppointmentRequest) (*model.Appointment, error) {
	var updated *model.Appointment
	err := s.withLock(ctx, appointmentKey(id), func() error {
		return s.repo.WithinTx(ctx, func(ctx context.Context) error {
			apt, err := s.load(ctx, actor, id)
			if err != nil {
				return err
			}
			if !apt.Status.Reschedulable() {
				return errors.InvalidState(fmt.Sprintf("cannot edit a %s appointment", apt.Status))
			}
			if req.Reason != nil {
				apt.Reason = *req.Reason
			}
			if req.Notes != nil {
				apt.Notes = *req.Notes
			}
			if err := s.repo.Update(ctx, apt); err != nil {
				return err
			}
			updated = apt
			return s.emit(ctx, model.EventAppointmentUpdated, actor, apt, "", nil)
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Transition moves the appointment along one legal edge of the status
// machine. Illegal edges leave the record untouched.
func (s *Service) Transition(ctx context.Context, actor model.Actor, id int64, to model.AppointmentStatus) (*model.Appointment, error) {
	if !to.Valid() {
		return nil, errors.Validation(fmt.Sprintf("unknown status %q", to))
	}
	if actor.Role == model.RoleRequester && to != model.AppointmentStatusCancelled {
		return nil, errors.Forbidden("requesters may only cancel")
	}

	var (
		updated *model.Appointment
		from    model.AppointmentStatus
	)
	err := s.withLock(ctx, appointmentKey(id), func() error {
		return s.repo.WithinTx(ctx, func(ctx context.Context) error {
			apt, err := s.load(ctx, actor, id)
			if err != nil {
				return err
			}
			from = apt.Status
			if !from.CanTransitionTo(to) {
				return errors.InvalidTransition(string(from), string(to))
			}
			apt.Status = to
			if err := s.repo.Update(ctx, apt); err != nil {
				return err
			}
			updated = apt
			return s.emit(ctx, model.EventAppointmentStatusChanged, actor, apt, from, nil)
		})
	})
	if err != nil {
		if errors.IsCode(err, errors.ErrInvalidTransition) {
			s.log.WithContext(ctx).Warn("rejected status transition", "appointment_id", id, "to", to)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.StatusTransitions.WithLabelValues(string(from), string(to)).Inc()
	}
	s.log.WithContext(ctx).Info("appointment status changed",
		"appointment_id", id, "from", from, "to", to)
	return updated, nil
}

func (s *Service) Confirm(ctx context.Context, actor model.Actor, id int64) (*model.Appointment, error) {
	return s.Transition(ctx, actor, id, model.AppointmentStatusConfirmed)
}

func (s *Service) Cancel(ctx context.Context, actor model.Actor, id int64) (*model.Appointment, error) {
	return s.Transition(ctx, actor, id, model.AppointmentStatusCancelled)
}

func (s *Service) Complete(ctx context.Context, actor model.Actor, id int64) (*model.Appointment, error) {
	return s.Transition(ctx, actor, id, model.AppointmentStatusCompleted)
}

func (s *Service) MarkNoShow(ctx context.Context, actor model.Actor, id int64) (*model.Appointment, error) {
	return s.Transition(ctx, actor, id, model.AppointmentStatusNoShow)
}

// Reschedule moves a PENDING or CONFIRMED appointment to a new slot, keeping
// its status. The new slot is checked with the appointment itself excluded.
func (s *Service) Reschedule(ctx context.Context, actor model.Actor, id int64, date model.Date, tod model.TimeOfDay) (*model.Appointment, error) {
	if err := s.resolver.ValidateSlotInput(date, tod); err != nil {
		return nil, err
	}

	var (
		updated *model.Appointment
		prev    model.Slot
		target  model.Slot
	)
	err := s.withLock(ctx, appointmentKey(id), func() error {
		current, err := s.load(ctx, actor, id)
		if err != nil {
			return err
		}
		if !current.Status.Reschedulable() {
			return errors.InvalidState(fmt.Sprintf("cannot reschedule a %s appointment", current.Status))
		}
		p, err := s.practitioners.GetByID(ctx, current.PractitionerID)
		if err != nil {
			return err
		}

		target = model.Slot{PractitionerID: current.PractitionerID, Date: date, Time: tod}
		return s.withLock(ctx, target.Key(), func() error {
			return s.repo.WithinTx(ctx, func(ctx context.Context) error {
				apt, err := s.repo.Get(ctx, id)
				if err != nil {
					return err
				}
				if err := s.claim(ctx, p, target, apt.ID); err != nil {
					return err
				}
				prev = apt.Slot()
				apt.Date, apt.Time = date, tod
				if err := s.repo.Update(ctx, apt); err != nil {
					return err
				}
				updated = apt
				return s.emit(ctx, model.EventAppointmentRescheduled, actor, apt, "", &prev)
			})
		})
	})
	if err != nil {
		s.recordFailure(ctx, "reschedule", target, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Reschedules.Inc()
	}
	s.log.WithContext(ctx).Info("appointment rescheduled",
		"appointment_id", id, "from", prev.Key(), "to", target.Key())
	return updated, nil
}

// DeleteAppointment hard-deletes a ledger entry. Admin only.
func (s *Service) DeleteAppointment(ctx context.Context, actor model.Actor, id int64) error {
	if !actor.IsAdmin() {
		return errors.Forbidden("only admins may delete appointments")
	}

	err := s.withLock(ctx, appointmentKey(id), func() error {
		return s.repo.WithinTx(ctx, func(ctx context.Context) error {
			apt, err := s.repo.Get(ctx, id)
			if err != nil {
				return err
			}
			if err := s.repo.Delete(ctx, id); err != nil {
				return err
			}
			return s.emit(ctx, model.EventAppointmentDeleted, actor, apt, "", nil)
		})
	})
	if err != nil {
		return err
	}

	s.log.WithContext(ctx).Info("appointment deleted", "appointment_id", id)
	return nil
}

// claim re-runs the availability evaluation inside the write path and turns
// a negative answer into the matching error.
func (s *Service) claim(ctx context.Context, p *model.Practitioner, slot model.Slot, excludeID int64) error {
	avail, err := s.resolver.Evaluate(ctx, p, slot, excludeID)
	if err != nil {
		return err
	}
	switch {
	case avail.Available:
		return nil
	case avail.Reason == model.ReasonSlotAlreadyBooked:
		return errors.Conflict(avail.Reason, nil)
	default:
		return errors.Validation(avail.Reason)
	}
}

func (s *Service) load(ctx context.Context, actor model.Actor, id int64) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(apt) {
		return nil, errors.Forbidden("not a party to this appointment")
	}
	return apt, nil
}

func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	start := time.Now()
	unlock, err := s.locker.Lock(ctx, key)
	if s.metrics != nil {
		s.metrics.LockWait.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if stderrors.Is(err, lock.ErrNotAcquired) {
			return errors.Conflict("resource is busy, retry later", err)
		}
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	defer unlock()
	return fn()
}

func (s *Service) emit(ctx context.Context, eventType string, actor model.Actor, apt *model.Appointment, prevStatus model.AppointmentStatus, prevSlot *model.Slot) error {
	if s.outbox == nil {
		return nil
	}
	event, err := model.NewOutboxEvent(eventType, model.AppointmentEvent{
		Appointment:    *apt,
		PreviousStatus: prevStatus,
		PreviousSlot:   prevSlot,
		Actor:          actor,
		OccurredAt:     s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	if err := s.outbox.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to write %s event: %w", eventType, err)
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, op string, slot model.Slot, err error) {
	if !errors.IsCode(err, errors.ErrConflict) {
		return
	}
	if s.metrics != nil {
		s.metrics.SlotConflicts.Inc()
	}
	s.log.WithContext(ctx).Warn("slot conflict", "op", op, "slot", slot.Key())
}

func appointmentKey(id int64) string {
	return fmt.Sprintf("appointment:%d", id)
}
