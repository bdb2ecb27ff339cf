// Package query serves role-scoped, filtered, sorted and paginated reads of
// the ledger.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/booking-engine/internal/model"
	"github.com/jwalitptl/booking-engine/internal/repository"
	"github.com/jwalitptl/booking-engine/pkg/errors"
	"github.com/jwalitptl/booking-engine/pkg/pagination"
)

type Service struct {
	repo repository.AppointmentRepository
	now  func() time.Time
	loc  *time.Location
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewService(repo repository.AppointmentRepository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns one page of the appointments actor may see, narrowed by
// params.Filter. Practitioners and requesters are pinned to their own
// appointments; admins see everything unless the filter names a practitioner
// or requester.
func (s *Service) List(ctx context.Context, actor model.Actor, params model.ListParams) (pagination.Page[model.Appointment], error) {
	filter, err := s.scope(actor, params.Filter)
	if err != nil {
		return pagination.Page[model.Appointment]{}, err
	}

	page := pagination.Normalize(params.Page, params.Size)
	items, total, err := s.repo.List(ctx, filter, page, sortOrDefault(params.Sort))
	if err != nil {
		return pagination.Page[model.Appointment]{}, fmt.Errorf("failed to list appointments: %w", err)
	}
	return pagination.NewPage(items, page, total), nil
}

// ListAll is List without paging.
func (s *Service) ListAll(ctx context.Context, actor model.Actor, filter model.AppointmentFilter, sort model.SortOrder) ([]model.Appointment, error) {
	filter, err := s.scope(actor, filter)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListAll(ctx, filter, sortOrDefault(sort))
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return items, nil
}

// Feed is one subject's paginated list, as served by the per-practitioner and
// per-requester endpoints.
func (s *Service) Feed(ctx context.Context, actor, subject model.Actor, params model.ListParams) (pagination.Page[model.Appointment], error) {
	if !actor.CanView(subject) {
		return pagination.Page[model.Appointment]{}, errors.Forbidden("cannot view another feed")
	}
	params.Filter = pin(params.Filter, subject)
	return s.List(ctx, actor, params)
}

func (s *Service) FeedAll(ctx context.Context, actor, subject model.Actor, filter model.AppointmentFilter, sort model.SortOrder) ([]model.Appointment, error) {
	if !actor.CanView(subject) {
		return nil, errors.Forbidden("cannot view another feed")
	}
	return s.ListAll(ctx, actor, pin(filter, subject), sort)
}

// ByDate lists a practitioner's day in chronological order.
func (s *Service) ByDate(ctx context.Context, actor model.Actor, practitionerID int64, date model.Date) ([]model.Appointment, error) {
	if date.IsZero() {
		return nil, errors.Validation("date is required")
	}
	subject := model.Actor{Role: model.RolePractitioner, ID: practitionerID}
	return s.FeedAll(ctx, actor, subject, model.AppointmentFilter{From: date, To: date},
		model.SortOrder{Field: model.SortByDate, Dir: model.SortAsc})
}

// Count returns how many appointments subject has, cancelled ones included.
func (s *Service) Count(ctx context.Context, actor, subject model.Actor) (int, error) {
	if !actor.CanView(subject) {
		return 0, errors.Forbidden("cannot count another feed")
	}
	n, err := s.repo.Count(ctx, model.SubjectFilter(subject))
	if err != nil {
		return 0, fmt.Errorf("failed to count appointments: %w", err)
	}
	return n, nil
}

func (s *Service) scope(actor model.Actor, filter model.AppointmentFilter) (model.AppointmentFilter, error) {
	switch actor.Role {
	case model.RolePractitioner:
		if filter.PractitionerID != 0 && filter.PractitionerID != actor.ID {
			return filter, errors.Forbidden("practitioners may only list their own appointments")
		}
		filter.PractitionerID = actor.ID
	case model.RoleRequester:
		if filter.RequesterID != 0 && filter.RequesterID != actor.ID {
			return filter, errors.Forbidden("requesters may only list their own appointments")
		}
		filter.RequesterID = actor.ID
	case model.RoleAdmin:
	default:
		return filter, errors.Forbidden("unknown actor")
	}

	if filter.Status != "" && !filter.Status.Valid() {
		return filter, errors.Validation(fmt.Sprintf("unknown status %q", filter.Status))
	}
	if filter.Scope == "" {
		filter.Scope = model.TimeScopeAll
	}
	filter.Today = model.Today(s.now(), s.loc)
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return filter, errors.Validation("to must not be before from")
	}
	return filter, nil
}

func pin(filter model.AppointmentFilter, subject model.Actor) model.AppointmentFilter {
	switch subject.Role {
	case model.RolePractitioner:
		filter.PractitionerID = subject.ID
	case model.RoleRequester:
		filter.RequesterID = subject.ID
	}
	return filter
}

func sortOrDefault(order model.SortOrder) model.SortOrder {
	if order.Field == "" {
		return model.DefaultSort()
	}
	if order.Dir != model.SortAsc && order.Dir != model.SortDesc {
		order.Dir = model.SortAsc
	}
	return order
}
