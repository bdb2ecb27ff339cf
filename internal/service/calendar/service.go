package calendar

import (
	"context"
	"fmt"

	"github.com/jwalitptl/booking-engine/internal/model"
	"github.com/jwalitptl/booking-engine/internal/repository"
	"github.com/jwalitptl/booking-engine/pkg/errors"
)

// Service loads ledger entries into calendar grids. Nothing is cached; each
// call reads the ledger again.
type Service struct {
	repo repository.AppointmentRepository
}

func NewService(repo repository.AppointmentRepository) *Service {
	return &Service{repo: repo}
}

// Week returns subject's week grid around anchor.
func (s *Service) Week(ctx context.Context, actor, subject model.Actor, anchor model.Date) (*model.CalendarView, error) {
	return s.view(ctx, actor, subject, BuildWeek(anchor))
}

// Month returns subject's 42-cell month grid around anchor.
func (s *Service) Month(ctx context.Context, actor, subject model.Actor, anchor model.Date) (*model.CalendarView, error) {
	return s.view(ctx, actor, subject, BuildMonth(anchor))
}

func (s *Service) view(ctx context.Context, actor, subject model.Actor, grid model.CalendarView) (*model.CalendarView, error) {
	if grid.Anchor.IsZero() {
		return nil, errors.Validation("anchor date is required")
	}
	if !actor.CanView(subject) {
		return nil, errors.Forbidden("cannot view another calendar")
	}

	filter := model.SubjectFilter(subject)
	filter.From, filter.To = grid.Start, grid.End

	appointments, err := s.repo.ListAll(ctx, filter, model.SortOrder{Field: model.SortByDate, Dir: model.SortAsc})
	if err != nil {
		return nil, fmt.Errorf("failed to load calendar entries: %w", err)
	}

	view := Fill(grid, appointments)
	return &view, nil
}
