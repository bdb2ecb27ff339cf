package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-engine/internal/model"
	"github.com/jwalitptl/booking-engine/pkg/pagination"
)

// All repository interfaces in one file
type (
	// AppointmentRepository is the ledger's storage. Writes that change a slot
	// must fail with a conflict error when another active appointment holds it.
	AppointmentRepository interface {
		Create(ctx context.Context, apt *model.Appointment) error
		Get(ctx context.Context, id int64) (*model.Appointment, error)
		Update(ctx context.Context, apt *model.Appointment) error
		Delete(ctx context.Context, id int64) error
		// FindActiveAtSlot returns the non-cancelled appointment at slot, or nil.
		// excludeID skips one appointment, used when it is the one moving.
		FindActiveAtSlot(ctx context.Context, slot model.Slot, excludeID int64) (*model.Appointment, error)
		List(ctx context.Context, filter model.AppointmentFilter, page pagination.Params, sort model.SortOrder) ([]model.Appointment, int, error)
		// ListAll returns every match without paging, ordered by sort.
		ListAll(ctx context.Context, filter model.AppointmentFilter, sort model.SortOrder) ([]model.Appointment, error)
		Count(ctx context.Context, filter model.AppointmentFilter) (int, error)
		// WithinTx runs fn so that every repository call made with the ctx it
		// receives commits or rolls back together.
		WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	}

	PractitionerDirectory interface {
		GetByID(ctx context.Context, id int64) (*model.Practitioner, error)
	}

	RequesterDirectory interface {
		GetByID(ctx context.Context, id int64) (*model.Requester, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
		// WithinTx keeps the rows claimed by GetPendingEventsWithLock locked
		// until fn returns.
		WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	}
)
