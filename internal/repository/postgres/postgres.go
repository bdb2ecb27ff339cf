package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/booking-engine/internal/repository"
)

type appointmentRepository struct {
	BaseRepository
}

type practitionerDirectory struct {
	BaseRepository
}

type requesterDirectory struct {
	BaseRepository
}

type outboxRepository struct {
	BaseRepository
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{NewBaseRepository(db)}
}

func NewPractitionerDirectory(db *sqlx.DB) repository.PractitionerDirectory {
	return &practitionerDirectory{NewBaseRepository(db)}
}

func NewRequesterDirectory(db *sqlx.DB) repository.RequesterDirectory {
	return &requesterDirectory{NewBaseRepository(db)}
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{NewBaseRepository(db)}
}
