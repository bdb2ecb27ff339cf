package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/booking-engine/internal/model"
	"github.com/jwalitptl/booking-engine/pkg/pagination"
)

const selectAppointments = `
	SELECT a.id, a.practitioner_id, a.requester_id,
		   a.appointment_date, a.appointment_time,
		   a.reason, a.notes, a.status,
		   a.created_at, a.updated_at,
		   COALESCE(p.first_name || ' ' || p.last_name, '') AS practitioner_name,
		   COALESCE(r.first_name || ' ' || r.last_name, '') AS requester_name
	FROM appointments a
	LEFT JOIN practitioners p ON p.id = a.practitioner_id
	LEFT JOIN requesters r ON r.id = a.requester_id
`

func (r *appointmentRepository) Create(ctx context.Context, apt *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			practitioner_id, requester_id,
			appointment_date, appointment_time,
			reason, notes, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id, created_at, updated_at
	`
	now := time.Now().UTC()

	err := r.conn(ctx).QueryRowxContext(ctx, query,
		apt.PractitionerID,
		apt.RequesterID,
		apt.Date,
		apt.Time,
		apt.Reason,
		apt.Notes,
		apt.Status,
		now,
	).Scan(&apt.ID, &apt.CreatedAt, &apt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", mapError(err, "appointment"))
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id int64) (*model.Appointment, error) {
	query := selectAppointments + ` WHERE a.id = $1`

	var apt model.Appointment
	if err := r.conn(ctx).GetContext(ctx, &apt, query, id); err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", mapError(err, "appointment"))
	}
	return &apt, nil
}

func (r *appointmentRepository) Update(ctx context.Context, apt *model.Appointment) error {
	query := `
		UPDATE appointments
		SET appointment_date = $1, appointment_time = $2,
			reason = $3, notes = $4, status = $5, updated_at = $6
		WHERE id = $7
	`
	apt.UpdatedAt = time.Now().UTC()

	result, err := r.conn(ctx).ExecContext(ctx, query,
		apt.Date,
		apt.Time,
		apt.Reason,
		apt.Notes,
		apt.Status,
		apt.UpdatedAt,
		apt.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", mapError(err, "appointment"))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound("appointment")
	}

	return nil
}

func (r *appointmentRepository) Delete(ctx context.Context, id int64) error {
	query := `
		DELETE FROM appointments
		WHERE id = $1
	`
	result, err := r.conn(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound("appointment")
	}

	return nil
}

func (r *appointmentRepository) FindActiveAtSlot(ctx context.Context, slot model.Slot, excludeID int64) (*model.Appointment, error) {
	query := selectAppointments + `
		WHERE a.practitioner_id = $1
		AND a.appointment_date = $2
		AND a.appointment_time = $3
		AND a.status <> 'CANCELLED'
		AND a.id <> $4
		LIMIT 1
	`
	var apt model.Appointment
	err := r.conn(ctx).GetContext(ctx, &apt, query, slot.PractitionerID, slot.Date, slot.Time, excludeID)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check slot: %w", err)
	}
	return &apt, nil
}

func (r *appointmentRepository) List(ctx context.Context, filter model.AppointmentFilter, page pagination.Params, sort model.SortOrder) ([]model.Appointment, int, error) {
	where, args := buildWhere(filter)

	total, err := r.count(ctx, where, args)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []model.Appointment{}, 0, nil
	}

	query := selectAppointments + where + orderBy(sort) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, page.Size, page.Offset())

	appointments := []model.Appointment{}
	if err := r.conn(ctx).SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, total, nil
}

func (r *appointmentRepository) ListAll(ctx context.Context, filter model.AppointmentFilter, sort model.SortOrder) ([]model.Appointment, error) {
	where, args := buildWhere(filter)
	query := selectAppointments + where + orderBy(sort)

	appointments := []model.Appointment{}
	if err := r.conn(ctx).SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) Count(ctx context.Context, filter model.AppointmentFilter) (int, error) {
	where, args := buildWhere(filter)
	return r.count(ctx, where, args)
}

func (r *appointmentRepository) count(ctx context.Context, where string, args []interface{}) (int, error) {
	var total int
	query := `SELECT COUNT(*) FROM appointments a` + where
	if err := r.conn(ctx).GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count appointments: %w", err)
	}
	return total, nil
}

// buildWhere renders the filter as a WHERE clause with positional args.
func buildWhere(f model.AppointmentFilter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.PractitionerID != 0 {
		add("a.practitioner_id = $%d", f.PractitionerID)
	}
	if f.RequesterID != 0 {
		add("a.requester_id = $%d", f.RequesterID)
	}
	if f.Status != "" {
		add("a.status = $%d", f.Status)
	}
	if f.ActiveOnly {
		clauses = append(clauses, "a.status <> 'CANCELLED'")
	}
	switch f.Scope {
	case model.TimeScopeUpcoming:
		add("a.appointment_date >= $%d", f.Today)
	case model.TimeScopePast:
		add("a.appointment_date < $%d", f.Today)
	}
	if !f.From.IsZero() {
		add("a.appointment_date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("a.appointment_date <= $%d", f.To)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// orderBy only ever emits whitelisted columns.
func orderBy(s model.SortOrder) string {
	dir := "ASC"
	if s.Dir == model.SortDesc {
		dir = "DESC"
	}
	slot := fmt.Sprintf("a.appointment_date %s, a.appointment_time %s", dir, dir)

	var cols string
	switch s.Field {
	case model.SortByStatus:
		cols = fmt.Sprintf("a.status %s, %s", dir, slot)
	case model.SortByPractitioner:
		cols = fmt.Sprintf("practitioner_name %s, %s", dir, slot)
	case model.SortByRequester:
		cols = fmt.Sprintf("requester_name %s, %s", dir, slot)
	case model.SortByCreatedAt:
		cols = fmt.Sprintf("a.created_at %s", dir)
	default:
		cols = slot
	}
	return " ORDER BY " + cols + ", a.id ASC"
}
