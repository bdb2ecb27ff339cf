package postgres

import (
	"context"
	"fmt"

	"github.com/jwalitptl/booking-engine/internal/model"
)

func (r *practitionerDirectory) GetByID(ctx context.Context, id int64) (*model.Practitioner, error) {
	query := `
		SELECT id, first_name, last_name, specialty
		FROM practitioners
		WHERE id = $1
	`
	var p model.Practitioner
	if err := r.conn(ctx).GetContext(ctx, &p, query, id); err != nil {
		return nil, fmt.Errorf("failed to get practitioner: %w", mapError(err, "practitioner"))
	}

	windows := `
		SELECT practitioner_id, day_of_week, start_time, end_time, is_open
		FROM practitioner_schedule_windows
		WHERE practitioner_id = $1
		ORDER BY day_of_week, start_time
	`
	p.Schedule = model.WeeklySchedule{}
	if err := r.conn(ctx).SelectContext(ctx, &p.Schedule, windows, id); err != nil {
		return nil, fmt.Errorf("failed to get practitioner schedule: %w", err)
	}
	return &p, nil
}

func (r *requesterDirectory) GetByID(ctx context.Context, id int64) (*model.Requester, error) {
	query := `
		SELECT id, first_name, last_name
		FROM requesters
		WHERE id = $1
	`
	var rq model.Requester
	if err := r.conn(ctx).GetContext(ctx, &rq, query, id); err != nil {
		return nil, fmt.Errorf("failed to get requester: %w", mapError(err, "requester"))
	}
	return &rq, nil
}
