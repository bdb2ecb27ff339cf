package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-engine/internal/model"
)

// Create joins the caller's transaction when ctx carries one, so the event
// commits or rolls back with the ledger write that produced it.
func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	query := `
		INSERT INTO outbox_events (
			id, event_type, aggregate_id, payload, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $6
		)
	`
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.Status = model.OutboxStatusPending
	event.CreatedAt = time.Now().UTC()
	event.UpdatedAt = event.CreatedAt

	_, err := r.conn(ctx).ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.AggregateID,
		[]byte(event.Payload),
		event.Status,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

func (r *outboxRepository) GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	query := `
		SELECT id, event_type, aggregate_id, payload, status, error_message,
			   retry_count, created_at, processed_at, updated_at
		FROM outbox_events
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	var events []*model.OutboxEvent
	if err := r.conn(ctx).SelectContext(ctx, &events, query, model.OutboxStatusPending, limit); err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	return events, nil
}

func (r *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error {
	query := `
		UPDATE outbox_events
		SET status = $1,
			error_message = $2,
			retry_count = CASE WHEN $1 = 'PROCESSED' THEN retry_count ELSE retry_count + 1 END,
			processed_at = CASE WHEN $1 = 'PROCESSED' THEN NOW() ELSE processed_at END,
			updated_at = NOW()
		WHERE id = $3
	`
	result, err := r.conn(ctx).ExecContext(ctx, query, status, errorMessage, id)
	if err != nil {
		return fmt.Errorf("failed to update outbox event: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound("outbox event")
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = 'PROCESSED'
		AND processed_at < $1
	`
	result, err := r.conn(ctx).ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return result.RowsAffected()
}
