package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/booking-engine/internal/model"
	"github.com/jwalitptl/booking-engine/internal/repository"
	"github.com/jwalitptl/booking-engine/pkg/logger"
	"github.com/jwalitptl/booking-engine/pkg/messaging"
	"github.com/jwalitptl/booking-engine/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

func (c OutboxProcessorConfig) validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("BatchSize must be greater than 0")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("PollInterval must be greater than 0")
	}
	if c.RetryAttempts <= 0 {
		return fmt.Errorf("RetryAttempts must be greater than 0")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("RetryDelay must not be negative")
	}
	return nil
}

// OutboxProcessor relays committed booking events to the broker. Each event
// goes to the channel named by its type.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid outbox processor config: %w", err)
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch claims up to BatchSize pending events and publishes them,
// returning how many were published. Events that still fail after the
// configured attempts are marked FAILED and not retried.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	published := 0
	err := p.repo.WithinTx(ctx, func(ctx context.Context) error {
		events, err := p.repo.GetPendingEventsWithLock(ctx, p.config.BatchSize)
		if err != nil {
			p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "error").Inc()
			return fmt.Errorf("failed to get pending events: %w", err)
		}
		p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "success").Inc()

		for _, event := range events {
			if err := p.processEvent(ctx, event); err != nil {
				p.logger.Error(err, "Failed to process event",
					"event_id", event.ID.String(),
					"event_type", event.EventType)
				continue
			}
			published++
		}
		return nil
	})
	return published, err
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	msg := messaging.Message{
		ID:      event.ID.String(),
		Type:    event.EventType,
		Payload: json.RawMessage(event.Payload),
	}

	attempt := 0
	err := retry(ctx, p.config.RetryAttempts, p.config.RetryDelay, func() error {
		if attempt > 0 {
			p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
		}
		attempt++
		return p.broker.Publish(ctx, event.EventType, msg)
	})

	if err != nil {
		p.metrics.OutboxEventsFailed.Inc()
		p.metrics.BrokerPublishes.WithLabelValues(event.EventType, "error").Inc()
		errStr := err.Error()
		if updateErr := p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusFailed, &errStr); updateErr != nil {
			p.logger.Error(updateErr, "Failed to update event status", "event_id", event.ID.String())
		}
		return err
	}

	p.metrics.OutboxEventsProcessed.Inc()
	p.metrics.BrokerPublishes.WithLabelValues(event.EventType, "success").Inc()
	if err := p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusProcessed, nil); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
		return err
	}

	return nil
}

// retry stops early when ctx is done.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
