package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/booking-engine/pkg/messaging/redis"
	"github.com/jwalitptl/booking-engine/pkg/worker"
)

func newRelayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Relay committed booking events from the outbox to Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.close()

			if err := startRelay(ctx, a); err != nil {
				return err
			}
			<-ctx.Done()
			a.log.Info("relay stopped")
			return nil
		},
	}
}

// startRelay runs the outbox processor until ctx is done.
func startRelay(ctx context.Context, a *app) error {
	cfg := a.cfg
	broker := redis.NewBroker(a.redis, redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, a.log.Zerolog())

	processor, err := worker.NewOutboxProcessor(a.outbox, broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
	}, a.log, a.metrics)
	if err != nil {
		return err
	}

	a.log.Info("starting outbox relay", "batch_size", cfg.Outbox.BatchSize, "poll_interval", cfg.Outbox.PollInterval)
	go processor.Start(ctx)
	return nil
}
