package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/booking-engine/internal/handler"
	appointmentHandler "github.com/jwalitptl/booking-engine/internal/handler/appointment"
	"github.com/jwalitptl/booking-engine/internal/middleware"
	"github.com/jwalitptl/booking-engine/internal/repository"
	"github.com/jwalitptl/booking-engine/internal/router"
	"github.com/jwalitptl/booking-engine/internal/service/appointment"
	"github.com/jwalitptl/booking-engine/internal/service/availability"
	"github.com/jwalitptl/booking-engine/internal/service/calendar"
	"github.com/jwalitptl/booking-engine/internal/service/query"
	"github.com/jwalitptl/booking-engine/internal/worker"
	"github.com/jwalitptl/booking-engine/pkg/auth"
)

func newServeCmd() *cobra.Command {
	var withRelay bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), withRelay)
		},
	}
	cmd.Flags().BoolVar(&withRelay, "with-relay", false, "also run the outbox relay in this process")
	return cmd
}

func runServe(parent context.Context, withRelay bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, withRelay)
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	resolver := availability.NewResolver(a.practitioners, a.appointments,
		availability.WithLocation(a.loc),
		availability.WithSlotLength(cfg.Booking.SlotDuration()),
		availability.WithMetrics(a.metrics),
	)
	var outbox repository.OutboxRepository
	if cfg.Outbox.Enabled {
		outbox = a.outbox
	}
	ledger := appointment.NewService(appointment.Deps{
		Appointments:  a.appointments,
		Practitioners: a.practitioners,
		Requesters:    a.requesters,
		Outbox:        outbox,
		Resolver:      resolver,
		Locker:        a.locker(),
		Logger:        a.log,
		Metrics:       a.metrics,
	})
	queries := query.NewService(a.appointments, query.WithLocation(a.loc))
	calendars := calendar.NewService(a.appointments)

	tokens := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	routerConfig := router.RouterConfig{
		Mode:           cfg.Server.Mode,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSConfig:     corsConfig,
		MetricsPrefix:  "booking_http",
		Registerer:     a.registry,
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerConfig.RateBurst = cfg.RateLimit.Burst
	}

	r, err := router.NewRouter(
		middleware.NewAuthMiddleware(tokens),
		appointmentHandler.NewHandler(ledger, queries, calendars, resolver),
		handler.NewHandler(a.registry, a.readinessDeps()),
		routerConfig,
	)
	if err != nil {
		return err
	}
	r.Setup()

	if withRelay {
		if err := startRelay(ctx, a); err != nil {
			return err
		}
	}
	if cfg.Outbox.Retention > 0 {
		cleanup := worker.NewOutboxCleanupWorker(a.outbox, cfg.Outbox.Retention, time.Hour, a.log)
		go cleanup.Start(ctx)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("starting server", "port", cfg.Server.Port, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	a.log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.log.Info("server exited properly")
	return nil
}
