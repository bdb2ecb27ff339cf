package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jwalitptl/booking-engine/internal/config"
	"github.com/jwalitptl/booking-engine/internal/handler"
	"github.com/jwalitptl/booking-engine/internal/lock"
	"github.com/jwalitptl/booking-engine/internal/repository"
	"github.com/jwalitptl/booking-engine/internal/repository/cache"
	"github.com/jwalitptl/booking-engine/internal/repository/memory"
	"github.com/jwalitptl/booking-engine/internal/repository/postgres"
	"github.com/jwalitptl/booking-engine/pkg/logger"
	"github.com/jwalitptl/booking-engine/pkg/metrics"
)

// app holds the process-wide dependencies shared by every subcommand.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	loc      *time.Location
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	db    *sqlx.DB
	redis *goredis.Client

	appointments  repository.AppointmentRepository
	practitioners repository.PractitionerDirectory
	requesters    repository.RequesterDirectory
	outbox        repository.OutboxRepository
}

func newApp(ctx context.Context, withRedis bool) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Booking.TimeZone()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app{
		cfg: cfg,
		log: logger.NewLogger(&logger.Config{
			Level:      logger.ParseLevel(cfg.Log.Level),
			TimeFormat: time.RFC3339,
			JSON:       cfg.Log.JSON,
		}),
		loc:      loc,
		registry: registry,
		metrics:  metrics.NewMetrics(registry, "booking", "engine"),
	}

	if err := a.openStorage(ctx); err != nil {
		a.close()
		return nil, err
	}

	if withRedis || cfg.Booking.LockBackend == "redis" {
		opts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		opts.MaxRetries = cfg.Redis.MaxRetries
		opts.MaxRetryBackoff = cfg.Redis.RetryBackoff
		opts.PoolSize = cfg.Redis.PoolSize
		opts.MinIdleConns = cfg.Redis.MinIdleConns
		a.redis = goredis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}
	return a, nil
}

func (a *app) openStorage(ctx context.Context) error {
	var practitioners repository.PractitionerDirectory
	switch a.cfg.Storage.Driver {
	case "memory":
		a.log.Warn("using in-memory storage; data is lost on exit")
		store := memory.NewStore()
		if path := a.cfg.Storage.Seed; path != "" {
			seed, err := memory.LoadSeed(path)
			if err != nil {
				return err
			}
			if err := store.Load(seed); err != nil {
				return err
			}
			a.log.Info("loaded memory seed", "file", path, "practitioners", len(seed.Practitioners), "requesters", len(seed.Requesters))
		} else {
			a.log.Warn("no storage.seed configured; the memory directory is empty")
		}
		a.appointments = store.Appointments()
		practitioners = store.Practitioners()
		a.requesters = store.Requesters()
		a.outbox = store.Outbox()
	default:
		db, err := postgres.NewDB(ctx, a.cfg.Database)
		if err != nil {
			return err
		}
		a.db = db
		a.appointments = postgres.NewAppointmentRepository(db)
		practitioners = postgres.NewPractitionerDirectory(db)
		a.requesters = postgres.NewRequesterDirectory(db)
		a.outbox = postgres.NewOutboxRepository(db)
	}
	a.practitioners = cache.NewPractitionerDirectory(practitioners, a.cfg.Cache.ScheduleTTL, a.cfg.Cache.CleanupInterval)
	return nil
}

func (a *app) locker() lock.Locker {
	if a.cfg.Booking.LockBackend == "redis" && a.redis != nil {
		return lock.NewRedis(a.redis, a.cfg.Booking.LockTTL)
	}
	return lock.NewLocal()
}

func (a *app) readinessDeps() map[string]handler.Pinger {
	deps := map[string]handler.Pinger{}
	if a.db != nil {
		deps["database"] = handler.PingFunc(a.db.PingContext)
	}
	if a.redis != nil {
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}
	return deps
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error(err, "failed to close redis client")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error(err, "failed to close database")
		}
	}
}
