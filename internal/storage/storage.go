// Package storage opens the repositories selected by STORAGE_DRIVER:
// Postgres (pgx, goose migrations) or the in-memory store.
package storage

import (
	"context"
	"fmt"
	"time"

	automationrepo "leadflow_backend/internal/automation/repository"
	"leadflow_backend/internal/automation/service"
	"leadflow_backend/internal/eventlog"
	eventrepo "leadflow_backend/internal/eventlog/repository"
	"leadflow_backend/internal/followup"
	followuprepo "leadflow_backend/internal/followup/repository"
	identityrepo "leadflow_backend/internal/identity/repository"
	identityservice "leadflow_backend/internal/identity/service"
	"leadflow_backend/internal/leads/assignment"
	leadrepo "leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/storage/memory"
	visitrepo "leadflow_backend/internal/visits/repository"
	visitservice "leadflow_backend/internal/visits/service"
	"leadflow_backend/migrations"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Users is the user storage shared by identity and lead assignment.
type Users interface {
	identityservice.Repository
	assignment.Users
}

// Facts is the fact log: written by the recorder, read by reporting.
type Facts interface {
	eventlog.Store
	eventlog.FactStore
}

// Stores bundles every repository of the service.
type Stores struct {
	Leads       leadrepo.LeadRepository
	Users       Users
	Automations service.Repository
	FollowUps   followup.JobRepository
	Facts       Facts
	Visits      visitservice.Repository
	// Health pings the backing database.
	Health interface {
		Ping(ctx context.Context) error
	}
}

type options struct {
	migrate bool
}

// Option tweaks Open.
type Option func(*options)

// WithMigrations applies pending goose migrations after connecting.
func WithMigrations() Option {
	return func(o *options) { o.migrate = true }
}

// Config is what Open reads.
type Config interface {
	config.StorageConfig
	config.DatabaseConfig
}

// Open connects the configured driver. The returned close function
// releases the connection pool.
func Open(ctx context.Context, cfg Config, log *logger.Logger, opts ...Option) (Stores, func(), error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	switch cfg.GetStorageDriver() {
	case DriverMemory:
		log.Warn("using in-memory storage; data is lost on restart")
		return Memory(memory.New()), func() {}, nil
	case DriverPostgres, "":
	default:
		return Stores{}, nil, fmt.Errorf("unknown storage driver %q", cfg.GetStorageDriver())
	}

	if cfg.GetDatabaseURL() == "" {
		return Stores{}, nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		return Stores{}, nil, fmt.Errorf("connect database: %w", err)
	}
	log.Info("database connection established")

	if o.migrate {
		if err := db.RunMigrations(ctx, pool, migrations.FS); err != nil {
			pool.Close()
			return Stores{}, nil, err
		}
		log.Info("database migrations complete")
	}

	return Postgres(pool), pool.Close, nil
}

// Postgres wires the pgx repositories on pool.
func Postgres(pool *pgxpool.Pool) Stores {
	return Stores{
		Leads:       leadrepo.New(pool),
		Users:       identityrepo.New(pool),
		Automations: automationrepo.New(pool),
		FollowUps:   followuprepo.New(pool),
		Facts:       eventrepo.New(pool),
		Visits:      visitrepo.New(pool),
		Health:      pool,
	}
}

// Memory wires the in-memory repositories on store.
func Memory(store *memory.Store) Stores {
	return Stores{
		Leads:       store.Leads(),
		Users:       store.Users(),
		Automations: store.Automations(),
		FollowUps:   store.FollowUps(),
		Facts:       store.Facts(),
		Visits:      store.Visits(),
		Health:      store,
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		delay := baseDelay * time.Duration(attempt)
		log.Warn("retrying after failure", "operation", name, "attempt", attempt, "delay", delay, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, lastErr)
}
