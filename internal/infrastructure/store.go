// Package infrastructure selects the storage backend named by configuration.
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/newsletter/internal/health"
	"github.com/ErlanBelekov/newsletter/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/newsletter/internal/infrastructure/sqlite"
	"github.com/ErlanBelekov/newsletter/internal/repository"
	"github.com/ErlanBelekov/newsletter/internal/token"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type StoreOptions struct {
	Driver         string
	DatabaseURL    string
	SQLitePath     string
	AcquireTimeout time.Duration
	OutboxGrace    time.Duration
	Migrate        bool
}

// Store bundles the repositories of one backend. Close releases the
// underlying pool.
type Store struct {
	Subscriptions repository.SubscriptionRepository
	Outbox        repository.OutboxRepository
	Pinger        health.Pinger
	Close         func()
}

func OpenStore(ctx context.Context, opts StoreOptions) (*Store, error) {
	issuer := token.NewIssuer()

	switch opts.Driver {
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, opts.DatabaseURL, opts.AcquireTimeout)
		if err != nil {
			return nil, err
		}
		if opts.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return &Store{
			Subscriptions: postgres.NewSubscriptionRepository(pool, issuer, opts.AcquireTimeout, opts.OutboxGrace),
			Outbox:        postgres.NewOutboxRepository(pool),
			Pinger:        pool,
			Close:         pool.Close,
		}, nil

	case DriverSQLite:
		db, err := sqlite.Open(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Store{
			Subscriptions: sqlite.NewSubscriptionRepository(db, issuer, opts.AcquireTimeout, opts.OutboxGrace),
			Outbox:        sqlite.NewOutboxRepository(db),
			Pinger:        health.PingerFunc(db.PingContext),
			Close:         func() { _ = db.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
