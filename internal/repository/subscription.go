package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/newsletter/internal/domain"
)

// UseCase depends on interface, not concrete implementation.
// Postgres backs production, SQLite backs local runs and store tests.
type SubscriptionRepository interface {
	// CreatePending inserts the subscriber, its token and its outbox message
	// in one transaction. Nothing is visible to readers if any insert fails.
	CreatePending(ctx context.Context, subscriber domain.NewSubscriber) (*domain.PendingSubscription, error)

	// Confirm flips the owning subscriber to confirmed. Confirming twice is not an error.
	// Returns domain.ErrTokenNotFound for an unknown token.
	Confirm(ctx context.Context, rawToken string) error

	// FindByEmail returns the most recent subscriber registered with email.
	FindByEmail(ctx context.Context, email string) (*domain.Subscriber, error)
}

type OutboxRepository interface {
	// Claim leases up to limit due messages: attempts is incremented and
	// next_attempt_at pushed forward by lease so no other relay picks them up.
	Claim(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxMessage, error)
	MarkDelivered(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id, lastError string, retryAt time.Time) error
	MarkFailed(ctx context.Context, id, lastError string) error
	PurgeDelivered(ctx context.Context, olderThan time.Time) (int, error)
}
