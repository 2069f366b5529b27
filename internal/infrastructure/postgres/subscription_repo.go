package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/newsletter/internal/domain"
	"github.com/ErlanBelekov/newsletter/internal/token"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubscriptionRepository struct {
	pool           *pgxpool.Pool
	issuer         token.Issuer
	acquireTimeout time.Duration
	outboxGrace    time.Duration
}

func NewSubscriptionRepository(pool *pgxpool.Pool, issuer token.Issuer, acquireTimeout, outboxGrace time.Duration) *SubscriptionRepository {
	return &SubscriptionRepository{
		pool:           pool,
		issuer:         issuer,
		acquireTimeout: acquireTimeout,
		outboxGrace:    outboxGrace,
	}
}

// CreatePending writes the subscriber, its token and the outbox message in a
// single transaction. The outbox message is due after outboxGrace so the
// request that created it gets the first delivery attempt.
func (r *SubscriptionRepository) CreatePending(ctx context.Context, s domain.NewSubscriber) (*domain.PendingSubscription, error) {
	rawToken, err := r.issuer.Issue()
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, r.acquireTimeout)
	tx, err := r.pool.Begin(acquireCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", classify(err))
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	pending := &domain.PendingSubscription{
		SubscriberID: uuid.NewString(),
		Token:        rawToken,
		OutboxID:     uuid.NewString(),
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO subscriptions (id, email, name, subscribed_at, status)
		VALUES ($1, $2, $3, $4, 'pending_confirmation')`,
		pending.SubscriberID, s.Email.String(), s.Name.String(), now,
	); err != nil {
		return nil, fmt.Errorf("insert subscriber: %w", classify(err))
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO subscription_tokens (token_hash, subscriber_id) VALUES ($1, $2)`,
		token.Hash(rawToken), pending.SubscriberID,
	); err != nil {
		return nil, fmt.Errorf("insert token: %w", classify(err))
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO confirmation_outbox (id, subscriber_id, token, status, next_attempt_at, created_at)
		VALUES ($1, $2, $3, 'pending', $4, $5)`,
		pending.OutboxID, pending.SubscriberID, rawToken, now.Add(r.outboxGrace), now,
	); err != nil {
		return nil, fmt.Errorf("insert outbox message: %w", classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", classify(err))
	}
	return pending, nil
}

// Confirm is a single assignment, not a read-modify-write, so concurrent
// confirmations of the same token converge without a lost update.
func (r *SubscriptionRepository) Confirm(ctx context.Context, rawToken string) error {
	conn, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
		UPDATE subscriptions
		SET    status = 'confirmed'
		WHERE  id = (SELECT subscriber_id FROM subscription_tokens WHERE token_hash = $1)`,
		token.Hash(rawToken),
	)
	if err != nil {
		return fmt.Errorf("confirm subscriber: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

func (r *SubscriptionRepository) FindByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
		SELECT id, email, name, subscribed_at, status
		FROM   subscriptions
		WHERE  email = $1
		ORDER BY subscribed_at DESC
		LIMIT 1`, email)

	var s domain.Subscriber
	if err := row.Scan(&s.ID, &s.Email, &s.Name, &s.SubscribedAt, &s.Status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("scan subscriber: %w", classify(err))
	}
	return &s, nil
}

// acquire bounds the wait for a pooled connection so exhaustion fails fast.
func (r *SubscriptionRepository) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, r.acquireTimeout)
	defer cancel()
	conn, err := r.pool.Acquire(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", classify(err))
	}
	return conn, nil
}
