package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/newsletter/internal/domain"
	"github.com/ErlanBelekov/newsletter/internal/token"
	"github.com/google/uuid"
)

type SubscriptionRepository struct {
	db             *sql.DB
	issuer         token.Issuer
	acquireTimeout time.Duration
	outboxGrace    time.Duration
}

func NewSubscriptionRepository(db *sql.DB, issuer token.Issuer, acquireTimeout, outboxGrace time.Duration) *SubscriptionRepository {
	return &SubscriptionRepository{
		db:             db,
		issuer:         issuer,
		acquireTimeout: acquireTimeout,
		outboxGrace:    outboxGrace,
	}
}

func (r *SubscriptionRepository) CreatePending(ctx context.Context, s domain.NewSubscriber) (*domain.PendingSubscription, error) {
	rawToken, err := r.issuer.Issue()
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	pending := &domain.PendingSubscription{
		SubscriberID: uuid.NewString(),
		Token:        rawToken,
		OutboxID:     uuid.NewString(),
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO subscriptions (id, email, name, subscribed_at, status) VALUES (?, ?, ?, ?, ?)`,
		pending.SubscriberID, s.Email.String(), s.Name.String(), formatTime(now), domain.StatusPendingConfirmation,
	); err != nil {
		return nil, fmt.Errorf("insert subscriber: %w", classify(err))
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO subscription_tokens (token_hash, subscriber_id) VALUES (?, ?)`,
		token.Hash(rawToken), pending.SubscriberID,
	); err != nil {
		return nil, fmt.Errorf("insert token: %w", classify(err))
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO confirmation_outbox (id, subscriber_id, token, status, attempts, next_attempt_at, created_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		pending.OutboxID, pending.SubscriberID, rawToken, domain.OutboxPending,
		formatTime(now.Add(r.outboxGrace)), formatTime(now),
	); err != nil {
		return nil, fmt.Errorf("insert outbox message: %w", classify(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", classify(err))
	}
	return pending, nil
}

func (r *SubscriptionRepository) Confirm(ctx context.Context, rawToken string) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx,
		`UPDATE subscriptions SET status = ?
		 WHERE id = (SELECT subscriber_id FROM subscription_tokens WHERE token_hash = ?)`,
		domain.StatusConfirmed, token.Hash(rawToken),
	)
	if err != nil {
		return fmt.Errorf("confirm subscriber: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", classify(err))
	}
	if n == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

func (r *SubscriptionRepository) FindByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var (
		s            domain.Subscriber
		subscribedAt string
	)
	err = conn.QueryRowContext(ctx,
		`SELECT id, email, name, subscribed_at, status FROM subscriptions
		 WHERE email = ? ORDER BY subscribed_at DESC LIMIT 1`, email,
	).Scan(&s.ID, &s.Email, &s.Name, &subscribedAt, &s.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("scan subscriber: %w", classify(err))
	}
	if s.SubscribedAt, err = parseTime(subscribedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// conn waits at most acquireTimeout for the single connection.
func (r *SubscriptionRepository) conn(ctx context.Context) (*sql.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, r.acquireTimeout)
	defer cancel()
	conn, err := r.db.Conn(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", classify(err))
	}
	return conn, nil
}
