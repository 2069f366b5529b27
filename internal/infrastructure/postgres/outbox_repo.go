package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/newsletter/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) Claim(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxMessage, error) {
	// FOR UPDATE SKIP LOCKED keeps two relays from leasing the same message.
	rows, err := r.pool.Query(ctx, `
		WITH claimed AS (
			UPDATE confirmation_outbox
			SET    attempts        = attempts + 1,
			       next_attempt_at = NOW() + make_interval(secs => $2)
			WHERE id IN (
				SELECT id FROM confirmation_outbox
				WHERE  status          = 'pending'
				  AND  next_attempt_at <= NOW()
				ORDER BY next_attempt_at ASC
				LIMIT $1
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, subscriber_id, token, status, attempts,
			          next_attempt_at, last_error, created_at, delivered_at
		)
		SELECT c.id, c.subscriber_id, s.email, s.name, COALESCE(c.token, ''), c.status,
		       c.attempts, c.next_attempt_at, c.last_error, c.created_at, c.delivered_at
		FROM   claimed c
		JOIN   subscriptions s ON s.id = c.subscriber_id
		ORDER BY c.next_attempt_at ASC`,
		limit, lease.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", classify(err))
	}
	defer rows.Close()

	var msgs []*domain.OutboxMessage
	for rows.Next() {
		var m domain.OutboxMessage
		if err := rows.Scan(
			&m.ID, &m.SubscriberID, &m.Email, &m.Name, &m.Token, &m.Status,
			&m.Attempts, &m.NextAttemptAt, &m.LastError, &m.CreatedAt, &m.DeliveredAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", classify(err))
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", classify(err))
	}
	return msgs, nil
}

func (r *OutboxRepository) MarkDelivered(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE confirmation_outbox
		SET    status = 'delivered', token = NULL, last_error = NULL, delivered_at = NOW()
		WHERE  id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", classify(err))
	}
	return nil
}

func (r *OutboxRepository) Reschedule(ctx context.Context, id, lastError string, retryAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE confirmation_outbox
		SET    last_error = $2, next_attempt_at = $3
		WHERE  id = $1 AND status = 'pending'`, id, lastError, retryAt)
	if err != nil {
		return fmt.Errorf("reschedule outbox message: %w", classify(err))
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id, lastError string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE confirmation_outbox
		SET    status = 'failed', token = NULL, last_error = $2
		WHERE  id = $1 AND status = 'pending'`, id, lastError)
	if err != nil {
		return fmt.Errorf("mark failed: %w", classify(err))
	}
	return nil
}

func (r *OutboxRepository) PurgeDelivered(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM confirmation_outbox
		WHERE  status = 'delivered' AND delivered_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge outbox: %w", classify(err))
	}
	return int(tag.RowsAffected()), nil
}
