package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ErlanBelekov/newsletter/internal/domain"
)

type OutboxRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db, now: time.Now}
}

// Claim leases up to limit due messages by pushing their next attempt out by
// lease. With one connection the select and update cannot interleave with
// another claim in this process.
func (r *OutboxRepository) Claim(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxMessage, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	now := r.now().UTC()
	rows, err := tx.QueryContext(ctx, `
		SELECT o.id, o.subscriber_id, s.email, s.name, COALESCE(o.token, ''), o.status,
		       o.attempts, o.next_attempt_at, o.last_error, o.created_at, o.delivered_at
		FROM   confirmation_outbox o
		JOIN   subscriptions s ON s.id = o.subscriber_id
		WHERE  o.status = ? AND o.next_attempt_at <= ?
		ORDER BY o.next_attempt_at ASC
		LIMIT ?`,
		domain.OutboxPending, formatTime(now), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select due messages: %w", classify(err))
	}

	var msgs []*domain.OutboxMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate outbox: %w", classify(err))
	}
	rows.Close()

	leaseUntil := now.Add(lease)
	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE confirmation_outbox SET attempts = attempts + 1, next_attempt_at = ? WHERE id = ?`,
			formatTime(leaseUntil), m.ID,
		); err != nil {
			return nil, fmt.Errorf("lease message %s: %w", m.ID, classify(err))
		}
		m.Attempts++
		m.NextAttemptAt = leaseUntil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", classify(err))
	}
	return msgs, nil
}

func (r *OutboxRepository) MarkDelivered(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE confirmation_outbox
		 SET status = ?, token = NULL, last_error = NULL, delivered_at = ?
		 WHERE id = ? AND status = ?`,
		domain.OutboxDelivered, formatTime(r.now()), id, domain.OutboxPending,
	)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", classify(err))
	}
	return nil
}

func (r *OutboxRepository) Reschedule(ctx context.Context, id, lastError string, retryAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE confirmation_outbox SET last_error = ?, next_attempt_at = ? WHERE id = ? AND status = ?`,
		lastError, formatTime(retryAt), id, domain.OutboxPending,
	)
	if err != nil {
		return fmt.Errorf("reschedule outbox message: %w", classify(err))
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id, lastError string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE confirmation_outbox SET status = ?, token = NULL, last_error = ? WHERE id = ? AND status = ?`,
		domain.OutboxFailed, lastError, id, domain.OutboxPending,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", classify(err))
	}
	return nil
}

func (r *OutboxRepository) PurgeDelivered(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM confirmation_outbox WHERE status = ? AND delivered_at < ?`,
		domain.OutboxDelivered, formatTime(olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("purge outbox: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", classify(err))
	}
	return int(n), nil
}

func scanMessage(rows *sql.Rows) (*domain.OutboxMessage, error) {
	var (
		m             domain.OutboxMessage
		nextAttemptAt string
		createdAt     string
		lastError     sql.NullString
		deliveredAt   sql.NullString
	)
	if err := rows.Scan(
		&m.ID, &m.SubscriberID, &m.Email, &m.Name, &m.Token, &m.Status,
		&m.Attempts, &nextAttemptAt, &lastError, &createdAt, &deliveredAt,
	); err != nil {
		return nil, fmt.Errorf("scan outbox message: %w", classify(err))
	}

	var err error
	if m.NextAttemptAt, err = parseTime(nextAttemptAt); err != nil {
		return nil, err
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if lastError.Valid {
		m.LastError = &lastError.String
	}
	if deliveredAt.Valid {
		t, err := parseTime(deliveredAt.String)
		if err != nil {
			return nil, err
		}
		m.DeliveredAt = &t
	}
	return &m, nil
}
