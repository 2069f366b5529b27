package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ErlanBelekov/newsletter/internal/domain"
	"github.com/ErlanBelekov/newsletter/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/newsletter/internal/token"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a throwaway database: TEST_DATABASE_URL=postgres://... go test ./...
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, url, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE confirmation_outbox, subscription_tokens, subscriptions`)
	require.NoError(t, err)
	return pool
}

func newSubscriber(t *testing.T, email, name string) domain.NewSubscriber {
	t.Helper()
	ns, err := domain.ParseNewSubscriber(email, name)
	require.NoError(t, err)
	return ns
}

func TestSubscriptionRepository_CreateAndConfirm(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := postgres.NewSubscriptionRepository(pool, token.NewIssuer(), 2*time.Second, 0)

	pending, err := repo.CreatePending(ctx, newSubscriber(t, "khar@gmail.com", "le guin"))
	require.NoError(t, err)
	assert.Len(t, pending.Token, 64)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM subscription_tokens WHERE token_hash = $1`, token.Hash(pending.Token)).Scan(&count))
	assert.Equal(t, 1, count)

	s, err := repo.FindByEmail(ctx, "khar@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingConfirmation, s.Status)
	assert.Equal(t, "le guin", s.Name)

	require.NoError(t, repo.Confirm(ctx, pending.Token))
	require.NoError(t, repo.Confirm(ctx, pending.Token), "confirming twice is not an error")

	s, err = repo.FindByEmail(ctx, "khar@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, s.Status)
}

func TestSubscriptionRepository_UnknownToken(t *testing.T) {
	pool := newTestPool(t)
	repo := postgres.NewSubscriptionRepository(pool, token.NewIssuer(), 2*time.Second, 0)

	err := repo.Confirm(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)

	_, err = repo.FindByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrSubscriberNotFound)
}

func TestOutboxRepository_ClaimLifecycle(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	subs := postgres.NewSubscriptionRepository(pool, token.NewIssuer(), 2*time.Second, 0)
	outbox := postgres.NewOutboxRepository(pool)

	pending, err := subs.CreatePending(ctx, newSubscriber(t, "khar@gmail.com", "le guin"))
	require.NoError(t, err)

	msgs, err := outbox.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, pending.OutboxID, msgs[0].ID)
	assert.Equal(t, pending.Token, msgs[0].Token)
	assert.Equal(t, "khar@gmail.com", msgs[0].Email)
	assert.Equal(t, 1, msgs[0].Attempts)

	// Leased: a second claim sees nothing.
	msgs, err = outbox.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, outbox.MarkDelivered(ctx, pending.OutboxID))

	var tok *string
	require.NoError(t, pool.QueryRow(ctx, `SELECT token FROM confirmation_outbox WHERE id = $1`, pending.OutboxID).Scan(&tok))
	assert.Nil(t, tok)

	n, err := outbox.PurgeDelivered(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
