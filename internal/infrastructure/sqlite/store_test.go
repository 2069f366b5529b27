package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ErlanBelekov/newsletter/internal/domain"
	"github.com/ErlanBelekov/newsletter/internal/infrastructure/sqlite"
	"github.com/ErlanBelekov/newsletter/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "newsletter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newSubscriber(t *testing.T, email, name string) domain.NewSubscriber {
	t.Helper()
	ns, err := domain.ParseNewSubscriber(email, name)
	require.NoError(t, err)
	return ns
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestOpen_PragmasApplyToEveryConnection(t *testing.T) {
	db := openTestDB(t)
	// no idle connections: each query below runs on a freshly opened one
	db.SetMaxIdleConns(0)

	for i := range 2 {
		var foreignKeys, busyTimeout int
		require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
		require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
		assert.Equal(t, 1, foreignKeys, "connection %d", i)
		assert.Equal(t, 5000, busyTimeout, "connection %d", i)
	}
}

func TestCreatePending_WritesOneRowPerTable(t *testing.T) {
	db := openTestDB(t)
	repo := sqlite.NewSubscriptionRepository(db, token.NewIssuer(), time.Second, 0)

	pending, err := repo.CreatePending(context.Background(), newSubscriber(t, "khar@gmail.com", "le guin"))
	require.NoError(t, err)
	assert.NotEmpty(t, pending.SubscriberID)
	assert.Len(t, pending.Token, 64)

	assert.Equal(t, 1, countRows(t, db, "subscriptions"))
	assert.Equal(t, 1, countRows(t, db, "subscription_tokens"))
	assert.Equal(t, 1, countRows(t, db, "confirmation_outbox"))

	var storedHash string
	require.NoError(t, db.QueryRow("SELECT token_hash FROM subscription_tokens").Scan(&storedHash))
	assert.Equal(t, token.Hash(pending.Token), storedHash)
	assert.NotEqual(t, pending.Token, storedHash, "raw token must not be stored in the token table")

	s, err := repo.FindByEmail(context.Background(), "khar@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "le guin", s.Name)
	assert.Equal(t, domain.StatusPendingConfirmation, s.Status)
	assert.WithinDuration(t, time.Now(), s.SubscribedAt, time.Minute)
}

func TestConfirm(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := sqlite.NewSubscriptionRepository(db, token.NewIssuer(), time.Second, 0)

	pending, err := repo.CreatePending(ctx, newSubscriber(t, "khar@gmail.com", "le guin"))
	require.NoError(t, err)

	require.NoError(t, repo.Confirm(ctx, pending.Token))
	require.NoError(t, repo.Confirm(ctx, pending.Token), "second confirmation is idempotent")

	s, err := repo.FindByEmail(ctx, "khar@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, s.Status)
	assert.Equal(t, 1, countRows(t, db, "subscriptions"))
}

func TestConfirm_UnknownToken(t *testing.T) {
	db := openTestDB(t)
	repo := sqlite.NewSubscriptionRepository(db, token.NewIssuer(), time.Second, 0)

	err := repo.Confirm(context.Background(), "0000")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestFindByEmail_NotFound(t *testing.T) {
	db := openTestDB(t)
	repo := sqlite.NewSubscriptionRepository(db, token.NewIssuer(), time.Second, 0)

	_, err := repo.FindByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrSubscriberNotFound)
}

func TestCreatePending_DuplicateEmailAllowed(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := sqlite.NewSubscriptionRepository(db, token.NewIssuer(), time.Second, 0)

	_, err := repo.CreatePending(ctx, newSubscriber(t, "khar@gmail.com", "le guin"))
	require.NoError(t, err)
	_, err = repo.CreatePending(ctx, newSubscriber(t, "khar@gmail.com", "le guin"))
	require.NoError(t, err)

	assert.Equal(t, 2, countRows(t, db, "subscriptions"))
}

type fixedIssuer string

func (f fixedIssuer) Issue() (string, error) { return string(f), nil }

func TestCreatePending_TokenCollisionIsConflict(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := sqlite.NewSubscriptionRepository(db, fixedIssuer("abc"), time.Second, 0)

	_, err := repo.CreatePending(ctx, newSubscriber(t, "khar@gmail.com", "le guin"))
	require.NoError(t, err)

	_, err = repo.CreatePending(ctx, newSubscriber(t, "ursula@example.com", "ursula"))
	assert.ErrorIs(t, err, domain.ErrStoreConflict)
	assert.Equal(t, 1, countRows(t, db, "subscriptions"), "failed transaction leaves nothing behind")
}

func TestCreatePending_RollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO subscriptions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO subscription_tokens").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	repo := sqlite.NewSubscriptionRepository(db, token.NewIssuer(), time.Second, 0)
	_, err = repo.CreatePending(context.Background(), newSubscriber(t, "khar@gmail.com", "le guin"))

	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutbox_ClaimLeasesDueMessages(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	subs := sqlite.NewSubscriptionRepository(db, token.NewIssuer(), time.Second, 0)
	outbox := sqlite.NewOutboxRepository(db)

	pending, err := subs.CreatePending(ctx, newSubscriber(t, "khar@gmail.com", "le guin"))
	require.NoError(t, err)

	msgs, err := outbox.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, pending.OutboxID, msgs[0].ID)
	assert.Equal(t, pending.Token, msgs[0].Token)
	assert.Equal(t, "khar@gmail.com", msgs[0].Email)
	assert.Equal(t, "le guin", msgs[0].Name)
	assert.Equal(t, 1, msgs[0].Attempts)

	again, err := outbox.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again, "leased message is not claimed twice")
}

func TestOutbox_GraceDelaysFirstClaim(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	subs := sqlite.NewSubscriptionRepository(db, token.NewIssuer(), time.Second, time.Hour)
	outbox := sqlite.NewOutboxRepository(db)

	_, err := subs.CreatePending(ctx, newSubscriber(t, "khar@gmail.com", "le guin"))
	require.NoError(t, err)

	msgs, err := outbox.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestOutbox_DeliverAndPurge(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	subs := sqlite.NewSubscriptionRepository(db, token.NewIssuer(), time.Second, 0)
	outbox := sqlite.NewOutboxRepository(db)

	pending, err := subs.CreatePending(ctx, newSubscriber(t, "khar@gmail.com", "le guin"))
	require.NoError(t, err)
	require.NoError(t, outbox.MarkDelivered(ctx, pending.OutboxID))

	var tok sql.NullString
	var status string
	require.NoError(t, db.QueryRow("SELECT token, status FROM confirmation_outbox WHERE id = ?", pending.OutboxID).Scan(&tok, &status))
	assert.False(t, tok.Valid, "token is cleared once delivered")
	assert.Equal(t, string(domain.OutboxDelivered), status)

	msgs, err := outbox.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	n, err := outbox.PurgeDelivered(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = outbox.PurgeDelivered(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, countRows(t, db, "confirmation_outbox"))
	assert.Equal(t, 1, countRows(t, db, "subscriptions"))
}

func TestOutbox_RescheduleAndFail(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	subs := sqlite.NewSubscriptionRepository(db, token.NewIssuer(), time.Second, 0)
	outbox := sqlite.NewOutboxRepository(db)

	pending, err := subs.CreatePending(ctx, newSubscriber(t, "khar@gmail.com", "le guin"))
	require.NoError(t, err)

	require.NoError(t, outbox.Reschedule(ctx, pending.OutboxID, "provider unavailable", time.Now().Add(-time.Second)))
	msgs, err := outbox.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].LastError)
	assert.Equal(t, "provider unavailable", *msgs[0].LastError)

	require.NoError(t, outbox.MarkFailed(ctx, pending.OutboxID, "rejected"))
	var status string
	require.NoError(t, db.QueryRow("SELECT status FROM confirmation_outbox WHERE id = ?", pending.OutboxID).Scan(&status))
	assert.Equal(t, string(domain.OutboxFailed), status)
}
