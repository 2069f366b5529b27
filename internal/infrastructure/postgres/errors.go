package postgres

import (
	"errors"
	"fmt"

	"github.com/ErlanBelekov/newsletter/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// classify attaches a store error class to a driver error. Anything that is
// not a constraint violation is treated as the store being unavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %w", domain.ErrStoreConflict, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
