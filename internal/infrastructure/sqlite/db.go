// Package sqlite is a single-process subscription store for local
// development and tests. Production deployments use the postgres store.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ErlanBelekov/newsletter/internal/domain"
)

//go:embed schema.sql
var schema string

// Fixed width so that lexical order of stored timestamps is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const (
	constraintPrimaryKey = 1555
	constraintUnique     = 2067
)

// Pragmas are part of the DSN so that every connection the pool opens gets
// them, including replacements for discarded ones.
const dsnPragmas = "_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// Open connects to the database at path and applies the schema. Writes are
// serialised through a single connection.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?"+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		switch coder.Code() {
		case constraintPrimaryKey, constraintUnique:
			return fmt.Errorf("%w: %w", domain.ErrStoreConflict, err)
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
