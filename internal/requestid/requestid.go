// Package requestid carries a correlation id through a request or a relay
// cycle so every log line it produces can be joined up.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// MaxLength bounds ids accepted from clients.
const MaxLength = 64

type ctxKey struct{}

func New() string {
	return uuid.NewString()
}

// Valid reports whether a client supplied id is safe to echo into logs and
// response headers: non-empty, at most MaxLength, and limited to
// [A-Za-z0-9._-].
func Valid(id string) bool {
	if id == "" || len(id) > MaxLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns "" if no id is attached.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
