package domain

import (
	"errors"
	"time"
)

var (
	ErrStoreUnavailable   = errors.New("subscription store unavailable")
	ErrStoreConflict      = errors.New("subscription store conflict")
	ErrTokenNotFound      = errors.New("subscription token not found")
	ErrSubscriberNotFound = errors.New("subscriber not found")
)

// Workflow outcomes. Handlers map each of these to exactly one status code.
var (
	ErrInvalidInput       = errors.New("invalid subscription input")
	ErrPersistenceFailed  = errors.New("failed to persist subscription")
	ErrNotificationFailed = errors.New("failed to send confirmation email")
	ErrInvalidToken       = errors.New("confirmation link is invalid or expired")
)

type Status string

const (
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusConfirmed           Status = "confirmed"
)

type Subscriber struct {
	ID           string
	Email        string
	Name         string
	SubscribedAt time.Time
	Status       Status
}

// PendingSubscription is what CreatePending hands back to the registration
// workflow. Token is the raw credential; it is never persisted as-is in the
// token table.
type PendingSubscription struct {
	SubscriberID string
	Token        string
	OutboxID     string
}
