package domain

import "time"

type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxDelivered OutboxStatus = "delivered"
	OutboxFailed    OutboxStatus = "failed"
)

// OutboxMessage is an undelivered confirmation email, written in the same
// transaction as the subscriber it belongs to.
type OutboxMessage struct {
	ID            string
	SubscriberID  string
	Email         string
	Name          string
	Token         string
	Status        OutboxStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     *string
	CreatedAt     time.Time
	DeliveredAt   *time.Time
}
