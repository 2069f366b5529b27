package email

import (
	"context"
	"errors"
	"time"

	"github.com/ErlanBelekov/newsletter/internal/metrics"
)

type instrumentedSender struct {
	next     Sender
	provider string
}

// WithMetrics records the outcome and latency of every send.
func WithMetrics(next Sender, provider string) Sender {
	return &instrumentedSender{next: next, provider: provider}
}

func (s *instrumentedSender) Send(ctx context.Context, msg Message) error {
	start := time.Now()
	err := s.next.Send(ctx, msg)
	metrics.EmailSendDuration.WithLabelValues(s.provider).Observe(time.Since(start).Seconds())

	outcome := "accepted"
	switch {
	case err == nil:
	case errors.Is(err, ErrRejected):
		outcome = "rejected"
	default:
		outcome = "unavailable"
	}
	metrics.EmailsSentTotal.WithLabelValues(s.provider, outcome).Inc()
	return err
}
