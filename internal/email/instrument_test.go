package email_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/ErlanBelekov/newsletter/internal/email"
	"github.com/ErlanBelekov/newsletter/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWithMetrics_CountsOutcomes(t *testing.T) {
	provider := t.Name()
	rejecting := &fakeSender{send: func(context.Context, email.Message) error {
		return fmt.Errorf("%w: invalid recipient", email.ErrRejected)
	}}

	s := email.WithMetrics(&fakeSender{}, provider)
	_ = s.Send(context.Background(), email.Message{To: "khar@gmail.com"})
	_ = email.WithMetrics(rejecting, provider).Send(context.Background(), email.Message{To: "khar@gmail.com"})

	if got := testutil.ToFloat64(metrics.EmailsSentTotal.WithLabelValues(provider, "accepted")); got != 1 {
		t.Errorf("accepted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.EmailsSentTotal.WithLabelValues(provider, "rejected")); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
}
