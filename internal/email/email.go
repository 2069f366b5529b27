package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrProviderUnavailable covers network failures, timeouts and provider
	// side faults. Sending again later may succeed.
	ErrProviderUnavailable = errors.New("email provider unavailable")
	// ErrRejected means the provider refused the message itself.
	ErrRejected = errors.New("email rejected by provider")
)

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const (
	ProviderLog    = "log"
	ProviderResend = "resend"
	ProviderSES    = "ses"
)

type Options struct {
	Provider      string
	From          string
	Timeout       time.Duration
	ResendAPIKey  string
	ResendBaseURL string
	AWSRegion     string
	AWSAccessKey  string
	AWSSecretKey  string
}

// NewSender builds the Sender for opts.Provider.
func NewSender(ctx context.Context, opts Options, logger *slog.Logger) (Sender, error) {
	switch opts.Provider {
	case ProviderLog, "":
		return NewLogSender(logger), nil
	case ProviderResend:
		return NewResendSender(opts.ResendAPIKey, opts.From, opts.ResendBaseURL, opts.Timeout)
	case ProviderSES:
		return NewSESSender(ctx, opts.AWSRegion, opts.AWSAccessKey, opts.AWSSecretKey, opts.From, opts.Timeout)
	default:
		return nil, fmt.Errorf("unknown email provider %q", opts.Provider)
	}
}
