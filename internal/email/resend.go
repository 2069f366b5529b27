package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// ResendSender sends emails via the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender talks to the public Resend API unless baseURL is set.
func NewResendSender(apiKey, from, baseURL string, timeout time.Duration) (*ResendSender, error) {
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: &statusTransport{next: http.DefaultTransport},
	}
	client := resend.NewCustomClient(httpClient, apiKey)

	if baseURL != "" {
		base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse resend base url: %w", err)
		}
		client.BaseURL = base
	}

	return &ResendSender{client: client, from: from}, nil
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}
	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		return classifyResendError(err)
	}
	return nil
}

// errProviderStatus is a 5xx answer from the provider. The resend client
// reports non-2xx responses as bare strings, so the status is captured in
// the transport before the client sees the response.
type errProviderStatus struct {
	code int
}

func (e *errProviderStatus) Error() string {
	return fmt.Sprintf("provider responded %d %s", e.code, http.StatusText(e.code))
}

type statusTransport struct {
	next http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		return nil, &errProviderStatus{code: resp.StatusCode}
	}
	return resp, nil
}

// classifyResendError treats 5xx, throttling and transport failures as
// transient. Remaining errors are 4xx refusals of the message.
func classifyResendError(err error) error {
	var netErr net.Error
	var statusErr *errProviderStatus
	switch {
	case errors.As(err, &statusErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, resend.ErrRateLimit),
		errors.As(err, &netErr):
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
}
