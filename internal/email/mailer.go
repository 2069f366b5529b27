package email

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/osteele/liquid"

	"github.com/ErlanBelekov/newsletter/internal/domain"
)

const confirmationSubject = "Welcome!"

const confirmationHTML = `<p>Welcome to our newsletter, {{ name | escape }}!</p>
<p>Click <a href="{{ link | escape }}">here</a> to confirm your subscription.</p>`

const confirmationText = `Welcome to our newsletter, {{ name }}!
Visit {{ link }} to confirm your subscription.`

// ConfirmationLink builds the URL a subscriber follows to confirm.
func ConfirmationLink(baseURL, rawToken string) string {
	return strings.TrimRight(baseURL, "/") + "/subscriptions/confirm?subscription_token=" + url.QueryEscape(rawToken)
}

// ConfirmationMailer renders and sends the confirmation email. Templates are
// parsed once at construction.
type ConfirmationMailer struct {
	sender  Sender
	timeout time.Duration
	html    *liquid.Template
	text    *liquid.Template
}

func NewConfirmationMailer(sender Sender, timeout time.Duration) (*ConfirmationMailer, error) {
	engine := liquid.NewEngine()

	html, err := engine.ParseString(confirmationHTML)
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	text, err := engine.ParseString(confirmationText)
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}

	return &ConfirmationMailer{
		sender:  sender,
		timeout: timeout,
		html:    html,
		text:    text,
	}, nil
}

// SendConfirmation returns once the provider has accepted the message, or
// after the configured timeout.
func (m *ConfirmationMailer) SendConfirmation(ctx context.Context, to domain.Email, name domain.Name, link string) error {
	bindings := map[string]any{
		"name": name.String(),
		"link": link,
	}

	htmlBody, err := m.html.RenderString(bindings)
	if err != nil {
		return fmt.Errorf("render html body: %w", err)
	}
	textBody, err := m.text.RenderString(bindings)
	if err != nil {
		return fmt.Errorf("render text body: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	return m.sender.Send(sendCtx, Message{
		To:      to.String(),
		Subject: confirmationSubject,
		HTML:    htmlBody,
		Text:    textBody,
	})
}
