package email

import (
	"context"
	"log/slog"

	applog "github.com/ErlanBelekov/newsletter/internal/log"
)

// LogSender logs emails instead of sending them. Used in ENV=local.
// Bodies are not logged since they carry the confirmation token.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "email")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "confirmation email (local dev)",
		"to", applog.RedactEmail(msg.To),
		"subject", msg.Subject,
	)
	return nil
}
