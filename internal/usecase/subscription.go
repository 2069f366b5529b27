package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/newsletter/internal/domain"
	"github.com/ErlanBelekov/newsletter/internal/email"
	applog "github.com/ErlanBelekov/newsletter/internal/log"
	"github.com/ErlanBelekov/newsletter/internal/metrics"
	"github.com/ErlanBelekov/newsletter/internal/repository"
)

type ConfirmationMailer interface {
	SendConfirmation(ctx context.Context, to domain.Email, name domain.Name, link string) error
}

type SubscribeInput struct {
	Name  string
	Email string
}

type SubscriptionUsecase struct {
	subs    repository.SubscriptionRepository
	outbox  repository.OutboxRepository
	mailer  ConfirmationMailer
	baseURL string
	logger  *slog.Logger
}

func NewSubscriptionUsecase(
	subs repository.SubscriptionRepository,
	outbox repository.OutboxRepository,
	mailer ConfirmationMailer,
	baseURL string,
	logger *slog.Logger,
) *SubscriptionUsecase {
	return &SubscriptionUsecase{
		subs:    subs,
		outbox:  outbox,
		mailer:  mailer,
		baseURL: baseURL,
		logger:  logger.With("component", "subscription_usecase"),
	}
}

// Subscribe validates the input, stores a pending subscriber together with
// its token and outbox message, then makes the first delivery attempt.
// A failed send is reported to the caller but stays queued for the relay.
func (u *SubscriptionUsecase) Subscribe(ctx context.Context, in SubscribeInput) error {
	ns, err := domain.ParseNewSubscriber(in.Email, in.Name)
	if err != nil {
		metrics.SubscriptionsTotal.WithLabelValues("invalid_input").Inc()
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	log := u.logger.With("email", applog.RedactEmail(ns.Email.String()))

	pending, err := u.subs.CreatePending(ctx, ns)
	if err != nil {
		log.ErrorContext(ctx, "failed to store pending subscriber", "error", err)
		metrics.SubscriptionsTotal.WithLabelValues("persistence_failed").Inc()
		return fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, err)
	}
	log = log.With("subscriber_id", pending.SubscriberID)

	link := email.ConfirmationLink(u.baseURL, pending.Token)
	if err := u.mailer.SendConfirmation(ctx, ns.Email, ns.Name, link); err != nil {
		log.WarnContext(ctx, "confirmation email not sent, left for relay", "error", err)
		metrics.SubscriptionsTotal.WithLabelValues("notification_failed").Inc()
		return fmt.Errorf("%w: %w", domain.ErrNotificationFailed, err)
	}

	// The email is out, so record it even if the client has gone away.
	if err := u.outbox.MarkDelivered(context.WithoutCancel(ctx), pending.OutboxID); err != nil {
		log.WarnContext(ctx, "failed to mark confirmation delivered, relay may resend", "error", err)
	}

	log.InfoContext(ctx, "subscriber pending confirmation")
	metrics.SubscriptionsTotal.WithLabelValues("created").Inc()
	return nil
}

// Confirm redeems a token. Confirming an already confirmed subscriber
// succeeds the same way as the first time.
func (u *SubscriptionUsecase) Confirm(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		metrics.ConfirmationsTotal.WithLabelValues("invalid_token").Inc()
		return domain.ErrInvalidToken
	}

	if err := u.subs.Confirm(ctx, rawToken); err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			metrics.ConfirmationsTotal.WithLabelValues("invalid_token").Inc()
			return domain.ErrInvalidToken
		}
		u.logger.ErrorContext(ctx, "failed to confirm subscriber", "error", err)
		metrics.ConfirmationsTotal.WithLabelValues("persistence_failed").Inc()
		return fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, err)
	}

	metrics.ConfirmationsTotal.WithLabelValues("confirmed").Inc()
	return nil
}

// FindSubscriber looks up the most recent subscriber for an address.
func (u *SubscriptionUsecase) FindSubscriber(ctx context.Context, rawEmail string) (*domain.Subscriber, error) {
	addr, err := domain.ParseEmail(rawEmail)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	s, err := u.subs.FindByEmail(ctx, addr.String())
	if err != nil {
		if errors.Is(err, domain.ErrSubscriberNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, err)
	}
	return s, nil
}
