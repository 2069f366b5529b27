// Package outbox delivers confirmation emails that were not sent, or not
// recorded as sent, while handling the subscription request.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ErlanBelekov/newsletter/internal/domain"
	"github.com/ErlanBelekov/newsletter/internal/email"
	applog "github.com/ErlanBelekov/newsletter/internal/log"
	"github.com/ErlanBelekov/newsletter/internal/metrics"
	"github.com/ErlanBelekov/newsletter/internal/repository"
	"github.com/ErlanBelekov/newsletter/internal/requestid"
)

type Mailer interface {
	SendConfirmation(ctx context.Context, to domain.Email, name domain.Name, link string) error
}

// Locker is implemented by distlock.RedisLock.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Config struct {
	PollInterval  time.Duration
	BatchSize     int
	MaxAttempts   int
	Lease         time.Duration
	PurgeSchedule string
	Retention     time.Duration
}

type Relay struct {
	repo    repository.OutboxRepository
	mailer  Mailer
	lock    Locker
	baseURL string
	cfg     Config
	purge   cron.Schedule
	logger  *slog.Logger
	sem     chan struct{}
	now     func() time.Time
}

// NewRelay returns a relay. lock may be nil when only one relay runs.
func NewRelay(
	repo repository.OutboxRepository,
	mailer Mailer,
	lock Locker,
	baseURL string,
	cfg Config,
	logger *slog.Logger,
) (*Relay, error) {
	purge, err := cron.ParseStandard(cfg.PurgeSchedule)
	if err != nil {
		return nil, fmt.Errorf("parse purge schedule %q: %w", cfg.PurgeSchedule, err)
	}
	return &Relay{
		repo:    repo,
		mailer:  mailer,
		lock:    lock,
		baseURL: baseURL,
		cfg:     cfg,
		purge:   purge,
		logger:  logger.With("component", "outbox_relay"),
		sem:     make(chan struct{}, cfg.BatchSize),
		now:     time.Now,
	}, nil
}

// Start polls until ctx is cancelled. In-flight sends of the current batch
// finish before it returns.
func (r *Relay) Start(ctx context.Context) {
	c := cron.New()
	c.Schedule(r.purge, cron.FuncJob(func() { r.Purge(ctx) }))
	c.Start()
	defer c.Stop()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started",
		"poll_interval", r.cfg.PollInterval,
		"batch_size", r.cfg.BatchSize,
		"max_attempts", r.cfg.MaxAttempts,
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay shut down")
			return
		case <-ticker.C:
			r.processBatch(ctx)
		}
	}
}

func (r *Relay) processBatch(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.OutboxCycleDuration.Observe(time.Since(start).Seconds()) }()

	if r.lock != nil {
		ok, err := r.lock.Acquire(ctx)
		if err != nil {
			r.logger.Warn("acquire relay lock", "error", err)
			return
		}
		if !ok {
			return
		}
		defer func() {
			if err := r.lock.Release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("release relay lock", "error", err)
			}
		}()
	}

	msgs, err := r.repo.Claim(ctx, r.cfg.BatchSize, r.cfg.Lease)
	if err != nil {
		r.logger.Error("claim outbox messages", "error", err)
		return
	}
	if len(msgs) == 0 {
		return
	}

	ctx = applog.WithAttrs(ctx, slog.String("relay_cycle", requestid.New()))
	r.logger.InfoContext(ctx, "claimed outbox messages", "count", len(msgs))

	var wg sync.WaitGroup
	for _, msg := range msgs {
		r.sem <- struct{}{}
		wg.Add(1)
		go func(m *domain.OutboxMessage) {
			defer wg.Done()
			defer func() { <-r.sem }()
			r.deliver(ctx, m)
		}(msg)
	}
	wg.Wait()
}

func (r *Relay) deliver(ctx context.Context, m *domain.OutboxMessage) {
	ctx = applog.WithAttrs(ctx,
		slog.String("outbox_id", m.ID),
		slog.String("subscriber_id", m.SubscriberID),
		slog.Int("attempt", m.Attempts),
	)

	to, name, err := parseRecipient(m)
	if err != nil {
		r.fail(ctx, m, err.Error())
		return
	}

	link := email.ConfirmationLink(r.baseURL, m.Token)
	err = r.mailer.SendConfirmation(ctx, to, name, link)
	if err == nil {
		if err := r.repo.MarkDelivered(ctx, m.ID); err != nil {
			r.logger.ErrorContext(ctx, "mark outbox message delivered", "error", err)
			return
		}
		metrics.OutboxDeliveriesTotal.WithLabelValues("delivered").Inc()
		r.logger.InfoContext(ctx, "confirmation email delivered", "email", applog.RedactEmail(m.Email))
		return
	}

	if errors.Is(err, email.ErrRejected) || m.Attempts >= r.cfg.MaxAttempts {
		r.fail(ctx, m, err.Error())
		return
	}

	retryAt := r.now().Add(retryDelay(m.Attempts - 1))
	if err := r.repo.Reschedule(ctx, m.ID, err.Error(), retryAt); err != nil {
		r.logger.ErrorContext(ctx, "reschedule outbox message", "error", err)
		return
	}
	metrics.OutboxDeliveriesTotal.WithLabelValues("rescheduled").Inc()
	r.logger.WarnContext(ctx, "confirmation email failed, will retry",
		"error", err,
		"max_attempts", r.cfg.MaxAttempts,
		"retry_at", retryAt,
	)
}

func (r *Relay) fail(ctx context.Context, m *domain.OutboxMessage, reason string) {
	if err := r.repo.MarkFailed(ctx, m.ID, reason); err != nil {
		r.logger.ErrorContext(ctx, "mark outbox message failed", "error", err)
		return
	}
	metrics.OutboxDeliveriesTotal.WithLabelValues("failed").Inc()
	r.logger.WarnContext(ctx, "confirmation email permanently failed", "error", reason)
}

// Purge removes delivered messages older than the retention window.
func (r *Relay) Purge(ctx context.Context) {
	n, err := r.repo.PurgeDelivered(ctx, r.now().Add(-r.cfg.Retention))
	if err != nil {
		r.logger.Error("purge delivered outbox messages", "error", err)
		return
	}
	metrics.OutboxPurgedTotal.Add(float64(n))
	if n > 0 {
		r.logger.Info("purged delivered outbox messages", "count", n)
	}
}

func parseRecipient(m *domain.OutboxMessage) (domain.Email, domain.Name, error) {
	if m.Token == "" {
		return domain.Email{}, domain.Name{}, errors.New("outbox message has no token")
	}
	to, err := domain.ParseEmail(m.Email)
	if err != nil {
		return domain.Email{}, domain.Name{}, fmt.Errorf("stored subscriber email: %w", err)
	}
	name, err := domain.ParseName(m.Name)
	if err != nil {
		return domain.Email{}, domain.Name{}, fmt.Errorf("stored subscriber name: %w", err)
	}
	return to, name, nil
}

// retryDelay grows from 30s and is capped at one hour, with +/-25% jitter.
func retryDelay(retryCount int) time.Duration {
	base := 30 * time.Second
	// 30s * 2^7 already exceeds the cap.
	retryCount = min(max(retryCount, 0), 7)
	delay := time.Duration(float64(base) * math.Pow(2, float64(retryCount)))
	delay = min(delay, time.Hour)
	jitter := time.Duration(rand.Int63n(int64(delay/2))) - delay/4
	return delay + jitter
}
