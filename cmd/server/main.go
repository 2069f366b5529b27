package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/newsletter/config"
	"github.com/ErlanBelekov/newsletter/internal/distlock"
	"github.com/ErlanBelekov/newsletter/internal/email"
	"github.com/ErlanBelekov/newsletter/internal/health"
	"github.com/ErlanBelekov/newsletter/internal/infrastructure"
	ctxlog "github.com/ErlanBelekov/newsletter/internal/log"
	"github.com/ErlanBelekov/newsletter/internal/metrics"
	"github.com/ErlanBelekov/newsletter/internal/outbox"
	httptransport "github.com/ErlanBelekov/newsletter/internal/transport/http"
	"github.com/ErlanBelekov/newsletter/internal/transport/http/handler"
	"github.com/ErlanBelekov/newsletter/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	store, err := infrastructure.OpenStore(ctx, infrastructure.StoreOptions{
		Driver:         cfg.StoreDriver,
		DatabaseURL:    cfg.DatabaseURL,
		SQLitePath:     cfg.SQLitePath,
		AcquireTimeout: cfg.DBAcquireTimeout,
		OutboxGrace:    cfg.OutboxGrace,
		Migrate:        cfg.MigrateOnStart,
	})
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer store.Close()

	logger.Info("store ready", "driver", cfg.StoreDriver)

	// Email
	sender, err := email.NewSender(ctx, email.Options{
		Provider:      cfg.EmailProvider,
		From:          cfg.EmailFrom,
		Timeout:       cfg.EmailTimeout,
		ResendAPIKey:  cfg.ResendAPIKey,
		ResendBaseURL: cfg.ResendBaseURL,
		AWSRegion:     cfg.AWSRegion,
		AWSAccessKey:  cfg.AWSAccessKeyID,
		AWSSecretKey:  cfg.AWSSecretAccessKey,
	}, logger)
	if err != nil {
		stop()
		log.Fatalf("email: %v", err)
	}
	mailer, err := email.NewConfirmationMailer(email.WithMetrics(sender, cfg.EmailProvider), cfg.EmailTimeout)
	if err != nil {
		stop()
		log.Fatalf("email templates: %v", err)
	}

	// Subscriptions
	subscriptionUsecase := usecase.NewSubscriptionUsecase(store.Subscriptions, store.Outbox, mailer, cfg.ConfirmationBaseURL, logger)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionUsecase, logger)

	var adminHandler *handler.AdminHandler
	if cfg.AdminJWTSecret != "" {
		adminHandler = handler.NewAdminHandler(subscriptionUsecase, logger)
	}

	metrics.Register()
	deps := map[string]health.Pinger{"store": store.Pinger}

	// Outbox relay
	var lock outbox.Locker
	if cfg.RedisURL != "" {
		client, err := distlock.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			stop()
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		lock = distlock.NewRedisLock(client, "newsletter:outbox-relay", cfg.OutboxLease())
		deps["redis"] = health.PingerFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	}

	relayDone := make(chan struct{})
	if cfg.RelayInProcess {
		relay, err := outbox.NewRelay(store.Outbox, mailer, lock, cfg.ConfirmationBaseURL, outbox.Config{
			PollInterval:  cfg.OutboxPollInterval,
			BatchSize:     cfg.OutboxBatchSize,
			MaxAttempts:   cfg.OutboxMaxAttempts,
			Lease:         cfg.OutboxLease(),
			PurgeSchedule: cfg.OutboxPurgeSchedule,
			Retention:     cfg.OutboxRetention,
		}, logger)
		if err != nil {
			stop()
			log.Fatalf("relay: %v", err)
		}
		go func() {
			defer close(relayDone)
			relay.Start(ctx)
		}()
	} else {
		close(relayDone)
	}

	checker := health.NewChecker(deps, logger, prometheus.DefaultRegisterer)

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httptransport.NewRouter(logger, subscriptionHandler, adminHandler, []byte(cfg.AdminJWTSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	select {
	case <-relayDone:
	case <-shutdownCtx.Done():
		logger.Warn("outbox relay did not stop in time")
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
