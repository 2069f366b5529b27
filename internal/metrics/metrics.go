package metrics

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ErlanBelekov/newsletter/internal/health"
)

var (
	// Workflow metrics

	SubscriptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsletter",
		Name:      "subscriptions_total",
		Help:      "Subscription requests, by outcome.",
	}, []string{"outcome"})

	ConfirmationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsletter",
		Name:      "confirmations_total",
		Help:      "Confirmation requests, by outcome.",
	}, []string{"outcome"})

	// Email metrics

	EmailsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsletter",
		Name:      "emails_sent_total",
		Help:      "Emails handed to the provider, by provider and outcome.",
	}, []string{"provider", "outcome"})

	EmailSendDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "newsletter",
		Name:      "email_send_duration_seconds",
		Help:      "Time until the provider accepted or refused a message.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"provider"})

	// Outbox relay metrics

	OutboxDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsletter",
		Name:      "outbox_deliveries_total",
		Help:      "Outbox messages processed by the relay, by outcome.",
	}, []string{"outcome"})

	OutboxCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "newsletter",
		Name:      "outbox_cycle_duration_seconds",
		Help:      "Time taken for one relay cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	OutboxPurgedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "newsletter",
		Name:      "outbox_purged_total",
		Help:      "Delivered outbox messages removed by the retention job.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "newsletter",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsletter",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		SubscriptionsTotal,
		ConfirmationsTotal,
		EmailsSentTotal,
		EmailSendDuration,
		OutboxDeliveriesTotal,
		OutboxCycleDuration,
		OutboxPurgedTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

type prober interface {
	Liveness(ctx context.Context) health.HealthResult
	Readiness(ctx context.Context) health.HealthResult
}

// NewServer serves /metrics plus liveness and readiness probes on a port
// separate from the public API.
func NewServer(addr string, checker prober) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Readiness(r.Context()))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	if result.Status != health.StatusUp {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(result)
}
