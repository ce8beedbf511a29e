package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Global structured logger for the hot decision path. No-op until Init.
	Logger = zap.NewNop()

	violationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "violations_detected_total",
			Help: "Total number of violations detected, by type and source",
		},
		[]string{"type", "source"},
	)

	enforcementActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enforcement_actions_total",
			Help: "Total number of enforcement actions decided, by action",
		},
		[]string{"action"},
	)

	reviewQueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_queued_total",
			Help: "Total number of low-confidence candidates routed to human review",
		},
	)

	decisionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "decision_duration_seconds",
			Help:    "Time spent deciding on a message",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func Init() error {
	var err error
	Logger, err = zap.NewProduction()
	if err != nil {
		return err
	}

	prometheus.MustRegister(violationsTotal)
	prometheus.MustRegister(enforcementActionsTotal)
	prometheus.MustRegister(reviewQueuedTotal)
	prometheus.MustRegister(decisionDuration)

	tp := oteltrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	return nil
}

func RecordViolation(violationType, source string) {
	violationsTotal.WithLabelValues(violationType, source).Inc()
}

func RecordAction(action string) {
	enforcementActionsTotal.WithLabelValues(action).Inc()
}

func RecordReviewQueued() {
	reviewQueuedTotal.Inc()
}

// StartDecision returns a function recording the decision duration under the
// given terminal status.
func StartDecision() func(status string) {
	start := time.Now()
	return func(status string) {
		decisionDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}

// MetricsServer exposes /metrics; it is a lifecycle component.
type MetricsServer struct {
	addr   string
	server *http.Server
}

func NewMetricsServer(addr string) *MetricsServer {
	return &MetricsServer{addr: addr}
}

func (m *MetricsServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	m.server = &http.Server{Addr: m.addr, Handler: mux}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	return nil
}

func (m *MetricsServer) Stop(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
