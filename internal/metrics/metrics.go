// Package metrics exposes prometheus collectors for the transfer service and
// the fraud worker.
package metrics

import (
	"strconv"
	"time"

	"remit/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Saga records transfer saga metrics. It satisfies transfer.MetricsCollector.
type Saga struct {
	transfers        *prometheus.CounterVec
	fraudWait        prometheus.Histogram
	mutationAttempts *prometheus.CounterVec
	publishFailures  prometheus.Counter
	reconciled       *prometheus.CounterVec
}

func NewSaga(reg prometheus.Registerer) *Saga {
	f := promauto.With(reg)
	return &Saga{
		transfers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transfers_total",
			Help: "Transfer status changes by resulting status",
		}, []string{"status"}),
		fraudWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fraud_check_wait_seconds",
			Help:    "Time spent waiting for a fraud verdict",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		mutationAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_mutation_attempts_total",
			Help: "Ledger mutation attempts by result",
		}, []string{"result"}),
		publishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "outcome_publish_failures_total",
			Help: "Outcome events that could not be published",
		}),
		reconciled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciled_transfers_total",
			Help: "Transfers moved by the reconciler, by resulting status",
		}, []string{"status"}),
	}
}

func (m *Saga) RecordTransfer(status models.TransferStatus) {
	m.transfers.WithLabelValues(string(status)).Inc()
}

func (m *Saga) RecordFraudWait(d time.Duration) {
	m.fraudWait.Observe(d.Seconds())
}

func (m *Saga) RecordMutationAttempt(result string) {
	m.mutationAttempts.WithLabelValues(result).Inc()
}

func (m *Saga) RecordPublishFailure() {
	m.publishFailures.Inc()
}

func (m *Saga) RecordReconciled(status models.TransferStatus) {
	m.reconciled.WithLabelValues(string(status)).Inc()
}

// Detector counts fraud worker activity. It satisfies fraud.DetectorMetrics.
type Detector struct {
	processed  prometheus.Counter
	detections prometheus.Counter
	errors     prometheus.Counter
	duplicates prometheus.Counter
}

func NewDetector(reg prometheus.Registerer) *Detector {
	f := promauto.With(reg)
	return &Detector{
		processed: f.NewCounter(prometheus.CounterOpts{
			Name: "messages_processed_total",
			Help: "Fraud check requests processed",
		}),
		detections: f.NewCounter(prometheus.CounterOpts{
			Name: "fraud_detections_total",
			Help: "Transfers flagged as fraudulent",
		}),
		errors: f.NewCounter(prometheus.CounterOpts{
			Name: "processing_errors_total",
			Help: "Fraud check requests that failed processing",
		}),
		duplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "duplicate_messages_total",
			Help: "Fraud check requests seen more than once",
		}),
	}
}

func (m *Detector) MessageProcessed() { m.processed.Inc() }
func (m *Detector) FraudDetected()    { m.detections.Inc() }
func (m *Detector) ProcessingError()  { m.errors.Inc() }
func (m *Detector) DuplicateMessage() { m.duplicates.Inc() }

// HTTP records request counts and latency per route.
type HTTP struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewHTTP(reg prometheus.Registerer) *HTTP {
	f := promauto.With(reg)
	return &HTTP{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "route", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "route"}),
	}
}

// Middleware observes every request that passes through it. Routes are
// labelled by their pattern, not the raw path.
func (m *HTTP) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		m.requests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.latency.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}
