package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// LLM Agent Metrics
	agentRequestsTotal   *prometheus.CounterVec
	agentRequestDuration *prometheus.HistogramVec

	// Payment Gate Metrics
	paymentChallengesTotal    *prometheus.CounterVec
	paymentVerificationsTotal *prometheus.CounterVec

	// Proposal Metrics
	proposalsExtractedTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// Event Publishing Metrics
	eventsPublished      *prometheus.CounterVec
	eventPublishDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// LLM Agent Metrics
		agentRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_requests_total",
				Help: "Total number of LLM agent requests by model and status",
			},
			[]string{"model", "status"},
		),
		agentRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_request_duration_seconds",
				Help:    "Duration of LLM agent requests in seconds",
				Buckets: []float64{0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"model"},
		),

		// Payment Gate Metrics
		paymentChallengesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_challenges_total",
				Help: "Total number of 402 payment challenges issued",
			},
			[]string{"reason"},
		),
		paymentVerificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_verifications_total",
				Help: "Total number of payment header verifications by outcome",
			},
			[]string{"status"},
		),

		// Proposal Metrics
		proposalsExtractedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proposals_extracted_total",
				Help: "Total number of transaction proposals extracted from replies",
			},
			[]string{"category"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// Event Publishing Metrics
		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_published_total",
				Help: "Total number of events published",
			},
			[]string{"subject", "status"},
		),
		eventPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "event_publish_duration_seconds",
				Help:    "Duration of event publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Agent metric helpers

// RecordAgentRequest records an LLM agent request with duration.
func (m *Metrics) RecordAgentRequest(model, status string, duration float64) {
	m.agentRequestsTotal.WithLabelValues(model, status).Inc()
	m.agentRequestDuration.WithLabelValues(model).Observe(duration)
}

// Payment gate metric helpers

// RecordPaymentChallenge records a 402 challenge being issued.
func (m *Metrics) RecordPaymentChallenge(reason string) {
	m.paymentChallengesTotal.WithLabelValues(reason).Inc()
}

// RecordPaymentVerification records the outcome of a payment header check.
func (m *Metrics) RecordPaymentVerification(status string) {
	m.paymentVerificationsTotal.WithLabelValues(status).Inc()
}

// Proposal metric helpers

// RecordProposalExtracted records a transaction proposal extracted from a reply.
func (m *Metrics) RecordProposalExtracted(category string) {
	m.proposalsExtractedTotal.WithLabelValues(category).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// Event publishing metric helpers

// RecordEventPublish records an event publish operation.
func (m *Metrics) RecordEventPublish(subject, status string, duration float64) {
	m.eventsPublished.WithLabelValues(subject, status).Inc()
	m.eventPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
