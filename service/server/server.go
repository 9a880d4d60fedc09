package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kasralabs/kasra/service/agent"
	"github.com/kasralabs/kasra/service/config"
	"github.com/kasralabs/kasra/service/events"
	"github.com/kasralabs/kasra/service/metrics"
	"github.com/kasralabs/kasra/service/payment"
	"github.com/kasralabs/kasra/service/summary"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server for the assistant service.
type Server struct {
	addr      string
	cfg       *config.Config
	agent     agent.Agent
	extractor *summary.Extractor
	gate      *payment.Gate
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The gate is optional - if nil, the chat endpoint is not payment gated.
// The publisher is optional - if nil, events are not published.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, cfg *config.Config, ag agent.Agent, extractor *summary.Extractor, gate *payment.Gate, publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:      addr,
		cfg:       cfg,
		agent:     ag,
		extractor: extractor,
		gate:      gate,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Chat route
	chatHandler := handleChat(s.agent, s.extractor, s.gate, s.publisher, s.metrics, s.cfg, s.logger)
	if s.metrics != nil {
		mux.Handle("POST /api/v1/chat", metrics.HTTPMetricsMiddleware(s.metrics, "/api/v1/chat")(chatHandler))
	} else {
		mux.Handle("POST /api/v1/chat", chatHandler)
	}

	// Payment requirements route, lets clients inspect the fee before chatting
	if s.gate != nil {
		mux.Handle("GET /api/v1/payment-requirements", handlePaymentRequirements(s.gate, s.logger))
		s.logger.Info("payment gateway enabled",
			"pay_to", s.cfg.PaymentGateway.PayToAddress,
			"fee", s.cfg.PaymentGateway.FeeAmount,
		)
	} else {
		s.logger.Info("payment gateway disabled, chat endpoint is open")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	// Wrap mux with CORS middleware
	handler := corsMiddleware(mux)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // model calls can be slow
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers for all requests
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+payment.HeaderPayment)
		w.Header().Set("Access-Control-Expose-Headers", "WWW-Authenticate, "+payment.HeaderChallenge+", "+payment.HeaderRequestID)
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
