package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/kasralabs/kasra/service/agent"
	"github.com/kasralabs/kasra/service/config"
	"github.com/kasralabs/kasra/service/events"
	"github.com/kasralabs/kasra/service/metrics"
	"github.com/kasralabs/kasra/service/payment"
	"github.com/kasralabs/kasra/service/server"
	"github.com/kasralabs/kasra/service/summary"
)

func main() {
	// Load .env if present; real environments set variables directly
	_ = godotenv.Load()

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"model", cfg.AnthropicModel,
	)

	// Initialize LLM agent
	ag := agent.NewAnthropicAgent(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AgentMaxTokens)

	// Initialize proposal extractor
	locale := summary.LocaleIndonesian
	if cfg.Locale == "en" {
		locale = summary.LocaleEnglish
	}
	extractor := summary.NewExtractor(locale, cfg.DemoRecipientAddress)

	// Initialize payment gate when the gateway is enabled
	var gate *payment.Gate
	if cfg.PaymentGateway.Enabled {
		gate = payment.NewGate(payment.Requirements{
			Scheme:      payment.SchemeExact,
			Network:     cfg.PaymentGateway.Network,
			PayTo:       cfg.PaymentGateway.PayToAddress,
			Asset:       cfg.TokenAddress,
			Amount:      cfg.PaymentGateway.FeeAmount,
			Description: "KASRA chat request fee",
		}, payment.Domain{
			Name:              cfg.TokenName,
			Version:           cfg.TokenVersion,
			ChainID:           cfg.ChainID,
			VerifyingContract: common.HexToAddress(cfg.TokenAddress),
		})
		logger.Info("payment gate initialized",
			"pay_to", cfg.PaymentGateway.PayToAddress,
			"fee", cfg.PaymentGateway.FeeAmount,
			"network", cfg.PaymentGateway.Network,
		)
	}

	// Initialize metrics
	m := metrics.NewMetrics(nil)

	// Initialize NATS publisher if configured
	var publisher events.Publisher
	if cfg.NATSURL != "" {
		p, err := events.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to initialize NATS publisher", "error", err)
			os.Exit(1)
		}
		defer p.Close()
		publisher = p
	} else {
		logger.Info("NATS_URL not set, event publishing disabled")
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, ag, extractor, gate, publisher, m, logger)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
