// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment
// variables. All required fields are validated at startup to ensure
// fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Locale selects the directive marker and field labels used when
	// extracting transaction proposals: "id" or "en".
	Locale string

	// Database configuration. Empty means thread persistence is disabled and
	// the in-memory store is used.
	DatabaseURL string

	// NATS configuration. Empty disables event publishing.
	NATSURL string

	// LLM agent configuration
	AnthropicAPIKey string
	AnthropicModel  string
	AgentMaxTokens  int64

	// On-chain configuration
	TokenAddress         string // IDRX token contract
	DemoRecipientAddress string // fallback when the agent names a recipient in prose
	ChainID              int64
	TokenName            string // EIP-712 domain name
	TokenVersion         string // EIP-712 domain version

	// Payment gateway configuration
	PaymentGateway PaymentGatewayConfig
}

// PaymentGatewayConfig controls the 402 payment gate on the chat endpoint.
type PaymentGatewayConfig struct {
	Enabled        bool
	PayToAddress   string        // where authorizations must pay
	FeeAmount      int64         // smallest token unit per chat request
	Network        string        // e.g. "base-sepolia"
	PaymentTimeout time.Duration // authorization validity window
}

// LoadDefaults fills in the safe defaults: the gate is opt-in, the fee is
// 10,000 IDRX units, and authorizations are honored for one hour.
func (c *PaymentGatewayConfig) LoadDefaults() {
	c.Enabled = false
	c.FeeAmount = 10_000
	c.Network = "base-sepolia"
	c.PaymentTimeout = time.Hour
}

// Load reads configuration from environment variables and validates all
// required fields. Returns an error if any required configuration is missing
// or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.Locale = getEnvOrDefault("LOCALE", "id")
	if cfg.Locale != "id" && cfg.Locale != "en" {
		errs = append(errs, fmt.Errorf("LOCALE must be \"id\" or \"en\", got %q", cfg.Locale))
	}

	// Optional infrastructure
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	// LLM agent configuration
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	if cfg.AnthropicAPIKey == "" {
		errs = append(errs, fmt.Errorf("ANTHROPIC_API_KEY is required"))
	}
	cfg.AnthropicModel = getEnvOrDefault("ANTHROPIC_MODEL", "claude-sonnet-4-0")

	maxTokens, err := parseInt64("AGENT_MAX_TOKENS", 1024)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.AgentMaxTokens = maxTokens
	}

	// On-chain configuration
	cfg.TokenAddress = os.Getenv("IDRX_TOKEN_ADDRESS")
	if cfg.TokenAddress == "" {
		errs = append(errs, fmt.Errorf("IDRX_TOKEN_ADDRESS is required"))
	}
	cfg.DemoRecipientAddress = os.Getenv("DEMO_RECIPIENT_ADDRESS")
	cfg.TokenName = getEnvOrDefault("IDRX_TOKEN_NAME", "IDRX")
	cfg.TokenVersion = getEnvOrDefault("IDRX_TOKEN_VERSION", "1")

	chainID, err := parseInt64("CHAIN_ID", 84532) // Base Sepolia
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ChainID = chainID
	}

	// Payment gateway configuration
	cfg.PaymentGateway.LoadDefaults()
	cfg.PaymentGateway.Enabled = os.Getenv("PAYMENT_GATEWAY_ENABLED") == "true"
	cfg.PaymentGateway.PayToAddress = os.Getenv("PAYMENT_GATEWAY_PAY_TO")
	cfg.PaymentGateway.Network = getEnvOrDefault("PAYMENT_GATEWAY_NETWORK", cfg.PaymentGateway.Network)

	feeAmount, err := parseInt64("PAYMENT_GATEWAY_FEE_AMOUNT", cfg.PaymentGateway.FeeAmount)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PaymentGateway.FeeAmount = feeAmount
	}

	timeout, err := parseDuration("PAYMENT_GATEWAY_PAYMENT_TIMEOUT", cfg.PaymentGateway.PaymentTimeout.String())
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PaymentGateway.PaymentTimeout = timeout
	}

	if cfg.PaymentGateway.Enabled && cfg.PaymentGateway.PayToAddress == "" {
		errs = append(errs, fmt.Errorf("PAYMENT_GATEWAY_PAY_TO is required when the payment gateway is enabled"))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.AnthropicAPIKey == "" {
		errs = append(errs, fmt.Errorf("AnthropicAPIKey is required"))
	}

	if c.TokenAddress == "" {
		errs = append(errs, fmt.Errorf("TokenAddress is required"))
	}

	if c.AgentMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("AgentMaxTokens must be positive"))
	}

	if c.PaymentGateway.Enabled {
		if c.PaymentGateway.PayToAddress == "" {
			errs = append(errs, fmt.Errorf("PaymentGateway.PayToAddress is required when enabled"))
		}
		if c.PaymentGateway.FeeAmount <= 0 {
			errs = append(errs, fmt.Errorf("PaymentGateway.FeeAmount must be positive"))
		}
		if c.PaymentGateway.PaymentTimeout < time.Minute {
			errs = append(errs, fmt.Errorf("PaymentGateway.PaymentTimeout must be at least 1 minute"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt64 parses an integer from an environment variable or uses a default.
func parseInt64(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	return v, nil
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, value)
	}
	return duration, nil
}
