// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Billing settings
	InvoiceGraceDays int    // Days after period end before an invoice is due
	Currency         string // ISO currency code applied to all amounts
	MaxTopupAmount   string // Upper bound for a single top-up request

	// External collaborators
	MailGatewayURL string // Invoice email gateway endpoint (optional)
	MailFrom       string // From address reported to the gateway
	StripeAPIKey   string // Enables card-payment verification when set

	// Observability
	OTLPEndpoint string // OTLP/gRPC trace collector (optional)

	// Security
	AdminSecret  string // Bootstrap admin API key, seeded into the auth store on start
	RateLimitRPS int
}

// Defaults
const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultInvoiceGraceDays = 7
	DefaultCurrency         = "USD"
	DefaultMaxTopup         = "100000"
	DefaultRateLimit        = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:      os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		InvoiceGraceDays: int(getEnvInt64("INVOICE_GRACE_DAYS", DefaultInvoiceGraceDays)),
		Currency:         getEnv("CURRENCY", DefaultCurrency),
		MaxTopupAmount:   getEnv("MAX_TOPUP_AMOUNT", DefaultMaxTopup),
		MailGatewayURL:   os.Getenv("MAIL_GATEWAY_URL"),
		MailFrom:         getEnv("MAIL_FROM", "billing@skyfare.example"),
		StripeAPIKey:     os.Getenv("STRIPE_API_KEY"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AdminSecret:      os.Getenv("ADMIN_SECRET"),
		RateLimitRPS:     int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.InvoiceGraceDays < 0 {
		return fmt.Errorf("INVOICE_GRACE_DAYS must not be negative")
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be a 3-letter ISO code")
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
