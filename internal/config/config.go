package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven configuration.
type Config struct {
	Addr        string
	Env         string
	DatabaseURL string
	JWTSecret   string
	CORSOrigins string

	Razorpay RazorpayConfig

	OTLPEndpoint string
	LogFile      string
}

// RazorpayConfig carries the payment provider credentials. KeySecret never
// leaves the server; KeyID is handed to the frontend with each intent.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration
}

// Load reads a .env file when present and then the process environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:        getEnv("APP_ADDR", ":8080"),
		Env:         getEnv("APP_ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		CORSOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
		Razorpay: RazorpayConfig{
			KeyID:     os.Getenv("RAZORPAY_KEY_ID"),
			KeySecret: os.Getenv("RAZORPAY_KEY_SECRET"),
			BaseURL:   strings.TrimRight(getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1"), "/"),
			Timeout:   getDuration("PAYMENT_PROVIDER_TIMEOUT", 10*time.Second),
		},
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogFile:      os.Getenv("LOG_FILE"),
	}
}

// Validate reports every missing required setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.Razorpay.KeyID == "" || c.Razorpay.KeySecret == "" {
		errs = append(errs, errors.New("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET must both be set"))
	}
	if c.Razorpay.Timeout <= 0 {
		errs = append(errs, errors.New("PAYMENT_PROVIDER_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return d
}
