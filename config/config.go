package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	Port        string
	Environment string

	RedisURL string
	CartTTL  time.Duration

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string

	// Payment gateways
	Currency            string
	StripeSecretKey     string
	StripeWebhookSecret string
	PayPalAPIBase       string
	PayPalClientID      string
	PayPalClientSecret  string

	// Where the user lands after checkout
	FrontendURL string
	// Where PayPal sends the buyer back to us
	PublicBaseURL string

	// Receipts
	AdminEmail string

	// Payment event fan-out
	PaymentSNSTopicARN string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("APP_ENV", "development"),

		RedisURL: getEnv("REDIS_URL", "redis://redis:6379"),
		CartTTL:  time.Hour * 24 * 7,

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		Currency:            getEnv("PAYMENT_CURRENCY", "usd"),
		StripeSecretKey:     os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PayPalAPIBase:       getEnv("PAYPAL_API_BASE", "https://api-m.sandbox.paypal.com"),
		PayPalClientID:      os.Getenv("PAYPAL_CLIENT_ID"),
		PayPalClientSecret:  os.Getenv("PAYPAL_CLIENT_SECRET"),

		FrontendURL:   getEnv("FRONTEND_URL", "http://localhost:3000"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),

		AdminEmail: os.Getenv("ORDER_NOTIFICATION_EMAIL"),

		PaymentSNSTopicARN: getEnv("PAYMENT_SNS_TOPIC_ARN", "arn:aws:sns:eu-west-2:000000000000:payment-events"),
	}

	if cfg.PostgresUser == "" || cfg.PostgresPassword == "" || cfg.PostgresDB == "" {
		return nil, fmt.Errorf("missing required Postgres environment variables")
	}
	if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
		return nil, fmt.Errorf("missing required Stripe environment variables")
	}
	if cfg.PayPalClientID == "" || cfg.PayPalClientSecret == "" {
		return nil, fmt.Errorf("missing required PayPal environment variables")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
