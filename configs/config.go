package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var loadEnvOnce sync.Once

func loadEnv() {
	loadEnvOnce.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("Warning: .env file not found, reading from system environment variables")
		}
	})
}

func Config(key string) string {
	loadEnv()
	return os.Getenv(key)
}

type Settings struct {
	Port           string
	DatabaseDriver string
	DatabaseURL    string
	JWTSecret      string
	RedisURL       string

	PlatformCurrency   string
	PayoutCurrency     string
	PlatformFeePercent int64
	WithdrawalMinimums map[string]int64
	OrderTTL           time.Duration

	ExchangeRateAPIKey  string
	ExchangeRateBaseURL string

	StripeAPIBase       string
	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	PayPalAPIBase      string
	PayPalClientID     string
	PayPalClientSecret string
	PayPalWebhookID    string

	KcbAPIBase         string
	KcbTokenURL        string
	KcbAPIKey          string
	KcbAPISecret       string
	KcbAccountNumber   string
	KcbRouteCode       string
	KcbWebhookSecret   string
	KcbTransactionDesc string
	WebhookBaseURL     string

	BrevoAPIKey     string
	EmailSender     string
	EmailSenderName string
	CloudinaryURL   string
	InvoicePDF      bool
}

func Load() Settings {
	return Settings{
		Port:           withDefault("PORT", "8080"),
		DatabaseDriver: withDefault("DATABASE_DRIVER", "postgres"),
		DatabaseURL:    Config("DATABASE_URL"),
		JWTSecret:      Config("JWT_SECRET"),
		RedisURL:       Config("REDIS_URL"),

		PlatformCurrency:   strings.ToUpper(withDefault("PLATFORM_CURRENCY", "USD")),
		PayoutCurrency:     strings.ToUpper(withDefault("PAYOUT_CURRENCY", "USD")),
		PlatformFeePercent: intValue("PLATFORM_FEE_PERCENT", 20),
		WithdrawalMinimums: minimums(withDefault("WITHDRAWAL_MINIMUMS", "USD:1000,VND:250000,KES:100000")),
		OrderTTL:           durationValue("ORDER_TTL", 24*time.Hour),

		ExchangeRateAPIKey:  Config("EXCHANGE_RATE_API_KEY"),
		ExchangeRateBaseURL: withDefault("EXCHANGE_RATE_BASE_URL", "https://v6.exchangerate-api.com/v6"),

		StripeAPIBase:       withDefault("STRIPE_API_BASE_URL", "https://api.stripe.com"),
		StripeSecretKey:     Config("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: Config("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  Config("CHECKOUT_SUCCESS_URL"),
		CheckoutCancelURL:   Config("CHECKOUT_CANCEL_URL"),

		PayPalAPIBase:      withDefault("PAYPAL_API_BASE_URL", "https://api-m.sandbox.paypal.com"),
		PayPalClientID:     Config("PAYPAL_CLIENT_ID"),
		PayPalClientSecret: Config("PAYPAL_CLIENT_SECRET"),
		PayPalWebhookID:    Config("PAYPAL_WEBHOOK_ID"),

		KcbAPIBase:         withDefault("KCB_API_BASE_URL", "https://api.buni.kcbgroup.com/mm/api/request/1.0.0"),
		KcbTokenURL:        withDefault("KCB_TOKEN_URL", "https://api.buni.kcbgroup.com/token?grant_type=client_credentials"),
		KcbAPIKey:          Config("KCB_API_KEY"),
		KcbAPISecret:       Config("KCB_API_SECRET"),
		KcbAccountNumber:   Config("KCB_ACCOUNT_NUMBER"),
		KcbRouteCode:       Config("KCB_ROUTE_CODE"),
		KcbWebhookSecret:   Config("KCB_WEBHOOK_SECRET"),
		KcbTransactionDesc: withDefault("KCB_TRANSACTION_DESC", "Course purchase"),
		WebhookBaseURL:     Config("WEBHOOK_BASE_URL"),

		BrevoAPIKey:     Config("BREVO_API_KEY"),
		EmailSender:     Config("EMAIL_SENDER"),
		EmailSenderName: Config("EMAIL_SENDER_NAME"),
		CloudinaryURL:   Config("CLOUDINARY_URL"),
		InvoicePDF:      Config("INVOICE_PDF") == "true",
	}
}

func withDefault(key, fallback string) string {
	if v := Config(key); v != "" {
		return v
	}
	return fallback
}

func intValue(key string, fallback int64) int64 {
	raw := Config(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("⚠️ Invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return v
}

func durationValue(key string, fallback time.Duration) time.Duration {
	raw := Config(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("⚠️ Invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return v
}

// minimums parses "USD:1000,VND:250000" into minor-unit thresholds.
func minimums(raw string) map[string]int64 {
	out := make(map[string]int64)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		v, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			log.Printf("⚠️ Ignoring withdrawal minimum %q", pair)
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(parts[0]))] = v
	}
	return out
}
