package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	AuthJWTSecret string

	OTLPEndpoint string

	PayPal PayPalConfig

	RedisAddr            string
	RedisPassword        string
	WebhookRatePerMinute int
	WebhookBurst         int

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
}

// PayPalConfig carries the billing provider credentials used for
// webhook signature verification.
type PayPalConfig struct {
	APIBase      string
	ClientID     string
	ClientSecret string
	WebhookID    string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:       getenv("APP_SERVICE", "fortimind-subscriptions"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),
		PayPal: PayPalConfig{
			APIBase:      strings.TrimRight(getenv("PAYPAL_API_BASE", "https://api-m.sandbox.paypal.com"), "/"),
			ClientID:     strings.TrimSpace(getenv("PAYPAL_CLIENT_ID", "")),
			ClientSecret: strings.TrimSpace(getenv("PAYPAL_CLIENT_SECRET", "")),
			WebhookID:    strings.TrimSpace(getenv("PAYPAL_WEBHOOK_ID", "")),
		},
		RedisAddr:            strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:        getenv("REDIS_PASSWORD", ""),
		WebhookRatePerMinute: getenvInt("WEBHOOK_RATE_PER_MINUTE", 120),
		WebhookBurst:         getenvInt("WEBHOOK_BURST", 30),
		DBType:               getenv("DATABASE_TYPE", "postgres"),
		DBHost:               getenv("DATABASE_HOST", "localhost"),
		DBPort:               getenv("DATABASE_PORT", "5432"),
		DBName:               getenv("DATABASE_NAME", "fortimind"),
		DBUser:               getenv("DATABASE_USER", "postgres"),
		DBPassword:           getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:            getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:        getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:        getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime:    getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
