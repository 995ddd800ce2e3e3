package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv string
	Port   string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayBaseURL       string
	GatewayTimeout        time.Duration
	GatewayMaxInflight    int64

	RedisURL       string        // empty disables the cross-instance lock
	IdempotencyTTL time.Duration // receipt -> order index retention
	LockTTL        time.Duration

	PaymentSNSTopicARN   string
	KafkaBrokers         []string
	KafkaTopic           string
	OrderRequestQueueURL string // SQS queue URL for queued order requests

	CloudWatchEnabled   bool
	CloudWatchNamespace string
	AppLogGroup         string
	AuditLogGroup       string

	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// SecretSource reads a JSON secret as a flat map.
type SecretSource interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// LoadConfig reads .env (if present) and the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:                getEnv("APP_ENV", "development"),
		Port:                  getEnv("PORT", "8091"),
		PostgresUser:          os.Getenv("POSTGRES_USER"),
		PostgresPassword:      os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:            os.Getenv("POSTGRES_DB"),
		PostgresHost:          getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:          getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:       getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone:      getEnv("POSTGRES_TIMEZONE", "Asia/Kolkata"),
		RazorpayKeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		RazorpayBaseURL:       getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1"),
		GatewayTimeout:        getDuration("GATEWAY_TIMEOUT", 15*time.Second),
		GatewayMaxInflight:    int64(getInt("GATEWAY_MAX_INFLIGHT", 32)),
		RedisURL:              os.Getenv("REDIS_URL"),
		IdempotencyTTL:        getDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		LockTTL:               getDuration("IDEMPOTENCY_LOCK_TTL", 30*time.Second),
		PaymentSNSTopicARN:    os.Getenv("PAYMENT_SNS_TOPIC_ARN"),
		KafkaBrokers:          getList("KAFKA_BROKERS"),
		KafkaTopic:            getEnv("KAFKA_TOPIC", "plan-payment-events"),
		OrderRequestQueueURL:  os.Getenv("ORDER_REQUEST_QUEUE_URL"),
		CloudWatchEnabled:     os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchNamespace:   getEnv("CLOUDWATCH_NAMESPACE", "Unschooling"),
		AppLogGroup:           getEnv("CLOUDWATCH_LOG_GROUP", "/unschooling/payment-service"),
		AuditLogGroup:         getEnv("AUDIT_LOG_GROUP", "/unschooling/payment-audit"),
		RateLimitRPS:          getFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:        getInt("RATE_LIMIT_BURST", 20),
		AllowedOrigins:        getList("CORS_ALLOWED_ORIGINS"),
		RequestTimeout:        getDuration("REQUEST_TIMEOUT", 60*time.Second),
	}

	return cfg, nil
}

// Load is LoadConfig plus the Secrets Manager override and validation.
func Load(ctx context.Context, secrets SecretSource) (*Config, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if secrets != nil {
		cfg.ApplySecrets(ctx, secrets)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplySecrets overrides DB and gateway credentials from Secrets Manager.
// Missing secrets keep the environment values.
func (c *Config) ApplySecrets(ctx context.Context, secrets SecretSource) {
	if m, err := secrets.GetSecretMap(ctx, "payments/DB_CREDENTIALS"); err == nil {
		override(&c.PostgresUser, m["POSTGRES_USER"])
		override(&c.PostgresPassword, m["POSTGRES_PASSWORD"])
		override(&c.PostgresDB, m["POSTGRES_DB"])
		override(&c.PostgresHost, m["POSTGRES_HOST"])
		override(&c.PostgresPort, m["POSTGRES_PORT"])
	}
	if m, err := secrets.GetSecretMap(ctx, "payments/RAZORPAY"); err == nil {
		override(&c.RazorpayKeyID, m["RAZORPAY_KEY_ID"])
		override(&c.RazorpayKeySecret, m["RAZORPAY_KEY_SECRET"])
		override(&c.RazorpayWebhookSecret, m["RAZORPAY_WEBHOOK_SECRET"])
	}
}

// Validate reports the first missing required setting. Secret values are
// never included in the message.
func (c *Config) Validate() error {
	required := []struct {
		name, value string
	}{
		{"POSTGRES_USER", c.PostgresUser},
		{"POSTGRES_PASSWORD", c.PostgresPassword},
		{"POSTGRES_DB", c.PostgresDB},
		{"RAZORPAY_KEY_ID", c.RazorpayKeyID},
		{"RAZORPAY_KEY_SECRET", c.RazorpayKeySecret},
		{"RAZORPAY_WEBHOOK_SECRET", c.RazorpayWebhookSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("missing required environment variable %s", r.name)
		}
	}
	if c.GatewayMaxInflight <= 0 {
		return fmt.Errorf("GATEWAY_MAX_INFLIGHT must be positive")
	}
	return nil
}

// UseSecretsManager reports whether AWS_USE_SECRETS asks for the override.
func UseSecretsManager() bool {
	return os.Getenv("AWS_USE_SECRETS") == "true"
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && f > 0 {
		return f
	}
	return fallback
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
