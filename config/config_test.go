package config_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unschooling-payment-service/config"
)

func setRequired(t *testing.T) {
	t.Setenv("POSTGRES_USER", "app")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("POSTGRES_DB", "payments")
	t.Setenv("RAZORPAY_KEY_ID", "rzp_test_key")
	t.Setenv("RAZORPAY_KEY_SECRET", "rzp_test_secret")
	t.Setenv("RAZORPAY_WEBHOOK_SECRET", "whsec")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, int64(32), cfg.GatewayMaxInflight)
	assert.Equal(t, "https://api.razorpay.com/v1", cfg.RazorpayBaseURL)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("IDEMPOTENCY_TTL", "not-a-duration")

	cfg, err := config.Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
}

func TestLoad_MissingSecretDoesNotLeakValues(t *testing.T) {
	setRequired(t)
	t.Setenv("RAZORPAY_WEBHOOK_SECRET", "")

	_, err := config.Load(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RAZORPAY_WEBHOOK_SECRET")
	assert.NotContains(t, err.Error(), "rzp_test_secret")
}

type fakeSecrets map[string]map[string]string

func (f fakeSecrets) GetSecretMap(_ context.Context, name string) (map[string]string, error) {
	if m, ok := f[name]; ok {
		return m, nil
	}
	return nil, errors.New("not found")
}

func TestLoad_SecretsManagerOverride(t *testing.T) {
	setRequired(t)
	secrets := fakeSecrets{
		"payments/RAZORPAY": {"RAZORPAY_KEY_SECRET": "from-secrets-manager"},
	}

	cfg, err := config.Load(context.Background(), secrets)
	require.NoError(t, err)
	assert.Equal(t, "from-secrets-manager", cfg.RazorpayKeySecret)
	assert.Equal(t, "rzp_test_key", cfg.RazorpayKeyID)
	assert.Equal(t, "app", cfg.PostgresUser)
}
