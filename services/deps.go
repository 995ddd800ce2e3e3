package services

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"unschooling-payment-service/apperrors"
	"unschooling-payment-service/models"
	aws_pkg "unschooling-payment-service/pkg/aws"
)

// SignatureVerifier checks a checkout callback signature.
type SignatureVerifier interface {
	Verify(orderID, paymentID, signature string) bool
}

// Locker serializes work on a key, possibly across instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// ReceiptIndex is a fast receipt -> order id lookup in front of the database.
type ReceiptIndex interface {
	GetOrderID(ctx context.Context, receipt string) (string, bool, error)
	PutOrderID(ctx context.Context, receipt, orderID string) error
}

// MetricsRecorder is the subset of the CloudWatch client the services use.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordLatency(ctx context.Context, metricName string, duration time.Duration, dimensions map[string]string) error
}

// Publisher announces payment lifecycle events. Implementations must not
// fail the payment flow; see events.LoggingPublisher.
type Publisher interface {
	Publish(ctx context.Context, event models.PaymentEvent) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, models.PaymentEvent) error { return nil }

// RetryPolicy bounds gateway retries. Only retryable gateway errors are
// retried, and always with the same request.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is three attempts with jittered exponential backoff
// starting at 200ms, capped at 2s.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// retryGateway runs call until it succeeds, fails permanently, or the policy
// is exhausted. Non-retryable errors stop immediately.
func retryGateway(ctx context.Context, policy RetryPolicy, logger *zap.Logger, metrics MetricsRecorder, op string, call func() error) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := call()
		if err == nil {
			return nil
		}
		if apperrors.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy.backOff(ctx), func(err error, next time.Duration) {
		logger.Warn("Gateway call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
		recordAsync(metrics, aws_pkg.MetricGatewayRetries, map[string]string{"Op": op})
	})
	return classifyGatewayError(err)
}

// classifyGatewayError maps anything that is not already a gateway error
// (context expiry, semaphore wait) to ErrGatewayUnavailable.
func classifyGatewayError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.ErrGatewayUnavailable.Wrap(err)
}

// recordAsync sends a metric without holding up the request, like the HTTP
// metrics middleware does.
func recordAsync(m MetricsRecorder, name string, dims map[string]string) {
	if m == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.RecordCount(ctx, name, dims)
	}()
}

func recordLatencyAsync(m MetricsRecorder, name string, d time.Duration, dims map[string]string) {
	if m == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.RecordLatency(ctx, name, d, dims)
	}()
}
