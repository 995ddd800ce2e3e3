package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"unschooling-payment-service/models"
	aws_pkg "unschooling-payment-service/pkg/aws"
)

// Publisher announces payment lifecycle events to downstream consumers
// (entitlements, notifications).
type Publisher interface {
	Publish(ctx context.Context, event models.PaymentEvent) error
	Close() error
}

// SNSPublisher sends events to one SNS topic, tagged with an event_type
// message attribute.
type SNSPublisher struct {
	client   aws_pkg.SNSPublisher
	topicArn string
}

func NewSNSPublisher(client aws_pkg.SNSPublisher, topicArn string) *SNSPublisher {
	return &SNSPublisher{client: client, topicArn: topicArn}
}

func (p *SNSPublisher) Publish(ctx context.Context, event models.PaymentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}
	return p.client.Publish(ctx, p.topicArn, data, map[string]string{"event_type": event.Type})
}

func (p *SNSPublisher) Close() error { return nil }

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, models.PaymentEvent) error { return nil }
func (NoopPublisher) Close() error                                       { return nil }

// LoggingPublisher wraps a Publisher so delivery failures are logged and
// never surface to the payment flow.
type LoggingPublisher struct {
	next   Publisher
	logger *zap.Logger
}

func NewLoggingPublisher(next Publisher, logger *zap.Logger) *LoggingPublisher {
	return &LoggingPublisher{next: next, logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, event models.PaymentEvent) error {
	if err := p.next.Publish(ctx, event); err != nil {
		p.logger.Error("Failed to publish payment event",
			zap.String("type", event.Type),
			zap.String("order_id", event.OrderID),
			zap.String("subscription_id", event.SubscriptionID),
			zap.Error(err),
		)
		return nil
	}
	p.logger.Debug("Published payment event", zap.String("type", event.Type), zap.String("order_id", event.OrderID))
	return nil
}

func (p *LoggingPublisher) Close() error {
	return p.next.Close()
}

// Multi fans an event out to several publishers and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event models.PaymentEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
