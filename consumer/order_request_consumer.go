package consumer

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"unschooling-payment-service/apperrors"
	"unschooling-payment-service/models"
	aws_pkg "unschooling-payment-service/pkg/aws"
	"unschooling-payment-service/pricing"
	"unschooling-payment-service/services"
)

// Poller is the queue side of the consumer; *aws_pkg.SQSConsumer satisfies it.
type Poller interface {
	StartPolling(ctx context.Context, handler aws_pkg.MessageHandler) error
}

// OrderRequestConsumer turns queued order requests (e.g. from the learning
// plan flow) into gateway orders through the same OrderService the HTTP API
// uses, so the idempotency rules are identical.
type OrderRequestConsumer struct {
	poller  Poller
	orders  services.OrderService
	metrics services.MetricsRecorder
	logger  *zap.Logger
}

func NewOrderRequestConsumer(poller Poller, orders services.OrderService, metrics services.MetricsRecorder, logger *zap.Logger) *OrderRequestConsumer {
	return &OrderRequestConsumer{poller: poller, orders: orders, metrics: metrics, logger: logger}
}

// Start blocks until ctx is cancelled.
func (c *OrderRequestConsumer) Start(ctx context.Context) {
	c.logger.Info("Starting OrderRequestConsumer (SQS)")
	if err := c.poller.StartPolling(ctx, c.HandleMessage); err != nil && ctx.Err() == nil {
		c.logger.Error("Order request polling stopped", zap.Error(err))
	}
}

// HandleMessage processes one queued request. Only retryable failures return
// an error, which leaves the message for redelivery; malformed or rejected
// requests are logged and dropped.
func (c *OrderRequestConsumer) HandleMessage(ctx context.Context, body string) error {
	var req models.OrderRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		c.logger.Warn("Invalid order request JSON", zap.Error(err))
		return nil
	}
	if req.UserID == "" {
		c.logger.Warn("Order request without user_id")
		return nil
	}

	plan, err := pricing.ParsePlanType(req.PlanType)
	if err != nil {
		c.logger.Warn("Order request with unknown plan", zap.String("plan_type", req.PlanType), zap.String("user_id", req.UserID))
		return nil
	}
	cycle, err := pricing.ParseBillingCycle(req.BillingCycle)
	if err != nil {
		c.logger.Warn("Order request with unknown cycle", zap.String("billing_cycle", req.BillingCycle), zap.String("user_id", req.UserID))
		return nil
	}

	user := models.User{ID: req.UserID, Email: req.UserEmail}
	order, err := c.orders.CreateOrder(ctx, plan, cycle, user, req.IdempotencyKey, services.WithRecurring(req.Recurring))
	c.record(err)
	if err != nil {
		if apperrors.IsRetryable(err) {
			c.logger.Warn("Order request failed, will be redelivered", zap.String("user_id", req.UserID), zap.Error(err))
			return err
		}
		c.logger.Error("Order request rejected", zap.String("user_id", req.UserID), zap.Error(err))
		return nil
	}

	c.logger.Info("Order request processed",
		zap.String("order_id", order.OrderID),
		zap.String("user_id", req.UserID),
		zap.String("plan_type", string(plan)),
		zap.String("billing_cycle", string(cycle)),
	)
	return nil
}

func (c *OrderRequestConsumer) record(err error) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case apperrors.IsRetryable(err):
		outcome = "retry"
	default:
		outcome = "dropped"
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.metrics.RecordCount(ctx, aws_pkg.MetricSQSMessages, map[string]string{"Outcome": outcome})
	}()
}
