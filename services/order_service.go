package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"unschooling-payment-service/apperrors"
	"unschooling-payment-service/gateway"
	"unschooling-payment-service/models"
	aws_pkg "unschooling-payment-service/pkg/aws"
	"unschooling-payment-service/pricing"
	"unschooling-payment-service/repository"
)

const (
	// receiptWindow is the attempt window for derived receipts: repeated
	// clicks inside one window map to one order.
	receiptWindow = 15 * time.Minute
	// maxDerivedAttempts bounds how many failed orders one window may hold
	// before a caller must supply an explicit key.
	maxDerivedAttempts = 5
	// maxReceiptLen is the gateway's receipt limit.
	maxReceiptLen = 40
)

// receiptNamespace scopes UUIDv5 receipts to this service.
var receiptNamespace = uuid.MustParse("6f1c1b8e-3a52-5d0e-9a57-2f4f1d7c9b10")

// OrderService defines plan order creation and payment finalization.
type OrderService interface {
	// CreateOrder is idempotent on (user, idempotencyKey). With an empty key a
	// receipt is derived from user, plan, cycle and a 15 minute window.
	CreateOrder(ctx context.Context, plan pricing.PlanType, cycle pricing.BillingCycle, user models.User, idempotencyKey string, opts ...OrderOption) (*models.Order, error)
	// VerifyAndFinalize authenticates a checkout callback and settles the order.
	VerifyAndFinalize(ctx context.Context, orderID, paymentID, signature string, opts ...FinalizeOption) (*models.Order, error)
	GetOrder(ctx context.Context, orderID, userID string) (*models.Order, error)
}

// OrderOption adjusts a single CreateOrder call.
type OrderOption func(*orderOptions)

type orderOptions struct {
	recurring bool
}

// WithRecurring marks the order so a subscription follows verification.
func WithRecurring(recurring bool) OrderOption {
	return func(o *orderOptions) { o.recurring = recurring }
}

// FinalizeOption adjusts a single VerifyAndFinalize call.
type FinalizeOption func(*finalizeOptions)

type finalizeOptions struct {
	owner string
}

// ForOwner restricts finalization to orders placed by userID. Orders of
// other users are reported as not found and left untouched.
func ForOwner(userID string) FinalizeOption {
	return func(o *finalizeOptions) { o.owner = userID }
}

// OrderServiceDeps collects OrderService collaborators. Locker, Index,
// Subscriptions, Publisher and Metrics are optional.
type OrderServiceDeps struct {
	Catalog       pricing.Catalog
	Gateway       gateway.Gateway
	Orders        repository.OrderRepository
	Verifier      SignatureVerifier
	Subscriptions SubscriptionService
	Locker        Locker
	Index         ReceiptIndex
	Publisher     Publisher
	Metrics       MetricsRecorder
	Limiter       *semaphore.Weighted
	Retry         RetryPolicy
	LockTTL       time.Duration
	Logger        *zap.Logger
	Audit         *zap.Logger
	Now           func() time.Time
}

type orderServiceImpl struct {
	OrderServiceDeps
	flight singleflight.Group
}

// NewOrderService creates a new OrderService.
func NewOrderService(deps OrderServiceDeps) OrderService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Audit == nil {
		deps.Audit = deps.Logger
	}
	if deps.Limiter == nil {
		deps.Limiter = semaphore.NewWeighted(32)
	}
	if deps.Retry.MaxAttempts == 0 {
		deps.Retry = DefaultRetryPolicy
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = 30 * time.Second
	}
	if deps.Publisher == nil {
		deps.Publisher = noopPublisher{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &orderServiceImpl{OrderServiceDeps: deps}
}

// CreateOrder prices the plan from the catalog and registers a gateway order.
func (s *orderServiceImpl) CreateOrder(ctx context.Context, plan pricing.PlanType, cycle pricing.BillingCycle, user models.User, idempotencyKey string, opts ...OrderOption) (*models.Order, error) {
	var o orderOptions
	for _, opt := range opts {
		opt(&o)
	}

	amount, currency, err := s.Catalog.GetAmount(plan, cycle)
	if err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	key := strings.TrimSpace(idempotencyKey)
	if key != "" {
		return s.createOnce(ctx, explicitReceipt(user.ID, key), plan, cycle, amount, currency, user, o)
	}

	window := s.Now().UTC().Truncate(receiptWindow)
	for attempt := 0; attempt < maxDerivedAttempts; attempt++ {
		order, err := s.createOnce(ctx, derivedReceipt(user.ID, plan, cycle, window, attempt), plan, cycle, amount, currency, user, o)
		if err != nil {
			return nil, err
		}
		if order.Status != models.OrderStatusFailed {
			return order, nil
		}
	}
	return nil, apperrors.ErrBadRequest.Wrapf("too many failed attempts in this window; supply an Idempotency-Key")
}

// createOnce collapses concurrent calls for one receipt into a single
// gateway round trip. Every caller gets its own copy of the result.
func (s *orderServiceImpl) createOnce(ctx context.Context, receipt string, plan pricing.PlanType, cycle pricing.BillingCycle, amount int64, currency string, user models.User, o orderOptions) (*models.Order, error) {
	v, err, shared := s.flight.Do(receipt, func() (interface{}, error) {
		// detached so one caller's cancellation does not fail the others
		return s.findOrCreate(context.WithoutCancel(ctx), receipt, plan, cycle, amount, currency, user, o)
	})
	if err != nil {
		return nil, err
	}
	order := *v.(*models.Order)
	if shared {
		s.Logger.Debug("Collapsed concurrent CreateOrder", zap.String("receipt", receipt))
	}
	if order.PlanType != plan || order.BillingCycle != cycle {
		return nil, apperrors.ErrIdempotencyKeyReused.Wrapf("receipt %s belongs to %s/%s", receipt, order.PlanType, order.BillingCycle)
	}
	return &order, nil
}

func (s *orderServiceImpl) findOrCreate(ctx context.Context, receipt string, plan pricing.PlanType, cycle pricing.BillingCycle, amount int64, currency string, user models.User, o orderOptions) (*models.Order, error) {
	if existing, err := s.existing(ctx, receipt); err != nil || existing != nil {
		return existing, err
	}

	if s.Locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, s.LockTTL)
		release, err := s.Locker.Acquire(lockCtx, "order:"+receipt, s.LockTTL)
		cancel()
		if err != nil {
			return nil, apperrors.ErrServiceUnavailable.Wrap(fmt.Errorf("acquire receipt lock: %w", err))
		}
		defer release()

		// another instance may have finished while we waited
		if existing, err := s.existing(ctx, receipt); err != nil || existing != nil {
			return existing, err
		}
	}

	req := gateway.OrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Notes: gateway.Notes{
			"plan_type":     string(plan),
			"billing_cycle": string(cycle),
			"user_id":       user.ID,
			"user_email":    user.Email,
		},
	}

	var gwOrder *gateway.Order
	start := s.Now()
	err := retryGateway(ctx, s.Retry, s.Logger, s.Metrics, "create_order", func() error {
		if err := s.Limiter.Acquire(ctx, 1); err != nil {
			return err
		}
		defer s.Limiter.Release(1)

		var err error
		gwOrder, err = s.Gateway.CreateOrder(ctx, req)
		return err
	})
	recordLatencyAsync(s.Metrics, aws_pkg.MetricGatewayLatency, time.Since(start), map[string]string{"Op": "create_order"})
	if err != nil {
		s.Logger.Error("Gateway order creation failed",
			zap.String("receipt", receipt),
			zap.String("user_id", user.ID),
			zap.Bool("retryable", apperrors.IsRetryable(err)),
			zap.Bool("timeout", gateway.IsTimeout(err)),
			zap.Error(err),
		)
		return nil, err
	}
	if gwOrder.Amount != 0 && gwOrder.Amount != amount {
		return nil, apperrors.ErrGatewayRejected.Wrapf("gateway order %s amount %d, expected %d", gwOrder.ID, gwOrder.Amount, amount)
	}

	order := &models.Order{
		OrderID:      gwOrder.ID,
		Receipt:      receipt,
		Amount:       amount,
		Currency:     currency,
		PlanType:     plan,
		BillingCycle: cycle,
		UserID:       user.ID,
		UserEmail:    user.Email,
		Status:       models.OrderStatusCreated,
		Recurring:    o.recurring,
	}
	if err := s.Orders.Create(ctx, order); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			if existing, ferr := s.Orders.FindByReceipt(ctx, receipt); ferr == nil {
				return existing, nil
			}
		}
		s.Logger.Error("Failed to persist order", zap.String("order_id", gwOrder.ID), zap.String("receipt", receipt), zap.Error(err))
		return nil, apperrors.ErrInternalServer.Wrap(err)
	}

	if s.Index != nil {
		if err := s.Index.PutOrderID(ctx, receipt, order.OrderID); err != nil {
			s.Logger.Warn("Failed to index receipt", zap.String("receipt", receipt), zap.Error(err))
		}
	}

	recordAsync(s.Metrics, aws_pkg.MetricOrdersCreated, map[string]string{"Plan": string(plan), "Cycle": string(cycle)})
	_ = s.Publisher.Publish(ctx, orderEvent(models.EventOrderCreated, order))
	s.Logger.Info("Order created",
		zap.String("order_id", order.OrderID),
		zap.String("receipt", receipt),
		zap.String("user_id", user.ID),
		zap.String("plan_type", string(plan)),
		zap.String("billing_cycle", string(cycle)),
		zap.Int64("amount", amount),
	)
	return order, nil
}

// existing returns the stored order for receipt, or nil when there is none.
func (s *orderServiceImpl) existing(ctx context.Context, receipt string) (*models.Order, error) {
	if s.Index != nil {
		orderID, ok, err := s.Index.GetOrderID(ctx, receipt)
		if err != nil {
			s.Logger.Warn("Receipt index lookup failed", zap.String("receipt", receipt), zap.Error(err))
		} else if ok {
			if order, err := s.Orders.FindByOrderID(ctx, orderID); err == nil {
				recordAsync(s.Metrics, aws_pkg.MetricIdempotentReplays, nil)
				return order, nil
			}
		}
	}

	order, err := s.Orders.FindByReceipt(ctx, receipt)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.Wrap(err)
	}
	recordAsync(s.Metrics, aws_pkg.MetricIdempotentReplays, nil)
	return order, nil
}

// VerifyAndFinalize settles an order exactly once. Terminal orders are
// returned as stored without re-verification; a lost race returns whatever
// the winner wrote.
func (s *orderServiceImpl) VerifyAndFinalize(ctx context.Context, orderID, paymentID, signature string, opts ...FinalizeOption) (*models.Order, error) {
	if orderID == "" || paymentID == "" || signature == "" {
		return nil, apperrors.ErrInvalidCallback
	}
	var o finalizeOptions
	for _, opt := range opts {
		opt(&o)
	}

	order, err := s.Orders.FindByOrderID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.Logger.Warn("Callback for unknown order", zap.String("order_id", orderID), zap.String("payment_id", paymentID))
		s.Audit.Warn("unknown_order_callback", zap.String("order_id", orderID), zap.String("payment_id", paymentID))
		return nil, apperrors.ErrOrderNotFound.Wrapf("order %s", orderID)
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.Wrap(err)
	}

	if o.owner != "" && order.UserID != o.owner {
		s.Logger.Warn("Callback for order of another user", zap.String("order_id", orderID), zap.String("caller_id", o.owner))
		s.Audit.Warn("foreign_order_callback",
			zap.String("order_id", orderID),
			zap.String("payment_id", paymentID),
			zap.String("caller_id", o.owner),
		)
		return nil, apperrors.ErrOrderNotFound.Wrapf("order %s", orderID)
	}

	if order.Status.IsTerminal() {
		s.Logger.Info("Skipping duplicate finalize",
			zap.String("order_id", orderID),
			zap.String("status", string(order.Status)),
		)
		return order, nil
	}

	verified := s.Verifier.Verify(orderID, paymentID, signature)
	to := models.OrderStatusFailed
	if verified {
		to = models.OrderStatusVerified
	}

	now := s.Now()
	won, err := s.Orders.TransitionStatus(ctx, orderID, models.OrderStatusCreated, to, paymentID, now)
	if err != nil {
		return nil, apperrors.ErrInternalServer.Wrap(err)
	}
	if !won {
		stored, err := s.Orders.FindByOrderID(ctx, orderID)
		if err != nil {
			return nil, apperrors.ErrInternalServer.Wrap(err)
		}
		s.Logger.Info("Finalize lost race", zap.String("order_id", orderID), zap.String("status", string(stored.Status)))
		return stored, nil
	}

	order.Status = to
	order.PaymentID = &paymentID
	dims := map[string]string{"Plan": string(order.PlanType), "Cycle": string(order.BillingCycle)}

	if !verified {
		order.FailedAt = &now
		s.Audit.Warn("signature_mismatch",
			zap.String("order_id", orderID),
			zap.String("payment_id", paymentID),
			zap.String("user_id", order.UserID),
			zap.Int64("amount", order.Amount),
		)
		recordAsync(s.Metrics, aws_pkg.MetricPaymentFailed, dims)
		_ = s.Publisher.Publish(ctx, orderEvent(models.EventPaymentFailed, order))
		return nil, apperrors.ErrSignatureMismatch.Wrapf("order %s", orderID)
	}

	order.VerifiedAt = &now
	s.Audit.Info("payment_verified",
		zap.String("order_id", orderID),
		zap.String("payment_id", paymentID),
		zap.String("user_id", order.UserID),
		zap.Int64("amount", order.Amount),
		zap.String("currency", order.Currency),
	)
	recordAsync(s.Metrics, aws_pkg.MetricPaymentSucceeded, dims)
	_ = s.Publisher.Publish(ctx, orderEvent(models.EventPaymentVerified, order))

	if order.Recurring && s.Subscriptions != nil {
		s.startSubscription(ctx, order)
	}
	return order, nil
}

// startSubscription follows a verified recurring order. Failures are logged;
// the payment itself is already settled.
func (s *orderServiceImpl) startSubscription(ctx context.Context, order *models.Order) {
	sub, err := s.Subscriptions.CreateSubscription(ctx, order.PlanType, order.BillingCycle, models.User{ID: order.UserID, Email: order.UserEmail})
	switch {
	case err == nil:
		s.Logger.Info("Subscription started for order",
			zap.String("order_id", order.OrderID),
			zap.String("subscription_id", sub.SubscriptionID),
		)
	case errors.Is(err, apperrors.ErrSubscriptionAlreadyExists):
		s.Logger.Info("Subscription already exists for order", zap.String("order_id", order.OrderID))
	default:
		s.Logger.Error("Failed to start subscription after payment",
			zap.String("order_id", order.OrderID),
			zap.String("user_id", order.UserID),
			zap.Error(err),
		)
	}
}

// GetOrder returns the order only to its owner.
func (s *orderServiceImpl) GetOrder(ctx context.Context, orderID, userID string) (*models.Order, error) {
	order, err := s.Orders.FindByOrderID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrOrderNotFound.Wrapf("order %s", orderID)
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.Wrap(err)
	}
	if order.UserID != userID {
		return nil, apperrors.ErrOrderNotFound.Wrapf("order %s not owned by caller", orderID)
	}
	return order, nil
}

func orderEvent(eventType string, o *models.Order) models.PaymentEvent {
	ev := models.PaymentEvent{
		Type:         eventType,
		OrderID:      o.OrderID,
		UserID:       o.UserID,
		PlanType:     string(o.PlanType),
		BillingCycle: string(o.BillingCycle),
		Status:       string(o.Status),
		Amount:       o.Amount,
		Currency:     o.Currency,
		Timestamp:    time.Now().UTC(),
	}
	if o.PaymentID != nil {
		ev.PaymentID = *o.PaymentID
	}
	return ev
}

// explicitReceipt scopes a caller key to the user, so two users sending the
// same key never share an order.
func explicitReceipt(userID, key string) string {
	return hashReceipt("key|" + userID + "|" + key)
}

// derivedReceipt is stable for (user, plan, cycle) within one window.
func derivedReceipt(userID string, plan pricing.PlanType, cycle pricing.BillingCycle, window time.Time, attempt int) string {
	name := strings.Join([]string{
		"derived", userID, string(plan), string(cycle),
		strconv.FormatInt(window.Unix(), 10), strconv.Itoa(attempt),
	}, "|")
	return hashReceipt(name)
}

func hashReceipt(name string) string {
	id := uuid.NewSHA1(receiptNamespace, []byte(name))
	r := "rcpt_" + strings.ReplaceAll(id.String(), "-", "")
	if len(r) > maxReceiptLen {
		r = r[:maxReceiptLen]
	}
	return r
}
