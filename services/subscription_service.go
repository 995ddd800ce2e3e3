package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"unschooling-payment-service/apperrors"
	"unschooling-payment-service/gateway"
	"unschooling-payment-service/models"
	aws_pkg "unschooling-payment-service/pkg/aws"
	"unschooling-payment-service/pricing"
	"unschooling-payment-service/repository"
)

// SubscriptionService defines recurring plan operations.
type SubscriptionService interface {
	// CreateSubscription starts at most one live subscription per
	// (user, plan, cycle).
	CreateSubscription(ctx context.Context, plan pricing.PlanType, cycle pricing.BillingCycle, user models.User) (*models.Subscription, error)
	GetSubscription(ctx context.Context, userID string, plan pricing.PlanType, cycle pricing.BillingCycle) (*models.Subscription, error)
	// MirrorStatus copies gateway state pushed by webhook onto the local row.
	MirrorStatus(ctx context.Context, subscriptionID string, status models.SubscriptionStatus, remaining int) (*models.Subscription, error)
}

// SubscriptionServiceDeps collects SubscriptionService collaborators.
type SubscriptionServiceDeps struct {
	Catalog       pricing.Catalog
	Gateway       gateway.Gateway
	Subscriptions repository.SubscriptionRepository
	Locker        Locker
	Publisher     Publisher
	Metrics       MetricsRecorder
	Limiter       *semaphore.Weighted
	LockTTL       time.Duration
	Logger        *zap.Logger
}

type subscriptionServiceImpl struct {
	SubscriptionServiceDeps
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(deps SubscriptionServiceDeps) SubscriptionService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Limiter == nil {
		deps.Limiter = semaphore.NewWeighted(32)
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = 30 * time.Second
	}
	if deps.Publisher == nil {
		deps.Publisher = noopPublisher{}
	}
	return &subscriptionServiceImpl{SubscriptionServiceDeps: deps}
}

// CreateSubscription is not retried on gateway failure: subscriptions carry
// no receipt, so a blind retry could open two.
func (s *subscriptionServiceImpl) CreateSubscription(ctx context.Context, plan pricing.PlanType, cycle pricing.BillingCycle, user models.User) (*models.Subscription, error) {
	if _, _, err := s.Catalog.GetAmount(plan, cycle); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	if s.Locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, s.LockTTL)
		release, err := s.Locker.Acquire(lockCtx, fmt.Sprintf("sub:%s|%s|%s", user.ID, plan, cycle), s.LockTTL)
		cancel()
		if err != nil {
			return nil, apperrors.ErrServiceUnavailable.Wrap(fmt.Errorf("acquire subscription lock: %w", err))
		}
		defer release()
	}

	existing, err := s.Subscriptions.FindActive(ctx, user.ID, plan, cycle)
	if err == nil {
		s.Logger.Info("Subscription already exists",
			zap.String("subscription_id", existing.SubscriptionID),
			zap.String("user_id", user.ID),
			zap.String("status", string(existing.Status)),
		)
		return nil, apperrors.ErrSubscriptionAlreadyExists.Wrapf("subscription %s", existing.SubscriptionID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrInternalServer.Wrap(err)
	}

	total := pricing.TotalCycles(cycle)
	req := gateway.SubscriptionRequest{
		PlanID:         pricing.PlanID(plan, cycle),
		TotalCount:     total,
		CustomerNotify: 1,
		Notes: gateway.Notes{
			"user_id":       user.ID,
			"user_email":    user.Email,
			"plan_type":     string(plan),
			"billing_cycle": string(cycle),
		},
	}

	start := time.Now()
	gwSub, err := s.createRemote(ctx, req)
	recordLatencyAsync(s.Metrics, aws_pkg.MetricGatewayLatency, time.Since(start), map[string]string{"Op": "create_subscription"})
	if err != nil {
		s.Logger.Error("Gateway subscription creation failed",
			zap.String("user_id", user.ID),
			zap.String("plan_id", req.PlanID),
			zap.Bool("retryable", apperrors.IsRetryable(err)),
			zap.Error(err),
		)
		return nil, err
	}

	status := models.SubscriptionStatus(gwSub.Status)
	if status == "" {
		status = models.SubscriptionStatusCreated
	}
	remaining := gwSub.RemainingCount
	if remaining == 0 && !status.IsTerminal() {
		remaining = total
	}

	sub := &models.Subscription{
		SubscriptionID:  gwSub.ID,
		PlanID:          req.PlanID,
		PlanType:        plan,
		BillingCycle:    cycle,
		UserID:          user.ID,
		UserEmail:       user.Email,
		Status:          status,
		TotalCycles:     total,
		RemainingCycles: remaining,
		ShortURL:        gwSub.ShortURL,
	}
	if err := s.Subscriptions.Create(ctx, sub); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// another instance won without our lock; the gateway side is orphaned
			s.Logger.Warn("Duplicate live subscription on insert",
				zap.String("subscription_id", gwSub.ID),
				zap.String("user_id", user.ID),
			)
			return nil, apperrors.ErrSubscriptionAlreadyExists.Wrap(err)
		}
		s.Logger.Error("Failed to persist subscription", zap.String("subscription_id", gwSub.ID), zap.Error(err))
		return nil, apperrors.ErrInternalServer.Wrap(err)
	}

	recordAsync(s.Metrics, aws_pkg.MetricSubscriptionsCreated, map[string]string{"Plan": string(plan), "Cycle": string(cycle)})
	_ = s.Publisher.Publish(ctx, subscriptionEvent(models.EventSubscriptionCreated, sub))
	s.Logger.Info("Subscription created",
		zap.String("subscription_id", sub.SubscriptionID),
		zap.String("user_id", user.ID),
		zap.String("plan_id", sub.PlanID),
		zap.Int("total_cycles", total),
	)
	return sub, nil
}

func (s *subscriptionServiceImpl) createRemote(ctx context.Context, req gateway.SubscriptionRequest) (*gateway.Subscription, error) {
	if err := s.Limiter.Acquire(ctx, 1); err != nil {
		return nil, classifyGatewayError(err)
	}
	defer s.Limiter.Release(1)

	gwSub, err := s.Gateway.CreateSubscription(ctx, req)
	if err != nil {
		return nil, classifyGatewayError(err)
	}
	return gwSub, nil
}

// GetSubscription returns the live subscription for the triple.
func (s *subscriptionServiceImpl) GetSubscription(ctx context.Context, userID string, plan pricing.PlanType, cycle pricing.BillingCycle) (*models.Subscription, error) {
	sub, err := s.Subscriptions.FindActive(ctx, userID, plan, cycle)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.Wrap(err)
	}
	return sub, nil
}

// MirrorStatus ignores updates to subscriptions already in a terminal state;
// webhooks may arrive out of order.
func (s *subscriptionServiceImpl) MirrorStatus(ctx context.Context, subscriptionID string, status models.SubscriptionStatus, remaining int) (*models.Subscription, error) {
	sub, err := s.Subscriptions.FindBySubscriptionID(ctx, subscriptionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrSubscriptionNotFound.Wrapf("subscription %s", subscriptionID)
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.Wrap(err)
	}

	if sub.Status.IsTerminal() || (sub.Status == status && sub.RemainingCycles == remaining) {
		return sub, nil
	}

	updated, err := s.Subscriptions.UpdateStatus(ctx, subscriptionID, status, remaining)
	if err != nil {
		return nil, apperrors.ErrInternalServer.Wrap(err)
	}
	if !updated {
		// a concurrent webhook finished the subscription first
		stored, err := s.Subscriptions.FindBySubscriptionID(ctx, subscriptionID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSubscriptionNotFound.Wrapf("subscription %s", subscriptionID)
		}
		if err != nil {
			return nil, apperrors.ErrInternalServer.Wrap(err)
		}
		s.Logger.Info("Subscription mirror already terminal",
			zap.String("subscription_id", subscriptionID),
			zap.String("status", string(stored.Status)),
			zap.String("ignored", string(status)),
		)
		return stored, nil
	}

	s.Logger.Info("Subscription status mirrored",
		zap.String("subscription_id", subscriptionID),
		zap.String("from", string(sub.Status)),
		zap.String("to", string(status)),
		zap.Int("remaining_cycles", remaining),
	)
	sub.Status = status
	sub.RemainingCycles = remaining
	_ = s.Publisher.Publish(ctx, subscriptionEvent(models.EventSubscriptionUpdated, sub))
	return sub, nil
}

func subscriptionEvent(eventType string, sub *models.Subscription) models.PaymentEvent {
	return models.PaymentEvent{
		Type:           eventType,
		SubscriptionID: sub.SubscriptionID,
		UserID:         sub.UserID,
		PlanType:       string(sub.PlanType),
		BillingCycle:   string(sub.BillingCycle),
		Status:         string(sub.Status),
		Timestamp:      time.Now().UTC(),
	}
}
