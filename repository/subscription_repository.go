package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"unschooling-payment-service/models"
	"unschooling-payment-service/pricing"
)

// SubscriptionRepository defines the interface for subscription mirror access.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *models.Subscription) error
	// FindActive returns the newest non-terminal subscription for the triple.
	FindActive(ctx context.Context, userID string, plan pricing.PlanType, cycle pricing.BillingCycle) (*models.Subscription, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Subscription, error)
	// UpdateStatus writes gateway state unless the mirror is already terminal.
	// It reports whether a row was changed.
	UpdateStatus(ctx context.Context, subscriptionID string, status models.SubscriptionStatus, remaining int) (bool, error)
}

// GormSubscriptionRepository implements SubscriptionRepository using GORM.
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository.
func NewGormSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// Create inserts a subscription mirror. A live duplicate yields ErrDuplicate.
func (r *GormSubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	err := r.db.WithContext(ctx).Create(sub).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

// FindActive ignores cancelled, completed and expired subscriptions.
func (r *GormSubscriptionRepository) FindActive(ctx context.Context, userID string, plan pricing.PlanType, cycle pricing.BillingCycle) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND plan_type = ? AND billing_cycle = ?", userID, plan, cycle).
		Where("status NOT IN ?", models.TerminalSubscriptionStatuses).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// FindBySubscriptionID retrieves a mirror by gateway subscription id.
func (r *GormSubscriptionRepository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateStatus copies gateway-owned state onto the mirror. The status guard
// makes cancelled, completed and expired sticky under concurrent webhooks.
func (r *GormSubscriptionRepository) UpdateStatus(ctx context.Context, subscriptionID string, status models.SubscriptionStatus, remaining int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("subscription_id = ? AND status NOT IN ?", subscriptionID, models.TerminalSubscriptionStatuses).
		Updates(map[string]interface{}{
			"status":           status,
			"remaining_cycles": remaining,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
