package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"unschooling-payment-service/models"
)

// ErrDuplicate is returned when a unique key (receipt, gateway id) is taken.
var ErrDuplicate = errors.New("duplicate record")

// OrderRepository defines the interface for plan order data access.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByReceipt(ctx context.Context, receipt string) (*models.Order, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	// TransitionStatus moves an order from `from` to `to` only if it is still
	// in `from`. It reports whether this call performed the transition.
	TransitionStatus(ctx context.Context, orderID string, from, to models.OrderStatus, paymentID string, at time.Time) (bool, error)
}

// GormOrderRepository implements OrderRepository using GORM.
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository.
func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

// Create inserts a new order. A receipt collision yields ErrDuplicate.
func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	err := r.db.WithContext(ctx).Create(order).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

// FindByReceipt retrieves an order by its idempotency receipt.
func (r *GormOrderRepository) FindByReceipt(ctx context.Context, receipt string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("receipt = ?", receipt).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByOrderID retrieves an order by its gateway order id.
func (r *GormOrderRepository) FindByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// TransitionStatus is a compare-and-swap on the status column.
func (r *GormOrderRepository) TransitionStatus(ctx context.Context, orderID string, from, to models.OrderStatus, paymentID string, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status": to,
	}
	if paymentID != "" {
		updates["payment_id"] = paymentID
	}
	switch to {
	case models.OrderStatusVerified:
		updates["verified_at"] = at
	case models.OrderStatusFailed:
		updates["failed_at"] = at
	}

	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
