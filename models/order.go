package models

import (
	"time"

	"github.com/google/uuid"

	"unschooling-payment-service/pricing"
)

// OrderStatus is the lifecycle state of a plan order.
type OrderStatus string

const (
	OrderStatusCreated  OrderStatus = "created"
	OrderStatusVerified OrderStatus = "verified"
	OrderStatusFailed   OrderStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusVerified || s == OrderStatusFailed
}

// Order is a one-time plan purchase backed by a gateway order.
type Order struct {
	ID           uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"-"`
	OrderID      string               `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_id"`
	Receipt      string               `gorm:"type:varchar(64);uniqueIndex;not null" json:"receipt"`
	Amount       int64                `gorm:"not null" json:"amount"` // paise
	Currency     string               `gorm:"type:varchar(10);not null" json:"currency"`
	PlanType     pricing.PlanType     `gorm:"type:varchar(20);not null" json:"plan_type"`
	BillingCycle pricing.BillingCycle `gorm:"type:varchar(20);not null" json:"billing_cycle"`
	UserID       string               `gorm:"type:varchar(128);index;not null" json:"user_id"`
	UserEmail    string               `gorm:"type:varchar(255)" json:"-"`
	Status       OrderStatus          `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentID    *string              `gorm:"type:varchar(64)" json:"payment_id,omitempty"`
	Recurring    bool                 `gorm:"not null;default:false" json:"recurring"`
	VerifiedAt   *time.Time           `json:"verified_at,omitempty"`
	FailedAt     *time.Time           `json:"failed_at,omitempty"`
	CreatedAt    time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName keeps plan orders apart from any shop order table.
func (Order) TableName() string {
	return "plan_orders"
}

// User is the caller identity forwarded by the upstream proxy.
type User struct {
	ID    string
	Email string
}

// CreateOrderRequest is the payload for starting a plan purchase.
type CreateOrderRequest struct {
	PlanType     string `json:"plan_type" binding:"required"`
	BillingCycle string `json:"billing_cycle" binding:"required"`
	Recurring    bool   `json:"recurring"`
}

// PaymentAssertion is the checkout callback the client relays after payment.
type PaymentAssertion struct {
	OrderID   string `json:"razorpay_order_id" binding:"required"`
	PaymentID string `json:"razorpay_payment_id" binding:"required"`
	Signature string `json:"razorpay_signature" binding:"required"`
}

// OrderResponse is what clients need to open the checkout widget.
type OrderResponse struct {
	OrderID      string               `json:"order_id"`
	Receipt      string               `json:"receipt"`
	Amount       int64                `json:"amount"`
	Currency     string               `json:"currency"`
	DisplayPrice string               `json:"display_price"`
	PlanType     pricing.PlanType     `json:"plan_type"`
	BillingCycle pricing.BillingCycle `json:"billing_cycle"`
	Status       OrderStatus          `json:"status"`
	KeyID        string               `json:"key_id,omitempty"`
}

// OrderRequest is an order intake message read from SQS.
type OrderRequest struct {
	UserID         string `json:"user_id"`
	UserEmail      string `json:"user_email"`
	PlanType       string `json:"plan_type"`
	BillingCycle   string `json:"billing_cycle"`
	Recurring      bool   `json:"recurring"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}
