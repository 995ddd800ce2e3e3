package models

import (
	"time"

	"github.com/google/uuid"

	"unschooling-payment-service/pricing"
)

// SubscriptionStatus mirrors the gateway's subscription state.
type SubscriptionStatus string

const (
	SubscriptionStatusCreated       SubscriptionStatus = "created"
	SubscriptionStatusAuthenticated SubscriptionStatus = "authenticated"
	SubscriptionStatusActive        SubscriptionStatus = "active"
	SubscriptionStatusPending       SubscriptionStatus = "pending"
	SubscriptionStatusHalted        SubscriptionStatus = "halted"
	SubscriptionStatusPaused        SubscriptionStatus = "paused"
	SubscriptionStatusCancelled     SubscriptionStatus = "cancelled"
	SubscriptionStatusCompleted     SubscriptionStatus = "completed"
	SubscriptionStatusExpired       SubscriptionStatus = "expired"
)

// IsTerminal reports whether the subscription can no longer charge.
func (s SubscriptionStatus) IsTerminal() bool {
	switch s {
	case SubscriptionStatusCancelled, SubscriptionStatusCompleted, SubscriptionStatusExpired:
		return true
	}
	return false
}

// TerminalSubscriptionStatuses lists every state IsTerminal accepts.
var TerminalSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusCancelled,
	SubscriptionStatusCompleted,
	SubscriptionStatusExpired,
}

// Subscription is the local mirror of a gateway subscription. The gateway owns
// Status and RemainingCycles; webhooks keep them in sync.
type Subscription struct {
	ID              uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"-"`
	SubscriptionID  string               `gorm:"type:varchar(64);uniqueIndex;not null" json:"subscription_id"`
	PlanID          string               `gorm:"type:varchar(64);not null" json:"plan_id"`
	PlanType        pricing.PlanType     `gorm:"type:varchar(20);not null;index:idx_subscription_owner" json:"plan_type"`
	BillingCycle    pricing.BillingCycle `gorm:"type:varchar(20);not null;index:idx_subscription_owner" json:"billing_cycle"`
	UserID          string               `gorm:"type:varchar(128);not null;index:idx_subscription_owner" json:"user_id"`
	UserEmail       string               `gorm:"type:varchar(255)" json:"-"`
	Status          SubscriptionStatus   `gorm:"type:varchar(20);not null" json:"status"`
	TotalCycles     int                  `gorm:"not null" json:"total_cycles"`
	RemainingCycles int                  `gorm:"not null" json:"remaining_cycles"`
	ShortURL        string               `gorm:"type:varchar(255)" json:"short_url,omitempty"`
	CreatedAt       time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName for the subscription mirror.
func (Subscription) TableName() string {
	return "plan_subscriptions"
}

// CreateSubscriptionRequest is the payload for starting a recurring plan.
type CreateSubscriptionRequest struct {
	PlanType     string `json:"plan_type" binding:"required"`
	BillingCycle string `json:"billing_cycle" binding:"required"`
}
