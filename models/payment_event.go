package models

import "time"

const (
	EventOrderCreated        = "order_created"
	EventPaymentVerified     = "payment_verified"
	EventPaymentFailed       = "payment_failed"
	EventSubscriptionCreated = "subscription_created"
	EventSubscriptionUpdated = "subscription_updated"
)

type PaymentEvent struct {
	Type           string    `json:"type"` // one of the Event* constants
	OrderID        string    `json:"order_id,omitempty"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	UserID         string    `json:"user_id"`
	PaymentID      string    `json:"payment_id,omitempty"`
	PlanType       string    `json:"plan_type"`
	BillingCycle   string    `json:"billing_cycle"`
	Status         string    `json:"status"`
	Amount         int64     `json:"amount,omitempty"` // smallest currency unit
	Currency       string    `json:"currency,omitempty"`
	Timestamp      time.Time `json:"timestamp"` // UTC event time
}

// WebhookEvent is the subset of a gateway webhook body the service reads.
type WebhookEvent struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Subscription *struct {
			Entity struct {
				ID             string `json:"id"`
				Status         string `json:"status"`
				RemainingCount int    `json:"remaining_count"`
			} `json:"entity"`
		} `json:"subscription,omitempty"`
		Payment *struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment,omitempty"`
	} `json:"payload"`
}
