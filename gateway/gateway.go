package gateway

import "context"

// Notes are free-form key/value annotations stored with the gateway object.
type Notes map[string]string

// OrderRequest is the order-creation payload. Amount is in minor units.
type OrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Notes    Notes  `json:"notes,omitempty"`
}

// Order is the gateway's view of a created order.
type Order struct {
	ID         string `json:"id"`
	Entity     string `json:"entity"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	CreatedAt  int64  `json:"created_at"`
}

// SubscriptionRequest is the subscription-creation payload.
type SubscriptionRequest struct {
	PlanID         string `json:"plan_id"`
	TotalCount     int    `json:"total_count"`
	CustomerNotify int    `json:"customer_notify"`
	Notes          Notes  `json:"notes,omitempty"`
}

// Subscription is the gateway's view of a subscription.
type Subscription struct {
	ID             string `json:"id"`
	Entity         string `json:"entity"`
	PlanID         string `json:"plan_id"`
	Status         string `json:"status"`
	TotalCount     int    `json:"total_count"`
	PaidCount      int    `json:"paid_count"`
	RemainingCount int    `json:"remaining_count"`
	ShortURL       string `json:"short_url"`
	CreatedAt      int64  `json:"created_at"`
}

// Gateway defines the payment gateway operations the service relies on.
type Gateway interface {
	// CreateOrder registers a one-time order. The gateway dedupes on Receipt,
	// so the same request may be sent again after an unavailable error.
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)

	// CreateSubscription registers a recurring mandate. There is no dedupe.
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error)
}
