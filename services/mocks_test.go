package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"unschooling-payment-service/gateway"
	"unschooling-payment-service/models"
	"unschooling-payment-service/pricing"
	"unschooling-payment-service/repository"
)

// mockGateway records every request and answers from errs in order, then
// succeeds.
type mockGateway struct {
	mu        sync.Mutex
	delay     time.Duration
	errs      []error
	subErrs   []error
	orders    []gateway.OrderRequest
	subs      []gateway.SubscriptionRequest
	seq       int
	byReceipt map[string]string
}

func newMockGateway() *mockGateway {
	return &mockGateway{byReceipt: make(map[string]string)}
}

func (m *mockGateway) CreateOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, req)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	id, ok := m.byReceipt[req.Receipt]
	if !ok {
		m.seq++
		id = fmt.Sprintf("order_%03d", m.seq)
		m.byReceipt[req.Receipt] = id
	}
	return &gateway.Order{ID: id, Entity: "order", Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

func (m *mockGateway) CreateSubscription(ctx context.Context, req gateway.SubscriptionRequest) (*gateway.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, req)
	if len(m.subErrs) > 0 {
		err := m.subErrs[0]
		m.subErrs = m.subErrs[1:]
		return nil, err
	}
	m.seq++
	return &gateway.Subscription{
		ID:             fmt.Sprintf("sub_%03d", m.seq),
		Entity:         "subscription",
		PlanID:         req.PlanID,
		Status:         "created",
		TotalCount:     req.TotalCount,
		RemainingCount: req.TotalCount,
		ShortURL:       "https://rzp.io/i/test",
	}, nil
}

func (m *mockGateway) orderCalls() []gateway.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]gateway.OrderRequest(nil), m.orders...)
}

func (m *mockGateway) subCalls() []gateway.SubscriptionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]gateway.SubscriptionRequest(nil), m.subs...)
}

// memOrderRepo is an in-memory OrderRepository with the same unique and
// compare-and-swap semantics as the Postgres one.
type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]models.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]models.Order)}
}

func (r *memOrderRepo) Create(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.Receipt == order.Receipt {
			return repository.ErrDuplicate
		}
	}
	if _, ok := r.orders[order.OrderID]; ok {
		return repository.ErrDuplicate
	}
	order.CreatedAt = time.Now()
	r.orders[order.OrderID] = *order
	return nil
}

func (r *memOrderRepo) FindByReceipt(ctx context.Context, receipt string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.Receipt == receipt {
			cp := o
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memOrderRepo) FindByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &o, nil
}

func (r *memOrderRepo) TransitionStatus(ctx context.Context, orderID string, from, to models.OrderStatus, paymentID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.PaymentID = &paymentID
	if to == models.OrderStatusVerified {
		o.VerifiedAt = &at
	} else {
		o.FailedAt = &at
	}
	r.orders[orderID] = o
	return true, nil
}

type memSubscriptionRepo struct {
	mu   sync.Mutex
	subs []models.Subscription
}

func (r *memSubscriptionRepo) Create(ctx context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.SubscriptionID == sub.SubscriptionID {
			return repository.ErrDuplicate
		}
		if s.UserID == sub.UserID && s.PlanType == sub.PlanType && s.BillingCycle == sub.BillingCycle && !s.Status.IsTerminal() {
			return repository.ErrDuplicate
		}
	}
	sub.CreatedAt = time.Now()
	r.subs = append(r.subs, *sub)
	return nil
}

func (r *memSubscriptionRepo) FindActive(ctx context.Context, userID string, plan pricing.PlanType, cycle pricing.BillingCycle) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.subs) - 1; i >= 0; i-- {
		s := r.subs[i]
		if s.UserID == userID && s.PlanType == plan && s.BillingCycle == cycle && !s.Status.IsTerminal() {
			return &s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memSubscriptionRepo) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.SubscriptionID == subscriptionID {
			cp := s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memSubscriptionRepo) UpdateStatus(ctx context.Context, subscriptionID string, status models.SubscriptionStatus, remaining int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.subs {
		if r.subs[i].SubscriptionID == subscriptionID && !r.subs[i].Status.IsTerminal() {
			r.subs[i].Status = status
			r.subs[i].RemainingCycles = remaining
			return true, nil
		}
	}
	return false, nil
}

// staleSubscriptionRepo serves its first read from a snapshot taken before a
// concurrent terminal write landed.
type staleSubscriptionRepo struct {
	*memSubscriptionRepo
	snapshot models.Subscription
	reads    int
}

func (r *staleSubscriptionRepo) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	r.reads++
	if r.reads == 1 {
		cp := r.snapshot
		return &cp, nil
	}
	return r.memSubscriptionRepo.FindBySubscriptionID(ctx, subscriptionID)
}

func (r *memSubscriptionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.PaymentEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []models.PaymentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.PaymentEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// failingLocker stands in for an unreachable lock store.
type failingLocker struct{}

func (failingLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, errors.New("dial tcp 10.0.0.5:6379: connect: connection refused")
}
