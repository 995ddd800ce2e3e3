package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unschooling-payment-service/apperrors"
	"unschooling-payment-service/models"
	"unschooling-payment-service/pricing"
	"unschooling-payment-service/services"
)

func TestCreateSubscription_Monthly(t *testing.T) {
	env := newTestService(t)

	sub, err := env.subs.CreateSubscription(context.Background(), pricing.PlanNurture, pricing.CycleMonthly, testUser)
	require.NoError(t, err)

	assert.Equal(t, "nurture_monthly", sub.PlanID)
	assert.Equal(t, 12, sub.TotalCycles)
	assert.Equal(t, 12, sub.RemainingCycles)
	assert.Equal(t, models.SubscriptionStatusCreated, sub.Status)

	calls := env.gw.subCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, testUser.ID, calls[0].Notes["user_id"])
	assert.Equal(t, testUser.Email, calls[0].Notes["user_email"])
	assert.Equal(t, "nurture", calls[0].Notes["plan_type"])
	assert.Equal(t, "monthly", calls[0].Notes["billing_cycle"])
	assert.Len(t, env.events.ofType(models.EventSubscriptionCreated), 1)
}

func TestCreateSubscription_AlreadyExists(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	_, err := env.subs.CreateSubscription(ctx, pricing.PlanGrow, pricing.CycleYearly, testUser)
	require.NoError(t, err)

	_, err = env.subs.CreateSubscription(ctx, pricing.PlanGrow, pricing.CycleYearly, testUser)
	assert.ErrorIs(t, err, apperrors.ErrSubscriptionAlreadyExists)
	assert.Len(t, env.gw.subCalls(), 1)

	// a different cycle is a different subscription
	_, err = env.subs.CreateSubscription(ctx, pricing.PlanGrow, pricing.CycleMonthly, testUser)
	assert.NoError(t, err)
}

func TestCreateSubscription_ConcurrentSameTriple(t *testing.T) {
	env := newTestService(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.subs.CreateSubscription(context.Background(), pricing.PlanThrive, pricing.CycleMonthly, testUser)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrSubscriptionAlreadyExists)
	}
	assert.Equal(t, 1, created)
	assert.Len(t, env.gw.subCalls(), 1)
	assert.Equal(t, 1, env.subRepo.count())
}

func TestCreateSubscription_GatewayUnavailableNotRetried(t *testing.T) {
	env := newTestService(t)
	env.gw.subErrs = []error{errors.New("dial tcp: connection refused")}

	_, err := env.subs.CreateSubscription(context.Background(), pricing.PlanGrow, pricing.CycleMonthly, testUser)
	require.ErrorIs(t, err, apperrors.ErrGatewayUnavailable)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Len(t, env.gw.subCalls(), 1)
	assert.Equal(t, 0, env.subRepo.count())
}

func TestCreateSubscription_Rejected(t *testing.T) {
	env := newTestService(t)
	env.gw.subErrs = []error{apperrors.ErrGatewayRejected.Wrap(errors.New("plan does not exist"))}

	_, err := env.subs.CreateSubscription(context.Background(), pricing.PlanGrow, pricing.CycleMonthly, testUser)
	assert.ErrorIs(t, err, apperrors.ErrGatewayRejected)
	assert.False(t, apperrors.IsRetryable(err))
}

func TestCreateSubscription_UnknownPlan(t *testing.T) {
	env := newTestService(t)

	_, err := env.subs.CreateSubscription(context.Background(), pricing.PlanGrow, pricing.BillingCycle("weekly"), testUser)
	assert.ErrorIs(t, err, apperrors.ErrUnknownPlan)
	assert.Empty(t, env.gw.subCalls())
}

func TestCreateSubscription_AllowedAfterCancellation(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	first, err := env.subs.CreateSubscription(ctx, pricing.PlanGrow, pricing.CycleMonthly, testUser)
	require.NoError(t, err)

	_, err = env.subs.MirrorStatus(ctx, first.SubscriptionID, models.SubscriptionStatusCancelled, 0)
	require.NoError(t, err)

	second, err := env.subs.CreateSubscription(ctx, pricing.PlanGrow, pricing.CycleMonthly, testUser)
	require.NoError(t, err)
	assert.NotEqual(t, first.SubscriptionID, second.SubscriptionID)
}

func TestGetSubscription_NotFound(t *testing.T) {
	env := newTestService(t)

	_, err := env.subs.GetSubscription(context.Background(), testUser.ID, pricing.PlanGrow, pricing.CycleMonthly)
	assert.ErrorIs(t, err, apperrors.ErrSubscriptionNotFound)
}

func TestMirrorStatus(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	sub, err := env.subs.CreateSubscription(ctx, pricing.PlanThrive, pricing.CycleMonthly, testUser)
	require.NoError(t, err)

	updated, err := env.subs.MirrorStatus(ctx, sub.SubscriptionID, models.SubscriptionStatusActive, 11)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, updated.Status)
	assert.Equal(t, 11, updated.RemainingCycles)
	assert.Len(t, env.events.ofType(models.EventSubscriptionUpdated), 1)

	_, err = env.subs.MirrorStatus(ctx, sub.SubscriptionID, models.SubscriptionStatusCompleted, 0)
	require.NoError(t, err)

	// late webhooks never reopen a finished subscription
	late, err := env.subs.MirrorStatus(ctx, sub.SubscriptionID, models.SubscriptionStatusActive, 5)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCompleted, late.Status)

	_, err = env.subs.MirrorStatus(ctx, "sub_missing", models.SubscriptionStatusActive, 1)
	assert.ErrorIs(t, err, apperrors.ErrSubscriptionNotFound)
}

func TestMirrorStatus_ConcurrentCancelStaysCancelled(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	sub, err := env.subs.CreateSubscription(ctx, pricing.PlanGrow, pricing.CycleMonthly, testUser)
	require.NoError(t, err)
	snapshot := *sub

	_, err = env.subs.MirrorStatus(ctx, sub.SubscriptionID, models.SubscriptionStatusCancelled, 0)
	require.NoError(t, err)

	// the late activation read the row before the cancellation committed
	late := services.NewSubscriptionService(services.SubscriptionServiceDeps{
		Catalog:       pricing.DefaultCatalog(),
		Gateway:       env.gw,
		Subscriptions: &staleSubscriptionRepo{memSubscriptionRepo: env.subRepo, snapshot: snapshot},
		Publisher:     env.events,
	})
	got, err := late.MirrorStatus(ctx, sub.SubscriptionID, models.SubscriptionStatusActive, 11)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, got.Status)

	stored, err := env.subRepo.FindBySubscriptionID(ctx, sub.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, stored.Status)
	assert.Equal(t, 0, stored.RemainingCycles)

	_, err = env.subs.CreateSubscription(ctx, pricing.PlanGrow, pricing.CycleMonthly, testUser)
	assert.NoError(t, err)
}

func TestCreateSubscription_LockStoreDown(t *testing.T) {
	gw := newMockGateway()
	subs := services.NewSubscriptionService(services.SubscriptionServiceDeps{
		Catalog:       pricing.DefaultCatalog(),
		Gateway:       gw,
		Subscriptions: &memSubscriptionRepo{},
		Locker:        failingLocker{},
	})

	_, err := subs.CreateSubscription(context.Background(), pricing.PlanGrow, pricing.CycleMonthly, testUser)
	require.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Empty(t, gw.subCalls())
}
