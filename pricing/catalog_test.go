package pricing_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unschooling-payment-service/apperrors"
	"unschooling-payment-service/pricing"
)

func TestGetAmount_AllCatalogValues(t *testing.T) {
	catalog := pricing.DefaultCatalog()

	want := map[pricing.PlanType]map[pricing.BillingCycle]int64{
		pricing.PlanNurture: {pricing.CycleMonthly: 49900, pricing.CycleYearly: 499000},
		pricing.PlanGrow:    {pricing.CycleMonthly: 79900, pricing.CycleYearly: 799000},
		pricing.PlanThrive:  {pricing.CycleMonthly: 99900, pricing.CycleYearly: 999000},
	}

	for plan, cycles := range want {
		for cycle, amount := range cycles {
			for i := 0; i < 3; i++ {
				got, currency, err := catalog.GetAmount(plan, cycle)
				require.NoError(t, err)
				assert.Equal(t, amount, got, "%s/%s", plan, cycle)
				assert.Equal(t, "INR", currency)
			}
		}
	}
}

func TestGetAmount_UnknownPlanOrCycle(t *testing.T) {
	catalog := pricing.DefaultCatalog()

	_, _, err := catalog.GetAmount("gold", pricing.CycleMonthly)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownPlan))

	_, _, err = catalog.GetAmount(pricing.PlanGrow, "weekly")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownPlan))

	_, _, err = catalog.GetAmount("", "")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownPlan))
}

func TestGetYearlySavings(t *testing.T) {
	catalog := pricing.DefaultCatalog()

	cases := map[pricing.PlanType]int64{
		pricing.PlanNurture: 99800,
		pricing.PlanGrow:    159800,
		pricing.PlanThrive:  199800,
	}
	for plan, want := range cases {
		got, err := catalog.GetYearlySavings(plan)
		require.NoError(t, err)
		assert.Equal(t, want, got, string(plan))
	}

	_, err := catalog.GetYearlySavings("gold")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownPlan))
}

func TestNewCatalog_RejectsNegativeSavings(t *testing.T) {
	table := pricing.Table{
		{49900, 499000},
		{79900, 999999}, // grow yearly > 12 * monthly
		{99900, 999000},
	}
	_, err := pricing.NewCatalog(table)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidCatalog))
}

func TestNewCatalog_RejectsNonPositiveAmounts(t *testing.T) {
	table := pricing.Table{
		{0, 499000},
		{79900, 799000},
		{99900, 999000},
	}
	_, err := pricing.NewCatalog(table)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidCatalog))
}

func TestCatalogCopiesAreIndependent(t *testing.T) {
	table := pricing.Table{
		{100, 1000},
		{200, 2000},
		{300, 3000},
	}
	c, err := pricing.NewCatalog(table)
	require.NoError(t, err)

	table[0][0] = 1 // mutate caller's table after construction
	got, _, err := c.GetAmount(pricing.PlanNurture, pricing.CycleMonthly)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got)

	def, _, _ := pricing.DefaultCatalog().GetAmount(pricing.PlanNurture, pricing.CycleMonthly)
	assert.Equal(t, int64(49900), def)
}

func TestEntries_StableOrder(t *testing.T) {
	entries := pricing.DefaultCatalog().Entries()
	require.Len(t, entries, 6)
	assert.Equal(t, pricing.PlanNurture, entries[0].PlanType)
	assert.Equal(t, pricing.CycleMonthly, entries[0].BillingCycle)
	assert.Equal(t, pricing.PlanThrive, entries[5].PlanType)
	assert.Equal(t, pricing.CycleYearly, entries[5].BillingCycle)
}

func TestParse(t *testing.T) {
	p, err := pricing.ParsePlanType("  Grow ")
	require.NoError(t, err)
	assert.Equal(t, pricing.PlanGrow, p)

	c, err := pricing.ParseBillingCycle("YEARLY")
	require.NoError(t, err)
	assert.Equal(t, pricing.CycleYearly, c)

	_, err = pricing.ParsePlanType("platinum")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownPlan))

	_, err = pricing.ParseBillingCycle("daily")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownPlan))
}

func TestPlanIDAndTotalCycles(t *testing.T) {
	assert.Equal(t, "grow_yearly", pricing.PlanID(pricing.PlanGrow, pricing.CycleYearly))
	assert.Equal(t, "nurture_monthly", pricing.PlanID(pricing.PlanNurture, pricing.CycleMonthly))
	assert.Equal(t, 1, pricing.TotalCycles(pricing.CycleYearly))
	assert.Equal(t, 12, pricing.TotalCycles(pricing.CycleMonthly))
}
