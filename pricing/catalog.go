// Package pricing holds the fixed plan catalog. Every amount charged by the
// service is read from here; client-supplied amounts are never used.
package pricing

import (
	"fmt"
	"strings"

	"unschooling-payment-service/apperrors"
)

// PlanType is a subscription tier.
type PlanType string

// BillingCycle is how often a plan is charged.
type BillingCycle string

const (
	PlanNurture PlanType = "nurture"
	PlanGrow    PlanType = "grow"
	PlanThrive  PlanType = "thrive"
)

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// CurrencyINR is the only currency the catalog is priced in.
const CurrencyINR = "INR"

var planOrder = [...]PlanType{PlanNurture, PlanGrow, PlanThrive}
var cycleOrder = [...]BillingCycle{CycleMonthly, CycleYearly}

// Table is a full price table in minor units, indexed [plan][cycle] in the
// order of Plans() and Cycles().
type Table [len(planOrder)][len(cycleOrder)]int64

// defaultTable is the versioned price list (paise).
var defaultTable = Table{
	{49900, 499000}, // nurture
	{79900, 799000}, // grow
	{99900, 999000}, // thrive
}

// Catalog is an immutable price table. It is a value type; copies never share
// state, so no caller can alter another's prices.
type Catalog struct {
	table    Table
	currency string
}

// Entry is one catalog row.
type Entry struct {
	PlanType     PlanType     `json:"plan_type"`
	BillingCycle BillingCycle `json:"billing_cycle"`
	Amount       int64        `json:"amount"`
	Currency     string       `json:"currency"`
}

// DefaultCatalog returns the production catalog.
func DefaultCatalog() Catalog {
	return Catalog{table: defaultTable, currency: CurrencyINR}
}

// NewCatalog builds a catalog from a custom table. Every amount must be
// positive and yearly pricing must not exceed twelve monthly charges.
func NewCatalog(table Table) (Catalog, error) {
	c := Catalog{table: table, currency: CurrencyINR}
	for pi, plan := range planOrder {
		for ci, cycle := range cycleOrder {
			if table[pi][ci] <= 0 {
				return Catalog{}, apperrors.ErrInvalidCatalog.Wrapf("%s/%s has non-positive amount %d", plan, cycle, table[pi][ci])
			}
		}
		if _, err := c.GetYearlySavings(plan); err != nil {
			return Catalog{}, err
		}
	}
	return c, nil
}

// GetAmount returns the price of plan billed per cycle, in minor units.
func (c Catalog) GetAmount(plan PlanType, cycle BillingCycle) (int64, string, error) {
	pi, ci, err := index(plan, cycle)
	if err != nil {
		return 0, "", err
	}
	return c.table[pi][ci], c.currency, nil
}

// GetYearlySavings returns what a yearly subscriber saves over twelve monthly
// payments. A catalog where yearly costs more than that is invalid.
func (c Catalog) GetYearlySavings(plan PlanType) (int64, error) {
	monthly, _, err := c.GetAmount(plan, CycleMonthly)
	if err != nil {
		return 0, err
	}
	yearly, _, err := c.GetAmount(plan, CycleYearly)
	if err != nil {
		return 0, err
	}
	savings := monthly*12 - yearly
	if savings < 0 {
		return 0, apperrors.ErrInvalidCatalog.Wrapf("%s yearly price exceeds 12 monthly payments", plan)
	}
	return savings, nil
}

// Entries lists every catalog row in stable plan/cycle order.
func (c Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(planOrder)*len(cycleOrder))
	for pi, plan := range planOrder {
		for ci, cycle := range cycleOrder {
			out = append(out, Entry{
				PlanType:     plan,
				BillingCycle: cycle,
				Amount:       c.table[pi][ci],
				Currency:     c.currency,
			})
		}
	}
	return out
}

// Plans returns the known plan types.
func Plans() []PlanType {
	return append([]PlanType(nil), planOrder[:]...)
}

// Cycles returns the known billing cycles.
func Cycles() []BillingCycle {
	return append([]BillingCycle(nil), cycleOrder[:]...)
}

// ParsePlanType normalizes user input into a PlanType.
func ParsePlanType(s string) (PlanType, error) {
	p := PlanType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range planOrder {
		if p == known {
			return p, nil
		}
	}
	return "", apperrors.ErrUnknownPlan.Wrapf("plan type %q", s)
}

// ParseBillingCycle normalizes user input into a BillingCycle.
func ParseBillingCycle(s string) (BillingCycle, error) {
	b := BillingCycle(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range cycleOrder {
		if b == known {
			return b, nil
		}
	}
	return "", apperrors.ErrUnknownPlan.Wrapf("billing cycle %q", s)
}

// PlanID is the gateway-side plan reference. The plans themselves are
// provisioned in the gateway dashboard.
func PlanID(plan PlanType, cycle BillingCycle) string {
	return fmt.Sprintf("%s_%s", plan, cycle)
}

// TotalCycles is the number of charges under one subscription commitment:
// a single yearly charge, or a year of monthly charges.
func TotalCycles(cycle BillingCycle) int {
	if cycle == CycleYearly {
		return 1
	}
	return 12
}

func index(plan PlanType, cycle BillingCycle) (int, int, error) {
	pi, ci := -1, -1
	for i, p := range planOrder {
		if p == plan {
			pi = i
			break
		}
	}
	for i, b := range cycleOrder {
		if b == cycle {
			ci = i
			break
		}
	}
	if pi < 0 || ci < 0 {
		return 0, 0, apperrors.ErrUnknownPlan.Wrapf("%q/%q", plan, cycle)
	}
	return pi, ci, nil
}
