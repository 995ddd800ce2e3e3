package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"unschooling-payment-service/pricing"
)

type PlanController struct {
	Catalog pricing.Catalog
	Logger  *zap.Logger
}

type planPrice struct {
	PlanID        string               `json:"plan_id"`
	PlanType      pricing.PlanType     `json:"plan_type"`
	BillingCycle  pricing.BillingCycle `json:"billing_cycle"`
	Amount        int64                `json:"amount"`
	Currency      string               `json:"currency"`
	DisplayPrice  string               `json:"display_price"`
	YearlySavings *string              `json:"yearly_savings,omitempty"`
}

// ListPlans returns every catalog entry with its display price. Yearly
// entries also carry the saving over twelve monthly charges.
func (pc *PlanController) ListPlans(c *gin.Context) {
	entries := pc.Catalog.Entries()
	out := make([]planPrice, 0, len(entries))
	for _, e := range entries {
		display, err := pricing.FormatDisplay(e.Amount, e.Currency)
		if err != nil {
			respondError(c, pc.Logger, "Failed to format plan price", err)
			return
		}
		p := planPrice{
			PlanID:       pricing.PlanID(e.PlanType, e.BillingCycle),
			PlanType:     e.PlanType,
			BillingCycle: e.BillingCycle,
			Amount:       e.Amount,
			Currency:     e.Currency,
			DisplayPrice: display,
		}
		if e.BillingCycle == pricing.CycleYearly {
			savings, err := pc.Catalog.GetYearlySavings(e.PlanType)
			if err != nil {
				respondError(c, pc.Logger, "Invalid catalog savings", err)
				return
			}
			s, err := pricing.FormatDisplay(savings, e.Currency)
			if err != nil {
				respondError(c, pc.Logger, "Failed to format savings", err)
				return
			}
			p.YearlySavings = &s
		}
		out = append(out, p)
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}
