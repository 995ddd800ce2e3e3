package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"unschooling-payment-service/apperrors"
	"unschooling-payment-service/middleware"
	"unschooling-payment-service/models"
	"unschooling-payment-service/services"
)

type SubscriptionController struct {
	Subscriptions services.SubscriptionService
	Logger        *zap.Logger
}

func (sc *SubscriptionController) CreateSubscription(c *gin.Context) {
	var req models.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, sc.Logger, "Invalid subscription request", apperrors.ErrBadRequest.Wrap(err))
		return
	}
	plan, cycle, err := parsePlan(req.PlanType, req.BillingCycle)
	if err != nil {
		respondError(c, sc.Logger, "Invalid plan in subscription request", err)
		return
	}
	user, ok := middleware.GetUser(c)
	if !ok {
		respondError(c, sc.Logger, "Missing user on subscription request", apperrors.ErrUnauthorized)
		return
	}

	sub, err := sc.Subscriptions.CreateSubscription(c.Request.Context(), plan, cycle, user)
	if err != nil {
		respondError(c, sc.Logger, "Failed to create subscription", err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// GetSubscription returns the caller's live subscription for the
// plan_type and billing_cycle query parameters.
func (sc *SubscriptionController) GetSubscription(c *gin.Context) {
	plan, cycle, err := parsePlan(c.Query("plan_type"), c.Query("billing_cycle"))
	if err != nil {
		respondError(c, sc.Logger, "Invalid plan in subscription query", err)
		return
	}

	sub, err := sc.Subscriptions.GetSubscription(c.Request.Context(), middleware.GetUserID(c), plan, cycle)
	if err != nil {
		respondError(c, sc.Logger, "Failed to fetch subscription", err)
		return
	}
	c.JSON(http.StatusOK, sub)
}
