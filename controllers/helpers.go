package controllers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"unschooling-payment-service/apperrors"
	"unschooling-payment-service/logger"
	"unschooling-payment-service/pricing"
)

// respondError logs err and hands it to apperrors.ErrorMiddleware, which
// renders only the public message.
func respondError(c *gin.Context, log *zap.Logger, msg string, err error) {
	appErr := apperrors.From(err)
	fields := append(logger.WithRequest(c), zap.Int("status", appErr.Code), zap.Error(err))
	if appErr.Code >= 500 {
		log.Error(msg, fields...)
	} else {
		log.Warn(msg, fields...)
	}
	_ = c.Error(appErr)
}

// parsePlan reads and validates a (plan_type, billing_cycle) pair.
func parsePlan(planType, billingCycle string) (pricing.PlanType, pricing.BillingCycle, error) {
	plan, err := pricing.ParsePlanType(planType)
	if err != nil {
		return "", "", err
	}
	cycle, err := pricing.ParseBillingCycle(billingCycle)
	if err != nil {
		return "", "", err
	}
	return plan, cycle, nil
}
