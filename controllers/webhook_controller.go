package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"unschooling-payment-service/apperrors"
	"unschooling-payment-service/models"
	"unschooling-payment-service/services"
	"unschooling-payment-service/signature"
)

const (
	WebhookSignatureHeader = "X-Razorpay-Signature"
	maxWebhookBody         = 1 << 20
)

type WebhookController struct {
	Subscriptions services.SubscriptionService
	Secret        string
	Logger        *zap.Logger
	Audit         *zap.Logger
}

// RazorpayWebhook authenticates the raw body before parsing it. Subscription
// events are mirrored; payment events are logged, since orders settle only
// through the checkout callback.
func (wc *WebhookController) RazorpayWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		respondError(c, wc.Logger, "Failed to read webhook body", apperrors.ErrInvalidWebhook.Wrap(err))
		return
	}

	if !signature.VerifyWebhook(body, c.GetHeader(WebhookSignatureHeader), wc.Secret) {
		wc.Audit.Warn("webhook_signature_mismatch",
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", len(body)),
		)
		respondError(c, wc.Logger, "Invalid webhook signature", apperrors.ErrInvalidWebhook)
		return
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		respondError(c, wc.Logger, "Malformed webhook body", apperrors.ErrInvalidWebhook.Wrap(err))
		return
	}

	switch {
	case strings.HasPrefix(event.Event, "subscription."):
		if !wc.mirrorSubscription(c, event) {
			return
		}
	case strings.HasPrefix(event.Event, "payment."):
		if p := event.Payload.Payment; p != nil {
			wc.Logger.Info("Payment webhook received",
				zap.String("event", event.Event),
				zap.String("payment_id", p.Entity.ID),
				zap.String("order_id", p.Entity.OrderID),
				zap.String("status", p.Entity.Status),
			)
		}
	default:
		wc.Logger.Debug("Ignoring webhook event", zap.String("event", event.Event))
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// mirrorSubscription reports whether the handler should acknowledge. Unknown
// subscriptions are acknowledged so the gateway stops redelivering; storage
// failures are not, so it retries.
func (wc *WebhookController) mirrorSubscription(c *gin.Context, event models.WebhookEvent) bool {
	s := event.Payload.Subscription
	if s == nil || s.Entity.ID == "" {
		respondError(c, wc.Logger, "Subscription webhook without entity", apperrors.ErrInvalidWebhook)
		return false
	}

	_, err := wc.Subscriptions.MirrorStatus(c.Request.Context(), s.Entity.ID, models.SubscriptionStatus(s.Entity.Status), s.Entity.RemainingCount)
	if errors.Is(err, apperrors.ErrSubscriptionNotFound) {
		wc.Logger.Warn("Webhook for unknown subscription",
			zap.String("event", event.Event),
			zap.String("subscription_id", s.Entity.ID),
		)
		return true
	}
	if err != nil {
		respondError(c, wc.Logger, "Failed to mirror subscription status", err)
		return false
	}
	return true
}
