package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"unschooling-payment-service/apperrors"
	"unschooling-payment-service/middleware"
	"unschooling-payment-service/models"
	"unschooling-payment-service/pricing"
	"unschooling-payment-service/services"
)

// IdempotencyKeyHeader carries the caller's retry key for order creation.
const IdempotencyKeyHeader = "Idempotency-Key"

type PaymentController struct {
	Orders services.OrderService
	KeyID  string // public key id handed to the checkout widget
	Logger *zap.Logger
}

// CreateOrder starts a plan purchase. The amount always comes from the
// catalog; a body carrying "amount" is ignored.
func (pc *PaymentController) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, pc.Logger, "Invalid order request", apperrors.ErrBadRequest.Wrap(err))
		return
	}
	plan, cycle, err := parsePlan(req.PlanType, req.BillingCycle)
	if err != nil {
		respondError(c, pc.Logger, "Invalid plan in order request", err)
		return
	}

	user, ok := middleware.GetUser(c)
	if !ok {
		respondError(c, pc.Logger, "Missing user on order request", apperrors.ErrUnauthorized)
		return
	}

	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if len(key) > 255 {
		respondError(c, pc.Logger, "Idempotency key too long", apperrors.ErrBadRequest.Wrapf("key length %d", len(key)))
		return
	}

	order, err := pc.Orders.CreateOrder(c.Request.Context(), plan, cycle, user, key, services.WithRecurring(req.Recurring))
	if err != nil {
		respondError(c, pc.Logger, "Failed to create order", err)
		return
	}

	resp, err := pc.orderResponse(order)
	if err != nil {
		respondError(c, pc.Logger, "Failed to render order", err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetOrder lets the owner poll an order's status.
func (pc *PaymentController) GetOrder(c *gin.Context) {
	order, err := pc.Orders.GetOrder(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, pc.Logger, "Failed to fetch order", err)
		return
	}
	resp, err := pc.orderResponse(order)
	if err != nil {
		respondError(c, pc.Logger, "Failed to render order", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// VerifyPayment settles an order from the checkout callback the client
// relays after paying.
func (pc *PaymentController) VerifyPayment(c *gin.Context) {
	var req models.PaymentAssertion
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, pc.Logger, "Invalid payment callback", apperrors.ErrInvalidCallback.Wrap(err))
		return
	}

	userID := middleware.GetUserID(c)
	if userID == "" {
		respondError(c, pc.Logger, "Missing user on payment callback", apperrors.ErrUnauthorized)
		return
	}

	// orders of other users are not found, and are never settled by this caller
	order, err := pc.Orders.VerifyAndFinalize(c.Request.Context(), req.OrderID, req.PaymentID, req.Signature, services.ForOwner(userID))
	if err != nil {
		respondError(c, pc.Logger, "Payment verification failed", err)
		return
	}

	body := gin.H{
		"order_id": order.OrderID,
		"status":   order.Status,
	}
	if order.PaymentID != nil {
		body["payment_id"] = *order.PaymentID
	}
	c.JSON(http.StatusOK, body)
}

func (pc *PaymentController) orderResponse(o *models.Order) (models.OrderResponse, error) {
	display, err := pricing.FormatDisplay(o.Amount, o.Currency)
	if err != nil {
		return models.OrderResponse{}, err
	}
	return models.OrderResponse{
		OrderID:      o.OrderID,
		Receipt:      o.Receipt,
		Amount:       o.Amount,
		Currency:     o.Currency,
		DisplayPrice: display,
		PlanType:     o.PlanType,
		BillingCycle: o.BillingCycle,
		Status:       o.Status,
		KeyID:        pc.KeyID,
	}, nil
}
