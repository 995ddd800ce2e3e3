package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"unschooling-payment-service/apperrors"
	"unschooling-payment-service/controllers"
	"unschooling-payment-service/middleware"
)

// Controllers groups every HTTP handler the service exposes.
type Controllers struct {
	Plans         *controllers.PlanController
	Payments      *controllers.PaymentController
	Subscriptions *controllers.SubscriptionController
	Webhooks      *controllers.WebhookController
}

// RegisterRoutes mounts every route. perUser runs after authentication on the
// authenticated groups, so it can key on the caller.
func RegisterRoutes(r *gin.Engine, ctl Controllers, perUser ...gin.HandlerFunc) {
	r.NoRoute(func(c *gin.Context) {
		_ = c.Error(apperrors.ErrNotFound.Wrapf("no route for %s %s", c.Request.Method, c.Request.URL.Path))
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/plans", ctl.Plans.ListPlans)

	payments := r.Group("/payments")
	payments.Use(middleware.AuthMiddleware())
	payments.Use(perUser...)
	payments.POST("/orders", ctl.Payments.CreateOrder)
	payments.GET("/orders/:id", ctl.Payments.GetOrder)
	payments.POST("/verify", ctl.Payments.VerifyPayment)

	subs := r.Group("/subscriptions")
	subs.Use(middleware.AuthMiddleware())
	subs.Use(perUser...)
	subs.POST("", ctl.Subscriptions.CreateSubscription)
	subs.GET("", ctl.Subscriptions.GetSubscription)

	// gateway webhook (no auth; signed body)
	r.POST("/razorpay/webhook", ctl.Webhooks.RazorpayWebhook)
}
