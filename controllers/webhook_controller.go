package controllers

import (
	"io"
	"net/http"

	"github.com/Syed-Nuhad/automart/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookController terminates gateway webhooks. A 2xx acknowledges the
// event; anything else makes the gateway redeliver, so only transient
// internal failures return 5xx.
type WebhookController struct {
	Checkout *services.CheckoutService
	Stripe   services.StripeGateway
	Logger   *zap.Logger
}

func NewWebhookController(checkout *services.CheckoutService, stripe services.StripeGateway, logger *zap.Logger) *WebhookController {
	return &WebhookController{Checkout: checkout, Stripe: stripe, Logger: logger}
}

// PayPalWebhook receives PAYMENT.CAPTURE.COMPLETED (and other) events.
func (wc *WebhookController) PayPalWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	if err := wc.Checkout.HandlePayPalEvent(c.Request.Context(), body); err != nil {
		wc.Logger.Error("PayPal webhook processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// StripeWebhook verifies the signature and hands the event to the
// reconciler.
func (wc *WebhookController) StripeWebhook(c *gin.Context) {
	event, err := wc.Stripe.ParseWebhook(c.Request)
	if err != nil {
		wc.Logger.Warn("Stripe webhook signature verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook"})
		return
	}

	if err := wc.Checkout.HandleStripeEvent(c.Request.Context(), event); err != nil {
		wc.Logger.Error("Stripe webhook processing failed",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
