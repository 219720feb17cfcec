package routes

import (
	"net/http"

	"github.com/Syed-Nuhad/automart/controllers"
	"github.com/Syed-Nuhad/automart/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes wires all HTTP routes. Gateway webhooks and the PayPal
// browser return legs stay outside auth; everything else requires the
// gateway-injected user identity.
func RegisterRoutes(r *gin.Engine, cart *controllers.CartController, checkout *controllers.CheckoutController, webhooks *controllers.WebhookController) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Gateway callbacks (no auth)
	r.POST("/webhooks/paypal", webhooks.PayPalWebhook)
	r.POST("/webhooks/stripe", webhooks.StripeWebhook)
	r.GET("/checkout/paypal/return", checkout.PayPalReturn)
	r.GET("/checkout/paypal/cancel", checkout.PayPalCancel)

	api := r.Group("/")
	api.Use(middleware.AuthMiddleware())

	api.GET("/cart", cart.GetCart)
	api.POST("/cart/items", cart.AddItem)
	api.DELETE("/cart/items/:listing_id", cart.RemoveItem)
	api.DELETE("/cart", cart.ClearCart)

	api.POST("/checkout", checkout.StartCheckout)
	api.GET("/orders", checkout.ListOrders)
	api.GET("/orders/:order_id", checkout.GetOrder)
	api.POST("/orders/:order_id/refund", checkout.RefundOrder)
}
