package controllers

import (
	"net/http"
	"strconv"

	"github.com/Syed-Nuhad/automart/common/apperrors"
	"github.com/Syed-Nuhad/automart/middleware"
	"github.com/Syed-Nuhad/automart/models"
	"github.com/Syed-Nuhad/automart/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CheckoutController struct {
	Checkout *services.CheckoutService
	Logger   *zap.Logger
}

func NewCheckoutController(checkout *services.CheckoutService, logger *zap.Logger) *CheckoutController {
	return &CheckoutController{Checkout: checkout, Logger: logger}
}

type startCheckoutRequest struct {
	Gateway string `json:"gateway" binding:"required,oneof=paypal stripe"`
	Email   string `json:"email" binding:"omitempty,email"`
}

// StartCheckout snapshots the cart into a pending order and returns the
// gateway redirect the buyer approves on.
func (cc *CheckoutController) StartCheckout(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req startCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ctx := c.Request.Context()
	var (
		result *services.StartCheckoutResult
		err    error
	)
	switch req.Gateway {
	case models.GatewayPayPal:
		result, err = cc.Checkout.StartPayPalCheckout(ctx, userID, req.Email)
	case models.GatewayStripe:
		result, err = cc.Checkout.StartStripeCheckout(ctx, userID, req.Email)
	}
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":     result.Order.ID,
		"order_number": result.Order.DisplayNumber,
		"status":       result.Order.Status,
		"total_amount": result.Order.TotalAmount,
		"currency":     result.Order.Currency,
		"redirect_url": result.RedirectURL,
	})
}

// PayPalReturn is where PayPal sends the buyer after approval. The token
// query parameter is the remote order id; capture and settlement happen
// here, racing the webhook safely.
func (cc *CheckoutController) PayPalReturn(c *gin.Context) {
	remoteOrderID := c.Query("token")
	if remoteOrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}

	order, err := cc.Checkout.CompletePayPalReturn(c.Request.Context(), remoteOrderID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, orderResponse(order))
}

// PayPalCancel marks a still-pending order canceled when the buyer backs
// out at PayPal. Orders past pending are left untouched.
func (cc *CheckoutController) PayPalCancel(c *gin.Context) {
	orderID, err := uuid.Parse(c.Query("order_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := cc.Checkout.CancelCheckout(c.Request.Context(), orderID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, orderResponse(order))
}

// GetOrder returns the current state of one order.
func (cc *CheckoutController) GetOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("order_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := cc.Checkout.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if order.UserID != middleware.GetUserID(c) {
		apperrors.HandleError(c, apperrors.ErrUnknownOrder)
		return
	}

	c.JSON(http.StatusOK, orderResponse(order))
}

// ListOrders returns the caller's orders, newest first.
func (cc *CheckoutController) ListOrders(c *gin.Context) {
	userID := middleware.GetUserID(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	orders, total, err := cc.Checkout.ListUserOrders(c.Request.Context(), userID, page, limit)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	out := make([]gin.H, 0, len(orders))
	for i := range orders {
		out = append(out, orderResponse(&orders[i]))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out, "total": total, "page": page, "limit": limit})
}

// RefundOrder refunds a paid order in full at its gateway.
func (cc *CheckoutController) RefundOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("order_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := cc.Checkout.RefundOrder(c.Request.Context(), orderID)
	if err != nil {
		cc.Logger.Warn("Refund failed",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, orderResponse(order))
}

func orderResponse(order *models.Order) gin.H {
	items := make([]gin.H, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, gin.H{
			"product_id":  it.ProductID,
			"name":        it.Name,
			"unit_amount": it.UnitAmount,
			"quantity":    it.Quantity,
			"line_total":  it.LineTotal,
		})
	}
	resp := gin.H{
		"order_id":     order.ID,
		"order_number": order.DisplayNumber,
		"status":       order.Status,
		"gateway":      order.Gateway,
		"total_amount": order.TotalAmount,
		"currency":     order.Currency,
		"items":        items,
		"created_at":   order.CreatedAt,
	}
	if order.PaidAt != nil {
		resp["paid_at"] = order.PaidAt
	}
	if order.RefundedAt != nil {
		resp["refunded_at"] = order.RefundedAt
	}
	if order.FailureReason != nil {
		resp["failure_reason"] = *order.FailureReason
	}
	return resp
}
