package services

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	aws_pkg "github.com/Syed-Nuhad/automart/pkg/aws"

	"github.com/Syed-Nuhad/automart/models"
)

// CartStore is the cart collaborator. The checkout core reads and clears
// carts but does not own them.
type CartStore interface {
	GetCart(ctx context.Context, userID string) (*models.Cart, error)
	DeleteCart(ctx context.Context, userID string) error
}

// MarkerStore records idempotency markers for webhook events and receipts.
type MarkerStore interface {
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Seen(ctx context.Context, key string) (bool, error)
}

// Catalog is the listing collaborator used to retire purchased cars.
type Catalog interface {
	MarkSold(ctx context.Context, ids []string) error
}

// Dispatcher runs the post-payment side effects.
type Dispatcher interface {
	OrderPaid(ctx context.Context, order *models.Order)
	OrderFailed(ctx context.Context, order *models.Order)
}

const markerTTL = 30 * 24 * time.Hour

// SideEffectDispatcher triggers cart clearing, listing retirement, receipt
// email and event fan-out once an order is durably paid. Every effect is
// best-effort and individually idempotent; none of them can undo the paid
// transition.
type SideEffectDispatcher struct {
	Carts      CartStore
	CatalogSvc Catalog
	Markers    MarkerStore
	Receipts   ReceiptSender
	Events     aws_pkg.SNSPublisher
	TopicArn   string
	AdminEmail string
	Logger     *zap.Logger
}

func (d *SideEffectDispatcher) OrderPaid(ctx context.Context, order *models.Order) {
	d.clearCart(ctx, order)
	d.retireListings(ctx, order)
	d.sendReceipt(ctx, order)
	d.publishEvent(ctx, order, "payment_succeeded")
}

func (d *SideEffectDispatcher) OrderFailed(ctx context.Context, order *models.Order) {
	d.publishEvent(ctx, order, "payment_failed")
}

func (d *SideEffectDispatcher) clearCart(ctx context.Context, order *models.Order) {
	if err := d.Carts.DeleteCart(ctx, order.UserID); err != nil {
		d.Logger.Warn("Failed to clear cart after payment",
			zap.String("order_id", order.ID.String()),
			zap.String("user_id", order.UserID),
			zap.Error(err),
		)
	}
}

func (d *SideEffectDispatcher) retireListings(ctx context.Context, order *models.Order) {
	ids := make([]string, 0, len(order.Items))
	for _, it := range order.Items {
		ids = append(ids, it.ProductID)
	}
	if err := d.CatalogSvc.MarkSold(ctx, ids); err != nil {
		d.Logger.Warn("Failed to mark listings sold",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
}

// sendReceipt emails the buyer at most once per order, gated by a marker so
// a retried dispatch does not resend.
func (d *SideEffectDispatcher) sendReceipt(ctx context.Context, order *models.Order) {
	if d.Receipts == nil {
		return
	}
	created, err := d.Markers.SetIfAbsent(ctx, "receipt:order:"+order.ID.String(), markerTTL)
	if err != nil {
		d.Logger.Warn("Receipt marker unavailable, skipping send",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return
	}
	if !created {
		return
	}

	if err := d.Receipts.SendReceipt(ctx, order); err != nil {
		d.Logger.Warn("Failed to send receipt email",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
	if err := d.Receipts.SendAdminNotice(ctx, order, d.AdminEmail); err != nil {
		d.Logger.Warn("Failed to send admin notice",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
}

func (d *SideEffectDispatcher) publishEvent(ctx context.Context, order *models.Order, eventType string) {
	if d.Events == nil || d.TopicArn == "" {
		return
	}
	payload, _ := json.Marshal(models.PaymentEvent{
		Type:      eventType,
		OrderID:   order.ID.String(),
		UserID:    order.UserID,
		Gateway:   order.Gateway,
		Amount:    order.TotalAmount,
		Currency:  order.Currency,
		Timestamp: time.Now().UTC(),
	})
	if err := d.Events.Publish(ctx, d.TopicArn, payload); err != nil {
		d.Logger.Error("Failed to publish payment event to SNS",
			zap.String("event_type", eventType),
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return
	}
	d.Logger.Info("Payment event published to SNS",
		zap.String("event_type", eventType),
		zap.String("order_id", order.ID.String()),
	)
}
