package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"

	"github.com/Syed-Nuhad/automart/common/apperrors"
	"github.com/Syed-Nuhad/automart/models"
	"github.com/Syed-Nuhad/automart/repository"
)

// CheckoutService owns the order lifecycle: snapshotting the cart into a
// pending order, round-tripping to the payment gateway, and reconciling
// the gateway's answer (synchronous return or asynchronous webhook)
// against the stored snapshot.
//
// The webhook is the system of record for marking an order paid; the
// return path is a fast-path UX optimization that runs the same guarded
// transition.
type CheckoutService struct {
	orders  repository.OrderRepository
	carts   CartStore
	markers MarkerStore
	paypal  PayPalGateway
	stripe  StripeGateway
	effects Dispatcher

	currency      string
	publicBaseURL string
	frontendURL   string
	logger        *zap.Logger
}

func NewCheckoutService(
	orders repository.OrderRepository,
	carts CartStore,
	markers MarkerStore,
	paypal PayPalGateway,
	stripeGW StripeGateway,
	effects Dispatcher,
	currency, publicBaseURL, frontendURL string,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		orders:        orders,
		carts:         carts,
		markers:       markers,
		paypal:        paypal,
		stripe:        stripeGW,
		effects:       effects,
		currency:      strings.ToLower(currency),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		frontendURL:   strings.TrimRight(frontendURL, "/"),
		logger:        logger,
	}
}

// StartCheckoutResult carries the created order and the gateway page to
// send the user to.
type StartCheckoutResult struct {
	Order       *models.Order
	RedirectURL string
}

// buildSnapshot reads the cart into an immutable ordered line-item list
// plus a recomputed total. Pure read; the cart is untouched. An empty or
// unreadable cart yields (nil, 0).
func (s *CheckoutService) buildSnapshot(ctx context.Context, userID string) ([]models.OrderItem, int) {
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		s.logger.Warn("Cart unreadable, treating as empty",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, 0
	}
	if cart == nil || len(cart.Items) == 0 {
		return nil, 0
	}

	items := make([]models.OrderItem, 0, len(cart.Items))
	total := 0
	for _, line := range cart.Items {
		qty := line.Quantity
		if qty < 1 {
			qty = 1
		}
		lineTotal := line.UnitAmount * qty
		items = append(items, models.OrderItem{
			ID:         uuid.New(),
			ProductID:  line.ProductID,
			Name:       line.Name,
			UnitAmount: line.UnitAmount,
			Quantity:   qty,
			LineTotal:  lineTotal,
		})
		total += lineTotal
	}
	return items, total
}

// createPendingOrder persists the order row and its snapshot. The total is
// always the server-side sum of the recorded items.
func (s *CheckoutService) createPendingOrder(ctx context.Context, userID, email, gateway string, items []models.OrderItem, total int) (*models.Order, error) {
	id := uuid.New()
	for i := range items {
		items[i].OrderID = id
	}
	order := &models.Order{
		ID:            id,
		DisplayNumber: models.DisplayNumberFor(id),
		UserID:        userID,
		Email:         email,
		Currency:      s.currency,
		TotalAmount:   total,
		Status:        models.OrderStatusPending,
		Gateway:       gateway,
		Items:         items,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// StartPayPalCheckout builds the snapshot, creates a pending local order,
// creates the matching remote order and returns the approval redirect.
// A gateway failure leaves the order pending with no external id; the user
// retries with a fresh StartPayPalCheckout, which creates a new order.
func (s *CheckoutService) StartPayPalCheckout(ctx context.Context, userID, email string) (*StartCheckoutResult, error) {
	items, total := s.buildSnapshot(ctx, userID)
	if total <= 0 || len(items) == 0 {
		return nil, apperrors.ErrEmptyCart
	}

	order, err := s.createPendingOrder(ctx, userID, email, models.GatewayPayPal, items, total)
	if err != nil {
		return nil, err
	}

	lines := make([]RemoteOrderLine, 0, len(order.Items))
	for _, it := range order.Items {
		lines = append(lines, RemoteOrderLine{
			Name:       it.Name,
			UnitAmount: it.UnitAmount,
			Quantity:   it.Quantity,
		})
	}

	remote, err := s.paypal.CreateRemoteOrder(ctx, RemoteOrderRequest{
		CorrelationID:  order.ID.String(),
		InvoiceID:      strings.ToLower(order.DisplayNumber),
		Currency:       order.Currency,
		TotalAmount:    order.TotalAmount,
		Lines:          lines,
		ReturnURL:      s.publicBaseURL + "/checkout/paypal/return",
		CancelURL:      s.publicBaseURL + "/checkout/paypal/cancel?order_id=" + order.ID.String(),
		IdempotencyKey: "pp-create-" + order.ID.String(),
	})
	if err != nil {
		s.logger.Warn("PayPal order creation failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return nil, apperrors.Wrap(apperrors.ErrCheckoutCreateFailed, err)
	}

	if err := s.orders.SetExternalID(ctx, order.ID, remote.ID); err != nil {
		return nil, err
	}
	order.ExternalID = &remote.ID

	s.logger.Info("Checkout started",
		zap.String("order_id", order.ID.String()),
		zap.String("gateway", models.GatewayPayPal),
		zap.String("external_id", remote.ID),
		zap.Int("total_amount", order.TotalAmount),
	)
	return &StartCheckoutResult{Order: order, RedirectURL: remote.ApprovalURL}, nil
}

// StartStripeCheckout is the card-redirect flavor: the Checkout Session both
// collects approval and captures, so only the webhook finishes the order.
func (s *CheckoutService) StartStripeCheckout(ctx context.Context, userID, email string) (*StartCheckoutResult, error) {
	items, total := s.buildSnapshot(ctx, userID)
	if total <= 0 || len(items) == 0 {
		return nil, apperrors.ErrEmptyCart
	}

	order, err := s.createPendingOrder(ctx, userID, email, models.GatewayStripe, items, total)
	if err != nil {
		return nil, err
	}

	successURL := s.frontendURL + "/checkout/success?order_id=" + order.ID.String()
	cancelURL := s.frontendURL + "/checkout/cancel?order_id=" + order.ID.String()

	sessionID, redirectURL, err := s.stripe.CreateCheckoutSession(order, successURL, cancelURL, "stripe-session-"+order.ID.String())
	if err != nil {
		s.logger.Warn("Stripe session creation failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return nil, apperrors.Wrap(apperrors.ErrCheckoutCreateFailed, err)
	}

	if err := s.orders.SetExternalID(ctx, order.ID, sessionID); err != nil {
		return nil, err
	}
	order.ExternalID = &sessionID

	s.logger.Info("Checkout started",
		zap.String("order_id", order.ID.String()),
		zap.String("gateway", models.GatewayStripe),
		zap.String("external_id", sessionID),
		zap.Int("total_amount", order.TotalAmount),
	)
	return &StartCheckoutResult{Order: order, RedirectURL: redirectURL}, nil
}

// CompletePayPalReturn handles the buyer's synchronous return from PayPal:
// capture, verify against the snapshot, and apply the guarded transition.
// Safe to call repeatedly and concurrently with the webhook.
func (s *CheckoutService) CompletePayPalReturn(ctx context.Context, remoteOrderID string) (*models.Order, error) {
	order, err := s.orders.FindByExternalID(ctx, models.GatewayPayPal, remoteOrderID)
	if err != nil {
		if err == repository.ErrOrderNotFound {
			return nil, apperrors.ErrUnknownOrder
		}
		return nil, err
	}

	// Idempotent fast path; no duplicate capture call.
	if order.IsTerminal() {
		return order, nil
	}

	capture, err := s.paypal.CaptureRemoteOrder(ctx, remoteOrderID, "pp-capture-"+order.ID.String())
	if err != nil {
		s.logger.Warn("PayPal capture failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		reason, _ := json.Marshal(map[string]interface{}{"capture_error": err.Error()})
		if failErr := s.failOrder(ctx, order, string(reason), ""); failErr != nil {
			return nil, failErr
		}
		return s.reload(ctx, order)
	}

	if capture.Amount != order.SnapshotTotal() || capture.Currency != order.Currency {
		if err := s.failMismatch(ctx, order, capture.Amount, capture.Currency, capture.RawPayload); err != nil {
			return nil, err
		}
		return s.reload(ctx, order)
	}

	if _, err := s.finalizePaid(ctx, order, repository.PaymentEvidence{
		CaptureID:  capture.CaptureID,
		PayerID:    capture.PayerID,
		PayerEmail: capture.PayerEmail,
		RawPayload: capture.RawPayload,
	}); err != nil {
		return nil, err
	}
	return s.reload(ctx, order)
}

// CancelCheckout marks a still-pending order canceled. Anything already
// past pending is left untouched.
func (s *CheckoutService) CancelCheckout(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if _, err := s.orders.MarkCanceled(ctx, orderID); err != nil {
		return nil, err
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if err == repository.ErrOrderNotFound {
			return nil, apperrors.ErrUnknownOrder
		}
		return nil, err
	}
	return order, nil
}

// paypalWebhookEvent is the subset of the PayPal webhook envelope the
// reconciler needs.
type paypalWebhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID       string `json:"id"` // capture id
		Status   string `json:"status"`
		CustomID string `json:"custom_id"`
		Amount   struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
		Payer struct {
			PayerID      string `json:"payer_id"`
			EmailAddress string `json:"email_address"`
		} `json:"payer"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// HandlePayPalEvent reconciles an asynchronous gateway notification against
// the stored snapshot. A nil return means the event is durably processed
// (or determined to be a no-op) and must be acked; a non-nil return signals
// a transient internal failure the gateway should retry.
func (s *CheckoutService) HandlePayPalEvent(ctx context.Context, raw []byte) error {
	var event paypalWebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		s.logger.Warn("Undecodable PayPal webhook payload", zap.Error(err))
		return nil
	}

	if event.EventType != "PAYMENT.CAPTURE.COMPLETED" {
		s.logger.Info("Ignoring PayPal webhook event",
			zap.String("event_type", event.EventType),
		)
		return nil
	}

	markerKey := ""
	if event.ID != "" {
		markerKey = "webhook:paypal:" + event.ID
		seen, err := s.markers.Seen(ctx, markerKey)
		if err != nil {
			return fmt.Errorf("webhook marker lookup: %w", err)
		}
		if seen {
			return nil
		}
	}

	order, err := s.resolvePayPalOrder(ctx, event)
	if err != nil {
		return err
	}
	if order == nil {
		// Possibly an event for an order created by another system instance.
		s.logger.Info("PayPal webhook did not match any order",
			zap.String("event_id", event.ID),
			zap.String("custom_id", event.Resource.CustomID),
		)
		return nil
	}

	if order.Status == models.OrderStatusPaid {
		return s.recordWebhookSeen(ctx, markerKey)
	}

	observed, err := ValueToCents(event.Resource.Amount.Value)
	if err != nil {
		s.logger.Warn("Unparseable amount in PayPal webhook",
			zap.String("event_id", event.ID),
			zap.String("value", event.Resource.Amount.Value),
		)
		observed = 0
	}
	observedCurrency := strings.ToLower(event.Resource.Amount.CurrencyCode)

	if observed != order.SnapshotTotal() || observedCurrency != order.Currency {
		if err := s.failMismatch(ctx, order, observed, observedCurrency, string(raw)); err != nil {
			return err
		}
		return s.recordWebhookSeen(ctx, markerKey)
	}

	if _, err := s.finalizePaid(ctx, order, repository.PaymentEvidence{
		CaptureID:  event.Resource.ID,
		PayerID:    event.Resource.Payer.PayerID,
		PayerEmail: event.Resource.Payer.EmailAddress,
		RawPayload: string(raw),
	}); err != nil {
		return err
	}
	return s.recordWebhookSeen(ctx, markerKey)
}

func (s *CheckoutService) resolvePayPalOrder(ctx context.Context, event paypalWebhookEvent) (*models.Order, error) {
	// Prefer the embedded correlation id, fall back to the remote order id.
	if event.Resource.CustomID != "" {
		if id, err := uuid.Parse(event.Resource.CustomID); err == nil {
			order, err := s.orders.FindByID(ctx, id)
			if err == nil {
				return order, nil
			}
			if err != repository.ErrOrderNotFound {
				return nil, err
			}
		}
	}
	if remoteID := event.Resource.SupplementaryData.RelatedIDs.OrderID; remoteID != "" {
		order, err := s.orders.FindByExternalID(ctx, models.GatewayPayPal, remoteID)
		if err == nil {
			return order, nil
		}
		if err != repository.ErrOrderNotFound {
			return nil, err
		}
	}
	return nil, nil
}

// HandleStripeEvent finalizes orders for completed Checkout Sessions. Same
// ack/retry contract as HandlePayPalEvent.
func (s *CheckoutService) HandleStripeEvent(ctx context.Context, event stripe.Event) error {
	if event.Type != "checkout.session.completed" {
		s.logger.Info("Ignoring Stripe webhook event",
			zap.String("event_type", string(event.Type)),
		)
		return nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		s.logger.Warn("Undecodable Stripe checkout session", zap.Error(err))
		return nil
	}

	markerKey := ""
	if event.ID != "" {
		markerKey = "webhook:stripe:" + event.ID
		seen, err := s.markers.Seen(ctx, markerKey)
		if err != nil {
			return fmt.Errorf("webhook marker lookup: %w", err)
		}
		if seen {
			return nil
		}
	}

	order, err := s.resolveStripeOrder(ctx, &sess)
	if err != nil {
		return err
	}
	if order == nil {
		s.logger.Info("Stripe webhook did not match any order",
			zap.String("event_id", event.ID),
			zap.String("session_id", sess.ID),
		)
		return nil
	}

	if order.Status == models.OrderStatusPaid {
		return s.recordWebhookSeen(ctx, markerKey)
	}

	observed := int(sess.AmountTotal)
	observedCurrency := strings.ToLower(string(sess.Currency))

	if observed != order.SnapshotTotal() || observedCurrency != order.Currency {
		if err := s.failMismatch(ctx, order, observed, observedCurrency, string(event.Data.Raw)); err != nil {
			return err
		}
		return s.recordWebhookSeen(ctx, markerKey)
	}

	ev := repository.PaymentEvidence{RawPayload: string(event.Data.Raw)}
	if sess.PaymentIntent != nil {
		ev.CaptureID = sess.PaymentIntent.ID
	}
	if sess.CustomerDetails != nil {
		ev.PayerEmail = sess.CustomerDetails.Email
	}

	if _, err := s.finalizePaid(ctx, order, ev); err != nil {
		return err
	}
	return s.recordWebhookSeen(ctx, markerKey)
}

func (s *CheckoutService) resolveStripeOrder(ctx context.Context, sess *stripe.CheckoutSession) (*models.Order, error) {
	if sess.ClientReferenceID != "" {
		if id, err := uuid.Parse(sess.ClientReferenceID); err == nil {
			order, err := s.orders.FindByID(ctx, id)
			if err == nil {
				return order, nil
			}
			if err != repository.ErrOrderNotFound {
				return nil, err
			}
		}
	}
	if sess.ID != "" {
		order, err := s.orders.FindByExternalID(ctx, models.GatewayStripe, sess.ID)
		if err == nil {
			return order, nil
		}
		if err != repository.ErrOrderNotFound {
			return nil, err
		}
	}
	return nil, nil
}

// RefundOrder refunds a paid order in full and transitions it to refunded.
// Calling it again for an already refunded order is a no-op.
func (s *CheckoutService) RefundOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if err == repository.ErrOrderNotFound {
			return nil, apperrors.ErrUnknownOrder
		}
		return nil, err
	}

	if order.Status == models.OrderStatusRefunded {
		return order, nil
	}
	if order.Status != models.OrderStatusPaid || order.CaptureID == nil {
		return nil, apperrors.ErrOrderNotPaid
	}

	var refundID string
	idemKey := "refund-" + order.ID.String()
	switch order.Gateway {
	case models.GatewayPayPal:
		res, err := s.paypal.RefundCapture(ctx, *order.CaptureID, order.TotalAmount, order.Currency, idemKey)
		if err != nil {
			return nil, err
		}
		refundID = res.RefundID
	case models.GatewayStripe:
		res, err := s.stripe.RefundPaymentIntent(*order.CaptureID, idemKey)
		if err != nil {
			return nil, err
		}
		refundID = res.RefundID
	default:
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, fmt.Errorf("unknown gateway %q", order.Gateway))
	}

	if _, err := s.orders.MarkRefunded(ctx, order.ID, refundID); err != nil {
		return nil, err
	}
	s.logger.Info("Order refunded",
		zap.String("order_id", order.ID.String()),
		zap.String("refund_id", refundID),
	)
	return s.reload(ctx, order)
}

// GetOrder returns the authoritative order record; status pages read this,
// never the redirect that brought the user there.
func (s *CheckoutService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if err == repository.ErrOrderNotFound {
			return nil, apperrors.ErrUnknownOrder
		}
		return nil, err
	}
	return order, nil
}

// ListUserOrders returns the user's orders, newest first.
func (s *CheckoutService) ListUserOrders(ctx context.Context, userID string, page, limit int) ([]models.Order, int64, error) {
	return s.orders.FindByUserID(ctx, userID, page, limit)
}

// finalizePaid runs the guarded pending -> paid transition and, only when
// this call wins it, dispatches the side effects. Losers observe the
// terminal state and do nothing.
func (s *CheckoutService) finalizePaid(ctx context.Context, order *models.Order, ev repository.PaymentEvidence) (bool, error) {
	applied, err := s.orders.MarkPaid(ctx, order.ID, ev)
	if err != nil {
		return false, err
	}
	if !applied {
		s.logger.Info("Paid transition already applied elsewhere",
			zap.String("order_id", order.ID.String()),
		)
		return false, nil
	}

	paid, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		// The transition is durable; side effects run against the stale
		// copy rather than being dropped.
		s.logger.Warn("Reload after paid transition failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		paid = order
		paid.Status = models.OrderStatusPaid
	}

	s.logger.Info("Order paid",
		zap.String("order_id", paid.ID.String()),
		zap.String("gateway", paid.Gateway),
		zap.Int("total_amount", paid.TotalAmount),
	)
	s.effects.OrderPaid(ctx, paid)
	return true, nil
}

// failMismatch records the pending -> failed transition with the expected
// vs observed evidence. Never results in paid. Returns the storage error
// when the transition could not be recorded, so callers can retry instead
// of losing the evidence.
func (s *CheckoutService) failMismatch(ctx context.Context, order *models.Order, observed int, observedCurrency, rawPayload string) error {
	reason, _ := json.Marshal(map[string]interface{}{
		"expected":          order.SnapshotTotal(),
		"observed":          observed,
		"expected_currency": order.Currency,
		"observed_currency": observedCurrency,
	})
	s.logger.Warn("Amount mismatch, failing order",
		zap.String("order_id", order.ID.String()),
		zap.Int("expected", order.SnapshotTotal()),
		zap.Int("observed", observed),
		zap.String("observed_currency", observedCurrency),
	)
	return s.failOrder(ctx, order, string(reason), rawPayload)
}

func (s *CheckoutService) failOrder(ctx context.Context, order *models.Order, reason, rawPayload string) error {
	applied, err := s.orders.MarkFailed(ctx, order.ID, reason, rawPayload)
	if err != nil {
		s.logger.Error("Failed to record failed transition",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("record failed transition: %w", err)
	}
	if applied {
		order.Status = models.OrderStatusFailed
		s.effects.OrderFailed(ctx, order)
	}
	return nil
}

func (s *CheckoutService) recordWebhookSeen(ctx context.Context, markerKey string) error {
	if markerKey == "" {
		return nil
	}
	if _, err := s.markers.SetIfAbsent(ctx, markerKey, markerTTL); err != nil {
		return fmt.Errorf("webhook marker store: %w", err)
	}
	return nil
}

func (s *CheckoutService) reload(ctx context.Context, order *models.Order) (*models.Order, error) {
	fresh, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		return order, nil
	}
	return fresh, nil
}
