package services

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/refund"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/Syed-Nuhad/automart/models"
)

// StripeGateway is the card-redirect provider.
type StripeGateway interface {
	CreateCheckoutSession(order *models.Order, successURL, cancelURL, idempotencyKey string) (sessionID, redirectURL string, err error)
	ParseWebhook(r *http.Request) (stripe.Event, error)
	RefundPaymentIntent(paymentIntentID, idempotencyKey string) (*RefundResult, error)
}

type StripeService struct {
	SecretKey  string
	WebhookKey string
}

func NewStripeService(secretKey, webhookKey string) *StripeService {
	stripe.Key = secretKey
	return &StripeService{SecretKey: secretKey, WebhookKey: webhookKey}
}

// CreateCheckoutSession builds a Checkout Session from the order snapshot.
// Amounts come from the recorded OrderItems only, never from the client.
func (s *StripeService) CreateCheckoutSession(order *models.Order, successURL, cancelURL, idempotencyKey string) (string, string, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(order.Items))
	for _, it := range order.Items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(strings.ToLower(order.Currency)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(it.Name),
				},
				UnitAmount: stripe.Int64(int64(it.UnitAmount)),
			},
			Quantity: stripe.Int64(int64(it.Quantity)),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:          lineItems,
		SuccessURL:         stripe.String(successURL),
		CancelURL:          stripe.String(cancelURL),
		ClientReferenceID:  stripe.String(order.ID.String()),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.AddMetadata("order_id", order.ID.String())
	params.IdempotencyKey = stripe.String(idempotencyKey)

	sess, err := session.New(params)
	if err != nil {
		return "", "", wrapStripeError("createCheckoutSession", err)
	}
	return sess.ID, sess.URL, nil
}

func (s *StripeService) ParseWebhook(r *http.Request) (stripe.Event, error) {
	var event stripe.Event
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return event, err
	}
	r.Body = io.NopCloser(bytes.NewBuffer(payload))
	sigHeader := r.Header.Get("Stripe-Signature")
	return webhook.ConstructEvent(payload, sigHeader, s.WebhookKey)
}

// RefundPaymentIntent refunds the full captured amount of a payment intent.
func (s *StripeService) RefundPaymentIntent(paymentIntentID, idempotencyKey string) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.IdempotencyKey = stripe.String(idempotencyKey)

	ref, err := refund.New(params)
	if err != nil {
		return nil, wrapStripeError("refundPaymentIntent", err)
	}
	return &RefundResult{RefundID: ref.ID, Status: string(ref.Status)}, nil
}

// wrapStripeError maps stripe-go errors onto the shared gateway taxonomy.
func wrapStripeError(op string, err error) error {
	if stripeErr, ok := err.(*stripe.Error); ok {
		kind := GatewayRejected
		if stripeErr.HTTPStatusCode >= 500 {
			kind = GatewayUnavailable
		}
		return &GatewayError{
			Kind:       kind,
			Op:         op,
			StatusCode: stripeErr.HTTPStatusCode,
			Body:       stripeErr.Msg,
			Err:        err,
		}
	}
	return &GatewayError{Kind: GatewayUnavailable, Op: op, Err: err}
}
