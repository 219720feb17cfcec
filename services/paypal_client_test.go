package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const tokenResponse = `{"access_token":"test-token","token_type":"Bearer","expires_in":32400}`

func paypalTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *PayPalClient) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "client-id", user)
			assert.Equal(t, "client-secret", pass)
			fmt.Fprint(w, tokenResponse)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, NewPayPalClient(srv.URL, "client-id", "client-secret")
}

func TestAuthenticate_Success(t *testing.T) {
	_, client := paypalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s", r.URL.Path)
	})

	token, err := client.Authenticate(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "test-token", token)
}

func TestCreateRemoteOrder_SendsCorrelationAndIdempotency(t *testing.T) {
	var captured map[string]interface{}
	var requestID string

	_, client := paypalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/checkout/orders", r.URL.Path)
		requestID = r.Header.Get("PayPal-Request-Id")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, `{
			"id": "REMOTE-1",
			"status": "CREATED",
			"links": [
				{"href": "https://paypal.test/self", "rel": "self"},
				{"href": "https://paypal.test/approve", "rel": "approve"}
			]
		}`)
	})

	remote, err := client.CreateRemoteOrder(context.Background(), RemoteOrderRequest{
		CorrelationID: "local-order-id",
		InvoiceID:     "am-3f2a9c1d44be",
		Currency:      "usd",
		TotalAmount:   5000,
		Lines: []RemoteOrderLine{
			{Name: "Honda Civic 2019", UnitAmount: 5000, Quantity: 1},
		},
		ReturnURL:      "https://shop.test/checkout/paypal/return",
		CancelURL:      "https://shop.test/checkout/paypal/cancel",
		IdempotencyKey: "pp-create-local-order-id",
	})
	assert.NoError(t, err)
	assert.Equal(t, "REMOTE-1", remote.ID)
	assert.Equal(t, "https://paypal.test/approve", remote.ApprovalURL)
	assert.Equal(t, "pp-create-local-order-id", requestID)

	units := captured["purchase_units"].([]interface{})
	unit := units[0].(map[string]interface{})
	assert.Equal(t, "local-order-id", unit["custom_id"])
	assert.Equal(t, "am-3f2a9c1d44be", unit["invoice_id"])

	amount := unit["amount"].(map[string]interface{})
	assert.Equal(t, "USD", amount["currency_code"])
	assert.Equal(t, "50.00", amount["value"])
}

func TestCaptureRemoteOrder_Success(t *testing.T) {
	_, client := paypalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/checkout/orders/REMOTE-1/capture", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		fmt.Fprint(w, `{
			"id": "REMOTE-1",
			"status": "COMPLETED",
			"payer": {"payer_id": "PAYER-1", "email_address": "buyer@example.com"},
			"purchase_units": [{
				"payments": {"captures": [{
					"id": "CAP-1",
					"status": "COMPLETED",
					"amount": {"currency_code": "USD", "value": "50.00"}
				}]}
			}]
		}`)
	})

	capture, err := client.CaptureRemoteOrder(context.Background(), "REMOTE-1", "pp-capture-1")
	assert.NoError(t, err)
	assert.Equal(t, "CAP-1", capture.CaptureID)
	assert.Equal(t, 5000, capture.Amount)
	assert.Equal(t, "usd", capture.Currency)
	assert.Equal(t, "PAYER-1", capture.PayerID)
	assert.Equal(t, "buyer@example.com", capture.PayerEmail)
}

func TestCaptureRemoteOrder_AlreadyCapturedRecoversViaGet(t *testing.T) {
	_, client := paypalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED"}]}`)
			return
		}
		assert.Equal(t, "/v2/checkout/orders/REMOTE-1", r.URL.Path)
		fmt.Fprint(w, `{
			"id": "REMOTE-1",
			"status": "COMPLETED",
			"payer": {"payer_id": "PAYER-1"},
			"purchase_units": [{
				"payments": {"captures": [{
					"id": "CAP-1",
					"status": "COMPLETED",
					"amount": {"currency_code": "USD", "value": "50.00"}
				}]}
			}]
		}`)
	})

	capture, err := client.CaptureRemoteOrder(context.Background(), "REMOTE-1", "pp-capture-1")
	assert.NoError(t, err)
	assert.Equal(t, "CAP-1", capture.CaptureID)
	assert.Equal(t, 5000, capture.Amount)
}

func TestCaptureRemoteOrder_ServerErrorIsUnavailable(t *testing.T) {
	_, client := paypalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.CaptureRemoteOrder(context.Background(), "REMOTE-1", "pp-capture-1")
	assert.Error(t, err)
	assert.True(t, IsGatewayUnavailable(err))
	assert.False(t, IsGatewayRejected(err))
}

func TestCaptureRemoteOrder_DeclineIsRejected(t *testing.T) {
	_, client := paypalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"INSTRUMENT_DECLINED"}]}`)
	})

	_, err := client.CaptureRemoteOrder(context.Background(), "REMOTE-1", "pp-capture-1")
	assert.Error(t, err)
	assert.True(t, IsGatewayRejected(err))
	assert.False(t, IsGatewayUnavailable(err))
}

func TestRefundCapture_Success(t *testing.T) {
	_, client := paypalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/payments/captures/CAP-1/refund", r.URL.Path)
		assert.Equal(t, "refund-1", r.Header.Get("PayPal-Request-Id"))
		fmt.Fprint(w, `{"id":"REF-1","status":"COMPLETED"}`)
	})

	refund, err := client.RefundCapture(context.Background(), "CAP-1", 5000, "usd", "refund-1")
	assert.NoError(t, err)
	assert.Equal(t, "REF-1", refund.RefundID)
	assert.Equal(t, "COMPLETED", refund.Status)
}

func TestMoneyConversions(t *testing.T) {
	assert.Equal(t, "50.00", CentsToValue(5000))
	assert.Equal(t, "0.05", CentsToValue(5))
	assert.Equal(t, "123456.78", CentsToValue(12345678))

	cents, err := ValueToCents("50.00")
	assert.NoError(t, err)
	assert.Equal(t, 5000, cents)

	cents, err = ValueToCents("0.05")
	assert.NoError(t, err)
	assert.Equal(t, 5, cents)

	cents, err = ValueToCents("50")
	assert.NoError(t, err)
	assert.Equal(t, 5000, cents)

	_, err = ValueToCents("fифти")
	assert.Error(t, err)
}
