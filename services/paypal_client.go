package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PayPalClient is a thin wrapper over the PayPal Orders v2 REST API. No SDK;
// the contract is four documented endpoints. The client never retries on its
// own, it only classifies failures so callers can decide.
type PayPalClient struct {
	APIBase      string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
}

func NewPayPalClient(apiBase, clientID, clientSecret string) *PayPalClient {
	return &PayPalClient{
		APIBase:      strings.TrimRight(apiBase, "/"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		HTTPClient:   &http.Client{Timeout: 20 * time.Second},
	}
}

// Authenticate exchanges client credentials for a short-lived bearer token.
func (p *PayPalClient) Authenticate(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.APIBase+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", &GatewayError{Kind: GatewayUnavailable, Op: "authenticate", Err: err}
	}
	req.SetBasicAuth(p.ClientID, p.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return "", &GatewayError{Kind: GatewayUnavailable, Op: "authenticate", Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if kindErr := classify("authenticate", resp.StatusCode, body); kindErr != nil {
		return "", kindErr
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.AccessToken == "" {
		return "", &GatewayError{Kind: GatewayRejected, Op: "authenticate", StatusCode: resp.StatusCode, Body: string(body)}
	}
	return out.AccessToken, nil
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
	Payer struct {
		PayerID      string `json:"payer_id"`
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string       `json:"id"`
				Status string       `json:"status"`
				Amount paypalAmount `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CreateRemoteOrder creates a PayPal order mirroring the local snapshot.
// The local order id travels as custom_id so webhooks can resolve it, and
// the PayPal-Request-Id header makes retried creates collapse into one
// remote order.
func (p *PayPalClient) CreateRemoteOrder(ctx context.Context, r RemoteOrderRequest) (*RemoteOrder, error) {
	currency := strings.ToUpper(r.Currency)

	items := make([]map[string]interface{}, 0, len(r.Lines))
	itemTotal := 0
	for _, line := range r.Lines {
		name := line.Name
		if len(name) > 127 {
			name = name[:127]
		}
		items = append(items, map[string]interface{}{
			"name":     name,
			"quantity": fmt.Sprintf("%d", line.Quantity),
			"unit_amount": paypalAmount{
				CurrencyCode: currency,
				Value:        CentsToValue(line.UnitAmount),
			},
		})
		itemTotal += line.UnitAmount * line.Quantity
	}

	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"custom_id":  r.CorrelationID,
				"invoice_id": r.InvoiceID,
				"amount": map[string]interface{}{
					"currency_code": currency,
					"value":         CentsToValue(r.TotalAmount),
					"breakdown": map[string]interface{}{
						"item_total": paypalAmount{
							CurrencyCode: currency,
							Value:        CentsToValue(itemTotal),
						},
					},
				},
				"items": items,
			},
		},
		"application_context": map[string]interface{}{
			"return_url":          r.ReturnURL,
			"cancel_url":          r.CancelURL,
			"shipping_preference": "NO_SHIPPING",
			"user_action":         "PAY_NOW",
		},
	}

	respBody, status, err := p.post(ctx, "createRemoteOrder", "/v2/checkout/orders", body, r.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	var out paypalOrderResponse
	if err := json.Unmarshal(respBody, &out); err != nil || out.ID == "" {
		return nil, &GatewayError{Kind: GatewayRejected, Op: "createRemoteOrder", StatusCode: status, Body: string(respBody)}
	}

	order := &RemoteOrder{ID: out.ID, Status: out.Status}
	for _, link := range out.Links {
		if link.Rel == "approve" {
			order.ApprovalURL = link.Href
		}
	}
	return order, nil
}

// CaptureRemoteOrder captures an approved order. PayPal answers a duplicate
// capture with 422 ORDER_ALREADY_CAPTURED; that is treated as success and the
// capture details are recovered by reading the order back.
func (p *PayPalClient) CaptureRemoteOrder(ctx context.Context, remoteOrderID, idempotencyKey string) (*CaptureResult, error) {
	path := "/v2/checkout/orders/" + remoteOrderID + "/capture"
	respBody, status, err := p.post(ctx, "captureRemoteOrder", path, nil, idempotencyKey)
	if err != nil {
		if isAlreadyCaptured(err) {
			return p.readCapturedOrder(ctx, remoteOrderID)
		}
		return nil, err
	}
	return parseCapture("captureRemoteOrder", respBody, status)
}

// RefundCapture refunds a completed capture in full.
func (p *PayPalClient) RefundCapture(ctx context.Context, captureID string, amount int, currency, idempotencyKey string) (*RefundResult, error) {
	body := map[string]interface{}{
		"amount": paypalAmount{
			CurrencyCode: strings.ToUpper(currency),
			Value:        CentsToValue(amount),
		},
	}
	respBody, status, err := p.post(ctx, "refundCapture", "/v2/payments/captures/"+captureID+"/refund", body, idempotencyKey)
	if err != nil {
		return nil, err
	}
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil || out.ID == "" {
		return nil, &GatewayError{Kind: GatewayRejected, Op: "refundCapture", StatusCode: status, Body: string(respBody)}
	}
	return &RefundResult{RefundID: out.ID, Status: out.Status}, nil
}

// readCapturedOrder fetches an order whose capture already happened and
// normalizes it into the same CaptureResult a fresh capture produces.
func (p *PayPalClient) readCapturedOrder(ctx context.Context, remoteOrderID string) (*CaptureResult, error) {
	token, err := p.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.APIBase+"/v2/checkout/orders/"+remoteOrderID, nil)
	if err != nil {
		return nil, &GatewayError{Kind: GatewayUnavailable, Op: "getRemoteOrder", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Kind: GatewayUnavailable, Op: "getRemoteOrder", Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if kindErr := classify("getRemoteOrder", resp.StatusCode, body); kindErr != nil {
		return nil, kindErr
	}
	return parseCapture("getRemoteOrder", body, resp.StatusCode)
}

func (p *PayPalClient) post(ctx context.Context, op, path string, body interface{}, idempotencyKey string) ([]byte, int, error) {
	token, err := p.Authenticate(ctx)
	if err != nil {
		return nil, 0, err
	}

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, &GatewayError{Kind: GatewayRejected, Op: op, Err: err}
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.APIBase+path, payload)
	if err != nil {
		return nil, 0, &GatewayError{Kind: GatewayUnavailable, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("PayPal-Request-Id", idempotencyKey)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, &GatewayError{Kind: GatewayUnavailable, Op: op, Err: err}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if kindErr := classify(op, resp.StatusCode, respBody); kindErr != nil {
		return nil, resp.StatusCode, kindErr
	}
	return respBody, resp.StatusCode, nil
}

func parseCapture(op string, body []byte, status int) (*CaptureResult, error) {
	var out paypalOrderResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &GatewayError{Kind: GatewayRejected, Op: op, StatusCode: status, Body: string(body)}
	}
	for _, pu := range out.PurchaseUnits {
		for _, cap := range pu.Payments.Captures {
			amount, err := ValueToCents(cap.Amount.Value)
			if err != nil {
				return nil, &GatewayError{Kind: GatewayRejected, Op: op, StatusCode: status, Body: string(body)}
			}
			return &CaptureResult{
				CaptureID:  cap.ID,
				Status:     cap.Status,
				Amount:     amount,
				Currency:   strings.ToLower(cap.Amount.CurrencyCode),
				PayerID:    out.Payer.PayerID,
				PayerEmail: out.Payer.EmailAddress,
				RawPayload: string(body),
			}, nil
		}
	}
	return nil, &GatewayError{Kind: GatewayRejected, Op: op, StatusCode: status, Body: string(body)}
}

// classify maps an HTTP response to the error taxonomy: 2xx is success,
// 5xx is transient, anything else is a provider rejection.
func classify(op string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	if status >= 500 {
		return &GatewayError{Kind: GatewayUnavailable, Op: op, StatusCode: status, Body: string(body),
			Err: fmt.Errorf("gateway returned %d", status)}
	}
	return &GatewayError{Kind: GatewayRejected, Op: op, StatusCode: status, Body: string(body)}
}

func isAlreadyCaptured(err error) bool {
	ge, ok := err.(*GatewayError)
	if !ok || ge.Kind != GatewayRejected {
		return false
	}
	return strings.Contains(ge.Body, "ORDER_ALREADY_CAPTURED")
}
