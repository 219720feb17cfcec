package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// GatewayErrorKind separates transient transport failures from well-formed
// rejections by the provider.
type GatewayErrorKind int

const (
	// GatewayUnavailable covers network errors and timeouts; the caller may
	// retry the same operation.
	GatewayUnavailable GatewayErrorKind = iota
	// GatewayRejected covers error responses from the provider; retrying the
	// same request will not help.
	GatewayRejected
)

type GatewayError struct {
	Kind       GatewayErrorKind
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	switch e.Kind {
	case GatewayUnavailable:
		return fmt.Sprintf("gateway unavailable during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("gateway rejected %s (status %d): %s", e.Op, e.StatusCode, e.Body)
	}
}

func (e *GatewayError) Unwrap() error { return e.Err }

func IsGatewayUnavailable(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Kind == GatewayUnavailable
}

func IsGatewayRejected(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Kind == GatewayRejected
}

// RemoteOrderLine is one snapshot line passed to the gateway.
type RemoteOrderLine struct {
	Name       string
	UnitAmount int // cents
	Quantity   int
}

// RemoteOrderRequest describes the remote order to create. CorrelationID is
// the local order id embedded in the remote order so webhooks can find
// their way back; IdempotencyKey dedupes retried create calls.
type RemoteOrderRequest struct {
	CorrelationID  string
	InvoiceID      string
	Currency       string
	TotalAmount    int // cents
	Lines          []RemoteOrderLine
	ReturnURL      string
	CancelURL      string
	IdempotencyKey string
}

// RemoteOrder is the gateway's view of a created order.
type RemoteOrder struct {
	ID          string
	Status      string
	ApprovalURL string
}

// CaptureResult is the normalized outcome of a capture call, whether fresh
// or recovered from an "already captured" response.
type CaptureResult struct {
	CaptureID  string
	Status     string
	Amount     int // cents
	Currency   string
	PayerID    string
	PayerEmail string
	RawPayload string
}

type RefundResult struct {
	RefundID string
	Status   string
}

// PayPalGateway is the external payment-redirect provider.
type PayPalGateway interface {
	CreateRemoteOrder(ctx context.Context, req RemoteOrderRequest) (*RemoteOrder, error)
	CaptureRemoteOrder(ctx context.Context, remoteOrderID, idempotencyKey string) (*CaptureResult, error)
	RefundCapture(ctx context.Context, captureID string, amount int, currency, idempotencyKey string) (*RefundResult, error)
}

// CentsToValue renders cents as the gateway's decimal string, e.g. 5000 -> "50.00".
func CentsToValue(cents int) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// ValueToCents parses a gateway decimal amount string into cents.
// Accepts "50", "50.5" and "50.00".
func ValueToCents(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty amount")
	}
	neg := false
	if strings.HasPrefix(value, "-") {
		neg = true
		value = value[1:]
	}
	whole, frac := value, ""
	if i := strings.IndexByte(value, '.'); i >= 0 {
		whole, frac = value[:i], value[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.Atoi(whole)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	switch len(frac) {
	case 0:
		frac = "00"
	case 1:
		frac = frac + "0"
	case 2:
		// as-is
	default:
		return 0, fmt.Errorf("invalid amount precision %q", value)
	}
	cents, err := strconv.Atoi(frac)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	total := units*100 + cents
	if neg {
		total = -total
	}
	return total, nil
}
