package services

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"strings"

	"github.com/Syed-Nuhad/automart/models"
)

// ReceiptSender delivers buyer receipts and staff notices. Delivery is
// best-effort; callers gate retries with their own idempotency marker.
type ReceiptSender interface {
	SendReceipt(ctx context.Context, order *models.Order) error
	SendAdminNotice(ctx context.Context, order *models.Order, adminEmail string) error
}

type SMTPSender struct {
	host     string
	port     string
	username string
	password string
}

func NewSMTPSender() (*SMTPSender, error) {
	host := os.Getenv("SMTP_HOST")
	port := os.Getenv("SMTP_PORT")
	username := os.Getenv("SMTP_USER")
	password := os.Getenv("SMTP_PASS")

	if host == "" {
		return nil, fmt.Errorf("SMTP_HOST not set")
	}
	if port == "" {
		return nil, fmt.Errorf("SMTP_PORT not set")
	}
	if username == "" {
		return nil, fmt.Errorf("SMTP_USER not set")
	}
	if password == "" {
		return nil, fmt.Errorf("SMTP_PASS not set")
	}

	return &SMTPSender{host, port, username, password}, nil
}

func (s *SMTPSender) SendReceipt(ctx context.Context, order *models.Order) error {
	to := receiptAddress(order)
	if to == "" {
		// nowhere to send
		return nil
	}
	subject := fmt.Sprintf("AutoMart receipt %s", order.DisplayNumber)
	return s.send(to, subject, receiptBody(order))
}

func (s *SMTPSender) SendAdminNotice(ctx context.Context, order *models.Order, adminEmail string) error {
	if adminEmail == "" {
		return nil
	}
	subject := fmt.Sprintf("Paid order %s", order.DisplayNumber)
	return s.send(adminEmail, subject, receiptBody(order))
}

func (s *SMTPSender) send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	auth := smtp.PlainAuth("", s.username, s.password, s.host)

	msg := []byte(
		"From: " + s.username + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n" +
			"\r\n" +
			body,
	)

	if err := smtp.SendMail(addr, auth, s.username, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

// receiptAddress prefers the checkout email, then the payer email reported
// by the gateway.
func receiptAddress(order *models.Order) string {
	if order.Email != "" {
		return order.Email
	}
	if order.PayerEmail != nil {
		return *order.PayerEmail
	}
	return ""
}

func receiptBody(order *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your purchase!\r\n\r\nOrder %s\r\n\r\n", order.DisplayNumber)
	for _, it := range order.Items {
		fmt.Fprintf(&b, "  %s x%d  %s\r\n", it.Name, it.Quantity, FormatMoney(it.LineTotal, order.Currency))
	}
	fmt.Fprintf(&b, "\r\nTotal: %s\r\n", FormatMoney(order.TotalAmount, order.Currency))
	return b.String()
}

// FormatMoney renders cents for human-facing receipts, e.g. "$50.00".
func FormatMoney(cents int, currency string) string {
	code := strings.ToUpper(currency)
	if code == "USD" {
		return "$" + CentsToValue(cents)
	}
	return CentsToValue(cents) + " " + code
}
