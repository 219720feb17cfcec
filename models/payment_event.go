package models

import "time"

// PaymentEvent is the fan-out message published after an order reaches a
// terminal payment state.
type PaymentEvent struct {
	Type      string    `json:"type"` // "payment_succeeded" or "payment_failed"
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Gateway   string    `json:"gateway"`
	Amount    int       `json:"amount"` // smallest currency unit
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"` // UTC event time
}
