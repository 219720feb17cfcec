package models

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Order status values. Transitions are monotonic:
// pending -> paid | failed | canceled, paid -> refunded.
const (
	OrderStatusPending  = "pending"
	OrderStatusPaid     = "paid"
	OrderStatusFailed   = "failed"
	OrderStatusCanceled = "canceled"
	OrderStatusRefunded = "refunded"
)

// Supported payment gateways
const (
	GatewayStripe = "stripe"
	GatewayPayPal = "paypal"
)

type Order struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	DisplayNumber string    `gorm:"type:varchar(20);uniqueIndex;not null"`
	UserID        string    `gorm:"type:varchar(64);index;not null"`
	Email         string    `gorm:"type:varchar(256)"`
	Currency      string    `gorm:"type:varchar(10);not null"`
	TotalAmount   int       `gorm:"not null"` // cents
	Status        string    `gorm:"type:varchar(12);not null;default:'pending'"`
	Gateway       string    `gorm:"type:varchar(12);not null"`

	// Remote gateway correlation; assigned once after the remote order is created
	ExternalID *string `gorm:"type:varchar(128);index:idx_orders_gateway_external,unique"`

	// Capture evidence, populated on successful payment only
	CaptureID  *string `gorm:"type:varchar(128)"`
	PayerID    *string `gorm:"type:varchar(64)"`
	PayerEmail *string `gorm:"type:varchar(256)"`

	// Last raw verification payload, for audit and debugging
	GatewayResponse *string `gorm:"type:jsonb"`
	// Mismatch or gateway failure detail when status is failed
	FailureReason *string `gorm:"type:jsonb"`

	RefundID *string `gorm:"type:varchar(128)"`

	PaidAt     *time.Time
	FailedAt   *time.Time
	CanceledAt *time.Time
	RefundedAt *time.Time

	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"index"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

// OrderItem is the immutable line-item snapshot taken at checkout creation.
type OrderItem struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderID    uuid.UUID `gorm:"type:uuid;not null;index"`
	ProductID  string    `gorm:"type:varchar(64);not null"`
	Name       string    `gorm:"type:varchar(256);not null"`
	UnitAmount int       `gorm:"not null"` // cents
	Quantity   int       `gorm:"not null"`
	LineTotal  int       `gorm:"not null"` // cents, UnitAmount*Quantity
}

// DisplayNumberFor derives the human-facing order number from the first
// six bytes of the order id. Stable for a given id, so it can be recomputed
// but never changes. 48 bits keeps accidental collisions against the unique
// display_number index out of reach at realistic order volumes.
func DisplayNumberFor(id uuid.UUID) string {
	return "AM-" + strings.ToUpper(hex.EncodeToString(id[:6]))
}

// SnapshotTotal recomputes the order total from its recorded items.
// This is the only amount ever compared against gateway reports.
func (o *Order) SnapshotTotal() int {
	total := 0
	for _, it := range o.Items {
		total += it.LineTotal
	}
	return total
}

// IsTerminal reports whether no further outbound transition exists,
// other than paid -> refunded.
func (o *Order) IsTerminal() bool {
	return o.Status != OrderStatusPending
}
