package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Syed-Nuhad/automart/models"
)

// ErrOrderNotFound is returned when no order matches the lookup.
var ErrOrderNotFound = errors.New("order not found")

// PaymentEvidence carries the capture proof stored on the paid transition.
type PaymentEvidence struct {
	CaptureID  string
	PayerID    string
	PayerEmail string
	RawPayload string
}

// OrderRepository defines the interface for order data access.
//
// The Mark* methods are compare-and-swap transitions: they only apply when
// the order is still in the required source status and report whether this
// call performed the transition. A false result with a nil error means the
// order had already left the source status; callers treat that as an
// idempotent no-op.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByExternalID(ctx context.Context, gateway, externalID string) (*models.Order, error)
	FindByUserID(ctx context.Context, userID string, page, limit int) ([]models.Order, int64, error)
	SetExternalID(ctx context.Context, id uuid.UUID, externalID string) error
	MarkPaid(ctx context.Context, id uuid.UUID, ev PaymentEvidence) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason, rawPayload string) (bool, error)
	MarkCanceled(ctx context.Context, id uuid.UUID) (bool, error)
	MarkRefunded(ctx context.Context, id uuid.UUID, refundID string) (bool, error)
}

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *GormOrderRepository) FindByExternalID(ctx context.Context, gateway, externalID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("gateway = ? AND external_id = ?", gateway, externalID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *GormOrderRepository) FindByUserID(ctx context.Context, userID string, page, limit int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Preload("Items").
		Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// SetExternalID assigns the remote gateway order id exactly once. A second
// call for the same order is a no-op unless it tries to change the value.
func (r *GormOrderRepository) SetExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND external_id IS NULL", id).
		Update("external_id", externalID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var existing models.Order
		if err := r.db.WithContext(ctx).Select("external_id").Where("id = ?", id).First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if existing.ExternalID != nil && *existing.ExternalID == externalID {
			return nil
		}
		return errors.New("external id already assigned")
	}
	return nil
}

func (r *GormOrderRepository) MarkPaid(ctx context.Context, id uuid.UUID, ev PaymentEvidence) (bool, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":  models.OrderStatusPaid,
		"paid_at": &now,
	}
	if ev.CaptureID != "" {
		updates["capture_id"] = ev.CaptureID
	}
	if ev.PayerID != "" {
		updates["payer_id"] = ev.PayerID
	}
	if ev.PayerEmail != "" {
		updates["payer_email"] = ev.PayerEmail
	}
	if ev.RawPayload != "" {
		updates["gateway_response"] = ev.RawPayload
	}
	return r.transitionFrom(ctx, id, models.OrderStatusPending, updates)
}

func (r *GormOrderRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason, rawPayload string) (bool, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":         models.OrderStatusFailed,
		"failed_at":      &now,
		"failure_reason": reason,
	}
	if rawPayload != "" {
		updates["gateway_response"] = rawPayload
	}
	return r.transitionFrom(ctx, id, models.OrderStatusPending, updates)
}

func (r *GormOrderRepository) MarkCanceled(ctx context.Context, id uuid.UUID) (bool, error) {
	now := time.Now()
	return r.transitionFrom(ctx, id, models.OrderStatusPending, map[string]interface{}{
		"status":      models.OrderStatusCanceled,
		"canceled_at": &now,
	})
}

func (r *GormOrderRepository) MarkRefunded(ctx context.Context, id uuid.UUID, refundID string) (bool, error) {
	now := time.Now()
	return r.transitionFrom(ctx, id, models.OrderStatusPaid, map[string]interface{}{
		"status":      models.OrderStatusRefunded,
		"refund_id":   refundID,
		"refunded_at": &now,
	})
}

// transitionFrom applies updates only while the order is still in the
// expected source status. Whoever races here first wins; everyone else
// observes RowsAffected == 0.
func (r *GormOrderRepository) transitionFrom(ctx context.Context, id uuid.UUID, from string, updates map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
