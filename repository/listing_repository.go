package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Syed-Nuhad/automart/models"
)

var ErrListingNotFound = errors.New("listing not found")

// ListingRepository is the catalog collaborator: checkout reads priced
// listings and flips purchased ones to sold.
type ListingRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	MarkSold(ctx context.Context, ids []string) error
}

type GormListingRepository struct {
	db *gorm.DB
}

func NewGormListingRepository(db *gorm.DB) ListingRepository {
	return &GormListingRepository{db: db}
}

func (r *GormListingRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}

// MarkSold flips available listings to sold. Already-sold ids are left
// alone, so repeated dispatch of the same side effect is harmless.
func (r *GormListingRepository) MarkSold(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id IN ? AND status = ?", ids, models.ListingStatusAvailable).
		Update("status", models.ListingStatusSold).Error
}
