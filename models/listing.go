package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Listing status values
const (
	ListingStatusAvailable = "available"
	ListingStatusSold      = "sold"
)

// Listing is a car for sale. Browsing and moderation live elsewhere;
// checkout only reads price and name and flips status to sold.
type Listing struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Title      string    `gorm:"type:varchar(256);not null"`
	Make       string    `gorm:"type:varchar(64)"`
	ModelName  string    `gorm:"type:varchar(64)"`
	Year       int
	PriceCents int    `gorm:"not null"`
	Status     string `gorm:"type:varchar(12);not null;default:'available';index"`
	SellerID   string `gorm:"type:varchar(64);index"`
	CoverURL   string `gorm:"type:varchar(1024)"`

	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// LineName builds the cart/receipt display name for the listing.
func (l *Listing) LineName() string {
	name := l.Title
	detail := strings.TrimSpace(l.Make + " " + l.ModelName)
	if detail != "" {
		name = name + " - " + detail
	}
	return name
}
