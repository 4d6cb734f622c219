package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Product is the sellable catalog entry checkout snapshots from.
type Product struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Name            string         `gorm:"column:name;not null"`
	Images          pq.StringArray `gorm:"column:images;type:text[]"`
	CategoryIDs     pq.StringArray `gorm:"column:category_ids;type:text[]"`
	Price           int64          `gorm:"column:price;not null"`
	DiscountPercent int            `gorm:"column:discount_percent;not null;default:0"`
	Stock           int            `gorm:"column:stock;not null;default:0"`
	IsActive        bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
