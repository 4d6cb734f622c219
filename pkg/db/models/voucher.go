package models

import (
	"time"

	"github.com/angelmondragon/ordersettle/pkg/enums"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Voucher is a discount code with eligibility and usage constraints.
type Voucher struct {
	ID                  uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code                string             `gorm:"column:code;not null;uniqueIndex"`
	Name                string             `gorm:"column:name;not null"`
	DiscountType        enums.DiscountType `gorm:"column:discount_type;type:text;not null"`
	DiscountValue       int64              `gorm:"column:discount_value;not null"`
	MaxDiscount         *int64             `gorm:"column:max_discount"`
	MinOrderValue       int64              `gorm:"column:min_order_value;not null;default:0"`
	StartDate           time.Time          `gorm:"column:start_date;not null"`
	EndDate             time.Time          `gorm:"column:end_date;not null"`
	UsageLimit          *int               `gorm:"column:usage_limit"`
	UsageCount          int                `gorm:"column:usage_count;not null;default:0"`
	IsActive            bool               `gorm:"column:is_active;not null;default:true"`
	ApplyForAllProducts bool               `gorm:"column:apply_for_all_products;not null;default:true"`
	ProductIDs          pq.StringArray     `gorm:"column:product_ids;type:text[]"`
	CategoryIDs         pq.StringArray     `gorm:"column:category_ids;type:text[]"`
	CreatedAt           time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Voucher) TableName() string { return "vouchers" }

func (v *Voucher) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// VoucherUsage records that a user has redeemed a voucher. The primary key
// keeps each user in a voucher's used set at most once.
type VoucherUsage struct {
	VoucherID uuid.UUID  `gorm:"column:voucher_id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;primaryKey"`
	OrderID   *uuid.UUID `gorm:"column:order_id;type:uuid"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (VoucherUsage) TableName() string { return "voucher_usages" }
