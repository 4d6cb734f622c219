package models

import (
	"time"

	"github.com/angelmondragon/ordersettle/pkg/enums"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Order is one line of a checkout: a single product, priced and discounted.
// Every line of a checkout shares CheckoutID; shipping is charged on the first.
type Order struct {
	ID                      uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CheckoutID              uuid.UUID           `gorm:"column:checkout_id;type:uuid;not null;index"`
	UserID                  uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	ProductID               uuid.UUID           `gorm:"column:product_id;type:uuid;not null"`
	CartItemID              *uuid.UUID          `gorm:"column:cart_item_id;type:uuid"`
	AddressID               uuid.UUID           `gorm:"column:address_id;type:uuid;not null"`
	ProductName             string              `gorm:"column:product_name;not null"`
	ProductImages           pq.StringArray      `gorm:"column:product_images;type:text[]"`
	Quantity                int                 `gorm:"column:quantity;not null"`
	UnitPrice               int64               `gorm:"column:unit_price;not null"`
	SubTotalAmt             int64               `gorm:"column:sub_total_amt;not null"`
	ProductDiscountAmt      int64               `gorm:"column:product_discount_amt;not null;default:0"`
	VoucherDiscountAmt      int64               `gorm:"column:voucher_discount_amt;not null;default:0"`
	PointsDiscountAmt       int64               `gorm:"column:points_discount_amt;not null;default:0"`
	ShippingFeeAmt          int64               `gorm:"column:shipping_fee_amt;not null;default:0"`
	TotalAmt                int64               `gorm:"column:total_amt;not null"`
	PaymentMethod           enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus           enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	Status                  enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	VoucherID               *uuid.UUID          `gorm:"column:voucher_id;type:uuid"`
	VoucherCode             *string             `gorm:"column:voucher_code"`
	VoucherType             *enums.DiscountType `gorm:"column:voucher_type;type:text"`
	FreeShippingVoucherID   *uuid.UUID          `gorm:"column:free_shipping_voucher_id;type:uuid"`
	FreeShippingVoucherCode *string             `gorm:"column:free_shipping_voucher_code"`
	CancelReason            *string             `gorm:"column:cancel_reason"`
	CancelledAt             *time.Time          `gorm:"column:cancelled_at"`
	IsPaid                  bool                `gorm:"column:is_paid;not null;default:false"`
	PaidAt                  *time.Time          `gorm:"column:paid_at"`
	IsDelivered             bool                `gorm:"column:is_delivered;not null;default:false"`
	DeliveredAt             *time.Time          `gorm:"column:delivered_at"`
	IsTemporary             bool                `gorm:"column:is_temporary;not null;default:false"`
	GatewaySessionID        *string             `gorm:"column:gateway_session_id;index"`
	CreatedAt               time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

// BeforeCreate assigns an id when the caller did not.
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// GrandTotal is what the buyer owes for this line including shipping.
func (o Order) GrandTotal() int64 {
	return o.TotalAmt + o.ShippingFeeAmt
}
