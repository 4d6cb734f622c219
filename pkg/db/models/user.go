package models

import (
	"time"

	"github.com/angelmondragon/ordersettle/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User carries the buyer fields settlement reads and writes.
type User struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Email         string           `gorm:"column:email;not null;uniqueIndex"`
	Name          string           `gorm:"column:name;not null"`
	Status        enums.UserStatus `gorm:"column:status;type:text;not null;default:'active'"`
	RewardsPoints int64            `gorm:"column:rewards_points;not null;default:0"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// PointsHistory is the audit trail of rewards balance changes.
type PointsHistory struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	CheckoutID uuid.UUID `gorm:"column:checkout_id;type:uuid;not null"`
	Earned     int64     `gorm:"column:earned;not null"`
	Used       int64     `gorm:"column:used;not null"`
	Delta      int64     `gorm:"column:delta;not null"`
	Reason     string    `gorm:"column:reason;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (PointsHistory) TableName() string { return "points_histories" }

func (p *PointsHistory) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
