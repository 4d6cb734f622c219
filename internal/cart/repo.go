package cart

import (
	"context"

	"github.com/angelmondragon/ordersettle/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository removes cart entries that a checkout redeemed.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	DeleteItems(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// DeleteItems removes exactly the given entries owned by userID.
func (r *repository) DeleteItems(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}
