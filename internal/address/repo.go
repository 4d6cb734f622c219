package address

import (
	"context"
	"errors"

	"github.com/angelmondragon/ordersettle/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository reads buyer delivery addresses.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.Address, error)
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

// FindForUser returns the address only when it belongs to userID.
func (r *repository) FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.Address, error) {
	var addr models.Address
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&addr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &addr, nil
}
