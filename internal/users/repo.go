package users

import (
	"context"
	"errors"

	"github.com/angelmondragon/ordersettle/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository manages persistence for buyer accounts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// IncrementPoints adds delta to the rewards balance in one statement. With
	// enforceFloor the update only applies when the balance stays non-negative.
	IncrementPoints(ctx context.Context, id uuid.UUID, delta int64, enforceFloor bool) (bool, error)
	CreatePointsHistory(ctx context.Context, entry *models.PointsHistory) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a user repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) IncrementPoints(ctx context.Context, id uuid.UUID, delta int64, enforceFloor bool) (bool, error) {
	q := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id)
	if enforceFloor && delta < 0 {
		q = q.Where("rewards_points + ? >= 0", delta)
	}
	res := q.UpdateColumn("rewards_points", gorm.Expr("rewards_points + ?", delta))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreatePointsHistory(ctx context.Context, entry *models.PointsHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
