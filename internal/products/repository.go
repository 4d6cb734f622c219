package products

import (
	"context"

	"github.com/angelmondragon/ordersettle/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository reads catalog snapshots and adjusts on-hand stock.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	// DecrementStock subtracts qty in one statement. With guardFloor the update
	// only applies while stock >= qty.
	DecrementStock(ctx context.Context, id uuid.UUID, qty int, guardFloor bool) (bool, error)
	StockLevel(ctx context.Context, id uuid.UUID) (int, error)
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

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

func (r *repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int, guardFloor bool) (bool, error) {
	q := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id)
	if guardFloor {
		q = q.Where("stock >= ?", qty)
	}
	res := q.UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) StockLevel(ctx context.Context, id uuid.UUID) (int, error) {
	var stock int
	if err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Select("stock").
		Scan(&stock).Error; err != nil {
		return 0, err
	}
	return stock, nil
}
