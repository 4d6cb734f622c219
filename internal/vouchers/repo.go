package vouchers

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/ordersettle/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages persistence for vouchers and their per-user usage.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByCode(ctx context.Context, code string) (*models.Voucher, error)
	HasUser(ctx context.Context, voucherID, userID uuid.UUID) (bool, error)
	// AddUser inserts the user into the voucher's used set. It reports false
	// when the user was already present.
	AddUser(ctx context.Context, voucherID, userID uuid.UUID, orderID *uuid.UUID) (bool, error)
	// IncrementUsage bumps usage_count in a single statement. With enforceLimit
	// the increment only applies while usage_count < usage_limit.
	IncrementUsage(ctx context.Context, voucherID uuid.UUID, enforceLimit bool) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a voucher repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// NormalizeCode trims and upper-cases a voucher code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.db.WithContext(ctx).
		Where("code = ?", NormalizeCode(code)).
		First(&voucher).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

func (r *repository) HasUser(ctx context.Context, voucherID, userID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.VoucherUsage{}).
		Where("voucher_id = ? AND user_id = ?", voucherID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) AddUser(ctx context.Context, voucherID, userID uuid.UUID, orderID *uuid.UUID) (bool, error) {
	usage := models.VoucherUsage{VoucherID: voucherID, UserID: userID, OrderID: orderID}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&usage)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) IncrementUsage(ctx context.Context, voucherID uuid.UUID, enforceLimit bool) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ?", voucherID)
	if enforceLimit {
		q = q.Where("usage_limit IS NULL OR usage_count < usage_limit")
	}
	res := q.UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
