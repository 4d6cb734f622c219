package checkout

import (
	"context"
	"fmt"

	"github.com/angelmondragon/ordersettle/internal/cart"
	"github.com/angelmondragon/ordersettle/internal/points"
	"github.com/angelmondragon/ordersettle/internal/stock"
	"github.com/angelmondragon/ordersettle/internal/vouchers"
	"github.com/angelmondragon/ordersettle/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FinalizePolicy selects how strictly shared counters are enforced.
type FinalizePolicy struct {
	Stock stock.FloorPolicy
	// EnforceLimits turns a lost race on voucher usage or points balance into
	// an error. Captured payments cannot be refused, so they record and report.
	EnforceLimits bool
}

var (
	// StrictPolicy is used while the buyer is still waiting on the response.
	StrictPolicy = FinalizePolicy{Stock: stock.RejectOversell, EnforceLimits: true}
	// CapturedPolicy is used once the gateway has taken the money.
	CapturedPolicy = FinalizePolicy{Stock: stock.AllowBackorder, EnforceLimits: false}
)

// Settlement is the input to Finalize: the orders of one checkout.
type Settlement struct {
	UserID     uuid.UUID
	CheckoutID uuid.UUID
	Orders     []models.Order
	PointsUsed int64
	Reason     string
	Policy     FinalizePolicy
}

// Finalized reports the side effects Finalize applied.
type Finalized struct {
	Stock             *stock.Result
	VoucherUsage      vouchers.UsageResult
	FreeShippingUsage vouchers.UsageResult
	PointsEarned      int64
	PointsUsed        int64
	PointsDelta       int64
	CartItemsRemoved  int64

	// PointsOverdrawn is set when a captured settlement left the buyer's
	// balance negative; PointsBalance then holds that balance.
	PointsOverdrawn bool
	PointsBalance   int64
}

// Finalizer applies stock, voucher usage, points and cart cleanup for a
// checkout whose orders are already persisted.
type Finalizer struct {
	stock    *stock.Reconciler
	vouchers *vouchers.Validator
	points   *points.Ledger
	cart     cart.Repository
}

func NewFinalizer(reconciler *stock.Reconciler, validator *vouchers.Validator, ledger *points.Ledger, cartRepo cart.Repository) (*Finalizer, error) {
	switch {
	case reconciler == nil:
		return nil, fmt.Errorf("stock reconciler required")
	case validator == nil:
		return nil, fmt.Errorf("voucher validator required")
	case ledger == nil:
		return nil, fmt.Errorf("points ledger required")
	case cartRepo == nil:
		return nil, fmt.Errorf("cart repository required")
	}
	return &Finalizer{stock: reconciler, vouchers: validator, points: ledger, cart: cartRepo}, nil
}

// Finalize must run inside the transaction that persisted or promoted the orders.
func (f *Finalizer) Finalize(ctx context.Context, tx *gorm.DB, s Settlement) (*Finalized, error) {
	if len(s.Orders) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no orders to finalize")
	}
	out := &Finalized{}

	res, err := f.stock.WithTx(tx).Reconcile(ctx, s.Orders, s.Policy.Stock)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "adjust stock")
	}
	out.Stock = res

	validator := f.vouchers.WithTx(tx)
	first := s.Orders[0]
	if first.VoucherID != nil {
		out.VoucherUsage, err = validator.RecordUsage(ctx, attributedVoucher(*first.VoucherID, first.VoucherCode), s.UserID, &first.ID, s.Policy.EnforceLimits)
		if err != nil {
			return nil, err
		}
	}
	if first.FreeShippingVoucherID != nil {
		out.FreeShippingUsage, err = validator.RecordUsage(ctx, attributedVoucher(*first.FreeShippingVoucherID, first.FreeShippingVoucherCode), s.UserID, &first.ID, s.Policy.EnforceLimits)
		if err != nil {
			return nil, err
		}
	}

	var total int64
	for _, o := range s.Orders {
		total += o.GrandTotal()
	}
	out.PointsEarned = points.Earned(total)
	out.PointsUsed = s.PointsUsed
	applied, err := f.points.WithTx(tx).Apply(ctx, points.Settlement{
		UserID:         s.UserID,
		CheckoutID:     s.CheckoutID,
		Earned:         out.PointsEarned,
		Used:           s.PointsUsed,
		Reason:         s.Reason,
		EnforceBalance: s.Policy.EnforceLimits,
	})
	if err != nil {
		return nil, err
	}
	out.PointsDelta = applied.Delta
	out.PointsOverdrawn = applied.Overdrawn
	out.PointsBalance = applied.Balance

	var cartIDs []uuid.UUID
	for _, o := range s.Orders {
		if o.CartItemID != nil {
			cartIDs = append(cartIDs, *o.CartItemID)
		}
	}
	out.CartItemsRemoved, err = f.cart.WithTx(tx).DeleteItems(ctx, s.UserID, cartIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart items")
	}
	return out, nil
}

func attributedVoucher(id uuid.UUID, code *string) *models.Voucher {
	v := &models.Voucher{ID: id}
	if code != nil {
		v.Code = *code
	}
	return v
}

// PointsUsedByOrders recovers the redeemed points from the per-line shares.
func PointsUsedByOrders(list []models.Order) int64 {
	var value int64
	for _, o := range list {
		value += o.PointsDiscountAmt
	}
	return value / points.PointValue
}
