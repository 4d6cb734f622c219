package checkout

import (
	"context"
	"fmt"

	"github.com/angelmondragon/ordersettle/internal/address"
	"github.com/angelmondragon/ordersettle/internal/orders"
	"github.com/angelmondragon/ordersettle/internal/products"
	"github.com/angelmondragon/ordersettle/internal/users"
	"github.com/angelmondragon/ordersettle/internal/vouchers"
	"github.com/angelmondragon/ordersettle/pkg/db"
	"github.com/angelmondragon/ordersettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
	"github.com/angelmondragon/ordersettle/pkg/logger"
	"github.com/angelmondragon/ordersettle/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	pathCash   = "cod"
	pathOnline = "online"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Dependencies are the collaborators shared by both checkout paths.
type Dependencies struct {
	Tx        txRunner
	Users     users.Repository
	Addresses address.Repository
	Products  products.Repository
	Orders    orders.Repository
	Vouchers  *vouchers.Validator
	Assembler *orders.Assembler
	Finalizer *Finalizer
	Retry     db.RetryPolicy
	Logger    *logger.Logger
	Metrics   *metrics.SettlementMetrics
}

func (d Dependencies) validate() error {
	switch {
	case d.Tx == nil:
		return fmt.Errorf("tx runner required")
	case d.Orders == nil:
		return fmt.Errorf("order repository required")
	case d.Finalizer == nil:
		return fmt.Errorf("finalizer required")
	}
	return nil
}

// Coordinator places cash-on-delivery orders in one retried transaction.
type Coordinator struct {
	deps    Dependencies
	prep    *preparer
	newUUID func() uuid.UUID
}

func NewCoordinator(deps Dependencies) (*Coordinator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	prep, err := newPreparer(deps)
	if err != nil {
		return nil, err
	}
	if deps.Retry.Attempts < 1 {
		deps.Retry = db.DefaultRetryPolicy()
	}
	return &Coordinator{deps: deps, prep: prep, newUUID: uuid.New}, nil
}

// PlaceCashOrder validates, persists and finalizes a COD checkout. Every
// step shares one transaction; the whole unit re-runs from the start on a
// transient write conflict, up to the retry policy's attempt bound.
func (c *Coordinator) PlaceCashOrder(ctx context.Context, req Request) (*Result, error) {
	checkoutID := req.CheckoutID
	if checkoutID == uuid.Nil {
		checkoutID = c.newUUID()
	}
	ctx = c.deps.Logger.WithCheckoutID(ctx, checkoutID.String())

	policy := c.deps.Retry
	policy.OnRetry = func(attempt int, err error) {
		c.deps.Metrics.IncConflictRetry(pathCash)
		c.deps.Logger.Warn(c.deps.Logger.WithFields(ctx, map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		}), "checkout.cod.retry")
	}

	var result *Result
	err := db.RetryOnConflict(ctx, policy, func(ctx context.Context, attempt int) error {
		return c.deps.Tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			result, err = c.placeOnce(ctx, tx, req, checkoutID)
			return err
		})
	})
	if err != nil {
		c.deps.Metrics.IncCheckout(pathCash, outcomeLabel(err))
		return nil, err
	}

	c.deps.Metrics.IncCheckout(pathCash, "success")
	c.deps.Logger.Info(c.deps.Logger.WithFields(ctx, map[string]any{
		"orders": len(result.Orders),
		"total":  result.Total,
	}), "checkout.cod.placed")
	return result, nil
}

func (c *Coordinator) placeOnce(ctx context.Context, tx *gorm.DB, req Request, checkoutID uuid.UUID) (*Result, error) {
	p, err := c.prep.prepare(ctx, tx, req, checkoutID, enums.PaymentMethodCOD, false)
	if err != nil {
		return nil, err
	}
	if err := c.deps.Orders.WithTx(tx).CreateOrders(ctx, p.assembly.Orders); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist orders")
	}
	fin, err := c.deps.Finalizer.Finalize(ctx, tx, Settlement{
		UserID:     req.UserID,
		CheckoutID: checkoutID,
		Orders:     p.assembly.Orders,
		PointsUsed: p.assembly.PointsUsed,
		Reason:     "cod_checkout",
		Policy:     StrictPolicy,
	})
	if err != nil {
		return nil, err
	}
	return buildResult(checkoutID, p, fin), nil
}

func buildResult(checkoutID uuid.UUID, p *prepared, fin *Finalized) *Result {
	r := &Result{
		CheckoutID:          checkoutID,
		Orders:              p.assembly.Orders,
		PointsEarned:        fin.PointsEarned,
		PointsUsed:          fin.PointsUsed,
		VoucherApplied:      summarizeVoucher(p.voucher, p.assembly.VoucherDiscount),
		FreeShippingApplied: summarizeVoucher(p.freeShipping, 0),
		ShippingFee:         p.assembly.ShippingFee,
		Total:               p.assembly.GrandTotal,
	}
	if fin.Stock != nil {
		r.Oversold = fin.Stock.Oversold
	}
	return r
}

func outcomeLabel(err error) string {
	if e := pkgerrors.As(err); e != nil {
		switch e.Code() {
		case pkgerrors.CodeValidation, pkgerrors.CodeNotFound, pkgerrors.CodeForbidden, pkgerrors.CodeUnauthorized:
			return "rejected"
		case pkgerrors.CodeConflict:
			return "conflict"
		}
	}
	return "error"
}
