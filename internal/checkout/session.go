package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/ordersettle/pkg/db"
	"github.com/angelmondragon/ordersettle/pkg/db/models"
	"github.com/angelmondragon/ordersettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
	pkgstripe "github.com/angelmondragon/ordersettle/pkg/stripe"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Gateway opens hosted checkout sessions.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req pkgstripe.CheckoutSessionRequest) (*pkgstripe.CheckoutSession, error)
}

// SessionConfig carries the hosted checkout presentation settings.
type SessionConfig struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

// SessionService starts online checkouts: temporary orders plus a hosted
// payment session, or immediate settlement when nothing is left to pay.
type SessionService struct {
	deps    Dependencies
	prep    *preparer
	gateway Gateway
	cfg     SessionConfig
	newUUID func() uuid.UUID
	now     func() time.Time
}

func NewSessionService(deps Dependencies, gateway Gateway, cfg SessionConfig) (*SessionService, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if cfg.Currency == "" {
		return nil, fmt.Errorf("currency required")
	}
	prep, err := newPreparer(deps)
	if err != nil {
		return nil, err
	}
	if deps.Retry.Attempts < 1 {
		deps.Retry = db.DefaultRetryPolicy()
	}
	return &SessionService{deps: deps, prep: prep, gateway: gateway, cfg: cfg, newUUID: uuid.New, now: time.Now}, nil
}

// Start persists temporary orders and opens the gateway session in the same
// transaction, so a gateway failure leaves no orders behind.
func (s *SessionService) Start(ctx context.Context, req Request) (*SessionResult, error) {
	checkoutID := req.CheckoutID
	if checkoutID == uuid.Nil {
		checkoutID = s.newUUID()
	}
	ctx = s.deps.Logger.WithCheckoutID(ctx, checkoutID.String())

	policy := s.deps.Retry
	policy.OnRetry = func(attempt int, err error) {
		s.deps.Metrics.IncConflictRetry(pathOnline)
		s.deps.Logger.Warn(s.deps.Logger.WithField(ctx, "attempt", attempt), "checkout.session.retry")
	}

	var out *SessionResult
	err := db.RetryOnConflict(ctx, policy, func(ctx context.Context, attempt int) error {
		return s.deps.Tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			out, err = s.startOnce(ctx, tx, req, checkoutID, attempt)
			return err
		})
	})
	if err != nil {
		s.deps.Metrics.IncCheckout(pathOnline, outcomeLabel(err))
		return nil, err
	}

	result := "session_opened"
	if out.Completed != nil {
		result = "zero_total"
	}
	s.deps.Metrics.IncCheckout(pathOnline, result)
	s.deps.Logger.Info(s.deps.Logger.WithField(ctx, "total", out.Total), "checkout.session."+result)
	return out, nil
}

func (s *SessionService) startOnce(ctx context.Context, tx *gorm.DB, req Request, checkoutID uuid.UUID, attempt int) (*SessionResult, error) {
	p, err := s.prep.prepare(ctx, tx, req, checkoutID, enums.PaymentMethodOnline, true)
	if err != nil {
		return nil, err
	}
	orderRepo := s.deps.Orders.WithTx(tx)
	if err := orderRepo.CreateOrders(ctx, p.assembly.Orders); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist temporary orders")
	}

	if p.assembly.GrandTotal == 0 {
		completed, err := s.settleZeroTotal(ctx, tx, req, checkoutID, p)
		if err != nil {
			return nil, err
		}
		return &SessionResult{CheckoutID: checkoutID, Completed: completed, Total: 0}, nil
	}

	meta := SessionMetadata{
		CheckoutID:              checkoutID,
		UserID:                  req.UserID,
		AddressID:               req.AddressID,
		TempOrderIDs:            p.assembly.OrderIDs(),
		FinalTotal:              p.assembly.GrandTotal,
		PointsToUse:             p.assembly.PointsUsed,
		VoucherCode:             p.voucher.Code(),
		FreeShippingVoucherCode: p.freeShipping.Code(),
	}
	sess, err := s.gateway.CreateCheckoutSession(ctx, pkgstripe.CheckoutSessionRequest{
		// Each attempt builds fresh order ids, so it needs its own key.
		IdempotencyKey:    fmt.Sprintf("%s-%d", checkoutID, attempt),
		ClientReferenceID: checkoutID.String(),
		CustomerEmail:     p.user.Email,
		Currency:          s.cfg.Currency,
		SuccessURL:        s.cfg.SuccessURL,
		CancelURL:         s.cfg.CancelURL,
		Lines:             GatewayLines(p.assembly.Orders),
		Metadata:          meta.Encode(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "could not start payment session")
	}
	if err := orderRepo.SetGatewaySession(ctx, p.assembly.OrderIDs(), sess.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attach payment session")
	}
	return &SessionResult{CheckoutID: checkoutID, Session: sess, Total: p.assembly.GrandTotal}, nil
}

// settleZeroTotal finalizes a checkout fully covered by vouchers and points.
func (s *SessionService) settleZeroTotal(ctx context.Context, tx *gorm.DB, req Request, checkoutID uuid.UUID, p *prepared) (*Result, error) {
	ids := p.assembly.OrderIDs()
	paidAt := s.now().UTC()
	rows, err := s.deps.Orders.WithTx(tx).MarkPaid(ctx, ids, paidAt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark orders paid")
	}
	if rows != int64(len(ids)) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "orders changed while settling")
	}
	for i := range p.assembly.Orders {
		o := &p.assembly.Orders[i]
		o.PaymentStatus = enums.PaymentStatusPaid
		o.Status = enums.OrderStatusConfirmed
		o.IsPaid = true
		o.PaidAt = &paidAt
		o.IsTemporary = false
	}

	fin, err := s.deps.Finalizer.Finalize(ctx, tx, Settlement{
		UserID:     req.UserID,
		CheckoutID: checkoutID,
		Orders:     p.assembly.Orders,
		PointsUsed: p.assembly.PointsUsed,
		Reason:     "online_zero_total",
		Policy:     StrictPolicy,
	})
	if err != nil {
		return nil, err
	}
	return buildResult(checkoutID, p, fin), nil
}

// GatewayLines mirrors the orders as gateway line items at their discounted
// unit price. A line total that does not divide by its quantity gets a
// single-unit adjustment line for the remainder; shipping is its own line.
func GatewayLines(list []models.Order) []pkgstripe.CheckoutLine {
	var (
		lines    []pkgstripe.CheckoutLine
		shipping int64
	)
	for _, o := range list {
		shipping += o.ShippingFeeAmt
		if o.TotalAmt <= 0 || o.Quantity < 1 {
			continue
		}
		qty := int64(o.Quantity)
		unit := o.TotalAmt / qty
		rem := o.TotalAmt % qty
		images := []string(o.ProductImages)
		if unit > 0 {
			lines = append(lines, pkgstripe.CheckoutLine{Name: o.ProductName, Images: images, UnitAmount: unit, Quantity: qty})
		}
		if rem > 0 {
			lines = append(lines, pkgstripe.CheckoutLine{Name: o.ProductName + " (adjustment)", UnitAmount: rem, Quantity: 1})
		}
	}
	if shipping > 0 {
		lines = append(lines, pkgstripe.CheckoutLine{Name: "Shipping", UnitAmount: shipping, Quantity: 1})
	}
	return lines
}
