package checkout

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/ordersettle/internal/orders"
	"github.com/angelmondragon/ordersettle/internal/stock"
	"github.com/angelmondragon/ordersettle/internal/vouchers"
	"github.com/angelmondragon/ordersettle/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
	pkgstripe "github.com/angelmondragon/ordersettle/pkg/stripe"
	"github.com/google/uuid"
)

// ErrTotalMismatch means the cart the buyer reviewed no longer prices the same.
var ErrTotalMismatch = errors.New("order total changed")

// totalTolerance absorbs rounding differences between client and server totals.
const totalTolerance int64 = 1

// Request is a checkout submitted by an authenticated buyer.
type Request struct {
	// CheckoutID is optional; one is generated when empty.
	CheckoutID              uuid.UUID
	UserID                  uuid.UUID
	AddressID               uuid.UUID
	Items                   []orders.LineItem
	ClientTotal             int64
	ClientSubtotal          int64
	PointsToUse             int64
	VoucherCode             string
	FreeShippingVoucherCode string
}

func (r Request) validate() error {
	if r.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user is required")
	}
	if r.AddressID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	}
	if len(r.Items) == 0 {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, orders.ErrInvalidLineItem, "cart is empty")
	}
	if r.PointsToUse < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "points to use must not be negative")
	}
	if r.ClientTotal < 0 || r.ClientSubtotal < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "totals must not be negative")
	}
	return nil
}

// Result is the immediate outcome of a finalized checkout.
type Result struct {
	CheckoutID          uuid.UUID         `json:"checkoutId"`
	Orders              []models.Order    `json:"orders"`
	PointsEarned        int64             `json:"pointsEarned"`
	PointsUsed          int64             `json:"pointsUsed"`
	VoucherApplied      *AppliedVoucher   `json:"voucherApplied"`
	FreeShippingApplied *AppliedVoucher   `json:"freeShippingApplied,omitempty"`
	ShippingFee         int64             `json:"shippingFee"`
	Total               int64             `json:"total"`
	Oversold            []stock.Shortfall `json:"-"`
}

// AppliedVoucher is the public summary of a redeemed voucher.
type AppliedVoucher struct {
	Code     string `json:"code"`
	Type     string `json:"type"`
	Discount int64  `json:"discount"`
}

func summarizeVoucher(a *vouchers.Applied, discount int64) *AppliedVoucher {
	if a == nil || a.Voucher == nil {
		return nil
	}
	return &AppliedVoucher{Code: a.Voucher.Code, Type: string(a.Voucher.DiscountType), Discount: discount}
}

// SessionResult is what an online checkout returns: either a gateway
// redirect or, when nothing is left to pay, an already finalized result.
type SessionResult struct {
	CheckoutID uuid.UUID                  `json:"checkoutId"`
	Session    *pkgstripe.CheckoutSession `json:"session,omitempty"`
	Completed  *Result                    `json:"completed,omitempty"`
	Total      int64                      `json:"total"`
}

func checkClientTotals(req Request, assembly *orders.Assembly) error {
	mismatch := func(field string, client, server int64) error {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrTotalMismatch, "order total changed, please review your cart").
			WithDetails(map[string]any{"field": field, "submitted": client, "computed": server})
	}
	if req.ClientSubtotal > 0 && abs(req.ClientSubtotal-assembly.Subtotal) > totalTolerance {
		return mismatch("subTotalAmt", req.ClientSubtotal, assembly.Subtotal)
	}
	if req.ClientTotal > 0 && abs(req.ClientTotal-assembly.GrandTotal) > totalTolerance {
		return mismatch("totalAmt", req.ClientTotal, assembly.GrandTotal)
	}
	return nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func userNotActive(status fmt.Stringer) error {
	return pkgerrors.New(pkgerrors.CodeForbidden, "account is not active").
		WithDetails(map[string]any{"status": status.String()})
}
