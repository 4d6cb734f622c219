package vouchers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/ordersettle/pkg/db/models"
	"github.com/angelmondragon/ordersettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
	"github.com/angelmondragon/ordersettle/pkg/money"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrVoucherInvalid       = errors.New("voucher invalid")
	ErrMinOrderNotMet       = errors.New("minimum order value not met")
	ErrVoucherNotApplicable = errors.New("voucher not applicable")
)

// Slot distinguishes the regular discount code from the free-shipping code.
// A checkout may carry one of each.
type Slot string

const (
	SlotDiscount     Slot = "discount"
	SlotFreeShipping Slot = "free_shipping"
)

// ValidateInput is everything rule evaluation needs about the cart.
type ValidateInput struct {
	Code        string
	UserID      uuid.UUID
	Subtotal    int64
	ProductIDs  []uuid.UUID
	CategoryIDs []string
	Slot        Slot
}

// Applied is a voucher that passed validation together with its effect.
type Applied struct {
	Voucher       *models.Voucher
	Discount      int64
	WaiveShipping bool
}

// Code returns the normalized voucher code, or "" for a nil voucher.
func (a *Applied) Code() string {
	if a == nil || a.Voucher == nil {
		return ""
	}
	return a.Voucher.Code
}

// Validator evaluates voucher rules and records redemptions.
type Validator struct {
	repo Repository
	now  func() time.Time
}

// Option customizes a Validator.
type Option func(*Validator)

// WithClock overrides the time source used for validity windows.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewValidator wires a validator with the provided repository.
func NewValidator(repo Repository, opts ...Option) (*Validator, error) {
	if repo == nil {
		return nil, fmt.Errorf("voucher repository required")
	}
	v := &Validator{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// WithTx returns a validator whose reads and writes run on tx.
func (v *Validator) WithTx(tx *gorm.DB) *Validator {
	return &Validator{repo: v.repo.WithTx(tx), now: v.now}
}

// Validate applies the voucher rules in order: availability, minimum order,
// applicability, then discount computation.
func (v *Validator) Validate(ctx context.Context, in ValidateInput) (*Applied, error) {
	code := NormalizeCode(in.Code)
	if code == "" {
		return nil, invalid(code, "voucher code is required")
	}
	if in.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	voucher, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load voucher")
	}
	if voucher == nil {
		return nil, invalid(code, fmt.Sprintf("voucher %s does not exist", code))
	}
	if err := checkSlot(voucher, in.Slot); err != nil {
		return nil, err
	}
	if err := v.checkAvailable(voucher); err != nil {
		return nil, err
	}

	used, err := v.repo.HasUser(ctx, voucher.ID, in.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check voucher usage")
	}
	if used {
		return nil, invalid(code, fmt.Sprintf("you have already used voucher %s", code))
	}

	if in.Subtotal < voucher.MinOrderValue {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrMinOrderNotMet,
			fmt.Sprintf("order must be at least %d to use voucher %s", voucher.MinOrderValue, code)).
			WithDetails(map[string]any{"code": code, "min_order_value": voucher.MinOrderValue})
	}

	if !Applies(voucher, in.ProductIDs, in.CategoryIDs) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrVoucherNotApplicable,
			fmt.Sprintf("voucher %s does not apply to the items in your cart", code)).
			WithDetails(map[string]any{"code": code})
	}

	discount, waive := ComputeDiscount(voucher, in.Subtotal)
	return &Applied{Voucher: voucher, Discount: discount, WaiveShipping: waive}, nil
}

func (v *Validator) checkAvailable(voucher *models.Voucher) error {
	code := voucher.Code
	if !voucher.IsActive {
		return invalid(code, fmt.Sprintf("voucher %s is not active", code))
	}
	now := v.now()
	if now.Before(voucher.StartDate) {
		return invalid(code, fmt.Sprintf("voucher %s is not yet valid", code))
	}
	if now.After(voucher.EndDate) {
		return invalid(code, fmt.Sprintf("voucher %s has expired", code))
	}
	if voucher.UsageLimit != nil && voucher.UsageCount >= *voucher.UsageLimit {
		return invalid(code, fmt.Sprintf("voucher %s has reached its usage limit", code))
	}
	return nil
}

func checkSlot(voucher *models.Voucher, slot Slot) error {
	isShipping := voucher.DiscountType == enums.DiscountTypeFreeShipping
	switch slot {
	case SlotFreeShipping:
		if !isShipping {
			return invalid(voucher.Code, fmt.Sprintf("voucher %s is not a free shipping voucher", voucher.Code))
		}
	default:
		if isShipping {
			return invalid(voucher.Code, fmt.Sprintf("voucher %s can only be used for free shipping", voucher.Code))
		}
	}
	return nil
}

// Applies reports whether the voucher's allow-lists intersect the cart.
func Applies(voucher *models.Voucher, productIDs []uuid.UUID, categoryIDs []string) bool {
	if voucher.ApplyForAllProducts {
		return true
	}
	allowedProducts := make(map[string]struct{}, len(voucher.ProductIDs))
	for _, id := range voucher.ProductIDs {
		allowedProducts[strings.ToLower(strings.TrimSpace(id))] = struct{}{}
	}
	for _, id := range productIDs {
		if _, ok := allowedProducts[id.String()]; ok {
			return true
		}
	}
	allowedCategories := make(map[string]struct{}, len(voucher.CategoryIDs))
	for _, id := range voucher.CategoryIDs {
		allowedCategories[strings.TrimSpace(id)] = struct{}{}
	}
	for _, id := range categoryIDs {
		if _, ok := allowedCategories[strings.TrimSpace(id)]; ok {
			return true
		}
	}
	return false
}

// ComputeDiscount returns the line-item discount for subtotal and whether the
// shipping fee is waived instead.
func ComputeDiscount(voucher *models.Voucher, subtotal int64) (int64, bool) {
	if subtotal <= 0 {
		return 0, voucher.DiscountType == enums.DiscountTypeFreeShipping
	}
	switch voucher.DiscountType {
	case enums.DiscountTypePercentage:
		discount := money.Percent(subtotal, voucher.DiscountValue)
		if voucher.MaxDiscount != nil && discount > *voucher.MaxDiscount {
			discount = *voucher.MaxDiscount
		}
		return money.Min(discount, subtotal), false
	case enums.DiscountTypeFixed:
		return money.Min(money.Max(voucher.DiscountValue, 0), subtotal), false
	case enums.DiscountTypeFreeShipping:
		return 0, true
	}
	return 0, false
}

// UsageResult describes what RecordUsage changed.
type UsageResult struct {
	Added     bool
	OverLimit bool
	// AlreadyUsed is set when an unenforced redemption found the user in the
	// voucher's used set from an earlier checkout.
	AlreadyUsed bool
}

// RecordUsage adds the user to the voucher's used set and bumps the usage
// count once. With enforce, losing a race for the last use or for the user's
// single use is a VoucherInvalid error. Without enforce the redemption is
// recorded regardless; OverLimit and AlreadyUsed report the limit that was
// exceeded.
func (v *Validator) RecordUsage(ctx context.Context, voucher *models.Voucher, userID uuid.UUID, orderID *uuid.UUID, enforce bool) (UsageResult, error) {
	var result UsageResult
	if voucher == nil {
		return result, nil
	}

	added, err := v.repo.AddUser(ctx, voucher.ID, userID, orderID)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record voucher user")
	}
	if !added {
		if enforce {
			return result, invalid(voucher.Code, fmt.Sprintf("you have already used voucher %s", voucher.Code))
		}
		result.AlreadyUsed = true
		return result, nil
	}
	result.Added = true

	ok, err := v.repo.IncrementUsage(ctx, voucher.ID, true)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "increment voucher usage")
	}
	if ok {
		return result, nil
	}
	if enforce {
		return result, invalid(voucher.Code, fmt.Sprintf("voucher %s has reached its usage limit", voucher.Code))
	}

	if _, err := v.repo.IncrementUsage(ctx, voucher.ID, false); err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "increment voucher usage")
	}
	result.OverLimit = true
	return result, nil
}

func invalid(code, msg string) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrVoucherInvalid, msg).
		WithDetails(map[string]any{"code": code})
}
