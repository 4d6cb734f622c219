package checkout

import (
	"context"
	"fmt"

	"github.com/angelmondragon/ordersettle/internal/address"
	"github.com/angelmondragon/ordersettle/internal/orders"
	"github.com/angelmondragon/ordersettle/internal/products"
	"github.com/angelmondragon/ordersettle/internal/users"
	"github.com/angelmondragon/ordersettle/internal/vouchers"
	"github.com/angelmondragon/ordersettle/pkg/db/models"
	"github.com/angelmondragon/ordersettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// preparer runs the read-only half of a checkout: input, user, address,
// products, vouchers, and assembly.
type preparer struct {
	users     users.Repository
	addresses address.Repository
	products  products.Repository
	vouchers  *vouchers.Validator
	assembler *orders.Assembler
}

type prepared struct {
	user         *models.User
	voucher      *vouchers.Applied
	freeShipping *vouchers.Applied
	assembly     *orders.Assembly
}

func (p *preparer) prepare(ctx context.Context, tx *gorm.DB, req Request, checkoutID uuid.UUID, method enums.PaymentMethod, temporary bool) (*prepared, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	user, err := p.users.WithTx(tx).FindByID(ctx, req.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if user.Status != enums.UserStatusActive {
		return nil, userNotActive(user.Status)
	}

	addr, err := p.addresses.WithTx(tx).FindForUser(ctx, req.AddressID, req.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load address")
	}
	if addr == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}

	ids := make([]uuid.UUID, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}
	catalog, err := p.products.WithTx(tx).FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
	}
	quote, err := p.assembler.Price(req.Items, catalog)
	if err != nil {
		return nil, err
	}

	out := &prepared{user: user}
	validator := p.vouchers.WithTx(tx)
	if req.VoucherCode != "" {
		out.voucher, err = validator.Validate(ctx, vouchers.ValidateInput{
			Code:        req.VoucherCode,
			UserID:      req.UserID,
			Subtotal:    quote.NetTotal,
			ProductIDs:  quote.ProductIDs,
			CategoryIDs: quote.CategoryIDs,
			Slot:        vouchers.SlotDiscount,
		})
		if err != nil {
			return nil, err
		}
	}
	if req.FreeShippingVoucherCode != "" {
		out.freeShipping, err = validator.Validate(ctx, vouchers.ValidateInput{
			Code:        req.FreeShippingVoucherCode,
			UserID:      req.UserID,
			Subtotal:    quote.NetTotal,
			ProductIDs:  quote.ProductIDs,
			CategoryIDs: quote.CategoryIDs,
			Slot:        vouchers.SlotFreeShipping,
		})
		if err != nil {
			return nil, err
		}
	}

	out.assembly, err = p.assembler.Assemble(quote, orders.AssembleInput{
		CheckoutID:      checkoutID,
		UserID:          req.UserID,
		AddressID:       req.AddressID,
		PaymentMethod:   method,
		Temporary:       temporary,
		Voucher:         out.voucher,
		FreeShipping:    out.freeShipping,
		RequestedPoints: req.PointsToUse,
		AvailablePoints: user.RewardsPoints,
	})
	if err != nil {
		return nil, err
	}
	if err := checkClientTotals(req, out.assembly); err != nil {
		return nil, err
	}
	return out, nil
}

func newPreparer(deps Dependencies) (*preparer, error) {
	switch {
	case deps.Users == nil:
		return nil, fmt.Errorf("user repository required")
	case deps.Addresses == nil:
		return nil, fmt.Errorf("address repository required")
	case deps.Products == nil:
		return nil, fmt.Errorf("product repository required")
	case deps.Vouchers == nil:
		return nil, fmt.Errorf("voucher validator required")
	case deps.Assembler == nil:
		return nil, fmt.Errorf("order assembler required")
	}
	return &preparer{
		users:     deps.Users,
		addresses: deps.Addresses,
		products:  deps.Products,
		vouchers:  deps.Vouchers,
		assembler: deps.Assembler,
	}, nil
}
