package orders

import (
	"errors"
	"fmt"
	"sort"

	"github.com/angelmondragon/ordersettle/internal/points"
	"github.com/angelmondragon/ordersettle/internal/vouchers"
	"github.com/angelmondragon/ordersettle/pkg/db/models"
	"github.com/angelmondragon/ordersettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
	"github.com/angelmondragon/ordersettle/pkg/money"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrInvalidLineItem rejects a cart line without a product or a positive quantity.
var ErrInvalidLineItem = errors.New("invalid line item")

// LineItem is one entry of the cart snapshot submitted at checkout.
type LineItem struct {
	ProductID  uuid.UUID
	Quantity   int
	CartItemID *uuid.UUID
}

// PricedLine is a line item bound to its product snapshot.
type PricedLine struct {
	Item            LineItem
	Product         models.Product
	Subtotal        int64
	ProductDiscount int64
	Net             int64
}

// Quote is the priced cart before vouchers and points.
type Quote struct {
	Lines []PricedLine
	// Subtotal is price x quantity summed over lines.
	Subtotal int64
	// NetTotal is the subtotal after per-product discounts; vouchers are
	// validated and computed against it.
	NetTotal    int64
	ProductIDs  []uuid.UUID
	CategoryIDs []string
}

// Assembler turns a cart snapshot into per-line order records.
type Assembler struct {
	shippingFee int64
}

// NewAssembler returns an assembler that charges shippingFee per checkout.
func NewAssembler(shippingFee int64) *Assembler {
	if shippingFee < 0 {
		shippingFee = 0
	}
	return &Assembler{shippingFee: shippingFee}
}

// ShippingFee returns the flat fee charged once per checkout.
func (a *Assembler) ShippingFee() int64 {
	return a.shippingFee
}

// Price validates every line and computes subtotals. Any missing product or
// non-positive quantity fails the whole cart.
func (a *Assembler) Price(items []LineItem, products map[uuid.UUID]models.Product) (*Quote, error) {
	if len(items) == 0 {
		return nil, invalidLine(-1, "cart is empty")
	}

	quote := &Quote{Lines: make([]PricedLine, 0, len(items))}
	seenProducts := map[uuid.UUID]struct{}{}
	seenCategories := map[string]struct{}{}
	for i, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, invalidLine(i, "product is required")
		}
		if item.Quantity < 1 {
			return nil, invalidLine(i, "quantity must be at least 1")
		}
		product, ok := products[item.ProductID]
		if !ok || !product.IsActive {
			return nil, invalidLine(i, fmt.Sprintf("product %s is not available", item.ProductID))
		}

		subtotal := product.Price * int64(item.Quantity)
		net := money.ApplyPercentOff(subtotal, int64(product.DiscountPercent))
		quote.Lines = append(quote.Lines, PricedLine{
			Item:            item,
			Product:         product,
			Subtotal:        subtotal,
			ProductDiscount: subtotal - net,
			Net:             net,
		})
		quote.Subtotal += subtotal
		quote.NetTotal += net

		if _, ok := seenProducts[product.ID]; !ok {
			seenProducts[product.ID] = struct{}{}
			quote.ProductIDs = append(quote.ProductIDs, product.ID)
		}
		for _, c := range product.CategoryIDs {
			if _, ok := seenCategories[c]; !ok {
				seenCategories[c] = struct{}{}
				quote.CategoryIDs = append(quote.CategoryIDs, c)
			}
		}
	}
	sort.Strings(quote.CategoryIDs)
	return quote, nil
}

// AssembleInput carries the validated discounts and identity for a checkout.
type AssembleInput struct {
	CheckoutID      uuid.UUID
	UserID          uuid.UUID
	AddressID       uuid.UUID
	PaymentMethod   enums.PaymentMethod
	Temporary       bool
	Voucher         *vouchers.Applied
	FreeShipping    *vouchers.Applied
	RequestedPoints int64
	AvailablePoints int64
}

// Assembly is the result of assembling a checkout.
type Assembly struct {
	Orders          []models.Order
	Subtotal        int64
	NetTotal        int64
	VoucherDiscount int64
	PointsUsed      int64
	PointsDiscount  int64
	ShippingFee     int64
	ShippingWaived  bool
	// GrandTotal is the sum of line totals plus shipping.
	GrandTotal int64
}

// OrderIDs lists the ids of the assembled orders.
func (a *Assembly) OrderIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(a.Orders))
	for _, o := range a.Orders {
		ids = append(ids, o.ID)
	}
	return ids
}

// CartItemIDs lists the cart entries the checkout redeems.
func (a *Assembly) CartItemIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, o := range a.Orders {
		if o.CartItemID != nil {
			ids = append(ids, *o.CartItemID)
		}
	}
	return ids
}

// Assemble allocates the voucher discount and the points value across lines
// with the largest-remainder method, so the shares sum exactly, and charges
// shipping on the first line unless waived.
func (a *Assembler) Assemble(q *Quote, in AssembleInput) (*Assembly, error) {
	if q == nil || len(q.Lines) == 0 {
		return nil, invalidLine(-1, "cart is empty")
	}
	if in.CheckoutID == uuid.Nil || in.UserID == uuid.Nil || in.AddressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout, user and address are required")
	}
	if !in.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", in.PaymentMethod))
	}

	nets := make([]int64, len(q.Lines))
	for i, line := range q.Lines {
		nets[i] = line.Net
	}

	voucherDiscount := int64(0)
	if in.Voucher != nil {
		voucherDiscount = money.Min(in.Voucher.Discount, q.NetTotal)
	}
	voucherShares := money.Allocate(voucherDiscount, nets)

	afterVoucher := make([]int64, len(nets))
	for i := range nets {
		afterVoucher[i] = nets[i] - voucherShares[i]
	}
	itemsTotal := money.Sum(afterVoucher)

	shipping := a.shippingFee
	waived := in.FreeShipping != nil && in.FreeShipping.WaiveShipping
	if waived {
		shipping = 0
	}

	pointsUsed := points.Clamp(in.RequestedPoints, in.AvailablePoints, itemsTotal+shipping)
	if maxByItems := itemsTotal / points.PointValue; pointsUsed > maxByItems {
		pointsUsed = maxByItems
	}
	pointsValue := points.Value(pointsUsed)
	pointsShares := money.Allocate(pointsValue, afterVoucher)

	out := &Assembly{
		Orders:          make([]models.Order, 0, len(q.Lines)),
		Subtotal:        q.Subtotal,
		NetTotal:        q.NetTotal,
		VoucherDiscount: voucherDiscount,
		PointsUsed:      pointsUsed,
		PointsDiscount:  pointsValue,
		ShippingFee:     shipping,
		ShippingWaived:  waived,
	}

	for i, line := range q.Lines {
		order := models.Order{
			ID:                 uuid.New(),
			CheckoutID:         in.CheckoutID,
			UserID:             in.UserID,
			ProductID:          line.Product.ID,
			CartItemID:         line.Item.CartItemID,
			AddressID:          in.AddressID,
			ProductName:        line.Product.Name,
			ProductImages:      append(pq.StringArray{}, line.Product.Images...),
			Quantity:           line.Item.Quantity,
			UnitPrice:          line.Product.Price,
			SubTotalAmt:        line.Subtotal,
			ProductDiscountAmt: line.ProductDiscount,
			VoucherDiscountAmt: voucherShares[i],
			PointsDiscountAmt:  pointsShares[i],
			TotalAmt:           afterVoucher[i] - pointsShares[i],
			PaymentMethod:      in.PaymentMethod,
			PaymentStatus:      enums.PaymentStatusPending,
			Status:             enums.OrderStatusPending,
			IsTemporary:        in.Temporary,
		}
		if i == 0 {
			order.ShippingFeeAmt = shipping
		}
		attachVoucher(&order, in.Voucher, in.FreeShipping)
		out.Orders = append(out.Orders, order)
		out.GrandTotal += order.GrandTotal()
	}
	return out, nil
}

func attachVoucher(order *models.Order, voucher, freeShipping *vouchers.Applied) {
	if voucher != nil && voucher.Voucher != nil {
		id := voucher.Voucher.ID
		code := voucher.Voucher.Code
		kind := voucher.Voucher.DiscountType
		order.VoucherID = &id
		order.VoucherCode = &code
		order.VoucherType = &kind
	}
	if freeShipping != nil && freeShipping.Voucher != nil {
		id := freeShipping.Voucher.ID
		code := freeShipping.Voucher.Code
		order.FreeShippingVoucherID = &id
		order.FreeShippingVoucherCode = &code
	}
}

func invalidLine(index int, msg string) error {
	err := pkgerrors.Wrap(pkgerrors.CodeValidation, ErrInvalidLineItem, msg)
	if index >= 0 {
		err = err.WithDetails(map[string]any{"line": index})
	}
	return err
}
