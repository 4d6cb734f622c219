package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/ordersettle/api/middleware"
	"github.com/angelmondragon/ordersettle/api/responses"
	"github.com/angelmondragon/ordersettle/api/validators"
	checkoutsvc "github.com/angelmondragon/ordersettle/internal/checkout"
	"github.com/angelmondragon/ordersettle/internal/orders"
	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
	"github.com/angelmondragon/ordersettle/pkg/logger"
)

const voucherCodeMaxLen = 64

type cashOrderPlacer interface {
	PlaceCashOrder(ctx context.Context, req checkoutsvc.Request) (*checkoutsvc.Result, error)
}

type sessionStarter interface {
	Start(ctx context.Context, req checkoutsvc.Request) (*checkoutsvc.SessionResult, error)
}

type checkoutItem struct {
	ProductID  string `json:"productId" validate:"required,uuid"`
	Quantity   int    `json:"quantity" validate:"required,min=1"`
	CartItemID string `json:"cartItemId,omitempty" validate:"omitempty,uuid"`
}

type checkoutRequest struct {
	ListItems               []checkoutItem `json:"list_items" validate:"required,min=1,dive"`
	TotalAmt                int64          `json:"totalAmt" validate:"gte=0"`
	SubTotalAmt             int64          `json:"subTotalAmt" validate:"gte=0"`
	AddressID               string         `json:"addressId" validate:"required,uuid"`
	PointsToUse             int64          `json:"pointsToUse,omitempty" validate:"gte=0"`
	VoucherCode             string         `json:"voucherCode,omitempty" validate:"omitempty,max=64,voucher_code"`
	FreeShippingVoucherCode string         `json:"freeShippingVoucherCode,omitempty" validate:"omitempty,max=64,voucher_code"`
}

// CashOrder places a cash-on-delivery checkout for the authenticated buyer.
func CashOrder(svc cashOrderPlacer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		req, err := decodeCheckout(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.PlaceCashOrder(ctx, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, "Order placed successfully", newCheckoutResponse(result))
	}
}

// CheckoutSession opens a hosted payment session, or settles immediately
// when points and vouchers cover the whole amount.
func CheckoutSession(svc sessionStarter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		req, err := decodeCheckout(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Start(ctx, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if result.Completed != nil {
			responses.WriteSuccessStatus(w, http.StatusCreated, "Order placed successfully", newSessionResponse(result))
			return
		}
		responses.WriteSuccess(w, "Checkout session created", newSessionResponse(result))
	}
}

func decodeCheckout(r *http.Request) (checkoutsvc.Request, error) {
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return checkoutsvc.Request{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	var payload checkoutRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		return checkoutsvc.Request{}, err
	}

	addressID, err := validators.ParseUUIDField("addressId", payload.AddressID)
	if err != nil {
		return checkoutsvc.Request{}, err
	}
	items := make([]orders.LineItem, 0, len(payload.ListItems))
	for _, item := range payload.ListItems {
		productID, err := validators.ParseUUIDField("productId", item.ProductID)
		if err != nil {
			return checkoutsvc.Request{}, err
		}
		line := orders.LineItem{ProductID: productID, Quantity: item.Quantity}
		if item.CartItemID != "" {
			cartItemID, err := validators.ParseUUIDField("cartItemId", item.CartItemID)
			if err != nil {
				return checkoutsvc.Request{}, err
			}
			line.CartItemID = &cartItemID
		}
		items = append(items, line)
	}

	return checkoutsvc.Request{
		UserID:                  userID,
		AddressID:               addressID,
		Items:                   items,
		ClientTotal:             payload.TotalAmt,
		ClientSubtotal:          payload.SubTotalAmt,
		PointsToUse:             payload.PointsToUse,
		VoucherCode:             validators.SanitizeString(payload.VoucherCode, voucherCodeMaxLen),
		FreeShippingVoucherCode: validators.SanitizeString(payload.FreeShippingVoucherCode, voucherCodeMaxLen),
	}, nil
}
