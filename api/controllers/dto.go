package controllers

import (
	"time"

	"github.com/google/uuid"

	checkoutsvc "github.com/angelmondragon/ordersettle/internal/checkout"
	"github.com/angelmondragon/ordersettle/pkg/db/models"
)

type orderResponse struct {
	ID                 uuid.UUID  `json:"id"`
	CheckoutID         uuid.UUID  `json:"checkoutId"`
	ProductID          uuid.UUID  `json:"productId"`
	ProductName        string     `json:"productName"`
	ProductImages      []string   `json:"productImages"`
	Quantity           int        `json:"quantity"`
	UnitPrice          int64      `json:"unitPrice"`
	SubTotalAmt        int64      `json:"subTotalAmt"`
	ProductDiscountAmt int64      `json:"productDiscountAmt"`
	VoucherDiscountAmt int64      `json:"voucherDiscountAmt"`
	PointsDiscountAmt  int64      `json:"pointsDiscountAmt"`
	ShippingFeeAmt     int64      `json:"shippingFeeAmt"`
	TotalAmt           int64      `json:"totalAmt"`
	PaymentMethod      string     `json:"paymentMethod"`
	PaymentStatus      string     `json:"paymentStatus"`
	Status             string     `json:"status"`
	VoucherCode        *string    `json:"voucherCode,omitempty"`
	IsPaid             bool       `json:"isPaid"`
	PaidAt             *time.Time `json:"paidAt,omitempty"`
	IsTemporary        bool       `json:"isTemporary"`
	CancelReason       *string    `json:"cancelReason,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

type checkoutResponse struct {
	CheckoutID          uuid.UUID                   `json:"checkoutId"`
	Orders              []orderResponse             `json:"orders"`
	PointsEarned        int64                       `json:"pointsEarned"`
	PointsUsed          int64                       `json:"pointsUsed"`
	VoucherApplied      *checkoutsvc.AppliedVoucher `json:"voucherApplied"`
	FreeShippingApplied *checkoutsvc.AppliedVoucher `json:"freeShippingApplied,omitempty"`
	ShippingFee         int64                       `json:"shippingFee"`
	Total               int64                       `json:"total"`
}

type sessionResponse struct {
	CheckoutID uuid.UUID         `json:"checkoutId"`
	SessionID  string            `json:"sessionId,omitempty"`
	URL        string            `json:"url,omitempty"`
	ExpiresAt  *time.Time        `json:"expiresAt,omitempty"`
	Total      int64             `json:"total"`
	Completed  *checkoutResponse `json:"completed,omitempty"`
}

func newOrderResponse(o models.Order) orderResponse {
	images := []string(o.ProductImages)
	if images == nil {
		images = []string{}
	}
	return orderResponse{
		ID:                 o.ID,
		CheckoutID:         o.CheckoutID,
		ProductID:          o.ProductID,
		ProductName:        o.ProductName,
		ProductImages:      images,
		Quantity:           o.Quantity,
		UnitPrice:          o.UnitPrice,
		SubTotalAmt:        o.SubTotalAmt,
		ProductDiscountAmt: o.ProductDiscountAmt,
		VoucherDiscountAmt: o.VoucherDiscountAmt,
		PointsDiscountAmt:  o.PointsDiscountAmt,
		ShippingFeeAmt:     o.ShippingFeeAmt,
		TotalAmt:           o.TotalAmt,
		PaymentMethod:      string(o.PaymentMethod),
		PaymentStatus:      string(o.PaymentStatus),
		Status:             string(o.Status),
		VoucherCode:        o.VoucherCode,
		IsPaid:             o.IsPaid,
		PaidAt:             o.PaidAt,
		IsTemporary:        o.IsTemporary,
		CancelReason:       o.CancelReason,
		CancelledAt:        o.CancelledAt,
		CreatedAt:          o.CreatedAt,
	}
}

func newCheckoutResponse(result *checkoutsvc.Result) *checkoutResponse {
	if result == nil {
		return nil
	}
	list := make([]orderResponse, 0, len(result.Orders))
	for _, o := range result.Orders {
		list = append(list, newOrderResponse(o))
	}
	return &checkoutResponse{
		CheckoutID:          result.CheckoutID,
		Orders:              list,
		PointsEarned:        result.PointsEarned,
		PointsUsed:          result.PointsUsed,
		VoucherApplied:      result.VoucherApplied,
		FreeShippingApplied: result.FreeShippingApplied,
		ShippingFee:         result.ShippingFee,
		Total:               result.Total,
	}
}

func newSessionResponse(result *checkoutsvc.SessionResult) sessionResponse {
	resp := sessionResponse{
		CheckoutID: result.CheckoutID,
		Total:      result.Total,
		Completed:  newCheckoutResponse(result.Completed),
	}
	if s := result.Session; s != nil {
		resp.SessionID = s.ID
		resp.URL = s.URL
		if !s.ExpiresAt.IsZero() {
			expires := s.ExpiresAt
			resp.ExpiresAt = &expires
		}
	}
	return resp
}
