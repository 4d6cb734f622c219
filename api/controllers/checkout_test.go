package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/ordersettle/api/middleware"
	checkoutsvc "github.com/angelmondragon/ordersettle/internal/checkout"
	"github.com/angelmondragon/ordersettle/pkg/db/models"
	"github.com/angelmondragon/ordersettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
	pkgstripe "github.com/angelmondragon/ordersettle/pkg/stripe"
)

type fakeCheckout struct {
	got     checkoutsvc.Request
	calls   int
	result  *checkoutsvc.Result
	session *checkoutsvc.SessionResult
	err     error
}

func (f *fakeCheckout) PlaceCashOrder(ctx context.Context, req checkoutsvc.Request) (*checkoutsvc.Result, error) {
	f.calls++
	f.got = req
	return f.result, f.err
}

func (f *fakeCheckout) Start(ctx context.Context, req checkoutsvc.Request) (*checkoutsvc.SessionResult, error) {
	f.calls++
	f.got = req
	return f.session, f.err
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func checkoutBody(productID, cartItemID, addressID uuid.UUID) string {
	return `{"list_items":[{"productId":"` + productID.String() + `","quantity":2,"cartItemId":"` + cartItemID.String() + `"}],` +
		`"totalAmt":210000,"subTotalAmt":200000,"addressId":"` + addressID.String() + `","pointsToUse":50,"voucherCode":"  SPRING10 "}`
}

func authed(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func sampleResult(checkoutID uuid.UUID) *checkoutsvc.Result {
	return &checkoutsvc.Result{
		CheckoutID: checkoutID,
		Orders: []models.Order{{
			ID:            uuid.New(),
			CheckoutID:    checkoutID,
			ProductName:   "Oolong",
			Quantity:      2,
			TotalAmt:      210000,
			PaymentMethod: enums.PaymentMethodCOD,
			PaymentStatus: enums.PaymentStatusPending,
		}},
		PointsEarned:   21,
		PointsUsed:     50,
		VoucherApplied: &checkoutsvc.AppliedVoucher{Code: "SPRING10", Type: "percentage", Discount: 20000},
		Total:          210000,
	}
}

func TestCashOrderMapsRequestAndResponse(t *testing.T) {
	userID, productID, cartItemID, addressID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	checkoutID := uuid.New()
	svc := &fakeCheckout{result: sampleResult(checkoutID)}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/cash", strings.NewReader(checkoutBody(productID, cartItemID, addressID)))
	rec := httptest.NewRecorder()
	CashOrder(svc, nil).ServeHTTP(rec, authed(req, userID))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, userID, svc.got.UserID)
	assert.Equal(t, addressID, svc.got.AddressID)
	assert.Equal(t, int64(210000), svc.got.ClientTotal)
	assert.Equal(t, int64(200000), svc.got.ClientSubtotal)
	assert.Equal(t, int64(50), svc.got.PointsToUse)
	assert.Equal(t, "SPRING10", svc.got.VoucherCode)
	require.Len(t, svc.got.Items, 1)
	assert.Equal(t, productID, svc.got.Items[0].ProductID)
	assert.Equal(t, 2, svc.got.Items[0].Quantity)
	require.NotNil(t, svc.got.Items[0].CartItemID)
	assert.Equal(t, cartItemID, *svc.got.Items[0].CartItemID)

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	var data checkoutResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, checkoutID, data.CheckoutID)
	assert.Equal(t, int64(21), data.PointsEarned)
	assert.Equal(t, int64(50), data.PointsUsed)
	require.NotNil(t, data.VoucherApplied)
	assert.Equal(t, "SPRING10", data.VoucherApplied.Code)
	require.Len(t, data.Orders, 1)
	assert.Equal(t, "cod", data.Orders[0].PaymentMethod)
}

func TestCashOrderRejectsInvalidInput(t *testing.T) {
	userID := uuid.New()
	tests := []struct {
		name   string
		body   string
		userID *uuid.UUID
		status int
	}{
		{name: "unauthenticated", body: checkoutBody(uuid.New(), uuid.New(), uuid.New()), status: http.StatusUnauthorized},
		{name: "empty cart", body: `{"list_items":[],"addressId":"` + uuid.NewString() + `"}`, userID: &userID, status: http.StatusBadRequest},
		{name: "zero quantity", body: `{"list_items":[{"productId":"` + uuid.NewString() + `","quantity":0}],"addressId":"` + uuid.NewString() + `"}`, userID: &userID, status: http.StatusBadRequest},
		{name: "bad address", body: `{"list_items":[{"productId":"` + uuid.NewString() + `","quantity":1}],"addressId":"nope"}`, userID: &userID, status: http.StatusBadRequest},
		{name: "bad voucher code", body: `{"list_items":[{"productId":"` + uuid.NewString() + `","quantity":1}],"addressId":"` + uuid.NewString() + `","voucherCode":"SPRING 10!"}`, userID: &userID, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"list_items":[{"productId":"` + uuid.NewString() + `","quantity":1}],"addressId":"` + uuid.NewString() + `","tip":5}`, userID: &userID, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeCheckout{}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/cash", strings.NewReader(tt.body))
			if tt.userID != nil {
				req = authed(req, *tt.userID)
			}
			rec := httptest.NewRecorder()
			CashOrder(svc, nil).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Zero(t, svc.calls)
		})
	}
}

func TestCashOrderSurfacesTypedErrors(t *testing.T) {
	svc := &fakeCheckout{err: pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock")}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/cash", strings.NewReader(checkoutBody(uuid.New(), uuid.New(), uuid.New())))
	rec := httptest.NewRecorder()
	CashOrder(svc, nil).ServeHTTP(rec, authed(req, uuid.New()))

	require.Equal(t, http.StatusConflict, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, string(pkgerrors.CodeConflict), env.Error.Code)
	assert.Equal(t, "insufficient stock", env.Message)
}

func TestCheckoutSessionReturnsRedirect(t *testing.T) {
	checkoutID := uuid.New()
	expires := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := &fakeCheckout{session: &checkoutsvc.SessionResult{
		CheckoutID: checkoutID,
		Session:    &pkgstripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1", ExpiresAt: expires},
		Total:      210000,
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/checkout-session", strings.NewReader(checkoutBody(uuid.New(), uuid.New(), uuid.New())))
	rec := httptest.NewRecorder()
	CheckoutSession(svc, nil).ServeHTTP(rec, authed(req, uuid.New()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var data sessionResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &data))
	assert.Equal(t, checkoutID, data.CheckoutID)
	assert.Equal(t, "cs_test_1", data.SessionID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", data.URL)
	require.NotNil(t, data.ExpiresAt)
	assert.True(t, expires.Equal(*data.ExpiresAt))
	assert.Nil(t, data.Completed)
}

func TestCheckoutSessionZeroTotalIsCreated(t *testing.T) {
	checkoutID := uuid.New()
	svc := &fakeCheckout{session: &checkoutsvc.SessionResult{CheckoutID: checkoutID, Completed: sampleResult(checkoutID)}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/checkout-session", strings.NewReader(checkoutBody(uuid.New(), uuid.New(), uuid.New())))
	rec := httptest.NewRecorder()
	CheckoutSession(svc, nil).ServeHTTP(rec, authed(req, uuid.New()))

	require.Equal(t, http.StatusCreated, rec.Code)
	var data sessionResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &data))
	assert.Empty(t, data.URL)
	require.NotNil(t, data.Completed)
	assert.Len(t, data.Completed.Orders, 1)
}
