package orders

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/ordersettle/pkg/db"
	"github.com/angelmondragon/ordersettle/pkg/db/dbtest"
	"github.com/angelmondragon/ordersettle/pkg/db/models"
	"github.com/angelmondragon/ordersettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCheckout(t *testing.T, repo Repository, temporary bool, lines int) []models.Order {
	t.Helper()
	checkoutID := uuid.New()
	userID := uuid.New()
	addressID := uuid.New()
	out := make([]models.Order, 0, lines)
	for i := 0; i < lines; i++ {
		out = append(out, models.Order{
			ID:            uuid.New(),
			CheckoutID:    checkoutID,
			UserID:        userID,
			ProductID:     uuid.New(),
			AddressID:     addressID,
			ProductName:   "Oolong",
			Quantity:      1,
			UnitPrice:     1000,
			SubTotalAmt:   1000,
			TotalAmt:      1000,
			PaymentMethod: enums.PaymentMethodOnline,
			PaymentStatus: enums.PaymentStatusPending,
			Status:        enums.OrderStatusPending,
			IsTemporary:   temporary,
		})
	}
	require.NoError(t, repo.CreateOrders(context.Background(), out))
	return out
}

func TestMarkPaidOnlyPromotesPendingRows(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	orders := seedCheckout(t, repo, true, 2)
	ids := []uuid.UUID{orders[0].ID, orders[1].ID}

	rows, err := repo.MarkPaid(ctx, ids, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, int64(2), rows)

	rows, err = repo.MarkPaid(ctx, ids, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, int64(0), rows, "replayed promotion must be a no-op")

	got, err := repo.FindByIDs(ctx, ids)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, o := range got {
		assert.Equal(t, enums.PaymentStatusPaid, o.PaymentStatus)
		assert.Equal(t, enums.OrderStatusConfirmed, o.Status)
		assert.True(t, o.IsPaid)
		assert.False(t, o.IsTemporary)
		assert.NotNil(t, o.PaidAt)
	}

	rows, err = repo.Cancel(ctx, ids, "too late", time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, int64(0), rows, "paid orders cannot be cancelled")
}

func TestFindByIDsKeepsRequestOrder(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	orders := seedCheckout(t, repo, false, 3)

	got, err := repo.FindByIDs(context.Background(), []uuid.UUID{orders[2].ID, uuid.New(), orders[0].ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, orders[2].ID, got[0].ID)
	assert.Equal(t, orders[0].ID, got[1].ID)
}

func TestSetGatewaySessionAndFindByCheckout(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	orders := seedCheckout(t, repo, true, 2)

	require.NoError(t, repo.SetGatewaySession(ctx, []uuid.UUID{orders[0].ID, orders[1].ID}, "cs_test_1"))

	got, err := repo.FindByCheckoutID(ctx, orders[0].CheckoutID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, o := range got {
		require.NotNil(t, o.GatewaySessionID)
		assert.Equal(t, "cs_test_1", *o.GatewaySessionID)
	}

	missing, err := repo.FindByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindStaleTemporary(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	temp := seedCheckout(t, repo, true, 1)
	seedCheckout(t, repo, false, 1)

	stale, err := repo.FindStaleTemporary(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, temp[0].ID, stale[0].ID)

	fresh, err := repo.FindStaleTemporary(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestServiceCancel(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc, err := NewService(repo, db.NewFromGorm(conn))
	require.NoError(t, err)
	ctx := context.Background()
	orders := seedCheckout(t, repo, false, 1)

	cancelled, err := svc.Cancel(ctx, CancelInput{OrderID: orders[0].ID, Reason: "customer request"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCancelled, cancelled.PaymentStatus)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "customer request", *cancelled.CancelReason)

	_, err = svc.Cancel(ctx, CancelInput{OrderID: orders[0].ID, Reason: "again"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = svc.Cancel(ctx, CancelInput{OrderID: uuid.New(), Reason: "ghost"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Cancel(ctx, CancelInput{OrderID: orders[0].ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
