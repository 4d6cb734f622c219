package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/ordersettle/internal/checkout"
	"github.com/angelmondragon/ordersettle/internal/failures"
	"github.com/angelmondragon/ordersettle/internal/orders"
	"github.com/angelmondragon/ordersettle/internal/vouchers"
	"github.com/angelmondragon/ordersettle/pkg/db"
	"github.com/angelmondragon/ordersettle/pkg/db/models"
	"github.com/angelmondragon/ordersettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
	"github.com/angelmondragon/ordersettle/pkg/logger"
	"github.com/angelmondragon/ordersettle/pkg/metrics"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"
)

const (
	pointsReason  = "online_payment"
	expiredReason = "payment session expired"
)

// Status is the first tier of a webhook outcome, the part the HTTP layer sees.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusDuplicate Status = "duplicate"
	StatusIgnored   Status = "ignored"
	StatusFailed    Status = "failed"
)

// Outcome describes what happened to one event. Failures never surface as
// an error: they are reported to the failure sink and carried in Err.
type Outcome struct {
	Status     Status
	EventType  string
	CheckoutID uuid.UUID
	OrderIDs   []uuid.UUID
	Finalized  *checkout.Finalized
	Err        error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ReconcilerParams struct {
	Tx        txRunner
	Orders    orders.Repository
	Finalizer *checkout.Finalizer
	Failures  failures.Sink
	Retry     db.RetryPolicy
	Logger    *logger.Logger
	Metrics   *metrics.SettlementMetrics
}

// Reconciler settles hosted checkouts from Stripe events.
type Reconciler struct {
	tx        txRunner
	orders    orders.Repository
	finalizer *checkout.Finalizer
	failures  failures.Sink
	retry     db.RetryPolicy
	logg      *logger.Logger
	metrics   *metrics.SettlementMetrics
	now       func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repo required")
	}
	if params.Finalizer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "finalizer required")
	}
	sink := params.Failures
	if sink == nil {
		sink = failures.Nop{}
	}
	retry := params.Retry
	if retry.Attempts < 1 {
		retry = db.DefaultRetryPolicy()
	}
	return &Reconciler{
		tx:        params.Tx,
		orders:    params.Orders,
		finalizer: params.Finalizer,
		failures:  sink,
		retry:     retry,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       time.Now,
	}, nil
}

// HandleEvent reconciles one verified Stripe event.
func (r *Reconciler) HandleEvent(ctx context.Context, event *stripe.Event) Outcome {
	if event == nil || event.Data == nil {
		return r.fail(ctx, event, uuid.Nil, failures.KindInvalidMetadata, errors.New("stripe event data required"), nil)
	}
	ctx = r.logg.WithEventID(ctx, event.ID)

	var out Outcome
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		out = r.handleCompleted(ctx, event)
	case stripe.EventTypeCheckoutSessionExpired:
		out = r.handleExpired(ctx, event)
	default:
		out = Outcome{Status: StatusIgnored}
	}
	out.EventType = string(event.Type)
	r.metrics.IncWebhookEvent(out.EventType, string(out.Status))
	return out
}

func (r *Reconciler) handleCompleted(ctx context.Context, event *stripe.Event) Outcome {
	sess, meta, out, ok := r.decodeSession(ctx, event)
	if !ok {
		return out
	}
	ctx = r.logg.WithCheckoutID(ctx, meta.CheckoutID.String())
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		// Delayed methods complete the session before the money arrives;
		// async_payment_succeeded settles those.
		r.logg.Info(ctx, "stripe.webhook.session_unpaid")
		return Outcome{Status: StatusIgnored, CheckoutID: meta.CheckoutID}
	}

	list, out, ok := r.resolveOrders(ctx, event, meta)
	if !ok {
		return out
	}
	for _, o := range list {
		if o.UserID != meta.UserID {
			return r.fail(ctx, event, meta.CheckoutID, failures.KindInvalidMetadata,
				fmt.Errorf("order %s does not belong to user %s", o.ID, meta.UserID), nil)
		}
	}
	ids := orderIDs(list)
	switch list[0].PaymentStatus {
	case enums.PaymentStatusPaid:
		r.logg.Info(ctx, "stripe.webhook.already_settled")
		return Outcome{Status: StatusDuplicate, CheckoutID: meta.CheckoutID, OrderIDs: ids}
	case enums.PaymentStatusCancelled:
		// The sweep or an operator got there first; the capture needs a refund.
		return r.fail(ctx, event, meta.CheckoutID, failures.KindPaidAfterCancel,
			errors.New("payment captured for cancelled orders"), map[string]any{"session_id": sess.ID, "order_ids": idStrings(ids)})
	}

	pointsUsed := meta.PointsToUse
	if pointsUsed <= 0 {
		pointsUsed = checkout.PointsUsedByOrders(list)
	}

	policy := r.retry
	policy.OnRetry = func(attempt int, err error) {
		r.metrics.IncConflictRetry("webhook")
		r.logg.Warn(r.logg.WithField(ctx, "attempt", attempt), "stripe.webhook.retry")
	}

	var (
		fin       *checkout.Finalized
		duplicate bool
	)
	err := db.RetryOnConflict(ctx, policy, func(ctx context.Context, _ int) error {
		fin, duplicate = nil, false
		return r.tx.WithTx(ctx, func(tx *gorm.DB) error {
			paidAt := r.now().UTC()
			rows, err := r.orders.WithTx(tx).MarkPaid(ctx, ids, paidAt)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark orders paid")
			}
			if rows == 0 {
				duplicate = true
				return nil
			}
			if rows != int64(len(ids)) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "orders changed while reconciling").
					WithDetails(map[string]any{"expected": len(ids), "updated": rows})
			}
			settled := markSettled(list, paidAt)
			fin, err = r.finalizer.Finalize(ctx, tx, checkout.Settlement{
				UserID:     meta.UserID,
				CheckoutID: meta.CheckoutID,
				Orders:     settled,
				PointsUsed: pointsUsed,
				Reason:     pointsReason,
				Policy:     checkout.CapturedPolicy,
			})
			return err
		})
	})
	if err != nil {
		return r.fail(ctx, event, meta.CheckoutID, failures.KindReconcileFailed, err, map[string]any{"order_ids": idStrings(ids)})
	}
	if duplicate {
		r.logg.Info(ctx, "stripe.webhook.already_settled")
		return Outcome{Status: StatusDuplicate, CheckoutID: meta.CheckoutID, OrderIDs: ids}
	}

	r.reportAnomalies(ctx, event, meta.CheckoutID, fin)
	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"orders":        len(ids),
		"points_earned": fin.PointsEarned,
		"points_used":   fin.PointsUsed,
	}), "stripe.webhook.settled")
	return Outcome{Status: StatusProcessed, CheckoutID: meta.CheckoutID, OrderIDs: ids, Finalized: fin}
}

func (r *Reconciler) handleExpired(ctx context.Context, event *stripe.Event) Outcome {
	_, meta, out, ok := r.decodeSession(ctx, event)
	if !ok {
		return out
	}
	ctx = r.logg.WithCheckoutID(ctx, meta.CheckoutID.String())

	list, out, ok := r.resolveOrders(ctx, event, meta)
	if !ok {
		return out
	}
	var pending []uuid.UUID
	for _, o := range list {
		if o.PaymentStatus == enums.PaymentStatusPending {
			pending = append(pending, o.ID)
		}
	}
	if len(pending) == 0 {
		return Outcome{Status: StatusIgnored, CheckoutID: meta.CheckoutID, OrderIDs: orderIDs(list)}
	}

	var rows int64
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		rows, err = r.orders.WithTx(tx).Cancel(ctx, pending, expiredReason, r.now().UTC())
		return err
	})
	if err != nil {
		return r.fail(ctx, event, meta.CheckoutID, failures.KindReconcileFailed, err, map[string]any{"order_ids": idStrings(pending)})
	}
	r.logg.Info(r.logg.WithField(ctx, "cancelled", rows), "stripe.webhook.session_expired")
	return Outcome{Status: StatusProcessed, CheckoutID: meta.CheckoutID, OrderIDs: pending}
}

func (r *Reconciler) decodeSession(ctx context.Context, event *stripe.Event) (*stripe.CheckoutSession, checkout.SessionMetadata, Outcome, bool) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, checkout.SessionMetadata{}, r.fail(ctx, event, uuid.Nil, failures.KindInvalidMetadata,
			fmt.Errorf("decode checkout session: %w", err), nil), false
	}
	meta, err := checkout.ParseSessionMetadata(sess.Metadata)
	if err != nil {
		return nil, meta, r.fail(ctx, event, uuid.Nil, failures.KindInvalidMetadata, err,
			map[string]any{"session_id": sess.ID}), false
	}
	return &sess, meta, Outcome{}, true
}

// resolveOrders prefers the order ids carried in metadata and falls back to
// the checkout id when they were too long to fit.
func (r *Reconciler) resolveOrders(ctx context.Context, event *stripe.Event, meta checkout.SessionMetadata) ([]models.Order, Outcome, bool) {
	var (
		list []models.Order
		err  error
	)
	if len(meta.TempOrderIDs) > 0 {
		list, err = r.orders.FindByIDs(ctx, meta.TempOrderIDs)
	} else {
		list, err = r.orders.FindByCheckoutID(ctx, meta.CheckoutID)
	}
	if err != nil {
		return nil, r.fail(ctx, event, meta.CheckoutID, failures.KindReconcileFailed, fmt.Errorf("load orders: %w", err), nil), false
	}
	if len(list) == 0 {
		return nil, r.fail(ctx, event, meta.CheckoutID, failures.KindOrdersMissing, errors.New("no orders found for checkout"),
			map[string]any{"temp_order_ids": idStrings(meta.TempOrderIDs)}), false
	}
	return list, Outcome{}, true
}

// reportAnomalies surfaces what a captured payment had to accept anyway.
func (r *Reconciler) reportAnomalies(ctx context.Context, event *stripe.Event, checkoutID uuid.UUID, fin *checkout.Finalized) {
	if fin == nil {
		return
	}
	if fin.Stock != nil && len(fin.Stock.Oversold) > 0 {
		products := make([]map[string]any, 0, len(fin.Stock.Oversold))
		for _, s := range fin.Stock.Oversold {
			products = append(products, map[string]any{
				"product_id": s.ProductID.String(),
				"name":       s.ProductName,
				"requested":  s.Requested,
				"remaining":  s.Remaining,
			})
		}
		r.report(ctx, failures.InternalFailure{
			Source:     failures.SourceStripeWebhook,
			Kind:       failures.KindOversold,
			CheckoutID: checkoutID.String(),
			EventID:    event.ID,
			Details:    map[string]any{"products": products},
		})
	}
	for _, slot := range []struct {
		name  string
		usage vouchers.UsageResult
	}{
		{"voucher", fin.VoucherUsage},
		{"free_shipping", fin.FreeShippingUsage},
	} {
		if slot.usage.OverLimit {
			r.report(ctx, failures.InternalFailure{
				Source:     failures.SourceStripeWebhook,
				Kind:       failures.KindVoucherOverLimit,
				CheckoutID: checkoutID.String(),
				EventID:    event.ID,
				Details:    map[string]any{"slot": slot.name},
			})
		}
		if slot.usage.AlreadyUsed {
			r.report(ctx, failures.InternalFailure{
				Source:     failures.SourceStripeWebhook,
				Kind:       failures.KindVoucherReused,
				CheckoutID: checkoutID.String(),
				EventID:    event.ID,
				Details:    map[string]any{"slot": slot.name},
			})
		}
	}
	if fin.PointsOverdrawn {
		r.report(ctx, failures.InternalFailure{
			Source:     failures.SourceStripeWebhook,
			Kind:       failures.KindPointsOverdrawn,
			CheckoutID: checkoutID.String(),
			EventID:    event.ID,
			Details:    map[string]any{"points_used": fin.PointsUsed, "balance": fin.PointsBalance},
		})
	}
}

func (r *Reconciler) fail(ctx context.Context, event *stripe.Event, checkoutID uuid.UUID, kind failures.Kind, err error, details map[string]any) Outcome {
	f := failures.InternalFailure{
		Source:  failures.SourceStripeWebhook,
		Kind:    kind,
		Err:     err,
		Details: details,
	}
	if checkoutID != uuid.Nil {
		f.CheckoutID = checkoutID.String()
	}
	if event != nil {
		f.EventID = event.ID
	}
	r.report(ctx, f)
	return Outcome{Status: StatusFailed, CheckoutID: checkoutID, Err: err}
}

func (r *Reconciler) report(ctx context.Context, f failures.InternalFailure) {
	if err := r.failures.Report(ctx, f); err != nil {
		r.logg.Error(ctx, "stripe.webhook.report_failed", err)
	}
}

func markSettled(list []models.Order, paidAt time.Time) []models.Order {
	out := make([]models.Order, len(list))
	copy(out, list)
	for i := range out {
		out[i].PaymentStatus = enums.PaymentStatusPaid
		out[i].Status = enums.OrderStatusConfirmed
		out[i].IsPaid = true
		out[i].PaidAt = &paidAt
		out[i].IsTemporary = false
	}
	return out
}

func orderIDs(list []models.Order) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(list))
	for _, o := range list {
		ids = append(ids, o.ID)
	}
	return ids
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
