package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/ordersettle/internal/failures"
	"github.com/angelmondragon/ordersettle/internal/orders"
	"github.com/angelmondragon/ordersettle/pkg/db/models"
	"github.com/angelmondragon/ordersettle/pkg/logger"
	pkgstripe "github.com/angelmondragon/ordersettle/pkg/stripe"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	sweepBatchSize = 200
	sweepReason    = "payment session expired"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SessionCloser expires a hosted checkout at the gateway.
type SessionCloser interface {
	ExpireCheckoutSession(ctx context.Context, id string) (pkgstripe.SessionState, error)
}

// TempOrderSweepJobParams configure the stale temporary order sweep.
type TempOrderSweepJobParams struct {
	Logger   *logger.Logger
	DB       txRunner
	Orders   orders.Repository
	Failures failures.Sink
	// Gateway, when set, closes each hosted session before its orders are
	// cancelled so a buyer cannot pay for a cancelled checkout.
	Gateway SessionCloser
	// TTL is how long a hosted session may stay open before its orders are
	// considered abandoned.
	TTL time.Duration
}

func NewTempOrderSweepJob(params TempOrderSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.TTL <= 0 {
		return nil, fmt.Errorf("temp order ttl must be positive")
	}
	sink := params.Failures
	if sink == nil {
		sink = failures.Nop{}
	}
	return &tempOrderSweepJob{
		logg:     params.Logger,
		db:       params.DB,
		orders:   params.Orders,
		failures: sink,
		gateway:  params.Gateway,
		ttl:      params.TTL,
		batch:    sweepBatchSize,
		now:      time.Now,
	}, nil
}

type tempOrderSweepJob struct {
	logg     *logger.Logger
	db       txRunner
	orders   orders.Repository
	failures failures.Sink
	gateway  SessionCloser
	ttl      time.Duration
	batch    int
	now      func() time.Time
}

func (j *tempOrderSweepJob) Name() string { return "temp-order-sweep" }

// Run cancels temporary orders whose hosted session has outlived the TTL.
// Each checkout is cancelled in its own transaction; one failing checkout
// does not hold back the rest. A checkout whose session already completed at
// the gateway is left pending for the webhook and reported.
func (j *tempOrderSweepJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.ttl)
	var (
		errs      error
		cancelled int64
		unsettled int
		skip      = map[uuid.UUID]bool{}
	)
	for {
		stale, err := j.orders.FindStaleTemporary(ctx, cutoff, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("query stale temporary orders: %w", err))
		}
		groups := groupByCheckout(stale, skip)
		if len(groups) == 0 {
			break
		}
		for _, g := range groups {
			proceed, err := j.closeSession(ctx, g)
			if err == nil && !proceed {
				skip[g.checkoutID] = true
				unsettled++
				continue
			}
			var rows int64
			if err == nil {
				rows, err = j.cancelCheckout(ctx, g.ids)
			}
			if err != nil {
				skip[g.checkoutID] = true
				errs = multierr.Append(errs, fmt.Errorf("cancel checkout %s: %w", g.checkoutID, err))
				j.report(ctx, g.checkoutID, failures.KindSweepFailed, err, nil)
				continue
			}
			cancelled += rows
		}
		if len(stale) < j.batch {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cancelled": cancelled,
		"unsettled": unsettled,
		"failed":    len(skip) - unsettled,
	}), "cron.temp_order_sweep.done")
	return errs
}

// closeSession expires the checkout's hosted session. It returns false when
// the gateway had already completed the session.
func (j *tempOrderSweepJob) closeSession(ctx context.Context, g checkoutGroup) (bool, error) {
	if j.gateway == nil || g.sessionID == "" {
		return true, nil
	}
	state, err := j.gateway.ExpireCheckoutSession(ctx, g.sessionID)
	if err != nil {
		return false, err
	}
	if !state.Completed() {
		return true, nil
	}
	j.report(ctx, g.checkoutID, failures.KindUnsettledSession,
		errors.New("gateway session completed but orders are still temporary"),
		map[string]any{"session_id": g.sessionID, "payment_status": string(state.PaymentStatus)})
	return false, nil
}

func (j *tempOrderSweepJob) cancelCheckout(ctx context.Context, ids []uuid.UUID) (int64, error) {
	var rows int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		rows, err = j.orders.WithTx(tx).Cancel(ctx, ids, sweepReason, j.now().UTC())
		return err
	})
	return rows, err
}

func (j *tempOrderSweepJob) report(ctx context.Context, checkoutID uuid.UUID, kind failures.Kind, err error, details map[string]any) {
	rerr := j.failures.Report(ctx, failures.InternalFailure{
		Source:     failures.SourceTempSweep,
		Kind:       kind,
		CheckoutID: checkoutID.String(),
		Err:        err,
		Details:    details,
	})
	if rerr != nil {
		j.logg.Error(ctx, "cron.temp_order_sweep.report_failed", rerr)
	}
}

type checkoutGroup struct {
	checkoutID uuid.UUID
	sessionID  string
	ids        []uuid.UUID
}

// groupByCheckout keeps first-seen order and drops checkouts that already
// failed this run, so a stuck checkout cannot spin the loop.
func groupByCheckout(list []models.Order, skip map[uuid.UUID]bool) []checkoutGroup {
	index := map[uuid.UUID]int{}
	var out []checkoutGroup
	for _, o := range list {
		if skip[o.CheckoutID] {
			continue
		}
		i, ok := index[o.CheckoutID]
		if !ok {
			i = len(out)
			index[o.CheckoutID] = i
			out = append(out, checkoutGroup{checkoutID: o.CheckoutID})
		}
		if out[i].sessionID == "" && o.GatewaySessionID != nil {
			out[i].sessionID = *o.GatewaySessionID
		}
		out[i].ids = append(out[i].ids, o.ID)
	}
	return out
}
