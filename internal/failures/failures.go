// Package failures carries settlement problems that are swallowed at a
// boundary (the gateway webhook) to an out-of-band sink for follow-up.
package failures

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

type Kind string

const (
	KindReconcileFailed  Kind = "reconcile_failed"
	KindInvalidMetadata  Kind = "invalid_metadata"
	KindOrdersMissing    Kind = "orders_missing"
	KindOversold         Kind = "oversold"
	KindVoucherOverLimit Kind = "voucher_over_limit"
	KindVoucherReused    Kind = "voucher_reused"
	KindPointsOverdrawn  Kind = "points_overdrawn"
	KindPaidAfterCancel  Kind = "paid_after_cancel"
	KindSweepFailed      Kind = "sweep_failed"
	KindUnsettledSession Kind = "unsettled_session"
)

const (
	SourceStripeWebhook = "stripe_webhook"
	SourceTempSweep     = "temp_order_sweep"
)

// InternalFailure is one swallowed problem that needs manual or scheduled repair.
type InternalFailure struct {
	Source     string
	Kind       Kind
	CheckoutID string
	EventID    string
	Err        error
	Details    map[string]any
	OccurredAt time.Time
}

// Message returns the error text, or the kind when there is no error.
func (f InternalFailure) Message() string {
	if f.Err != nil {
		return f.Err.Error()
	}
	return string(f.Kind)
}

// Sink receives internal failures. Report must not block on the caller's
// request for long; implementations bound their own I/O.
type Sink interface {
	Report(ctx context.Context, failure InternalFailure) error
}

// Fanout reports to every sink and combines their errors.
type Fanout []Sink

func (f Fanout) Report(ctx context.Context, failure InternalFailure) error {
	if failure.OccurredAt.IsZero() {
		failure.OccurredAt = time.Now().UTC()
	}
	var err error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		err = multierr.Append(err, sink.Report(ctx, failure))
	}
	return err
}

// Nop discards failures.
type Nop struct{}

func (Nop) Report(context.Context, InternalFailure) error { return nil }
