package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/ordersettle/api/responses"
	stripewebhook "github.com/angelmondragon/ordersettle/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
	"github.com/angelmondragon/ordersettle/pkg/logger"
)

// maxPayloadBytes caps how much of a webhook body is read.
const maxPayloadBytes = 65536

type stripeEventHandler interface {
	HandleEvent(ctx context.Context, event *stripe.Event) stripewebhook.Outcome
}

type stripeEventGuard interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

type ackResponse struct {
	Received bool   `json:"received"`
	Status   string `json:"status,omitempty"`
}

// StripeWebhook verifies and acknowledges Stripe checkout events. Once the
// signature checks out the response is always 200: settlement failures are
// reported internally. An event is remembered only after it reconciles, so
// failed or interrupted deliveries are reconciled again on redelivery. The
// guard is a shortcut; when Redis is unreachable the reconciler's
// pending-only updates still keep a replay from settling twice.
func StripeWebhook(reconciler stripeEventHandler, client stripeClient, guard stripeEventGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if reconciler == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEventWithOptions(payload, sigHeader, client.SigningSecret(), webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}
		ctx = logg.WithEventID(ctx, event.ID)

		if guard != nil {
			seen, err := guard.Seen(ctx, event.ID)
			if err != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "stripe.webhook.guard_unavailable")
			}
			if seen {
				logg.Info(ctx, "stripe.webhook.duplicate_delivery")
				responses.WriteJSON(w, http.StatusOK, ackResponse{Received: true, Status: string(stripewebhook.StatusDuplicate)})
				return
			}
		}

		outcome := reconciler.HandleEvent(ctx, &event)
		if guard != nil && outcome.Status != stripewebhook.StatusFailed {
			if err := guard.Remember(ctx, event.ID); err != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "stripe.webhook.guard_unavailable")
			}
		}
		responses.WriteJSON(w, http.StatusOK, ackResponse{Received: true, Status: string(outcome.Status)})
	}
}
