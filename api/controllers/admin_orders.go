package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/ordersettle/api/middleware"
	"github.com/angelmondragon/ordersettle/api/responses"
	"github.com/angelmondragon/ordersettle/api/validators"
	"github.com/angelmondragon/ordersettle/internal/orders"
	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
	"github.com/angelmondragon/ordersettle/pkg/logger"
)

const cancelReasonMaxLen = 500

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// AdminCancelOrder cancels a pending order on behalf of an operator.
func AdminCancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		actor, _ := uuid.Parse(middleware.UserIDFromContext(ctx))
		order, err := svc.Cancel(ctx, orders.CancelInput{
			OrderID:     orderID,
			Reason:      validators.SanitizeString(payload.Reason, cancelReasonMaxLen),
			ActorUserID: actor,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		logg.Info(logg.WithField(ctx, "order_id", orderID.String()), "orders.admin_cancelled")
		responses.WriteSuccess(w, "Order cancelled", newOrderResponse(*order))
	}
}
