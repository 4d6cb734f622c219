package orders

import (
	"fmt"

	"github.com/angelmondragon/ordersettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
)

var allowedPaymentTransitions = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusPending: {enums.PaymentStatusPaid, enums.PaymentStatusCancelled},
}

// CanTransition reports whether payment_status may move from -> to.
// Transitions only go forward; paid and cancelled are terminal.
func CanTransition(from, to enums.PaymentStatus) bool {
	for _, next := range allowedPaymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further payment transition is possible.
func IsTerminal(status enums.PaymentStatus) bool {
	return len(allowedPaymentTransitions[status]) == 0
}

// ValidateTransition returns a state-conflict error for a disallowed move.
func ValidateTransition(from, to enums.PaymentStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}
