package points

import (
	"context"
	"fmt"

	"github.com/angelmondragon/ordersettle/internal/users"
	"github.com/angelmondragon/ordersettle/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Settlement is the points outcome of one finalized checkout.
type Settlement struct {
	UserID     uuid.UUID
	CheckoutID uuid.UUID
	Earned     int64
	Used       int64
	Reason     string
	// EnforceBalance rejects a delta that would take the balance below zero.
	EnforceBalance bool
}

// Applied is what Apply wrote.
type Applied struct {
	Delta int64
	// Overdrawn is set when an unenforced debit left the balance below zero.
	Overdrawn bool
	Balance   int64
}

// Ledger applies settlements to user balances.
type Ledger struct {
	users users.Repository
}

// NewLedger wires a ledger with the provided user repository.
func NewLedger(repo users.Repository) (*Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	return &Ledger{users: repo}, nil
}

func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{users: l.users.WithTx(tx)}
}

// Apply writes earned-used as one atomic increment plus an audit row.
// Without EnforceBalance a debit is applied even past zero and the result
// reports the overdraw.
func (l *Ledger) Apply(ctx context.Context, s Settlement) (Applied, error) {
	var out Applied
	if s.UserID == uuid.Nil {
		return out, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if s.Earned < 0 || s.Used < 0 {
		return out, pkgerrors.New(pkgerrors.CodeValidation, "points must not be negative")
	}

	delta := NetDelta(s.Earned, s.Used)
	if delta != 0 {
		ok, err := l.users.IncrementPoints(ctx, s.UserID, delta, s.EnforceBalance)
		if err != nil {
			return out, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply points delta")
		}
		if !ok {
			if s.EnforceBalance && delta < 0 {
				return out, pkgerrors.New(pkgerrors.CodeValidation, "not enough reward points").
					WithDetails(map[string]any{"points_used": s.Used})
			}
			return out, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		out.Delta = delta
	}
	if delta < 0 && !s.EnforceBalance {
		user, err := l.users.FindByID(ctx, s.UserID)
		if err != nil {
			return out, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read points balance")
		}
		if user != nil {
			out.Balance = user.RewardsPoints
			out.Overdrawn = user.RewardsPoints < 0
		}
	}

	if s.Earned == 0 && s.Used == 0 {
		return out, nil
	}
	reason := s.Reason
	if reason == "" {
		reason = "checkout"
	}
	entry := &models.PointsHistory{
		UserID:     s.UserID,
		CheckoutID: s.CheckoutID,
		Earned:     s.Earned,
		Used:       s.Used,
		Delta:      delta,
		Reason:     reason,
	}
	if err := l.users.CreatePointsHistory(ctx, entry); err != nil {
		return out, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record points history")
	}
	return out, nil
}
