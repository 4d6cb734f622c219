package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
)

type (
	sessionGetter  func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	sessionExpirer func(id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error)
)

// SessionState is the gateway's view of a hosted checkout.
type SessionState struct {
	ID            string
	Status        stripe.CheckoutSessionStatus
	PaymentStatus stripe.CheckoutSessionPaymentStatus
}

// Open reports whether the buyer can still pay.
func (s SessionState) Open() bool {
	return s.Status == stripe.CheckoutSessionStatusOpen
}

// Completed reports whether the buyer finished the hosted checkout. The
// payment may still be pending for delayed methods.
func (s SessionState) Completed() bool {
	return s.Status == stripe.CheckoutSessionStatusComplete
}

// GetCheckoutSession fetches the current state of a hosted checkout.
func (c *Client) GetCheckoutSession(ctx context.Context, id string) (SessionState, error) {
	if c == nil || c.getSession == nil {
		return SessionState{}, errors.New("stripe client not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return SessionState{}, errors.New("checkout session id is required")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := c.getSession(id, params)
	if err != nil {
		return SessionState{}, fmt.Errorf("get checkout session: %w", err)
	}
	return stateOf(sess), nil
}

// ExpireCheckoutSession closes an open hosted checkout so it can no longer
// be paid. Stripe refuses to expire a session that already completed; the
// returned state is then re-read so callers can tell a late payment apart.
func (c *Client) ExpireCheckoutSession(ctx context.Context, id string) (SessionState, error) {
	if c == nil || c.expireSession == nil {
		return SessionState{}, errors.New("stripe client not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return SessionState{}, errors.New("checkout session id is required")
	}
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	sess, err := c.expireSession(id, params)
	if err != nil {
		state, getErr := c.GetCheckoutSession(ctx, id)
		if getErr == nil && !state.Open() {
			return state, nil
		}
		return SessionState{}, fmt.Errorf("expire checkout session: %w", err)
	}
	return stateOf(sess), nil
}

func stateOf(sess *stripe.CheckoutSession) SessionState {
	if sess == nil {
		return SessionState{}
	}
	return SessionState{ID: sess.ID, Status: sess.Status, PaymentStatus: sess.PaymentStatus}
}
