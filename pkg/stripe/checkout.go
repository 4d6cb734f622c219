package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
)

type sessionCreator func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

// CheckoutLine is one hosted-checkout line item priced in minor units.
type CheckoutLine struct {
	Name       string
	Images     []string
	UnitAmount int64
	Quantity   int64
}

// CheckoutSessionRequest describes a payment-mode hosted checkout.
type CheckoutSessionRequest struct {
	IdempotencyKey    string
	ClientReferenceID string
	CustomerEmail     string
	Currency          string
	SuccessURL        string
	CancelURL         string
	Lines             []CheckoutLine
	Metadata          map[string]string
}

// CheckoutSession is the redirect target returned to the buyer.
type CheckoutSession struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateCheckoutSession opens a hosted checkout session.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	if c == nil || c.createSession == nil {
		return nil, errors.New("stripe client not initialized")
	}
	params, err := BuildCheckoutSessionParams(req)
	if err != nil {
		return nil, err
	}
	params.Context = ctx

	sess, err := c.createSession(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	out := &CheckoutSession{ID: sess.ID, URL: sess.URL}
	if sess.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(sess.ExpiresAt, 0).UTC()
	}
	return out, nil
}

// BuildCheckoutSessionParams maps a request onto Stripe's payment-mode params.
func BuildCheckoutSessionParams(req CheckoutSessionRequest) (*stripe.CheckoutSessionParams, error) {
	if len(req.Lines) == 0 {
		return nil, errors.New("checkout session requires at least one line")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, errors.New("checkout session currency is required")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		Metadata:   map[string]string{},
	}
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(req.ClientReferenceID)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}
	// Copy onto the payment intent so dashboard lookups by intent still resolve the checkout.
	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: params.Metadata}

	for i, line := range req.Lines {
		if line.Quantity < 1 || line.UnitAmount < 0 {
			return nil, fmt.Errorf("checkout line %d has invalid amount or quantity", i)
		}
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(line.Name),
		}
		if len(line.Images) > 0 {
			product.Images = stripe.StringSlice(line.Images)
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(line.UnitAmount),
			},
			Quantity: stripe.Int64(line.Quantity),
		})
	}

	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	return params, nil
}
