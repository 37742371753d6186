// Package gateway wraps the hosted-checkout payment provider. The service
// layer only sees the Checkout interface: create an intent, read back its
// status and paid amount. Client-reported outcomes are never trusted; every
// confirmation re-reads the transaction from the provider.
package gateway

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

type CreateParams struct {
	AmountCents   int64
	Currency      string
	Name          string
	Description   string
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
}

// Intent is a created hosted-checkout transaction: ID for later lookup, URL
// to redirect the customer to.
type Intent struct {
	ID  string
	URL string
}

// Status is the provider's view of a transaction.
type Status struct {
	ID          string
	Paid        bool
	AmountCents int64
}

type Checkout interface {
	CreateCheckout(ctx context.Context, p CreateParams) (*Intent, error)
	GetCheckout(ctx context.Context, id string) (*Status, error)
}

type stripeCheckout struct {
	api *client.API
}

func NewStripeCheckout(secretKey string) Checkout {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &stripeCheckout{api: api}
}

func (s *stripeCheckout) CreateCheckout(ctx context.Context, p CreateParams) (*Intent, error) {
	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(p.Currency),
				UnitAmount: stripe.Int64(p.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(p.Name),
					Description: stripe.String(p.Description),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:    stripe.String(p.SuccessURL),
		CancelURL:     stripe.String(p.CancelURL),
		CustomerEmail: stripe.String(p.CustomerEmail),
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &Intent{ID: sess.ID, URL: sess.URL}, nil
}

func (s *stripeCheckout) GetCheckout(ctx context.Context, id string) (*Status, error) {
	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
	}
	sess, err := s.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve checkout session: %w", err)
	}

	return &Status{
		ID:          sess.ID,
		Paid:        sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		AmountCents: sess.AmountTotal,
	}, nil
}
