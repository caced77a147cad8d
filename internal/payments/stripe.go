// Package payments creates external checkout sessions and verifies the
// completion webhooks that fulfil them.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/trektide/apiserver/config"
)

// CheckoutRequest describes the checkout session to create.
type CheckoutRequest struct {
	TourID        string
	TourName      string
	TourSummary   string
	ImageURL      string
	CustomerEmail string
	AmountCents   int64
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the created session the client is redirected to.
type CheckoutSession struct {
	ID  string
	URL string
}

// CompletedCheckout is the verified payload of a completed checkout.
type CompletedCheckout struct {
	TourID        string
	CustomerEmail string
	AmountCents   int64
}

// Provider creates checkout sessions with an external payment gateway.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
}

// StripeProvider implements Provider against the Stripe API.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProvider constructs a provider with its own API client; no
// package-level key is set.
func NewStripeProvider(cfg config.StripeConfig) *StripeProvider {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &StripeProvider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
	}
}

// CreateCheckoutSession creates a single-item payment session. The tour id
// travels as the client reference so the webhook can fulfil the booking.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if req.AmountCents <= 0 {
		return CheckoutSession{}, errors.New("amount must be positive")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		CustomerEmail:     stripe.String(req.CustomerEmail),
		ClientReferenceID: stripe.String(req.TourID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String("usd"),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.TourName),
						Description: stripe.String(req.TourSummary),
						Images:      []*string{stripe.String(req.ImageURL)},
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("create checkout session: %w", err)
	}
	return CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// ParseWebhook verifies the webhook signature and extracts a completed
// checkout. It returns (nil, nil) for event types the app does not act on.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*CompletedCheckout, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("verify webhook: %w", err)
	}
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		return nil, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}

	email := session.CustomerEmail
	if email == "" && session.CustomerDetails != nil {
		email = session.CustomerDetails.Email
	}

	return &CompletedCheckout{
		TourID:        session.ClientReferenceID,
		CustomerEmail: email,
		AmountCents:   session.AmountTotal,
	}, nil
}
