package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Expire(id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error)
}

type stripeClients struct {
	sessions stripeSessionAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey        string
	AccountID     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Backends      *stripe.Backends
	Logger        StripeLogger
	Clock         func() time.Time
	Clients       *stripeClients
}

// StripeProvider creates, inspects and cancels Stripe Checkout sessions and verifies Stripe webhooks.
type StripeProvider struct {
	api           stripeClients
	account       string
	webhookSecret string
	successURL    string
	cancelURL     string
	clock         func() time.Time
	logger        StripeLogger
}

// NewStripeProvider constructs a Stripe provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{sessions: sc.CheckoutSessions}
	}
	if clients.sessions == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:           clients,
		account:       strings.TrimSpace(cfg.AccountID),
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		successURL:    strings.TrimSpace(cfg.SuccessURL),
		cancelURL:     strings.TrimSpace(cfg.CancelURL),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateSession creates a Stripe Checkout session whose client reference is the order id.
func (p *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if p == nil {
		return Session{}, errors.New("stripe: provider is nil")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return Session{}, errors.New("stripe: order id is required")
	}
	if len(req.Items) == 0 {
		return Session{}, errors.New("stripe: at least one line item is required")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(defaultString(req.SuccessURL, p.successURL)),
		CancelURL:         stripe.String(defaultString(req.CancelURL, p.cancelURL)),
		ClientReferenceID: stripe.String(orderID),
		Metadata:          map[string]string{"order_id": orderID},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"order_id": orderID},
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	for _, item := range req.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(max64(item.Quantity, 1)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(item.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(defaultString(item.Name, "Order")),
				},
			},
		})
	}

	session, err := p.api.sessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"orderId":   orderID,
		"expiresAt": time.Unix(session.ExpiresAt, 0).UTC(),
	})

	return Session{ID: session.ID, URL: session.URL}, nil
}

// IsSessionExpired reports whether the session can no longer be paid. Unknown sessions count as expired;
// a completed session yields ErrSessionCompleted.
func (p *StripeProvider) IsSessionExpired(ctx context.Context, sessionID string) (bool, error) {
	session, err := p.getSession(ctx, sessionID)
	if err != nil {
		if isStripeNotFound(err) {
			return true, nil
		}
		return false, fmt.Errorf("stripe: lookup checkout session: %w", err)
	}
	switch session.Status {
	case stripe.CheckoutSessionStatusOpen:
		if session.ExpiresAt != 0 && !p.clock().Before(time.Unix(session.ExpiresAt, 0)) {
			return true, nil
		}
		return false, nil
	case stripe.CheckoutSessionStatusComplete:
		return false, ErrSessionCompleted
	case stripe.CheckoutSessionStatusExpired:
		return true, nil
	}
	return true, nil
}

// CancelSession expires an open session so the customer cannot complete a stale checkout page.
// Expired or unknown sessions are left untouched; a completed session yields ErrSessionCompleted
// because its order is paid even if the webhook has not arrived yet.
func (p *StripeProvider) CancelSession(ctx context.Context, sessionID string) error {
	session, err := p.getSession(ctx, sessionID)
	if err != nil {
		if isStripeNotFound(err) {
			return nil
		}
		return fmt.Errorf("stripe: lookup checkout session: %w", err)
	}
	switch session.Status {
	case stripe.CheckoutSessionStatusOpen:
	case stripe.CheckoutSessionStatusComplete:
		return ErrSessionCompleted
	default:
		return nil
	}

	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if _, err := p.api.sessions.Expire(session.ID, params); err != nil {
		return fmt.Errorf("stripe: expire checkout session: %w", err)
	}
	p.logger(ctx, "payments.stripe.session.expired", map[string]any{
		"sessionId": session.ID,
	})
	return nil
}

// VerifyWebhook checks the Stripe-Signature header and extracts the checkout session reference.
func (p *StripeProvider) VerifyWebhook(payload []byte, signature string) (WebhookEvent, error) {
	if p == nil || p.webhookSecret == "" {
		return WebhookEvent{}, errors.New("stripe: webhook secret is not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	result := WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if result.Type != EventCheckoutSessionCompleted || event.Data == nil {
		return result, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	result.SessionID = session.ID
	result.ClientReferenceID = strings.TrimSpace(session.ClientReferenceID)
	return result, nil
}

func (p *StripeProvider) getSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	if p == nil {
		return nil, errors.New("stripe: provider is nil")
	}
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, errors.New("stripe: session id is required")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	return p.api.sessions.Get(id, params)
}

func isStripeNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
