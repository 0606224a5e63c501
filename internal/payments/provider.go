package payments

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidSignature is returned when a webhook payload fails signature verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrMalformedEvent is returned when a verified webhook carries an unreadable object.
	ErrMalformedEvent = errors.New("payments: malformed webhook event")
	// ErrSessionCompleted is returned when a session has already been paid and can no longer be
	// renewed or cancelled.
	ErrSessionCompleted = errors.New("payments: checkout session already completed")
)

// EventCheckoutSessionCompleted is the provider event confirming a paid checkout session.
const EventCheckoutSessionCompleted = "checkout.session.completed"

// LineItem is one priced line shown on the hosted checkout page. UnitAmount is in minor units.
type LineItem struct {
	Name       string
	Quantity   int64
	UnitAmount int64
}

// SessionRequest captures the payload required to create a hosted checkout session.
type SessionRequest struct {
	OrderID        string
	CustomerEmail  string
	Currency       string
	Items          []LineItem
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// Session is the provider-hosted checkout page.
type Session struct {
	ID  string
	URL string
}

// WebhookEvent is the verified subset of a provider webhook the service acts on.
type WebhookEvent struct {
	ID                string
	Type              string
	SessionID         string
	ClientReferenceID string
}

var sessionNamespace = uuid.MustParse("4f0d3c4e-7a51-4f5e-9a43-2b8c1d8e6f10")

// SessionIdempotencyKey derives the creation key for one attempt at an order's session. The
// provider replays the response of a known key, so every checkout attempt passes its own attempt
// id: a session cancelled after a failed persist is never handed out again. Transport retries
// inside one attempt share the key.
func SessionIdempotencyKey(orderID, previousSessionID, attemptID string) string {
	seed := strings.TrimSpace(orderID) + "|" + strings.TrimSpace(previousSessionID) + "|" + strings.TrimSpace(attemptID)
	return uuid.NewSHA1(sessionNamespace, []byte(seed)).String()
}
