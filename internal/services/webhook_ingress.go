package services

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/couture-field/checkout/internal/payments"
)

const webhookMetricNamespace = "github.com/couture-field/checkout/internal/services"

// WebhookIngressDeps wires the payment webhook ingress.
type WebhookIngressDeps struct {
	Verifier    PaymentWebhookVerifier
	Coordinator CheckoutCoordinator
	Meter       metric.Meter
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type webhookIngress struct {
	verifier    PaymentWebhookVerifier
	coordinator CheckoutCoordinator
	events      metric.Int64Counter
	logger      func(ctx context.Context, event string, fields map[string]any)
}

var _ WebhookIngress = (*webhookIngress)(nil)

// NewWebhookIngress constructs the ingress for hosted checkout notifications.
func NewWebhookIngress(deps WebhookIngressDeps) (WebhookIngress, error) {
	if deps.Verifier == nil {
		return nil, errors.New("webhook ingress: verifier is required")
	}
	if deps.Coordinator == nil {
		return nil, errors.New("webhook ingress: checkout coordinator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(webhookMetricNamespace)
	}
	counter, err := meter.Int64Counter(
		"checkout.webhook.events",
		metric.WithDescription("Payment webhook deliveries by outcome"),
	)
	if err != nil {
		return nil, err
	}
	return &webhookIngress{
		verifier:    deps.Verifier,
		coordinator: deps.Coordinator,
		events:      counter,
		logger:      logger,
	}, nil
}

// Ingest verifies the delivery and confirms the referenced order. A 4xx tells the provider to
// stop retrying; a 5xx asks it to deliver again later.
func (w *webhookIngress) Ingest(ctx context.Context, payload []byte, signature string) WebhookResult {
	event, err := w.verifier.VerifyWebhook(payload, signature)
	if err != nil {
		w.logger(ctx, "webhook.rejected", map[string]any{"error": err.Error()})
		return w.result(ctx, "invalid", WebhookResult{Status: http.StatusBadRequest, Reason: "invalid signature"})
	}
	if event.Type != payments.EventCheckoutSessionCompleted {
		return w.result(ctx, "ignored", WebhookResult{Status: http.StatusOK, Reason: "ignored " + event.Type})
	}
	orderID := strings.TrimSpace(event.ClientReferenceID)
	if orderID == "" {
		w.logger(ctx, "webhook.missing_reference", map[string]any{"eventId": event.ID, "sessionId": event.SessionID})
		return w.result(ctx, "invalid", WebhookResult{Status: http.StatusBadRequest, Reason: "missing client reference"})
	}

	_, err = w.coordinator.ConfirmCardPayment(ctx, orderID)
	switch {
	case err == nil:
		w.logger(ctx, "webhook.order_paid", map[string]any{"eventId": event.ID, "orderId": orderID})
		return w.result(ctx, "confirmed", WebhookResult{Status: http.StatusOK, OrderID: orderID})
	case errors.Is(err, ErrOrderNotFound):
		return w.result(ctx, "not_found", WebhookResult{Status: http.StatusNotFound, OrderID: orderID, Reason: "order not found"})
	case errors.Is(err, ErrOrderAlreadyProcessed):
		return w.result(ctx, "duplicate", WebhookResult{Status: http.StatusBadRequest, OrderID: orderID, Reason: "order already processed"})
	default:
		w.logger(ctx, "webhook.confirm_failed", map[string]any{"eventId": event.ID, "orderId": orderID, "error": err.Error()})
		return w.result(ctx, "retry", WebhookResult{Status: http.StatusServiceUnavailable, OrderID: orderID, Reason: "temporarily unavailable"})
	}
}

func (w *webhookIngress) result(ctx context.Context, outcome string, res WebhookResult) WebhookResult {
	w.events.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return res
}
