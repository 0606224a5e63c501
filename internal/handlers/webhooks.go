package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/couture-field/checkout/internal/platform/httpx"
	"github.com/couture-field/checkout/internal/services"
)

const (
	maxStripeWebhookBody   = 64 * 1024
	maxTrackingWebhookBody = 8 * 1024
	stripeSignatureHeader  = "Stripe-Signature"
)

// WebhookHandlers receives payment provider and carrier callbacks. Neither uses customer auth:
// Stripe payloads are verified by the ingress, carrier payloads by the HMAC middleware.
type WebhookHandlers struct {
	ingress     services.WebhookIngress
	fulfillment services.FulfillmentService
	trackingMW  []func(http.Handler) http.Handler
}

// NewWebhookHandlers constructs webhook handlers. trackingMW guards the carrier tracking endpoint.
func NewWebhookHandlers(ingress services.WebhookIngress, fulfillment services.FulfillmentService, trackingMW ...func(http.Handler) http.Handler) *WebhookHandlers {
	return &WebhookHandlers{
		ingress:     ingress,
		fulfillment: fulfillment,
		trackingMW:  trackingMW,
	}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripe)
	r.With(h.trackingMW...).Post("/shipping/tracking", h.tracking)
}

type webhookResponse struct {
	Received bool   `json:"received"`
	OrderID  string `json:"orderId,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// stripe passes the raw body through untouched: the signature covers the exact bytes.
func (h *WebhookHandlers) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ingress == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook ingress unavailable", http.StatusServiceUnavailable))
		return
	}
	payload, err := readLimitedBody(r, maxStripeWebhookBody)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result := h.ingress.Ingest(ctx, payload, r.Header.Get(stripeSignatureHeader))
	status := result.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	writeJSONResponse(w, status, webhookResponse{
		Received: status < http.StatusMultipleChoices,
		OrderID:  result.OrderID,
		Reason:   result.Reason,
	})
}

type trackingRequest struct {
	OrderID    string `json:"orderId"`
	Status     string `json:"status"`
	Detail     string `json:"detail"`
	Delivered  bool   `json:"delivered"`
	OccurredAt string `json:"occurredAt"`
}

type trackingResponse struct {
	OrderID      string `json:"orderId"`
	WorkflowStep string `json:"workflowStep"`
	Events       int    `json:"events"`
}

func (h *WebhookHandlers) tracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillment == nil {
		httpx.WriteError(ctx, w, httpx.NewError("fulfillment_unavailable", "fulfillment service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req trackingRequest
	if !decodeJSONBody(w, r, maxTrackingWebhookBody, &req) {
		return
	}

	update := services.TrackingUpdate{
		OrderID:   strings.TrimSpace(req.OrderID),
		Status:    strings.TrimSpace(req.Status),
		Detail:    req.Detail,
		Delivered: req.Delivered,
	}
	if raw := strings.TrimSpace(req.OccurredAt); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "occurredAt must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		update.OccurredAt = ts
	}

	order, err := h.fulfillment.RecordTracking(ctx, update)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, trackingResponse{
		OrderID:      order.ID,
		WorkflowStep: string(order.WorkflowStep),
		Events:       len(order.Tracking),
	})
}
