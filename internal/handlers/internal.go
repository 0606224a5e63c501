package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/couture-field/checkout/internal/platform/httpx"
	"github.com/couture-field/checkout/internal/platform/requestctx"
	"github.com/couture-field/checkout/internal/platform/storage"
	"github.com/couture-field/checkout/internal/services"
)

// LabelURLSigner issues short-lived download URLs for stored label documents.
type LabelURLSigner interface {
	SignedDownloadURL(ctx context.Context, object string, opts storage.DownloadOptions) (storage.SignedURLResult, error)
}

// IdempotencyJanitor removes expired idempotency records.
type IdempotencyJanitor interface {
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// InternalHandlers serves endpoints called by internal jobs (fulfilment workers, schedulers).
// Authentication is applied by the router through the internal middleware group.
type InternalHandlers struct {
	fulfillment  services.FulfillmentService
	signer       LabelURLSigner
	urlTTL       time.Duration
	janitor      IdempotencyJanitor
	cleanupBatch int
	clock        func() time.Time
}

// InternalOption customises InternalHandlers.
type InternalOption func(*InternalHandlers)

// WithLabelURLSigner enables signed download URLs in label purchase responses.
func WithLabelURLSigner(signer LabelURLSigner, ttl time.Duration) InternalOption {
	return func(h *InternalHandlers) {
		h.signer = signer
		h.urlTTL = ttl
	}
}

// WithIdempotencyJanitor exposes the idempotency cleanup endpoint.
func WithIdempotencyJanitor(janitor IdempotencyJanitor, batch int) InternalOption {
	return func(h *InternalHandlers) {
		h.janitor = janitor
		h.cleanupBatch = batch
	}
}

// WithInternalClock overrides the clock used for cleanup cut-offs.
func WithInternalClock(clock func() time.Time) InternalOption {
	return func(h *InternalHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewInternalHandlers constructs internal handlers.
func NewInternalHandlers(fulfillment services.FulfillmentService, opts ...InternalOption) *InternalHandlers {
	h := &InternalHandlers{fulfillment: fulfillment, cleanupBatch: 200, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders/{orderID}/shipping-label", h.purchaseLabel)
	r.Post("/maintenance/idempotency:cleanup", h.cleanupIdempotency)
}

type labelResponse struct {
	OrderID      string                `json:"orderId"`
	WorkflowStep string                `json:"workflowStep"`
	Label        *shippingLabelPayload `json:"label"`
	DownloadURL  string                `json:"downloadUrl,omitempty"`
	URLExpiresAt string                `json:"downloadUrlExpiresAt,omitempty"`
}

func (h *InternalHandlers) purchaseLabel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillment == nil {
		httpx.WriteError(ctx, w, httpx.NewError("fulfillment_unavailable", "fulfillment service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.fulfillment.PurchaseShippingLabel(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := buildOrderPayload(order)
	resp := labelResponse{OrderID: order.ID, WorkflowStep: string(order.WorkflowStep), Label: payload.ShippingLabel}
	if h.signer != nil && order.ShippingLabel != nil {
		signed, err := h.signer.SignedDownloadURL(ctx, order.ShippingLabel.LabelPath, storage.DownloadOptions{
			ExpiresIn:   h.urlTTL,
			Disposition: fmt.Sprintf("attachment; filename=%q", order.ID+"-label.pdf"),
		})
		if err != nil {
			// The label is bought and stored; the caller can fetch it by path.
			requestctx.Logger(ctx).Warn("label url signing failed", zap.String("order_id", order.ID), zap.Error(err))
		} else {
			resp.DownloadURL = signed.URL
			resp.URLExpiresAt = formatTime(signed.ExpiresAt)
		}
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

type cleanupResponse struct {
	Removed int `json:"removed"`
}

func (h *InternalHandlers) cleanupIdempotency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.janitor == nil {
		httpx.WriteError(ctx, w, httpx.NewError("not_configured", "idempotency cleanup not configured", http.StatusServiceUnavailable))
		return
	}
	removed, err := h.janitor.CleanupExpired(ctx, h.clock().UTC(), h.cleanupBatch)
	if err != nil {
		requestctx.Logger(ctx).Error("idempotency cleanup failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("cleanup_failed", "idempotency cleanup failed", http.StatusServiceUnavailable))
		return
	}
	writeJSONResponse(w, http.StatusOK, cleanupResponse{Removed: removed})
}
