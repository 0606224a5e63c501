package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/couture-field/checkout/internal/domain"
	"github.com/couture-field/checkout/internal/services"
)

type stubWebhookIngress struct {
	ingestFunc func(ctx context.Context, payload []byte, signature string) services.WebhookResult
}

func (s *stubWebhookIngress) Ingest(ctx context.Context, payload []byte, signature string) services.WebhookResult {
	return s.ingestFunc(ctx, payload, signature)
}

type stubFulfillmentService struct {
	labelFunc    func(ctx context.Context, orderID string) (domain.Order, error)
	trackingFunc func(ctx context.Context, update services.TrackingUpdate) (domain.Order, error)
}

func (s *stubFulfillmentService) PurchaseShippingLabel(ctx context.Context, orderID string) (domain.Order, error) {
	return s.labelFunc(ctx, orderID)
}

func (s *stubFulfillmentService) RecordTracking(ctx context.Context, update services.TrackingUpdate) (domain.Order, error) {
	return s.trackingFunc(ctx, update)
}

func newWebhookRouter(h *WebhookHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/webhooks", h.Routes)
	return router
}

func TestWebhookHandlersStripePassesRawPayload(t *testing.T) {
	payload := `{"id":"evt_1","type":"checkout.session.completed"}`
	ingress := &stubWebhookIngress{
		ingestFunc: func(_ context.Context, body []byte, signature string) services.WebhookResult {
			if string(body) != payload {
				t.Fatalf("payload altered: %s", body)
			}
			if signature != "t=1,v1=abc" {
				t.Fatalf("unexpected signature %q", signature)
			}
			return services.WebhookResult{Status: http.StatusOK, OrderID: "ord_123"}
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rr := httptest.NewRecorder()
	newWebhookRouter(NewWebhookHandlers(ingress, nil)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body webhookResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Received || body.OrderID != "ord_123" {
		t.Fatalf("unexpected response %+v", body)
	}
}

func TestWebhookHandlersStripeEchoesIngressStatus(t *testing.T) {
	tests := []struct {
		result services.WebhookResult
		status int
	}{
		{services.WebhookResult{Status: http.StatusBadRequest, Reason: "invalid signature"}, http.StatusBadRequest},
		{services.WebhookResult{Status: http.StatusNotFound, Reason: "order not found"}, http.StatusNotFound},
		{services.WebhookResult{Status: http.StatusInternalServerError}, http.StatusInternalServerError},
		{services.WebhookResult{}, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		ingress := &stubWebhookIngress{
			ingestFunc: func(context.Context, []byte, string) services.WebhookResult { return tc.result },
		}
		rr := httptest.NewRecorder()
		newWebhookRouter(NewWebhookHandlers(ingress, nil)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`)))

		if rr.Code != tc.status {
			t.Fatalf("expected %d, got %d", tc.status, rr.Code)
		}
		var body webhookResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body.Received || body.Reason != tc.result.Reason {
			t.Fatalf("unexpected response %+v", body)
		}
	}
}

func TestWebhookHandlersStripeRejectsOversizedPayload(t *testing.T) {
	ingress := &stubWebhookIngress{
		ingestFunc: func(context.Context, []byte, string) services.WebhookResult {
			t.Fatalf("ingress should not be called")
			return services.WebhookResult{}
		},
	}
	body := strings.Repeat("a", maxStripeWebhookBody+1)
	rr := httptest.NewRecorder()
	newWebhookRouter(NewWebhookHandlers(ingress, nil)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(body)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestWebhookHandlersTracking(t *testing.T) {
	var received services.TrackingUpdate
	fulfillment := &stubFulfillmentService{
		trackingFunc: func(_ context.Context, update services.TrackingUpdate) (domain.Order, error) {
			received = update
			order := sampleOrder(domain.OrderStatusPaid, domain.PaymentMethodCard)
			order.WorkflowStep = domain.WorkflowDelivered
			order.Tracking = []domain.TrackingEvent{{Status: "in_transit"}, {Status: "delivered"}}
			return order, nil
		},
	}
	guarded := false
	guard := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guarded = true
			next.ServeHTTP(w, r)
		})
	}

	body := `{"orderId":" ord_123 ","status":"delivered","detail":"left with concierge","delivered":true,"occurredAt":"2025-05-04T09:30:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/shipping/tracking", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newWebhookRouter(NewWebhookHandlers(nil, fulfillment, guard)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !guarded {
		t.Fatalf("expected tracking middleware to run")
	}
	if received.OrderID != "ord_123" || !received.Delivered || received.Detail != "left with concierge" {
		t.Fatalf("unexpected update %+v", received)
	}
	if !received.OccurredAt.Equal(time.Date(2025, time.May, 4, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected occurredAt %v", received.OccurredAt)
	}

	var resp trackingResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.WorkflowStep != "delivered" || resp.Events != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestWebhookHandlersTrackingErrors(t *testing.T) {
	fulfillment := &stubFulfillmentService{
		trackingFunc: func(context.Context, services.TrackingUpdate) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderInvalidState
		},
	}
	router := newWebhookRouter(NewWebhookHandlers(nil, fulfillment))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/shipping/tracking", strings.NewReader(`{"orderId":"ord_1","status":"x","occurredAt":"yesterday"}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad timestamp: expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/shipping/tracking", strings.NewReader(`{"orderId":"ord_1","status":"in_transit"}`)))
	if rr.Code != http.StatusConflict {
		t.Fatalf("invalid state: expected 409, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "order_invalid_state" {
		t.Fatalf("expected order_invalid_state, got %s", code)
	}
}
