package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/couture-field/checkout/internal/domain"
	"github.com/couture-field/checkout/internal/platform/storage"
	"github.com/couture-field/checkout/internal/services"
)

type stubLabelSigner struct {
	object string
	opts   storage.DownloadOptions
	err    error
}

func (s *stubLabelSigner) SignedDownloadURL(_ context.Context, object string, opts storage.DownloadOptions) (storage.SignedURLResult, error) {
	s.object = object
	s.opts = opts
	if s.err != nil {
		return storage.SignedURLResult{}, s.err
	}
	return storage.SignedURLResult{
		URL:       "https://storage.example/" + object + "?sig=1",
		Method:    http.MethodGet,
		ExpiresAt: time.Date(2025, time.May, 3, 10, 15, 0, 0, time.UTC),
	}, nil
}

type stubJanitor struct {
	removed int
	err     error
	limit   int
	now     time.Time
}

func (s *stubJanitor) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.now = now
	s.limit = limit
	return s.removed, s.err
}

func newInternalRouter(h *InternalHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/internal", h.Routes)
	return router
}

func labelledOrder() domain.Order {
	order := sampleOrder(domain.OrderStatusPaid, domain.PaymentMethodCard)
	order.WorkflowStep = domain.WorkflowShipping
	order.ShippingLabel = &domain.ShippingLabel{
		Reference:   "lbl_1",
		Cost:        decimal.RequireFromString("6.5"),
		LabelPath:   "labels/ord_123/20250503T100000Z.pdf",
		PurchasedAt: time.Date(2025, time.May, 3, 10, 0, 0, 0, time.UTC),
	}
	return order
}

func TestInternalHandlersPurchaseLabelWithSignedURL(t *testing.T) {
	fulfillment := &stubFulfillmentService{
		labelFunc: func(_ context.Context, orderID string) (domain.Order, error) {
			if orderID != "ord_123" {
				t.Fatalf("unexpected order id %q", orderID)
			}
			return labelledOrder(), nil
		},
	}
	signer := &stubLabelSigner{}
	h := NewInternalHandlers(fulfillment, WithLabelURLSigner(signer, 15*time.Minute))

	rr := httptest.NewRecorder()
	newInternalRouter(h).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/orders/ord_123/shipping-label", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if signer.object != "labels/ord_123/20250503T100000Z.pdf" || signer.opts.ExpiresIn != 15*time.Minute {
		t.Fatalf("unexpected signing request %q %+v", signer.object, signer.opts)
	}
	if !strings.Contains(signer.opts.Disposition, "ord_123-label.pdf") {
		t.Fatalf("unexpected disposition %q", signer.opts.Disposition)
	}

	var body labelResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.WorkflowStep != "shipping" || body.Label == nil || body.Label.Reference != "lbl_1" {
		t.Fatalf("unexpected response %+v", body)
	}
	if !strings.HasPrefix(body.DownloadURL, "https://storage.example/labels/") || body.URLExpiresAt == "" {
		t.Fatalf("expected signed url, got %+v", body)
	}
}

func TestInternalHandlersPurchaseLabelSigningFailureIsNotFatal(t *testing.T) {
	fulfillment := &stubFulfillmentService{
		labelFunc: func(context.Context, string) (domain.Order, error) { return labelledOrder(), nil },
	}
	h := NewInternalHandlers(fulfillment, WithLabelURLSigner(&stubLabelSigner{err: errors.New("no signer")}, time.Minute))

	rr := httptest.NewRecorder()
	newInternalRouter(h).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/orders/ord_123/shipping-label", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body labelResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.DownloadURL != "" || body.Label == nil {
		t.Fatalf("expected label without url, got %+v", body)
	}
}

func TestInternalHandlersPurchaseLabelErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{services.ErrOrderNotFound, http.StatusNotFound},
		{services.ErrOrderInvalidState, http.StatusConflict},
		{services.ErrCheckoutShippingFailed, http.StatusBadGateway},
	}
	for _, tc := range tests {
		fulfillment := &stubFulfillmentService{
			labelFunc: func(context.Context, string) (domain.Order, error) { return domain.Order{}, tc.err },
		}
		rr := httptest.NewRecorder()
		newInternalRouter(NewInternalHandlers(fulfillment)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/orders/ord_123/shipping-label", nil))

		if rr.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rr.Code)
		}
	}
}

func TestInternalHandlersIdempotencyCleanup(t *testing.T) {
	now := time.Date(2025, time.May, 3, 12, 0, 0, 0, time.UTC)
	janitor := &stubJanitor{removed: 7}
	h := NewInternalHandlers(nil, WithIdempotencyJanitor(janitor, 50), WithInternalClock(func() time.Time { return now }))

	rr := httptest.NewRecorder()
	newInternalRouter(h).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/maintenance/idempotency:cleanup", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if janitor.limit != 50 || !janitor.now.Equal(now) {
		t.Fatalf("unexpected janitor call limit=%d now=%v", janitor.limit, janitor.now)
	}
	var body cleanupResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Removed != 7 {
		t.Fatalf("expected 7 removed, got %d", body.Removed)
	}

	janitor.err = errors.New("firestore down")
	rr = httptest.NewRecorder()
	newInternalRouter(h).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/maintenance/idempotency:cleanup", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
