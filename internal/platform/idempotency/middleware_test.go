package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couture-field/checkout/internal/platform/auth"
)

var fixedTime = time.Date(2025, time.July, 1, 12, 0, 0, 0, time.UTC)

func newCheckoutRequest(t *testing.T, key, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/checkout/card", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "usr_ada"}))
}

func TestMiddleware_MissingHeader(t *testing.T) {
	handlerCalled := false
	handler := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { handlerCalled = true }),
	)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newCheckoutRequest(t, "", `{"carrier":"colissimo"}`))

	if handlerCalled {
		t.Fatal("handler should not be invoked when header is missing")
	}
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency_key_required")
}

func TestMiddleware_ReplaysStoredResponse(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"orderId":"ord_1"}`))
		}),
	)

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, newCheckoutRequest(t, "abc-123", `{"carrier":"colissimo"}`))
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, newCheckoutRequest(t, "abc-123", `{"carrier":"colissimo"}`))

	if calls != 1 {
		t.Fatalf("expected handler to run once, got %d", calls)
	}
	if rr2.Code != http.StatusCreated {
		t.Fatalf("expected replayed status 201, got %d", rr2.Code)
	}
	if rr2.Header().Get(replayHeaderName) != "true" {
		t.Fatalf("expected replay header to be present")
	}
	if got := rr2.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected content-type json, got %s", got)
	}
	if rr2.Body.String() != rr1.Body.String() {
		t.Fatalf("expected response body %s, got %s", rr1.Body.String(), rr2.Body.String())
	}
}

func TestMiddleware_KeysAreScopedPerCustomer(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), newCheckoutRequest(t, "shared", `{}`))
	other := newCheckoutRequest(t, "shared", `{}`)
	other = other.WithContext(auth.WithIdentity(other.Context(), &auth.Identity{UID: "usr_bo"}))
	handler.ServeHTTP(httptest.NewRecorder(), other)

	if calls != 2 {
		t.Fatalf("expected both customers to reach the handler, got %d calls", calls)
	}
}

func TestMiddleware_ConflictingFingerprint(t *testing.T) {
	handler := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	)

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, newCheckoutRequest(t, "same-key", `{"carrier":"colissimo"}`))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first request success, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, newCheckoutRequest(t, "same-key", `{"carrier":"ups"}`))
	if rr2.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr2.Code)
	}
	assertErrorResponse(t, rr2.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddleware_PendingReservation(t *testing.T) {
	store := NewMemoryStore()
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler should not be invoked when reservation pending")
		}),
	)

	req := newCheckoutRequest(t, "pending-key", `{"carrier":"colissimo"}`)
	body, err := readAndReplayBody(req)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	requester := extractRequester(req.Context())
	if _, err := store.Reserve(req.Context(), scopedKey("pending-key", requester), requestFingerprint(req, body, requester), fixedTime, time.Hour); err != nil {
		t.Fatalf("failed to seed reservation: %v", err)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for pending reservation, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddleware_ServerErrorsAreRetryable(t *testing.T) {
	statuses := []int{http.StatusServiceUnavailable, http.StatusOK}
	var calls int
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statuses[calls])
		calls++
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, newCheckoutRequest(t, "retry", `{}`))
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, newCheckoutRequest(t, "retry", `{}`))

	if rr1.Code != http.StatusServiceUnavailable || rr2.Code != http.StatusOK {
		t.Fatalf("unexpected statuses %d then %d", rr1.Code, rr2.Code)
	}
	if calls != 2 {
		t.Fatalf("expected retry to reach the handler, got %d calls", calls)
	}
}

func TestMiddleware_SaveFailureReleasesReservation(t *testing.T) {
	store := &stubStore{failSave: true}
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("ok"))
		}),
	)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newCheckoutRequest(t, "fail-key", `{}`))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected handler response to be delivered, got %d", rr.Code)
	}
	if !store.released {
		t.Fatalf("expected reservation to be released on failure")
	}
}

func TestMiddleware_IgnoresReads(t *testing.T) {
	store := &stubStore{}
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/cart", nil))

	if rr.Code != http.StatusNoContent || store.reserved {
		t.Fatalf("expected GET to bypass the store, got %d reserved=%v", rr.Code, store.reserved)
	}
}

type stubStore struct {
	failSave bool
	reserved bool
	released bool
}

func (s *stubStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Reservation, error) {
	s.reserved = true
	return Reservation{State: ReservationStateNew}, nil
}

func (s *stubStore) SaveResponse(context.Context, string, string, Response, time.Time, time.Duration) error {
	if s.failSave {
		return errors.New("save failed")
	}
	return nil
}

func (s *stubStore) Release(context.Context, string, string) error {
	s.released = true
	return nil
}

func (s *stubStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func assertErrorResponse(t *testing.T, payload []byte, expected string) {
	t.Helper()

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	if body.Error != expected {
		t.Fatalf("expected error code %s, got %s", expected, body.Error)
	}
}
