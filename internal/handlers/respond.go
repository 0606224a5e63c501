package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/couture-field/checkout/internal/platform/auth"
	"github.com/couture-field/checkout/internal/platform/httpx"
	"github.com/couture-field/checkout/internal/services"
)

const defaultMaxBody = 16 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBody
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads a bounded body into dst, writing the 400/413 response itself on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

// requireCustomer returns the authenticated customer or writes a 401.
func requireCustomer(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	httpx.WriteError(ctx, w, serviceError(err))
}

func serviceError(err error) httpx.Error {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput), errors.Is(err, services.ErrCartInvalidInput):
		return httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrPromotionCodeNotFound):
		return httpx.NewError("promotion_code_not_found", "promotion code is not applicable", http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrCheckoutReferenceNotFound), errors.Is(err, services.ErrCartReferenceNotFound):
		return httpx.NewError("reference_not_found", err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrOrderNotFound):
		return httpx.NewError("order_not_found", "order not found", http.StatusNotFound)
	case errors.Is(err, services.ErrCheckoutAlreadyInProgress):
		return httpx.NewError("checkout_in_progress", "payment process already began with another method", http.StatusConflict)
	case errors.Is(err, services.ErrCheckoutPaymentCompleted):
		return httpx.NewError("payment_completed", "payment already completed; the order is being confirmed", http.StatusConflict)
	case errors.Is(err, services.ErrOrderAlreadyProcessed):
		return httpx.NewError("order_already_processed", "order is no longer a draft", http.StatusConflict)
	case errors.Is(err, services.ErrOrderInvalidState):
		return httpx.NewError("order_invalid_state", "operation does not apply to the order state", http.StatusConflict)
	case errors.Is(err, services.ErrCheckoutConflict):
		return httpx.NewError("checkout_conflict", "concurrent update; retry the request", http.StatusConflict)
	case errors.Is(err, services.ErrInsufficientGiftCardBalance):
		return httpx.NewError("insufficient_gift_card_balance", "gift cards do not cover the order total", http.StatusPaymentRequired)
	case errors.Is(err, services.ErrCustomizedItemsDisabled):
		return httpx.NewError("customized_items_disabled", "customized items cannot be ordered with this payment method", http.StatusForbidden)
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		return httpx.NewError("payment_provider_error", "payment provider request failed", http.StatusBadGateway)
	case errors.Is(err, services.ErrCheckoutShippingFailed):
		return httpx.NewError("shipping_provider_error", "shipping provider request failed", http.StatusBadGateway)
	case errors.Is(err, services.ErrCheckoutUnavailable):
		return httpx.NewError("service_unavailable", "store temporarily unavailable", http.StatusServiceUnavailable)
	default:
		return httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError)
	}
}
