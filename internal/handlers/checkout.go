package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/couture-field/checkout/internal/domain"
	"github.com/couture-field/checkout/internal/platform/auth"
	"github.com/couture-field/checkout/internal/platform/httpx"
	"github.com/couture-field/checkout/internal/services"
)

const maxCheckoutRequestBody = 8 * 1024

// CheckoutHandlers exposes the three checkout paths for authenticated customers.
type CheckoutHandlers struct {
	authn       *auth.Authenticator
	coordinator services.CheckoutCoordinator
	idempotency func(http.Handler) http.Handler
	limiter     *customerLimiter
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutIdempotency guards every checkout POST with the Idempotency-Key middleware.
func WithCheckoutIdempotency(mw func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.idempotency = mw
	}
}

// WithCheckoutRateLimit allows each customer limit checkout attempts, refilled evenly over window.
func WithCheckoutRateLimit(limit int, window time.Duration, clock func() time.Time) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.limiter = newCustomerLimiter(limit, window, clock)
	}
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, coordinator services.CheckoutCoordinator, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:       authn,
		coordinator: coordinator,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	group = group.With(rateLimitCustomers(h.limiter))
	if h.idempotency != nil {
		group = group.With(h.idempotency)
	}
	group.Post("/card", h.createCardSession)
	group.Post("/bank-transfer", h.createBankTransferOrder)
	group.Post("/gift-card", h.createGiftCardOrder)
}

type billingRequest struct {
	Email   string         `json:"email"`
	Address addressPayload `json:"address"`
}

type shippingRequest struct {
	Carrier string         `json:"carrier"`
	Address addressPayload `json:"address"`
}

type extrasRequest struct {
	ReduceManufacturingTimes bool `json:"reduceManufacturingTimes"`
}

type checkoutRequest struct {
	Billing       billingRequest    `json:"billing"`
	Shipping      shippingRequest   `json:"shipping"`
	Extras        extrasRequest     `json:"extras"`
	PromotionCode string            `json:"promotionCode"`
	GiftCards     []giftCardPayload `json:"giftCards,omitempty"`
}

type cardCheckoutResponse struct {
	OrderID     string `json:"orderId"`
	RedirectURL string `json:"redirectUrl"`
	Reused      bool   `json:"reused"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

// input builds the service input. The billing email falls back to the verified account email.
func (req checkoutRequest) input(identity *auth.Identity) services.CheckoutInput {
	email := strings.TrimSpace(req.Billing.Email)
	if email == "" && identity.EmailVerified {
		email = identity.Email
	}
	return services.CheckoutInput{
		UserID: identity.UID,
		Billing: domain.Billing{
			Email:   email,
			Address: req.Billing.Address.toDomain(),
		},
		Shipping: domain.Shipping{
			Carrier: strings.TrimSpace(req.Shipping.Carrier),
			Address: req.Shipping.Address.toDomain(),
		},
		Extras:        domain.Extras{ReduceManufacturingTimes: req.Extras.ReduceManufacturingTimes},
		PromotionCode: strings.TrimSpace(req.PromotionCode),
	}
}

func (h *CheckoutHandlers) decode(w http.ResponseWriter, r *http.Request) (*auth.Identity, checkoutRequest, bool) {
	var req checkoutRequest
	if h.coordinator == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return nil, req, false
	}
	identity, ok := requireCustomer(w, r)
	if !ok {
		return nil, req, false
	}
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, &req) {
		return nil, req, false
	}
	return identity, req, true
}

func (h *CheckoutHandlers) createCardSession(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if len(req.GiftCards) > 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "giftCards are only accepted by the gift-card checkout", http.StatusBadRequest))
		return
	}

	result, err := h.coordinator.CreateCardCheckoutSession(r.Context(), req.input(identity))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cardCheckoutResponse(result))
}

func (h *CheckoutHandlers) createBankTransferOrder(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if len(req.GiftCards) > 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "giftCards are only accepted by the gift-card checkout", http.StatusBadRequest))
		return
	}

	order, err := h.coordinator.CreateBankTransferOrder(r.Context(), req.input(identity))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *CheckoutHandlers) createGiftCardOrder(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if len(req.GiftCards) == 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "at least one gift card is required", http.StatusBadRequest))
		return
	}

	in := services.GiftCardCheckoutInput{CheckoutInput: req.input(identity)}
	for _, card := range req.GiftCards {
		in.GiftCards = append(in.GiftCards, domain.GiftCard{Code: strings.TrimSpace(card.Code), Amount: card.Amount})
	}

	order, err := h.coordinator.CreatePayByGiftCardOrder(r.Context(), in)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}
