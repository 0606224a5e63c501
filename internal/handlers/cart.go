package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/couture-field/checkout/internal/domain"
	"github.com/couture-field/checkout/internal/platform/auth"
	"github.com/couture-field/checkout/internal/platform/httpx"
	"github.com/couture-field/checkout/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes the authenticated customer's cart.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Patch("/", h.patchCart)
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

// cartMutationRequest is the PATCH body. Type selects which of the remaining fields apply.
type cartMutationRequest struct {
	Type       string             `json:"type"`
	ItemID     string             `json:"itemId"`
	ProductID  string             `json:"productId"`
	StockID    string             `json:"stockId"`
	Selections []selectionPayload `json:"selections"`
	Quantity   *int               `json:"quantity"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireCustomer(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	setCartResponseHeaders(w, cart)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) patchCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireCustomer(w, r)
	if !ok {
		return
	}

	var req cartMutationRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	mutation, err := req.toMutation()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cart, err := h.carts.EditCart(ctx, identity.UID, mutation)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	setCartResponseHeaders(w, cart)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (req cartMutationRequest) toMutation() (services.CartMutation, error) {
	if req.Quantity == nil {
		return nil, fmt.Errorf("quantity is required")
	}
	quantity := *req.Quantity
	switch strings.TrimSpace(req.Type) {
	case "changeQuantity":
		return services.ChangeQuantity{ItemID: strings.TrimSpace(req.ItemID), Quantity: quantity}, nil
	case "addCustomizedItem":
		selections := make([]domain.Selection, 0, len(req.Selections))
		for _, sel := range req.Selections {
			selections = append(selections, domain.Selection(sel))
		}
		return services.AddCustomizedItem{
			ProductID:  strings.TrimSpace(req.ProductID),
			Selections: selections,
			Quantity:   quantity,
		}, nil
	case "addInStockItem":
		return services.AddInStockItem{StockID: strings.TrimSpace(req.StockID), Quantity: quantity}, nil
	default:
		return nil, fmt.Errorf("type must be one of changeQuantity, addCustomizedItem, addInStockItem")
	}
}

func setCartResponseHeaders(w http.ResponseWriter, cart domain.Cart) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	if etag := buildCartETag(cart); etag != "" {
		w.Header().Set("ETag", etag)
	}
}

// buildCartETag changes whenever the cart content, totals or draft link change.
func buildCartETag(cart domain.Cart) string {
	if cart.UserID == "" {
		return ""
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", cart.UserID, cart.DraftOrderID, cart.Totals.TaxIncluded.String(), cart.UpdatedAt.UnixNano())
	for _, item := range cart.Items {
		fmt.Fprintf(h, "|%s:%d", item.ID, item.Quantity)
	}
	return `W/"` + hex.EncodeToString(h.Sum(nil)[:12]) + `"`
}
