package services

import (
	"context"
	"errors"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/couture-field/checkout/internal/domain"
	"github.com/couture-field/checkout/internal/repositories"
)

const (
	cartItemIDPrefix = "itm_"
	maxItemQuantity  = 99
)

// CartServiceDeps wires the cart service.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Catalog     repositories.CatalogRepository
	Coordinator CheckoutCoordinator
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts       repositories.CartRepository
	catalog     repositories.CatalogRepository
	coordinator CheckoutCoordinator
	newID       func() string
	text        *bluemonday.Policy
	logger      func(ctx context.Context, event string, fields map[string]any)
}

var _ CartService = (*cartService)(nil)

// NewCartService constructs a CartService. Every edit goes through the coordinator so the
// cart's draft order is invalidated in the same commit.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service: catalog repository is required")
	}
	if deps.Coordinator == nil {
		return nil, errors.New("cart service: checkout coordinator is required")
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		carts:       deps.Carts,
		catalog:     deps.Catalog,
		coordinator: deps.Coordinator,
		newID: func() string {
			return cartItemIDPrefix + idGen()
		},
		text:   bluemonday.StrictPolicy(),
		logger: logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, ErrCartInvalidInput
	}
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, translateStoreError(err, nil)
	}
	return cart, nil
}

// EditCart validates the mutation against the catalog, then applies it through InvalidateDraft.
func (s *cartService) EditCart(ctx context.Context, userID string, mutation CartMutation) (domain.Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, ErrCartInvalidInput
	}

	var edit CartEdit
	switch m := mutation.(type) {
	case ChangeQuantity:
		itemID := strings.TrimSpace(m.ItemID)
		if itemID == "" || m.Quantity < 0 || m.Quantity > maxItemQuantity {
			return domain.Cart{}, ErrCartInvalidInput
		}
		edit = changeQuantity(itemID, m.Quantity)
	case AddInStockItem:
		item, err := s.inStockItem(ctx, m)
		if err != nil {
			return domain.Cart{}, err
		}
		edit = addItem(item)
	case AddCustomizedItem:
		item, err := s.customizedItem(ctx, m)
		if err != nil {
			return domain.Cart{}, err
		}
		edit = addItem(item)
	default:
		return domain.Cart{}, ErrCartInvalidInput
	}

	cart, err := s.coordinator.InvalidateDraft(ctx, userID, edit)
	if err != nil {
		return domain.Cart{}, err
	}
	s.logger(ctx, "cart.edited", map[string]any{"userId": userID, "items": len(cart.Items)})
	return cart, nil
}

func (s *cartService) inStockItem(ctx context.Context, m AddInStockItem) (domain.CartItem, error) {
	stockID := strings.TrimSpace(m.StockID)
	if stockID == "" || m.Quantity <= 0 || m.Quantity > maxItemQuantity {
		return domain.CartItem{}, ErrCartInvalidInput
	}
	stock, err := s.catalog.GetStockItem(ctx, stockID)
	if err != nil {
		return domain.CartItem{}, translateStoreError(err, ErrCartReferenceNotFound)
	}
	return domain.CartItem{
		ID:                   s.newID(),
		Kind:                 domain.CartItemInStock,
		StockID:              stock.ID,
		ProductID:            stock.ProductID,
		Name:                 stock.Name,
		Quantity:             m.Quantity,
		UnitPriceTaxExcluded: stock.PriceTaxExcluded,
		TaxRate:              stock.TaxRate,
		WeightGrams:          stock.WeightGrams,
	}, nil
}

func (s *cartService) customizedItem(ctx context.Context, m AddCustomizedItem) (domain.CartItem, error) {
	productID := strings.TrimSpace(m.ProductID)
	if productID == "" || m.Quantity <= 0 || m.Quantity > maxItemQuantity {
		return domain.CartItem{}, ErrCartInvalidInput
	}
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.CartItem{}, translateStoreError(err, ErrCartReferenceNotFound)
	}
	if !product.CustomizationAllowed {
		return domain.CartItem{}, ErrCartInvalidInput
	}

	chosen := make(map[string]domain.Selection, len(m.Selections))
	for _, sel := range m.Selections {
		id := strings.TrimSpace(sel.CustomizableID)
		if _, ok := product.Customizable(id); !ok {
			return domain.CartItem{}, ErrCartReferenceNotFound
		}
		if _, dup := chosen[id]; dup {
			return domain.CartItem{}, ErrCartInvalidInput
		}
		sel.CustomizableID = id
		chosen[id] = sel
	}

	price := product.PriceTaxExcluded
	selections := make([]domain.Selection, 0, len(product.Customizables))
	for _, customizable := range product.Customizables {
		sel, ok := chosen[customizable.ID]
		if !ok {
			return domain.CartItem{}, ErrCartInvalidInput
		}
		switch customizable.Kind {
		case domain.CustomizableFabric:
			fabric, err := s.catalog.GetFabric(ctx, strings.TrimSpace(sel.FabricID))
			if err != nil {
				return domain.CartItem{}, translateStoreError(err, ErrCartReferenceNotFound)
			}
			if !fabric.InGroup(customizable.FabricGroupIDs) {
				return domain.CartItem{}, ErrCartReferenceNotFound
			}
			price = price.Add(fabric.PriceTaxExcluded)
			selections = append(selections, domain.Selection{CustomizableID: customizable.ID, FabricID: fabric.ID})
		case domain.CustomizableText:
			text, ok := s.sanitizeText(sel.Text, customizable.MaxLength)
			if !ok {
				return domain.CartItem{}, ErrCartInvalidInput
			}
			selections = append(selections, domain.Selection{CustomizableID: customizable.ID, Text: text})
		default:
			return domain.CartItem{}, ErrCartInvalidInput
		}
	}

	return domain.CartItem{
		ID:                   s.newID(),
		Kind:                 domain.CartItemCustomized,
		ProductID:            product.ID,
		Selections:           selections,
		Name:                 product.Name,
		Quantity:             m.Quantity,
		UnitPriceTaxExcluded: price,
		TaxRate:              product.TaxRate,
		WeightGrams:          product.WeightGrams,
	}, nil
}

// sanitizeText strips markup from customer text and enforces the customizable's length limit.
func (s *cartService) sanitizeText(raw string, maxLength int) (string, bool) {
	text := strings.TrimSpace(html.UnescapeString(s.text.Sanitize(raw)))
	if text == "" || !utf8.ValidString(text) {
		return "", false
	}
	if maxLength > 0 && utf8.RuneCountInString(text) > maxLength {
		return "", false
	}
	return text, true
}

func changeQuantity(itemID string, quantity int) CartEdit {
	return func(cart *domain.Cart) error {
		for i := range cart.Items {
			if cart.Items[i].ID != itemID {
				continue
			}
			if quantity == 0 {
				cart.Items = append(cart.Items[:i:i], cart.Items[i+1:]...)
			} else {
				cart.Items[i].Quantity = quantity
			}
			return nil
		}
		return ErrCartReferenceNotFound
	}
}

// addItem merges in-stock items with the same SKU; customized items are always new lines.
func addItem(item domain.CartItem) CartEdit {
	return func(cart *domain.Cart) error {
		if item.Kind == domain.CartItemInStock {
			for i := range cart.Items {
				existing := &cart.Items[i]
				if existing.Kind != domain.CartItemInStock || existing.StockID != item.StockID {
					continue
				}
				quantity := existing.Quantity + item.Quantity
				if quantity > maxItemQuantity {
					return ErrCartInvalidInput
				}
				existing.Quantity = quantity
				existing.UnitPriceTaxExcluded = item.UnitPriceTaxExcluded
				existing.TaxRate = item.TaxRate
				existing.WeightGrams = item.WeightGrams
				return nil
			}
		}
		cart.Items = append(cart.Items, item)
		return nil
	}
}

