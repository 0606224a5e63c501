package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Address is a postal address used for billing and shipping.
type Address struct {
	Name       string
	Company    string
	Line1      string
	Line2      string
	PostalCode string
	City       string
	Country    string
	Phone      string
}

// PaymentSession is the provider-hosted checkout page reference embedded in an order's billing data.
type PaymentSession struct {
	ID  string
	URL string
}

// PendingPaymentSession is carried by draft snapshots until the provider session exists.
var PendingPaymentSession = PaymentSession{ID: "pending", URL: "pending"}

// IsPending reports whether the session still holds placeholder values.
func (s PaymentSession) IsPending() bool {
	return s == PendingPaymentSession || s.ID == "" || s.URL == ""
}

// Billing holds the customer's billing identity and, for card checkouts, the payment session.
type Billing struct {
	Email   string
	Address Address
	Session PaymentSession
}

// Shipping holds the destination and carrier; any change to it changes the shipping price.
type Shipping struct {
	Carrier string
	Address Address
}

// Equal reports object-level equality of two shipping payloads.
func (s Shipping) Equal(other Shipping) bool {
	return s == other
}

// Extras are optional order options chosen at checkout.
type Extras struct {
	ReduceManufacturingTimes bool
}

// GiftCard records an amount paid with a single gift card.
type GiftCard struct {
	Code   string
	Amount decimal.Decimal
}

// CartItemKind discriminates cart item variants.
type CartItemKind string

const (
	// CartItemInStock references a fixed stock keeping unit.
	CartItemInStock CartItemKind = "inStock"
	// CartItemCustomized references a product with per-customizable selections.
	CartItemCustomized CartItemKind = "customized"
)

// Valid reports whether the kind is a known variant.
func (k CartItemKind) Valid() bool {
	switch k {
	case CartItemInStock, CartItemCustomized:
		return true
	}
	return false
}

// Selection is the choice made for one customizable of a product.
type Selection struct {
	CustomizableID string
	FabricID       string
	Text           string
}

// CartItem is one line of a cart. Prices, tax rate and weight are snapshotted when the item is written.
type CartItem struct {
	ID                   string
	Kind                 CartItemKind
	StockID              string
	ProductID            string
	Selections           []Selection
	Name                 string
	Quantity             int
	UnitPriceTaxExcluded decimal.Decimal
	TaxRate              decimal.Decimal
	WeightGrams          int
}

// CartTotals aggregates the priced cart. Values are rounded to cents once, at the aggregate level.
type CartTotals struct {
	TaxExcluded decimal.Decimal
	TaxIncluded decimal.Decimal
	WeightGrams int
	TaxBuckets  map[string]decimal.Decimal
}

// Cart is the mutable basket owned by exactly one user. DraftOrderID is a weak reference.
type Cart struct {
	UserID       string
	Items        []CartItem
	Totals       CartTotals
	DraftOrderID string
	UpdatedAt    time.Time
}

// HasCustomizedItems reports whether any item is a customized variant.
func (c Cart) HasCustomizedItems() bool {
	for _, item := range c.Items {
		if item.Kind == CartItemCustomized {
			return true
		}
	}
	return false
}

// ManufacturingTime is the catalog's current lead time estimate for customized items.
type ManufacturingTime struct {
	Min  int
	Max  int
	Unit string
}

// ShippingLabel is the purchased carrier label attached to a paid order.
type ShippingLabel struct {
	Reference         string
	Cost              decimal.Decimal
	LabelPath         string
	EstimatedDelivery *time.Time
	PurchasedAt       time.Time
}

// TrackingEvent is a carrier status update appended to a shipped order.
type TrackingEvent struct {
	Status     string
	Detail     string
	OccurredAt time.Time
}

// OrderTotals is derived from the cart, shipping price, extras surcharge and discount.
type OrderTotals struct {
	ItemsTaxExcluded           decimal.Decimal
	ItemsTaxIncluded           decimal.Decimal
	ShippingTaxExcluded        decimal.Decimal
	ShippingTaxIncluded        decimal.Decimal
	Surcharge                  decimal.Decimal
	Discount                   decimal.Decimal
	TaxBuckets                 map[string]decimal.Decimal
	TaxExcluded                decimal.Decimal
	TaxIncluded                decimal.Decimal
	TaxExcludedWithoutShipping decimal.Decimal
	TaxIncludedWithoutShipping decimal.Decimal
	WeightGrams                int
}

// Order is the priced snapshot of a cart. It is mutable only while in draft.
type Order struct {
	ID                      string
	UserID                  string
	Status                  OrderStatus
	WorkflowStep            WorkflowStep
	PaymentMethod           PaymentMethod
	Currency                string
	Items                   []CartItem
	Billing                 Billing
	Shipping                Shipping
	Extras                  Extras
	PromotionCode           string
	Totals                  OrderTotals
	GiftCards               []GiftCard
	AmountPaidWithGiftCards decimal.Decimal
	ManufacturingTime       *ManufacturingTime
	ShippingLabel           *ShippingLabel
	Tracking                []TrackingEvent
	PaidAt                  *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// DiscountType enumerates promotion code pricing strategies.
type DiscountType string

const (
	// DiscountPercentage discounts a percentage of the cart total.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed discounts a fixed amount capped at the cart total.
	DiscountFixed DiscountType = "fixed"
	// DiscountFreeShipping discounts the shipping cost.
	DiscountFreeShipping DiscountType = "freeShipping"
)

// PromotionCode is an admin-managed discount code. Used only ever grows.
type PromotionCode struct {
	Code       string
	Type       DiscountType
	Discount   decimal.Decimal
	UsageLimit int
	ExpiresAt  *time.Time
	MinAmount  decimal.Decimal
	Used       int
}

// Exhausted reports whether the usage limit has been reached. A zero limit means unlimited.
func (p PromotionCode) Exhausted() bool {
	return p.UsageLimit > 0 && p.Used >= p.UsageLimit
}

// CustomizableKind discriminates the customizable definitions of a product.
type CustomizableKind string

const (
	// CustomizableFabric requires a fabric belonging to one of the allowed groups.
	CustomizableFabric CustomizableKind = "fabric"
	// CustomizableText requires free text such as embroidery.
	CustomizableText CustomizableKind = "text"
)

// Customizable is one customization slot of a product.
type Customizable struct {
	ID             string
	Name           string
	Kind           CustomizableKind
	FabricGroupIDs []string
	MaxLength      int
}

// Product is a catalog article that can be ordered customized.
type Product struct {
	ID                   string
	Name                 string
	PriceTaxExcluded     decimal.Decimal
	TaxRate              decimal.Decimal
	WeightGrams          int
	Customizables        []Customizable
	CustomizationAllowed bool
}

// Customizable returns the customizable with the given id.
func (p Product) Customizable(id string) (Customizable, bool) {
	for _, c := range p.Customizables {
		if c.ID == id {
			return c, true
		}
	}
	return Customizable{}, false
}

// Fabric is a material that can be selected for fabric customizables.
type Fabric struct {
	ID               string
	Name             string
	GroupIDs         []string
	PriceTaxExcluded decimal.Decimal
}

// InGroup reports whether the fabric belongs to any of the given groups.
func (f Fabric) InGroup(groupIDs []string) bool {
	for _, want := range groupIDs {
		for _, have := range f.GroupIDs {
			if want == have {
				return true
			}
		}
	}
	return false
}

// StockItem is a ready-made article with a fixed SKU.
type StockItem struct {
	ID               string
	ProductID        string
	Name             string
	PriceTaxExcluded decimal.Decimal
	TaxRate          decimal.Decimal
	WeightGrams      int
}

// FeatureFlags are runtime switches stored alongside the catalog.
type FeatureFlags struct {
	CustomizedItemsAllowed          bool
	ReducedManufacturingTimeAllowed bool
}

// Pagination defines cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
