package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	domain "github.com/couture-field/checkout/internal/domain"
	"github.com/couture-field/checkout/internal/repositories"
	"github.com/couture-field/checkout/internal/shipping"
)

const catalogLookupConcurrency = 8

// OrderAssemblerDeps wires the order assembler.
type OrderAssemblerDeps struct {
	Catalog         repositories.CatalogRepository
	Shipping        ShippingPricer
	Promotions      PromotionEvaluator
	Currency        string
	DefaultCarrier  string
	UrgentSurcharge decimal.Decimal
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type orderAssembler struct {
	catalog        repositories.CatalogRepository
	shipping       ShippingPricer
	promotions     PromotionEvaluator
	currency       string
	defaultCarrier string
	surcharge      decimal.Decimal
	now            func() time.Time
	logger         func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderAssembler constructs an OrderAssembler validating required dependencies.
func NewOrderAssembler(deps OrderAssemblerDeps) (OrderAssembler, error) {
	if deps.Catalog == nil {
		return nil, errors.New("order assembler: catalog repository is required")
	}
	if deps.Shipping == nil {
		return nil, errors.New("order assembler: shipping pricer is required")
	}
	if deps.Promotions == nil {
		return nil, errors.New("order assembler: promotion evaluator is required")
	}
	if deps.UrgentSurcharge.IsNegative() {
		return nil, errors.New("order assembler: urgent surcharge must not be negative")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "EUR"
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderAssembler{
		catalog:        deps.Catalog,
		shipping:       deps.Shipping,
		promotions:     deps.Promotions,
		currency:       currency,
		defaultCarrier: strings.TrimSpace(deps.DefaultCarrier),
		surcharge:      deps.UrgentSurcharge,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Assemble resolves catalog references, quotes shipping once and derives the order totals.
// It never writes to the store.
func (a *orderAssembler) Assemble(ctx context.Context, cmd AssembleCommand) (domain.Order, error) {
	cart := cmd.Cart
	if len(cart.Items) == 0 {
		return domain.Order{}, ErrCheckoutInvalidInput
	}
	if !cmd.Status.Valid() {
		return domain.Order{}, ErrCheckoutInvalidInput
	}
	shippingInfo := cmd.Shipping
	if strings.TrimSpace(shippingInfo.Carrier) == "" {
		shippingInfo.Carrier = a.defaultCarrier
	}
	if shippingInfo.Carrier == "" {
		return domain.Order{}, ErrCheckoutInvalidInput
	}

	cartTotals := domain.ComputeCartTotals(cart.Items)

	var (
		price             shipping.Price
		manufacturingTime *domain.ManufacturingTime
	)
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(catalogLookupConcurrency)
	group.Go(func() error {
		quoted, err := a.shipping.GetPrice(gctx, shippingInfo.Carrier, cartTotals.WeightGrams)
		if err != nil {
			a.logger(ctx, "checkout.shipping.price_failed", map[string]any{
				"carrier": shippingInfo.Carrier,
				"error":   err.Error(),
			})
			return ErrCheckoutShippingFailed
		}
		price = quoted
		return nil
	})
	if cart.HasCustomizedItems() {
		group.Go(func() error {
			mt, err := a.catalog.GetManufacturingTime(gctx)
			if err != nil {
				a.logger(ctx, "checkout.manufacturing_time.unavailable", map[string]any{"error": err.Error()})
				return nil
			}
			manufacturingTime = &mt
			return nil
		})
	}
	for _, item := range cart.Items {
		item := item
		group.Go(func() error {
			return a.resolveItem(gctx, item)
		})
	}
	if err := group.Wait(); err != nil {
		return domain.Order{}, translateStoreError(err, ErrCheckoutReferenceNotFound)
	}

	surcharge := decimal.Zero
	if cmd.Extras.ReduceManufacturingTimes {
		surcharge = a.surcharge
	}

	now := a.now()
	promotionCode := NormalizePromotionCode(cmd.PromotionCode)
	discount := decimal.Zero
	if promotionCode != "" {
		evaluation, err := a.promotions.Evaluate(ctx, PromotionQuery{
			Code:         promotionCode,
			CartTotal:    cartTotals.TaxIncluded,
			Surcharge:    surcharge,
			ShippingCost: price.TaxIncluded,
			Now:          now,
		})
		if err != nil {
			return domain.Order{}, err
		}
		discount = evaluation.Discount
	}

	billing := cmd.Billing
	billing.Session = domain.PaymentSession{}
	if cmd.Status == domain.OrderStatusDraft {
		billing.Session = domain.PendingPaymentSession
	}

	return domain.Order{
		ID:            strings.TrimSpace(cmd.OrderID),
		UserID:        strings.TrimSpace(cmd.UserID),
		Status:        cmd.Status,
		Currency:      a.currency,
		Items:         append([]domain.CartItem(nil), cart.Items...),
		Billing:       billing,
		Shipping:      shippingInfo,
		Extras:        cmd.Extras,
		PromotionCode: promotionCode,
		Totals: domain.ComputeOrderTotals(domain.OrderPricing{
			Cart:                cartTotals,
			ShippingTaxExcluded: price.TaxExcluded,
			ShippingTaxIncluded: price.TaxIncluded,
			Surcharge:           surcharge,
			Discount:            discount,
		}),
		ManufacturingTime: manufacturingTime,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (a *orderAssembler) resolveItem(ctx context.Context, item domain.CartItem) error {
	switch item.Kind {
	case domain.CartItemInStock:
		if _, err := a.catalog.GetStockItem(ctx, item.StockID); err != nil {
			return translateStoreError(err, ErrCheckoutReferenceNotFound)
		}
		return nil
	case domain.CartItemCustomized:
		product, err := a.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			return translateStoreError(err, ErrCheckoutReferenceNotFound)
		}
		for _, selection := range item.Selections {
			customizable, ok := product.Customizable(selection.CustomizableID)
			if !ok {
				return ErrCheckoutReferenceNotFound
			}
			switch customizable.Kind {
			case domain.CustomizableFabric:
				fabric, err := a.catalog.GetFabric(ctx, selection.FabricID)
				if err != nil {
					return translateStoreError(err, ErrCheckoutReferenceNotFound)
				}
				if !fabric.InGroup(customizable.FabricGroupIDs) {
					return ErrCheckoutReferenceNotFound
				}
			case domain.CustomizableText:
			default:
				return ErrCheckoutReferenceNotFound
			}
		}
		return nil
	}
	return ErrCheckoutInvalidInput
}
