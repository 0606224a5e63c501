package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	domain "github.com/couture-field/checkout/internal/domain"
	"github.com/couture-field/checkout/internal/shipping"
)

var fixtureNow = time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)

func newCatalogFixture() *stubCatalogRepository {
	return &stubCatalogRepository{
		products: map[string]domain.Product{
			"prd_dress": {
				ID: "prd_dress", Name: "Wrap dress",
				PriceTaxExcluded: money("50"), TaxRate: money("0.2"), WeightGrams: 450,
				CustomizationAllowed: true,
				Customizables: []domain.Customizable{
					{ID: "cz_body", Name: "Body", Kind: domain.CustomizableFabric, FabricGroupIDs: []string{"cotton"}},
					{ID: "cz_name", Name: "Embroidery", Kind: domain.CustomizableText, MaxLength: 12},
				},
			},
		},
		fabrics: map[string]domain.Fabric{
			"fab_linen": {ID: "fab_linen", Name: "Linen", GroupIDs: []string{"cotton"}, PriceTaxExcluded: money("5")},
			"fab_silk":  {ID: "fab_silk", Name: "Silk", GroupIDs: []string{"silk"}, PriceTaxExcluded: money("20")},
		},
		stock: map[string]domain.StockItem{
			"stk_tote": {ID: "stk_tote", Name: "Tote bag", PriceTaxExcluded: money("32"), TaxRate: money("0.25"), WeightGrams: 300},
		},
		mt: &domain.ManufacturingTime{Min: 2, Max: 3, Unit: "weeks"},
	}
}

// stockCart holds two totes: 64.00 excluding tax, 80.00 including tax.
func stockCart(userID string) domain.Cart {
	items := []domain.CartItem{{
		ID: "itm_1", Kind: domain.CartItemInStock, StockID: "stk_tote", Name: "Tote bag",
		Quantity: 2, UnitPriceTaxExcluded: money("32"), TaxRate: money("0.25"), WeightGrams: 300,
	}}
	return domain.Cart{
		UserID:    userID,
		Items:     items,
		Totals:    domain.ComputeCartTotals(items),
		UpdatedAt: fixtureNow.Add(-time.Hour),
	}
}

func customizedItem() domain.CartItem {
	return domain.CartItem{
		ID: "itm_2", Kind: domain.CartItemCustomized, ProductID: "prd_dress", Name: "Wrap dress",
		Selections: []domain.Selection{{CustomizableID: "cz_body", FabricID: "fab_linen"}, {CustomizableID: "cz_name", Text: "Ada"}},
		Quantity:   1, UnitPriceTaxExcluded: money("55"), TaxRate: money("0.2"), WeightGrams: 450,
	}
}

func checkoutAddress() domain.Address {
	return domain.Address{Name: "Ada Lovelace", Line1: "12 rue des Lilas", PostalCode: "75011", City: "Paris", Country: "FR"}
}

func checkoutInput(userID string) CheckoutInput {
	return CheckoutInput{
		UserID:   userID,
		Billing:  domain.Billing{Email: "ada@example.com"},
		Shipping: domain.Shipping{Carrier: "colissimo", Address: checkoutAddress()},
	}
}

type checkoutFixture struct {
	carts      *stubCartRepository
	orders     *stubOrderRepository
	promos     *stubPromotionRepository
	catalog    *stubCatalogRepository
	settings   *stubSettingsRepository
	shipping   *stubShippingPricer
	payments   *stubPaymentProvider
	emails     *stubEmailScheduler
	events     *stubEventPublisher
	uow        *stubUnitOfWork
	evaluator  PromotionEvaluator
	assembler  OrderAssembler
	svc        CheckoutCoordinator
	now        time.Time
	idSequence int
}

func newCheckoutFixture(t *testing.T, carts ...domain.Cart) *checkoutFixture {
	t.Helper()
	f := &checkoutFixture{
		carts:    newStubCartRepository(carts...),
		orders:   newStubOrderRepository(),
		promos:   newStubPromotionRepository(),
		catalog:  newCatalogFixture(),
		settings: &stubSettingsRepository{flags: domain.FeatureFlags{CustomizedItemsAllowed: true, ReducedManufacturingTimeAllowed: true}},
		shipping: &stubShippingPricer{price: shipping.Price{TaxExcluded: money("5.75"), TaxIncluded: money("6.90")}},
		payments: newStubPaymentProvider(),
		emails:   &stubEmailScheduler{},
		events:   &stubEventPublisher{},
		now:      fixtureNow,
	}
	f.uow = &stubUnitOfWork{repos: []snapshotter{f.carts, f.orders, f.promos}}
	clock := func() time.Time { return f.now }

	evaluator, err := NewPromotionEvaluator(PromotionEvaluatorDeps{Promotions: f.promos})
	require.NoError(t, err)
	f.evaluator = evaluator

	assembler, err := NewOrderAssembler(OrderAssemblerDeps{
		Catalog:         f.catalog,
		Shipping:        f.shipping,
		Promotions:      evaluator,
		DefaultCarrier:  "colissimo",
		UrgentSurcharge: money("15"),
		Clock:           clock,
	})
	require.NoError(t, err)
	f.assembler = assembler

	svc, err := NewCheckoutCoordinator(CheckoutCoordinatorDeps{
		UnitOfWork:     f.uow,
		Carts:          f.carts,
		Orders:         f.orders,
		Promotions:     f.promos,
		Settings:       f.settings,
		Assembler:      assembler,
		Payments:       f.payments,
		Emails:         f.emails,
		Events:         f.events,
		DefaultCarrier: "colissimo",
		IDGenerator: func() string {
			f.idSequence++
			return fmt.Sprintf("%04d", f.idSequence)
		},
		Clock: clock,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *checkoutFixture) addPromotion(promo domain.PromotionCode) {
	f.promos.mu.Lock()
	defer f.promos.mu.Unlock()
	f.promos.codes[promo.Code] = promo
}

func (f *checkoutFixture) ctx() context.Context {
	return context.Background()
}

func requireMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(money(want)), "want %s, got %s", want, got)
}
