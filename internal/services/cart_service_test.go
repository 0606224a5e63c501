package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/couture-field/checkout/internal/domain"
)

func newCartServiceFixture(t *testing.T, carts ...domain.Cart) (*checkoutFixture, CartService) {
	t.Helper()
	f := newCheckoutFixture(t, carts...)
	seq := 0
	svc, err := NewCartService(CartServiceDeps{
		Carts:       f.carts,
		Catalog:     f.catalog,
		Coordinator: f.svc,
		IDGenerator: func() string {
			seq++
			return string(rune('A' + seq - 1))
		},
	})
	require.NoError(t, err)
	return f, svc
}

func TestCartServiceAddInStockItemMergesLines(t *testing.T) {
	f, svc := newCartServiceFixture(t)

	cart, err := svc.EditCart(f.ctx(), "usr_1", AddInStockItem{StockID: "stk_tote", Quantity: 1})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	require.Equal(t, "itm_A", cart.Items[0].ID)
	requireMoney(t, "40", cart.Totals.TaxIncluded)

	cart, err = svc.EditCart(f.ctx(), "usr_1", AddInStockItem{StockID: "stk_tote", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	require.Equal(t, 3, cart.Items[0].Quantity)
	requireMoney(t, "120", cart.Totals.TaxIncluded)
	require.Equal(t, 900, cart.Totals.WeightGrams)

	stored, ok := f.carts.cart("usr_1")
	require.True(t, ok)
	require.Equal(t, cart.Items, stored.Items)
}

func TestCartServiceAddCustomizedItemPricesFabric(t *testing.T) {
	f, svc := newCartServiceFixture(t)

	cart, err := svc.EditCart(f.ctx(), "usr_1", AddCustomizedItem{
		ProductID: "prd_dress",
		Quantity:  1,
		Selections: []domain.Selection{
			{CustomizableID: "cz_name", Text: "<b>Ada</b> &amp; Bo"},
			{CustomizableID: "cz_body", FabricID: "fab_linen"},
		},
	})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	item := cart.Items[0]
	require.Equal(t, domain.CartItemCustomized, item.Kind)
	requireMoney(t, "55", item.UnitPriceTaxExcluded)
	require.Equal(t, []domain.Selection{
		{CustomizableID: "cz_body", FabricID: "fab_linen"},
		{CustomizableID: "cz_name", Text: "Ada & Bo"},
	}, item.Selections)
}

func TestCartServiceRejectsInvalidCustomization(t *testing.T) {
	tests := []struct {
		name       string
		selections []domain.Selection
		want       error
	}{
		{
			name:       "fabric outside allowed groups",
			selections: []domain.Selection{{CustomizableID: "cz_body", FabricID: "fab_silk"}, {CustomizableID: "cz_name", Text: "Ada"}},
			want:       ErrCartReferenceNotFound,
		},
		{
			name:       "unknown customizable",
			selections: []domain.Selection{{CustomizableID: "cz_sleeve", FabricID: "fab_linen"}},
			want:       ErrCartReferenceNotFound,
		},
		{
			name:       "missing customizable",
			selections: []domain.Selection{{CustomizableID: "cz_body", FabricID: "fab_linen"}},
			want:       ErrCartInvalidInput,
		},
		{
			name:       "text too long",
			selections: []domain.Selection{{CustomizableID: "cz_body", FabricID: "fab_linen"}, {CustomizableID: "cz_name", Text: "Augusta Ada King"}},
			want:       ErrCartInvalidInput,
		},
		{
			name:       "markup only text",
			selections: []domain.Selection{{CustomizableID: "cz_body", FabricID: "fab_linen"}, {CustomizableID: "cz_name", Text: "<script></script>"}},
			want:       ErrCartInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, svc := newCartServiceFixture(t)
			_, err := svc.EditCart(f.ctx(), "usr_1", AddCustomizedItem{ProductID: "prd_dress", Quantity: 1, Selections: tt.selections})
			require.ErrorIs(t, err, tt.want)
			_, ok := f.carts.cart("usr_1")
			require.False(t, ok, "rejected edits write nothing")
		})
	}
}

func TestCartServiceChangeQuantity(t *testing.T) {
	f, svc := newCartServiceFixture(t, stockCart("usr_1"))

	cart, err := svc.EditCart(f.ctx(), "usr_1", ChangeQuantity{ItemID: "itm_1", Quantity: 1})
	require.NoError(t, err)
	requireMoney(t, "40", cart.Totals.TaxIncluded)

	_, err = svc.EditCart(f.ctx(), "usr_1", ChangeQuantity{ItemID: "itm_missing", Quantity: 1})
	require.ErrorIs(t, err, ErrCartReferenceNotFound)

	_, err = svc.EditCart(f.ctx(), "usr_1", ChangeQuantity{ItemID: "itm_1", Quantity: -1})
	require.ErrorIs(t, err, ErrCartInvalidInput)

	cart, err = svc.EditCart(f.ctx(), "usr_1", ChangeQuantity{ItemID: "itm_1", Quantity: 0})
	require.NoError(t, err)
	require.Empty(t, cart.Items)
	require.True(t, cart.Totals.TaxIncluded.IsZero())
}

func TestCartServiceEditInvalidatesDraft(t *testing.T) {
	f, svc := newCartServiceFixture(t, stockCart("usr_1"))
	result, err := f.svc.CreateCardCheckoutSession(f.ctx(), checkoutInput("usr_1"))
	require.NoError(t, err)

	cart, err := svc.EditCart(f.ctx(), "usr_1", AddInStockItem{StockID: "stk_tote", Quantity: 1})
	require.NoError(t, err)
	require.Empty(t, cart.DraftOrderID)
	require.Equal(t, []string{"cs_1"}, f.payments.cancelled)
	_, ok := f.orders.order(result.OrderID)
	require.False(t, ok)
}

func TestCartServiceUnknownStockItem(t *testing.T) {
	f, svc := newCartServiceFixture(t)
	_, err := svc.EditCart(f.ctx(), "usr_1", AddInStockItem{StockID: "stk_gone", Quantity: 1})
	require.ErrorIs(t, err, ErrCartReferenceNotFound)
	_, err = svc.EditCart(f.ctx(), "usr_1", nil)
	require.ErrorIs(t, err, ErrCartInvalidInput)
}
