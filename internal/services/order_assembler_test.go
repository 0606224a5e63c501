package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/couture-field/checkout/internal/domain"
)

func TestOrderAssemblerPricesCart(t *testing.T) {
	f := newCheckoutFixture(t)
	cart := stockCart("usr_1")
	cart.Items = append(cart.Items, customizedItem())

	in := checkoutInput("usr_1")
	order, err := f.assembler.Assemble(context.Background(), AssembleCommand{
		OrderID:  "ord_x",
		Cart:     cart,
		UserID:   "usr_1",
		Billing:  in.Billing,
		Shipping: in.Shipping,
		Extras:   domain.Extras{ReduceManufacturingTimes: true},
		Status:   domain.OrderStatusDraft,
	})
	require.NoError(t, err)

	require.Equal(t, "ord_x", order.ID)
	require.Equal(t, domain.OrderStatusDraft, order.Status)
	require.Equal(t, "EUR", order.Currency)
	require.Equal(t, domain.PendingPaymentSession, order.Billing.Session)
	require.NotNil(t, order.ManufacturingTime)
	require.Equal(t, 1050, order.Totals.WeightGrams)
	// 80 + 66 items, 6.90 shipping, 15 surcharge.
	requireMoney(t, "146", order.Totals.ItemsTaxIncluded)
	requireMoney(t, "167.9", order.Totals.TaxIncluded)
	requireMoney(t, "119", order.Totals.ItemsTaxExcluded)
	requireMoney(t, "124.75", order.Totals.TaxExcluded)
	requireMoney(t, "15", order.Totals.Surcharge)
	require.Equal(t, fixtureNow, order.CreatedAt)
	require.Equal(t, 1, f.shipping.priceCalls)
}

func TestOrderAssemblerAppliesPromotion(t *testing.T) {
	f := newCheckoutFixture(t)
	f.addPromotion(domain.PromotionCode{Code: "SUMMER10", Type: domain.DiscountPercentage, Discount: money("10"), UsageLimit: 100, Used: 5, MinAmount: money("50")})

	in := checkoutInput("usr_1")
	order, err := f.assembler.Assemble(context.Background(), AssembleCommand{
		OrderID: "ord_x", Cart: stockCart("usr_1"), UserID: "usr_1",
		Billing: in.Billing, Shipping: in.Shipping, PromotionCode: " summer10 ",
		Status: domain.OrderStatusWaitingBankTransfer,
	})
	require.NoError(t, err)
	require.Equal(t, "SUMMER10", order.PromotionCode)
	requireMoney(t, "8", order.Totals.Discount)
	requireMoney(t, "78.9", order.Totals.TaxIncluded)
	require.Equal(t, domain.PaymentSession{}, order.Billing.Session)
	require.Nil(t, order.ManufacturingTime, "stock-only carts carry no manufacturing time")
	require.Equal(t, 5, f.promos.codes["SUMMER10"].Used)
}

func TestOrderAssemblerFreeShippingDiscount(t *testing.T) {
	f := newCheckoutFixture(t)
	f.addPromotion(domain.PromotionCode{Code: "SHIPFREE", Type: domain.DiscountFreeShipping})

	in := checkoutInput("usr_1")
	order, err := f.assembler.Assemble(context.Background(), AssembleCommand{
		OrderID: "ord_x", Cart: stockCart("usr_1"), UserID: "usr_1",
		Billing: in.Billing, Shipping: in.Shipping, PromotionCode: "SHIPFREE",
		Status: domain.OrderStatusDraft,
	})
	require.NoError(t, err)
	requireMoney(t, "80", order.Totals.TaxIncluded)
}

func TestOrderAssemblerFailures(t *testing.T) {
	in := checkoutInput("usr_1")
	base := func() AssembleCommand {
		return AssembleCommand{OrderID: "ord_x", Cart: stockCart("usr_1"), UserID: "usr_1", Billing: in.Billing, Shipping: in.Shipping, Status: domain.OrderStatusDraft}
	}

	t.Run("empty cart", func(t *testing.T) {
		f := newCheckoutFixture(t)
		cmd := base()
		cmd.Cart.Items = nil
		_, err := f.assembler.Assemble(context.Background(), cmd)
		require.ErrorIs(t, err, ErrCheckoutInvalidInput)
	})

	t.Run("shipping outage", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.shipping.priceErr = errors.New("carrier down")
		_, err := f.assembler.Assemble(context.Background(), base())
		require.ErrorIs(t, err, ErrCheckoutShippingFailed)
	})

	t.Run("deleted stock item", func(t *testing.T) {
		f := newCheckoutFixture(t)
		delete(f.catalog.stock, "stk_tote")
		_, err := f.assembler.Assemble(context.Background(), base())
		require.ErrorIs(t, err, ErrCheckoutReferenceNotFound)
	})

	t.Run("fabric left its group", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.catalog.fabrics["fab_linen"] = domain.Fabric{ID: "fab_linen", GroupIDs: []string{"wool"}}
		cmd := base()
		cmd.Cart.Items = []domain.CartItem{customizedItem()}
		_, err := f.assembler.Assemble(context.Background(), cmd)
		require.ErrorIs(t, err, ErrCheckoutReferenceNotFound)
	})

	t.Run("catalog outage", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.catalog.outageErr = &stubRepoError{err: errors.New("down"), unavailable: true}
		_, err := f.assembler.Assemble(context.Background(), base())
		require.ErrorIs(t, err, ErrCheckoutUnavailable)
	})

	t.Run("rejected promotion", func(t *testing.T) {
		f := newCheckoutFixture(t)
		cmd := base()
		cmd.PromotionCode = "UNKNOWN"
		_, err := f.assembler.Assemble(context.Background(), cmd)
		require.ErrorIs(t, err, ErrPromotionCodeNotFound)
	})
}
