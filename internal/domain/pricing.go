package domain

import (
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places money is rounded to.
const MoneyPlaces = 2

var one = decimal.NewFromInt(1)

// RoundMoney rounds an aggregate amount to cents. Line amounts are never rounded on their own.
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(MoneyPlaces)
}

// LineTaxExcluded returns the unrounded tax-excluded amount of an item line.
func LineTaxExcluded(item CartItem) decimal.Decimal {
	return item.UnitPriceTaxExcluded.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

// LineTaxIncluded returns the unrounded tax-included amount of an item line.
func LineTaxIncluded(item CartItem) decimal.Decimal {
	return LineTaxExcluded(item).Mul(one.Add(item.TaxRate))
}

// ComputeCartTotals aggregates item lines into cart totals, rounding once per aggregate.
func ComputeCartTotals(items []CartItem) CartTotals {
	excluded := decimal.Zero
	included := decimal.Zero
	buckets := make(map[string]decimal.Decimal)
	weight := 0
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		lineExcl := LineTaxExcluded(item)
		lineIncl := LineTaxIncluded(item)
		excluded = excluded.Add(lineExcl)
		included = included.Add(lineIncl)
		key := item.TaxRate.String()
		buckets[key] = buckets[key].Add(lineIncl.Sub(lineExcl))
		weight += item.WeightGrams * item.Quantity
	}
	for key, amount := range buckets {
		buckets[key] = RoundMoney(amount)
	}
	return CartTotals{
		TaxExcluded: RoundMoney(excluded),
		TaxIncluded: RoundMoney(included),
		WeightGrams: weight,
		TaxBuckets:  buckets,
	}
}

// OrderPricing is the input to ComputeOrderTotals.
type OrderPricing struct {
	Cart                CartTotals
	ShippingTaxExcluded decimal.Decimal
	ShippingTaxIncluded decimal.Decimal
	Surcharge           decimal.Decimal
	Discount            decimal.Decimal
}

// ComputeOrderTotals derives order totals. The surcharge and discount apply to the
// tax-included amount charged to the customer, which never drops below zero.
func ComputeOrderTotals(in OrderPricing) OrderTotals {
	buckets := make(map[string]decimal.Decimal, len(in.Cart.TaxBuckets))
	for key, amount := range in.Cart.TaxBuckets {
		buckets[key] = amount
	}

	withoutShippingIncl := in.Cart.TaxIncluded.Add(in.Surcharge).Sub(in.Discount)
	if withoutShippingIncl.IsNegative() {
		withoutShippingIncl = decimal.Zero
	}
	included := in.Cart.TaxIncluded.Add(in.ShippingTaxIncluded).Add(in.Surcharge).Sub(in.Discount)
	if included.IsNegative() {
		included = decimal.Zero
	}

	return OrderTotals{
		ItemsTaxExcluded:           in.Cart.TaxExcluded,
		ItemsTaxIncluded:           in.Cart.TaxIncluded,
		ShippingTaxExcluded:        RoundMoney(in.ShippingTaxExcluded),
		ShippingTaxIncluded:        RoundMoney(in.ShippingTaxIncluded),
		Surcharge:                  RoundMoney(in.Surcharge),
		Discount:                   RoundMoney(in.Discount),
		TaxBuckets:                 buckets,
		TaxExcluded:                RoundMoney(in.Cart.TaxExcluded.Add(in.ShippingTaxExcluded)),
		TaxIncluded:                RoundMoney(included),
		TaxExcludedWithoutShipping: in.Cart.TaxExcluded,
		TaxIncludedWithoutShipping: RoundMoney(withoutShippingIncl),
		WeightGrams:                in.Cart.WeightGrams,
	}
}

// ToMinorUnits converts a rounded amount to integer cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return RoundMoney(amount).Shift(MoneyPlaces).IntPart()
}
