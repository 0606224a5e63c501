package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/couture-field/checkout/internal/domain"
)

type addressPayload struct {
	Name       string `json:"name"`
	Company    string `json:"company,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	PostalCode string `json:"postalCode"`
	City       string `json:"city"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func (a addressPayload) toDomain() domain.Address {
	return domain.Address{
		Name:       a.Name,
		Company:    a.Company,
		Line1:      a.Line1,
		Line2:      a.Line2,
		PostalCode: a.PostalCode,
		City:       a.City,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

func addressFromDomain(a domain.Address) addressPayload {
	return addressPayload(a)
}

type selectionPayload struct {
	CustomizableID string `json:"customizableId"`
	FabricID       string `json:"fabricId,omitempty"`
	Text           string `json:"text,omitempty"`
}

type cartItemPayload struct {
	ID                   string             `json:"id"`
	Kind                 string             `json:"kind"`
	StockID              string             `json:"stockId,omitempty"`
	ProductID            string             `json:"productId,omitempty"`
	Selections           []selectionPayload `json:"selections,omitempty"`
	Name                 string             `json:"name"`
	Quantity             int                `json:"quantity"`
	UnitPriceTaxExcluded string             `json:"unitPriceTaxExcluded"`
	TaxRate              string             `json:"taxRate"`
	WeightGrams          int                `json:"weightGrams"`
}

type cartPayload struct {
	UserID       string            `json:"userId"`
	Items        []cartItemPayload `json:"items"`
	ItemsCount   int               `json:"itemsCount"`
	TaxExcluded  string            `json:"taxExcluded"`
	TaxIncluded  string            `json:"taxIncluded"`
	WeightGrams  int               `json:"weightGrams"`
	TaxBuckets   map[string]string `json:"taxBuckets,omitempty"`
	DraftOrderID string            `json:"draftOrderId,omitempty"`
	UpdatedAt    string            `json:"updatedAt,omitempty"`
}

func buildCartItems(items []domain.CartItem) []cartItemPayload {
	out := make([]cartItemPayload, 0, len(items))
	for _, item := range items {
		payload := cartItemPayload{
			ID:                   item.ID,
			Kind:                 string(item.Kind),
			StockID:              item.StockID,
			ProductID:            item.ProductID,
			Name:                 item.Name,
			Quantity:             item.Quantity,
			UnitPriceTaxExcluded: item.UnitPriceTaxExcluded.String(),
			TaxRate:              item.TaxRate.String(),
			WeightGrams:          item.WeightGrams,
		}
		for _, sel := range item.Selections {
			payload.Selections = append(payload.Selections, selectionPayload(sel))
		}
		out = append(out, payload)
	}
	return out
}

func buildCartPayload(cart domain.Cart) cartPayload {
	return cartPayload{
		UserID:       cart.UserID,
		Items:        buildCartItems(cart.Items),
		ItemsCount:   len(cart.Items),
		TaxExcluded:  money(cart.Totals.TaxExcluded),
		TaxIncluded:  money(cart.Totals.TaxIncluded),
		WeightGrams:  cart.Totals.WeightGrams,
		TaxBuckets:   moneyMap(cart.Totals.TaxBuckets),
		DraftOrderID: cart.DraftOrderID,
		UpdatedAt:    formatTime(cart.UpdatedAt),
	}
}

type orderTotalsPayload struct {
	ItemsTaxExcluded           string            `json:"itemsTaxExcluded"`
	ItemsTaxIncluded           string            `json:"itemsTaxIncluded"`
	ShippingTaxExcluded        string            `json:"shippingTaxExcluded"`
	ShippingTaxIncluded        string            `json:"shippingTaxIncluded"`
	Surcharge                  string            `json:"surcharge"`
	Discount                   string            `json:"discount"`
	TaxBuckets                 map[string]string `json:"taxBuckets,omitempty"`
	TaxExcluded                string            `json:"taxExcluded"`
	TaxIncluded                string            `json:"taxIncluded"`
	TaxExcludedWithoutShipping string            `json:"taxExcludedWithoutShipping"`
	TaxIncludedWithoutShipping string            `json:"taxIncludedWithoutShipping"`
	WeightGrams                int               `json:"weightGrams"`
}

type giftCardPayload struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

type shippingLabelPayload struct {
	Reference         string `json:"reference"`
	Cost              string `json:"cost"`
	LabelPath         string `json:"labelPath"`
	EstimatedDelivery string `json:"estimatedDelivery,omitempty"`
	PurchasedAt       string `json:"purchasedAt"`
}

type trackingEventPayload struct {
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	OccurredAt string `json:"occurredAt"`
}

type manufacturingTimePayload struct {
	Min  int    `json:"min"`
	Max  int    `json:"max"`
	Unit string `json:"unit"`
}

type orderPayload struct {
	ID                      string                    `json:"id"`
	Status                  string                    `json:"status"`
	WorkflowStep            string                    `json:"workflowStep,omitempty"`
	PaymentMethod           string                    `json:"paymentMethod,omitempty"`
	Currency                string                    `json:"currency"`
	Items                   []cartItemPayload         `json:"items"`
	Email                   string                    `json:"email"`
	BillingAddress          addressPayload            `json:"billingAddress"`
	ShippingAddress         addressPayload            `json:"shippingAddress"`
	Carrier                 string                    `json:"carrier"`
	ReduceManufacturingTime bool                      `json:"reduceManufacturingTimes"`
	PromotionCode           string                    `json:"promotionCode,omitempty"`
	Totals                  orderTotalsPayload        `json:"totals"`
	GiftCards               []giftCardPayload         `json:"giftCards,omitempty"`
	AmountPaidWithGiftCards string                    `json:"amountPaidWithGiftCards,omitempty"`
	ManufacturingTime       *manufacturingTimePayload `json:"manufacturingTime,omitempty"`
	ShippingLabel           *shippingLabelPayload     `json:"shippingLabel,omitempty"`
	Tracking                []trackingEventPayload    `json:"tracking,omitempty"`
	PaidAt                  string                    `json:"paidAt,omitempty"`
	CreatedAt               string                    `json:"createdAt"`
	UpdatedAt               string                    `json:"updatedAt,omitempty"`
}

// buildOrderPayload renders an order for its owner. The payment session is never exposed.
func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:                      order.ID,
		Status:                  string(order.Status),
		WorkflowStep:            string(order.WorkflowStep),
		PaymentMethod:           string(order.PaymentMethod),
		Currency:                order.Currency,
		Items:                   buildCartItems(order.Items),
		Email:                   order.Billing.Email,
		BillingAddress:          addressFromDomain(order.Billing.Address),
		ShippingAddress:         addressFromDomain(order.Shipping.Address),
		Carrier:                 order.Shipping.Carrier,
		ReduceManufacturingTime: order.Extras.ReduceManufacturingTimes,
		PromotionCode:           order.PromotionCode,
		Totals: orderTotalsPayload{
			ItemsTaxExcluded:           money(order.Totals.ItemsTaxExcluded),
			ItemsTaxIncluded:           money(order.Totals.ItemsTaxIncluded),
			ShippingTaxExcluded:        money(order.Totals.ShippingTaxExcluded),
			ShippingTaxIncluded:        money(order.Totals.ShippingTaxIncluded),
			Surcharge:                  money(order.Totals.Surcharge),
			Discount:                   money(order.Totals.Discount),
			TaxBuckets:                 moneyMap(order.Totals.TaxBuckets),
			TaxExcluded:                money(order.Totals.TaxExcluded),
			TaxIncluded:                money(order.Totals.TaxIncluded),
			TaxExcludedWithoutShipping: money(order.Totals.TaxExcludedWithoutShipping),
			TaxIncludedWithoutShipping: money(order.Totals.TaxIncludedWithoutShipping),
			WeightGrams:                order.Totals.WeightGrams,
		},
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}
	for _, card := range order.GiftCards {
		payload.GiftCards = append(payload.GiftCards, giftCardPayload(card))
	}
	if len(order.GiftCards) > 0 {
		payload.AmountPaidWithGiftCards = money(order.AmountPaidWithGiftCards)
	}
	if mt := order.ManufacturingTime; mt != nil {
		payload.ManufacturingTime = &manufacturingTimePayload{Min: mt.Min, Max: mt.Max, Unit: mt.Unit}
	}
	if label := order.ShippingLabel; label != nil {
		payload.ShippingLabel = &shippingLabelPayload{
			Reference:   label.Reference,
			Cost:        money(label.Cost),
			LabelPath:   label.LabelPath,
			PurchasedAt: formatTime(label.PurchasedAt),
		}
		if label.EstimatedDelivery != nil {
			payload.ShippingLabel.EstimatedDelivery = formatTime(*label.EstimatedDelivery)
		}
	}
	for _, event := range order.Tracking {
		payload.Tracking = append(payload.Tracking, trackingEventPayload{
			Status:     event.Status,
			Detail:     event.Detail,
			OccurredAt: formatTime(event.OccurredAt),
		})
	}
	if order.PaidAt != nil {
		payload.PaidAt = formatTime(*order.PaidAt)
	}
	return payload
}

func money(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func moneyMap(values map[string]decimal.Decimal) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		out[key] = money(value)
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
