package firestore

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/couture-field/checkout/internal/domain"
)

// Amounts are stored as decimal strings so no precision is lost on the float64 round trip.

func encodeDecimal(value decimal.Decimal) string {
	return value.String()
}

func decodeDecimal(value string) decimal.Decimal {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero
	}
	return parsed
}

func encodeBuckets(buckets map[string]decimal.Decimal) map[string]string {
	if len(buckets) == 0 {
		return nil
	}
	out := make(map[string]string, len(buckets))
	for rate, amount := range buckets {
		out[rate] = encodeDecimal(amount)
	}
	return out
}

func decodeBuckets(buckets map[string]string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(buckets))
	for rate, amount := range buckets {
		out[rate] = decodeDecimal(amount)
	}
	return out
}

type addressDocument struct {
	Name       string `firestore:"name"`
	Company    string `firestore:"company,omitempty"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	PostalCode string `firestore:"postalCode"`
	City       string `firestore:"city"`
	Country    string `firestore:"country"`
	Phone      string `firestore:"phone,omitempty"`
}

func encodeAddress(a domain.Address) addressDocument {
	return addressDocument(a)
}

func decodeAddress(doc addressDocument) domain.Address {
	return domain.Address(doc)
}

type selectionDocument struct {
	CustomizableID string `firestore:"customizableId"`
	FabricID       string `firestore:"fabricId,omitempty"`
	Text           string `firestore:"text,omitempty"`
}

type cartItemDocument struct {
	ID                   string              `firestore:"id"`
	Kind                 string              `firestore:"kind"`
	StockID              string              `firestore:"stockId,omitempty"`
	ProductID            string              `firestore:"productId,omitempty"`
	Selections           []selectionDocument `firestore:"selections,omitempty"`
	Name                 string              `firestore:"name"`
	Quantity             int                 `firestore:"quantity"`
	UnitPriceTaxExcluded string              `firestore:"unitPriceTaxExcluded"`
	TaxRate              string              `firestore:"taxRate"`
	WeightGrams          int                 `firestore:"weightGrams"`
}

func encodeItems(items []domain.CartItem) []cartItemDocument {
	out := make([]cartItemDocument, 0, len(items))
	for _, item := range items {
		doc := cartItemDocument{
			ID:                   item.ID,
			Kind:                 string(item.Kind),
			StockID:              item.StockID,
			ProductID:            item.ProductID,
			Name:                 item.Name,
			Quantity:             item.Quantity,
			UnitPriceTaxExcluded: encodeDecimal(item.UnitPriceTaxExcluded),
			TaxRate:              encodeDecimal(item.TaxRate),
			WeightGrams:          item.WeightGrams,
		}
		for _, sel := range item.Selections {
			doc.Selections = append(doc.Selections, selectionDocument(sel))
		}
		out = append(out, doc)
	}
	return out
}

func decodeItems(docs []cartItemDocument) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(docs))
	for _, doc := range docs {
		item := domain.CartItem{
			ID:                   doc.ID,
			Kind:                 domain.CartItemKind(doc.Kind),
			StockID:              doc.StockID,
			ProductID:            doc.ProductID,
			Name:                 doc.Name,
			Quantity:             doc.Quantity,
			UnitPriceTaxExcluded: decodeDecimal(doc.UnitPriceTaxExcluded),
			TaxRate:              decodeDecimal(doc.TaxRate),
			WeightGrams:          doc.WeightGrams,
		}
		for _, sel := range doc.Selections {
			item.Selections = append(item.Selections, domain.Selection(sel))
		}
		out = append(out, item)
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
