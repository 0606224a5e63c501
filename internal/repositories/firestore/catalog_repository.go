package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/couture-field/checkout/internal/domain"
	pfirestore "github.com/couture-field/checkout/internal/platform/firestore"
	"github.com/couture-field/checkout/internal/repositories"
)

const (
	productCollection   = "products"
	fabricCollection    = "fabrics"
	stockItemCollection = "stockItems"
	settingsCollection  = "settings"
	manufacturingDocID  = "manufacturing"
	featureFlagsDocID   = "flags"
)

// CatalogRepository exposes the read-only catalog collections.
type CatalogRepository struct {
	products *pfirestore.BaseRepository[productDocument]
	fabrics  *pfirestore.BaseRepository[fabricDocument]
	stock    *pfirestore.BaseRepository[stockItemDocument]
	settings *pfirestore.BaseRepository[manufacturingTimeDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		products: pfirestore.NewBaseRepository[productDocument](provider, productCollection),
		fabrics:  pfirestore.NewBaseRepository[fabricDocument](provider, fabricCollection),
		stock:    pfirestore.NewBaseRepository[stockItemDocument](provider, stockItemCollection),
		settings: pfirestore.NewBaseRepository[manufacturingTimeDocument](provider, settingsCollection),
	}, nil
}

// GetProduct loads a product and its customizables.
func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	product := domain.Product{
		ID:                   doc.ID,
		Name:                 doc.Data.Name,
		PriceTaxExcluded:     decodeDecimal(doc.Data.PriceTaxExcluded),
		TaxRate:              decodeDecimal(doc.Data.TaxRate),
		WeightGrams:          doc.Data.WeightGrams,
		CustomizationAllowed: doc.Data.CustomizationAllowed,
	}
	for _, c := range doc.Data.Customizables {
		product.Customizables = append(product.Customizables, domain.Customizable{
			ID:             c.ID,
			Name:           c.Name,
			Kind:           domain.CustomizableKind(c.Kind),
			FabricGroupIDs: append([]string(nil), c.FabricGroupIDs...),
			MaxLength:      c.MaxLength,
		})
	}
	return product, nil
}

// GetFabric loads a fabric.
func (r *CatalogRepository) GetFabric(ctx context.Context, fabricID string) (domain.Fabric, error) {
	doc, err := r.fabrics.Get(ctx, strings.TrimSpace(fabricID))
	if err != nil {
		return domain.Fabric{}, err
	}
	return domain.Fabric{
		ID:               doc.ID,
		Name:             doc.Data.Name,
		GroupIDs:         append([]string(nil), doc.Data.GroupIDs...),
		PriceTaxExcluded: decodeDecimal(doc.Data.PriceTaxExcluded),
	}, nil
}

// GetStockItem loads a stock keeping unit.
func (r *CatalogRepository) GetStockItem(ctx context.Context, stockID string) (domain.StockItem, error) {
	doc, err := r.stock.Get(ctx, strings.TrimSpace(stockID))
	if err != nil {
		return domain.StockItem{}, err
	}
	return domain.StockItem{
		ID:               doc.ID,
		ProductID:        doc.Data.ProductID,
		Name:             doc.Data.Name,
		PriceTaxExcluded: decodeDecimal(doc.Data.PriceTaxExcluded),
		TaxRate:          decodeDecimal(doc.Data.TaxRate),
		WeightGrams:      doc.Data.WeightGrams,
	}, nil
}

// GetManufacturingTime loads the current lead time estimate.
func (r *CatalogRepository) GetManufacturingTime(ctx context.Context) (domain.ManufacturingTime, error) {
	doc, err := r.settings.Get(ctx, manufacturingDocID)
	if err != nil {
		return domain.ManufacturingTime{}, err
	}
	return domain.ManufacturingTime(doc.Data), nil
}

type customizableDocument struct {
	ID             string   `firestore:"id"`
	Name           string   `firestore:"name"`
	Kind           string   `firestore:"kind"`
	FabricGroupIDs []string `firestore:"fabricGroupIds,omitempty"`
	MaxLength      int      `firestore:"maxLength,omitempty"`
}

type productDocument struct {
	Name                 string                 `firestore:"name"`
	PriceTaxExcluded     string                 `firestore:"priceTaxExcluded"`
	TaxRate              string                 `firestore:"taxRate"`
	WeightGrams          int                    `firestore:"weightGrams"`
	Customizables        []customizableDocument `firestore:"customizables"`
	CustomizationAllowed bool                   `firestore:"customizationAllowed"`
}

type fabricDocument struct {
	Name             string   `firestore:"name"`
	GroupIDs         []string `firestore:"groupIds"`
	PriceTaxExcluded string   `firestore:"priceTaxExcluded"`
}

type stockItemDocument struct {
	ProductID        string `firestore:"productId"`
	Name             string `firestore:"name"`
	PriceTaxExcluded string `firestore:"priceTaxExcluded"`
	TaxRate          string `firestore:"taxRate"`
	WeightGrams      int    `firestore:"weightGrams"`
}

// SettingsRepository reads runtime feature flags from the settings collection.
type SettingsRepository struct {
	base *pfirestore.BaseRepository[featureFlagsDocument]
}

// NewSettingsRepository constructs a Firestore-backed settings repository.
func NewSettingsRepository(provider *pfirestore.Provider) (*SettingsRepository, error) {
	if provider == nil {
		return nil, errors.New("settings repository requires firestore provider")
	}
	return &SettingsRepository{
		base: pfirestore.NewBaseRepository[featureFlagsDocument](provider, settingsCollection),
	}, nil
}

// FeatureFlags loads the flags document.
func (r *SettingsRepository) FeatureFlags(ctx context.Context) (domain.FeatureFlags, error) {
	doc, err := r.base.Get(ctx, featureFlagsDocID)
	if err != nil {
		return domain.FeatureFlags{}, err
	}
	return domain.FeatureFlags(doc.Data), nil
}

type featureFlagsDocument struct {
	CustomizedItemsAllowed          bool `firestore:"customizedItemsAllowed"`
	ReducedManufacturingTimeAllowed bool `firestore:"reducedManufacturingTimeAllowed"`
}

var (
	_ repositories.CatalogRepository  = (*CatalogRepository)(nil)
	_ repositories.SettingsRepository = (*SettingsRepository)(nil)
)
