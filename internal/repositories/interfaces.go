package repositories

import (
	"context"
	"time"

	domain "github.com/couture-field/checkout/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one atomic commit. Repositories called with the
// context passed to fn join the transaction; all reads must precede all writes.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository persists carts keyed by user id.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	SaveCart(ctx context.Context, cart domain.Cart) error
	DeleteCart(ctx context.Context, userID string) error
}

// OrderRepository persists orders. Only drafts are rewritten; committed orders receive
// append-only updates through the dedicated methods.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	Delete(ctx context.Context, orderID string) error
	// ReplaceDraft merges the priced fields and payment session of a draft into the stored document.
	ReplaceDraft(ctx context.Context, order domain.Order) error
	MarkPaid(ctx context.Context, orderID string, method domain.PaymentMethod, paidAt time.Time) error
	AttachShippingLabel(ctx context.Context, orderID string, label domain.ShippingLabel) error
	AppendTracking(ctx context.Context, orderID string, event domain.TrackingEvent, step domain.WorkflowStep) error
	// ListByUser pages through the user's orders, newest first.
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
}

// PromotionRepository reads promotion codes and maintains their usage counter.
type PromotionRepository interface {
	FindByCode(ctx context.Context, code string) (domain.PromotionCode, error)
	// IncrementUsage atomically adds one use to the code. It performs no read, so callers inside a
	// transaction check exhaustion on the value returned by FindByCode first.
	IncrementUsage(ctx context.Context, code string) error
}

// CatalogRepository resolves the read-only catalog references carried by cart items.
type CatalogRepository interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	GetFabric(ctx context.Context, fabricID string) (domain.Fabric, error)
	GetStockItem(ctx context.Context, stockID string) (domain.StockItem, error)
	GetManufacturingTime(ctx context.Context) (domain.ManufacturingTime, error)
}

// SettingsRepository exposes runtime feature flags.
type SettingsRepository interface {
	FeatureFlags(ctx context.Context) (domain.FeatureFlags, error)
}

// HealthRepository aggregates dependency health signals for readiness endpoints.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
