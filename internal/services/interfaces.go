package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/couture-field/checkout/internal/domain"
	"github.com/couture-field/checkout/internal/payments"
	"github.com/couture-field/checkout/internal/shipping"
)

// PaymentProvider is the hosted payment-session collaborator.
type PaymentProvider interface {
	CreateSession(ctx context.Context, req payments.SessionRequest) (payments.Session, error)
	IsSessionExpired(ctx context.Context, sessionID string) (bool, error)
	CancelSession(ctx context.Context, sessionID string) error
}

// PaymentWebhookVerifier authenticates inbound provider webhooks.
type PaymentWebhookVerifier interface {
	VerifyWebhook(payload []byte, signature string) (payments.WebhookEvent, error)
}

// ShippingPricer quotes shipping costs and purchases labels.
type ShippingPricer interface {
	GetPrice(ctx context.Context, carrier string, weightGrams int) (shipping.Price, error)
	BuyShippingLabel(ctx context.Context, req shipping.LabelRequest) (shipping.Label, error)
}

// LabelStore persists purchased label documents and returns their storage path.
type LabelStore interface {
	SaveLabel(ctx context.Context, orderID string, pdf []byte) (string, error)
}

// EmailScheduler schedules transactional emails. Delivery is at-least-once.
type EmailScheduler interface {
	ScheduleSend(ctx context.Context, templateKey, recipient string, vars map[string]string) error
}

// OrderEventMessage is the payload published when an order is committed.
type OrderEventMessage struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"orderId"`
	UserID        string    `json:"userId"`
	Status        string    `json:"status"`
	PaymentMethod string    `json:"paymentMethod"`
	Total         string    `json:"total"`
	Currency      string    `json:"currency"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// OrderEventPublisher publishes order lifecycle events.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// PromotionEvaluator validates and prices promotion codes. It never mutates usage counters.
type PromotionEvaluator interface {
	Evaluate(ctx context.Context, query PromotionQuery) (PromotionEvaluation, error)
}

// PromotionQuery carries the amounts a promotion code is priced against.
type PromotionQuery struct {
	Code         string
	CartTotal    decimal.Decimal
	Surcharge    decimal.Decimal
	ShippingCost decimal.Decimal
	Now          time.Time
}

// PromotionEvaluation is the accepted promotion and the discount it grants.
type PromotionEvaluation struct {
	Promotion domain.PromotionCode
	Discount  decimal.Decimal
}

// OrderAssembler prices a cart into an order snapshot without persisting anything.
type OrderAssembler interface {
	Assemble(ctx context.Context, cmd AssembleCommand) (domain.Order, error)
}

// AssembleCommand is the input of OrderAssembler.Assemble.
type AssembleCommand struct {
	OrderID       string
	Cart          domain.Cart
	UserID        string
	Billing       domain.Billing
	Shipping      domain.Shipping
	Extras        domain.Extras
	PromotionCode string
	Status        domain.OrderStatus
}

// CheckoutInput is the customer-supplied part of every checkout request.
type CheckoutInput struct {
	UserID        string
	Billing       domain.Billing
	Shipping      domain.Shipping
	Extras        domain.Extras
	PromotionCode string
}

// CardCheckoutResult is the hosted payment page the customer is redirected to.
type CardCheckoutResult struct {
	OrderID     string
	RedirectURL string
	Reused      bool
}

// GiftCardCheckoutInput adds the gift cards used to pay the order.
type GiftCardCheckoutInput struct {
	CheckoutInput
	GiftCards []domain.GiftCard
}

// CartEdit mutates a cart in memory. It runs inside a transaction and may run more than once.
type CartEdit func(cart *domain.Cart) error

// CheckoutCoordinator is the order state machine.
type CheckoutCoordinator interface {
	CreateCardCheckoutSession(ctx context.Context, in CheckoutInput) (CardCheckoutResult, error)
	CreateBankTransferOrder(ctx context.Context, in CheckoutInput) (domain.Order, error)
	CreatePayByGiftCardOrder(ctx context.Context, in GiftCardCheckoutInput) (domain.Order, error)
	ConfirmCardPayment(ctx context.Context, orderID string) (domain.Order, error)
	InvalidateDraft(ctx context.Context, userID string, edit CartEdit) (domain.Cart, error)
}

// CartMutation is one of ChangeQuantity, AddCustomizedItem or AddInStockItem.
type CartMutation interface {
	isCartMutation()
}

// ChangeQuantity sets the quantity of an existing item. Zero removes it.
type ChangeQuantity struct {
	ItemID   string
	Quantity int
}

// AddCustomizedItem adds a product with per-customizable selections.
type AddCustomizedItem struct {
	ProductID  string
	Selections []domain.Selection
	Quantity   int
}

// AddInStockItem adds a ready-made stock item.
type AddInStockItem struct {
	StockID  string
	Quantity int
}

func (ChangeQuantity) isCartMutation()    {}
func (AddCustomizedItem) isCartMutation() {}
func (AddInStockItem) isCartMutation()    {}

// CartService reads and edits carts.
type CartService interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	EditCart(ctx context.Context, userID string, mutation CartMutation) (domain.Cart, error)
}

// WebhookResult is the HTTP status returned to the payment provider.
type WebhookResult struct {
	Status  int
	OrderID string
	Reason  string
}

// WebhookIngress verifies and dispatches payment provider webhooks.
type WebhookIngress interface {
	Ingest(ctx context.Context, payload []byte, signature string) WebhookResult
}

// OrderService exposes order reads to their owner.
type OrderService interface {
	GetOrder(ctx context.Context, userID, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
}

// TrackingUpdate is a carrier status notification for an order.
type TrackingUpdate struct {
	OrderID    string
	Status     string
	Detail     string
	Delivered  bool
	OccurredAt time.Time
}

// FulfillmentService drives the post-payment workflow.
type FulfillmentService interface {
	PurchaseShippingLabel(ctx context.Context, orderID string) (domain.Order, error)
	RecordTracking(ctx context.Context, update TrackingUpdate) (domain.Order, error)
}

// SystemService exposes health diagnostics.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
}
