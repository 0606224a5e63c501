package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/couture-field/checkout/internal/domain"
	pfirestore "github.com/couture-field/checkout/internal/platform/firestore"
	"github.com/couture-field/checkout/internal/platform/pagination"
	"github.com/couture-field/checkout/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists orders within Firestore.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
	now  func() time.Time
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base: pfirestore.NewBaseRepository[orderDocument](provider, orderCollection),
		now:  time.Now,
	}, nil
}

// Insert creates the order document, failing with a conflict when the id is taken.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if err := r.ready(); err != nil {
		return err
	}
	err := r.base.Create(ctx, strings.TrimSpace(order.ID), encodeOrder(order))
	return err
}

// FindByID loads the order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if err := r.ready(); err != nil {
		return domain.Order{}, err
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// Delete removes the order document.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.base.Delete(ctx, strings.TrimSpace(orderID))
}

// ReplaceDraft rewrites the priced snapshot and payment session of an existing draft.
func (r *OrderRepository) ReplaceDraft(ctx context.Context, order domain.Order) error {
	if err := r.ready(); err != nil {
		return err
	}
	doc := encodeOrder(order)
	updates := []firestore.Update{
		{Path: "items", Value: doc.Items},
		{Path: "billing", Value: doc.Billing},
		{Path: "shipping", Value: doc.Shipping},
		{Path: "extras", Value: doc.Extras},
		{Path: "promotionCode", Value: doc.PromotionCode},
		{Path: "totals", Value: doc.Totals},
		{Path: "currency", Value: doc.Currency},
		{Path: "manufacturingTime", Value: doc.ManufacturingTime},
		{Path: "updatedAt", Value: r.now().UTC()},
	}
	err := r.base.Update(ctx, strings.TrimSpace(order.ID), updates)
	return err
}

// MarkPaid moves a draft to paid and starts its fulfilment workflow.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID string, method domain.PaymentMethod, paidAt time.Time) error {
	if err := r.ready(); err != nil {
		return err
	}
	updates := []firestore.Update{
		{Path: "status", Value: string(domain.OrderStatusPaid)},
		{Path: "paymentMethod", Value: string(method)},
		{Path: "workflowStep", Value: string(domain.WorkflowInProduction)},
		{Path: "paidAt", Value: paidAt.UTC()},
		{Path: "updatedAt", Value: paidAt.UTC()},
	}
	err := r.base.Update(ctx, strings.TrimSpace(orderID), updates)
	return err
}

// AttachShippingLabel records the purchased label and moves the order to shipping.
func (r *OrderRepository) AttachShippingLabel(ctx context.Context, orderID string, label domain.ShippingLabel) error {
	if err := r.ready(); err != nil {
		return err
	}
	updates := []firestore.Update{
		{Path: "shippingLabel", Value: encodeLabel(label)},
		{Path: "workflowStep", Value: string(domain.WorkflowShipping)},
		{Path: "updatedAt", Value: r.now().UTC()},
	}
	err := r.base.Update(ctx, strings.TrimSpace(orderID), updates)
	return err
}

// AppendTracking adds a tracking event and sets the workflow step.
func (r *OrderRepository) AppendTracking(ctx context.Context, orderID string, event domain.TrackingEvent, step domain.WorkflowStep) error {
	if err := r.ready(); err != nil {
		return err
	}
	updates := []firestore.Update{
		{Path: "tracking", Value: firestore.ArrayUnion(trackingDocument{
			Status:     event.Status,
			Detail:     event.Detail,
			OccurredAt: event.OccurredAt.UTC(),
		})},
		{Path: "workflowStep", Value: string(step)},
		{Path: "updatedAt", Value: r.now().UTC()},
	}
	err := r.base.Update(ctx, strings.TrimSpace(orderID), updates)
	return err
}

// ListByUser returns one page of the user's orders ordered by creation time, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	if err := r.ready(); err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("orders.list: user id is required")
	}

	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("orders.list: %w", err)
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := 0
	if limit > 0 {
		fetchLimit = limit + 1
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", userID).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	nextToken := ""
	if fetchLimit > 0 && len(docs) == fetchLimit {
		docs = docs[:limit]
		last := docs[len(docs)-1]
		nextToken, err = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.Data.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeOrder(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: nextToken}, nil
}

func (r *OrderRepository) ready() error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	return nil
}

type billingDocument struct {
	Email      string          `firestore:"email"`
	Address    addressDocument `firestore:"address"`
	SessionID  string          `firestore:"sessionId,omitempty"`
	SessionURL string          `firestore:"sessionUrl,omitempty"`
}

type shippingDocument struct {
	Carrier string          `firestore:"carrier"`
	Address addressDocument `firestore:"address"`
}

type extrasDocument struct {
	ReduceManufacturingTimes bool `firestore:"reduceManufacturingTimes"`
}

type orderTotalsDocument struct {
	ItemsTaxExcluded           string            `firestore:"itemsTaxExcluded"`
	ItemsTaxIncluded           string            `firestore:"itemsTaxIncluded"`
	ShippingTaxExcluded        string            `firestore:"shippingTaxExcluded"`
	ShippingTaxIncluded        string            `firestore:"shippingTaxIncluded"`
	Surcharge                  string            `firestore:"surcharge"`
	Discount                   string            `firestore:"discount"`
	TaxBuckets                 map[string]string `firestore:"taxBuckets,omitempty"`
	TaxExcluded                string            `firestore:"taxExcluded"`
	TaxIncluded                string            `firestore:"taxIncluded"`
	TaxExcludedWithoutShipping string            `firestore:"taxExcludedWithoutShipping"`
	TaxIncludedWithoutShipping string            `firestore:"taxIncludedWithoutShipping"`
	WeightGrams                int               `firestore:"weightGrams"`
}

type giftCardDocument struct {
	Code   string `firestore:"code"`
	Amount string `firestore:"amount"`
}

type manufacturingTimeDocument struct {
	Min  int    `firestore:"min"`
	Max  int    `firestore:"max"`
	Unit string `firestore:"unit"`
}

type shippingLabelDocument struct {
	Reference         string     `firestore:"reference"`
	Cost              string     `firestore:"cost"`
	LabelPath         string     `firestore:"labelPath"`
	EstimatedDelivery *time.Time `firestore:"estimatedDelivery,omitempty"`
	PurchasedAt       time.Time  `firestore:"purchasedAt"`
}

type trackingDocument struct {
	Status     string    `firestore:"status"`
	Detail     string    `firestore:"detail,omitempty"`
	OccurredAt time.Time `firestore:"occurredAt"`
}

type orderDocument struct {
	UserID                  string                     `firestore:"userId"`
	Status                  string                     `firestore:"status"`
	WorkflowStep            string                     `firestore:"workflowStep,omitempty"`
	PaymentMethod           string                     `firestore:"paymentMethod,omitempty"`
	Currency                string                     `firestore:"currency"`
	Items                   []cartItemDocument         `firestore:"items"`
	Billing                 billingDocument            `firestore:"billing"`
	Shipping                shippingDocument           `firestore:"shipping"`
	Extras                  extrasDocument             `firestore:"extras"`
	PromotionCode           string                     `firestore:"promotionCode"`
	Totals                  orderTotalsDocument        `firestore:"totals"`
	GiftCards               []giftCardDocument         `firestore:"giftCards,omitempty"`
	AmountPaidWithGiftCards string                     `firestore:"amountPaidWithGiftCards,omitempty"`
	ManufacturingTime       *manufacturingTimeDocument `firestore:"manufacturingTime"`
	ShippingLabel           *shippingLabelDocument     `firestore:"shippingLabel,omitempty"`
	Tracking                []trackingDocument         `firestore:"tracking,omitempty"`
	PaidAt                  *time.Time                 `firestore:"paidAt,omitempty"`
	CreatedAt               time.Time                  `firestore:"createdAt"`
	UpdatedAt               time.Time                  `firestore:"updatedAt"`
}

func encodeLabel(label domain.ShippingLabel) *shippingLabelDocument {
	return &shippingLabelDocument{
		Reference:         label.Reference,
		Cost:              encodeDecimal(label.Cost),
		LabelPath:         label.LabelPath,
		EstimatedDelivery: utcPtr(label.EstimatedDelivery),
		PurchasedAt:       label.PurchasedAt.UTC(),
	}
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		UserID:        order.UserID,
		Status:        string(order.Status),
		WorkflowStep:  string(order.WorkflowStep),
		PaymentMethod: string(order.PaymentMethod),
		Currency:      order.Currency,
		Items:         encodeItems(order.Items),
		Billing: billingDocument{
			Email:      order.Billing.Email,
			Address:    encodeAddress(order.Billing.Address),
			SessionID:  order.Billing.Session.ID,
			SessionURL: order.Billing.Session.URL,
		},
		Shipping: shippingDocument{
			Carrier: order.Shipping.Carrier,
			Address: encodeAddress(order.Shipping.Address),
		},
		Extras:        extrasDocument(order.Extras),
		PromotionCode: order.PromotionCode,
		Totals: orderTotalsDocument{
			ItemsTaxExcluded:           encodeDecimal(order.Totals.ItemsTaxExcluded),
			ItemsTaxIncluded:           encodeDecimal(order.Totals.ItemsTaxIncluded),
			ShippingTaxExcluded:        encodeDecimal(order.Totals.ShippingTaxExcluded),
			ShippingTaxIncluded:        encodeDecimal(order.Totals.ShippingTaxIncluded),
			Surcharge:                  encodeDecimal(order.Totals.Surcharge),
			Discount:                   encodeDecimal(order.Totals.Discount),
			TaxBuckets:                 encodeBuckets(order.Totals.TaxBuckets),
			TaxExcluded:                encodeDecimal(order.Totals.TaxExcluded),
			TaxIncluded:                encodeDecimal(order.Totals.TaxIncluded),
			TaxExcludedWithoutShipping: encodeDecimal(order.Totals.TaxExcludedWithoutShipping),
			TaxIncludedWithoutShipping: encodeDecimal(order.Totals.TaxIncludedWithoutShipping),
			WeightGrams:                order.Totals.WeightGrams,
		},
		PaidAt:    utcPtr(order.PaidAt),
		CreatedAt: order.CreatedAt.UTC(),
		UpdatedAt: order.UpdatedAt.UTC(),
	}
	for _, card := range order.GiftCards {
		doc.GiftCards = append(doc.GiftCards, giftCardDocument{Code: card.Code, Amount: encodeDecimal(card.Amount)})
	}
	if len(order.GiftCards) > 0 {
		doc.AmountPaidWithGiftCards = encodeDecimal(order.AmountPaidWithGiftCards)
	}
	if order.ManufacturingTime != nil {
		mt := manufacturingTimeDocument(*order.ManufacturingTime)
		doc.ManufacturingTime = &mt
	}
	if order.ShippingLabel != nil {
		doc.ShippingLabel = encodeLabel(*order.ShippingLabel)
	}
	for _, event := range order.Tracking {
		doc.Tracking = append(doc.Tracking, trackingDocument{Status: event.Status, Detail: event.Detail, OccurredAt: event.OccurredAt.UTC()})
	}
	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:            id,
		UserID:        doc.UserID,
		Status:        domain.OrderStatus(doc.Status),
		WorkflowStep:  domain.WorkflowStep(doc.WorkflowStep),
		PaymentMethod: domain.PaymentMethod(doc.PaymentMethod),
		Currency:      doc.Currency,
		Items:         decodeItems(doc.Items),
		Billing: domain.Billing{
			Email:   doc.Billing.Email,
			Address: decodeAddress(doc.Billing.Address),
			Session: domain.PaymentSession{ID: doc.Billing.SessionID, URL: doc.Billing.SessionURL},
		},
		Shipping: domain.Shipping{
			Carrier: doc.Shipping.Carrier,
			Address: decodeAddress(doc.Shipping.Address),
		},
		Extras:        domain.Extras(doc.Extras),
		PromotionCode: doc.PromotionCode,
		Totals: domain.OrderTotals{
			ItemsTaxExcluded:           decodeDecimal(doc.Totals.ItemsTaxExcluded),
			ItemsTaxIncluded:           decodeDecimal(doc.Totals.ItemsTaxIncluded),
			ShippingTaxExcluded:        decodeDecimal(doc.Totals.ShippingTaxExcluded),
			ShippingTaxIncluded:        decodeDecimal(doc.Totals.ShippingTaxIncluded),
			Surcharge:                  decodeDecimal(doc.Totals.Surcharge),
			Discount:                   decodeDecimal(doc.Totals.Discount),
			TaxBuckets:                 decodeBuckets(doc.Totals.TaxBuckets),
			TaxExcluded:                decodeDecimal(doc.Totals.TaxExcluded),
			TaxIncluded:                decodeDecimal(doc.Totals.TaxIncluded),
			TaxExcludedWithoutShipping: decodeDecimal(doc.Totals.TaxExcludedWithoutShipping),
			TaxIncludedWithoutShipping: decodeDecimal(doc.Totals.TaxIncludedWithoutShipping),
			WeightGrams:                doc.Totals.WeightGrams,
		},
		AmountPaidWithGiftCards: decodeDecimal(doc.AmountPaidWithGiftCards),
		PaidAt:                  utcPtr(doc.PaidAt),
		CreatedAt:               doc.CreatedAt.UTC(),
		UpdatedAt:               doc.UpdatedAt.UTC(),
	}
	for _, card := range doc.GiftCards {
		order.GiftCards = append(order.GiftCards, domain.GiftCard{Code: card.Code, Amount: decodeDecimal(card.Amount)})
	}
	if doc.ManufacturingTime != nil {
		mt := domain.ManufacturingTime(*doc.ManufacturingTime)
		order.ManufacturingTime = &mt
	}
	if doc.ShippingLabel != nil {
		order.ShippingLabel = &domain.ShippingLabel{
			Reference:         doc.ShippingLabel.Reference,
			Cost:              decodeDecimal(doc.ShippingLabel.Cost),
			LabelPath:         doc.ShippingLabel.LabelPath,
			EstimatedDelivery: utcPtr(doc.ShippingLabel.EstimatedDelivery),
			PurchasedAt:       doc.ShippingLabel.PurchasedAt.UTC(),
		}
	}
	for _, event := range doc.Tracking {
		order.Tracking = append(order.Tracking, domain.TrackingEvent{Status: event.Status, Detail: event.Detail, OccurredAt: event.OccurredAt.UTC()})
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
