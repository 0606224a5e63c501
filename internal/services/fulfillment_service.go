package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/couture-field/checkout/internal/domain"
	"github.com/couture-field/checkout/internal/repositories"
	"github.com/couture-field/checkout/internal/shipping"
)

// OrderEventShipped is published when a label is purchased for a paid order.
const OrderEventShipped = "order.shipped"

// FulfillmentServiceDeps wires the post-payment workflow. Events is optional.
type FulfillmentServiceDeps struct {
	UnitOfWork repositories.UnitOfWork
	Orders     repositories.OrderRepository
	Shipping   ShippingPricer
	Labels     LabelStore
	Events     OrderEventPublisher
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type fulfillmentService struct {
	uow      repositories.UnitOfWork
	orders   repositories.OrderRepository
	shipping ShippingPricer
	labels   LabelStore
	events   OrderEventPublisher
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

var _ FulfillmentService = (*fulfillmentService)(nil)

// NewFulfillmentService constructs a FulfillmentService.
func NewFulfillmentService(deps FulfillmentServiceDeps) (FulfillmentService, error) {
	switch {
	case deps.UnitOfWork == nil:
		return nil, errors.New("fulfillment service: unit of work is required")
	case deps.Orders == nil:
		return nil, errors.New("fulfillment service: order repository is required")
	case deps.Shipping == nil:
		return nil, errors.New("fulfillment service: shipping client is required")
	case deps.Labels == nil:
		return nil, errors.New("fulfillment service: label store is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &fulfillmentService{
		uow:      deps.UnitOfWork,
		orders:   deps.Orders,
		shipping: deps.Shipping,
		labels:   deps.Labels,
		events:   deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// PurchaseShippingLabel buys and stores the carrier label of a paid order in production.
// Calling it again once the label exists returns the order unchanged.
func (s *fulfillmentService) PurchaseShippingLabel(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, ErrCheckoutInvalidInput
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, translateStoreError(err, ErrOrderNotFound)
	}
	if order.ShippingLabel != nil {
		return order, nil
	}
	if order.Status != domain.OrderStatusPaid || order.WorkflowStep != domain.WorkflowInProduction {
		return domain.Order{}, ErrOrderInvalidState
	}

	bought, err := s.shipping.BuyShippingLabel(ctx, shipping.LabelRequest{
		OrderID:     order.ID,
		Carrier:     order.Shipping.Carrier,
		Address:     order.Shipping.Address,
		WeightGrams: order.Totals.WeightGrams,
		Content:     "Order " + order.ID,
	})
	if err != nil {
		s.logger(ctx, "fulfillment.label.purchase_failed", map[string]any{"orderId": orderID, "error": err.Error()})
		return domain.Order{}, ErrCheckoutShippingFailed
	}
	path, err := s.labels.SaveLabel(ctx, orderID, bought.PDF)
	if err != nil {
		s.logger(ctx, "fulfillment.label.store_failed", map[string]any{"orderId": orderID, "reference": bought.Reference, "error": err.Error()})
		return domain.Order{}, ErrCheckoutUnavailable
	}
	label := domain.ShippingLabel{
		Reference:         bought.Reference,
		Cost:              bought.Cost,
		LabelPath:         path,
		EstimatedDelivery: bought.EstimatedDelivery,
		PurchasedAt:       s.now(),
	}

	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if current.ShippingLabel != nil {
			order = current
			return nil
		}
		if current.WorkflowStep != domain.WorkflowInProduction {
			return ErrOrderInvalidState
		}
		if err := s.orders.AttachShippingLabel(ctx, orderID, label); err != nil {
			return err
		}
		current.ShippingLabel = &label
		current.WorkflowStep = domain.WorkflowShipping
		order = current
		return nil
	})
	if err != nil {
		return domain.Order{}, translateStoreError(err, ErrOrderNotFound)
	}

	s.logger(ctx, "fulfillment.label.purchased", map[string]any{"orderId": orderID, "reference": order.ShippingLabel.Reference})
	if s.events != nil && order.ShippingLabel.Reference == label.Reference {
		if _, err := s.events.PublishOrderEvent(context.WithoutCancel(ctx), OrderEventMessage{
			Type:          OrderEventShipped,
			OrderID:       order.ID,
			UserID:        order.UserID,
			Status:        string(order.Status),
			PaymentMethod: string(order.PaymentMethod),
			Total:         order.Totals.TaxIncluded.StringFixed(domain.MoneyPlaces),
			Currency:      order.Currency,
			OccurredAt:    label.PurchasedAt,
		}); err != nil {
			s.logger(ctx, "fulfillment.event.publish_failed", map[string]any{"orderId": orderID, "error": err.Error()})
		}
	}
	return order, nil
}

// RecordTracking appends a carrier update. A delivery notice moves a shipping order to delivered.
func (s *fulfillmentService) RecordTracking(ctx context.Context, update TrackingUpdate) (domain.Order, error) {
	update.OrderID = strings.TrimSpace(update.OrderID)
	update.Status = strings.TrimSpace(update.Status)
	if update.OrderID == "" || update.Status == "" {
		return domain.Order{}, ErrCheckoutInvalidInput
	}
	occurredAt := update.OccurredAt.UTC()
	if update.OccurredAt.IsZero() {
		occurredAt = s.now()
	}
	event := domain.TrackingEvent{Status: update.Status, Detail: strings.TrimSpace(update.Detail), OccurredAt: occurredAt}

	var result domain.Order
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.FindByID(ctx, update.OrderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPaid {
			return ErrOrderInvalidState
		}
		step := order.WorkflowStep
		switch {
		case !step.Valid(), step == domain.WorkflowInProduction:
			return ErrOrderInvalidState
		case update.Delivered && step == domain.WorkflowShipping:
			next, ok := step.Next()
			if !ok {
				return ErrOrderInvalidState
			}
			step = next
		}
		if err := s.orders.AppendTracking(ctx, order.ID, event, step); err != nil {
			return err
		}
		order.Tracking = append(order.Tracking, event)
		order.WorkflowStep = step
		result = order
		return nil
	})
	if err != nil {
		return domain.Order{}, translateStoreError(err, ErrOrderNotFound)
	}
	s.logger(ctx, "fulfillment.tracking.recorded", map[string]any{
		"orderId": update.OrderID,
		"status":  update.Status,
		"step":    string(result.WorkflowStep),
	})
	return result, nil
}
