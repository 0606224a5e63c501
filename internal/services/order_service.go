package services

import (
	"context"
	"errors"
	"strings"

	domain "github.com/couture-field/checkout/internal/domain"
	"github.com/couture-field/checkout/internal/repositories"
)

// OrderServiceDeps wires the order read service.
type OrderServiceDeps struct {
	Orders repositories.OrderRepository
}

type orderService struct {
	orders repositories.OrderRepository
}

var _ OrderService = (*orderService)(nil)

// NewOrderService constructs an OrderService.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	return &orderService{orders: deps.Orders}, nil
}

// GetOrder returns the order when userID owns it. Orders of other users are reported as missing.
func (s *orderService) GetOrder(ctx context.Context, userID, orderID string) (domain.Order, error) {
	userID = strings.TrimSpace(userID)
	orderID = strings.TrimSpace(orderID)
	if userID == "" || orderID == "" {
		return domain.Order{}, ErrOrderNotFound
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, translateStoreError(err, ErrOrderNotFound)
	}
	if order.UserID != userID {
		return domain.Order{}, ErrOrderNotFound
	}
	return order, nil
}

// ListOrders pages through the caller's orders, newest first. Drafts are left out: they are
// checkout scratch state and may be discarded at any time.
func (s *orderService) ListOrders(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, ErrCheckoutInvalidInput
	}
	if pager.PageSize < 0 {
		return domain.CursorPage[domain.Order]{}, ErrCheckoutInvalidInput
	}
	page, err := s.orders.ListByUser(ctx, userID, pager)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, translateStoreError(err, nil)
	}
	items := make([]domain.Order, 0, len(page.Items))
	for _, order := range page.Items {
		if order.Status == domain.OrderStatusDraft {
			continue
		}
		items = append(items, order)
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: page.NextPageToken}, nil
}
