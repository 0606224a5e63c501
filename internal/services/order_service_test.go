package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/couture-field/checkout/internal/domain"
)

func TestOrderServiceGetOrderChecksOwnership(t *testing.T) {
	orders := newStubOrderRepository(paidOrder("ord_1"))
	svc, err := NewOrderService(OrderServiceDeps{Orders: orders})
	require.NoError(t, err)

	order, err := svc.GetOrder(context.Background(), "usr_1", "ord_1")
	require.NoError(t, err)
	require.Equal(t, "ord_1", order.ID)

	_, err = svc.GetOrder(context.Background(), "usr_2", "ord_1")
	require.ErrorIs(t, err, ErrOrderNotFound)
	_, err = svc.GetOrder(context.Background(), "usr_1", "ord_missing")
	require.ErrorIs(t, err, ErrOrderNotFound)

	orders.findErr = &stubRepoError{err: errors.New("down"), unavailable: true}
	_, err = svc.GetOrder(context.Background(), "usr_1", "ord_1")
	require.ErrorIs(t, err, ErrCheckoutUnavailable)
}

func TestNewOrderServiceRequiresRepository(t *testing.T) {
	_, err := NewOrderService(OrderServiceDeps{})
	require.Error(t, err)
}

func TestOrderServiceListOrdersPagesNewestFirst(t *testing.T) {
	older := paidOrder("ord_1")
	older.CreatedAt = fixtureNow.Add(-48 * time.Hour)
	newer := paidOrder("ord_2")
	newer.CreatedAt = fixtureNow.Add(-time.Hour)
	draft := paidOrder("ord_3")
	draft.Status = domain.OrderStatusDraft
	draft.CreatedAt = fixtureNow
	foreign := paidOrder("ord_4")
	foreign.UserID = "usr_2"

	svc, err := NewOrderService(OrderServiceDeps{Orders: newStubOrderRepository(older, newer, draft, foreign)})
	require.NoError(t, err)

	page, err := svc.ListOrders(context.Background(), "usr_1", domain.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1, "drafts are hidden")
	require.Equal(t, "ord_2", page.Items[0].ID)
	require.NotEmpty(t, page.NextPageToken)

	page, err = svc.ListOrders(context.Background(), "usr_1", domain.Pagination{PageSize: 2, PageToken: page.NextPageToken})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "ord_1", page.Items[0].ID)
	require.Empty(t, page.NextPageToken)
}

func TestOrderServiceListOrdersErrors(t *testing.T) {
	orders := newStubOrderRepository()
	svc, err := NewOrderService(OrderServiceDeps{Orders: orders})
	require.NoError(t, err)

	_, err = svc.ListOrders(context.Background(), " ", domain.Pagination{})
	require.ErrorIs(t, err, ErrCheckoutInvalidInput)

	orders.findErr = &stubRepoError{err: errors.New("down"), unavailable: true}
	_, err = svc.ListOrders(context.Background(), "usr_1", domain.Pagination{PageSize: 10})
	require.ErrorIs(t, err, ErrCheckoutUnavailable)
}
