package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fjod/go_orders/internal/domain"
	"github.com/fjod/go_orders/internal/keylock"
	"github.com/fjod/go_orders/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(id int64, status domain.OrderStatus, payment domain.PaymentStatus) *domain.Order {
	return &domain.Order{
		ID:            id,
		UserID:        100,
		OrderNumber:   "ORD-20260501-0001",
		Status:        status,
		PaymentStatus: payment,
		TotalAmount:   decimal.RequireFromString("25.00"),
	}
}

func newOrderService(repo OrderRepository, validator CheckoutValidator, sink Sink) *OrderService {
	svc := NewOrderService(repo, validator, keylock.New[int64](), sink, time.Second, logger.Nop(), nil)
	svc.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestUpdateStatus_FollowsStateMachine(t *testing.T) {
	repo := NewMockOrderRepository(newTestOrder(1, domain.OrderStatusPending, domain.PaymentStatusPending))
	sink := &MockSink{}
	svc := newOrderService(repo, nil, sink)
	ctx := context.Background()

	res, err := svc.UpdateStatus(ctx, 1, domain.OrderStatusConfirmed, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, res.Order.Status)
	assert.NotNil(t, res.Order.ConfirmedAt)
	assert.Empty(t, res.Warning)

	_, err = svc.UpdateStatus(ctx, 1, domain.OrderStatusDelivering, "admin")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.UpdateStatus(ctx, 1, domain.OrderStatusPreparing, "admin")
	require.NoError(t, err)

	require.Len(t, sink.Events, 2)
	assert.Equal(t, domain.OrderStatusPending, sink.Events[0].PrevStatus)
	assert.Equal(t, domain.OrderStatusConfirmed, sink.Events[0].Status)
	assert.Equal(t, "admin", sink.Events[0].Actor)
}

func TestUpdateStatus_InvalidTransitionLeavesStateUnchanged(t *testing.T) {
	repo := NewMockOrderRepository(newTestOrder(1, domain.OrderStatusCompleted, domain.PaymentStatusPaid))
	sink := &MockSink{}
	svc := newOrderService(repo, nil, sink)

	_, err := svc.UpdateStatus(context.Background(), 1, domain.OrderStatusPending, "admin")

	var te *domain.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "completed", te.From)
	assert.Empty(t, repo.Applied)
	assert.Empty(t, sink.Events)
}

func TestUpdateStatus_CompletionRequiresPayment(t *testing.T) {
	repo := NewMockOrderRepository(newTestOrder(1, domain.OrderStatusDelivering, domain.PaymentStatusPending))
	svc := newOrderService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.UpdateStatus(ctx, 1, domain.OrderStatusCompleted, "admin")
	assert.ErrorIs(t, err, domain.ErrPaymentRequired)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.UpdatePaymentStatus(ctx, 1, domain.PaymentStatusPaid, "admin")
	require.NoError(t, err)

	res, err := svc.UpdateStatus(ctx, 1, domain.OrderStatusCompleted, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, res.Order.Status)
	assert.NotNil(t, res.Order.DeliveredAt)
}

func TestCancel_PaidOrderIsRefunded(t *testing.T) {
	repo := NewMockOrderRepository(newTestOrder(1, domain.OrderStatusPending, domain.PaymentStatusPaid))
	svc := newOrderService(repo, nil, nil)

	res, err := svc.UpdateStatus(context.Background(), 1, domain.OrderStatusCancelled, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, res.Order.Status)
	assert.Equal(t, domain.PaymentStatusRefunded, res.Order.PaymentStatus)
}

func TestCancelOrder_OwnerOnly(t *testing.T) {
	repo := NewMockOrderRepository(newTestOrder(1, domain.OrderStatusPending, domain.PaymentStatusPending))
	svc := newOrderService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CancelOrder(ctx, 999, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	res, err := svc.CancelOrder(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, res.Order.Status)
	assert.Equal(t, "user:100", repo.Applied[0].Actor)

	_, err = svc.CancelOrder(ctx, 100, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestUpdatePaymentStatus_Rules(t *testing.T) {
	repo := NewMockOrderRepository(
		newTestOrder(1, domain.OrderStatusPending, domain.PaymentStatusPending),
		newTestOrder(2, domain.OrderStatusCancelled, domain.PaymentStatusPending),
	)
	sink := &MockSink{}
	svc := newOrderService(repo, nil, sink)
	ctx := context.Background()

	_, err := svc.UpdatePaymentStatus(ctx, 1, domain.PaymentStatusRefunded, "admin")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	res, err := svc.UpdatePaymentStatus(ctx, 1, domain.PaymentStatusFailed, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, res.Order.PaymentStatus)
	assert.Equal(t, domain.OrderStatusPending, res.Order.Status)
	require.Len(t, sink.Events, 1)
	assert.Equal(t, domain.EventOrderPaymentChanged, sink.Events[0].Type)

	_, err = svc.UpdatePaymentStatus(ctx, 2, domain.PaymentStatusPaid, "admin")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSinkFailure_ReturnsWarningAndKeepsState(t *testing.T) {
	repo := NewMockOrderRepository(newTestOrder(1, domain.OrderStatusPending, domain.PaymentStatusPending))
	sink := &MockSink{Err: errors.New("webhook down")}
	svc := newOrderService(repo, nil, sink)

	res, err := svc.UpdateStatus(context.Background(), 1, domain.OrderStatusConfirmed, "admin")
	require.NoError(t, err)
	assert.Contains(t, res.Warning, domain.ErrSinkNotifyFailed.Error())
	assert.Contains(t, res.Warning, "webhook down")

	stored, err := repo.GetOrder(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, stored.Status)
}

func TestSink_UsesOwnDeadline(t *testing.T) {
	repo := NewMockOrderRepository(newTestOrder(1, domain.OrderStatusPending, domain.PaymentStatusPending))
	var sawDeadline bool
	sink := sinkFunc(func(ctx context.Context, _ domain.OrderEvent) error {
		_, sawDeadline = ctx.Deadline()
		return ctx.Err()
	})
	svc := newOrderService(repo, nil, sink)

	// the caller has gone away; the sink still gets a live, bounded context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := svc.UpdateStatus(ctx, 1, domain.OrderStatusConfirmed, "admin")
	require.NoError(t, err)
	assert.Empty(t, res.Warning)
	assert.True(t, sawDeadline)
}

type sinkFunc func(ctx context.Context, ev domain.OrderEvent) error

func (f sinkFunc) Notify(ctx context.Context, ev domain.OrderEvent) error {
	return f(ctx, ev)
}

func TestUpdateStatus_ConflictIsReported(t *testing.T) {
	repo := NewMockOrderRepository(newTestOrder(1, domain.OrderStatusPending, domain.PaymentStatusPending))
	repo.ApplyErr = domain.ErrConflictWriteLost
	sink := &MockSink{}
	svc := newOrderService(repo, nil, sink)

	_, err := svc.UpdateStatus(context.Background(), 1, domain.OrderStatusConfirmed, "admin")
	assert.ErrorIs(t, err, domain.ErrConflictWriteLost)
	assert.Empty(t, sink.Events)
}

func TestCreateOrder_ValidatesDeliveryBeforeLocking(t *testing.T) {
	validator := &MockCheckoutValidator{}
	svc := newOrderService(NewMockOrderRepository(), validator, nil)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID:          1,
		PaymentMethod:   "cash",
		DeliveryAddress: "Lenina st. 10, apt 5",
		DeliveryPhone:   "123",
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID:          1,
		PaymentMethod:   "barter",
		DeliveryAddress: "Lenina st. 10, apt 5",
		DeliveryPhone:   "+79991234567",
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID:          1,
		PaymentMethod:   "cash",
		DeliveryAddress: "Lenina st. 10, apt 5",
		DeliveryPhone:   "+79991234567",
		DeliveryCost:    decimal.RequireFromString("2.005"),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateOrder_PropagatesValidatorErrors(t *testing.T) {
	validator := &MockCheckoutValidator{Err: domain.ErrEmptyCart}
	sink := &MockSink{}
	svc := newOrderService(NewMockOrderRepository(), validator, sink)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID:          1,
		PaymentMethod:   "cash",
		DeliveryAddress: "Lenina st. 10, apt 5",
		DeliveryPhone:   "89991234567",
	})
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.Empty(t, sink.Events)
}

func TestCreateOrder_NotifiesAfterCommit(t *testing.T) {
	validator := &MockCheckoutValidator{Cart: &domain.ValidatedCart{
		UserID:   1,
		Subtotal: decimal.RequireFromString("10.00"),
		Lines:    []domain.ValidatedLine{{Item: domain.CartItem{ID: 1, Quantity: 1}}},
	}}
	sink := &MockSink{Err: errors.New("smtp down")}
	svc := newOrderService(NewMockOrderRepository(), validator, sink)

	res, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID:          1,
		PaymentMethod:   "transfer",
		DeliveryAddress: "Lenina st. 10, apt 5",
		DeliveryPhone:   "89991234567",
		DeliveryCost:    decimal.RequireFromString("1.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD-20260501-0001", res.Order.OrderNumber)
	assert.True(t, decimal.RequireFromString("11.50").Equal(res.Order.TotalAmount))
	assert.NotEmpty(t, res.Warning)
	require.Len(t, sink.Events, 1)
	assert.Equal(t, domain.EventOrderCreated, sink.Events[0].Type)
}

func TestListOrders_ClampsPaging(t *testing.T) {
	repo := NewMockOrderRepository()
	svc := newOrderService(repo, nil, nil)

	_, err := svc.ListUserOrders(context.Background(), 1, domain.OrderFilterAll, 0, -5)
	require.NoError(t, err)
	assert.Equal(t, defaultPageSize, repo.Listed.Limit)
	assert.Equal(t, 0, repo.Listed.Offset)

	_, err = svc.ListOrdersByStatus(context.Background(), domain.OrderStatusPending, 1000, 3)
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, repo.Listed.Limit)
	assert.Equal(t, 3, repo.Listed.Offset)
}
