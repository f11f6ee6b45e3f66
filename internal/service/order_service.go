package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/go_orders/internal/domain"
	"github.com/fjod/go_orders/internal/keylock"
	"github.com/fjod/go_orders/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type CheckoutValidator interface {
	ValidateForCheckout(ctx context.Context, userID int64) (*domain.ValidatedCart, error)
}

type CreateOrderRequest struct {
	UserID          int64
	PaymentMethod   string
	DeliveryAddress string
	DeliveryPhone   string
	DeliveryNotes   string
	DeliveryCost    decimal.Decimal
}

// OrderResult carries a committed order and, when a notification sink
// failed afterwards, a warning. The order state is final either way.
type OrderResult struct {
	Order   *domain.Order
	Warning string
}

type OrderService struct {
	orders        OrderRepository
	carts         CheckoutValidator
	locks         *keylock.Map[int64]
	sink          Sink
	notifyTimeout time.Duration
	now           func() time.Time
	log           *slog.Logger
	metrics       *metrics.Metrics
}

func NewOrderService(orders OrderRepository, carts CheckoutValidator, locks *keylock.Map[int64], sink Sink, notifyTimeout time.Duration, log *slog.Logger, m *metrics.Metrics) *OrderService {
	if notifyTimeout <= 0 {
		notifyTimeout = 5 * time.Second
	}
	return &OrderService{
		orders:        orders,
		carts:         carts,
		locks:         locks,
		sink:          sink,
		notifyTimeout: notifyTimeout,
		now:           time.Now,
		log:           log,
		metrics:       m,
	}
}

// CreateOrder turns the user's cart into a pending order. Validation, order
// number allocation, item snapshot and cart clearing happen under the user's
// lock and commit together or not at all.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	in, err := s.newOrderInput(req)
	if err != nil {
		return nil, err
	}

	order, err := s.createLocked(ctx, in)
	if err != nil {
		return nil, err
	}

	s.metrics.OrderCreated()
	s.log.InfoContext(ctx, "order created",
		"order_id", order.ID, "order_number", order.OrderNumber, "user_id", order.UserID,
		"total", order.TotalAmount.StringFixed(2))

	warning := s.notify(ctx, order, domain.EventOrderCreated, "", "", fmt.Sprintf("user:%d", order.UserID))
	return &OrderResult{Order: order, Warning: warning}, nil
}

func (s *OrderService) createLocked(ctx context.Context, in *domain.NewOrder) (*domain.Order, error) {
	unlock, err := s.locks.Lock(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	vc, err := s.carts.ValidateForCheckout(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	in.Cart = vc
	in.CreatedAt = s.now()

	return s.orders.CreateOrder(ctx, in)
}

func (s *OrderService) newOrderInput(req CreateOrderRequest) (*domain.NewOrder, error) {
	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	address, err := domain.ValidateAddress(req.DeliveryAddress)
	if err != nil {
		return nil, err
	}
	phone, err := domain.NormalizePhone(req.DeliveryPhone)
	if err != nil {
		return nil, err
	}
	notes, err := domain.ValidateDeliveryNotes(req.DeliveryNotes)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateDeliveryCost(req.DeliveryCost); err != nil {
		return nil, err
	}

	return &domain.NewOrder{
		UserID:          req.UserID,
		PaymentMethod:   method,
		DeliveryAddress: address,
		DeliveryPhone:   phone,
		DeliveryNotes:   notes,
		DeliveryCost:    req.DeliveryCost,
	}, nil
}

// UpdateStatus applies an administrative status transition.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, next domain.OrderStatus, actor string) (*OrderResult, error) {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, o, next, actor)
}

// CancelOrder lets a user cancel their own order while it is still pending.
// Orders of other users are reported as not found.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID int64) (*OrderResult, error) {
	o, err := s.GetUserOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, o, domain.OrderStatusCancelled, fmt.Sprintf("user:%d", userID))
}

func (s *OrderService) transition(ctx context.Context, o *domain.Order, next domain.OrderStatus, actor string) (*OrderResult, error) {
	if !o.Status.CanTransitionTo(next) {
		return nil, &domain.TransitionError{From: o.Status.String(), To: next.String(), Err: domain.ErrInvalidTransition}
	}
	if next == domain.OrderStatusCompleted && o.PaymentStatus != domain.PaymentStatusPaid {
		return nil, &domain.TransitionError{From: o.Status.String(), To: next.String(), Err: domain.ErrPaymentRequired}
	}

	ch := domain.StatusChange{
		OrderID:        o.ID,
		FromStatus:     o.Status,
		ToStatus:       next,
		FromPayment:    o.PaymentStatus,
		ToPayment:      o.PaymentStatus,
		At:             s.now(),
		SetConfirmedAt: next == domain.OrderStatusConfirmed,
		SetDeliveredAt: next == domain.OrderStatusCompleted,
		Actor:          actor,
		EventType:      domain.EventOrderStatusChanged,
	}
	if next == domain.OrderStatusCancelled && o.PaymentStatus == domain.PaymentStatusPaid {
		ch.ToPayment = domain.PaymentStatusRefunded
	}

	updated, err := s.orders.ApplyStatusChange(ctx, ch)
	if err != nil {
		return nil, err
	}

	s.metrics.StatusChanged(next.String())
	s.log.InfoContext(ctx, "order status changed",
		"order_id", updated.ID, "from", o.Status.String(), "to", updated.Status.String(), "actor", actor)

	warning := s.notify(ctx, updated, domain.EventOrderStatusChanged, o.Status, o.PaymentStatus, actor)
	return &OrderResult{Order: updated, Warning: warning}, nil
}

func (s *OrderService) UpdatePaymentStatus(ctx context.Context, orderID int64, next domain.PaymentStatus, actor string) (*OrderResult, error) {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !o.PaymentStatus.CanTransitionTo(next) ||
		(o.Status == domain.OrderStatusCancelled && next == domain.PaymentStatusPaid) {
		return nil, &domain.TransitionError{From: o.PaymentStatus.String(), To: next.String(), Err: domain.ErrInvalidTransition}
	}

	updated, err := s.orders.ApplyStatusChange(ctx, domain.StatusChange{
		OrderID:     o.ID,
		FromStatus:  o.Status,
		ToStatus:    o.Status,
		FromPayment: o.PaymentStatus,
		ToPayment:   next,
		At:          s.now(),
		Actor:       actor,
		EventType:   domain.EventOrderPaymentChanged,
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "order payment status changed",
		"order_id", updated.ID, "from", o.PaymentStatus.String(), "to", updated.PaymentStatus.String(), "actor", actor)

	warning := s.notify(ctx, updated, domain.EventOrderPaymentChanged, o.Status, o.PaymentStatus, actor)
	return &OrderResult{Order: updated, Warning: warning}, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

func (s *OrderService) GetUserOrder(ctx context.Context, userID, orderID int64) (*domain.Order, error) {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("order %d: %w", orderID, domain.ErrNotFound)
	}
	return o, nil
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID int64, filter domain.OrderFilter, limit, offset int) ([]*domain.Order, error) {
	limit, offset = page(limit, offset)
	return s.orders.ListOrdersByUser(ctx, userID, filter, limit, offset)
}

func (s *OrderService) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]*domain.Order, error) {
	limit, offset = page(limit, offset)
	return s.orders.ListOrdersByStatus(ctx, status, limit, offset)
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// notify informs the sink after commit. A failure is logged and turned into
// a warning; the committed state is never rolled back.
func (s *OrderService) notify(ctx context.Context, o *domain.Order, eventType string, prevStatus domain.OrderStatus, prevPayment domain.PaymentStatus, actor string) string {
	if s.sink == nil {
		return ""
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	ev := domain.NewOrderEvent(uuid.NewString(), eventType, o, prevStatus, prevPayment, actor, s.now().UTC())
	if err := s.sink.Notify(nctx, ev); err != nil {
		s.log.WarnContext(ctx, "order notification failed",
			"order_id", o.ID, "event_type", eventType, "error", err)
		if !errors.Is(err, domain.ErrSinkNotifyFailed) {
			err = fmt.Errorf("%w: %v", domain.ErrSinkNotifyFailed, err)
		}
		return err.Error()
	}
	return ""
}
