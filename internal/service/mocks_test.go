package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/fjod/go_orders/internal/cache"
	"github.com/fjod/go_orders/internal/domain"
)

// MockOrderRepository keeps orders in memory and applies status changes as
// compare-and-set.
type MockOrderRepository struct {
	mu       sync.Mutex
	Orders   map[int64]*domain.Order
	Applied  []domain.StatusChange
	GetErr   error
	ApplyErr error
	Listed   struct{ Limit, Offset int }
}

func NewMockOrderRepository(orders ...*domain.Order) *MockOrderRepository {
	m := &MockOrderRepository{Orders: make(map[int64]*domain.Order)}
	for _, o := range orders {
		m.Orders[o.ID] = o
	}
	return m
}

func (m *MockOrderRepository) CreateOrder(_ context.Context, in *domain.NewOrder) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := &domain.Order{
		ID:            int64(len(m.Orders) + 1),
		UserID:        in.UserID,
		OrderNumber:   domain.FormatOrderNumber(in.CreatedAt, int64(len(m.Orders)+1)),
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: in.PaymentMethod,
		Subtotal:      in.Cart.Subtotal,
		DeliveryCost:  in.DeliveryCost,
		TotalAmount:   in.Cart.Subtotal.Add(in.DeliveryCost),
	}
	m.Orders[o.ID] = o
	return o, nil
}

func (m *MockOrderRepository) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	o, ok := m.Orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (m *MockOrderRepository) ListOrdersByUser(_ context.Context, userID int64, _ domain.OrderFilter, limit, offset int) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Listed.Limit, m.Listed.Offset = limit, offset
	var out []*domain.Order
	for _, o := range m.Orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockOrderRepository) ListOrdersByStatus(_ context.Context, status domain.OrderStatus, limit, offset int) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Listed.Limit, m.Listed.Offset = limit, offset
	var out []*domain.Order
	for _, o := range m.Orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockOrderRepository) ApplyStatusChange(_ context.Context, ch domain.StatusChange) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ApplyErr != nil {
		return nil, m.ApplyErr
	}
	o, ok := m.Orders[ch.OrderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if o.Status != ch.FromStatus || o.PaymentStatus != ch.FromPayment {
		return nil, domain.ErrConflictWriteLost
	}
	m.Applied = append(m.Applied, ch)
	o.Status = ch.ToStatus
	o.PaymentStatus = ch.ToPayment
	if ch.SetConfirmedAt {
		at := ch.At
		o.ConfirmedAt = &at
	}
	if ch.SetDeliveredAt {
		at := ch.At
		o.DeliveredAt = &at
	}
	cp := *o
	return &cp, nil
}

type MockSink struct {
	mu     sync.Mutex
	Err    error
	Events []domain.OrderEvent
}

func (m *MockSink) Notify(_ context.Context, ev domain.OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
	return m.Err
}

type MockCheckoutValidator struct {
	Cart *domain.ValidatedCart
	Err  error
}

func (m *MockCheckoutValidator) ValidateForCheckout(_ context.Context, _ int64) (*domain.ValidatedCart, error) {
	return m.Cart, m.Err
}

type MockInvalidator struct {
	Scopes []cache.Scope
	Err    error
}

func (m *MockInvalidator) Invalidate(_ context.Context, scope cache.Scope) error {
	m.Scopes = append(m.Scopes, scope)
	return m.Err
}

type MockCatalogWriter struct {
	Product *domain.Product
	Err     error
	Calls   int
}

func (m *MockCatalogWriter) UpdateProduct(_ context.Context, _ int64, _ domain.ProductUpdate) (*domain.Product, error) {
	m.Calls++
	return m.Product, m.Err
}
