package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_orders/internal/cache"
	"github.com/fjod/go_orders/internal/domain"
	"github.com/fjod/go_orders/internal/service"
	"github.com/fjod/go_orders/pkg/logger"
)

type MockCartService struct {
	Cart      *domain.Cart
	Item      *domain.CartItem
	Validated *domain.ValidatedCart
	Err       error

	AddedProduct int64
	AddedQty     int
	UpdatedNotes *string
}

func (m *MockCartService) GetCart(_ context.Context, userID int64) (*domain.Cart, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Cart != nil {
		return m.Cart, nil
	}
	return domain.NewCart(userID, nil), nil
}

func (m *MockCartService) AddItem(_ context.Context, _, productID int64, quantity int, _ string) (*domain.CartItem, error) {
	m.AddedProduct, m.AddedQty = productID, quantity
	return m.Item, m.Err
}

func (m *MockCartService) UpdateItem(_ context.Context, _, _ int64, _ int, notes *string) (*domain.CartItem, error) {
	m.UpdatedNotes = notes
	return m.Item, m.Err
}

func (m *MockCartService) RemoveItem(context.Context, int64, int64) error { return m.Err }

func (m *MockCartService) ClearCart(context.Context, int64) error { return m.Err }

func (m *MockCartService) ValidateForCheckout(context.Context, int64) (*domain.ValidatedCart, error) {
	return m.Validated, m.Err
}

type MockOrderService struct {
	Result *service.OrderResult
	Order  *domain.Order
	Orders []*domain.Order
	Err    error

	Created     service.CreateOrderRequest
	NextStatus  domain.OrderStatus
	NextPayment domain.PaymentStatus
	Actor       string
	Filter      domain.OrderFilter
	Limit       int
	Offset      int
}

func (m *MockOrderService) CreateOrder(_ context.Context, req service.CreateOrderRequest) (*service.OrderResult, error) {
	m.Created = req
	return m.Result, m.Err
}

func (m *MockOrderService) UpdateStatus(_ context.Context, _ int64, next domain.OrderStatus, actor string) (*service.OrderResult, error) {
	m.NextStatus, m.Actor = next, actor
	return m.Result, m.Err
}

func (m *MockOrderService) UpdatePaymentStatus(_ context.Context, _ int64, next domain.PaymentStatus, actor string) (*service.OrderResult, error) {
	m.NextPayment, m.Actor = next, actor
	return m.Result, m.Err
}

func (m *MockOrderService) CancelOrder(context.Context, int64, int64) (*service.OrderResult, error) {
	return m.Result, m.Err
}

func (m *MockOrderService) GetOrder(context.Context, int64) (*domain.Order, error) {
	return m.Order, m.Err
}

func (m *MockOrderService) GetUserOrder(context.Context, int64, int64) (*domain.Order, error) {
	return m.Order, m.Err
}

func (m *MockOrderService) ListUserOrders(_ context.Context, _ int64, filter domain.OrderFilter, limit, offset int) ([]*domain.Order, error) {
	m.Filter, m.Limit, m.Offset = filter, limit, offset
	return m.Orders, m.Err
}

func (m *MockOrderService) ListOrdersByStatus(_ context.Context, status domain.OrderStatus, limit, offset int) ([]*domain.Order, error) {
	m.NextStatus, m.Limit, m.Offset = status, limit, offset
	return m.Orders, m.Err
}

type MockCatalogService struct {
	Categories []domain.Category
	Products   []domain.Product
	Product    *domain.Product
	Stats      cache.Stats
	Err        error

	ActiveOnly  bool
	Update      domain.ProductUpdate
	Invalidated []cache.Scope
}

func (m *MockCatalogService) ListCategories(_ context.Context, activeOnly bool) ([]domain.Category, error) {
	m.ActiveOnly = activeOnly
	return m.Categories, m.Err
}

func (m *MockCatalogService) ListProducts(_ context.Context, _ int64, activeOnly bool) ([]domain.Product, error) {
	m.ActiveOnly = activeOnly
	return m.Products, m.Err
}

func (m *MockCatalogService) GetProduct(context.Context, int64) (*domain.Product, error) {
	return m.Product, m.Err
}

func (m *MockCatalogService) UpdateProduct(_ context.Context, _ int64, upd domain.ProductUpdate) (*domain.Product, error) {
	m.Update = upd
	return m.Product, m.Err
}

func (m *MockCatalogService) Invalidate(_ context.Context, scope cache.Scope) error {
	m.Invalidated = append(m.Invalidated, scope)
	return m.Err
}

func (m *MockCatalogService) CacheStats(context.Context) (cache.Stats, error) {
	return m.Stats, m.Err
}

const testAdminToken = "secret"

type testServer struct {
	carts   *MockCartService
	orders  *MockOrderService
	catalog *MockCatalogService
	handler http.Handler
}

func newTestServer(limiter *RateLimiter) *testServer {
	return newTestServerWith(func(cfg *RouterConfig) { cfg.Limiter = limiter })
}

func newTestServerWith(configure func(*RouterConfig)) *testServer {
	ts := &testServer{
		carts:   &MockCartService{},
		orders:  &MockOrderService{},
		catalog: &MockCatalogService{},
	}
	cfg := RouterConfig{
		Carts:          ts.carts,
		Orders:         ts.orders,
		Catalog:        ts.catalog,
		AdminToken:     testAdminToken,
		RequestTimeout: 5 * time.Second,
		Logger:         logger.Nop(),
	}
	configure(&cfg)
	ts.handler = NewRouter(cfg)
	return ts
}
