package service

import (
	"context"

	"github.com/fjod/go_orders/internal/cache"
	"github.com/fjod/go_orders/internal/domain"
)

// Consumers define these interfaces.

type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

type CatalogReader interface {
	ProductReader
	GetCategories(ctx context.Context, activeOnly bool) ([]domain.Category, error)
	GetProducts(ctx context.Context, categoryID int64, activeOnly bool) ([]domain.Product, error)
}

type CatalogWriter interface {
	UpdateProduct(ctx context.Context, id int64, upd domain.ProductUpdate) (*domain.Product, error)
}

type CacheStats interface {
	Stats(ctx context.Context) (cache.Stats, error)
}

type CartRepository interface {
	ListCartItems(ctx context.Context, userID int64) ([]domain.CartItem, error)
	UpsertCartItem(ctx context.Context, item domain.CartItem) (*domain.CartItem, error)
	UpdateCartItem(ctx context.Context, userID, itemID int64, quantity int, notes *string) (*domain.CartItem, error)
	DeleteCartItem(ctx context.Context, userID, itemID int64) error
	ClearCart(ctx context.Context, userID int64) (int64, error)
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, in *domain.NewOrder) (*domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64, filter domain.OrderFilter, limit, offset int) ([]*domain.Order, error)
	ListOrdersByStatus(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]*domain.Order, error)
	ApplyStatusChange(ctx context.Context, ch domain.StatusChange) (*domain.Order, error)
}

// Sink is told about order state changes after they commit.
type Sink interface {
	Notify(ctx context.Context, ev domain.OrderEvent) error
}
