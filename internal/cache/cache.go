package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/go_orders/internal/domain"
)

// Store is the source of truth the cache reads through to.
type Store interface {
	ListCategories(ctx context.Context, activeOnly bool) ([]domain.Category, error)
	ListProducts(ctx context.Context, categoryID int64, activeOnly bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

// Invalidator is called by every catalog write after it commits.
type Invalidator interface {
	Invalidate(ctx context.Context, scope Scope) error
}

type ScopeKind string

const (
	ScopeKindAll      ScopeKind = "all"
	ScopeKindCategory ScopeKind = "category"
	ScopeKindProduct  ScopeKind = "product"
)

type Scope struct {
	Kind       ScopeKind
	CategoryID int64
	ProductID  int64
}

func ScopeAll() Scope {
	return Scope{Kind: ScopeKindAll}
}

func ScopeCategory(id int64) Scope {
	return Scope{Kind: ScopeKindCategory, CategoryID: id}
}

// ScopeProduct invalidates a product and the lists it appears in. A zero
// categoryID drops every category list.
func ScopeProduct(id, categoryID int64) Scope {
	return Scope{Kind: ScopeKindProduct, ProductID: id, CategoryID: categoryID}
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeKindCategory:
		return fmt.Sprintf("category:%d", s.CategoryID)
	case ScopeKindProduct:
		return fmt.Sprintf("product:%d", s.ProductID)
	default:
		return string(ScopeKindAll)
	}
}

type TTLConfig struct {
	Categories       time.Duration
	ActiveCategories time.Duration
	Products         time.Duration
	ActiveProducts   time.Duration
	Product          time.Duration
}

func DefaultTTL() TTLConfig {
	return TTLConfig{
		Categories:       30 * time.Minute,
		ActiveCategories: 10 * time.Minute,
		Products:         15 * time.Minute,
		ActiveProducts:   10 * time.Minute,
		Product:          15 * time.Minute,
	}
}

type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	LoadErrors    int64 `json:"load_errors"`
	RedisErrors   int64 `json:"redis_errors"`
	Invalidations int64 `json:"invalidations"`
	Generation    int64 `json:"generation"`
	Keys          int64 `json:"keys"`
}

const (
	keyPrefix = "catalog:"
	genKey    = "catalog:gen"
)

func categoriesKey(activeOnly bool) string {
	if activeOnly {
		return "catalog:categories:active"
	}
	return "catalog:categories"
}

func productsKey(categoryID int64, activeOnly bool) string {
	key := "catalog:products"
	if categoryID > 0 {
		key = fmt.Sprintf("catalog:category:%d:products", categoryID)
	}
	if activeOnly {
		key += ":active"
	}
	return key
}

func productKey(id int64) string {
	return fmt.Sprintf("catalog:product:%d", id)
}
