package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_orders/internal/cache"
	"github.com/fjod/go_orders/internal/domain"
	"github.com/shopspring/decimal"
)

type CatalogService interface {
	ListCategories(ctx context.Context, activeOnly bool) ([]domain.Category, error)
	ListProducts(ctx context.Context, categoryID int64, activeOnly bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id int64, upd domain.ProductUpdate) (*domain.Product, error)
	Invalidate(ctx context.Context, scope cache.Scope) error
	CacheStats(ctx context.Context) (cache.Stats, error)
}

type CatalogHandler struct {
	svc     CatalogService
	timeout time.Duration
	log     *slog.Logger
}

func NewCatalogHandler(svc CatalogService, timeout time.Duration, log *slog.Logger) *CatalogHandler {
	return &CatalogHandler{svc: svc, timeout: timeout, log: log}
}

type UpdateProductRequestDTO struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	IsActive    *bool            `json:"is_active"`
	IsAvailable *bool            `json:"is_available"`
}

type ProductResponse struct {
	Success bool            `json:"success"`
	Product *domain.Product `json:"product"`
}

func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	activeOnly, err := queryBool(r, "active_only", true)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	categories, err := h.svc.ListCategories(ctx, activeOnly)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	respondJSON(w, http.StatusOK, categories)
}

func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categoryID, ok := pathID(w, r, "category_id")
	if !ok {
		return
	}
	activeOnly, err := queryBool(r, "active_only", true)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	products, err := h.svc.ListProducts(ctx, categoryID, activeOnly)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := pathID(w, r, "product_id")
	if !ok {
		return
	}

	p, err := h.svc.GetProduct(ctx, productID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := pathID(w, r, "product_id")
	if !ok {
		return
	}
	var req UpdateProductRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.svc.UpdateProduct(ctx, productID, domain.ProductUpdate{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		IsActive:    req.IsActive,
		IsAvailable: req.IsAvailable,
	})
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, ProductResponse{Success: true, Product: p})
}

func (h *CatalogHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.svc.CacheStats(ctx)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// InvalidateCatalog drops cached catalog entries. Without query parameters
// the whole catalog is dropped; ?category_id= or ?product_id= narrow it.
func (h *CatalogHandler) InvalidateCatalog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categoryID, err := queryInt(r, "category_id", 0)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	productID, err := queryInt(r, "product_id", 0)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	scope := cache.ScopeAll()
	switch {
	case productID > 0:
		scope = cache.ScopeProduct(int64(productID), int64(categoryID))
	case categoryID > 0:
		scope = cache.ScopeCategory(int64(categoryID))
	}

	if err := h.svc.Invalidate(ctx, scope); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "catalog cache invalidated: " + scope.String()})
}
