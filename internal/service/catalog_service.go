package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fjod/go_orders/internal/cache"
	"github.com/fjod/go_orders/internal/domain"
)

type CatalogService struct {
	reader      CatalogReader
	writer      CatalogWriter
	invalidator cache.Invalidator
	stats       CacheStats
	log         *slog.Logger
}

func NewCatalogService(reader CatalogReader, writer CatalogWriter, invalidator cache.Invalidator, stats CacheStats, log *slog.Logger) *CatalogService {
	return &CatalogService{
		reader:      reader,
		writer:      writer,
		invalidator: invalidator,
		stats:       stats,
		log:         log,
	}
}

func (s *CatalogService) ListCategories(ctx context.Context, activeOnly bool) ([]domain.Category, error) {
	return s.reader.GetCategories(ctx, activeOnly)
}

func (s *CatalogService) ListProducts(ctx context.Context, categoryID int64, activeOnly bool) ([]domain.Product, error) {
	return s.reader.GetProducts(ctx, categoryID, activeOnly)
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.reader.GetProduct(ctx, id)
}

// UpdateProduct commits a catalog write and invalidates the affected cache
// entries before returning.
func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, upd domain.ProductUpdate) (*domain.Product, error) {
	if upd.Empty() {
		return nil, domain.NewValidationError("body", "nothing to update")
	}
	if upd.Price != nil {
		if err := domain.ValidateAmount("price", *upd.Price); err != nil {
			return nil, err
		}
	}
	if upd.Name != nil && *upd.Name == "" {
		return nil, domain.NewValidationError("name", "name must not be empty")
	}

	p, err := s.writer.UpdateProduct(ctx, id, upd)
	if err != nil {
		return nil, err
	}

	if err := s.invalidator.Invalidate(ctx, cache.ScopeProduct(p.ID, p.CategoryID)); err != nil {
		s.log.ErrorContext(ctx, "catalog invalidation failed after product update", "product_id", id, "error", err)
		return nil, fmt.Errorf("product %d updated but cache invalidation failed: %w", id, err)
	}

	s.log.InfoContext(ctx, "product updated", "product_id", p.ID, "version", p.Version)
	return p, nil
}

func (s *CatalogService) Invalidate(ctx context.Context, scope cache.Scope) error {
	return s.invalidator.Invalidate(ctx, scope)
}

func (s *CatalogService) CacheStats(ctx context.Context) (cache.Stats, error) {
	return s.stats.Stats(ctx)
}
