package service

import (
	"context"
	"errors"
	"testing"

	"github.com/fjod/go_orders/internal/cache"
	"github.com/fjod/go_orders/internal/domain"
	"github.com/fjod/go_orders/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateProduct_InvalidatesProductScope(t *testing.T) {
	writer := &MockCatalogWriter{Product: &domain.Product{ID: 3, CategoryID: 2, Version: 4}}
	inv := &MockInvalidator{}
	svc := NewCatalogService(nil, writer, inv, nil, logger.Nop())

	price := decimal.RequireFromString("5.00")
	p, err := svc.UpdateProduct(context.Background(), 3, domain.ProductUpdate{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, int64(4), p.Version)
	require.Len(t, inv.Scopes, 1)
	assert.Equal(t, cache.ScopeProduct(3, 2), inv.Scopes[0])
}

func TestUpdateProduct_InvalidationFailureIsAnError(t *testing.T) {
	writer := &MockCatalogWriter{Product: &domain.Product{ID: 3, CategoryID: 2}}
	inv := &MockInvalidator{Err: errors.New("redis down")}
	svc := NewCatalogService(nil, writer, inv, nil, logger.Nop())

	off := false
	_, err := svc.UpdateProduct(context.Background(), 3, domain.ProductUpdate{IsAvailable: &off})
	assert.ErrorContains(t, err, "cache invalidation failed")
}

func TestUpdateProduct_Validation(t *testing.T) {
	writer := &MockCatalogWriter{}
	svc := NewCatalogService(nil, writer, &MockInvalidator{}, nil, logger.Nop())
	ctx := context.Background()

	_, err := svc.UpdateProduct(ctx, 1, domain.ProductUpdate{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	neg := decimal.NewFromInt(-1)
	_, err = svc.UpdateProduct(ctx, 1, domain.ProductUpdate{Price: &neg})
	assert.ErrorIs(t, err, domain.ErrValidation)

	fractional := decimal.RequireFromString("9.999")
	_, err = svc.UpdateProduct(ctx, 1, domain.ProductUpdate{Price: &fractional})
	assert.ErrorIs(t, err, domain.ErrValidation)

	empty := ""
	_, err = svc.UpdateProduct(ctx, 1, domain.ProductUpdate{Name: &empty})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Zero(t, writer.Calls)
}

func TestUpdateProduct_NotFoundSkipsInvalidation(t *testing.T) {
	writer := &MockCatalogWriter{Err: domain.ErrNotFound}
	inv := &MockInvalidator{}
	svc := NewCatalogService(nil, writer, inv, nil, logger.Nop())

	on := true
	_, err := svc.UpdateProduct(context.Background(), 9, domain.ProductUpdate{IsActive: &on})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, inv.Scopes)
}
