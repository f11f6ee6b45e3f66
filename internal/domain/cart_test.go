package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCart_Totals(t *testing.T) {
	items := []CartItem{
		{ID: 1, ProductID: 1, Quantity: 2, PriceAtAdd: decimal.RequireFromString("12.50")},
		{ID: 2, ProductID: 2, Quantity: 3, PriceAtAdd: decimal.RequireFromString("0.10")},
	}

	c := NewCart(42, items)

	assert.True(t, decimal.RequireFromString("25.30").Equal(c.TotalAmount))
	assert.Equal(t, 2, c.ItemsCount, "items_count counts lines, not units")
	assert.False(t, c.IsEmpty())
	assert.NotNil(t, c.StaleItems)
}

func TestNewCart_Empty(t *testing.T) {
	c := NewCart(1, nil)
	assert.True(t, c.IsEmpty())
	assert.True(t, c.TotalAmount.IsZero())
	assert.NotNil(t, c.Items)
}

func TestCheckStale(t *testing.T) {
	item := CartItem{ID: 7, ProductID: 3, ProductVersionAtAdd: 2, PriceAtAdd: decimal.NewFromInt(5)}
	fresh := &Product{ID: 3, Version: 2, IsActive: true, IsAvailable: true, Price: decimal.NewFromInt(5)}

	_, stale := CheckStale(item, fresh)
	assert.False(t, stale)

	bumped := *fresh
	bumped.Version = 3
	bumped.Price = decimal.NewFromInt(6)
	s, stale := CheckStale(item, &bumped)
	require.True(t, stale)
	assert.Equal(t, StaleVersionChanged, s.Reason)
	assert.Equal(t, int64(3), s.CurrentVersion)
	assert.True(t, decimal.NewFromInt(6).Equal(s.CurrentPrice))

	inactive := *fresh
	inactive.IsActive = false
	s, _ = CheckStale(item, &inactive)
	assert.Equal(t, StaleInactive, s.Reason)

	unavailable := *fresh
	unavailable.IsAvailable = false
	s, _ = CheckStale(item, &unavailable)
	assert.Equal(t, StaleUnavailable, s.Reason)

	s, stale = CheckStale(item, nil)
	assert.True(t, stale)
	assert.Equal(t, StaleNotFound, s.Reason)
}

func TestStaleItemsError_Unwraps(t *testing.T) {
	var err error = &StaleItemsError{Items: []StaleItem{{ItemID: 1, Reason: StaleInactive}}}
	assert.True(t, errors.Is(err, ErrStaleItems))
	assert.Contains(t, err.Error(), "1(inactive)")
}

func TestMoneyMinorUnits(t *testing.T) {
	assert.Equal(t, int64(1250), ToMinor(decimal.RequireFromString("12.50")))
	assert.Equal(t, int64(1001), ToMinor(decimal.RequireFromString("10.005")))
	assert.True(t, decimal.RequireFromString("8.90").Equal(FromMinor(890)))
}
