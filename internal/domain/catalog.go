package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	SortOrder   int       `json:"sort_order"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Product is a catalog entry. Version is bumped by every write that changes
// the price or availability and never decreases.
type Product struct {
	ID          int64           `json:"id"`
	CategoryID  int64           `json:"category_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Unit        string          `json:"unit"`
	Price       decimal.Decimal `json:"price"`
	SortOrder   int             `json:"sort_order"`
	IsActive    bool            `json:"is_active"`
	IsAvailable bool            `json:"is_available"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Orderable reports whether the product may be placed into a cart.
func (p *Product) Orderable() bool {
	return p.IsActive && p.IsAvailable
}

// ProductUpdate is a partial catalog write. Nil fields are left untouched.
type ProductUpdate struct {
	Price       *decimal.Decimal
	IsActive    *bool
	IsAvailable *bool
	Name        *string
	Description *string
}

func (u ProductUpdate) Empty() bool {
	return u.Price == nil && u.IsActive == nil && u.IsAvailable == nil && u.Name == nil && u.Description == nil
}
