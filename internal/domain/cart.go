package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const MaxLineQuantity = 99

type CartItem struct {
	ID                  int64           `json:"id"`
	UserID              int64           `json:"user_id"`
	ProductID           int64           `json:"product_id"`
	Quantity            int             `json:"quantity"`
	PriceAtAdd          decimal.Decimal `json:"price_at_add"`
	ProductVersionAtAdd int64           `json:"product_version_at_add"`
	Notes               string          `json:"notes"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.PriceAtAdd.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type StaleReason string

const (
	StaleVersionChanged StaleReason = "version_changed"
	StaleInactive       StaleReason = "inactive"
	StaleUnavailable    StaleReason = "unavailable"
	StaleNotFound       StaleReason = "not_found"
)

// StaleItem describes a cart line whose captured product state no longer
// matches the catalog.
type StaleItem struct {
	ItemID         int64           `json:"item_id"`
	ProductID      int64           `json:"product_id"`
	Reason         StaleReason     `json:"reason"`
	CapturedPrice  decimal.Decimal `json:"captured_price"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	CapturedVer    int64           `json:"captured_version"`
	CurrentVersion int64           `json:"current_version"`
}

// CheckStale compares a cart line against the current product. p may be nil
// when the product no longer exists.
func CheckStale(item CartItem, p *Product) (StaleItem, bool) {
	s := StaleItem{
		ItemID:        item.ID,
		ProductID:     item.ProductID,
		CapturedPrice: item.PriceAtAdd,
		CapturedVer:   item.ProductVersionAtAdd,
	}
	if p == nil {
		s.Reason = StaleNotFound
		return s, true
	}
	s.CurrentPrice = p.Price
	s.CurrentVersion = p.Version
	switch {
	case !p.IsActive:
		s.Reason = StaleInactive
	case !p.IsAvailable:
		s.Reason = StaleUnavailable
	case p.Version != item.ProductVersionAtAdd:
		s.Reason = StaleVersionChanged
	default:
		return s, false
	}
	return s, true
}

type Cart struct {
	UserID      int64           `json:"user_id"`
	Items       []CartItem      `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemsCount  int             `json:"items_count"`
	StaleItems  []StaleItem     `json:"stale_items"`
}

// NewCart computes the derived totals for a set of lines.
func NewCart(userID int64, items []CartItem) *Cart {
	if items == nil {
		items = []CartItem{}
	}
	c := &Cart{UserID: userID, Items: items, TotalAmount: decimal.Zero, ItemsCount: len(items), StaleItems: []StaleItem{}}
	for _, it := range items {
		c.TotalAmount = c.TotalAmount.Add(it.LineTotal())
	}
	return c
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ValidatedLine is a cart line together with the product state it was
// validated against.
type ValidatedLine struct {
	Item    CartItem
	Product Product
}

// ValidatedCart is the input of order creation: a non-empty, non-stale
// set of lines.
type ValidatedCart struct {
	UserID   int64
	Lines    []ValidatedLine
	Subtotal decimal.Decimal
}
