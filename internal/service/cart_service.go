package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/go_orders/internal/domain"
	"github.com/fjod/go_orders/internal/keylock"
	"github.com/shopspring/decimal"
)

// CartService owns the per-user carts. Every mutation runs under the user's
// lock, which is shared with OrderService.
type CartService struct {
	repo    CartRepository
	catalog ProductReader
	locks   *keylock.Map[int64]
	log     *slog.Logger
}

func NewCartService(repo CartRepository, catalog ProductReader, locks *keylock.Map[int64], log *slog.Logger) *CartService {
	return &CartService{
		repo:    repo,
		catalog: catalog,
		locks:   locks,
		log:     log,
	}
}

func (s *CartService) AddItem(ctx context.Context, userID, productID int64, quantity int, notes string) (*domain.CartItem, error) {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	notes, err := domain.ValidateItemNotes(notes)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, fmt.Errorf("product %d: %w", productID, domain.ErrNotFound)
	}
	if !p.IsAvailable {
		return nil, fmt.Errorf("product %d: %w", productID, domain.ErrUnavailable)
	}

	item, err := s.repo.UpsertCartItem(ctx, domain.CartItem{
		UserID:              userID,
		ProductID:           productID,
		Quantity:            quantity,
		PriceAtAdd:          p.Price,
		ProductVersionAtAdd: p.Version,
		Notes:               notes,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "repo add item error", "user_id", userID, "product_id", productID, "error", err)
		return nil, err
	}
	return item, nil
}

func (s *CartService) UpdateItem(ctx context.Context, userID, itemID int64, quantity int, notes *string) (*domain.CartItem, error) {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	if notes != nil {
		n, err := domain.ValidateItemNotes(*notes)
		if err != nil {
			return nil, err
		}
		notes = &n
	}

	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.repo.UpdateCartItem(ctx, userID, itemID, quantity, notes)
}

func (s *CartService) RemoveItem(ctx context.Context, userID, itemID int64) error {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.repo.DeleteCartItem(ctx, userID, itemID)
}

// ClearCart empties the cart. Clearing an empty cart succeeds.
func (s *CartService) ClearCart(ctx context.Context, userID int64) error {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	n, err := s.repo.ClearCart(ctx, userID)
	if err != nil {
		return err
	}
	s.log.DebugContext(ctx, "cart cleared", "user_id", userID, "items", n)
	return nil
}

// GetCart returns the cart with its totals and the lines whose product has
// changed since they were added. Stale lines are reported, never modified.
func (s *CartService) GetCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	items, err := s.repo.ListCartItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	cart := domain.NewCart(userID, items)
	for _, it := range items {
		p, err := s.currentProduct(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		if stale, ok := domain.CheckStale(it, p); ok {
			cart.StaleItems = append(cart.StaleItems, stale)
		}
	}
	return cart, nil
}

// ValidateForCheckout is a pure read: it returns the lines that may be turned
// into an order, or ErrEmptyCart, or a StaleItemsError listing every line
// that needs the user's attention.
func (s *CartService) ValidateForCheckout(ctx context.Context, userID int64) (*domain.ValidatedCart, error) {
	items, err := s.repo.ListCartItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	vc := &domain.ValidatedCart{UserID: userID, Subtotal: decimal.Zero}
	var stale []domain.StaleItem
	for _, it := range items {
		p, err := s.currentProduct(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		if st, ok := domain.CheckStale(it, p); ok {
			stale = append(stale, st)
			continue
		}
		vc.Lines = append(vc.Lines, domain.ValidatedLine{Item: it, Product: *p})
		vc.Subtotal = vc.Subtotal.Add(it.LineTotal())
	}
	if len(stale) > 0 {
		return nil, &domain.StaleItemsError{Items: stale}
	}
	return vc, nil
}

// currentProduct returns nil without error when the product is gone.
func (s *CartService) currentProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := s.catalog.GetProduct(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return p, err
}
