package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_orders/internal/domain"
)

const cartItemColumns = `id, user_id, product_id, quantity, price_at_add_minor, product_version_at_add,
	notes, created_at, updated_at`

func (r *Repository) ListCartItems(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	query := `SELECT ` + cartItemColumns + ` FROM cart_items WHERE user_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}
	return items, nil
}

// UpsertCartItem inserts a line or, when the user already has one for the
// product, adds the quantity and overwrites the captured price and version.
// Notes are replaced only when non-empty. A merge that would push the line
// past domain.MaxLineQuantity leaves it untouched and returns
// domain.ErrInvalidQuantity.
func (r *Repository) UpsertCartItem(ctx context.Context, item domain.CartItem) (*domain.CartItem, error) {
	now := time.Now().UTC()
	query := `INSERT INTO cart_items (user_id, product_id, quantity, price_at_add_minor, product_version_at_add, notes, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	          ON CONFLICT (user_id, product_id) DO UPDATE SET
	              quantity = cart_items.quantity + excluded.quantity,
	              price_at_add_minor = excluded.price_at_add_minor,
	              product_version_at_add = excluded.product_version_at_add,
	              notes = CASE WHEN excluded.notes <> '' THEN excluded.notes ELSE cart_items.notes END,
	              updated_at = excluded.updated_at
	          WHERE cart_items.quantity + excluded.quantity <= $8
	          RETURNING ` + cartItemColumns

	saved, err := scanCartItem(r.db.QueryRowContext(ctx, query,
		item.UserID,
		item.ProductID,
		item.Quantity,
		domain.ToMinor(item.PriceAtAdd),
		item.ProductVersionAtAdd,
		item.Notes,
		now,
		domain.MaxLineQuantity))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("line for product %d would exceed %d: %w", item.ProductID, domain.MaxLineQuantity, domain.ErrInvalidQuantity)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert cart item: %w", err)
	}
	return saved, nil
}

func (r *Repository) GetCartItem(ctx context.Context, userID, itemID int64) (*domain.CartItem, error) {
	query := `SELECT ` + cartItemColumns + ` FROM cart_items WHERE id = $1 AND user_id = $2`

	it, err := scanCartItem(r.db.QueryRowContext(ctx, query, itemID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cart item %d: %w", itemID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cart item: %w", err)
	}
	return it, nil
}

// UpdateCartItem changes the quantity and, when notes is non-nil, the notes
// of a line. The captured price and version are left as they are.
func (r *Repository) UpdateCartItem(ctx context.Context, userID, itemID int64, quantity int, notes *string) (*domain.CartItem, error) {
	var n sql.NullString
	if notes != nil {
		n = sql.NullString{String: *notes, Valid: true}
	}

	query := `UPDATE cart_items SET quantity = $3, notes = COALESCE($4, notes), updated_at = $5
	          WHERE id = $1 AND user_id = $2
	          RETURNING ` + cartItemColumns

	it, err := scanCartItem(r.db.QueryRowContext(ctx, query, itemID, userID, quantity, n, time.Now().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cart item %d: %w", itemID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}
	return it, nil
}

func (r *Repository) DeleteCartItem(ctx context.Context, userID, itemID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("cart item %d: %w", itemID, domain.ErrNotFound)
	}
	return nil
}

// ClearCart removes every line of the user's cart and reports how many were
// removed. Clearing an empty cart is not an error.
func (r *Repository) ClearCart(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func scanCartItem(row rowScanner) (*domain.CartItem, error) {
	var (
		it    domain.CartItem
		price int64
	)
	err := row.Scan(&it.ID, &it.UserID, &it.ProductID, &it.Quantity, &price, &it.ProductVersionAtAdd,
		&it.Notes, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	it.PriceAtAdd = domain.FromMinor(price)
	return &it, nil
}
