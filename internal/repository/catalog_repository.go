package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_orders/internal/domain"
)

const productColumns = `id, category_id, name, description, unit, price_minor, sort_order,
	is_active, is_available, version, created_at, updated_at`

func (r *Repository) ListCategories(ctx context.Context, activeOnly bool) ([]domain.Category, error) {
	query := `SELECT id, name, description, sort_order, is_active, created_at, updated_at FROM categories`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY sort_order, name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.SortOrder, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return categories, nil
}

// ListProducts returns the products of a category, or of the whole catalog
// when categoryID is zero.
func (r *Repository) ListProducts(ctx context.Context, categoryID int64, activeOnly bool) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1 = 1`
	var args []any
	if categoryID > 0 {
		args = append(args, categoryID)
		query += fmt.Sprintf(` AND category_id = $%d`, len(args))
	}
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY sort_order, name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return products, nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

// UpdateProduct applies a partial update. The version is bumped in the same
// statement whenever price, activity or availability actually change.
func (r *Repository) UpdateProduct(ctx context.Context, id int64, upd domain.ProductUpdate) (*domain.Product, error) {
	var (
		price     sql.NullInt64
		active    sql.NullBool
		available sql.NullBool
		name      sql.NullString
		descr     sql.NullString
	)
	if upd.Price != nil {
		price = sql.NullInt64{Int64: domain.ToMinor(*upd.Price), Valid: true}
	}
	if upd.IsActive != nil {
		active = sql.NullBool{Bool: *upd.IsActive, Valid: true}
	}
	if upd.IsAvailable != nil {
		available = sql.NullBool{Bool: *upd.IsAvailable, Valid: true}
	}
	if upd.Name != nil {
		name = sql.NullString{String: *upd.Name, Valid: true}
	}
	if upd.Description != nil {
		descr = sql.NullString{String: *upd.Description, Valid: true}
	}

	query := `UPDATE products SET
	              version = version + CASE
	                  WHEN price_minor <> COALESCE($2, price_minor)
	                    OR is_active <> COALESCE($3, is_active)
	                    OR is_available <> COALESCE($4, is_available)
	                  THEN 1 ELSE 0 END,
	              price_minor = COALESCE($2, price_minor),
	              is_active = COALESCE($3, is_active),
	              is_available = COALESCE($4, is_available),
	              name = COALESCE($5, name),
	              description = COALESCE($6, description),
	              updated_at = $7
	          WHERE id = $1
	          RETURNING ` + productColumns

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id, price, active, available, name, descr, time.Now().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return p, nil
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p     domain.Product
		price int64
	)
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.Unit, &price, &p.SortOrder,
		&p.IsActive, &p.IsAvailable, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Price = domain.FromMinor(price)
	return &p, nil
}
