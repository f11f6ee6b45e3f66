package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_orders/internal/domain"
	"github.com/google/uuid"
)

const orderColumns = `id, user_id, order_number, status, payment_status, payment_method,
	subtotal_minor, delivery_cost_minor, total_amount_minor, delivery_address, delivery_phone,
	delivery_notes, created_at, updated_at, confirmed_at, delivered_at`

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateOrder converts a validated cart into an order in one transaction:
// product versions are re-checked, the order number is allocated, the order
// and its items are inserted, the validated cart lines are removed and an
// order.created event is written to the outbox. Nothing is persisted if any
// step fails or ctx expires.
func (r *Repository) CreateOrder(ctx context.Context, in *domain.NewOrder) (*domain.Order, error) {
	if in.Cart == nil || len(in.Cart.Lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	createdAt := in.CreatedAt.UTC()
	subtotal := in.Cart.Subtotal
	order := &domain.Order{
		UserID:          in.UserID,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentMethod:   in.PaymentMethod,
		Subtotal:        subtotal,
		DeliveryCost:    in.DeliveryCost,
		TotalAmount:     subtotal.Add(in.DeliveryCost),
		DeliveryAddress: in.DeliveryAddress,
		DeliveryPhone:   in.DeliveryPhone,
		DeliveryNotes:   in.DeliveryNotes,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := recheckLines(ctx, tx, in.Cart.Lines); err != nil {
			return err
		}

		seq, err := nextOrderSeq(ctx, tx, domain.OrderDay(createdAt))
		if err != nil {
			return err
		}
		order.OrderNumber = domain.FormatOrderNumber(createdAt, seq)

		insert := `INSERT INTO orders (user_id, order_number, status, payment_status, payment_method,
		               subtotal_minor, delivery_cost_minor, total_amount_minor, delivery_address, delivery_phone,
		               delivery_notes, created_at, updated_at)
		           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		           RETURNING id`
		if err := tx.QueryRowContext(ctx, insert,
			order.UserID,
			order.OrderNumber,
			string(order.Status),
			string(order.PaymentStatus),
			string(order.PaymentMethod),
			domain.ToMinor(order.Subtotal),
			domain.ToMinor(order.DeliveryCost),
			domain.ToMinor(order.TotalAmount),
			order.DeliveryAddress,
			order.DeliveryPhone,
			order.DeliveryNotes,
			createdAt,
		).Scan(&order.ID); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := r.step("order_inserted"); err != nil {
			return err
		}

		order.Items = make([]domain.OrderItem, 0, len(in.Cart.Lines))
		for _, line := range in.Cart.Lines {
			item := domain.OrderItem{
				OrderID:      order.ID,
				ProductID:    line.Product.ID,
				ProductName:  line.Product.Name,
				ProductUnit:  line.Product.Unit,
				ProductPrice: line.Item.PriceAtAdd,
				Quantity:     line.Item.Quantity,
				TotalPrice:   line.Item.LineTotal(),
			}
			if err := tx.QueryRowContext(ctx,
				`INSERT INTO order_items (order_id, product_id, product_name, product_unit, product_price_minor, quantity, total_price_minor)
				 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
				item.OrderID, item.ProductID, item.ProductName, item.ProductUnit,
				domain.ToMinor(item.ProductPrice), item.Quantity, domain.ToMinor(item.TotalPrice),
			).Scan(&item.ID); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
			order.Items = append(order.Items, item)
		}
		if err := r.step("items_inserted"); err != nil {
			return err
		}

		for _, line := range in.Cart.Lines {
			res, err := tx.ExecContext(ctx,
				`DELETE FROM cart_items WHERE id = $1 AND user_id = $2 AND quantity = $3 AND product_version_at_add = $4`,
				line.Item.ID, in.UserID, line.Item.Quantity, line.Item.ProductVersionAtAdd)
			if err != nil {
				return fmt.Errorf("delete cart item: %w", err)
			}
			if n, err := res.RowsAffected(); err != nil || n != 1 {
				return fmt.Errorf("cart item %d changed during checkout: %w", line.Item.ID, domain.ErrConflictWriteLost)
			}
		}
		if err := r.step("cart_cleared"); err != nil {
			return err
		}

		ev := domain.NewOrderEvent(uuid.NewString(), domain.EventOrderCreated, order, "", "", "", createdAt)
		return insertOutbox(ctx, tx, ev)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// recheckLines compares the validated lines against the products as seen by
// the transaction.
func recheckLines(ctx context.Context, tx *sql.Tx, lines []domain.ValidatedLine) error {
	var stale []domain.StaleItem
	for _, line := range lines {
		var (
			p     domain.Product
			price int64
		)
		err := tx.QueryRowContext(ctx,
			`SELECT id, version, is_active, is_available, price_minor FROM products WHERE id = $1`,
			line.Item.ProductID,
		).Scan(&p.ID, &p.Version, &p.IsActive, &p.IsAvailable, &price)

		var current *domain.Product
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("recheck product %d: %w", line.Item.ProductID, err)
		default:
			p.Price = domain.FromMinor(price)
			current = &p
		}
		if s, isStale := domain.CheckStale(line.Item, current); isStale {
			stale = append(stale, s)
		}
	}
	if len(stale) > 0 {
		return &domain.StaleItemsError{Items: stale}
	}
	return nil
}

func nextOrderSeq(ctx context.Context, tx *sql.Tx, day string) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO order_counters (day, seq) VALUES ($1, 1)
		 ON CONFLICT (day) DO UPDATE SET seq = order_counters.seq + 1
		 RETURNING seq`, day).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("allocate order number: %w", err)
	}
	return seq, nil
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return getOrder(ctx, r.db, id)
}

func getOrder(ctx context.Context, q querier, id int64) (*domain.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	if err := loadItems(ctx, q, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// ListOrdersByUser returns a user's orders, newest first.
func (r *Repository) ListOrdersByUser(ctx context.Context, userID int64, filter domain.OrderFilter, limit, offset int) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1`
	args := []any{userID}
	switch filter {
	case domain.OrderFilterActive:
		query += ` AND status NOT IN ($2, $3)`
		args = append(args, string(domain.OrderStatusCompleted), string(domain.OrderStatusCancelled))
	case domain.OrderFilterHistory:
		query += ` AND status IN ($2, $3)`
		args = append(args, string(domain.OrderStatusCompleted), string(domain.OrderStatusCancelled))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	return r.listOrders(ctx, query, args...)
}

func (r *Repository) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1
	          ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	return r.listOrders(ctx, query, string(status), limit, offset)
}

func (r *Repository) listOrders(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	if err := loadItems(ctx, r.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ApplyStatusChange moves an order from one (status, payment) pair to another
// only if the row still holds the expected pair. A lost race returns
// ErrConflictWriteLost and leaves the row untouched.
func (r *Repository) ApplyStatusChange(ctx context.Context, ch domain.StatusChange) (*domain.Order, error) {
	at := ch.At.UTC()
	var confirmedAt, deliveredAt sql.NullTime
	if ch.SetConfirmedAt {
		confirmedAt = sql.NullTime{Time: at, Valid: true}
	}
	if ch.SetDeliveredAt {
		deliveredAt = sql.NullTime{Time: at, Valid: true}
	}

	var order *domain.Order
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, payment_status = $2, updated_at = $3,
			     confirmed_at = COALESCE($4, confirmed_at),
			     delivered_at = COALESCE($5, delivered_at)
			 WHERE id = $6 AND status = $7 AND payment_status = $8`,
			string(ch.ToStatus), string(ch.ToPayment), at, confirmedAt, deliveredAt,
			ch.OrderID, string(ch.FromStatus), string(ch.FromPayment))
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = $1`, ch.OrderID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("order %d: %w", ch.OrderID, domain.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("query order: %w", err)
			}
			return fmt.Errorf("order %d: %w", ch.OrderID, domain.ErrConflictWriteLost)
		}
		if err := r.step("status_updated"); err != nil {
			return err
		}

		order, err = getOrder(ctx, tx, ch.OrderID)
		if err != nil {
			return err
		}

		eventType := ch.EventType
		if eventType == "" {
			eventType = domain.EventOrderStatusChanged
		}
		ev := domain.NewOrderEvent(uuid.NewString(), eventType, order, ch.FromStatus, ch.FromPayment, ch.Actor, at)
		return insertOutbox(ctx, tx, ev)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func loadItems(ctx context.Context, q querier, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[int64]*domain.Order, len(orders))
	placeholders := make([]string, 0, len(orders))
	args := make([]any, 0, len(orders))
	for i, o := range orders {
		o.Items = make([]domain.OrderItem, 0)
		byID[o.ID] = o
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, o.ID)
	}

	query := `SELECT id, order_id, product_id, product_name, product_unit, product_price_minor, quantity, total_price_minor
	          FROM order_items WHERE order_id IN (` + strings.Join(placeholders, ", ") + `) ORDER BY id`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it           domain.OrderItem
			price, total int64
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.ProductUnit, &price, &it.Quantity, &total); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		it.ProductPrice = domain.FromMinor(price)
		it.TotalPrice = domain.FromMinor(total)
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}
	return nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o                        domain.Order
		subtotal, delivery, tot  int64
		confirmedAt, deliveredAt sql.NullTime
	)
	err := row.Scan(&o.ID, &o.UserID, &o.OrderNumber, &o.Status, &o.PaymentStatus, &o.PaymentMethod,
		&subtotal, &delivery, &tot, &o.DeliveryAddress, &o.DeliveryPhone,
		&o.DeliveryNotes, &o.CreatedAt, &o.UpdatedAt, &confirmedAt, &deliveredAt)
	if err != nil {
		return nil, err
	}
	o.Subtotal = domain.FromMinor(subtotal)
	o.DeliveryCost = domain.FromMinor(delivery)
	o.TotalAmount = domain.FromMinor(tot)
	o.ConfirmedAt = nullTime(&confirmedAt)
	o.DeliveredAt = nullTime(&deliveredAt)
	return &o, nil
}

func insertOutbox(ctx context.Context, tx *sql.Tx, ev domain.OrderEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal outbox event: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox (id, aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		ev.EventID, fmt.Sprint(ev.OrderID), ev.Type, string(payload), ev.OccurredAt.UTC())
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// GetUnprocessedEvents returns outbox events not yet published, oldest first.
func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, payload, created_at FROM outbox
		 WHERE processed_at IS NULL ORDER BY created_at, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	events := make([]*domain.OutboxEvent, 0)
	for rows.Next() {
		var (
			ev      domain.OutboxEvent
			payload string
		)
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		ev.Payload = []byte(payload)
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox SET processed_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark outbox event %s: %w", id, err)
	}
	return nil
}
