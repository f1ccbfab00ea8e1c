package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/joao-fontenele/marketplace/internal/domain"
	"github.com/joao-fontenele/marketplace/internal/inventory"
	"github.com/joao-fontenele/marketplace/internal/store"
)

// Filter narrows order listings. Zero fields do not filter.
type Filter struct {
	UserID string
	Status domain.OrderStatus
	Since  time.Time
}

func (f Filter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if !f.Since.IsZero() {
		add("order_date >= $%d", f.Since)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Repository is the Postgres order store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, order *domain.Order) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, user_id, total_amount, order_date, status, pickup_method, address, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $4)
		`, order.ID, order.UserID, order.TotalAmount, order.OrderDate, order.Status, order.PickupMethod, order.Address)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i, item := range order.Items {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO order_items (order_id, position, product_id, quantity)
				VALUES ($1, $2, $3, $4)
			`, order.ID, i, item.ProductID, item.Quantity)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
}

const orderColumns = `id, user_id, total_amount, order_date, status, pickup_method, address`

func scanOrder(row interface{ Scan(...any) error }) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.OrderDate, &o.Status, &o.PickupMethod, &o.Address)
	return o, err
}

func (r *Repository) Get(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}

	orders := []domain.Order{order}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// List returns matching orders newest first, items loaded in one extra
// query.
func (r *Repository) List(ctx context.Context, f Filter) ([]domain.Order, error) {
	where, args := f.where()
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders`+where+` ORDER BY order_date DESC, id`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *Repository) loadItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[string]int, len(orders))
	ids := make([]string, len(orders))
	for i := range orders {
		orders[i].Items = []domain.OrderItem{}
		index[orders[i].ID] = i
		ids[i] = orders[i].ID
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity); err != nil {
			return err
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return rows.Err()
}

func (r *Repository) Count(ctx context.Context, f Filter) (int, error) {
	where, args := f.where()
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&n)
	return n, err
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	n, err := store.Affected(r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id))
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *Repository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	return store.Affected(r.db.ExecContext(ctx, `DELETE FROM orders WHERE user_id = $1`, userID))
}

func (r *Repository) DeleteAll(ctx context.Context) (int64, error) {
	return store.Affected(r.db.ExecContext(ctx, `DELETE FROM orders`))
}

// DeleteStalePickups removes pending pickup orders placed before cutoff
// and returns the owners of the removed orders.
func (r *Repository) DeleteStalePickups(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		DELETE FROM orders
		WHERE pickup_method = $1 AND status = $2 AND order_date < $3
		RETURNING user_id
	`, domain.PickupMethodPickup, domain.OrderStatusPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("delete stale pickups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	users := []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}

// InTx runs fn inside a transaction; any error from fn rolls it back.
func (r *Repository) InTx(ctx context.Context, fn func(Tx) error) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&pgTx{tx: tx, stock: inventory.NewRepository(tx)})
	})
}

type pgTx struct {
	tx    *sql.Tx
	stock *inventory.Repository
}

func (t *pgTx) ReserveStock(ctx context.Context, productID string, quantity int) error {
	return t.stock.Reserve(ctx, productID, quantity)
}

// TransitionOrder moves the order from one status to another. The update
// only matches while the order is still in from, so of two racing
// transitions exactly one wins.
func (t *pgTx) TransitionOrder(ctx context.Context, id string, from, to domain.OrderStatus) error {
	n, err := store.Affected(t.tx.ExecContext(ctx, `
		UPDATE orders SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to))
	if err != nil {
		return fmt.Errorf("transition order: %w", err)
	}
	if n == 1 {
		return nil
	}

	var current domain.OrderStatus
	err = t.tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("transition order: %w", err)
	}
	return fmt.Errorf("%w: order %s is %s", domain.ErrInvalidTransition, id, current)
}
