package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/joao-fontenele/marketplace/internal/domain"
	"github.com/joao-fontenele/marketplace/internal/store"
)

const productColumns = `id, name, description, price, quantity, category, images, is_sold, created_at, updated_at`

// Repository reads and writes the product catalog. It runs on a *sql.DB or
// inside a *sql.Tx.
type Repository struct {
	db store.DBTX
}

func NewRepository(db store.DBTX) *Repository {
	return &Repository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Quantity,
		&p.Category, pq.Array(&p.Images), &p.IsSold, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repository) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *Repository) Create(ctx context.Context, p *domain.Product) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO products (id, name, description, price, quantity, category, images, is_sold)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.Description, p.Price, p.Quantity, p.Category, pq.Array(p.Images), p.IsSold,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *Repository) List(ctx context.Context) ([]domain.Product, error) {
	return r.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC, id`)
}

func (r *Repository) ListByCategory(ctx context.Context, category domain.Category) ([]domain.Product, error) {
	return r.queryProducts(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE category = $1
		ORDER BY created_at DESC, id
	`, category)
}

// ListCreatedSince returns products added at or after since, newest first.
func (r *Repository) ListCreatedSince(ctx context.Context, since time.Time) ([]domain.Product, error) {
	return r.queryProducts(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE created_at >= $1
		ORDER BY created_at DESC, id
	`, since)
}

// ProductsByIDs returns the products that exist among ids, keyed by id.
// Unknown ids are absent from the result.
func (r *Repository) ProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	found := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	products, err := r.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		found[p.ID] = p
	}
	return found, nil
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n)
	return n, err
}

// Update overwrites the editable product fields. Quantity and sold state
// have their own operations.
func (r *Repository) Update(ctx context.Context, p *domain.Product) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4, category = $5, images = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING quantity, is_sold, created_at, updated_at
	`, p.ID, p.Name, p.Description, p.Price, p.Category, pq.Array(p.Images),
	).Scan(&p.Quantity, &p.IsSold, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("product %s: %w", p.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	n, err := store.Affected(r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id))
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *Repository) MarkSold(ctx context.Context, id string) (*domain.Product, error) {
	return r.updateReturning(ctx, `
		UPDATE products SET is_sold = TRUE, updated_at = NOW()
		WHERE id = $1
		RETURNING `+productColumns, id)
}

// SetQuantity replaces the stock counter. It is an admin correction, not a
// restock path for cancelled orders.
func (r *Repository) SetQuantity(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", domain.ErrValidation)
	}
	return r.updateReturning(ctx, `
		UPDATE products SET quantity = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+productColumns, id, quantity)
}

func (r *Repository) updateReturning(ctx context.Context, query string, id string, args ...any) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, query, append([]any{id}, args...)...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

// Reserve atomically takes quantity units out of stock. The decrement only
// applies while enough stock remains, so concurrent callers can never drive
// the counter below zero.
func (r *Repository) Reserve(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", domain.ErrValidation)
	}

	n, err := store.Affected(r.db.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
	`, productID, quantity))
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}

	if n == 0 {
		exists, err := r.Exists(ctx, productID)
		if err != nil {
			return fmt.Errorf("reserve stock: %w", err)
		}
		if !exists {
			return fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
		}
		return fmt.Errorf("%w for product %s", domain.ErrInsufficientStock, productID)
	}

	return nil
}
