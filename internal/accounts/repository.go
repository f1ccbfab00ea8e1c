package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/marketplace/internal/domain"
	"github.com/joao-fontenele/marketplace/internal/store"
)

// uniqueViolation is the Postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

const userColumns = `id, first_name, last_name, email, password_hash, profile_image_url, created_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.ProfileImageURL, &u.CreatedAt)
	return u, err
}

// CreateUser inserts u together with its welcome coupons in one transaction.
func (r *Repository) CreateUser(ctx context.Context, u *domain.User, coupons []domain.Coupon) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO users (id, first_name, last_name, email, password_hash, profile_image_url)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at
		`, u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.ProfileImageURL).Scan(&u.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: user with email %s already exists", domain.ErrConflict, u.Email)
			}
			return fmt.Errorf("insert user: %w", err)
		}

		for _, c := range coupons {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO coupons (id, user_id, code, discount, expiry_date, is_used)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, c.ID, u.ID, c.Code, c.Discount, c.ExpiryDate, c.IsUsed); err != nil {
				return fmt.Errorf("insert coupon: %w", err)
			}
		}
		return nil
	})
}

func (r *Repository) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return r.getUser(ctx, `id = $1`, id)
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getUser(ctx, `email = $1`, email)
}

func (r *Repository) UserExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// UsersByIDs returns the users that exist among ids, keyed by id.
func (r *Repository) UsersByIDs(ctx context.Context, ids []string) (map[string]domain.User, error) {
	found := make(map[string]domain.User, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	users, err := r.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		found[u.ID] = u
	}
	return found, nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	return r.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
}

func (r *Repository) queryUsers(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (r *Repository) UpdateUser(ctx context.Context, u *domain.User) error {
	n, err := store.Affected(r.db.ExecContext(ctx, `
		UPDATE users
		SET first_name = $2, last_name = $3, email = $4, password_hash = $5, profile_image_url = $6
		WHERE id = $1
	`, u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.ProfileImageURL))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %s is already in use", domain.ErrConflict, u.Email)
		}
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", u.ID, domain.ErrNotFound)
	}
	return nil
}

// DeleteUser removes the user. Orders, cart items and coupons cascade via
// foreign keys; the inbox has no key and is deleted explicitly.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		n, err := store.Affected(tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id))
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM notifications WHERE account_kind = $1 AND account_id = $2
		`, domain.AccountUser, id); err != nil {
			return fmt.Errorf("delete user notifications: %w", err)
		}
		return nil
	})
}

func (r *Repository) Coupons(ctx context.Context, userID string) ([]domain.Coupon, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, discount, expiry_date, is_used
		FROM coupons
		WHERE user_id = $1
		ORDER BY expiry_date, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	coupons := []domain.Coupon{}
	for rows.Next() {
		var c domain.Coupon
		if err := rows.Scan(&c.ID, &c.Code, &c.Discount, &c.ExpiryDate, &c.IsUsed); err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}
	return coupons, rows.Err()
}

// AddToCart merges quantity into the user's cart line for productID, or
// appends a new line. The upsert keeps concurrent adds from losing updates.
func (r *Repository) AddToCart(ctx context.Context, userID, productID string, quantity int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`, userID, productID, quantity)
	if err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}
	return nil
}

func (r *Repository) RemoveCartItem(ctx context.Context, userID, productID string) error {
	n, err := store.Affected(r.db.ExecContext(ctx, `
		DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2
	`, userID, productID))
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("product %s in cart: %w", productID, domain.ErrNotFound)
	}
	return nil
}

func (r *Repository) ClearCart(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (r *Repository) Cart(ctx context.Context, userID string) ([]domain.CartItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity FROM cart_items WHERE user_id = $1 ORDER BY seq
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cart := []domain.CartItem{}
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return nil, err
		}
		cart = append(cart, item)
	}
	return cart, rows.Err()
}

const adminColumns = `id, full_name, email, password_hash, role, profile_image_url, created_at`

func scanAdmin(row interface{ Scan(...any) error }) (domain.Admin, error) {
	var a domain.Admin
	err := row.Scan(&a.ID, &a.FullName, &a.Email, &a.PasswordHash, &a.Role, &a.ProfileImageURL, &a.CreatedAt)
	return a, err
}

func (r *Repository) CreateAdmin(ctx context.Context, a *domain.Admin) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO admins (id, full_name, email, password_hash, role, profile_image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, a.ID, a.FullName, a.Email, a.PasswordHash, a.Role, a.ProfileImageURL).Scan(&a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: admin with email %s already exists", domain.ErrConflict, a.Email)
		}
		return fmt.Errorf("insert admin: %w", err)
	}
	return nil
}

func (r *Repository) GetAdminByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	a, err := scanAdmin(r.db.QueryRowContext(ctx, `SELECT `+adminColumns+` FROM admins WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("admin: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	return &a, nil
}

func (r *Repository) ListAdmins(ctx context.Context) ([]domain.Admin, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+adminColumns+` FROM admins ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	admins := []domain.Admin{}
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	return admins, rows.Err()
}

// AccountExists reports whether the inbox owner ref points at a stored
// user or admin.
func (r *Repository) AccountExists(ctx context.Context, ref domain.AccountRef) (bool, error) {
	var query string
	switch ref.Kind {
	case domain.AccountUser:
		query = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`
	case domain.AccountAdmin:
		query = `SELECT EXISTS (SELECT 1 FROM admins WHERE id = $1)`
	default:
		return false, fmt.Errorf("%w: unknown account kind %q", domain.ErrValidation, ref.Kind)
	}

	var exists bool
	err := r.db.QueryRowContext(ctx, query, ref.ID).Scan(&exists)
	return exists, err
}
