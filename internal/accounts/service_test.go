package accounts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/marketplace/internal/auth"
	"github.com/joao-fontenele/marketplace/internal/domain"
)

type memStore struct {
	mu      sync.Mutex
	users   map[string]domain.User
	coupons map[string][]domain.Coupon
	carts   map[string][]domain.CartItem
	admins  map[string]domain.Admin
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[string]domain.User{},
		coupons: map[string][]domain.Coupon{},
		carts:   map[string][]domain.CartItem{},
		admins:  map[string]domain.Admin{},
	}
}

func (m *memStore) CreateUser(_ context.Context, u *domain.User, coupons []domain.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: duplicate email", domain.ErrConflict)
		}
	}
	u.CreatedAt = time.Now()
	m.users[u.ID] = *u
	m.coupons[u.ID] = append([]domain.Coupon(nil), coupons...)
	return nil
}

func (m *memStore) GetUser(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
	}
	return &u, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
}

func (m *memStore) UserExists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[id]
	return ok, nil
}

func (m *memStore) ListUsers(context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.User{}
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memStore) CountUsers(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *memStore) UpdateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return fmt.Errorf("user: %w", domain.ErrNotFound)
	}
	for id, existing := range m.users {
		if id != u.ID && existing.Email == u.Email {
			return fmt.Errorf("%w: duplicate email", domain.ErrConflict)
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *memStore) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return fmt.Errorf("user: %w", domain.ErrNotFound)
	}
	delete(m.users, id)
	delete(m.coupons, id)
	delete(m.carts, id)
	return nil
}

func (m *memStore) Coupons(_ context.Context, userID string) ([]domain.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Coupon{}, m.coupons[userID]...), nil
}

func (m *memStore) AddToCart(_ context.Context, userID, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart := m.carts[userID]
	for i := range cart {
		if cart[i].ProductID == productID {
			cart[i].Quantity += quantity
			return nil
		}
	}
	m.carts[userID] = append(cart, domain.CartItem{ProductID: productID, Quantity: quantity})
	return nil
}

func (m *memStore) RemoveCartItem(_ context.Context, userID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart := m.carts[userID]
	for i := range cart {
		if cart[i].ProductID == productID {
			m.carts[userID] = append(cart[:i], cart[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("product in cart: %w", domain.ErrNotFound)
}

func (m *memStore) ClearCart(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	return nil
}

func (m *memStore) Cart(_ context.Context, userID string) ([]domain.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CartItem{}, m.carts[userID]...), nil
}

func (m *memStore) CreateAdmin(_ context.Context, a *domain.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.admins {
		if existing.Email == a.Email {
			return fmt.Errorf("%w: duplicate email", domain.ErrConflict)
		}
	}
	m.admins[a.ID] = *a
	return nil
}

func (m *memStore) GetAdminByEmail(_ context.Context, email string) (*domain.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.admins {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("admin: %w", domain.ErrNotFound)
}

func (m *memStore) ListAdmins(context.Context) ([]domain.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Admin{}
	for _, a := range m.admins {
		out = append(out, a)
	}
	return out, nil
}

type productSet map[string]bool

func (p productSet) Exists(_ context.Context, id string) (bool, error) {
	return p[id], nil
}

type stubHistory map[string][]domain.OrderSummary

func (h stubHistory) UserOrderHistory(_ context.Context, userID string) ([]domain.OrderSummary, error) {
	return h[userID], nil
}

func newTestService(t *testing.T) (*Service, *memStore, *auth.Tokens) {
	t.Helper()
	store := newMemStore()
	tokens := auth.NewTokens("test-secret", time.Hour, time.Hour)
	svc := NewService(store, productSet{"p1": true, "p2": true}, stubHistory{},
		tokens, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, store, tokens
}

func TestSplitFullName(t *testing.T) {
	tests := []struct {
		in          string
		first, last string
		ok          bool
	}{
		{"Ada Lovelace", "Ada", "Lovelace", true},
		{"  Ada   King Lovelace ", "Ada", "King Lovelace", true},
		{"Ada", "", "", false},
		{"   ", "", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			first, last, ok := SplitFullName(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.first, first)
			assert.Equal(t, tc.last, last)
		})
	}
}

func TestRegister(t *testing.T) {
	svc, store, tokens := newTestService(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	user, token, err := svc.Register(context.Background(), RegisterInput{
		FullName: "Ada Lovelace",
		Email:    "  Ada@Example.COM ",
		Password: "analytical",
	})
	require.NoError(t, err)

	assert.Equal(t, "Ada", user.FirstName)
	assert.Equal(t, "Lovelace", user.LastName)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NotEqual(t, "analytical", user.PasswordHash)

	p, err := tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, auth.UserPrincipal(user.ID), p)

	coupons := store.coupons[user.ID]
	require.Len(t, coupons, 1)
	assert.Equal(t, "10OFF", coupons[0].Code)
	assert.Equal(t, 10, coupons[0].Discount)
	assert.False(t, coupons[0].IsUsed)
	assert.Equal(t, now.AddDate(0, 0, 30), coupons[0].ExpiryDate)
}

func TestRegister_Rejections(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, RegisterInput{FullName: "Ada", Email: "ada@example.com", Password: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, _, err = svc.Register(ctx, RegisterInput{FullName: "Ada Lovelace", Email: "not-an-email", Password: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, _, err = svc.Register(ctx, RegisterInput{FullName: "Ada Lovelace", Email: "ada@example.com", Password: "x"})
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, RegisterInput{FullName: "Ada Byron", Email: "ADA@example.com", Password: "y"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRegister_RejectsDisplayNameAddress(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, RegisterInput{FullName: "Bob Builder", Email: "Bob <bob@example.com>", Password: "x"})
	require.ErrorIs(t, err, domain.ErrValidation)

	user, _, err := svc.Register(ctx, RegisterInput{FullName: "Bob Builder", Email: "bob@example.com", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", user.Email)

	_, _, err = svc.Register(ctx, RegisterInput{FullName: "Bob Builder", Email: "<bob@example.com>", Password: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdateUser_RejectsInvalidEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, RegisterInput{FullName: "Ada Lovelace", Email: "ada@example.com", Password: "x"})
	require.NoError(t, err)

	_, err = svc.UpdateUser(ctx, user.ID, UpdateInput{Email: "Ada <ada@example.com>"})
	require.ErrorIs(t, err, domain.ErrValidation)

	updated, err := svc.UpdateUser(ctx, user.ID, UpdateInput{FirstName: "Augusta"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", updated.Email)
}

func TestCreateAdmin_RejectsInvalidEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateAdmin(context.Background(), AdminInput{FullName: "Grace Hopper", Email: "Grace <grace@example.com>", Password: "cobol"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	registered, _, err := svc.Register(ctx, RegisterInput{FullName: "Ada Lovelace", Email: "ada@example.com", Password: "engine"})
	require.NoError(t, err)

	user, token, err := svc.Login(ctx, "ADA@example.com", "engine")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.NotEmpty(t, token)

	_, _, err = svc.Login(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, _, err = svc.Login(ctx, "nobody@example.com", "engine")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAddToCart_MergesQuantities(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user, _, err := svc.Register(ctx, RegisterInput{FullName: "Ada Lovelace", Email: "ada@example.com", Password: "x"})
	require.NoError(t, err)

	_, err = svc.AddToCart(ctx, user.ID, "p1", 2)
	require.NoError(t, err)
	cart, err := svc.AddToCart(ctx, user.ID, "p1", 3)
	require.NoError(t, err)

	assert.Equal(t, []domain.CartItem{{ProductID: "p1", Quantity: 5}}, cart)

	cart, err = svc.AddToCart(ctx, user.ID, "p2", 1)
	require.NoError(t, err)
	assert.Len(t, cart, 2)

	total, err := svc.CartQuantity(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, total)
}

func TestAddToCart_Rejections(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user, _, err := svc.Register(ctx, RegisterInput{FullName: "Ada Lovelace", Email: "ada@example.com", Password: "x"})
	require.NoError(t, err)

	_, err = svc.AddToCart(ctx, user.ID, "p1", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.AddToCart(ctx, user.ID, "p1", domain.MaxQuantity+1)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.AddToCart(ctx, user.ID, "ghost", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.AddToCart(ctx, "no-such-user", "p1", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemoveAndClearCart(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user, _, err := svc.Register(ctx, RegisterInput{FullName: "Ada Lovelace", Email: "ada@example.com", Password: "x"})
	require.NoError(t, err)

	_, err = svc.AddToCart(ctx, user.ID, "p1", 1)
	require.NoError(t, err)
	_, err = svc.AddToCart(ctx, user.ID, "p2", 1)
	require.NoError(t, err)

	cart, err := svc.RemoveCartItem(ctx, user.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, []domain.CartItem{{ProductID: "p2", Quantity: 1}}, cart)

	_, err = svc.RemoveCartItem(ctx, user.ID, "p1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, svc.ClearCart(ctx, user.ID))
	cart, err = svc.Cart(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, cart)
}

func TestUpdateUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user, _, err := svc.Register(ctx, RegisterInput{FullName: "Ada Lovelace", Email: "ada@example.com", Password: "old"})
	require.NoError(t, err)

	updated, err := svc.UpdateUser(ctx, user.ID, UpdateInput{LastName: "King", Password: "new"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", updated.FirstName)
	assert.Equal(t, "King", updated.LastName)

	_, _, err = svc.Login(ctx, "ada@example.com", "new")
	assert.NoError(t, err)

	_, err = svc.UpdateUser(ctx, "missing", UpdateInput{FirstName: "X"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProfile_IncludesOrderHistory(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user, _, err := svc.Register(ctx, RegisterInput{FullName: "Ada Lovelace", Email: "ada@example.com", Password: "x"})
	require.NoError(t, err)
	svc.history = stubHistory{user.ID: {{OrderID: "o1", Status: domain.OrderStatusPending}}}

	profile, err := svc.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", profile.FullName)
	require.Len(t, profile.Orders, 1)
	assert.Equal(t, "o1", profile.Orders[0].OrderID)
}

func TestCreateAdmin(t *testing.T) {
	svc, _, tokens := newTestService(t)
	ctx := context.Background()

	admin, err := svc.CreateAdmin(ctx, AdminInput{FullName: "Grace Hopper", Email: "grace@example.com", Password: "cobol"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)

	_, err = svc.CreateAdmin(ctx, AdminInput{FullName: "Grace Hopper", Email: "grace@example.com", Password: "cobol"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.CreateAdmin(ctx, AdminInput{FullName: "X", Email: "x@example.com", Password: "p", Role: "owner"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, token, err := svc.AdminLogin(ctx, "grace@example.com", "cobol")
	require.NoError(t, err)
	p, err := tokens.Parse(token)
	require.NoError(t, err)
	assert.True(t, p.CanManageOrders())
	assert.False(t, p.CanManageAdmins())
}

func TestEnsureSuperAdmin_Idempotent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureSuperAdmin(ctx, "Root Admin", "root@example.com", "secret"))
	require.NoError(t, svc.EnsureSuperAdmin(ctx, "Root Admin", "root@example.com", "secret"))

	admins, err := store.ListAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, domain.RoleSuperAdmin, admins[0].Role)
}
