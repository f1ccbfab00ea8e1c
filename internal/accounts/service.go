// Package accounts manages users, admins, carts and coupons.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/marketplace/internal/auth"
	"github.com/joao-fontenele/marketplace/internal/domain"
)

const (
	welcomeCouponCode     = "10OFF"
	welcomeCouponDiscount = 10
	welcomeCouponValidity = 30 * 24 * time.Hour

	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

// Store is the persistence the service needs; *Repository satisfies it.
type Store interface {
	CreateUser(ctx context.Context, u *domain.User, coupons []domain.Coupon) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UserExists(ctx context.Context, id string) (bool, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	CountUsers(ctx context.Context) (int, error)
	UpdateUser(ctx context.Context, u *domain.User) error
	DeleteUser(ctx context.Context, id string) error
	Coupons(ctx context.Context, userID string) ([]domain.Coupon, error)

	AddToCart(ctx context.Context, userID, productID string, quantity int) error
	RemoveCartItem(ctx context.Context, userID, productID string) error
	ClearCart(ctx context.Context, userID string) error
	Cart(ctx context.Context, userID string) ([]domain.CartItem, error)

	CreateAdmin(ctx context.Context, a *domain.Admin) error
	GetAdminByEmail(ctx context.Context, email string) (*domain.Admin, error)
	ListAdmins(ctx context.Context) ([]domain.Admin, error)
}

// Products checks catalog membership before a product enters a cart.
type Products interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// OrderHistory supplies the derived order summaries shown on a profile.
type OrderHistory interface {
	UserOrderHistory(ctx context.Context, userID string) ([]domain.OrderSummary, error)
}

type TokenIssuer interface {
	Issue(p auth.Principal) (string, error)
}

type Service struct {
	store    Store
	products Products
	history  OrderHistory
	tokens   TokenIssuer
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store Store, products Products, history OrderHistory, tokens TokenIssuer, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		products: products,
		history:  history,
		tokens:   tokens,
		logger:   logger,
		now:      time.Now,
	}
}

type RegisterInput struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SplitFullName splits on whitespace: the first word is the first name and
// the remaining words form the last name.
func SplitFullName(fullName string) (first, last string, ok bool) {
	fields := strings.Fields(fullName)
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[0], strings.Join(fields[1:], " "), true
}

func validatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", domain.ErrValidation)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", domain.ErrValidation, maxPasswordBytes)
	}
	return nil
}

// Register creates a user with the welcome coupon and returns a session
// token for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, string, error) {
	if strings.TrimSpace(in.FullName) == "" || in.Email == "" || in.Password == "" {
		return nil, "", fmt.Errorf("%w: all fields are required", domain.ErrValidation)
	}
	first, last, ok := SplitFullName(in.FullName)
	if !ok {
		return nil, "", fmt.Errorf("%w: full name must include first and last name", domain.ErrValidation)
	}
	in.Email = domain.NormalizeEmail(in.Email)
	if err := checkInput(in); err != nil {
		return nil, "", err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, "", err
	}
	email := in.Email

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, "", err
	}

	user := &domain.User{
		ID:           uuid.New().String(),
		FirstName:    first,
		LastName:     last,
		Email:        email,
		PasswordHash: hash,
	}
	coupon := domain.Coupon{
		ID:         uuid.New().String(),
		Code:       welcomeCouponCode,
		Discount:   welcomeCouponDiscount,
		ExpiryDate: s.now().Add(welcomeCouponValidity).UTC(),
	}

	if err := s.store.CreateUser(ctx, user, []domain.Coupon{coupon}); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Issue(auth.UserPrincipal(user.ID))
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return user, token, nil
}

// Login verifies credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	if email == "" || password == "" {
		return nil, "", fmt.Errorf("%w: all fields are required", domain.ErrValidation)
	}

	user, err := s.store.GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
		}
		return nil, "", err
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Issue(auth.UserPrincipal(user.ID))
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

type Profile struct {
	FullName     string                `json:"fullName"`
	Email        string                `json:"email"`
	ProfileImage string                `json:"profileImage"`
	Orders       []domain.OrderSummary `json:"orders"`
}

func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	orders, err := s.history.UserOrderHistory(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &Profile{
		FullName:     user.FullName(),
		Email:        user.Email,
		ProfileImage: user.ProfileImageURL,
		Orders:       orders,
	}, nil
}

// UpdateInput carries the optional fields of a profile edit. Empty fields
// are left unchanged.
type UpdateInput struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email" validate:"omitempty,email"`
	Password  string `json:"password"`
}

func (s *Service) UpdateUser(ctx context.Context, userID string, in UpdateInput) (*domain.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if v := strings.TrimSpace(in.FirstName); v != "" {
		user.FirstName = v
	}
	if v := strings.TrimSpace(in.LastName); v != "" {
		user.LastName = v
	}
	in.Email = domain.NormalizeEmail(in.Email)
	if err := checkInput(in); err != nil {
		return nil, err
	}
	if in.Email != "" {
		user.Email = in.Email
	}
	if in.Password != "" {
		if err := validatePassword(in.Password); err != nil {
			return nil, err
		}
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user updated", "user_id", userID)
	return user, nil
}

// SetProfileImage records the URL of an image already uploaded to object
// storage.
func (s *Service) SetProfileImage(ctx context.Context, userID, url string) (*domain.User, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("%w: profile image url is required", domain.ErrValidation)
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.ProfileImageURL = url
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes the user and everything they own, orders included.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("user deleted", "user_id", userID)
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.store.ListUsers(ctx)
}

func (s *Service) CountUsers(ctx context.Context) (int, error) {
	return s.store.CountUsers(ctx)
}

func (s *Service) Coupons(ctx context.Context, userID string) ([]domain.Coupon, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.Coupons(ctx, userID)
}

func (s *Service) requireUser(ctx context.Context, userID string) error {
	exists, err := s.store.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	return nil
}

// AddToCart adds quantity of productID to the cart, merging with an
// existing line. Stock is not reserved.
func (s *Service) AddToCart(ctx context.Context, userID, productID string, quantity int) ([]domain.CartItem, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, fmt.Errorf("%w: productId is required", domain.ErrValidation)
	}
	if quantity < 1 || quantity > domain.MaxQuantity {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", domain.ErrValidation, domain.MaxQuantity)
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	exists, err := s.products.Exists(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}

	if err := s.store.AddToCart(ctx, userID, productID, quantity); err != nil {
		return nil, err
	}
	return s.store.Cart(ctx, userID)
}

func (s *Service) RemoveCartItem(ctx context.Context, userID, productID string) ([]domain.CartItem, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.store.RemoveCartItem(ctx, userID, productID); err != nil {
		return nil, err
	}
	return s.store.Cart(ctx, userID)
}

func (s *Service) ClearCart(ctx context.Context, userID string) error {
	if err := s.requireUser(ctx, userID); err != nil {
		return err
	}
	return s.store.ClearCart(ctx, userID)
}

func (s *Service) Cart(ctx context.Context, userID string) ([]domain.CartItem, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.Cart(ctx, userID)
}

// CartQuantity is the total number of units across all cart lines.
func (s *Service) CartQuantity(ctx context.Context, userID string) (int, error) {
	cart, err := s.Cart(ctx, userID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, item := range cart {
		total += item.Quantity
	}
	return total, nil
}

type AdminInput struct {
	FullName string           `json:"fullName" validate:"required"`
	Email    string           `json:"email" validate:"required,email"`
	Password string           `json:"password" validate:"required"`
	Role     domain.AdminRole `json:"role"`
}

// CreateAdmin registers an admin. The role defaults to admin.
func (s *Service) CreateAdmin(ctx context.Context, in AdminInput) (*domain.Admin, error) {
	if strings.TrimSpace(in.FullName) == "" {
		return nil, fmt.Errorf("%w: full name is required", domain.ErrValidation)
	}
	in.Email = domain.NormalizeEmail(in.Email)
	if err := checkInput(in); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	email := in.Email
	role := in.Role
	if role == "" {
		role = domain.RoleAdmin
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: role %q is not recognised", domain.ErrValidation, role)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	admin := &domain.Admin{
		ID:           uuid.New().String(),
		FullName:     strings.TrimSpace(in.FullName),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.store.CreateAdmin(ctx, admin); err != nil {
		return nil, err
	}

	s.logger.Info("admin created", "admin_id", admin.ID, "role", admin.Role)
	return admin, nil
}

func (s *Service) AdminLogin(ctx context.Context, email, password string) (*domain.Admin, string, error) {
	if email == "" || password == "" {
		return nil, "", fmt.Errorf("%w: all fields are required", domain.ErrValidation)
	}

	admin, err := s.store.GetAdminByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
		}
		return nil, "", err
	}
	if err := auth.CheckPassword(admin.PasswordHash, password); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Issue(auth.AdminPrincipal(admin.ID, admin.Role))
	if err != nil {
		return nil, "", err
	}
	return admin, token, nil
}

func (s *Service) ListAdmins(ctx context.Context) ([]domain.Admin, error) {
	return s.store.ListAdmins(ctx)
}

// EnsureSuperAdmin creates the bootstrap superadmin unless an admin with
// that email already exists.
func (s *Service) EnsureSuperAdmin(ctx context.Context, fullName, email, password string) error {
	_, err := s.store.GetAdminByEmail(ctx, domain.NormalizeEmail(email))
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	_, err = s.CreateAdmin(ctx, AdminInput{
		FullName: fullName,
		Email:    email,
		Password: password,
		Role:     domain.RoleSuperAdmin,
	})
	if errors.Is(err, domain.ErrConflict) {
		return nil
	}
	return err
}
