package accounts

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/marketplace/internal/auth"
	"github.com/joao-fontenele/marketplace/internal/domain"
	"github.com/joao-fontenele/marketplace/internal/web"
)

type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux, guard *auth.Guard) {
	self := auth.AnyAccount
	manageUsers := auth.Principal.CanManageUsers
	manageAdmins := auth.Principal.CanManageAdmins

	mux.HandleFunc("POST /users/register", h.HandleRegister)
	mux.HandleFunc("POST /users/login", h.HandleLogin)
	mux.Handle("GET /users", guard.Require(manageUsers, h.HandleListUsers))
	mux.Handle("GET /users/count", guard.Require(manageUsers, h.HandleCountUsers))
	mux.Handle("GET /users/{userId}", guard.Require(self, h.HandleProfile))
	mux.Handle("PUT /users/{userId}", guard.Require(self, h.HandleUpdate))
	mux.Handle("PATCH /users/{userId}/profile-image", guard.Require(self, h.HandleSetProfileImage))
	mux.Handle("DELETE /users/{userId}", guard.Require(self, h.HandleDelete))
	mux.Handle("GET /users/{userId}/coupons", guard.Require(self, h.HandleCoupons))

	mux.Handle("GET /users/{userId}/cart", guard.Require(self, h.HandleGetCart))
	mux.Handle("GET /users/{userId}/cart/quantity", guard.Require(self, h.HandleCartQuantity))
	mux.Handle("POST /users/{userId}/cart", guard.Require(self, h.HandleAddToCart))
	mux.Handle("DELETE /users/{userId}/cart/{productId}", guard.Require(self, h.HandleRemoveCartItem))
	mux.Handle("DELETE /users/{userId}/cart", guard.Require(self, h.HandleClearCart))

	mux.HandleFunc("POST /admins/login", h.HandleAdminLogin)
	mux.Handle("POST /admins", guard.Require(manageAdmins, h.HandleCreateAdmin))
	mux.Handle("GET /admins", guard.Require(manageAdmins, h.HandleListAdmins))
}

// userID returns the {userId} path value once the caller is allowed to act
// for it. On failure the error response has already been written.
func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("userId")
	if err := auth.ActFor(r, id); err != nil {
		web.Error(w, h.logger, err)
		return "", false
	}
	return id, true
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.FullName()}
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := web.Decode(w, r, &in); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	user, token, err := h.svc.Register(r.Context(), in)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	web.Message(w, h.logger, http.StatusCreated, "User registered successfully", map[string]any{
		"token": token,
		"user":  toUserResponse(user),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	user, token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	web.Message(w, h.logger, http.StatusOK, "Login successful", map[string]any{
		"token": token,
		"user":  toUserResponse(user),
	})
}

func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	profile, err := h.svc.Profile(r.Context(), id)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, h.logger, http.StatusOK, profile)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	var in UpdateInput
	if err := web.Decode(w, r, &in); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	user, err := h.svc.UpdateUser(r.Context(), id, in)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "User information updated successfully", map[string]any{"user": user})
}

type profileImageRequest struct {
	ProfileImageURL string `json:"profileImageUrl"`
}

func (h *Handler) HandleSetProfileImage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req profileImageRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	user, err := h.svc.SetProfileImage(r.Context(), id, req.ProfileImageURL)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Profile image updated successfully", map[string]any{
		"profileImageUrl": user.ProfileImageURL,
	})
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteUser(r.Context(), id); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "User and associated orders deleted successfully", nil)
}

func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Users retrieved successfully", map[string]any{"users": users})
}

func (h *Handler) HandleCountUsers(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.CountUsers(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "User count retrieved successfully", map[string]any{"userCount": n})
}

func (h *Handler) HandleCoupons(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	coupons, err := h.svc.Coupons(r.Context(), id)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, h.logger, http.StatusOK, map[string]any{"coupons": coupons})
}

type cartRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) HandleAddToCart(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req cartRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	cart, err := h.svc.AddToCart(r.Context(), id, req.ProductID, req.Quantity)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Product added to cart", map[string]any{"cart": cart})
}

func (h *Handler) HandleGetCart(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	cart, err := h.svc.Cart(r.Context(), id)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, h.logger, http.StatusOK, map[string]any{"cart": cart})
}

func (h *Handler) HandleCartQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	total, err := h.svc.CartQuantity(r.Context(), id)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, h.logger, http.StatusOK, map[string]int{"totalQuantity": total})
}

func (h *Handler) HandleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	cart, err := h.svc.RemoveCartItem(r.Context(), id, r.PathValue("productId"))
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Product removed from cart", map[string]any{"cart": cart})
}

func (h *Handler) HandleClearCart(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.svc.ClearCart(r.Context(), id); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Cart cleared successfully", nil)
}

func (h *Handler) HandleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	admin, token, err := h.svc.AdminLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Login successful", map[string]any{
		"token": token,
		"admin": admin,
	})
}

func (h *Handler) HandleCreateAdmin(w http.ResponseWriter, r *http.Request) {
	var in AdminInput
	if err := web.Decode(w, r, &in); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	admin, err := h.svc.CreateAdmin(r.Context(), in)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusCreated, "Admin created successfully", map[string]any{"admin": admin})
}

func (h *Handler) HandleListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.svc.ListAdmins(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Admins retrieved successfully", map[string]any{"admins": admins})
}
