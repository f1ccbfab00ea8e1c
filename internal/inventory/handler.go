package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/marketplace/internal/auth"
	"github.com/joao-fontenele/marketplace/internal/domain"
	"github.com/joao-fontenele/marketplace/internal/web"
)

// Catalog is the product storage the handler needs; *Repository satisfies it.
type Catalog interface {
	Create(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
	ListByCategory(ctx context.Context, category domain.Category) ([]domain.Product, error)
	ListCreatedSince(ctx context.Context, since time.Time) ([]domain.Product, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, p *domain.Product) error
	Delete(ctx context.Context, id string) error
	MarkSold(ctx context.Context, id string) (*domain.Product, error)
	SetQuantity(ctx context.Context, id string, quantity int) (*domain.Product, error)
}

const defaultRecentDays = 7

type Handler struct {
	catalog Catalog
	logger  *slog.Logger
	now     func() time.Time
}

func NewHandler(catalog Catalog, logger *slog.Logger) *Handler {
	return &Handler{
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// Register mounts the catalog routes. Reads are public; writes need
// CanManageCatalog.
func (h *Handler) Register(mux *http.ServeMux, guard *auth.Guard) {
	manage := auth.Principal.CanManageCatalog

	mux.HandleFunc("GET /products", h.HandleList)
	mux.HandleFunc("GET /products/count", h.HandleCount)
	mux.HandleFunc("GET /products/recent", h.HandleRecent)
	mux.HandleFunc("GET /products/category/{category}", h.HandleListByCategory)
	mux.HandleFunc("GET /products/{productId}", h.HandleGet)
	mux.Handle("POST /products", guard.Require(manage, h.HandleCreate))
	mux.Handle("PUT /products/{productId}", guard.Require(manage, h.HandleUpdate))
	mux.Handle("DELETE /products/{productId}", guard.Require(manage, h.HandleDelete))
	mux.Handle("PATCH /products/{productId}/sold", guard.Require(manage, h.HandleMarkSold))
	mux.Handle("PATCH /products/{productId}/quantity", guard.Require(manage, h.HandleSetQuantity))
}

type productRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Category    domain.Category `json:"category"`
	Images      []string        `json:"images"`
}

func (req *productRequest) validate() error {
	var problems []string
	if strings.TrimSpace(req.Name) == "" {
		problems = append(problems, "name is required")
	}
	if req.Price.IsNegative() {
		problems = append(problems, "price must not be negative")
	} else if !domain.ValidMoney(req.Price) {
		problems = append(problems, "price must have at most two decimal places and fewer than 11 integer digits")
	}
	if req.Quantity < 0 || req.Quantity > domain.MaxQuantity {
		problems = append(problems, fmt.Sprintf("quantity must be between 0 and %d", domain.MaxQuantity))
	}
	if !req.Category.Valid() {
		problems = append(problems, "category is not recognised")
	}
	if len(req.Images) == 0 {
		problems = append(problems, "at least one image is required")
	}
	for _, img := range req.Images {
		if strings.TrimSpace(img) == "" {
			problems = append(problems, "image urls must not be blank")
			break
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	if err := req.validate(); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	product := &domain.Product{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Category:    req.Category,
		Images:      req.Images,
	}
	if err := h.catalog.Create(r.Context(), product); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	h.logger.Info("product created", "product_id", product.ID, "category", product.Category)
	web.Message(w, h.logger, http.StatusCreated, "Product created successfully", map[string]any{"product": product})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Products retrieved successfully", map[string]any{"products": products})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetByID(r.Context(), r.PathValue("productId"))
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, h.logger, http.StatusOK, product)
}

func (h *Handler) HandleListByCategory(w http.ResponseWriter, r *http.Request) {
	category := domain.Category(r.PathValue("category"))
	if !category.Valid() {
		web.Error(w, h.logger, fmt.Errorf("%w: category %q is not recognised", domain.ErrValidation, category))
		return
	}

	products, err := h.catalog.ListByCategory(r.Context(), category)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Products retrieved successfully", map[string]any{"products": products})
}

func (h *Handler) HandleCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.catalog.Count(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, h.logger, http.StatusOK, map[string]int{"count": n})
}

// HandleRecent lists products added in the last ?days= days (default 7).
func (h *Handler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	days := defaultRecentDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			web.Error(w, h.logger, fmt.Errorf("%w: days must be a positive integer", domain.ErrValidation))
			return
		}
		days = n
	}

	since := h.now().AddDate(0, 0, -days)
	products, err := h.catalog.ListCreatedSince(r.Context(), since)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Recent products retrieved successfully", map[string]any{"products": products})
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	if err := req.validate(); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	product := &domain.Product{
		ID:          r.PathValue("productId"),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		Images:      req.Images,
	}
	if err := h.catalog.Update(r.Context(), product); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	h.logger.Info("product updated", "product_id", product.ID)
	web.Message(w, h.logger, http.StatusOK, "Product updated successfully", map[string]any{"product": product})
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("productId")
	if err := h.catalog.Delete(r.Context(), id); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	h.logger.Info("product deleted", "product_id", id)
	web.Message(w, h.logger, http.StatusOK, "Product deleted successfully", nil)
}

func (h *Handler) HandleMarkSold(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.MarkSold(r.Context(), r.PathValue("productId"))
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	h.logger.Info("product marked as sold", "product_id", product.ID)
	web.Message(w, h.logger, http.StatusOK, "Product marked as sold", map[string]any{"product": product})
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *Handler) HandleSetQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	if req.Quantity == nil || *req.Quantity < 0 || *req.Quantity > domain.MaxQuantity {
		web.Error(w, h.logger, fmt.Errorf("%w: quantity must be an integer between 0 and %d", domain.ErrValidation, domain.MaxQuantity))
		return
	}

	product, err := h.catalog.SetQuantity(r.Context(), r.PathValue("productId"), *req.Quantity)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	h.logger.Info("product quantity set", "product_id", product.ID, "quantity", product.Quantity)
	web.Message(w, h.logger, http.StatusOK, "Product quantity updated", map[string]any{"product": product})
}
