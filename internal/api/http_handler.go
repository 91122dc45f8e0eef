package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"product-catalog-client/internal/domain"
	"product-catalog-client/internal/filter"
	"product-catalog-client/internal/state"
	"product-catalog-client/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// maxProductRetries caps the retries a single product read may ask for.
const maxProductRetries = 5

// CatalogState is the part of the product store the handlers read and drive.
type CatalogState interface {
	LoadProducts(ctx context.Context, force bool) error
	FilteredProducts() []domain.Product
	UpdateFilters(patch domain.FilterPatch)
	ClearFilters()
	Categories() []string
	PriceRange() domain.PriceRange
	FavoriteProducts() []domain.Product
	AddToFavorites(ctx context.Context, id int64)
	RemoveFromFavorites(ctx context.Context, id int64)
	ToggleFavorite(ctx context.Context, id int64)
	CartProducts() []domain.Product
	CartTotal() float64
	AddToCart(ctx context.Context, id int64)
	RemoveFromCart(ctx context.Context, id int64)
	ClearCart(ctx context.Context)
	Snapshot() state.Snapshot
}

// ProductReader reads single products.
type ProductReader interface {
	ExecuteRequired(ctx context.Context, id int64) (domain.Product, error)
	ExecuteEnriched(ctx context.Context, id int64) (*usecase.EnrichedProduct, error)
	ExecuteWithRetry(ctx context.Context, id int64, maxRetries int) (*domain.Product, error)
}

// ProductWriter sends product mutations upstream.
type ProductWriter interface {
	Create(ctx context.Context, in domain.ProductInput) (domain.Product, error)
	Update(ctx context.Context, id int64, in domain.ProductInput) (domain.Product, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	state    CatalogState
	reader   ProductReader
	writer   ProductWriter
	validate *validator.Validate
	logger   *log.Logger
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(st CatalogState, reader ProductReader, writer ProductWriter, logger *log.Logger) *HTTPHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &HTTPHandler{
		state:    st,
		reader:   reader,
		writer:   writer,
		validate: validator.New(),
		logger:   logger,
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("ERROR: Failed to encode JSON response: %v", err)
		}
	}
}

// respondWithDomainError maps the error taxonomy onto status codes.
func (h *HTTPHandler) respondWithDomainError(w http.ResponseWriter, op string, err error) {
	var (
		ve *domain.ValidationError
		te *domain.TransportError
		se *domain.ServerError
		re *domain.RemoteError
	)
	switch {
	case errors.As(err, &ve):
		respondWithError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondWithError(w, http.StatusNotFound, domain.UserMessage(err))
	case errors.As(err, &te), errors.As(err, &se), errors.As(err, &re):
		h.logger.Printf("ERROR: %s upstream call failed: %v", op, err)
		respondWithError(w, http.StatusBadGateway, domain.UserMessage(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusGatewayTimeout, "Request canceled")
	default:
		h.logger.Printf("ERROR: %s failed: %v", op, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to "+op)
	}
}

func parseProductID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// --- Product list view ---

// PaginationInfo mirrors the pagination block of list responses.
type PaginationInfo struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// ProductListResponse is the filtered product view. Error carries the load
// failure message when the list could not be refreshed.
type ProductListResponse struct {
	Data       []domain.Product   `json:"data"`
	Pagination PaginationInfo     `json:"pagination"`
	Filters    domain.FilterState `json:"filters"`
	LastFetch  *time.Time         `json:"last_fetch,omitempty"`
	Error      string             `json:"error,omitempty"`
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	qParams := r.URL.Query()

	force, _ := strconv.ParseBool(qParams.Get("refresh"))
	if err := h.state.LoadProducts(r.Context(), force); err != nil {
		h.respondWithDomainError(w, "load products", err)
		return
	}

	limit, err := strconv.Atoi(qParams.Get("limit"))
	if err != nil || limit <= 0 {
		limit = domain.MaxPageLimit
	}
	page, err := strconv.Atoi(qParams.Get("page"))
	if err != nil || page <= 0 {
		page = 1
	}
	opts := domain.ListOptions{Limit: limit, Offset: (page - 1) * limit}.Clamped()
	result := filter.Paginate(h.state.FilteredProducts(), opts)

	snap := h.state.Snapshot()
	respondWithJSON(w, http.StatusOK, ProductListResponse{
		Data: result.Products,
		Pagination: PaginationInfo{
			Page:       page,
			Limit:      opts.Limit,
			TotalItems: result.Total,
			TotalPages: result.TotalPages,
		},
		Filters:   snap.Filters,
		LastFetch: snap.LastFetch,
		Error:     snap.Loading.Error,
	})
}

func (h *HTTPHandler) RefreshProducts(w http.ResponseWriter, r *http.Request) {
	if err := h.state.LoadProducts(r.Context(), true); err != nil {
		h.respondWithDomainError(w, "refresh products", err)
		return
	}
	snap := h.state.Snapshot()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"total_items": len(snap.Products),
		"last_fetch":  snap.LastFetch,
		"error":       snap.Loading.Error,
	})
}

func (h *HTTPHandler) GetProductByID(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseProductID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	if details, _ := strconv.ParseBool(r.URL.Query().Get("details")); details {
		enriched, err := h.reader.ExecuteEnriched(r.Context(), productID)
		if err != nil {
			h.respondWithDomainError(w, "retrieve product", err)
			return
		}
		if enriched == nil {
			respondWithError(w, http.StatusNotFound, domain.UserMessage(domain.ErrNotFound))
			return
		}
		respondWithJSON(w, http.StatusOK, enriched)
		return
	}

	if raw := r.URL.Query().Get("retries"); raw != "" {
		retries, err := strconv.Atoi(raw)
		if err != nil || retries < 0 || retries > maxProductRetries {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("retries must be an integer between 0 and %d", maxProductRetries))
			return
		}
		product, err := h.reader.ExecuteWithRetry(r.Context(), productID, retries)
		if err != nil {
			h.respondWithDomainError(w, "retrieve product", err)
			return
		}
		if product == nil {
			respondWithError(w, http.StatusNotFound, domain.UserMessage(domain.ErrNotFound))
			return
		}
		respondWithJSON(w, http.StatusOK, product)
		return
	}

	product, err := h.reader.ExecuteRequired(r.Context(), productID)
	if err != nil {
		h.respondWithDomainError(w, "retrieve product", err)
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

// --- Product mutations ---

// ProductInput defines the expected input for creating or updating a product.
// Value rules beyond presence are applied by the domain layer.
type ProductInput struct {
	Title       string  `json:"title" validate:"required,max=100"`
	Price       float64 `json:"price" validate:"gte=0"`
	Description string  `json:"description" validate:"omitempty,max=2000"`
	Image       string  `json:"image" validate:"required,url,max=2048"`
	Category    string  `json:"category" validate:"required,max=100"`
}

func (in ProductInput) toDomain() domain.ProductInput {
	return domain.ProductInput{
		Title:       in.Title,
		Price:       in.Price,
		Description: in.Description,
		Image:       in.Image,
		Category:    in.Category,
	}
}

func (h *HTTPHandler) decodeProductInput(w http.ResponseWriter, r *http.Request) (ProductInput, bool) {
	var input ProductInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return input, false
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return input, false
	}
	return input, true
}

// reload refreshes the product list after a mutation. Failures only leave the
// list stale, so they are logged.
func (h *HTTPHandler) reload(ctx context.Context) {
	if err := h.state.LoadProducts(ctx, true); err != nil {
		h.logger.Printf("WARN: product list reload after mutation failed: %v", err)
	}
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeProductInput(w, r)
	if !ok {
		return
	}

	created, err := h.writer.Create(r.Context(), input.toDomain())
	if err != nil {
		h.respondWithDomainError(w, "create product", err)
		return
	}
	h.reload(r.Context())
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseProductID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}
	input, ok := h.decodeProductInput(w, r)
	if !ok {
		return
	}

	updated, err := h.writer.Update(r.Context(), productID, input.toDomain())
	if err != nil {
		h.respondWithDomainError(w, "update product", err)
		return
	}
	h.reload(r.Context())
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseProductID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	deleted, err := h.writer.Delete(r.Context(), productID)
	if err != nil {
		h.respondWithDomainError(w, "delete product", err)
		return
	}
	if !deleted {
		respondWithError(w, http.StatusNotFound, domain.UserMessage(domain.ErrNotFound))
		return
	}
	h.reload(r.Context())
	respondWithJSON(w, http.StatusNoContent, nil)
}

// --- Filters ---

// FilterPatchInput is a partial filter update. Absent fields stay unchanged;
// clear_* flags unset the optional bounds.
type FilterPatchInput struct {
	SearchTerm    *string  `json:"search_term" validate:"omitempty,max=200"`
	Category      *string  `json:"category" validate:"omitempty,max=100"`
	MinPrice      *float64 `json:"min_price" validate:"omitempty,gte=0"`
	MaxPrice      *float64 `json:"max_price" validate:"omitempty,gte=0"`
	SortBy        *string  `json:"sort_by" validate:"omitempty,oneof=price title category"`
	SortOrder     *string  `json:"sort_order" validate:"omitempty,oneof=asc desc"`
	ClearCategory bool     `json:"clear_category"`
	ClearMinPrice bool     `json:"clear_min_price"`
	ClearMaxPrice bool     `json:"clear_max_price"`
	ClearSort     bool     `json:"clear_sort"`
}

func (in FilterPatchInput) toDomain() domain.FilterPatch {
	patch := domain.FilterPatch{
		SearchTerm:    in.SearchTerm,
		Category:      in.Category,
		MinPrice:      in.MinPrice,
		MaxPrice:      in.MaxPrice,
		ClearCategory: in.ClearCategory,
		ClearMinPrice: in.ClearMinPrice,
		ClearMaxPrice: in.ClearMaxPrice,
	}
	if in.SortBy != nil {
		by := domain.SortField(*in.SortBy)
		patch.SortBy = &by
	}
	if in.ClearSort {
		none := domain.SortNone
		patch.SortBy = &none
	}
	if in.SortOrder != nil {
		order := domain.SortOrder(*in.SortOrder)
		patch.SortOrder = &order
	}
	return patch
}

func (h *HTTPHandler) GetFilters(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.state.Snapshot().Filters)
}

func (h *HTTPHandler) UpdateFilters(w http.ResponseWriter, r *http.Request) {
	var input FilterPatchInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	h.state.UpdateFilters(input.toDomain())
	respondWithJSON(w, http.StatusOK, h.state.Snapshot().Filters)
}

func (h *HTTPHandler) ClearFilters(w http.ResponseWriter, r *http.Request) {
	h.state.ClearFilters()
	respondWithJSON(w, http.StatusOK, h.state.Snapshot().Filters)
}

// --- Derived views ---

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.state.Categories())
}

func (h *HTTPHandler) GetPriceRange(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.state.PriceRange())
}

func (h *HTTPHandler) GetState(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.state.Snapshot())
}

// --- Favorites ---

// SelectionResponse lists the ids of a favorites or cart selection and the
// loaded products among them.
type SelectionResponse struct {
	IDs      []int64          `json:"ids"`
	Products []domain.Product `json:"products"`
	Total    *float64         `json:"total,omitempty"`
}

func (h *HTTPHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, SelectionResponse{
		IDs:      h.state.Snapshot().Favorites,
		Products: h.state.FavoriteProducts(),
	})
}

func (h *HTTPHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	h.withProductID(w, r, h.state.AddToFavorites, h.ListFavorites)
}

func (h *HTTPHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	h.withProductID(w, r, h.state.RemoveFromFavorites, h.ListFavorites)
}

func (h *HTTPHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	h.withProductID(w, r, h.state.ToggleFavorite, h.ListFavorites)
}

// --- Cart ---

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	total := h.state.CartTotal()
	respondWithJSON(w, http.StatusOK, SelectionResponse{
		IDs:      h.state.Snapshot().Cart,
		Products: h.state.CartProducts(),
		Total:    &total,
	})
}

func (h *HTTPHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	h.withProductID(w, r, h.state.AddToCart, h.GetCart)
}

func (h *HTTPHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	h.withProductID(w, r, h.state.RemoveFromCart, h.GetCart)
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.state.ClearCart(r.Context())
	h.GetCart(w, r)
}

func (h *HTTPHandler) withProductID(w http.ResponseWriter, r *http.Request, action func(context.Context, int64), then http.HandlerFunc) {
	productID, ok := parseProductID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}
	action(r.Context(), productID)
	then(w, r)
}

// --- Route Registration ---

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		// Static paths before {productId}.
		r.Post("/refresh", h.RefreshProducts)
		r.Get("/categories", h.ListCategories)
		r.Get("/price-range", h.GetPriceRange)

		r.Route("/{productId}", func(r chi.Router) {
			r.Get("/", h.GetProductByID)
			r.Put("/", h.UpdateProduct)
			r.Delete("/", h.DeleteProduct)
		})
	})

	r.Route("/api/v1/filters", func(r chi.Router) {
		r.Get("/", h.GetFilters)
		r.Patch("/", h.UpdateFilters)
		r.Delete("/", h.ClearFilters)
	})

	r.Route("/api/v1/favorites", func(r chi.Router) {
		r.Get("/", h.ListFavorites)
		r.Put("/{productId}", h.AddFavorite)
		r.Delete("/{productId}", h.RemoveFavorite)
		r.Post("/{productId}/toggle", h.ToggleFavorite)
	})

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Put("/{productId}", h.AddToCart)
		r.Delete("/{productId}", h.RemoveFromCart)
	})

	r.Get("/api/v1/state", h.GetState)
}
