package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/platform/auth"
	"github.com/glowmane/api/internal/platform/httpx"
	"github.com/glowmane/api/internal/services"
)

const maxReviewBodySize = 16 * 1024

// PublicHandlers serves the unauthenticated storefront surface: product and
// category browsing plus published reviews. Review submission is the only
// authenticated endpoint in the group.
type PublicHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	reviews services.ReviewService
}

// NewPublicHandlers constructs the storefront handlers. The reviews service
// may be nil when the feature is disabled.
func NewPublicHandlers(authn *auth.Authenticator, catalog services.CatalogService, reviews services.ReviewService) *PublicHandlers {
	return &PublicHandlers{
		authn:   authn,
		catalog: catalog,
		reviews: reviews,
	}
}

// Routes registers the public endpoints under the provided router.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{slug}", h.getProduct)
	r.Get("/categories", h.listCategories)
	r.Get("/categories/{slug}", h.getCategory)

	r.Get("/products/{productID}/reviews", h.listReviews)
	if h.authn != nil {
		r.With(h.authn.RequireFirebaseAuth()).Post("/products/{productID}/reviews", h.submitReview)
	} else {
		r.Post("/products/{productID}/reviews", h.submitReview)
	}
}

func (h *PublicHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	filter, err := productFilterFromQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}

	writeJSONResponse(w, http.StatusOK, productListPayload{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *PublicHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	if slug == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product slug is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProductBySlug(ctx, slug)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *PublicHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.catalog.ListCategories(ctx, true)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		items = append(items, buildCategoryPayload(category))
	}

	writeJSONResponse(w, http.StatusOK, categoryListPayload{Items: items})
}

func (h *PublicHandlers) getCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	if slug == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "category slug is required", http.StatusBadRequest))
		return
	}

	category, err := h.catalog.GetCategoryBySlug(ctx, slug)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCategoryPayload(category))
}

func (h *PublicHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reviews_disabled", "product reviews are not enabled", http.StatusNotFound))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	pager, err := pageQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.reviews.ListByProduct(ctx, productID, services.ReviewListFilter{
		Status:     []services.ReviewStatus{domain.ReviewPublished},
		Pagination: pager,
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}

	items := make([]reviewPayload, 0, len(page.Items))
	for _, review := range page.Items {
		items = append(items, buildReviewPayload(review))
	}

	writeJSONResponse(w, http.StatusOK, reviewListPayload{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *PublicHandlers) submitReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reviews_disabled", "product reviews are not enabled", http.StatusNotFound))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxReviewBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req submitReviewRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	review, err := h.reviews.Submit(ctx, services.SubmitReviewCommand{
		ProductID:   productID,
		CustomerID:  identity.UID,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Rating:      req.Rating,
		Title:       strings.TrimSpace(req.Title),
		Comment:     req.Comment,
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildReviewPayload(review))
}

func productFilterFromQuery(r *http.Request) (services.ProductListFilter, error) {
	query := r.URL.Query()

	pager, err := pageQuery(r)
	if err != nil {
		return services.ProductListFilter{}, err
	}

	filter := services.ProductListFilter{
		CategorySlug: strings.TrimSpace(query.Get("category")),
		Brand:        strings.TrimSpace(query.Get("brand")),
		Search:       strings.TrimSpace(query.Get("q")),
		SortBy:       strings.TrimSpace(query.Get("sort")),
		Pagination:   pager,
	}

	switch strings.ToLower(strings.TrimSpace(query.Get("order"))) {
	case "", "asc":
		filter.SortOrder = domain.SortAsc
	case "desc":
		filter.SortOrder = domain.SortDesc
	default:
		return services.ProductListFilter{}, errors.New("order must be asc or desc")
	}

	if raw := strings.TrimSpace(query.Get("price_min")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 0 {
			return services.ProductListFilter{}, errors.New("price_min must be a non-negative number")
		}
		filter.PriceMin = &value
	}
	if raw := strings.TrimSpace(query.Get("price_max")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 0 {
			return services.ProductListFilter{}, errors.New("price_max must be a non-negative number")
		}
		filter.PriceMax = &value
	}

	for key, values := range query {
		if !strings.HasPrefix(key, "attr.") || len(values) == 0 {
			continue
		}
		attrKey := strings.TrimPrefix(key, "attr.")
		if attrKey == "" {
			continue
		}
		if filter.Attributes == nil {
			filter.Attributes = make(map[string]string)
		}
		filter.Attributes[attrKey] = values[0]
	}

	return filter, nil
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "catalog entry not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", err.Error(), http.StatusInternalServerError))
	}
}

func writeReviewError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrReviewNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("review_not_found", "review not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReviewInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_review_state", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrReviewUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("reviews_unavailable", "review service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("review_error", err.Error(), http.StatusInternalServerError))
	}
}

type productListPayload struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productPayload struct {
	ID             string                  `json:"id"`
	Slug           string                  `json:"slug"`
	Name           string                  `json:"name"`
	Brand          string                  `json:"brand,omitempty"`
	Description    string                  `json:"description,omitempty"`
	CategoryID     string                  `json:"category_id,omitempty"`
	Price          float64                 `json:"price"`
	CompareAtPrice *float64                `json:"compare_at_price,omitempty"`
	Currency       string                  `json:"currency,omitempty"`
	Images         []string                `json:"images,omitempty"`
	Attributes     map[string]string       `json:"attributes,omitempty"`
	WeightGrams    int                     `json:"weight_grams,omitempty"`
	Rating         float64                 `json:"rating"`
	ReviewCount    int                     `json:"review_count"`
	Active         bool                    `json:"active"`
	Variants       []productVariantPayload `json:"variants,omitempty"`
	CreatedAt      string                  `json:"created_at,omitempty"`
	UpdatedAt      string                  `json:"updated_at,omitempty"`
}

type productVariantPayload struct {
	ID         string            `json:"id"`
	Name       string            `json:"name,omitempty"`
	SKU        string            `json:"sku,omitempty"`
	Price      *float64          `json:"price,omitempty"`
	Stock      *int              `json:"stock,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type categoryListPayload struct {
	Items []categoryPayload `json:"items"`
}

type categoryPayload struct {
	ID          string                   `json:"id"`
	Slug        string                   `json:"slug"`
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	ParentID    string                   `json:"parent_id,omitempty"`
	Filters     []filterAttributePayload `json:"filters,omitempty"`
	Position    int                      `json:"position"`
	Active      bool                     `json:"active"`
}

type filterAttributePayload struct {
	Key     string   `json:"key"`
	Label   string   `json:"label,omitempty"`
	Options []string `json:"options,omitempty"`
}

type reviewListPayload struct {
	Items         []reviewPayload `json:"items"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type reviewPayload struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	DisplayName string `json:"display_name,omitempty"`
	Rating      int    `json:"rating"`
	Title       string `json:"title,omitempty"`
	Comment     string `json:"comment,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at,omitempty"`
}

type submitReviewRequest struct {
	DisplayName string `json:"display_name"`
	Rating      int    `json:"rating"`
	Title       string `json:"title"`
	Comment     string `json:"comment"`
}

func buildProductPayload(product services.Product) productPayload {
	variants := make([]productVariantPayload, 0, len(product.Variants))
	for _, variant := range product.Variants {
		variants = append(variants, productVariantPayload{
			ID:         variant.ID,
			Name:       variant.Name,
			SKU:        variant.SKU,
			Price:      variant.Price,
			Stock:      variant.Stock,
			Attributes: cloneStringMap(variant.Attributes),
		})
	}
	return productPayload{
		ID:             product.ID,
		Slug:           product.Slug,
		Name:           product.Name,
		Brand:          product.Brand,
		Description:    product.Description,
		CategoryID:     product.CategoryID,
		Price:          product.Price,
		CompareAtPrice: product.CompareAtPrice,
		Currency:       product.Currency,
		Images:         product.Images,
		Attributes:     cloneStringMap(product.Attributes),
		WeightGrams:    product.WeightGrams,
		Rating:         product.Rating,
		ReviewCount:    product.ReviewCount,
		Active:         product.Active,
		Variants:       variants,
		CreatedAt:      formatTime(product.CreatedAt),
		UpdatedAt:      formatTime(product.UpdatedAt),
	}
}

func buildCategoryPayload(category services.Category) categoryPayload {
	filters := make([]filterAttributePayload, 0, len(category.Filters))
	for _, attr := range category.Filters {
		filters = append(filters, filterAttributePayload{
			Key:     attr.Key,
			Label:   attr.Label,
			Options: attr.Options,
		})
	}
	return categoryPayload{
		ID:          category.ID,
		Slug:        category.Slug,
		Name:        category.Name,
		Description: category.Description,
		ParentID:    category.ParentID,
		Filters:     filters,
		Position:    category.Position,
		Active:      category.Active,
	}
}

func buildReviewPayload(review services.Review) reviewPayload {
	return reviewPayload{
		ID:          review.ID,
		ProductID:   review.ProductID,
		DisplayName: review.DisplayName,
		Rating:      review.Rating,
		Title:       review.Title,
		Comment:     review.Comment,
		Status:      string(review.Status),
		CreatedAt:   formatTime(review.CreatedAt),
	}
}
