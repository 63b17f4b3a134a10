package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/glowmane/api/internal/platform/auth"
	"github.com/glowmane/api/internal/platform/httpx"
	"github.com/glowmane/api/internal/platform/pagination"
	"github.com/glowmane/api/internal/services"
)

func (h *MeHandlers) wishlistRoutes(r chi.Router) {
	r.Get("/", h.listWishlist)
	r.Put("/{productID}", h.addWishlistItem)
	r.Delete("/{productID}", h.removeWishlistItem)
}

func (h *MeHandlers) listWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlist == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_unavailable", "wishlist service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	pager, err := pageQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.wishlist.List(ctx, identity.UID, pager)
	if err != nil {
		writeWishlistError(ctx, w, err)
		return
	}

	items := make([]wishlistItemPayload, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, wishlistItemPayload{
			ProductID: item.ProductID,
			AddedAt:   formatTime(item.AddedAt),
		})
	}

	writeJSONResponse(w, http.StatusOK, wishlistPayload{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *MeHandlers) addWishlistItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlist == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_unavailable", "wishlist service is unavailable", http.StatusServiceUnavailable))
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

	created, err := h.wishlist.Add(ctx, identity.UID, productID)
	if err != nil {
		writeWishlistError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, map[string]any{"product_id": productID, "created": created})
}

func (h *MeHandlers) removeWishlistItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlist == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_unavailable", "wishlist service is unavailable", http.StatusServiceUnavailable))
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

	if err := h.wishlist.Remove(ctx, identity.UID, productID); err != nil {
		writeWishlistError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type wishlistPayload struct {
	Items         []wishlistItemPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type wishlistItemPayload struct {
	ProductID string `json:"product_id"`
	AddedAt   string `json:"added_at,omitempty"`
}

// pageQuery maps the shared pageSize/pageToken query parameters onto the
// service pagination input.
func pageQuery(r *http.Request) (services.Pagination, error) {
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		return services.Pagination{}, err
	}
	return services.Pagination{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	}, nil
}

func writeWishlistError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrWishlistInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrWishlistUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_unavailable", "wishlist service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_error", err.Error(), http.StatusInternalServerError))
	}
}
