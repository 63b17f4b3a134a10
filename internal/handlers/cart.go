package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/platform/auth"
	"github.com/glowmane/api/internal/platform/httpx"
	"github.com/glowmane/api/internal/services"
)

// CartHandlers exposes authenticated cart endpoints for the current customer.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

const maxCartBodySize = 16 * 1024

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Get("/summary", h.getSummary)
	r.Post("/items", h.addItem)
	r.Patch("/items/{itemID}", h.updateQuantity)
	r.Delete("/items/{itemID}", h.removeItem)
	r.Post("/coupon", h.applyCoupon)
	r.Delete("/coupon", h.removeCoupon)
	r.Put("/shipping-method", h.setShippingMethod)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID, ok := h.requireCustomer(ctx, w)
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(ctx, customerID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, cart)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID, ok := h.requireCustomer(ctx, w)
	if !ok {
		return
	}

	cart, err := h.carts.ClearCart(ctx, customerID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, cart)
}

func (h *CartHandlers) getSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID, ok := h.requireCustomer(ctx, w)
	if !ok {
		return
	}

	summary, err := h.carts.Summary(ctx, customerID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartSummaryResponse{Summary: buildCartSummaryPayload(summary)})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID, ok := h.requireCustomer(ctx, w)
	if !ok {
		return
	}

	var req addCartItemRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product_id is required", http.StatusBadRequest))
		return
	}
	if req.Quantity <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity must be positive", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		CustomerID: customerID,
		ProductID:  strings.TrimSpace(req.ProductID),
		VariantID:  strings.TrimSpace(req.VariantID),
		Quantity:   req.Quantity,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, cart)
}

func (h *CartHandlers) updateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID, ok := h.requireCustomer(ctx, w)
	if !ok {
		return
	}
	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	var req updateCartItemRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.UpdateQuantity(ctx, customerID, itemID, *req.Quantity)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, cart)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID, ok := h.requireCustomer(ctx, w)
	if !ok {
		return
	}
	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.RemoveItem(ctx, customerID, itemID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, cart)
}

func (h *CartHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID, ok := h.requireCustomer(ctx, w)
	if !ok {
		return
	}

	var req applyCouponRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "code is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.ApplyCoupon(ctx, customerID, strings.TrimSpace(req.Code))
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, cart)
}

func (h *CartHandlers) removeCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID, ok := h.requireCustomer(ctx, w)
	if !ok {
		return
	}

	cart, err := h.carts.RemoveCoupon(ctx, customerID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, cart)
}

func (h *CartHandlers) setShippingMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID, ok := h.requireCustomer(ctx, w)
	if !ok {
		return
	}

	var req setShippingMethodRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}
	method := domain.ShippingMethod(strings.ToLower(strings.TrimSpace(req.Method)))
	if method == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "method is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.SetShippingMethod(ctx, customerID, method)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, cart)
}

func (h *CartHandlers) requireCustomer(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func (h *CartHandlers) decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errEmptyBody.Error(), http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

func (h *CartHandlers) writeCart(w http.ResponseWriter, cart services.Cart) {
	setCartResponseHeaders(w, cart)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart operation failed", http.StatusInternalServerError))
	}
}

func setCartResponseHeaders(w http.ResponseWriter, cart services.Cart) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	if etag := buildCartETag(cart); etag != "" {
		w.Header().Set("ETag", etag)
	}
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		ID:             strings.TrimSpace(cart.ID),
		CustomerID:     strings.TrimSpace(cart.CustomerID),
		Currency:       strings.ToUpper(strings.TrimSpace(cart.Currency)),
		ItemsCount:     len(cart.Items),
		Items:          buildCartItems(cart.Items),
		ShippingMethod: string(cart.ShippingMethod),
		Metadata:       cloneStringMap(cart.Metadata),
	}

	if cart.Coupon != nil {
		payload.Coupon = &cartCouponPayload{
			Code:  strings.TrimSpace(cart.Coupon.Code),
			Type:  string(cart.Coupon.Type),
			Value: cart.Coupon.Value,
		}
	}
	if !cart.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(cart.UpdatedAt)
	}

	return payload
}

func buildCartItems(items []services.CartItem) []cartItemPayload {
	if len(items) == 0 {
		return []cartItemPayload{}
	}

	payload := make([]cartItemPayload, 0, len(items))
	for _, item := range items {
		entry := cartItemPayload{
			ID:          strings.TrimSpace(item.ID),
			ProductID:   strings.TrimSpace(item.ProductID),
			VariantID:   strings.TrimSpace(item.VariantID),
			Name:        item.Snapshot.Name,
			VariantName: item.Snapshot.VariantName,
			SKU:         item.Snapshot.SKU,
			Image:       item.Snapshot.Image,
			Quantity:    item.Quantity,
			MaxQuantity: item.MaxQuantity,
			UnitPrice:   item.Snapshot.Price,
			WeightGrams: item.Snapshot.WeightGrams,
		}
		if !item.AddedAt.IsZero() {
			entry.AddedAt = formatTime(item.AddedAt)
		}
		if item.UpdatedAt != nil && !item.UpdatedAt.IsZero() {
			entry.UpdatedAt = formatTime(*item.UpdatedAt)
		}
		payload = append(payload, entry)
	}
	return payload
}

func buildCartSummaryPayload(summary services.CartSummary) cartSummaryPayload {
	payload := cartSummaryPayload{
		Currency:         strings.ToUpper(strings.TrimSpace(summary.Currency)),
		Subtotal:         summary.Subtotal,
		Shipping:         summary.Shipping,
		Discount:         summary.Discount,
		Tax:              summary.Tax,
		Total:            summary.Total,
		ItemsCount:       summary.ItemsCount,
		TotalWeightGrams: summary.TotalWeightGrams,
		ShippingDetail: &cartShippingDetailPayload{
			Method:        string(summary.ShippingDetail.Method),
			Rate:          summary.ShippingDetail.Rate,
			FreeThreshold: summary.ShippingDetail.FreeThreshold,
			Free:          summary.ShippingDetail.Free,
		},
	}

	if len(summary.Lines) > 0 {
		payload.Lines = make([]cartLinePayload, 0, len(summary.Lines))
		for _, line := range summary.Lines {
			payload.Lines = append(payload.Lines, cartLinePayload{
				ItemID:    line.ItemID,
				ProductID: line.ProductID,
				VariantID: line.VariantID,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
				LineTotal: line.LineTotal,
			})
		}
	}
	if summary.AppliedCoupon != nil {
		payload.Coupon = &cartCouponEffectPayload{
			Code:     summary.AppliedCoupon.Code,
			Type:     string(summary.AppliedCoupon.Type),
			Amount:   summary.AppliedCoupon.Amount,
			Capped:   summary.AppliedCoupon.Capped,
			BelowMin: summary.AppliedCoupon.BelowMin,
			Inactive: summary.AppliedCoupon.Inactive,
		}
	}
	return payload
}

func buildCartETag(cart services.Cart) string {
	if strings.TrimSpace(cart.ID) == "" || cart.UpdatedAt.IsZero() {
		return ""
	}
	input := fmt.Sprintf("%s:%d", strings.TrimSpace(cart.ID), cart.UpdatedAt.UTC().UnixNano())
	sum := sha256.Sum256([]byte(input))
	token := hex.EncodeToString(sum[:8])
	return fmt.Sprintf(`W/"%s"`, token)
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartSummaryResponse struct {
	Summary cartSummaryPayload `json:"summary"`
}

type cartPayload struct {
	ID             string             `json:"id"`
	CustomerID     string             `json:"customer_id"`
	Currency       string             `json:"currency"`
	ItemsCount     int                `json:"items_count"`
	Items          []cartItemPayload  `json:"items"`
	Coupon         *cartCouponPayload `json:"coupon,omitempty"`
	ShippingMethod string             `json:"shipping_method,omitempty"`
	Metadata       map[string]string  `json:"metadata,omitempty"`
	UpdatedAt      string             `json:"updated_at,omitempty"`
}

type cartCouponPayload struct {
	Code  string  `json:"code"`
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

type cartItemPayload struct {
	ID          string  `json:"id"`
	ProductID   string  `json:"product_id"`
	VariantID   string  `json:"variant_id,omitempty"`
	Name        string  `json:"name"`
	VariantName string  `json:"variant_name,omitempty"`
	SKU         string  `json:"sku,omitempty"`
	Image       string  `json:"image,omitempty"`
	Quantity    int     `json:"quantity"`
	MaxQuantity int     `json:"max_quantity"`
	UnitPrice   float64 `json:"unit_price"`
	WeightGrams int     `json:"weight_grams,omitempty"`
	AddedAt     string  `json:"added_at,omitempty"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

type cartSummaryPayload struct {
	Currency         string                     `json:"currency"`
	Subtotal         float64                    `json:"subtotal"`
	Shipping         float64                    `json:"shipping"`
	Discount         float64                    `json:"discount"`
	Tax              float64                    `json:"tax"`
	Total            float64                    `json:"total"`
	ItemsCount       int                        `json:"items_count"`
	TotalWeightGrams int                        `json:"total_weight_grams"`
	Lines            []cartLinePayload          `json:"lines,omitempty"`
	Coupon           *cartCouponEffectPayload   `json:"coupon,omitempty"`
	ShippingDetail   *cartShippingDetailPayload `json:"shipping_detail,omitempty"`
}

type cartLinePayload struct {
	ItemID    string  `json:"item_id"`
	ProductID string  `json:"product_id"`
	VariantID string  `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

type cartCouponEffectPayload struct {
	Code     string  `json:"code"`
	Type     string  `json:"type"`
	Amount   float64 `json:"amount"`
	Capped   bool    `json:"capped,omitempty"`
	BelowMin bool    `json:"below_min,omitempty"`
	Inactive bool    `json:"inactive,omitempty"`
}

type cartShippingDetailPayload struct {
	Method        string  `json:"method"`
	Rate          float64 `json:"rate"`
	FreeThreshold float64 `json:"free_threshold"`
	Free          bool    `json:"free"`
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

type setShippingMethodRequest struct {
	Method string `json:"method"`
}
