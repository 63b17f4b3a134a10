package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/glowmane/api/internal/platform/httpx"
	"github.com/glowmane/api/internal/services"
)

func decodeInternalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

// InternalHandlers serves service-to-service endpoints. Callers are trusted
// workers authenticated at the group level (OIDC or HMAC), not end users.
type InternalHandlers struct {
	orders    services.OrderService
	inventory services.InventoryService
}

// NewInternalHandlers constructs the internal handler group.
func NewInternalHandlers(orders services.OrderService, inventory services.InventoryService) *InternalHandlers {
	return &InternalHandlers{
		orders:    orders,
		inventory: inventory,
	}
}

// Routes registers internal endpoints under the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders/{orderID}/notifications", h.recordNotification)
	r.Post("/inventory/{sku}/sync", h.syncInventory)
}

// recordNotification lets the notification worker report delivery outcomes
// back onto the order's append-only notification log.
func (h *InternalHandlers) recordNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req struct {
		Type      string `json:"type"`
		Channel   string `json:"channel"`
		Recipient string `json:"recipient"`
		Message   string `json:"message"`
		Status    string `json:"status"`
	}
	if !decodeInternalBody(w, r, &req) {
		return
	}

	order, err := h.orders.RecordNotification(ctx, services.RecordNotificationCommand{
		OrderID:   orderID,
		Type:      strings.TrimSpace(req.Type),
		Channel:   strings.TrimSpace(req.Channel),
		Recipient: strings.TrimSpace(req.Recipient),
		Message:   req.Message,
		Status:    strings.TrimSpace(req.Status),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

// syncInventory applies a warehouse stock delta for one SKU.
func (h *InternalHandlers) syncInventory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory service is unavailable", http.StatusServiceUnavailable))
		return
	}

	sku := strings.TrimSpace(chi.URLParam(r, "sku"))
	if sku == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "sku is required", http.StatusBadRequest))
		return
	}

	var req struct {
		Delta int `json:"delta"`
	}
	if !decodeInternalBody(w, r, &req) {
		return
	}
	if req.Delta == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "delta must be non-zero", http.StatusBadRequest))
		return
	}

	level, err := h.inventory.Adjust(ctx, sku, req.Delta)
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, inventoryLevelPayload{
		SKU:       level.SKU,
		ProductID: level.ProductID,
		VariantID: level.VariantID,
		Available: level.Available,
		UpdatedAt: formatTime(level.UpdatedAt),
	})
}
