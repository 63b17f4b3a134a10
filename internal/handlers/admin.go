package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/platform/auth"
	"github.com/glowmane/api/internal/platform/httpx"
	"github.com/glowmane/api/internal/repositories"
	"github.com/glowmane/api/internal/services"
)

const maxAdminBodySize = 256 * 1024

// AdminHandlers groups the staff-only management surface: catalog and coupon
// writes, inventory adjustments, order lifecycle operations, review
// moderation, reports, and the audit log.
type AdminHandlers struct {
	authn     *auth.Authenticator
	catalog   services.CatalogService
	coupons   services.CouponService
	inventory services.InventoryService
	orders    services.OrderService
	refunds   services.RefundService
	reviews   services.ReviewService
	reports   services.ReportService
	audit     services.AuditLogService
}

// AdminHandlersDeps lists the services the admin surface operates on. Nil
// entries disable the corresponding endpoints.
type AdminHandlersDeps struct {
	Authenticator *auth.Authenticator
	Catalog       services.CatalogService
	Coupons       services.CouponService
	Inventory     services.InventoryService
	Orders        services.OrderService
	Refunds       services.RefundService
	Reviews       services.ReviewService
	Reports       services.ReportService
	Audit         services.AuditLogService
}

// NewAdminHandlers constructs the admin handler group.
func NewAdminHandlers(deps AdminHandlersDeps) *AdminHandlers {
	return &AdminHandlers{
		authn:     deps.Authenticator,
		catalog:   deps.Catalog,
		coupons:   deps.Coupons,
		inventory: deps.Inventory,
		orders:    deps.Orders,
		refunds:   deps.Refunds,
		reviews:   deps.Reviews,
		reports:   deps.Reports,
		audit:     deps.Audit,
	}
}

// Routes registers the admin endpoints. Every route requires a staff or admin
// role on the Firebase identity.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}

	r.Put("/products", h.upsertProduct)
	r.Delete("/products/{productID}", h.deleteProduct)
	r.Put("/categories", h.upsertCategory)

	r.Get("/coupons", h.listCoupons)
	r.Put("/coupons", h.upsertCoupon)
	r.Delete("/coupons/{couponID}", h.deleteCoupon)

	r.Post("/inventory/{sku}/adjust", h.adjustInventory)

	r.Get("/orders", h.listOrders)
	r.Post("/orders/{orderID}/transition", h.transitionOrder)
	r.Post("/orders/{orderID}/cancel", h.cancelOrder)
	r.Post("/orders/{orderID}/payments", h.addPayment)
	r.Post("/orders/{orderID}/refund", h.refundOrder)
	r.Post("/orders/{orderID}/tracking", h.addTrackingEvent)
	r.Post("/orders/{orderID}/notifications", h.recordNotification)

	r.Post("/reviews/{reviewID}/moderate", h.moderateReview)

	r.Get("/reports/revenue", h.revenueReport)
	r.Get("/reports/top-products", h.topProductsReport)
	r.Post("/reports/orders-export", h.exportOrders)

	r.Get("/audit-logs", h.listAuditLogs)
}

func (h *AdminHandlers) actor(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		return identity.UID
	}
	return ""
}

func (h *AdminHandlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
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

func (h *AdminHandlers) upsertProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req productPayload
	if !h.decode(w, r, &req) {
		return
	}

	saved, err := h.catalog.UpsertProduct(ctx, productFromPayload(req))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if strings.TrimSpace(req.ID) == "" {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, buildProductPayload(saved))
}

func (h *AdminHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.DeleteProduct(ctx, productID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) upsertCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req categoryPayload
	if !h.decode(w, r, &req) {
		return
	}

	saved, err := h.catalog.UpsertCategory(ctx, categoryFromPayload(req))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if strings.TrimSpace(req.ID) == "" {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, buildCategoryPayload(saved))
}

func (h *AdminHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupons_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := pageQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.coupons.List(ctx, pager)
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}

	items := make([]couponPayload, 0, len(page.Items))
	for _, coupon := range page.Items {
		items = append(items, buildCouponPayload(coupon))
	}
	writeJSONResponse(w, http.StatusOK, couponListPayload{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *AdminHandlers) upsertCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupons_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req couponPayload
	if !h.decode(w, r, &req) {
		return
	}

	coupon, err := couponFromPayload(req)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	saved, err := h.coupons.Upsert(ctx, coupon)
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if strings.TrimSpace(req.ID) == "" {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, buildCouponPayload(saved))
}

func (h *AdminHandlers) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupons_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
		return
	}

	couponID := strings.TrimSpace(chi.URLParam(r, "couponID"))
	if couponID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "coupon id is required", http.StatusBadRequest))
		return
	}

	if err := h.coupons.Delete(ctx, couponID); err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) adjustInventory(w http.ResponseWriter, r *http.Request) {
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
	if !h.decode(w, r, &req) {
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

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	filter, err := orderFilterFromQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.List(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListPayload{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *AdminHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req struct {
		TargetStatus   string `json:"target_status"`
		Reason         string `json:"reason"`
		ExpectedStatus string `json:"expected_status"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TargetStatus) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "target_status is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:        orderID,
		TargetStatus:   domain.OrderStatus(strings.TrimSpace(req.TargetStatus)),
		Actor:          h.actor(ctx),
		Reason:         strings.TrimSpace(req.Reason),
		ExpectedStatus: domain.OrderStatus(strings.TrimSpace(req.ExpectedStatus)),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req struct {
		Reason string `json:"reason"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		Actor:   h.actor(ctx),
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminHandlers) addPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req struct {
		Method        string            `json:"method"`
		TransactionID string            `json:"transaction_id"`
		Amount        float64           `json:"amount"`
		Status        string            `json:"status"`
		Metadata      map[string]string `json:"metadata"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.orders.AddPayment(ctx, services.AddPaymentCommand{
		OrderID:       orderID,
		Method:        strings.TrimSpace(req.Method),
		TransactionID: strings.TrimSpace(req.TransactionID),
		Amount:        req.Amount,
		Status:        domain.PaymentAttemptStatus(strings.TrimSpace(req.Status)),
		Actor:         h.actor(ctx),
		Metadata:      req.Metadata,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refunds == nil {
		httpx.WriteError(ctx, w, httpx.NewError("refunds_unavailable", "refund service is unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req struct {
		Amount float64 `json:"amount"`
		Reason string  `json:"reason"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.refunds.Refund(ctx, services.RefundOrderCommand{
		OrderID: orderID,
		Amount:  req.Amount,
		Reason:  strings.TrimSpace(req.Reason),
		Actor:   h.actor(ctx),
	})
	if err != nil {
		writeRefundError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminHandlers) addTrackingEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req struct {
		Carrier     string `json:"carrier"`
		Code        string `json:"code"`
		Status      string `json:"status"`
		Location    string `json:"location"`
		Description string `json:"description"`
		OccurredAt  string `json:"occurred_at"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	var occurredAt time.Time
	if raw := strings.TrimSpace(req.OccurredAt); raw != "" {
		parsed, err := parseRFC3339(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "occurred_at must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		occurredAt = parsed
	}

	order, err := h.orders.AddTrackingEvent(ctx, services.AddTrackingEventCommand{
		OrderID:     orderID,
		Carrier:     strings.TrimSpace(req.Carrier),
		Code:        strings.TrimSpace(req.Code),
		Status:      strings.TrimSpace(req.Status),
		Location:    strings.TrimSpace(req.Location),
		Description: strings.TrimSpace(req.Description),
		OccurredAt:  occurredAt,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminHandlers) recordNotification(w http.ResponseWriter, r *http.Request) {
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
	if !h.decode(w, r, &req) {
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

func (h *AdminHandlers) moderateReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reviews_unavailable", "review service is unavailable", http.StatusServiceUnavailable))
		return
	}

	reviewID := strings.TrimSpace(chi.URLParam(r, "reviewID"))
	var req struct {
		Status string `json:"status"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	review, err := h.reviews.Moderate(ctx, services.ModerateReviewCommand{
		ReviewID: reviewID,
		Status:   domain.ReviewStatus(strings.TrimSpace(req.Status)),
		Actor:    h.actor(ctx),
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildReviewPayload(review))
}

func (h *AdminHandlers) revenueReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reports_unavailable", "report service is unavailable", http.StatusServiceUnavailable))
		return
	}

	dateRange, err := dateRangeFromQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	report, err := h.reports.Revenue(ctx, dateRange)
	if err != nil {
		writeReportError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, revenueReportPayload{
		Currency:    report.Currency,
		OrderCount:  report.OrderCount,
		GrossTotal:  report.GrossTotal,
		TaxTotal:    report.TaxTotal,
		ShippingSum: report.ShippingSum,
		DiscountSum: report.DiscountSum,
		NetTotal:    report.NetTotal,
		From:        formatTime(report.From),
		To:          formatTime(report.To),
	})
}

func (h *AdminHandlers) topProductsReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reports_unavailable", "report service is unavailable", http.StatusServiceUnavailable))
		return
	}

	dateRange, err := dateRangeFromQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	limit := 10
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = parsed
	}

	rows, err := h.reports.TopProducts(ctx, dateRange, limit)
	if err != nil {
		writeReportError(ctx, w, err)
		return
	}

	items := make([]productSalesPayload, 0, len(rows))
	for _, row := range rows {
		items = append(items, productSalesPayload{
			ProductID: row.ProductID,
			Name:      row.Name,
			Quantity:  row.Quantity,
			Revenue:   row.Revenue,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AdminHandlers) exportOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reports_unavailable", "report service is unavailable", http.StatusServiceUnavailable))
		return
	}

	dateRange, err := dateRangeFromQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.reports.ExportOrdersCSV(ctx, dateRange)
	if err != nil {
		writeReportError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, exportResultPayload{
		Bucket:      result.Bucket,
		ObjectPath:  result.ObjectPath,
		RowCount:    result.RowCount,
		GeneratedAt: formatTime(result.GeneratedAt),
	})
}

func (h *AdminHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.audit == nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_unavailable", "audit log service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := pageQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	dateRange, err := dateRangeFromQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	page, err := h.audit.List(ctx, repositories.AuditLogFilter{
		TargetRef:  strings.TrimSpace(query.Get("target_ref")),
		Actor:      strings.TrimSpace(query.Get("actor")),
		ActorType:  strings.TrimSpace(query.Get("actor_type")),
		Action:     strings.TrimSpace(query.Get("action")),
		DateRange:  dateRange,
		Pagination: pager,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_error", err.Error(), http.StatusInternalServerError))
		return
	}

	items := make([]auditLogPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, auditLogPayload{
			ID:        entry.ID,
			Actor:     entry.Actor,
			ActorType: entry.ActorType,
			Action:    entry.Action,
			TargetRef: entry.TargetRef,
			Severity:  entry.Severity,
			RequestID: entry.RequestID,
			Metadata:  entry.Metadata,
			Diff:      entry.Diff,
			CreatedAt: formatTime(entry.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, auditLogListPayload{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func orderFilterFromQuery(r *http.Request) (services.OrderListFilter, error) {
	pager, err := pageQuery(r)
	if err != nil {
		return services.OrderListFilter{}, err
	}
	dateRange, err := dateRangeFromQuery(r)
	if err != nil {
		return services.OrderListFilter{}, err
	}

	query := r.URL.Query()
	filter := services.OrderListFilter{
		CustomerID: strings.TrimSpace(query.Get("customer_id")),
		DateRange:  dateRange,
		Pagination: pager,
	}
	for _, raw := range query["payment_state"] {
		if state := strings.TrimSpace(raw); state != "" {
			filter.PaymentStates = append(filter.PaymentStates, domain.PaymentState(state))
		}
	}
	for _, raw := range query["fulfillment_state"] {
		if state := strings.TrimSpace(raw); state != "" {
			filter.Fulfillments = append(filter.Fulfillments, domain.FulfillmentState(state))
		}
	}
	return filter, nil
}

func dateRangeFromQuery(r *http.Request) (domain.DateRange, error) {
	var dateRange domain.DateRange
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		parsed, err := parseRFC3339(raw)
		if err != nil {
			return domain.DateRange{}, errors.New("from must be an RFC3339 timestamp")
		}
		dateRange.From = parsed
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		parsed, err := parseRFC3339(raw)
		if err != nil {
			return domain.DateRange{}, errors.New("to must be an RFC3339 timestamp")
		}
		dateRange.To = parsed
	}
	return dateRange, nil
}

func writeCouponError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCouponInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCouponUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("coupons_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("coupon_error", err.Error(), http.StatusInternalServerError))
	}
}

func writeInventoryError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInventoryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("sku_not_found", "sku not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInventoryInsufficient):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInventoryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", err.Error(), http.StatusInternalServerError))
	}
}

func writeRefundError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrRefundInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrRefundInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_refundable", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrRefundUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("refunds_unavailable", "payment provider is unavailable", http.StatusBadGateway))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("refund_error", err.Error(), http.StatusInternalServerError))
	}
}

func writeReportError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrReportInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReportUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("reports_unavailable", "report service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("report_error", err.Error(), http.StatusInternalServerError))
	}
}

type couponListPayload struct {
	Items         []couponPayload `json:"items"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type couponPayload struct {
	ID          string  `json:"id,omitempty"`
	Code        string  `json:"code"`
	Type        string  `json:"type"`
	Value       float64 `json:"value"`
	MinAmount   float64 `json:"min_amount,omitempty"`
	MaxDiscount float64 `json:"max_discount,omitempty"`
	Active      bool    `json:"active"`
	StartsAt    string  `json:"starts_at,omitempty"`
	ExpiresAt   string  `json:"expires_at,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

type inventoryLevelPayload struct {
	SKU       string `json:"sku"`
	ProductID string `json:"product_id,omitempty"`
	VariantID string `json:"variant_id,omitempty"`
	Available int    `json:"available"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type revenueReportPayload struct {
	Currency    string  `json:"currency"`
	OrderCount  int     `json:"order_count"`
	GrossTotal  float64 `json:"gross_total"`
	TaxTotal    float64 `json:"tax_total"`
	ShippingSum float64 `json:"shipping_sum"`
	DiscountSum float64 `json:"discount_sum"`
	NetTotal    float64 `json:"net_total"`
	From        string  `json:"from,omitempty"`
	To          string  `json:"to,omitempty"`
}

type productSalesPayload struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	Revenue   float64 `json:"revenue"`
}

type exportResultPayload struct {
	Bucket      string `json:"bucket"`
	ObjectPath  string `json:"object_path"`
	RowCount    int    `json:"row_count"`
	GeneratedAt string `json:"generated_at,omitempty"`
}

type auditLogListPayload struct {
	Items         []auditLogPayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type auditLogPayload struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor,omitempty"`
	ActorType string         `json:"actor_type,omitempty"`
	Action    string         `json:"action"`
	TargetRef string         `json:"target_ref,omitempty"`
	Severity  string         `json:"severity,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Diff      map[string]any `json:"diff,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
}

func buildCouponPayload(coupon services.Coupon) couponPayload {
	payload := couponPayload{
		ID:          coupon.ID,
		Code:        coupon.Code,
		Type:        string(coupon.Type),
		Value:       coupon.Value,
		MinAmount:   coupon.MinAmount,
		MaxDiscount: coupon.MaxDiscount,
		Active:      coupon.Active,
		CreatedAt:   formatTime(coupon.CreatedAt),
		UpdatedAt:   formatTime(coupon.UpdatedAt),
	}
	if coupon.StartsAt != nil {
		payload.StartsAt = formatTime(*coupon.StartsAt)
	}
	if coupon.ExpiresAt != nil {
		payload.ExpiresAt = formatTime(*coupon.ExpiresAt)
	}
	return payload
}

func couponFromPayload(payload couponPayload) (services.Coupon, error) {
	coupon := services.Coupon{
		ID:          strings.TrimSpace(payload.ID),
		Code:        strings.TrimSpace(payload.Code),
		Type:        domain.CouponType(strings.TrimSpace(payload.Type)),
		Value:       payload.Value,
		MinAmount:   payload.MinAmount,
		MaxDiscount: payload.MaxDiscount,
		Active:      payload.Active,
	}
	if raw := strings.TrimSpace(payload.StartsAt); raw != "" {
		parsed, err := parseRFC3339(raw)
		if err != nil {
			return services.Coupon{}, errors.New("starts_at must be an RFC3339 timestamp")
		}
		coupon.StartsAt = &parsed
	}
	if raw := strings.TrimSpace(payload.ExpiresAt); raw != "" {
		parsed, err := parseRFC3339(raw)
		if err != nil {
			return services.Coupon{}, errors.New("expires_at must be an RFC3339 timestamp")
		}
		coupon.ExpiresAt = &parsed
	}
	return coupon, nil
}

func productFromPayload(payload productPayload) services.Product {
	variants := make([]domain.ProductVariant, 0, len(payload.Variants))
	for _, variant := range payload.Variants {
		variants = append(variants, domain.ProductVariant{
			ID:         strings.TrimSpace(variant.ID),
			Name:       strings.TrimSpace(variant.Name),
			SKU:        strings.TrimSpace(variant.SKU),
			Price:      variant.Price,
			Stock:      variant.Stock,
			Attributes: cloneStringMap(variant.Attributes),
		})
	}
	return services.Product{
		ID:             strings.TrimSpace(payload.ID),
		Slug:           strings.TrimSpace(payload.Slug),
		Name:           strings.TrimSpace(payload.Name),
		Brand:          strings.TrimSpace(payload.Brand),
		Description:    payload.Description,
		CategoryID:     strings.TrimSpace(payload.CategoryID),
		Price:          payload.Price,
		CompareAtPrice: payload.CompareAtPrice,
		Currency:       strings.ToUpper(strings.TrimSpace(payload.Currency)),
		Images:         payload.Images,
		Attributes:     cloneStringMap(payload.Attributes),
		WeightGrams:    payload.WeightGrams,
		Active:         payload.Active,
		Variants:       variants,
	}
}

func categoryFromPayload(payload categoryPayload) services.Category {
	filters := make([]domain.FilterAttribute, 0, len(payload.Filters))
	for _, attr := range payload.Filters {
		filters = append(filters, domain.FilterAttribute{
			Key:     strings.TrimSpace(attr.Key),
			Label:   strings.TrimSpace(attr.Label),
			Options: attr.Options,
		})
	}
	return services.Category{
		ID:          strings.TrimSpace(payload.ID),
		Slug:        strings.TrimSpace(payload.Slug),
		Name:        strings.TrimSpace(payload.Name),
		Description: payload.Description,
		ParentID:    strings.TrimSpace(payload.ParentID),
		Filters:     filters,
		Position:    payload.Position,
		Active:      payload.Active,
	}
}
