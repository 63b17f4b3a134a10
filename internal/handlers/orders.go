package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/glowmane/api/internal/platform/auth"
	"github.com/glowmane/api/internal/platform/httpx"
	"github.com/glowmane/api/internal/services"
)

// OrderHandlers exposes order reads for the authenticated customer. Admin
// mutations live under the admin group.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs customer-facing order handlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers order endpoints under the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/number/{orderNumber}", h.getOrderByNumber)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireCustomer(ctx, w)
	if !ok {
		return
	}

	pager, err := pageQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.List(ctx, services.OrderListFilter{
		CustomerID: identity.UID,
		Pagination: pager,
	})
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

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireCustomer(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Get(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !h.mayRead(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireCustomer(ctx, w)
	if !ok {
		return
	}

	orderNumber := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
	if orderNumber == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order number is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !h.mayRead(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) requireCustomer(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// mayRead hides other customers' orders behind a 404 instead of a 403 so the
// endpoint does not leak order id existence.
func (h *OrderHandlers) mayRead(identity *auth.Identity, order services.Order) bool {
	if identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin) {
		return true
	}
	return order.CustomerID == identity.UID
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_order_state", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", err.Error(), http.StatusInternalServerError))
	}
}

type orderListPayload struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderPayload struct {
	ID               string                 `json:"id"`
	OrderNumber      string                 `json:"order_number"`
	CustomerID       string                 `json:"customer_id"`
	Customer         orderCustomerPayload   `json:"customer"`
	ShippingAddress  addressPayload         `json:"shipping_address"`
	Lines            []orderLinePayload     `json:"lines"`
	Pricing          orderPricingPayload    `json:"pricing"`
	Status           string                 `json:"status"`
	PaymentState     string                 `json:"payment_state"`
	FulfillmentState string                 `json:"fulfillment_state"`
	PaymentMethod    string                 `json:"payment_method,omitempty"`
	ShippingMethod   string                 `json:"shipping_method,omitempty"`
	Payments         []paymentPayload       `json:"payments,omitempty"`
	StatusHistory    []statusChangePayload  `json:"status_history"`
	TrackingEvents   []trackingEventPayload `json:"tracking_events,omitempty"`
	Notifications    []notificationPayload  `json:"notifications,omitempty"`
	Notes            string                 `json:"notes,omitempty"`
	ConfirmedAt      string                 `json:"confirmed_at,omitempty"`
	ShippedAt        string                 `json:"shipped_at,omitempty"`
	DeliveredAt      string                 `json:"delivered_at,omitempty"`
	CancelledAt      string                 `json:"cancelled_at,omitempty"`
	CreatedAt        string                 `json:"created_at,omitempty"`
	UpdatedAt        string                 `json:"updated_at,omitempty"`
}

type orderCustomerPayload struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type orderLinePayload struct {
	ProductID  string  `json:"product_id"`
	VariantID  string  `json:"variant_id,omitempty"`
	Name       string  `json:"name"`
	SKU        string  `json:"sku,omitempty"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
}

type orderPricingPayload struct {
	Subtotal   float64 `json:"subtotal"`
	Shipping   float64 `json:"shipping"`
	Discount   float64 `json:"discount"`
	Tax        float64 `json:"tax"`
	Total      float64 `json:"total"`
	Currency   string  `json:"currency"`
	CouponCode string  `json:"coupon_code,omitempty"`
}

type paymentPayload struct {
	ID            string            `json:"id"`
	Method        string            `json:"method,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Amount        float64           `json:"amount"`
	Status        string            `json:"status"`
	ProcessedAt   string            `json:"processed_at,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type statusChangePayload struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Actor     string `json:"actor,omitempty"`
	Reason    string `json:"reason,omitempty"`
	ChangedAt string `json:"changed_at"`
}

type trackingEventPayload struct {
	Carrier     string `json:"carrier,omitempty"`
	Code        string `json:"code,omitempty"`
	Status      string `json:"status,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	OccurredAt  string `json:"occurred_at,omitempty"`
}

type notificationPayload struct {
	Type      string `json:"type,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Message   string `json:"message,omitempty"`
	Status    string `json:"status,omitempty"`
	SentAt    string `json:"sent_at,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	lines := make([]orderLinePayload, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLinePayload{
			ProductID:  line.ProductID,
			VariantID:  line.VariantID,
			Name:       line.Name,
			SKU:        line.SKU,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			TotalPrice: line.TotalPrice,
		})
	}

	payments := make([]paymentPayload, 0, len(order.Payments))
	for _, attempt := range order.Payments {
		payments = append(payments, paymentPayload{
			ID:            attempt.ID,
			Method:        attempt.Method,
			TransactionID: attempt.TransactionID,
			Amount:        attempt.Amount,
			Status:        string(attempt.Status),
			ProcessedAt:   formatTime(attempt.ProcessedAt),
			Metadata:      cloneStringMap(attempt.Metadata),
		})
	}

	history := make([]statusChangePayload, 0, len(order.StatusHistory))
	for _, change := range order.StatusHistory {
		history = append(history, statusChangePayload{
			From:      string(change.From),
			To:        string(change.To),
			Actor:     change.Actor,
			Reason:    change.Reason,
			ChangedAt: formatTime(change.ChangedAt),
		})
	}

	tracking := make([]trackingEventPayload, 0, len(order.TrackingEvents))
	for _, event := range order.TrackingEvents {
		tracking = append(tracking, trackingEventPayload{
			Carrier:     event.Carrier,
			Code:        event.Code,
			Status:      event.Status,
			Location:    event.Location,
			Description: event.Description,
			OccurredAt:  formatTime(event.OccurredAt),
		})
	}

	notifications := make([]notificationPayload, 0, len(order.Notifications))
	for _, record := range order.Notifications {
		notifications = append(notifications, notificationPayload{
			Type:      record.Type,
			Channel:   record.Channel,
			Recipient: record.Recipient,
			Message:   record.Message,
			Status:    record.Status,
			SentAt:    formatTime(record.SentAt),
		})
	}

	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		Customer: orderCustomerPayload{
			Name:  order.Customer.Name,
			Email: order.Customer.Email,
			Phone: order.Customer.Phone,
		},
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		Lines:           lines,
		Pricing: orderPricingPayload{
			Subtotal:   order.Pricing.Subtotal,
			Shipping:   order.Pricing.Shipping,
			Discount:   order.Pricing.Discount,
			Tax:        order.Pricing.Tax,
			Total:      order.Pricing.Total,
			Currency:   order.Pricing.Currency,
			CouponCode: order.Pricing.CouponCode,
		},
		Status:           string(order.Status()),
		PaymentState:     string(order.PaymentState),
		FulfillmentState: string(order.FulfillmentState),
		PaymentMethod:    order.PaymentMethod,
		ShippingMethod:   string(order.ShippingMethod),
		Payments:         payments,
		StatusHistory:    history,
		TrackingEvents:   tracking,
		Notifications:    notifications,
		Notes:            order.Notes,
		CreatedAt:        formatTime(order.CreatedAt),
		UpdatedAt:        formatTime(order.UpdatedAt),
	}
	if order.ConfirmedAt != nil {
		payload.ConfirmedAt = formatTime(*order.ConfirmedAt)
	}
	if order.ShippedAt != nil {
		payload.ShippedAt = formatTime(*order.ShippedAt)
	}
	if order.DeliveredAt != nil {
		payload.DeliveredAt = formatTime(*order.DeliveredAt)
	}
	if order.CancelledAt != nil {
		payload.CancelledAt = formatTime(*order.CancelledAt)
	}
	return payload
}
