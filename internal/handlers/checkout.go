package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/platform/auth"
	"github.com/glowmane/api/internal/platform/httpx"
	"github.com/glowmane/api/internal/services"
)

const maxCheckoutRequestBody = 32 * 1024

// CheckoutHandlers exposes checkout submission for authenticated customers.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	group.Post("/", h.submit)
}

type checkoutRequest struct {
	Customer struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer"`
	ShippingAddress addressPayload        `json:"shipping_address"`
	Lines           []checkoutLineRequest `json:"lines"`
	PaymentMethod   string                `json:"payment_method"`
	Notes           string                `json:"notes"`
}

type checkoutLineRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type checkoutResponse struct {
	Order              orderPayload `json:"order"`
	PaymentSessionID   string       `json:"payment_session_id,omitempty"`
	PaymentRedirectURL string       `json:"payment_redirect_url,omitempty"`
}

func (h *CheckoutHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req checkoutRequest
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errEmptyBody.Error(), http.StatusBadRequest))
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	lines := make([]services.CheckoutLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, services.CheckoutLine{
			ProductID: strings.TrimSpace(line.ProductID),
			VariantID: strings.TrimSpace(line.VariantID),
			Quantity:  line.Quantity,
		})
	}

	cmd := services.CheckoutCommand{
		CustomerID: identity.UID,
		Customer: domain.CustomerInfo{
			Name:  strings.TrimSpace(req.Customer.Name),
			Email: strings.TrimSpace(req.Customer.Email),
			Phone: strings.TrimSpace(req.Customer.Phone),
		},
		ShippingAddress: addressFromPayload(req.ShippingAddress),
		Lines:           lines,
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		Notes:           strings.TrimSpace(req.Notes),
	}

	result, err := h.checkout.Submit(ctx, cmd)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutResponse{
		Order:              buildOrderPayload(result.Order),
		PaymentSessionID:   result.PaymentSessionID,
		PaymentRedirectURL: result.PaymentRedirectURL,
	})
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "no purchasable lines in request", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutUnavailable), errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}
