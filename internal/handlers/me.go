package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/glowmane/api/internal/platform/auth"
	"github.com/glowmane/api/internal/platform/httpx"
	"github.com/glowmane/api/internal/services"
)

const maxProfileBodySize = 64 * 1024

var (
	errBodyTooLarge     = errors.New("request body too large")
	errEmptyBody        = errors.New("request body is required")
	errNoEditableFields = errors.New("no editable fields provided")
)

// MeHandlers exposes authenticated profile, address and wishlist endpoints for
// the current customer.
type MeHandlers struct {
	authn     *auth.Authenticator
	customers services.CustomerService
	wishlist  services.WishlistService
}

// NewMeHandlers constructs handlers enforcing Firebase authentication before invoking the customer service.
func NewMeHandlers(authn *auth.Authenticator, customers services.CustomerService, wishlist services.WishlistService) *MeHandlers {
	return &MeHandlers{
		authn:     authn,
		customers: customers,
		wishlist:  wishlist,
	}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getProfile)
	r.Patch("/", h.updateProfile)
	r.Route("/addresses", h.addressRoutes)
	r.Route("/wishlist", h.wishlistRoutes)
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	customer, err := h.customers.Get(ctx, identity.UID)
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCustomerPayload(customer))
}

func (h *MeHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxProfileBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	updateReq, err := parseUpdateProfileRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.UpdateCustomerCommand{
		CustomerID:  identity.UID,
		DisplayName: cloneStringPointer(updateReq.displayName),
		Phone:       cloneStringPointer(updateReq.phone),
	}

	updated, err := h.customers.UpdateProfile(ctx, cmd)
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCustomerPayload(updated))
}

type customerPayload struct {
	ID          string           `json:"id"`
	Email       string           `json:"email,omitempty"`
	DisplayName string           `json:"display_name,omitempty"`
	Phone       string           `json:"phone,omitempty"`
	Addresses   []addressPayload `json:"addresses"`
	CreatedAt   string           `json:"created_at,omitempty"`
	UpdatedAt   string           `json:"updated_at,omitempty"`
}

func buildCustomerPayload(customer services.Customer) customerPayload {
	addresses := make([]addressPayload, 0, len(customer.Addresses))
	for _, addr := range customer.Addresses {
		addresses = append(addresses, buildAddressPayload(addr))
	}
	return customerPayload{
		ID:          customer.ID,
		Email:       customer.Email,
		DisplayName: customer.DisplayName,
		Phone:       customer.Phone,
		Addresses:   addresses,
		CreatedAt:   formatTime(customer.CreatedAt),
		UpdatedAt:   formatTime(customer.UpdatedAt),
	}
}

type updateProfileRequest struct {
	displayName *string
	phone       *string
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxProfileBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func parseUpdateProfileRequest(data []byte) (updateProfileRequest, error) {
	var req updateProfileRequest

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return req, fmt.Errorf("invalid JSON payload: %w", err)
	}
	if len(raw) == 0 {
		return req, errNoEditableFields
	}

	updateFields := 0
	for key, value := range raw {
		switch key {
		case "display_name":
			if isJSONNull(value) {
				return req, errors.New("display_name must not be null")
			}
			var name string
			if err := json.Unmarshal(value, &name); err != nil {
				return req, errors.New("display_name must be a string")
			}
			req.displayName = &name
			updateFields++
		case "phone":
			if isJSONNull(value) {
				empty := ""
				req.phone = &empty
			} else {
				var phone string
				if err := json.Unmarshal(value, &phone); err != nil {
					return req, errors.New("phone must be a string")
				}
				req.phone = &phone
			}
			updateFields++
		default:
			return req, fmt.Errorf("field %q is not editable", key)
		}
	}

	if updateFields == 0 {
		return req, errNoEditableFields
	}

	return req, nil
}

func isJSONNull(value json.RawMessage) bool {
	return strings.EqualFold(strings.TrimSpace(string(value)), "null")
}

func parseRFC3339(value string) (time.Time, error) {
	layouts := []string{time.RFC3339Nano, time.RFC3339}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", value)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func cloneStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}

func writeCustomerError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, services.ErrCustomerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("profile_not_found", "profile not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCustomerInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_profile_field", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCustomerUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile repository unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("profile_error", err.Error(), http.StatusInternalServerError))
	}
}
