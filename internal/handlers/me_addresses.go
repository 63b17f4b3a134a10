package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/glowmane/api/internal/platform/auth"
	"github.com/glowmane/api/internal/platform/httpx"
	"github.com/glowmane/api/internal/services"
)

func (h *MeHandlers) addressRoutes(r chi.Router) {
	r.Post("/", h.createAddress)
	r.Route("/{addressID}", func(r chi.Router) {
		r.Put("/", h.updateAddress)
		r.Delete("/", h.deleteAddress)
	})
}

func (h *MeHandlers) createAddress(w http.ResponseWriter, r *http.Request) {
	h.upsertAddress(w, r, "")
}

func (h *MeHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	addressID := strings.TrimSpace(chi.URLParam(r, "addressID"))
	if addressID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "address id is required", http.StatusBadRequest))
		return
	}
	h.upsertAddress(w, r, addressID)
}

func (h *MeHandlers) upsertAddress(w http.ResponseWriter, r *http.Request, addressID string) {
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
		status := http.StatusBadRequest
		code := "invalid_request"
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
			code = "payload_too_large"
		}
		httpx.WriteError(ctx, w, httpx.NewError(code, err.Error(), status))
		return
	}

	req, err := decodeAddressRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	address := addressFromPayload(req)
	address.ID = addressID

	saved, err := h.customers.UpsertAddress(ctx, identity.UID, address)
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if addressID == "" {
		status = http.StatusCreated
		w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+saved.ID)
	}
	writeJSONResponse(w, status, buildAddressPayload(saved))
}

func (h *MeHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
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

	addressID := strings.TrimSpace(chi.URLParam(r, "addressID"))
	if addressID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "address id is required", http.StatusBadRequest))
		return
	}

	if err := h.customers.DeleteAddress(ctx, identity.UID, addressID); err != nil {
		writeCustomerError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// addressPayload is the wire shape of a delivery address, shared by profile,
// checkout and order endpoints.
type addressPayload struct {
	ID         string `json:"id,omitempty"`
	Label      string `json:"label,omitempty"`
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
	Default    bool   `json:"default"`
}

func decodeAddressRequest(data []byte) (addressPayload, error) {
	var req addressPayload
	if err := json.Unmarshal(data, &req); err != nil {
		return addressPayload{}, errors.New("request body must be valid JSON")
	}
	if strings.TrimSpace(req.Recipient) == "" {
		return addressPayload{}, errors.New("recipient is required")
	}
	if strings.TrimSpace(req.Line1) == "" {
		return addressPayload{}, errors.New("line1 is required")
	}
	if strings.TrimSpace(req.City) == "" {
		return addressPayload{}, errors.New("city is required")
	}
	if strings.TrimSpace(req.PostalCode) == "" {
		return addressPayload{}, errors.New("postal_code is required")
	}
	if strings.TrimSpace(req.Country) == "" {
		return addressPayload{}, errors.New("country is required")
	}
	return req, nil
}

func addressFromPayload(payload addressPayload) services.Address {
	return services.Address{
		ID:         strings.TrimSpace(payload.ID),
		Label:      strings.TrimSpace(payload.Label),
		Recipient:  strings.TrimSpace(payload.Recipient),
		Line1:      strings.TrimSpace(payload.Line1),
		Line2:      strings.TrimSpace(payload.Line2),
		City:       strings.TrimSpace(payload.City),
		Region:     strings.TrimSpace(payload.Region),
		PostalCode: strings.TrimSpace(payload.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(payload.Country)),
		Phone:      strings.TrimSpace(payload.Phone),
		Default:    payload.Default,
	}
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		ID:         addr.ID,
		Label:      addr.Label,
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		Region:     addr.Region,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
		Default:    addr.Default,
	}
}
