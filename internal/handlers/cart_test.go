package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/platform/auth"
	"github.com/glowmane/api/internal/services"
)

type stubCartService struct {
	getCart           func(ctx context.Context, customerID string) (services.Cart, error)
	addItem           func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error)
	removeItem        func(ctx context.Context, customerID, itemID string) (services.Cart, error)
	updateQuantity    func(ctx context.Context, customerID, itemID string, quantity int) (services.Cart, error)
	clearCart         func(ctx context.Context, customerID string) (services.Cart, error)
	applyCoupon       func(ctx context.Context, customerID, code string) (services.Cart, error)
	removeCoupon      func(ctx context.Context, customerID string) (services.Cart, error)
	setShippingMethod func(ctx context.Context, customerID string, method services.ShippingMethod) (services.Cart, error)
	summary           func(ctx context.Context, customerID string) (services.CartSummary, error)
}

func (s *stubCartService) GetCart(ctx context.Context, customerID string) (services.Cart, error) {
	return s.getCart(ctx, customerID)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	return s.addItem(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, customerID, itemID string) (services.Cart, error) {
	return s.removeItem(ctx, customerID, itemID)
}

func (s *stubCartService) UpdateQuantity(ctx context.Context, customerID, itemID string, quantity int) (services.Cart, error) {
	return s.updateQuantity(ctx, customerID, itemID, quantity)
}

func (s *stubCartService) ClearCart(ctx context.Context, customerID string) (services.Cart, error) {
	return s.clearCart(ctx, customerID)
}

func (s *stubCartService) ApplyCoupon(ctx context.Context, customerID, code string) (services.Cart, error) {
	return s.applyCoupon(ctx, customerID, code)
}

func (s *stubCartService) RemoveCoupon(ctx context.Context, customerID string) (services.Cart, error) {
	return s.removeCoupon(ctx, customerID)
}

func (s *stubCartService) SetShippingMethod(ctx context.Context, customerID string, method services.ShippingMethod) (services.Cart, error) {
	return s.setShippingMethod(ctx, customerID, method)
}

func (s *stubCartService) Summary(ctx context.Context, customerID string) (services.CartSummary, error) {
	return s.summary(ctx, customerID)
}

var _ services.CartService = (*stubCartService)(nil)

func authedRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	identity := &auth.Identity{UID: "cust1"}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func fixtureCart() services.Cart {
	return services.Cart{
		ID:             "cart1",
		CustomerID:     "cust1",
		Currency:       "EUR",
		ShippingMethod: domain.ShippingStandard,
		Items: []domain.CartItem{{
			ID:        "item1",
			ProductID: "shampoo",
			Quantity:  2,
			Snapshot:  domain.ProductSnapshot{ProductID: "shampoo", Name: "Repair Shampoo", Price: 10},
		}},
		UpdatedAt: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCartHandlersGetCart(t *testing.T) {
	svc := &stubCartService{
		getCart: func(_ context.Context, customerID string) (services.Cart, error) {
			if customerID != "cust1" {
				t.Fatalf("expected customer cust1, got %s", customerID)
			}
			return fixtureCart(), nil
		},
	}
	h := NewCartHandlers(nil, svc)

	rr := httptest.NewRecorder()
	h.getCart(rr, authedRequest(http.MethodGet, "/cart", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if etag := rr.Header().Get("ETag"); etag == "" {
		t.Fatalf("expected ETag header")
	}

	var body struct {
		Cart struct {
			ID         string `json:"id"`
			ItemsCount int    `json:"items_count"`
		} `json:"cart"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Cart.ID != "cart1" || body.Cart.ItemsCount != 1 {
		t.Fatalf("unexpected cart payload %+v", body.Cart)
	}
}

func TestCartHandlersRequireAuthentication(t *testing.T) {
	svc := &stubCartService{}
	h := NewCartHandlers(nil, svc)

	rr := httptest.NewRecorder()
	h.getCart(rr, httptest.NewRequest(http.MethodGet, "/cart", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rr.Code)
	}
}

func TestCartHandlersAddItem(t *testing.T) {
	var got services.AddCartItemCommand
	svc := &stubCartService{
		addItem: func(_ context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
			got = cmd
			return fixtureCart(), nil
		},
	}
	h := NewCartHandlers(nil, svc)

	rr := httptest.NewRecorder()
	h.addItem(rr, authedRequest(http.MethodPost, "/cart/items", `{"product_id":"shampoo","variant_id":"v-500","quantity":2}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.ProductID != "shampoo" || got.VariantID != "v-500" || got.Quantity != 2 {
		t.Fatalf("unexpected command %+v", got)
	}
	if got.CustomerID != "cust1" {
		t.Fatalf("expected customer from identity, got %s", got.CustomerID)
	}
}

func TestCartHandlersAddItemRejectsBadQuantity(t *testing.T) {
	svc := &stubCartService{}
	h := NewCartHandlers(nil, svc)

	rr := httptest.NewRecorder()
	h.addItem(rr, authedRequest(http.MethodPost, "/cart/items", `{"product_id":"shampoo","quantity":0}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemRejectsEmptyBody(t *testing.T) {
	svc := &stubCartService{}
	h := NewCartHandlers(nil, svc)

	rr := httptest.NewRecorder()
	h.addItem(rr, authedRequest(http.MethodPost, "/cart/items", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", rr.Code)
	}
}

func TestCartHandlersSummary(t *testing.T) {
	svc := &stubCartService{
		summary: func(context.Context, string) (services.CartSummary, error) {
			return services.CartSummary{
				Currency:   "EUR",
				Subtotal:   45.00,
				Shipping:   9.90,
				Tax:        10.35,
				Total:      65.25,
				ItemsCount: 3,
			}, nil
		},
	}
	h := NewCartHandlers(nil, svc)

	rr := httptest.NewRecorder()
	h.getSummary(rr, authedRequest(http.MethodGet, "/cart/summary", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body struct {
		Summary struct {
			Subtotal float64 `json:"subtotal"`
			Total    float64 `json:"total"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Summary.Subtotal != 45.00 || body.Summary.Total != 65.25 {
		t.Fatalf("unexpected summary %+v", body.Summary)
	}
}

func TestCartHandlersServiceUnavailable(t *testing.T) {
	svc := &stubCartService{
		getCart: func(context.Context, string) (services.Cart, error) {
			return services.Cart{}, fmt.Errorf("%w: backend down", services.ErrCartUnavailable)
		},
	}
	h := NewCartHandlers(nil, svc)

	rr := httptest.NewRecorder()
	h.getCart(rr, authedRequest(http.MethodGet, "/cart", ""))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
