package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	domain "github.com/glowmane/api/internal/domain"
)

// fakeRepoError satisfies repositories.RepositoryError for stub repositories.
type fakeRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e fakeRepoError) Error() string       { return e.msg }
func (e fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e fakeRepoError) IsConflict() bool    { return e.conflict }
func (e fakeRepoError) IsUnavailable() bool { return e.unavailable }

type memCartRepo struct {
	carts   map[string]domain.Cart
	upserts int
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{carts: make(map[string]domain.Cart)}
}

func (r *memCartRepo) UpsertCart(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	r.upserts++
	r.carts[cart.CustomerID] = cart
	return cart, nil
}

func (r *memCartRepo) GetCart(_ context.Context, customerID string) (domain.Cart, error) {
	cart, ok := r.carts[customerID]
	if !ok {
		return domain.Cart{}, fakeRepoError{msg: "cart not found", notFound: true}
	}
	return cart, nil
}

func (r *memCartRepo) DeleteCart(_ context.Context, customerID string) error {
	delete(r.carts, customerID)
	return nil
}

type stubCatalog struct {
	products map[string]Product
}

func (s *stubCatalog) GetProduct(_ context.Context, productID string) (Product, error) {
	product, ok := s.products[productID]
	if !ok {
		return Product{}, fmt.Errorf("%w: product %s", ErrCatalogNotFound, productID)
	}
	return product, nil
}

type stubCoupons struct {
	coupons map[string]Coupon
}

func (s *stubCoupons) FindByCode(_ context.Context, code string) (Coupon, error) {
	coupon, ok := s.coupons[code]
	if !ok {
		return Coupon{}, fmt.Errorf("%w: coupon %s", ErrCouponNotFound, code)
	}
	return coupon, nil
}

type stubStock struct {
	levels map[string]int
}

func (s *stubStock) AvailableFor(_ context.Context, sku string) (int, bool, error) {
	level, ok := s.levels[sku]
	return level, ok, nil
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func newTestCartService(t *testing.T, repo *memCartRepo, catalog *stubCatalog, coupons *stubCoupons, stock *stubStock) CartService {
	t.Helper()
	engine := newTestEngine(t)
	counter := 0
	deps := CartServiceDeps{
		Repository: repo,
		Catalog:    catalog,
		Engine:     engine,
		Clock:      func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) },
		IDGenerator: func() string {
			counter++
			return fmt.Sprintf("id-%d", counter)
		},
	}
	if coupons != nil {
		deps.Coupons = coupons
	}
	if stock != nil {
		deps.Stock = stock
	}
	svc, err := NewCartService(deps)
	if err != nil {
		t.Fatalf("unexpected error building cart service: %v", err)
	}
	return svc
}

func shampooCatalog() *stubCatalog {
	return &stubCatalog{products: map[string]Product{
		"shampoo": {
			ID:    "shampoo",
			Name:  "Repair Shampoo",
			Price: 10.00,
			Variants: []domain.ProductVariant{
				{ID: "v-500", Name: "500ml", SKU: "SH-500", Price: floatPtr(12.00), Stock: intPtr(3)},
			},
		},
		"serum": {ID: "serum", Name: "Silk Serum", Price: 25.00},
	}}
}

func TestAddItemMergesDuplicateLines(t *testing.T) {
	repo := newMemCartRepo()
	svc := newTestCartService(t, repo, shampooCatalog(), nil, nil)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, AddCartItemCommand{CustomerID: "cust1", ProductID: "shampoo", Quantity: 2}); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	cart, err := svc.AddItem(ctx, AddCartItemCommand{CustomerID: "cust1", ProductID: "shampoo", Quantity: 3})
	if err != nil {
		t.Fatalf("second add failed: %v", err)
	}

	if len(cart.Items) != 1 {
		t.Fatalf("expected one merged line, got %d", len(cart.Items))
	}
	if cart.Items[0].Quantity != 5 {
		t.Fatalf("expected merged quantity 5, got %d", cart.Items[0].Quantity)
	}
}

func TestAddItemDistinctVariantsStaySeparate(t *testing.T) {
	repo := newMemCartRepo()
	svc := newTestCartService(t, repo, shampooCatalog(), nil, nil)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, AddCartItemCommand{CustomerID: "cust1", ProductID: "shampoo", Quantity: 1}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	cart, err := svc.AddItem(ctx, AddCartItemCommand{CustomerID: "cust1", ProductID: "shampoo", VariantID: "v-500", Quantity: 1})
	if err != nil {
		t.Fatalf("variant add failed: %v", err)
	}

	if len(cart.Items) != 2 {
		t.Fatalf("expected two lines for distinct variants, got %d", len(cart.Items))
	}
}

func TestAddItemClampsToVariantStock(t *testing.T) {
	repo := newMemCartRepo()
	svc := newTestCartService(t, repo, shampooCatalog(), nil, nil)

	cart, err := svc.AddItem(context.Background(), AddCartItemCommand{
		CustomerID: "cust1", ProductID: "shampoo", VariantID: "v-500", Quantity: 10,
	})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if cart.Items[0].Quantity != 3 {
		t.Fatalf("expected quantity clamped to stock 3, got %d", cart.Items[0].Quantity)
	}
	if cart.Items[0].MaxQuantity != 3 {
		t.Fatalf("expected max quantity 3, got %d", cart.Items[0].MaxQuantity)
	}
}

func TestAddItemClampsToInventoryLevel(t *testing.T) {
	repo := newMemCartRepo()
	stock := &stubStock{levels: map[string]int{"SH-500": 2}}
	svc := newTestCartService(t, repo, shampooCatalog(), nil, stock)

	cart, err := svc.AddItem(context.Background(), AddCartItemCommand{
		CustomerID: "cust1", ProductID: "shampoo", VariantID: "v-500", Quantity: 10,
	})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if cart.Items[0].Quantity != 2 {
		t.Fatalf("expected quantity clamped to inventory 2, got %d", cart.Items[0].Quantity)
	}
}

func TestAddItemDefaultMaxQuantity(t *testing.T) {
	repo := newMemCartRepo()
	svc := newTestCartService(t, repo, shampooCatalog(), nil, nil)

	cart, err := svc.AddItem(context.Background(), AddCartItemCommand{
		CustomerID: "cust1", ProductID: "serum", Quantity: 250,
	})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if cart.Items[0].Quantity != 99 {
		t.Fatalf("expected quantity clamped to 99, got %d", cart.Items[0].Quantity)
	}
}

func TestAddItemIgnoresNonPositiveQuantity(t *testing.T) {
	repo := newMemCartRepo()
	svc := newTestCartService(t, repo, shampooCatalog(), nil, nil)
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, AddCartItemCommand{CustomerID: "cust1", ProductID: "serum", Quantity: 0})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected no items after zero-quantity add, got %d", len(cart.Items))
	}
}

func TestRemoveItemAbsentIsNoOp(t *testing.T) {
	repo := newMemCartRepo()
	svc := newTestCartService(t, repo, shampooCatalog(), nil, nil)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, AddCartItemCommand{CustomerID: "cust1", ProductID: "serum", Quantity: 1}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	cart, err := svc.RemoveItem(ctx, "cust1", "missing-item")
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected item untouched, got %d items", len(cart.Items))
	}
}

func TestUpdateQuantityZeroRemovesLine(t *testing.T) {
	repo := newMemCartRepo()
	svc := newTestCartService(t, repo, shampooCatalog(), nil, nil)
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, AddCartItemCommand{CustomerID: "cust1", ProductID: "serum", Quantity: 2})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	itemID := cart.Items[0].ID

	cart, err = svc.UpdateQuantity(ctx, "cust1", itemID, 0)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected line removed, got %d items", len(cart.Items))
	}
}

func TestUpdateQuantityClampsToMax(t *testing.T) {
	repo := newMemCartRepo()
	svc := newTestCartService(t, repo, shampooCatalog(), nil, nil)
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, AddCartItemCommand{CustomerID: "cust1", ProductID: "shampoo", VariantID: "v-500", Quantity: 1})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	itemID := cart.Items[0].ID

	cart, err = svc.UpdateQuantity(ctx, "cust1", itemID, 50)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if cart.Items[0].Quantity != 3 {
		t.Fatalf("expected quantity clamped to 3, got %d", cart.Items[0].Quantity)
	}
}

func TestClearCartKeepsShippingMethod(t *testing.T) {
	repo := newMemCartRepo()
	coupons := &stubCoupons{coupons: map[string]Coupon{
		"SAVE10": {Code: "SAVE10", Type: domain.CouponPercentage, Value: 10, Active: true},
	}}
	svc := newTestCartService(t, repo, shampooCatalog(), coupons, nil)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, AddCartItemCommand{CustomerID: "cust1", ProductID: "serum", Quantity: 1}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := svc.ApplyCoupon(ctx, "cust1", "SAVE10"); err != nil {
		t.Fatalf("apply coupon failed: %v", err)
	}
	if _, err := svc.SetShippingMethod(ctx, "cust1", domain.ShippingExpress); err != nil {
		t.Fatalf("set shipping failed: %v", err)
	}

	cart, err := svc.ClearCart(ctx, "cust1")
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %d items", len(cart.Items))
	}
	if cart.Coupon != nil {
		t.Fatalf("expected coupon removed, got %+v", cart.Coupon)
	}
	if cart.ShippingMethod != domain.ShippingExpress {
		t.Fatalf("expected shipping method preserved, got %s", cart.ShippingMethod)
	}
}

func TestRemoveCouponWithoutCouponIsNoOp(t *testing.T) {
	repo := newMemCartRepo()
	svc := newTestCartService(t, repo, shampooCatalog(), nil, nil)
	ctx := context.Background()

	before := repo.upserts
	if _, err := svc.GetCart(ctx, "cust1"); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	cart, err := svc.RemoveCoupon(ctx, "cust1")
	if err != nil {
		t.Fatalf("remove coupon failed: %v", err)
	}
	if cart.Coupon != nil {
		t.Fatalf("expected no coupon, got %+v", cart.Coupon)
	}
	// GetCart creates the cart once; removing a missing coupon writes nothing.
	if repo.upserts != before+1 {
		t.Fatalf("expected no extra persist, got %d upserts", repo.upserts-before)
	}
}

func TestSetShippingMethodUnknownIgnored(t *testing.T) {
	repo := newMemCartRepo()
	svc := newTestCartService(t, repo, shampooCatalog(), nil, nil)
	ctx := context.Background()

	cart, err := svc.SetShippingMethod(ctx, "cust1", ShippingMethod("carrier-pigeon"))
	if err != nil {
		t.Fatalf("set shipping failed: %v", err)
	}
	if cart.ShippingMethod != domain.ShippingStandard {
		t.Fatalf("expected standard shipping kept, got %s", cart.ShippingMethod)
	}
}

func TestGetCartCreatesEmptyCart(t *testing.T) {
	repo := newMemCartRepo()
	svc := newTestCartService(t, repo, shampooCatalog(), nil, nil)

	cart, err := svc.GetCart(context.Background(), "cust1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if cart.CustomerID != "cust1" {
		t.Fatalf("expected customer cust1, got %s", cart.CustomerID)
	}
	if cart.ShippingMethod != domain.ShippingStandard {
		t.Fatalf("expected default shipping method, got %s", cart.ShippingMethod)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %d items", len(cart.Items))
	}
}

func TestSummaryReflectsCartState(t *testing.T) {
	repo := newMemCartRepo()
	svc := newTestCartService(t, repo, shampooCatalog(), nil, nil)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, AddCartItemCommand{CustomerID: "cust1", ProductID: "shampoo", Quantity: 2}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := svc.AddItem(ctx, AddCartItemCommand{CustomerID: "cust1", ProductID: "serum", Quantity: 1}); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	summary, err := svc.Summary(ctx, "cust1")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}

	if !approxEqual(summary.Subtotal, 45.00) {
		t.Fatalf("expected subtotal 45.00, got %v", summary.Subtotal)
	}
	if !approxEqual(summary.Total, 65.25) {
		t.Fatalf("expected total 65.25, got %v", summary.Total)
	}
	if summary.ItemsCount != 3 {
		t.Fatalf("expected 3 items, got %d", summary.ItemsCount)
	}
}
