package services

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	domain "github.com/glowmane/api/internal/domain"
)

func newTestEngine(t *testing.T) *CartPricingEngine {
	t.Helper()
	engine, err := NewCartPricingEngine(CartPricingEngineDeps{
		Config: PricingConfig{TaxRate: 0.23, Currency: "EUR"},
		Now:    func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("unexpected error building engine: %v", err)
	}
	return engine
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func testCart(items ...CartItem) Cart {
	return Cart{
		ID:             "cart1",
		CustomerID:     "cust1",
		Currency:       "EUR",
		Items:          items,
		ShippingMethod: domain.ShippingStandard,
	}
}

func cartLine(id string, price float64, qty int) CartItem {
	return CartItem{
		ID:        id,
		ProductID: "prod-" + id,
		Quantity:  qty,
		Snapshot:  domain.ProductSnapshot{ProductID: "prod-" + id, Price: price},
	}
}

func TestSummarizeStandardShippingBelowThreshold(t *testing.T) {
	engine := newTestEngine(t)
	cart := testCart(
		cartLine("a", 10.00, 2),
		cartLine("b", 25.00, 1),
	)

	summary := engine.Summarize(context.Background(), cart)

	if !approxEqual(summary.Subtotal, 45.00) {
		t.Fatalf("expected subtotal 45.00, got %v", summary.Subtotal)
	}
	if !approxEqual(summary.Shipping, 9.90) {
		t.Fatalf("expected shipping 9.90, got %v", summary.Shipping)
	}
	if !approxEqual(summary.Tax, 10.35) {
		t.Fatalf("expected tax 10.35, got %v", summary.Tax)
	}
	if !approxEqual(summary.Total, 65.25) {
		t.Fatalf("expected total 65.25, got %v", summary.Total)
	}
	if summary.ItemsCount != 3 {
		t.Fatalf("expected items count 3, got %d", summary.ItemsCount)
	}
	if summary.Discount != 0 {
		t.Fatalf("expected no discount, got %v", summary.Discount)
	}
}

func TestSummarizePercentageCoupon(t *testing.T) {
	engine := newTestEngine(t)
	cart := testCart(
		cartLine("a", 10.00, 2),
		cartLine("b", 25.00, 1),
	)
	cart.Coupon = &Coupon{
		Code:   "SAVE10",
		Type:   domain.CouponPercentage,
		Value:  10,
		Active: true,
	}

	summary := engine.Summarize(context.Background(), cart)

	if !approxEqual(summary.Discount, 4.50) {
		t.Fatalf("expected discount 4.50, got %v", summary.Discount)
	}
	if !approxEqual(summary.Tax, 9.315) {
		t.Fatalf("expected tax 9.315, got %v", summary.Tax)
	}
	if !approxEqual(summary.Total, 59.715) {
		t.Fatalf("expected total 59.715, got %v", summary.Total)
	}
	if summary.AppliedCoupon == nil || summary.AppliedCoupon.Code != "SAVE10" {
		t.Fatalf("expected applied coupon SAVE10, got %+v", summary.AppliedCoupon)
	}
}

func TestSummarizeFreeShippingAtThreshold(t *testing.T) {
	engine := newTestEngine(t)
	cart := testCart(cartLine("a", 25.00, 2))

	summary := engine.Summarize(context.Background(), cart)

	if summary.Shipping != 0 {
		t.Fatalf("expected free shipping at threshold, got %v", summary.Shipping)
	}
	if !summary.ShippingDetail.Free {
		t.Fatalf("expected shipping detail marked free")
	}
}

func TestSummarizePickupAlwaysFree(t *testing.T) {
	engine := newTestEngine(t)
	cart := testCart(cartLine("a", 5.00, 1))
	cart.ShippingMethod = domain.ShippingPickup

	summary := engine.Summarize(context.Background(), cart)

	if summary.Shipping != 0 {
		t.Fatalf("expected pickup shipping 0, got %v", summary.Shipping)
	}
}

func TestSummarizeEmptyCart(t *testing.T) {
	engine := newTestEngine(t)

	summary := engine.Summarize(context.Background(), testCart())

	if summary.Subtotal != 0 || summary.Shipping != 0 || summary.Tax != 0 || summary.Total != 0 {
		t.Fatalf("expected all-zero summary, got %+v", summary)
	}
	if summary.ItemsCount != 0 {
		t.Fatalf("expected zero items, got %d", summary.ItemsCount)
	}
}

func TestSummarizeIsIdempotent(t *testing.T) {
	engine := newTestEngine(t)
	cart := testCart(cartLine("a", 12.50, 3))
	cart.Coupon = &Coupon{Code: "FIVE", Type: domain.CouponFixed, Value: 5, Active: true}

	first := engine.Summarize(context.Background(), cart)
	second := engine.Summarize(context.Background(), cart)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical summaries, got %+v and %+v", first, second)
	}
}

func TestSummarizeCouponBelowMinimum(t *testing.T) {
	engine := newTestEngine(t)
	cart := testCart(cartLine("a", 10.00, 2))
	cart.Coupon = &Coupon{
		Code:      "BIGSPEND",
		Type:      domain.CouponPercentage,
		Value:     20,
		MinAmount: 100,
		Active:    true,
	}

	summary := engine.Summarize(context.Background(), cart)

	if summary.Discount != 0 {
		t.Fatalf("expected zero discount below minimum, got %v", summary.Discount)
	}
	if summary.AppliedCoupon == nil || !summary.AppliedCoupon.BelowMin {
		t.Fatalf("expected coupon flagged below minimum, got %+v", summary.AppliedCoupon)
	}
}

func TestSummarizeCouponCapped(t *testing.T) {
	engine := newTestEngine(t)
	cart := testCart(cartLine("a", 100.00, 1))
	cart.Coupon = &Coupon{
		Code:        "HALF",
		Type:        domain.CouponPercentage,
		Value:       50,
		MaxDiscount: 20,
		Active:      true,
	}

	summary := engine.Summarize(context.Background(), cart)

	if !approxEqual(summary.Discount, 20) {
		t.Fatalf("expected capped discount 20, got %v", summary.Discount)
	}
	if summary.AppliedCoupon == nil || !summary.AppliedCoupon.Capped {
		t.Fatalf("expected coupon flagged capped, got %+v", summary.AppliedCoupon)
	}
}

func TestSummarizeExpiredCouponIneffective(t *testing.T) {
	engine := newTestEngine(t)
	expired := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cart := testCart(cartLine("a", 30.00, 1))
	cart.Coupon = &Coupon{
		Code:      "OLD",
		Type:      domain.CouponPercentage,
		Value:     10,
		Active:    true,
		ExpiresAt: &expired,
	}

	summary := engine.Summarize(context.Background(), cart)

	if summary.Discount != 0 {
		t.Fatalf("expected zero discount for expired coupon, got %v", summary.Discount)
	}
	if summary.AppliedCoupon == nil || !summary.AppliedCoupon.Inactive {
		t.Fatalf("expected coupon flagged inactive, got %+v", summary.AppliedCoupon)
	}
}

func TestSummarizeFixedCouponClampedToSubtotal(t *testing.T) {
	engine := newTestEngine(t)
	cart := testCart(cartLine("a", 15.00, 1))
	cart.Coupon = &Coupon{Code: "BIG", Type: domain.CouponFixed, Value: 100, Active: true}

	summary := engine.Summarize(context.Background(), cart)

	if !approxEqual(summary.Discount, 15.00) {
		t.Fatalf("expected discount clamped to subtotal, got %v", summary.Discount)
	}
	if summary.Tax != 0 {
		t.Fatalf("expected zero tax on fully discounted cart, got %v", summary.Tax)
	}
	if summary.Total < 0 {
		t.Fatalf("expected non-negative total, got %v", summary.Total)
	}
}

func TestSummarizeSkipsNonPositiveQuantities(t *testing.T) {
	engine := newTestEngine(t)
	cart := testCart(
		cartLine("a", 10.00, 1),
		cartLine("b", 99.00, 0),
	)

	summary := engine.Summarize(context.Background(), cart)

	if !approxEqual(summary.Subtotal, 10.00) {
		t.Fatalf("expected subtotal 10.00, got %v", summary.Subtotal)
	}
	if len(summary.Lines) != 1 {
		t.Fatalf("expected one line, got %d", len(summary.Lines))
	}
}

func TestSummarizeUnknownMethodFallsBackToDefault(t *testing.T) {
	engine := newTestEngine(t)
	cart := testCart(cartLine("a", 10.00, 1))
	cart.ShippingMethod = ShippingMethod("drone")

	summary := engine.Summarize(context.Background(), cart)

	if summary.ShippingDetail.Method != domain.ShippingStandard {
		t.Fatalf("expected fallback to standard, got %s", summary.ShippingDetail.Method)
	}
	if !approxEqual(summary.Shipping, 9.90) {
		t.Fatalf("expected standard rate 9.90, got %v", summary.Shipping)
	}
}
