package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	domain "github.com/glowmane/api/internal/domain"
)

const defaultTaxRate = 0.23

// defaultShippingRates mirrors the storefront rate table: flat rates waived
// above the free-shipping threshold, pickup always free.
func defaultShippingRates() map[ShippingMethod]ShippingRate {
	return map[ShippingMethod]ShippingRate{
		domain.ShippingStandard: {Method: domain.ShippingStandard, Rate: 9.90, FreeThreshold: 50},
		domain.ShippingExpress:  {Method: domain.ShippingExpress, Rate: 19.90, FreeThreshold: 100},
		domain.ShippingPickup:   {Method: domain.ShippingPickup, Rate: 0, FreeThreshold: 0},
	}
}

// PricingConfig tunes the derivation rules of the engine.
type PricingConfig struct {
	TaxRate       float64
	Currency      string
	ShippingRates map[ShippingMethod]ShippingRate
	DefaultMethod ShippingMethod
}

// CartPricingEngine derives a CartSummary from a cart's items, coupon and
// shipping method. Summarize is a pure function of its inputs and the clock:
// it never mutates the cart and never fails. Ineffective coupons and unknown
// shipping methods degrade to zero-effect values.
type CartPricingEngine struct {
	taxRate       float64
	currency      string
	rates         map[ShippingMethod]ShippingRate
	defaultMethod ShippingMethod
	now           func() time.Time
	logger        func(context.Context, string, map[string]any)
}

// CartPricingEngineDeps carries construction inputs for the engine.
type CartPricingEngineDeps struct {
	Config PricingConfig
	Now    func() time.Time
	Logger func(context.Context, string, map[string]any)
}

// NewCartPricingEngine validates the configuration and builds an engine.
func NewCartPricingEngine(deps CartPricingEngineDeps) (*CartPricingEngine, error) {
	cfg := deps.Config
	if cfg.TaxRate < 0 || cfg.TaxRate >= 1 {
		return nil, errors.New("cart pricing engine: tax rate must be in [0, 1)")
	}
	if cfg.TaxRate == 0 {
		cfg.TaxRate = defaultTaxRate
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = "EUR"
	}
	rates := cfg.ShippingRates
	if len(rates) == 0 {
		rates = defaultShippingRates()
	}
	defaultMethod := cfg.DefaultMethod
	if defaultMethod == "" {
		defaultMethod = domain.ShippingStandard
	}
	if _, ok := rates[defaultMethod]; !ok {
		return nil, errors.New("cart pricing engine: default shipping method has no rate")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &CartPricingEngine{
		taxRate:       cfg.TaxRate,
		currency:      cfg.Currency,
		rates:         rates,
		defaultMethod: defaultMethod,
		now:           func() time.Time { return now().UTC() },
		logger:        logger,
	}, nil
}

// Rates exposes the active rate table, used by handlers to render shipping
// options.
func (e *CartPricingEngine) Rates() map[ShippingMethod]ShippingRate {
	out := make(map[ShippingMethod]ShippingRate, len(e.rates))
	for method, rate := range e.rates {
		out[method] = rate
	}
	return out
}

// Summarize computes the full price breakdown for the cart. Calling it twice
// without a cart mutation in between yields identical summaries.
func (e *CartPricingEngine) Summarize(ctx context.Context, cart Cart) CartSummary {
	summary := CartSummary{Currency: e.currency}
	if cart.Currency != "" {
		summary.Currency = cart.Currency
	}

	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			continue
		}
		lineTotal := item.Snapshot.Price * float64(item.Quantity)
		summary.Subtotal += lineTotal
		summary.ItemsCount += item.Quantity
		summary.TotalWeightGrams += item.Snapshot.WeightGrams * item.Quantity
		summary.Lines = append(summary.Lines, LineSummary{
			ItemID:    item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.Snapshot.Price,
			LineTotal: lineTotal,
		})
	}

	summary.ShippingDetail, summary.Shipping = e.shippingFor(cart.ShippingMethod, summary.Subtotal, summary.ItemsCount)

	if cart.Coupon != nil {
		effect := e.couponEffect(ctx, *cart.Coupon, summary.Subtotal)
		summary.AppliedCoupon = &effect
		summary.Discount = effect.Amount
	}

	summary.Tax = e.taxRate * (summary.Subtotal - summary.Discount)

	total := summary.Subtotal + summary.Shipping + summary.Tax - summary.Discount
	if total < 0 {
		total = 0
	}
	summary.Total = total

	return summary
}

// shippingFor resolves the rate row for the chosen method. Pickup is always
// free, an empty cart ships for nothing, and an unknown method falls back to
// the default rate row.
func (e *CartPricingEngine) shippingFor(method ShippingMethod, subtotal float64, itemsCount int) (ShippingDetail, float64) {
	rate, ok := e.rates[method]
	if !ok {
		rate = e.rates[e.defaultMethod]
	}
	detail := ShippingDetail{
		Method:        rate.Method,
		Rate:          rate.Rate,
		FreeThreshold: rate.FreeThreshold,
	}

	switch {
	case itemsCount == 0:
		detail.Free = true
		return detail, 0
	case rate.Method == domain.ShippingPickup:
		detail.Free = true
		return detail, 0
	case rate.FreeThreshold > 0 && subtotal >= rate.FreeThreshold:
		detail.Free = true
		return detail, 0
	default:
		return detail, rate.Rate
	}
}

// couponEffect evaluates the coupon against the subtotal. Gates (validity
// window, minimum amount, cap) are checked here, at derivation time, never at
// apply time; a gated coupon stays applied with a zero amount.
func (e *CartPricingEngine) couponEffect(ctx context.Context, coupon Coupon, subtotal float64) CouponEffect {
	effect := CouponEffect{
		Code:       coupon.Code,
		Type:       coupon.Type,
		MinAmount:  coupon.MinAmount,
		MaxAllowed: coupon.MaxDiscount,
	}

	now := e.now()
	if !coupon.Active ||
		(coupon.StartsAt != nil && now.Before(*coupon.StartsAt)) ||
		(coupon.ExpiresAt != nil && now.After(*coupon.ExpiresAt)) {
		effect.Inactive = true
		e.logger(ctx, "pricing_coupon_inactive", map[string]any{"code": coupon.Code})
		return effect
	}

	if coupon.MinAmount > 0 && subtotal < coupon.MinAmount {
		effect.BelowMin = true
		return effect
	}

	var amount float64
	switch coupon.Type {
	case domain.CouponPercentage:
		amount = subtotal * coupon.Value / 100
	case domain.CouponFixed:
		amount = coupon.Value
	default:
		return effect
	}

	if coupon.MaxDiscount > 0 && amount > coupon.MaxDiscount {
		amount = coupon.MaxDiscount
		effect.Capped = true
		e.logger(ctx, "pricing_discount_capped", map[string]any{
			"code": coupon.Code,
			"cap":  coupon.MaxDiscount,
		})
	}
	if amount > subtotal {
		amount = subtotal
		effect.Capped = true
	}
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}

	effect.Amount = amount
	return effect
}
