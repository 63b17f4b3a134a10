package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/payments"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutEmptyCart indicates the submission carried no purchasable lines.
	ErrCheckoutEmptyCart = errors.New("checkout: empty cart")
)

// checkoutCartAccess is the slice of CartService checkout needs.
type checkoutCartAccess interface {
	GetCart(ctx context.Context, customerID string) (Cart, error)
	ClearCart(ctx context.Context, customerID string) (Cart, error)
}

// orderCreator is the slice of OrderService checkout needs.
type orderCreator interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
}

// checkoutSessionManager abstracts payments.Manager for easier testing.
type checkoutSessionManager interface {
	CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts    checkoutCartAccess
	Catalog  productSnapshotter
	Engine   *CartPricingEngine
	Orders   orderCreator
	Payments checkoutSessionManager
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts    checkoutCartAccess
	catalog  productSnapshotter
	engine   *CartPricingEngine
	orders   orderCreator
	payments checkoutSessionManager
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart access is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("checkout service: catalog is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("checkout service: pricing engine is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order creator is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		carts:    deps.Carts,
		catalog:  deps.Catalog,
		engine:   deps.Engine,
		orders:   deps.Orders,
		payments: deps.Payments,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// Submit reprices the requested lines from the catalog, creates the order and
// clears the cart. Client-supplied prices are never consulted. If order
// creation fails the cart is left untouched so the shopper can retry.
func (s *checkoutService) Submit(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	if err := validateCheckout(cmd); err != nil {
		return CheckoutResult{}, err
	}

	cart, err := s.carts.GetCart(ctx, cmd.CustomerID)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: load cart: %s", ErrCheckoutUnavailable, err.Error())
	}

	lines, pricingItems, err := s.repriceLines(ctx, cmd.Lines)
	if err != nil {
		return CheckoutResult{}, err
	}

	// The cart's coupon and shipping method feed the derivation; the items
	// are the freshly repriced ones, not the cart snapshots.
	summary := s.engine.Summarize(ctx, Cart{
		Currency:       cart.Currency,
		Items:          pricingItems,
		Coupon:         cart.Coupon,
		ShippingMethod: cart.ShippingMethod,
	})

	pricing := OrderPricing{
		Subtotal: summary.Subtotal,
		Shipping: summary.Shipping,
		Discount: summary.Discount,
		Tax:      summary.Tax,
		Total:    summary.Total,
		Currency: summary.Currency,
	}
	if cart.Coupon != nil {
		pricing.CouponCode = cart.Coupon.Code
	}

	order, err := s.orders.Create(ctx, CreateOrderCommand{
		CustomerID:      cmd.CustomerID,
		Customer:        cmd.Customer,
		ShippingAddress: cmd.ShippingAddress,
		Lines:           lines,
		Pricing:         pricing,
		PaymentMethod:   cmd.PaymentMethod,
		ShippingMethod:  cart.ShippingMethod,
		Notes:           cmd.Notes,
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	result := CheckoutResult{Order: order}
	if s.payments != nil {
		session, err := s.createPaymentSession(ctx, cmd, order)
		if err != nil {
			s.logger(ctx, "checkout_payment_session_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		} else {
			result.PaymentSessionID = session.ID
			result.PaymentRedirectURL = session.RedirectURL
		}
	}

	if _, err := s.carts.ClearCart(ctx, cmd.CustomerID); err != nil {
		s.logger(ctx, "checkout_cart_clear_failed", map[string]any{
			"customerId": cmd.CustomerID,
			"orderId":    order.ID,
			"error":      err.Error(),
		})
	}

	return result, nil
}

func (s *checkoutService) repriceLines(ctx context.Context, requested []CheckoutLine) ([]OrderLine, []CartItem, error) {
	lines := make([]OrderLine, 0, len(requested))
	items := make([]CartItem, 0, len(requested))

	for _, req := range requested {
		product, err := s.catalog.GetProduct(ctx, req.ProductID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: product %s", ErrCheckoutInvalidInput, req.ProductID)
		}

		name := product.Name
		sku := ""
		price := product.Price
		weight := product.WeightGrams
		if req.VariantID != "" {
			variant, ok := findVariant(product.Variants, req.VariantID)
			if !ok {
				return nil, nil, fmt.Errorf("%w: variant %s", ErrCheckoutInvalidInput, req.VariantID)
			}
			sku = variant.SKU
			if variant.Price != nil {
				price = *variant.Price
			}
			if variant.Name != "" {
				name = fmt.Sprintf("%s (%s)", product.Name, variant.Name)
			}
		}

		lines = append(lines, OrderLine{
			ProductID:  product.ID,
			VariantID:  req.VariantID,
			Name:       name,
			SKU:        sku,
			Quantity:   req.Quantity,
			UnitPrice:  price,
			TotalPrice: price * float64(req.Quantity),
		})
		items = append(items, CartItem{
			ProductID: product.ID,
			VariantID: req.VariantID,
			Quantity:  req.Quantity,
			Snapshot: domain.ProductSnapshot{
				ProductID:   product.ID,
				VariantID:   req.VariantID,
				Name:        name,
				SKU:         sku,
				Price:       price,
				WeightGrams: weight,
			},
		})
	}

	return lines, items, nil
}

func (s *checkoutService) createPaymentSession(ctx context.Context, cmd CheckoutCommand, order Order) (payments.CheckoutSession, error) {
	items := make([]payments.CheckoutLineItem, 0, len(order.Lines))
	for _, line := range order.Lines {
		items = append(items, payments.CheckoutLineItem{
			Name:     line.Name,
			SKU:      line.SKU,
			Quantity: int64(line.Quantity),
			Amount:   toMinorUnits(line.UnitPrice),
			Currency: order.Pricing.Currency,
		})
	}

	return s.payments.CreateCheckoutSession(ctx, payments.PaymentContext{
		PreferredProvider: cmd.PaymentMethod,
		Currency:          order.Pricing.Currency,
	}, payments.CheckoutSessionRequest{
		Amount:         toMinorUnits(order.Pricing.Total),
		Currency:       order.Pricing.Currency,
		CustomerID:     order.CustomerID,
		IdempotencyKey: "checkout:" + order.ID,
		Metadata: map[string]string{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
		},
		Items: items,
	})
}

func validateCheckout(cmd CheckoutCommand) error {
	if strings.TrimSpace(cmd.CustomerID) == "" {
		return fmt.Errorf("%w: customer id is required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(cmd.Customer.Email) == "" {
		return fmt.Errorf("%w: customer email is required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(cmd.ShippingAddress.Line1) == "" {
		return fmt.Errorf("%w: shipping address is required", ErrCheckoutInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return ErrCheckoutEmptyCart
	}
	for _, line := range cmd.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return fmt.Errorf("%w: line product id is required", ErrCheckoutInvalidInput)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: line quantity must be positive", ErrCheckoutInvalidInput)
		}
	}
	return nil
}

// toMinorUnits converts a major-unit amount to the integer minor units PSPs
// expect, rounding half away from zero.
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
