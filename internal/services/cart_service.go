package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/repositories"
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

const defaultMaxItemQuantity = 99

// productSnapshotter resolves the catalog snapshot captured when an item is
// added to a cart.
type productSnapshotter interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
}

// couponResolver looks up coupon codes for cart application.
type couponResolver interface {
	FindByCode(ctx context.Context, code string) (Coupon, error)
}

// stockReader reads availability used to cap per-item quantities.
type stockReader interface {
	AvailableFor(ctx context.Context, sku string) (int, bool, error)
}

// CartServiceDeps wires repository, catalog and pricing dependencies for cart operations.
type CartServiceDeps struct {
	Repository      repositories.CartRepository
	Catalog         productSnapshotter
	Coupons         couponResolver
	Stock           stockReader
	Engine          *CartPricingEngine
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
	IDGenerator     func() string
}

type cartService struct {
	repo     repositories.CartRepository
	catalog  productSnapshotter
	coupons  couponResolver
	stock    stockReader
	engine   *CartPricingEngine
	newID    func() string
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errors.New("cart service: repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service: catalog is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("cart service: pricing engine is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "EUR"
	}

	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &cartService{
		repo:     deps.Repository,
		catalog:  deps.Catalog,
		coupons:  deps.Coupons,
		stock:    deps.Stock,
		engine:   deps.Engine,
		newID:    idGen,
		now:      func() time.Time { return now().UTC() },
		currency: currency,
		logger:   logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, customerID string) (Cart, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Cart{}, fmt.Errorf("%w: customer id is required", ErrCartInvalidInput)
	}

	cart, err := s.repo.GetCart(ctx, customerID)
	if err != nil {
		if isRepoNotFound(err) {
			return s.persist(ctx, s.emptyCart(customerID))
		}
		return Cart{}, s.translateRepoError(err)
	}
	return s.normalizeCart(cart), nil
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	cmd.CustomerID = strings.TrimSpace(cmd.CustomerID)
	cmd.ProductID = strings.TrimSpace(cmd.ProductID)
	cmd.VariantID = strings.TrimSpace(cmd.VariantID)
	if cmd.CustomerID == "" || cmd.ProductID == "" {
		return Cart{}, fmt.Errorf("%w: customer id and product id are required", ErrCartInvalidInput)
	}

	cart, err := s.GetCart(ctx, cmd.CustomerID)
	if err != nil {
		return Cart{}, err
	}

	// Non-positive quantities are a caller mistake the cart forgives.
	if cmd.Quantity <= 0 {
		s.logger(ctx, "cart_add_ignored", map[string]any{
			"customerId": cmd.CustomerID,
			"productId":  cmd.ProductID,
			"quantity":   cmd.Quantity,
		})
		return cart, nil
	}

	if idx := indexOfCartItem(cart.Items, cmd.ProductID, cmd.VariantID); idx >= 0 {
		item := cart.Items[idx]
		item.Quantity = clampQuantity(item.Quantity+cmd.Quantity, item.MaxQuantity)
		now := s.now()
		item.UpdatedAt = &now
		cart.Items[idx] = item
		return s.persist(ctx, cart)
	}

	snapshot, maxQty, err := s.snapshotFor(ctx, cmd.ProductID, cmd.VariantID)
	if err != nil {
		return Cart{}, err
	}

	cart.Items = append(cart.Items, CartItem{
		ID:          s.newID(),
		ProductID:   cmd.ProductID,
		VariantID:   cmd.VariantID,
		Quantity:    clampQuantity(cmd.Quantity, maxQty),
		MaxQuantity: maxQty,
		Snapshot:    snapshot,
		AddedAt:     s.now(),
	})
	return s.persist(ctx, cart)
}

func (s *cartService) RemoveItem(ctx context.Context, customerID string, itemID string) (Cart, error) {
	cart, err := s.GetCart(ctx, customerID)
	if err != nil {
		return Cart{}, err
	}

	idx := indexOfCartItemID(cart.Items, itemID)
	if idx < 0 {
		// Removing an absent line is a no-op, not an error.
		return cart, nil
	}

	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	return s.persist(ctx, cart)
}

func (s *cartService) UpdateQuantity(ctx context.Context, customerID string, itemID string, quantity int) (Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, customerID, itemID)
	}

	cart, err := s.GetCart(ctx, customerID)
	if err != nil {
		return Cart{}, err
	}

	idx := indexOfCartItemID(cart.Items, itemID)
	if idx < 0 {
		return cart, nil
	}

	item := cart.Items[idx]
	item.Quantity = clampQuantity(quantity, item.MaxQuantity)
	now := s.now()
	item.UpdatedAt = &now
	cart.Items[idx] = item
	return s.persist(ctx, cart)
}

// ClearCart drops the items and the coupon. The shipping method survives so a
// returning shopper keeps their preferred delivery mode.
func (s *cartService) ClearCart(ctx context.Context, customerID string) (Cart, error) {
	cart, err := s.GetCart(ctx, customerID)
	if err != nil {
		return Cart{}, err
	}

	cart.Items = nil
	cart.Coupon = nil
	return s.persist(ctx, cart)
}

// ApplyCoupon attaches the coupon to the cart. Only existence is checked
// here; minimum-amount and cap gates run when totals are derived, so an
// applied coupon may still contribute zero discount.
func (s *cartService) ApplyCoupon(ctx context.Context, customerID string, code string) (Cart, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Cart{}, fmt.Errorf("%w: coupon code is required", ErrCartInvalidInput)
	}
	if s.coupons == nil {
		return Cart{}, fmt.Errorf("%w: coupon lookup is not configured", ErrCartUnavailable)
	}

	cart, err := s.GetCart(ctx, customerID)
	if err != nil {
		return Cart{}, err
	}

	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		return Cart{}, err
	}

	cart.Coupon = &coupon
	return s.persist(ctx, cart)
}

func (s *cartService) RemoveCoupon(ctx context.Context, customerID string) (Cart, error) {
	cart, err := s.GetCart(ctx, customerID)
	if err != nil {
		return Cart{}, err
	}
	if cart.Coupon == nil {
		return cart, nil
	}

	cart.Coupon = nil
	return s.persist(ctx, cart)
}

func (s *cartService) SetShippingMethod(ctx context.Context, customerID string, method ShippingMethod) (Cart, error) {
	cart, err := s.GetCart(ctx, customerID)
	if err != nil {
		return Cart{}, err
	}

	if _, ok := s.engine.Rates()[method]; !ok {
		s.logger(ctx, "cart_shipping_method_ignored", map[string]any{
			"customerId": customerID,
			"method":     string(method),
		})
		return cart, nil
	}

	cart.ShippingMethod = method
	return s.persist(ctx, cart)
}

func (s *cartService) Summary(ctx context.Context, customerID string) (CartSummary, error) {
	cart, err := s.GetCart(ctx, customerID)
	if err != nil {
		return CartSummary{}, err
	}
	return s.engine.Summarize(ctx, cart), nil
}

func (s *cartService) snapshotFor(ctx context.Context, productID string, variantID string) (domain.ProductSnapshot, int, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.ProductSnapshot{}, 0, fmt.Errorf("%w: product %s", ErrCartInvalidInput, productID)
	}

	snapshot := domain.ProductSnapshot{
		ProductID:   product.ID,
		Name:        product.Name,
		Price:       product.Price,
		WeightGrams: product.WeightGrams,
	}
	if len(product.Images) > 0 {
		snapshot.Image = product.Images[0]
	}

	maxQty := defaultMaxItemQuantity

	if variantID != "" {
		variant, ok := findVariant(product.Variants, variantID)
		if !ok {
			return domain.ProductSnapshot{}, 0, fmt.Errorf("%w: variant %s", ErrCartInvalidInput, variantID)
		}
		snapshot.VariantID = variant.ID
		snapshot.VariantName = variant.Name
		snapshot.SKU = variant.SKU
		if variant.Price != nil {
			snapshot.Price = *variant.Price
		}
		if variant.Stock != nil && *variant.Stock < maxQty {
			maxQty = *variant.Stock
		}
	}

	if s.stock != nil && snapshot.SKU != "" {
		if available, ok, err := s.stock.AvailableFor(ctx, snapshot.SKU); err == nil && ok && available < maxQty {
			maxQty = available
		}
	}
	if maxQty < 1 {
		maxQty = 1
	}

	return snapshot, maxQty, nil
}

func (s *cartService) emptyCart(customerID string) Cart {
	now := s.now()
	return Cart{
		ID:             s.newID(),
		CustomerID:     customerID,
		Currency:       s.currency,
		ShippingMethod: domain.ShippingStandard,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *cartService) persist(ctx context.Context, cart Cart) (Cart, error) {
	cart.UpdatedAt = s.now()
	saved, err := s.repo.UpsertCart(ctx, s.normalizeCart(cart))
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return s.normalizeCart(saved), nil
}

func (s *cartService) normalizeCart(cart Cart) Cart {
	if cart.Currency == "" {
		cart.Currency = s.currency
	}
	if cart.ShippingMethod == "" {
		cart.ShippingMethod = domain.ShippingStandard
	}
	for i := range cart.Items {
		if cart.Items[i].MaxQuantity <= 0 {
			cart.Items[i].MaxQuantity = defaultMaxItemQuantity
		}
	}
	return cart
}

func (s *cartService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrCartNotFound, repoErr.Error())
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrCartConflict, repoErr.Error())
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %s", ErrCartUnavailable, repoErr.Error())
		}
	}
	return fmt.Errorf("%w: %s", ErrCartUnavailable, err.Error())
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func indexOfCartItem(items []CartItem, productID string, variantID string) int {
	for i, item := range items {
		if item.ProductID == productID && item.VariantID == variantID {
			return i
		}
	}
	return -1
}

func indexOfCartItemID(items []CartItem, itemID string) int {
	for i, item := range items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

func clampQuantity(quantity int, maxQuantity int) int {
	if maxQuantity > 0 && quantity > maxQuantity {
		return maxQuantity
	}
	if quantity < 1 {
		return 1
	}
	return quantity
}

func findVariant(variants []ProductVariant, variantID string) (ProductVariant, bool) {
	for _, v := range variants {
		if v.ID == variantID {
			return v, true
		}
	}
	return ProductVariant{}, false
}
