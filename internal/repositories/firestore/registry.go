package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/glowmane/api/internal/platform/firestore"
	"github.com/glowmane/api/internal/repositories"
)

// Registry bundles the Firestore-backed repository implementations behind the
// repositories.Registry contract consumed by dependency injection.
type Registry struct {
	provider *pfirestore.Provider

	carts      *CartRepository
	orders     *OrderRepository
	products   *ProductRepository
	categories *CategoryRepository
	coupons    *CouponRepository
	reviews    *ReviewRepository
	customers  *CustomerRepository
	wishlists  *WishlistRepository
	inventory  *InventoryRepository
	auditLogs  *AuditLogRepository
	counters   *CounterRepository
	health     repositories.HealthRepository
}

// RegistryDeps carries the shared provider plus optional overrides such as the
// health repository assembled from dependency probes at startup.
type RegistryDeps struct {
	Provider *pfirestore.Provider
	Health   repositories.HealthRepository
}

// NewRegistry constructs every Firestore repository over the shared provider.
func NewRegistry(deps RegistryDeps) (*Registry, error) {
	if deps.Provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	reg := &Registry{
		provider: deps.Provider,
		health:   deps.Health,
	}

	var err error
	if reg.carts, err = NewCartRepository(deps.Provider); err != nil {
		return nil, fmt.Errorf("build cart repository: %w", err)
	}
	if reg.orders, err = NewOrderRepository(deps.Provider); err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	if reg.products, err = NewProductRepository(deps.Provider); err != nil {
		return nil, fmt.Errorf("build product repository: %w", err)
	}
	if reg.categories, err = NewCategoryRepository(deps.Provider); err != nil {
		return nil, fmt.Errorf("build category repository: %w", err)
	}
	if reg.coupons, err = NewCouponRepository(deps.Provider); err != nil {
		return nil, fmt.Errorf("build coupon repository: %w", err)
	}
	if reg.reviews, err = NewReviewRepository(deps.Provider); err != nil {
		return nil, fmt.Errorf("build review repository: %w", err)
	}
	if reg.customers, err = NewCustomerRepository(deps.Provider); err != nil {
		return nil, fmt.Errorf("build customer repository: %w", err)
	}
	if reg.wishlists, err = NewWishlistRepository(deps.Provider); err != nil {
		return nil, fmt.Errorf("build wishlist repository: %w", err)
	}
	if reg.inventory, err = NewInventoryRepository(deps.Provider); err != nil {
		return nil, fmt.Errorf("build inventory repository: %w", err)
	}
	if reg.auditLogs, err = NewAuditLogRepository(deps.Provider); err != nil {
		return nil, fmt.Errorf("build audit log repository: %w", err)
	}
	if reg.counters, err = NewCounterRepository(deps.Provider); err != nil {
		return nil, fmt.Errorf("build counter repository: %w", err)
	}

	return reg, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Carts() repositories.CartRepository           { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository         { return r.orders }
func (r *Registry) Products() repositories.ProductRepository     { return r.products }
func (r *Registry) Categories() repositories.CategoryRepository  { return r.categories }
func (r *Registry) Coupons() repositories.CouponRepository       { return r.coupons }
func (r *Registry) Reviews() repositories.ReviewRepository       { return r.reviews }
func (r *Registry) Customers() repositories.CustomerRepository   { return r.customers }
func (r *Registry) Wishlists() repositories.WishlistRepository   { return r.wishlists }
func (r *Registry) Inventory() repositories.InventoryRepository  { return r.inventory }
func (r *Registry) AuditLogs() repositories.AuditLogRepository   { return r.auditLogs }
func (r *Registry) Counters() repositories.CounterRepository     { return r.counters }
func (r *Registry) Health() repositories.HealthRepository        { return r.health }

// RunInTx executes fn as one logical unit. Individual repositories already
// guard their multi-document mutations with Firestore transactions, so the
// boundary here sequences the calls without opening another transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return fn(ctx)
}

var _ repositories.Registry = (*Registry)(nil)
