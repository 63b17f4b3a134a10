package repositories

import (
	"context"
	"time"

	domain "github.com/glowmane/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Orders() OrderRepository
	Products() ProductRepository
	Categories() CategoryRepository
	Coupons() CouponRepository
	Reviews() ReviewRepository
	Customers() CustomerRepository
	Wishlists() WishlistRepository
	Inventory() InventoryRepository
	AuditLogs() AuditLogRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository owns cart persistence keyed by customer with optimistic locking guarantees.
type CartRepository interface {
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	GetCart(ctx context.Context, customerID string) (domain.Cart, error)
	DeleteCart(ctx context.Context, customerID string) error
}

// OrderRepository persists order documents and provides query helpers for customers and admins.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// ProductRepository stores catalog products and their variants.
type ProductRepository interface {
	Upsert(ctx context.Context, product domain.Product) (domain.Product, error)
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindBySlug(ctx context.Context, slug string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
}

// CategoryRepository stores the category tree and its filter attributes.
type CategoryRepository interface {
	Upsert(ctx context.Context, category domain.Category) (domain.Category, error)
	Delete(ctx context.Context, categoryID string) error
	FindBySlug(ctx context.Context, slug string) (domain.Category, error)
	List(ctx context.Context, onlyActive bool) ([]domain.Category, error)
}

// CouponRepository maintains coupon definitions.
type CouponRepository interface {
	Upsert(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error)
	Delete(ctx context.Context, couponID string) error
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Coupon], error)
}

// ReviewRepository stores product reviews and their moderation meta.
type ReviewRepository interface {
	Insert(ctx context.Context, review domain.Review) (domain.Review, error)
	FindByID(ctx context.Context, reviewID string) (domain.Review, error)
	ListByProduct(ctx context.Context, productID string, filter ReviewListFilter) (domain.CursorPage[domain.Review], error)
	ListByCustomer(ctx context.Context, customerID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	UpdateStatus(ctx context.Context, reviewID string, status domain.ReviewStatus, update ReviewModerationUpdate) (domain.Review, error)
}

// CustomerRepository stores customer profiles and their saved addresses.
type CustomerRepository interface {
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
	UpdateProfile(ctx context.Context, customer domain.Customer) (domain.Customer, error)
	UpsertAddress(ctx context.Context, customerID string, address domain.Address) (domain.Address, error)
	DeleteAddress(ctx context.Context, customerID string, addressID string) error
}

// WishlistRepository tracks saved products per customer.
type WishlistRepository interface {
	List(ctx context.Context, customerID string, pager domain.Pagination) (domain.CursorPage[domain.WishlistItem], error)
	Put(ctx context.Context, customerID string, productID string, addedAt time.Time, limit int) (bool, error)
	Delete(ctx context.Context, customerID string, productID string) error
}

// InventoryRepository reads and adjusts per-SKU stock levels.
type InventoryRepository interface {
	GetLevels(ctx context.Context, skus []string) (map[string]domain.InventoryLevel, error)
	Adjust(ctx context.Context, sku string, delta int, now time.Time) (domain.InventoryLevel, error)
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	CustomerID    string
	PaymentStates []domain.PaymentState
	Fulfillments  []domain.FulfillmentState
	DateRange     domain.DateRange
	Pagination    domain.Pagination
}

type ProductListFilter struct {
	CategoryID string
	Brand      string
	Attributes map[string]string
	PriceMin   *float64
	PriceMax   *float64
	Search     string
	OnlyActive bool
	SortBy     string
	SortOrder  domain.SortOrder
	Pagination domain.Pagination
}

type ReviewListFilter struct {
	Status     []domain.ReviewStatus
	MinRating  int
	Pagination domain.Pagination
}

// ReviewModerationUpdate carries moderation metadata for status transitions.
type ReviewModerationUpdate struct {
	ModeratedBy string
	ModeratedAt time.Time
}

type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	ActorType  string
	Action     string
	DateRange  domain.DateRange
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
