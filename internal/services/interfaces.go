package services

import (
	"context"
	"time"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Category           = domain.Category
	FilterAttribute    = domain.FilterAttribute
	Product            = domain.Product
	ProductVariant     = domain.ProductVariant
	ShippingMethod     = domain.ShippingMethod
	ShippingRate       = domain.ShippingRate
	Coupon             = domain.Coupon
	CouponType         = domain.CouponType
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	CartSummary        = domain.CartSummary
	LineSummary        = domain.LineSummary
	CouponEffect       = domain.CouponEffect
	ShippingDetail     = domain.ShippingDetail
	Order              = domain.Order
	OrderLine          = domain.OrderLine
	OrderPricing       = domain.OrderPricing
	OrderStatus        = domain.OrderStatus
	PaymentState       = domain.PaymentState
	FulfillmentState   = domain.FulfillmentState
	PaymentAttempt     = domain.PaymentAttempt
	StatusChange       = domain.StatusChange
	OrderAuditEntry    = domain.OrderAuditEntry
	FieldChange        = domain.FieldChange
	TrackingEvent      = domain.TrackingEvent
	NotificationRecord = domain.NotificationRecord
	CustomerInfo       = domain.CustomerInfo
	Customer           = domain.Customer
	Address            = domain.Address
	WishlistItem       = domain.WishlistItem
	Review             = domain.Review
	ReviewStatus       = domain.ReviewStatus
	InventoryLevel     = domain.InventoryLevel
	AuditLogEntry      = domain.AuditLogEntry
	SystemHealthReport = domain.SystemHealthReport
)

// CartService maintains per-customer carts. Mutations are permissive:
// missing items, non-positive quantities and ineffective coupons degrade to
// no-ops instead of failing. Authoritative validation happens at checkout.
type CartService interface {
	GetCart(ctx context.Context, customerID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, customerID string, itemID string) (Cart, error)
	UpdateQuantity(ctx context.Context, customerID string, itemID string, quantity int) (Cart, error)
	ClearCart(ctx context.Context, customerID string) (Cart, error)
	ApplyCoupon(ctx context.Context, customerID string, code string) (Cart, error)
	RemoveCoupon(ctx context.Context, customerID string) (Cart, error)
	SetShippingMethod(ctx context.Context, customerID string, method ShippingMethod) (Cart, error)
	Summary(ctx context.Context, customerID string) (CartSummary, error)
}

// AddCartItemCommand describes an add-to-cart request. The price snapshot is
// taken from the catalog at add time and kept as-is afterwards.
type AddCartItemCommand struct {
	CustomerID string
	ProductID  string
	VariantID  string
	Quantity   int
}

// CheckoutService turns a cart plus contact details into a persisted order.
// Client prices are never trusted; every line is repriced from the catalog.
type CheckoutService interface {
	Submit(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
}

// CheckoutCommand is the checkout submission payload. Lines reference the
// catalog by id only.
type CheckoutCommand struct {
	CustomerID      string
	Customer        CustomerInfo
	ShippingAddress Address
	Lines           []CheckoutLine
	PaymentMethod   string
	Notes           string
}

// CheckoutLine is one requested purchase line, without client pricing.
type CheckoutLine struct {
	ProductID string
	VariantID string
	Quantity  int
}

// CheckoutResult reports the created order plus the PSP session handed back
// to the client when a payment provider is configured.
type CheckoutResult struct {
	Order              Order
	PaymentSessionID   string
	PaymentRedirectURL string
}

// OrderService owns the order lifecycle: creation, the strict status
// transition table, and the append-only histories.
type OrderService interface {
	Get(ctx context.Context, orderID string) (Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	CanUpdateStatus(ctx context.Context, orderID string, target OrderStatus) (bool, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	AddPayment(ctx context.Context, cmd AddPaymentCommand) (Order, error)
	AddTrackingEvent(ctx context.Context, cmd AddTrackingEventCommand) (Order, error)
	RecordNotification(ctx context.Context, cmd RecordNotificationCommand) (Order, error)
}

// OrderListFilter narrows order listings for customers and admins.
type OrderListFilter struct {
	CustomerID    string
	PaymentStates []PaymentState
	Fulfillments  []FulfillmentState
	DateRange     domain.DateRange
	Pagination    Pagination
}

// CreateOrderCommand carries a fully repriced order candidate.
type CreateOrderCommand struct {
	CustomerID      string
	Customer        CustomerInfo
	ShippingAddress Address
	Lines           []OrderLine
	Pricing         OrderPricing
	PaymentMethod   string
	ShippingMethod  ShippingMethod
	Notes           string
}

// OrderStatusTransitionCommand requests a projected-status transition.
type OrderStatusTransitionCommand struct {
	OrderID        string
	TargetStatus   OrderStatus
	Actor          string
	Reason         string
	ExpectedStatus OrderStatus
}

// CancelOrderCommand cancels an order through the transition table.
type CancelOrderCommand struct {
	OrderID string
	Actor   string
	Reason  string
}

// AddPaymentCommand appends a payment attempt to an order.
type AddPaymentCommand struct {
	OrderID       string
	Method        string
	TransactionID string
	Amount        float64
	Status        domain.PaymentAttemptStatus
	Actor         string
	Metadata      map[string]string
}

// AddTrackingEventCommand appends a carrier tracking event.
type AddTrackingEventCommand struct {
	OrderID     string
	Carrier     string
	Code        string
	Status      string
	Location    string
	Description string
	OccurredAt  time.Time
}

// RecordNotificationCommand appends an outbound notification record.
type RecordNotificationCommand struct {
	OrderID   string
	Type      string
	Channel   string
	Recipient string
	Message   string
	Status    string
}

// RefundService returns money to the customer through the payment provider
// and records the outcome on the order as a refunded payment attempt.
type RefundService interface {
	Refund(ctx context.Context, cmd RefundOrderCommand) (Order, error)
}

// RefundOrderCommand requests a refund against an order's captured payments.
// A zero Amount refunds everything still refundable.
type RefundOrderCommand struct {
	OrderID string
	Amount  float64
	Reason  string
	Actor   string
}

// OrderEventPublisher fans order lifecycle events out to interested consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent is the payload published on order lifecycle changes.
type OrderEvent struct {
	Type        string
	OrderID     string
	OrderNumber string
	CustomerID  string
	Status      OrderStatus
	OccurredAt  time.Time
	Metadata    map[string]string
}

// CouponService resolves coupon codes for cart application. Availability
// covers existence, the active flag and the validity window only; amount
// gates are evaluated when totals are derived.
type CouponService interface {
	FindByCode(ctx context.Context, code string) (Coupon, error)
	List(ctx context.Context, pager Pagination) (domain.CursorPage[Coupon], error)
	Upsert(ctx context.Context, coupon Coupon) (Coupon, error)
	Delete(ctx context.Context, couponID string) error
}

// CatalogService serves storefront product and category reads plus admin writes.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	GetProductBySlug(ctx context.Context, slug string) (Product, error)
	ListCategories(ctx context.Context, onlyActive bool) ([]Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (Category, error)
	UpsertProduct(ctx context.Context, product Product) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	UpsertCategory(ctx context.Context, category Category) (Category, error)
}

// ProductListFilter narrows storefront product listings.
type ProductListFilter struct {
	CategorySlug string
	Brand        string
	Attributes   map[string]string
	PriceMin     *float64
	PriceMax     *float64
	Search       string
	SortBy       string
	SortOrder    SortOrder
	Pagination   Pagination
}

// InventoryService answers stock questions used to cap cart quantities.
type InventoryService interface {
	Levels(ctx context.Context, skus []string) (map[string]InventoryLevel, error)
	AvailableFor(ctx context.Context, sku string) (int, bool, error)
	Adjust(ctx context.Context, sku string, delta int) (InventoryLevel, error)
}

// ReviewService accepts and moderates product reviews.
type ReviewService interface {
	Submit(ctx context.Context, cmd SubmitReviewCommand) (Review, error)
	ListByProduct(ctx context.Context, productID string, filter ReviewListFilter) (domain.CursorPage[Review], error)
	Moderate(ctx context.Context, cmd ModerateReviewCommand) (Review, error)
}

// SubmitReviewCommand is a new review submission; the comment is sanitized
// before persistence.
type SubmitReviewCommand struct {
	ProductID   string
	CustomerID  string
	DisplayName string
	Rating      int
	Title       string
	Comment     string
}

// ReviewListFilter narrows review listings.
type ReviewListFilter struct {
	Status     []ReviewStatus
	MinRating  int
	Pagination Pagination
}

// ModerateReviewCommand publishes or rejects a pending review.
type ModerateReviewCommand struct {
	ReviewID string
	Status   ReviewStatus
	Actor    string
}

// CustomerService manages shopper profiles and saved addresses.
type CustomerService interface {
	Get(ctx context.Context, customerID string) (Customer, error)
	UpdateProfile(ctx context.Context, cmd UpdateCustomerCommand) (Customer, error)
	UpsertAddress(ctx context.Context, customerID string, address Address) (Address, error)
	DeleteAddress(ctx context.Context, customerID string, addressID string) error
}

// UpdateCustomerCommand mutates mutable profile fields.
type UpdateCustomerCommand struct {
	CustomerID  string
	DisplayName *string
	Phone       *string
}

// WishlistService tracks products a customer saved for later.
type WishlistService interface {
	List(ctx context.Context, customerID string, pager Pagination) (domain.CursorPage[WishlistItem], error)
	Add(ctx context.Context, customerID string, productID string) (bool, error)
	Remove(ctx context.Context, customerID string, productID string) error
}

// ReportService summarises sales over a date range and exports order rows as
// CSV objects in Cloud Storage.
type ReportService interface {
	Revenue(ctx context.Context, dateRange domain.DateRange) (RevenueReport, error)
	TopProducts(ctx context.Context, dateRange domain.DateRange, limit int) ([]ProductSales, error)
	ExportOrdersCSV(ctx context.Context, dateRange domain.DateRange) (ExportResult, error)
}

// RevenueReport aggregates order totals for a period.
type RevenueReport struct {
	Currency    string
	OrderCount  int
	GrossTotal  float64
	TaxTotal    float64
	ShippingSum float64
	DiscountSum float64
	NetTotal    float64
	From        time.Time
	To          time.Time
}

// ProductSales is one row of the top-products report.
type ProductSales struct {
	ProductID string
	Name      string
	Quantity  int
	Revenue   float64
}

// ExportResult references a generated export object.
type ExportResult struct {
	Bucket      string
	ObjectPath  string
	RowCount    int
	GeneratedAt time.Time
}

// AuditLogService records system-wide audit entries. Persistence failures are
// logged and swallowed so audit writes never break the main flow.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// AuditLogRecord is the input for one audit entry.
type AuditLogRecord struct {
	Actor         string
	ActorType     string
	Action        string
	TargetRef     string
	Severity      string
	RequestID     string
	OccurredAt    time.Time
	Metadata      map[string]any
	Diff          map[string]AuditLogDiff
	SensitiveKeys []string
}

// AuditLogDiff is a before/after pair for one field.
type AuditLogDiff struct {
	Before any
	After  any
}

// CounterService allocates human-facing sequence numbers.
type CounterService interface {
	NextOrderNumber(ctx context.Context) (string, error)
}

// SystemService aggregates dependency health for the probe endpoints.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}
