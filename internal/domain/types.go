package domain

import "time"

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// CursorPage is a page of results plus the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// DateRange bounds report and listing queries. Zero values are open ends.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Category groups products and carries the filter attributes the storefront
// renders for that section of the catalog.
type Category struct {
	ID          string
	Slug        string
	Name        string
	Description string
	ParentID    string
	Filters     []FilterAttribute
	Position    int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FilterAttribute describes one category-specific facet (hair type, hold
// strength, shade family) and the values it can take.
type FilterAttribute struct {
	Key     string
	Label   string
	Options []string
}

// Product is a catalog entry. Prices are major currency units.
type Product struct {
	ID             string
	Slug           string
	Name           string
	Brand          string
	Description    string
	CategoryID     string
	Price          float64
	CompareAtPrice *float64
	Currency       string
	Images         []string
	Attributes     map[string]string
	WeightGrams    int
	Rating         float64
	ReviewCount    int
	Active         bool
	Variants       []ProductVariant
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProductVariant overrides price/stock for one sellable variation (shade,
// size, length). A nil Price inherits the product price.
type ProductVariant struct {
	ID         string
	Name       string
	SKU        string
	Price      *float64
	Stock      *int
	Attributes map[string]string
}

// ShippingMethod selects a row of the shipping rate table.
type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
	ShippingPickup   ShippingMethod = "pickup"
)

// ShippingRate is one row of the rate table: a flat rate waived once the cart
// subtotal reaches FreeThreshold. Pickup is always free.
type ShippingRate struct {
	Method        ShippingMethod
	Rate          float64
	FreeThreshold float64
}

// CouponType discriminates percentage coupons from fixed-amount ones.
type CouponType string

const (
	CouponPercentage CouponType = "percentage"
	CouponFixed      CouponType = "fixed"
)

// Coupon is a discount rule. MinAmount gates the discount on the subtotal and
// MaxDiscount caps it; both are zero when unset.
type Coupon struct {
	ID          string
	Code        string
	Type        CouponType
	Value       float64
	MinAmount   float64
	MaxDiscount float64
	Active      bool
	StartsAt    *time.Time
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductSnapshot is the price/name/image copy taken when an item enters the
// cart. It is deliberately not refreshed afterwards.
type ProductSnapshot struct {
	ProductID   string
	VariantID   string
	Name        string
	VariantName string
	SKU         string
	Image       string
	Price       float64
	WeightGrams int
}

// CartItem is one line in a cart. At most one item exists per
// (ProductID, VariantID) pair; duplicate adds merge by quantity.
type CartItem struct {
	ID          string
	ProductID   string
	VariantID   string
	Quantity    int
	MaxQuantity int
	Snapshot    ProductSnapshot
	AddedAt     time.Time
	UpdatedAt   *time.Time
}

// Cart holds a customer's line items plus the coupon and shipping method used
// when deriving totals. Totals are always recomputed from these inputs,
// never stored authoritatively.
type Cart struct {
	ID             string
	CustomerID     string
	Currency       string
	Items          []CartItem
	Coupon         *Coupon
	ShippingMethod ShippingMethod
	Metadata       map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CustomerInfo is the contact snapshot embedded in an order.
type CustomerInfo struct {
	Name  string
	Email string
	Phone string
}

// Address is a delivery address, either saved on a customer or embedded in an
// order.
type Address struct {
	ID         string
	Label      string
	Recipient  string
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string
	Phone      string
	Default    bool
}

// Customer is a registered shopper.
type Customer struct {
	ID          string
	Email       string
	DisplayName string
	Phone       string
	Addresses   []Address
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WishlistItem records a product a customer saved for later.
type WishlistItem struct {
	ProductID string
	AddedAt   time.Time
}

// OrderLine is the purchased snapshot of a cart line. TotalPrice is
// UnitPrice multiplied by Quantity, fixed at order creation.
type OrderLine struct {
	ProductID  string
	VariantID  string
	Name       string
	SKU        string
	Quantity   int
	UnitPrice  float64
	TotalPrice float64
}

// OrderPricing is computed once at order creation and never silently
// recalculated. Later changes must go through an audited update.
type OrderPricing struct {
	Subtotal   float64
	Shipping   float64
	Discount   float64
	Tax        float64
	Total      float64
	Currency   string
	CouponCode string
}

// PaymentAttemptStatus is the outcome of a single payment attempt.
type PaymentAttemptStatus string

const (
	PaymentAttemptPending   PaymentAttemptStatus = "pending"
	PaymentAttemptCompleted PaymentAttemptStatus = "completed"
	PaymentAttemptFailed    PaymentAttemptStatus = "failed"
	PaymentAttemptRefunded  PaymentAttemptStatus = "refunded"
)

// PaymentAttempt is one recorded attempt against an order, appended by the
// payment provider webhook or an operator.
type PaymentAttempt struct {
	ID            string
	Method        string
	TransactionID string
	Amount        float64
	Status        PaymentAttemptStatus
	ProcessedAt   time.Time
	Metadata      map[string]string
}

// StatusChange is one entry of the append-only status history.
type StatusChange struct {
	From      OrderStatus
	To        OrderStatus
	Actor     string
	Reason    string
	ChangedAt time.Time
}

// FieldChange captures a single before/after pair inside an audit entry.
type FieldChange struct {
	Field  string
	Before any
	After  any
}

// OrderAuditEntry is one entry of the order's append-only audit log. It is
// broader than the status history and records any tracked mutation.
type OrderAuditEntry struct {
	Action     string
	Actor      string
	OccurredAt time.Time
	Fields     []FieldChange
}

// TrackingEvent is an append-only carrier fact. No transition gating applies.
type TrackingEvent struct {
	Carrier     string
	Code        string
	Status      string
	Location    string
	Description string
	OccurredAt  time.Time
}

// NotificationRecord is an append-only record of an outbound notification
// attempt and its delivery outcome.
type NotificationRecord struct {
	Type      string
	Channel   string
	Recipient string
	Message   string
	Status    string
	SentAt    time.Time
}

// Order is the persisted system of record for a purchase. OrderNumber and ID
// are immutable once assigned; StatusHistory, AuditLog, TrackingEvents and
// Notifications only ever grow.
type Order struct {
	ID               string
	OrderNumber      string
	CustomerID       string
	Customer         CustomerInfo
	ShippingAddress  Address
	Lines            []OrderLine
	Pricing          OrderPricing
	PaymentState     PaymentState
	FulfillmentState FulfillmentState
	PaymentMethod    string
	ShippingMethod   ShippingMethod
	Payments         []PaymentAttempt
	StatusHistory    []StatusChange
	AuditLog         []OrderAuditEntry
	TrackingEvents   []TrackingEvent
	Notifications    []NotificationRecord
	Notes            string
	ConfirmedAt      *time.Time
	ShippedAt        *time.Time
	DeliveredAt      *time.Time
	CancelledAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Status projects the stored payment/fulfillment dimensions onto the single
// transition-table status. It is derived, never persisted.
func (o Order) Status() OrderStatus {
	return ProjectOrderStatus(o.PaymentState, o.FulfillmentState)
}

// ReviewStatus is the moderation state of a product review.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewPublished ReviewStatus = "published"
	ReviewRejected  ReviewStatus = "rejected"
)

// Review is a customer product review.
type Review struct {
	ID          string
	ProductID   string
	CustomerID  string
	DisplayName string
	Rating      int
	Title       string
	Comment     string
	Status      ReviewStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ModeratedAt *time.Time
	ModeratedBy string
}

// InventoryLevel is the available stock for one SKU.
type InventoryLevel struct {
	SKU       string
	ProductID string
	VariantID string
	Available int
	UpdatedAt time.Time
}

// AuditLogEntry is a system-wide audit record kept outside any single order.
type AuditLogEntry struct {
	ID        string
	Actor     string
	ActorType string
	Action    string
	TargetRef string
	Severity  string
	RequestID string
	Metadata  map[string]any
	Diff      map[string]any
	CreatedAt time.Time
}
