package domain

// CartSummary captures the derived monetary state of a cart. It is a pure
// function of the cart's items, coupon and shipping method: calling the
// engine twice without a mutation in between yields identical summaries.
type CartSummary struct {
	Currency         string
	Subtotal         float64
	Shipping         float64
	Discount         float64
	Tax              float64
	Total            float64
	ItemsCount       int
	TotalWeightGrams int
	Lines            []LineSummary
	AppliedCoupon    *CouponEffect
	ShippingDetail   ShippingDetail
}

// LineSummary is the per-item slice of the summary.
type LineSummary struct {
	ItemID    string
	ProductID string
	VariantID string
	Quantity  int
	UnitPrice float64
	LineTotal float64
}

// CouponEffect reports what the applied coupon actually contributed. A coupon
// below its minimum stays applied with a zero amount.
type CouponEffect struct {
	Code       string
	Type       CouponType
	Amount     float64
	Capped     bool
	BelowMin   bool
	Inactive   bool
	MinAmount  float64
	MaxAllowed float64
}

// ShippingDetail records which rate-table row produced the shipping charge.
type ShippingDetail struct {
	Method        ShippingMethod
	Rate          float64
	FreeThreshold float64
	Free          bool
}
