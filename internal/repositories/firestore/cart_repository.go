package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/glowmane/api/internal/domain"
	pfirestore "github.com/glowmane/api/internal/platform/firestore"
	"github.com/glowmane/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists carts within Firestore, one document per customer.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// UpsertCart writes the full cart document keyed by customer ID.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}

	customerID := strings.TrimSpace(cart.CustomerID)
	if customerID == "" {
		return domain.Cart{}, errors.New("cart repository: customer id is required")
	}

	now := time.Now().UTC()
	if !cart.UpdatedAt.IsZero() {
		now = cart.UpdatedAt.UTC()
	}
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := cartDocument{
		Currency:       strings.ToUpper(strings.TrimSpace(cart.Currency)),
		ShippingMethod: string(cart.ShippingMethod),
		Items:          encodeCartItems(cart.Items),
		Coupon:         encodeCartCoupon(cart.Coupon),
		Metadata:       cloneStringValueMap(cart.Metadata),
		ItemsCount:     len(cart.Items),
		CreatedAt:      createdAt,
		UpdatedAt:      now,
	}

	result, err := r.base.Set(ctx, customerID, doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := cloneCart(cart)
	saved.ID = customerID
	saved.CustomerID = customerID
	saved.Currency = doc.Currency
	saved.CreatedAt = createdAt
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// GetCart loads the cart for the given customer ID.
func (r *CartRepository) GetCart(ctx context.Context, customerID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return domain.Cart{}, errors.New("cart repository: customer id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{
		ID:             doc.ID,
		CustomerID:     doc.ID,
		Currency:       strings.ToUpper(strings.TrimSpace(doc.Data.Currency)),
		Items:          decodeCartItems(doc.Data.Items),
		Coupon:         decodeCartCoupon(doc.Data.Coupon),
		ShippingMethod: domain.ShippingMethod(doc.Data.ShippingMethod),
		Metadata:       cloneStringValueMap(doc.Data.Metadata),
		CreatedAt:      doc.Data.CreatedAt,
		UpdatedAt:      doc.Data.UpdatedAt,
	}
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = doc.CreateTime
	}
	if !doc.UpdateTime.IsZero() {
		cart.UpdatedAt = doc.UpdateTime
	}
	return cart, nil
}

// DeleteCart removes the cart document. Deleting an absent cart is a no-op.
func (r *CartRepository) DeleteCart(ctx context.Context, customerID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return errors.New("cart repository: customer id is required")
	}
	return r.base.Delete(ctx, id)
}

func cloneCart(cart domain.Cart) domain.Cart {
	dup := cart
	if cart.Items != nil {
		dup.Items = make([]domain.CartItem, len(cart.Items))
		copy(dup.Items, cart.Items)
	}
	if cart.Coupon != nil {
		coupon := *cart.Coupon
		dup.Coupon = &coupon
	}
	if cart.Metadata != nil {
		dup.Metadata = cloneStringValueMap(cart.Metadata)
	}
	return dup
}

func cloneStringValueMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func encodeCartItems(items []domain.CartItem) []cartItemDocument {
	if len(items) == 0 {
		return nil
	}
	out := make([]cartItemDocument, 0, len(items))
	for _, item := range items {
		doc := cartItemDocument{
			ID:          item.ID,
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			Quantity:    item.Quantity,
			MaxQuantity: item.MaxQuantity,
			Snapshot: cartSnapshotDocument{
				ProductID:   item.Snapshot.ProductID,
				VariantID:   item.Snapshot.VariantID,
				Name:        item.Snapshot.Name,
				VariantName: item.Snapshot.VariantName,
				SKU:         item.Snapshot.SKU,
				Image:       item.Snapshot.Image,
				Price:       item.Snapshot.Price,
				WeightGrams: item.Snapshot.WeightGrams,
			},
			AddedAt: item.AddedAt.UTC(),
		}
		if item.UpdatedAt != nil {
			ts := item.UpdatedAt.UTC()
			doc.UpdatedAt = &ts
		}
		out = append(out, doc)
	}
	return out
}

func decodeCartItems(docs []cartItemDocument) []domain.CartItem {
	items := make([]domain.CartItem, 0, len(docs))
	for _, doc := range docs {
		item := domain.CartItem{
			ID:          doc.ID,
			ProductID:   doc.ProductID,
			VariantID:   doc.VariantID,
			Quantity:    doc.Quantity,
			MaxQuantity: doc.MaxQuantity,
			Snapshot: domain.ProductSnapshot{
				ProductID:   doc.Snapshot.ProductID,
				VariantID:   doc.Snapshot.VariantID,
				Name:        doc.Snapshot.Name,
				VariantName: doc.Snapshot.VariantName,
				SKU:         doc.Snapshot.SKU,
				Image:       doc.Snapshot.Image,
				Price:       doc.Snapshot.Price,
				WeightGrams: doc.Snapshot.WeightGrams,
			},
			AddedAt:   doc.AddedAt,
			UpdatedAt: doc.UpdatedAt,
		}
		items = append(items, item)
	}
	return items
}

func encodeCartCoupon(coupon *domain.Coupon) *cartCouponDocument {
	if coupon == nil {
		return nil
	}
	return &cartCouponDocument{
		ID:          coupon.ID,
		Code:        coupon.Code,
		Type:        string(coupon.Type),
		Value:       coupon.Value,
		MinAmount:   coupon.MinAmount,
		MaxDiscount: coupon.MaxDiscount,
		Active:      coupon.Active,
		StartsAt:    coupon.StartsAt,
		ExpiresAt:   coupon.ExpiresAt,
	}
}

func decodeCartCoupon(doc *cartCouponDocument) *domain.Coupon {
	if doc == nil {
		return nil
	}
	return &domain.Coupon{
		ID:          doc.ID,
		Code:        doc.Code,
		Type:        domain.CouponType(doc.Type),
		Value:       doc.Value,
		MinAmount:   doc.MinAmount,
		MaxDiscount: doc.MaxDiscount,
		Active:      doc.Active,
		StartsAt:    doc.StartsAt,
		ExpiresAt:   doc.ExpiresAt,
	}
}

type cartDocument struct {
	Currency       string             `firestore:"currency"`
	ShippingMethod string             `firestore:"shippingMethod,omitempty"`
	Items          []cartItemDocument `firestore:"items,omitempty"`
	Coupon         *cartCouponDocument `firestore:"coupon,omitempty"`
	Metadata       map[string]string  `firestore:"metadata,omitempty"`
	ItemsCount     int                `firestore:"itemsCount"`
	CreatedAt      time.Time          `firestore:"createdAt"`
	UpdatedAt      time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID          string               `firestore:"id"`
	ProductID   string               `firestore:"productId"`
	VariantID   string               `firestore:"variantId,omitempty"`
	Quantity    int                  `firestore:"quantity"`
	MaxQuantity int                  `firestore:"maxQuantity"`
	Snapshot    cartSnapshotDocument `firestore:"snapshot"`
	AddedAt     time.Time            `firestore:"addedAt"`
	UpdatedAt   *time.Time           `firestore:"updatedAt,omitempty"`
}

type cartSnapshotDocument struct {
	ProductID   string  `firestore:"productId"`
	VariantID   string  `firestore:"variantId,omitempty"`
	Name        string  `firestore:"name"`
	VariantName string  `firestore:"variantName,omitempty"`
	SKU         string  `firestore:"sku,omitempty"`
	Image       string  `firestore:"image,omitempty"`
	Price       float64 `firestore:"price"`
	WeightGrams int     `firestore:"weightGrams,omitempty"`
}

type cartCouponDocument struct {
	ID          string     `firestore:"id,omitempty"`
	Code        string     `firestore:"code"`
	Type        string     `firestore:"type"`
	Value       float64    `firestore:"value"`
	MinAmount   float64    `firestore:"minAmount,omitempty"`
	MaxDiscount float64    `firestore:"maxDiscount,omitempty"`
	Active      bool       `firestore:"active"`
	StartsAt    *time.Time `firestore:"startsAt,omitempty"`
	ExpiresAt   *time.Time `firestore:"expiresAt,omitempty"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
