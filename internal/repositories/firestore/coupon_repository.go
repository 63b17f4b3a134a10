package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/glowmane/api/internal/domain"
	pfirestore "github.com/glowmane/api/internal/platform/firestore"
	"github.com/glowmane/api/internal/repositories"
)

const (
	couponCollection      = "coupons"
	defaultCouponPageSize = 50
)

// CouponRepository maintains coupon definitions within Firestore.
type CouponRepository struct {
	base     *pfirestore.BaseRepository[couponDocument]
	provider *pfirestore.Provider
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[couponDocument](provider, couponCollection, nil, nil)
	return &CouponRepository{
		base:     base,
		provider: provider,
	}, nil
}

func (r *CouponRepository) Upsert(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	couponID := strings.TrimSpace(coupon.ID)
	if couponID == "" {
		return domain.Coupon{}, errors.New("coupon repository: coupon id is required")
	}

	doc := encodeCoupon(coupon)
	result, err := r.base.Set(ctx, couponID, doc)
	if err != nil {
		return domain.Coupon{}, err
	}
	saved := decodeCoupon(couponID, doc)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

func (r *CouponRepository) Delete(ctx context.Context, couponID string) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	id := strings.TrimSpace(couponID)
	if id == "" {
		return errors.New("coupon repository: coupon id is required")
	}
	return r.base.Delete(ctx, id)
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return domain.Coupon{}, errors.New("coupon repository: code is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	if len(docs) == 0 {
		return domain.Coupon{}, pfirestore.NotFoundError("coupons.find_by_code", fmt.Errorf("coupon %s not found", normalized))
	}
	return decodeCoupon(docs[0].ID, docs[0].Data), nil
}

// List returns coupons ordered by code.
func (r *CouponRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Coupon], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Coupon]{}, errors.New("coupon repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Coupon]{}, err
	}

	limit := pager.PageSize
	if limit <= 0 {
		limit = defaultCouponPageSize
	}
	fetchLimit := limit + 1

	query := client.Collection(couponCollection).
		OrderBy("code", firestore.Asc).
		Limit(fetchLimit)

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		afterCode, err := decodeStringCursor(token)
		if err != nil {
			return domain.CursorPage[domain.Coupon]{}, fmt.Errorf("coupons.list: invalid page token: %w", err)
		}
		query = query.StartAfter(afterCode)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var coupons []domain.Coupon
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Coupon]{}, pfirestore.WrapError("coupons.list", err)
		}
		var doc couponDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Coupon]{}, fmt.Errorf("coupons.list: decode %s: %w", snap.Ref.ID, err)
		}
		coupons = append(coupons, decodeCoupon(snap.Ref.ID, doc))
	}

	nextToken := ""
	if len(coupons) == fetchLimit {
		nextToken = encodeStringCursor(coupons[len(coupons)-1].Code)
		coupons = coupons[:len(coupons)-1]
	}
	return domain.CursorPage[domain.Coupon]{
		Items:         coupons,
		NextPageToken: nextToken,
	}, nil
}

func encodeCoupon(coupon domain.Coupon) couponDocument {
	return couponDocument{
		Code:        strings.ToUpper(strings.TrimSpace(coupon.Code)),
		Type:        string(coupon.Type),
		Value:       coupon.Value,
		MinAmount:   coupon.MinAmount,
		MaxDiscount: coupon.MaxDiscount,
		Active:      coupon.Active,
		StartsAt:    coupon.StartsAt,
		ExpiresAt:   coupon.ExpiresAt,
		CreatedAt:   coupon.CreatedAt.UTC(),
		UpdatedAt:   coupon.UpdatedAt.UTC(),
	}
}

func decodeCoupon(id string, doc couponDocument) domain.Coupon {
	return domain.Coupon{
		ID:          id,
		Code:        doc.Code,
		Type:        domain.CouponType(doc.Type),
		Value:       doc.Value,
		MinAmount:   doc.MinAmount,
		MaxDiscount: doc.MaxDiscount,
		Active:      doc.Active,
		StartsAt:    doc.StartsAt,
		ExpiresAt:   doc.ExpiresAt,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

type couponDocument struct {
	Code        string     `firestore:"code"`
	Type        string     `firestore:"type"`
	Value       float64    `firestore:"value"`
	MinAmount   float64    `firestore:"minAmount,omitempty"`
	MaxDiscount float64    `firestore:"maxDiscount,omitempty"`
	Active      bool       `firestore:"active"`
	StartsAt    *time.Time `firestore:"startsAt,omitempty"`
	ExpiresAt   *time.Time `firestore:"expiresAt,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)
