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

var (
	// ErrCouponInvalidInput signals the supplied coupon data is missing or invalid.
	ErrCouponInvalidInput = errors.New("coupon service: invalid input")
	// ErrCouponNotFound indicates no coupon exists for the provided code.
	ErrCouponNotFound = errors.New("coupon service: coupon not found")
	// ErrCouponUnavailable indicates the coupon backend cannot serve the request.
	ErrCouponUnavailable = errors.New("coupon service: unavailable")
)

// CouponServiceDeps bundles dependencies required to construct a CouponService.
type CouponServiceDeps struct {
	Coupons     repositories.CouponRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type couponService struct {
	repo  repositories.CouponRepository
	clock func() time.Time
	newID func() string
}

// NewCouponService wires a CouponService backed by the coupon repository.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &couponService{
		repo:  deps.Coupons,
		clock: func() time.Time { return clock().UTC() },
		newID: idGen,
	}, nil
}

// FindByCode resolves a coupon by its normalized code. Only existence is
// verified here; the amount gates run when cart totals are derived.
func (s *couponService) FindByCode(ctx context.Context, code string) (Coupon, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return Coupon{}, fmt.Errorf("%w: code is required", ErrCouponInvalidInput)
	}

	coupon, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		return Coupon{}, s.translateRepoError(err)
	}
	return coupon, nil
}

func (s *couponService) List(ctx context.Context, pager Pagination) (domain.CursorPage[Coupon], error) {
	page, err := s.repo.List(ctx, pager)
	if err != nil {
		return domain.CursorPage[Coupon]{}, s.translateRepoError(err)
	}
	return page, nil
}

func (s *couponService) Upsert(ctx context.Context, coupon Coupon) (Coupon, error) {
	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	if coupon.Code == "" {
		return Coupon{}, fmt.Errorf("%w: code is required", ErrCouponInvalidInput)
	}
	switch coupon.Type {
	case domain.CouponPercentage:
		if coupon.Value <= 0 || coupon.Value > 100 {
			return Coupon{}, fmt.Errorf("%w: percentage value must be in (0, 100]", ErrCouponInvalidInput)
		}
	case domain.CouponFixed:
		if coupon.Value <= 0 {
			return Coupon{}, fmt.Errorf("%w: fixed value must be positive", ErrCouponInvalidInput)
		}
	default:
		return Coupon{}, fmt.Errorf("%w: unknown coupon type %q", ErrCouponInvalidInput, coupon.Type)
	}
	if coupon.MinAmount < 0 || coupon.MaxDiscount < 0 {
		return Coupon{}, fmt.Errorf("%w: amount gates cannot be negative", ErrCouponInvalidInput)
	}

	now := s.clock()
	if coupon.ID == "" {
		coupon.ID = s.newID()
		coupon.CreatedAt = now
	}
	coupon.UpdatedAt = now

	saved, err := s.repo.Upsert(ctx, coupon)
	if err != nil {
		return Coupon{}, s.translateRepoError(err)
	}
	return saved, nil
}

func (s *couponService) Delete(ctx context.Context, couponID string) error {
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return fmt.Errorf("%w: coupon id is required", ErrCouponInvalidInput)
	}
	if err := s.repo.Delete(ctx, couponID); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *couponService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrCouponNotFound, repoErr.Error())
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %s", ErrCouponUnavailable, repoErr.Error())
		}
	}
	return fmt.Errorf("%w: %s", ErrCouponUnavailable, err.Error())
}
