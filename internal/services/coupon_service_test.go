package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/glowmane/api/internal/domain"
)

type memCouponRepo struct {
	byCode map[string]domain.Coupon
	err    error
}

func (r *memCouponRepo) Upsert(_ context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	if r.err != nil {
		return domain.Coupon{}, r.err
	}
	if r.byCode == nil {
		r.byCode = make(map[string]domain.Coupon)
	}
	r.byCode[coupon.Code] = coupon
	return coupon, nil
}

func (r *memCouponRepo) Delete(context.Context, string) error {
	return r.err
}

func (r *memCouponRepo) FindByCode(_ context.Context, code string) (domain.Coupon, error) {
	if r.err != nil {
		return domain.Coupon{}, r.err
	}
	coupon, ok := r.byCode[code]
	if !ok {
		return domain.Coupon{}, fakeRepoError{msg: "coupon " + code, notFound: true}
	}
	return coupon, nil
}

func (r *memCouponRepo) List(context.Context, domain.Pagination) (domain.CursorPage[domain.Coupon], error) {
	if r.err != nil {
		return domain.CursorPage[domain.Coupon]{}, r.err
	}
	page := domain.CursorPage[domain.Coupon]{}
	for _, coupon := range r.byCode {
		page.Items = append(page.Items, coupon)
	}
	return page, nil
}

func newTestCouponService(t *testing.T, repo *memCouponRepo) CouponService {
	t.Helper()
	counter := 0
	svc, err := NewCouponService(CouponServiceDeps{
		Coupons: repo,
		Clock:   func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) },
		IDGenerator: func() string {
			counter++
			return fmt.Sprintf("cpn-%d", counter)
		},
	})
	if err != nil {
		t.Fatalf("NewCouponService returned error: %v", err)
	}
	return svc
}

func TestFindByCodeNormalizesCode(t *testing.T) {
	repo := &memCouponRepo{byCode: map[string]domain.Coupon{
		"SAVE10": {ID: "c1", Code: "SAVE10", Type: domain.CouponPercentage, Value: 10, Active: true},
	}}
	svc := newTestCouponService(t, repo)

	coupon, err := svc.FindByCode(context.Background(), "  save10 ")
	if err != nil {
		t.Fatalf("FindByCode returned error: %v", err)
	}
	if coupon.Code != "SAVE10" {
		t.Fatalf("expected SAVE10, got %s", coupon.Code)
	}
}

func TestFindByCodeUnknown(t *testing.T) {
	svc := newTestCouponService(t, &memCouponRepo{})

	_, err := svc.FindByCode(context.Background(), "NOPE")
	if !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}
}

func TestFindByCodeEmpty(t *testing.T) {
	svc := newTestCouponService(t, &memCouponRepo{})

	_, err := svc.FindByCode(context.Background(), "   ")
	if !errors.Is(err, ErrCouponInvalidInput) {
		t.Fatalf("expected ErrCouponInvalidInput, got %v", err)
	}
}

func TestUpsertValidatesValueRanges(t *testing.T) {
	svc := newTestCouponService(t, &memCouponRepo{})
	ctx := context.Background()

	cases := []domain.Coupon{
		{Code: "P0", Type: domain.CouponPercentage, Value: 0},
		{Code: "P101", Type: domain.CouponPercentage, Value: 101},
		{Code: "F0", Type: domain.CouponFixed, Value: 0},
		{Code: "NEG", Type: domain.CouponFixed, Value: 5, MinAmount: -1},
		{Code: "BAD", Type: "bogus", Value: 5},
		{Code: "", Type: domain.CouponFixed, Value: 5},
	}
	for _, coupon := range cases {
		if _, err := svc.Upsert(ctx, coupon); !errors.Is(err, ErrCouponInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", coupon, err)
		}
	}
}

func TestUpsertAssignsIDAndTimestamps(t *testing.T) {
	repo := &memCouponRepo{}
	svc := newTestCouponService(t, repo)

	saved, err := svc.Upsert(context.Background(), domain.Coupon{
		Code: "welcome5", Type: domain.CouponFixed, Value: 5, Active: true,
	})
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated id")
	}
	if saved.Code != "WELCOME5" {
		t.Fatalf("expected uppercased code, got %s", saved.Code)
	}
	if saved.CreatedAt.IsZero() || saved.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps set, got %+v", saved)
	}
}

func TestCouponServiceTranslatesUnavailable(t *testing.T) {
	repo := &memCouponRepo{err: fakeRepoError{msg: "backend down", unavailable: true}}
	svc := newTestCouponService(t, repo)

	_, err := svc.FindByCode(context.Background(), "SAVE10")
	if !errors.Is(err, ErrCouponUnavailable) {
		t.Fatalf("expected ErrCouponUnavailable, got %v", err)
	}
}
