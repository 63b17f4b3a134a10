package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/repositories"
)

const defaultWishlistLimit = 200

var (
	// ErrWishlistInvalidInput indicates a missing customer or product id.
	ErrWishlistInvalidInput = errors.New("wishlist service: invalid input")
	// ErrWishlistUnavailable indicates the wishlist backend cannot serve the request.
	ErrWishlistUnavailable = errors.New("wishlist service: unavailable")
)

// WishlistServiceDeps bundles constructor inputs for the wishlist service.
type WishlistServiceDeps struct {
	Repository repositories.WishlistRepository
	Catalog    productSnapshotter
	Clock      func() time.Time
	Limit      int
}

type wishlistService struct {
	repo    repositories.WishlistRepository
	catalog productSnapshotter
	clock   func() time.Time
	limit   int
}

// NewWishlistService constructs the saved-products service.
func NewWishlistService(deps WishlistServiceDeps) (WishlistService, error) {
	if deps.Repository == nil {
		return nil, errors.New("wishlist service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	limit := deps.Limit
	if limit <= 0 {
		limit = defaultWishlistLimit
	}
	return &wishlistService{
		repo:    deps.Repository,
		catalog: deps.Catalog,
		clock:   func() time.Time { return clock().UTC() },
		limit:   limit,
	}, nil
}

func (s *wishlistService) List(ctx context.Context, customerID string, pager Pagination) (domain.CursorPage[WishlistItem], error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.CursorPage[WishlistItem]{}, fmt.Errorf("%w: customer id is required", ErrWishlistInvalidInput)
	}
	page, err := s.repo.List(ctx, customerID, pager)
	if err != nil {
		return domain.CursorPage[WishlistItem]{}, s.translateRepoError(err)
	}
	return page, nil
}

// Add saves a product for later. The bool reports whether a new entry was
// written; re-adding an already saved product returns false.
func (s *wishlistService) Add(ctx context.Context, customerID string, productID string) (bool, error) {
	customerID = strings.TrimSpace(customerID)
	productID = strings.TrimSpace(productID)
	if customerID == "" || productID == "" {
		return false, fmt.Errorf("%w: customer id and product id are required", ErrWishlistInvalidInput)
	}

	if s.catalog != nil {
		if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
			if errors.Is(err, ErrCatalogNotFound) {
				return false, fmt.Errorf("%w: product %s does not exist", ErrWishlistInvalidInput, productID)
			}
			return false, fmt.Errorf("%w: %s", ErrWishlistUnavailable, err.Error())
		}
	}

	added, err := s.repo.Put(ctx, customerID, productID, s.clock(), s.limit)
	if err != nil {
		return false, s.translateRepoError(err)
	}
	return added, nil
}

// Remove deletes a saved product. Removing an absent product is a no-op.
func (s *wishlistService) Remove(ctx context.Context, customerID string, productID string) error {
	customerID = strings.TrimSpace(customerID)
	productID = strings.TrimSpace(productID)
	if customerID == "" || productID == "" {
		return fmt.Errorf("%w: customer id and product id are required", ErrWishlistInvalidInput)
	}
	if err := s.repo.Delete(ctx, customerID, productID); err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}
	return nil
}

func (s *wishlistService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %s", ErrWishlistUnavailable, repoErr.Error())
	}
	return fmt.Errorf("%w: %s", ErrWishlistUnavailable, err.Error())
}
