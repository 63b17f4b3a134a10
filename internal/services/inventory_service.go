package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glowmane/api/internal/repositories"
)

var (
	// ErrInventoryInvalidInput indicates an invalid SKU or adjustment request.
	ErrInventoryInvalidInput = errors.New("inventory service: invalid input")
	// ErrInventoryNotFound indicates the SKU has no stock record.
	ErrInventoryNotFound = errors.New("inventory service: stock record not found")
	// ErrInventoryInsufficient indicates the adjustment would drive stock negative.
	ErrInventoryInsufficient = errors.New("inventory service: insufficient stock")
	// ErrInventoryUnavailable indicates the inventory backend cannot serve the request.
	ErrInventoryUnavailable = errors.New("inventory service: unavailable")
)

// InventoryServiceDeps bundles constructor inputs for the inventory service.
type InventoryServiceDeps struct {
	Repository repositories.InventoryRepository
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo   repositories.InventoryRepository
	clock  func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewInventoryService constructs the per-SKU stock service.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Repository == nil {
		return nil, errors.New("inventory service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &inventoryService{
		repo:   deps.Repository,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

func (s *inventoryService) Levels(ctx context.Context, skus []string) (map[string]InventoryLevel, error) {
	cleaned := make([]string, 0, len(skus))
	for _, sku := range skus {
		if trimmed := strings.TrimSpace(sku); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return map[string]InventoryLevel{}, nil
	}
	levels, err := s.repo.GetLevels(ctx, cleaned)
	if err != nil {
		return nil, s.translateError(err)
	}
	return levels, nil
}

// AvailableFor reports the available quantity for one SKU. The second return
// is false when the SKU is untracked, which callers treat as unlimited.
func (s *inventoryService) AvailableFor(ctx context.Context, sku string) (int, bool, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return 0, false, fmt.Errorf("%w: sku is required", ErrInventoryInvalidInput)
	}
	levels, err := s.repo.GetLevels(ctx, []string{sku})
	if err != nil {
		return 0, false, s.translateError(err)
	}
	level, tracked := levels[sku]
	if !tracked {
		return 0, false, nil
	}
	return level.Available, true, nil
}

func (s *inventoryService) Adjust(ctx context.Context, sku string, delta int) (InventoryLevel, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return InventoryLevel{}, fmt.Errorf("%w: sku is required", ErrInventoryInvalidInput)
	}
	if delta == 0 {
		return InventoryLevel{}, fmt.Errorf("%w: delta must be non-zero", ErrInventoryInvalidInput)
	}

	level, err := s.repo.Adjust(ctx, sku, delta, s.clock())
	if err != nil {
		return InventoryLevel{}, s.translateError(err)
	}
	s.logger(ctx, "inventory_adjusted", map[string]any{
		"sku":       sku,
		"delta":     delta,
		"available": level.Available,
	})
	return level, nil
}

func (s *inventoryService) translateError(err error) error {
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorStockNotFound:
			return fmt.Errorf("%w: %s", ErrInventoryNotFound, invErr.Message)
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrInventoryInsufficient, invErr.Message)
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return fmt.Errorf("%w: %s", ErrInventoryNotFound, repoErr.Error())
		}
	}
	return fmt.Errorf("%w: %s", ErrInventoryUnavailable, err.Error())
}
