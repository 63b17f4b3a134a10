package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/glowmane/api/internal/domain"
	pfirestore "github.com/glowmane/api/internal/platform/firestore"
	"github.com/glowmane/api/internal/repositories"
)

const inventoryCollection = "inventory"

// InventoryRepository tracks per-SKU stock levels within Firestore. Documents
// are keyed by SKU.
type InventoryRepository struct {
	base     *pfirestore.BaseRepository[stockDocument]
	provider *pfirestore.Provider
}

// NewInventoryRepository constructs a Firestore-backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[stockDocument](provider, inventoryCollection, nil, nil)
	return &InventoryRepository{
		base:     base,
		provider: provider,
	}, nil
}

// GetLevels fetches the stock records for the requested SKUs. Untracked SKUs
// are simply absent from the result map.
func (r *InventoryRepository) GetLevels(ctx context.Context, skus []string) (map[string]domain.InventoryLevel, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("inventory repository not initialised")
	}

	levels := make(map[string]domain.InventoryLevel, len(skus))
	for _, sku := range skus {
		sku = strings.TrimSpace(sku)
		if sku == "" {
			continue
		}
		doc, err := r.base.Get(ctx, sku)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return nil, err
		}
		levels[sku] = decodeStock(doc.ID, doc.Data)
	}
	return levels, nil
}

// Adjust applies a stock delta inside a transaction. A negative delta that
// would drive availability below zero fails with an insufficient stock error,
// and positive deltas create the record when missing.
func (r *InventoryRepository) Adjust(ctx context.Context, sku string, delta int, now time.Time) (domain.InventoryLevel, error) {
	if r == nil || r.provider == nil {
		return domain.InventoryLevel{}, errors.New("inventory repository not initialised")
	}
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return domain.InventoryLevel{}, errors.New("inventory repository: sku is required")
	}

	var level domain.InventoryLevel
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, sku)
		if err != nil {
			return err
		}

		snap, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			if delta < 0 {
				return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, fmt.Sprintf("sku %s has no stock record", sku), nil)
			}
			doc := stockDocument{
				Available: delta,
				UpdatedAt: now.UTC(),
			}
			if err := tx.Create(ref, doc); err != nil {
				return err
			}
			level = decodeStock(sku, doc)
			return nil
		case codes.OK:
			// proceed
		default:
			return err
		}

		var doc stockDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode stock %s: %w", sku, err)
		}

		next := doc.Available + delta
		if next < 0 {
			return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, fmt.Sprintf("sku %s has %d available, cannot remove %d", sku, doc.Available, -delta), nil)
		}
		doc.Available = next
		doc.UpdatedAt = now.UTC()

		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		level = decodeStock(sku, doc)
		return nil
	})
	if err != nil {
		var invErr *repositories.InventoryError
		if errors.As(err, &invErr) {
			return domain.InventoryLevel{}, invErr
		}
		return domain.InventoryLevel{}, pfirestore.WrapError("inventory.adjust", err)
	}
	return level, nil
}

func decodeStock(sku string, doc stockDocument) domain.InventoryLevel {
	return domain.InventoryLevel{
		SKU:       sku,
		ProductID: doc.ProductID,
		VariantID: doc.VariantID,
		Available: doc.Available,
		UpdatedAt: doc.UpdatedAt,
	}
}

type stockDocument struct {
	ProductID string    `firestore:"productId,omitempty"`
	VariantID string    `firestore:"variantId,omitempty"`
	Available int       `firestore:"available"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

var _ repositories.InventoryRepository = (*InventoryRepository)(nil)
