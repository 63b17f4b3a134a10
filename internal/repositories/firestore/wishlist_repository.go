package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/glowmane/api/internal/domain"
	pfirestore "github.com/glowmane/api/internal/platform/firestore"
	"github.com/glowmane/api/internal/repositories"
)

const wishlistCollectionPattern = "customers/%s/wishlist"

// WishlistRepository persists saved products per customer.
type WishlistRepository struct {
	provider *pfirestore.Provider
}

// NewWishlistRepository constructs a Firestore-backed wishlist repository.
func NewWishlistRepository(provider *pfirestore.Provider) (*WishlistRepository, error) {
	if provider == nil {
		return nil, errors.New("wishlist repository requires firestore provider")
	}
	return &WishlistRepository{provider: provider}, nil
}

// List returns saved products ordered by most recent addition.
func (r *WishlistRepository) List(ctx context.Context, customerID string, pager domain.Pagination) (domain.CursorPage[domain.WishlistItem], error) {
	coll, err := r.collection(ctx, customerID)
	if err != nil {
		return domain.CursorPage[domain.WishlistItem]{}, err
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}

	query := coll.OrderBy("addedAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
	var fetchLimit int
	if limit > 0 {
		fetchLimit = limit + 1
		query = query.Limit(fetchLimit)
	}

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		cursorTime, cursorID, err := decodeTimeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.WishlistItem]{}, fmt.Errorf("wishlist.list: invalid page token: %w", err)
		}
		query = query.StartAfter(cursorTime, cursorID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	type wishlistRow struct {
		item  domain.WishlistItem
		docID string
	}

	var rows []wishlistRow
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.WishlistItem]{}, pfirestore.WrapError("wishlist.list", err)
		}
		var doc wishlistDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.WishlistItem]{}, fmt.Errorf("wishlist.list: decode %s: %w", snap.Ref.ID, err)
		}
		rows = append(rows, wishlistRow{
			item: domain.WishlistItem{
				ProductID: snap.Ref.ID,
				AddedAt:   doc.AddedAt,
			},
			docID: snap.Ref.ID,
		})
	}

	nextToken := ""
	if limit > 0 && len(rows) == fetchLimit {
		last := rows[len(rows)-1]
		nextToken = encodeTimeCursor(last.item.AddedAt, last.docID)
		rows = rows[:len(rows)-1]
	}

	items := make([]domain.WishlistItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.item)
	}
	return domain.CursorPage[domain.WishlistItem]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// Put stores a saved product unless it already exists. The bool reports
// whether a new entry was created.
func (r *WishlistRepository) Put(ctx context.Context, customerID string, productID string, addedAt time.Time, limit int) (bool, error) {
	coll, err := r.collection(ctx, customerID)
	if err != nil {
		return false, err
	}

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return false, errors.New("wishlist repository: product id is required")
	}

	created := false
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef := coll.Doc(productID)
		if _, err := tx.Get(docRef); err == nil {
			created = false
			return nil
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		if limit > 0 {
			countQuery := coll.Select("addedAt").Limit(limit)
			iter := tx.Documents(countQuery)
			snaps, err := iter.GetAll()
			if err != nil {
				return err
			}
			if len(snaps) >= limit {
				return status.Error(codes.FailedPrecondition, "wishlist limit reached")
			}
		}

		if err := tx.Set(docRef, wishlistDocument{AddedAt: addedAt.UTC()}); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, pfirestore.WrapError("wishlist.put", err)
	}
	return created, nil
}

// Delete removes the saved product document.
func (r *WishlistRepository) Delete(ctx context.Context, customerID string, productID string) error {
	coll, err := r.collection(ctx, customerID)
	if err != nil {
		return err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("wishlist repository: product id is required")
	}
	if _, err := coll.Doc(productID).Delete(ctx); err != nil {
		return pfirestore.WrapError("wishlist.delete", err)
	}
	return nil
}

func (r *WishlistRepository) collection(ctx context.Context, customerID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("wishlist repository not initialised")
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return nil, errors.New("wishlist repository: customer id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(wishlistCollectionPattern, id)), nil
}

type wishlistDocument struct {
	AddedAt time.Time `firestore:"addedAt"`
}

var _ repositories.WishlistRepository = (*WishlistRepository)(nil)
