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
	reviewCollection      = "reviews"
	defaultReviewPageSize = 20
)

// ReviewRepository stores product reviews within Firestore.
type ReviewRepository struct {
	base     *pfirestore.BaseRepository[reviewDocument]
	provider *pfirestore.Provider
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[reviewDocument](provider, reviewCollection, nil, nil)
	return &ReviewRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the review document. An existing ID is a conflict.
func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	reviewID := strings.TrimSpace(review.ID)
	if reviewID == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}

	ref, err := r.base.DocumentRef(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	doc := encodeReview(review)
	if _, err := ref.Create(ctx, doc); err != nil {
		return domain.Review{}, pfirestore.WrapError("reviews.insert", err)
	}
	return decodeReview(reviewID, doc), nil
}

func (r *ReviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	id := strings.TrimSpace(reviewID)
	if id == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Review{}, err
	}
	return decodeReview(doc.ID, doc.Data), nil
}

// ListByProduct returns reviews for a product, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository: product id is required")
	}
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("productId", "==", id)
		if len(filter.Status) == 1 {
			q = q.Where("status", "==", string(filter.Status[0]))
		} else if len(filter.Status) > 1 {
			statuses := make([]string, 0, len(filter.Status))
			for _, status := range filter.Status {
				statuses = append(statuses, string(status))
			}
			q = q.Where("status", "in", statuses)
		}
		if filter.MinRating > 0 {
			q = q.Where("rating", ">=", filter.MinRating)
		}
		return q
	}, filter.Pagination)
}

func (r *ReviewRepository) ListByCustomer(ctx context.Context, customerID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository not initialised")
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository: customer id is required")
	}
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("customerId", "==", id)
	}, pager)
}

// UpdateStatus applies a moderation decision to the stored review.
func (r *ReviewRepository) UpdateStatus(ctx context.Context, reviewID string, status domain.ReviewStatus, update repositories.ReviewModerationUpdate) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	id := strings.TrimSpace(reviewID)
	if id == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}

	moderatedAt := update.ModeratedAt.UTC()
	updates := []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "moderatedAt", Value: moderatedAt},
		{Path: "moderatedBy", Value: strings.TrimSpace(update.ModeratedBy)},
		{Path: "updatedAt", Value: moderatedAt},
	}
	if _, err := r.base.Update(ctx, id, updates); err != nil {
		return domain.Review{}, err
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Review{}, err
	}
	return decodeReview(doc.ID, doc.Data), nil
}

func (r *ReviewRepository) list(ctx context.Context, build func(firestore.Query) firestore.Query, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Review]{}, err
	}

	limit := pager.PageSize
	if limit <= 0 {
		limit = defaultReviewPageSize
	}
	fetchLimit := limit + 1

	query := build(client.Collection(reviewCollection).Query).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(fetchLimit)

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		cursorTime, cursorID, err := decodeTimeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.Review]{}, fmt.Errorf("reviews.list: invalid page token: %w", err)
		}
		query = query.StartAfter(cursorTime, cursorID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	type reviewRow struct {
		review    domain.Review
		docID     string
		createdAt time.Time
	}

	var rows []reviewRow
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Review]{}, pfirestore.WrapError("reviews.list", err)
		}
		var doc reviewDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Review]{}, fmt.Errorf("reviews.list: decode %s: %w", snap.Ref.ID, err)
		}
		rows = append(rows, reviewRow{
			review:    decodeReview(snap.Ref.ID, doc),
			docID:     snap.Ref.ID,
			createdAt: doc.CreatedAt,
		})
	}

	nextToken := ""
	if len(rows) == fetchLimit {
		last := rows[len(rows)-1]
		nextToken = encodeTimeCursor(last.createdAt, last.docID)
		rows = rows[:len(rows)-1]
	}

	items := make([]domain.Review, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.review)
	}
	return domain.CursorPage[domain.Review]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func encodeReview(review domain.Review) reviewDocument {
	return reviewDocument{
		ProductID:   review.ProductID,
		CustomerID:  review.CustomerID,
		DisplayName: review.DisplayName,
		Rating:      review.Rating,
		Title:       review.Title,
		Comment:     review.Comment,
		Status:      string(review.Status),
		CreatedAt:   review.CreatedAt.UTC(),
		UpdatedAt:   review.UpdatedAt.UTC(),
		ModeratedAt: review.ModeratedAt,
		ModeratedBy: review.ModeratedBy,
	}
}

func decodeReview(id string, doc reviewDocument) domain.Review {
	return domain.Review{
		ID:          id,
		ProductID:   doc.ProductID,
		CustomerID:  doc.CustomerID,
		DisplayName: doc.DisplayName,
		Rating:      doc.Rating,
		Title:       doc.Title,
		Comment:     doc.Comment,
		Status:      domain.ReviewStatus(doc.Status),
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
		ModeratedAt: doc.ModeratedAt,
		ModeratedBy: doc.ModeratedBy,
	}
}

type reviewDocument struct {
	ProductID   string     `firestore:"productId"`
	CustomerID  string     `firestore:"customerId"`
	DisplayName string     `firestore:"displayName,omitempty"`
	Rating      int        `firestore:"rating"`
	Title       string     `firestore:"title,omitempty"`
	Comment     string     `firestore:"comment"`
	Status      string     `firestore:"status"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
	ModeratedAt *time.Time `firestore:"moderatedAt,omitempty"`
	ModeratedBy string     `firestore:"moderatedBy,omitempty"`
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)
