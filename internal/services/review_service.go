package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/repositories"
)

const (
	minReviewRating  = 1
	maxReviewRating  = 5
	maxReviewTitle   = 140
	maxReviewComment = 4000
)

var (
	// ErrReviewInvalidInput indicates validation failures for review operations.
	ErrReviewInvalidInput = errors.New("review service: invalid input")
	// ErrReviewNotFound indicates a review could not be located.
	ErrReviewNotFound = errors.New("review service: not found")
	// ErrReviewInvalidState is returned when a moderation transition is not allowed.
	ErrReviewInvalidState = errors.New("review service: invalid state transition")
	// ErrReviewUnavailable indicates the review backend cannot serve the request.
	ErrReviewUnavailable = errors.New("review service: unavailable")
)

// ReviewServiceDeps bundles collaborators required to construct a ReviewService.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Catalog     productSnapshotter
	Audit       AuditLogService
	Clock       func() time.Time
	IDGenerator func() string
	Policy      *bluemonday.Policy
}

type reviewService struct {
	reviews repositories.ReviewRepository
	catalog productSnapshotter
	audit   AuditLogService
	clock   func() time.Time
	newID   func() string
	policy  *bluemonday.Policy
}

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	policy := deps.Policy
	if policy == nil {
		policy = bluemonday.StrictPolicy()
	}

	return &reviewService{
		reviews: deps.Reviews,
		catalog: deps.Catalog,
		audit:   deps.Audit,
		clock:   func() time.Time { return clock().UTC() },
		newID:   idGen,
		policy:  policy,
	}, nil
}

// Submit accepts a new review in pending state. Title and comment are run
// through the HTML sanitizer so stored text is always plain.
func (s *reviewService) Submit(ctx context.Context, cmd SubmitReviewCommand) (Review, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Review{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return Review{}, fmt.Errorf("%w: customer id is required", ErrReviewInvalidInput)
	}
	if cmd.Rating < minReviewRating || cmd.Rating > maxReviewRating {
		return Review{}, fmt.Errorf("%w: rating must be between %d and %d", ErrReviewInvalidInput, minReviewRating, maxReviewRating)
	}

	comment := s.sanitize(cmd.Comment, maxReviewComment)
	if comment == "" {
		return Review{}, fmt.Errorf("%w: comment is required", ErrReviewInvalidInput)
	}

	if s.catalog != nil {
		if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
			if errors.Is(err, ErrCatalogNotFound) {
				return Review{}, fmt.Errorf("%w: product %s does not exist", ErrReviewInvalidInput, productID)
			}
			return Review{}, fmt.Errorf("%w: %s", ErrReviewUnavailable, err.Error())
		}
	}

	now := s.clock()
	review := domain.Review{
		ID:          s.newID(),
		ProductID:   productID,
		CustomerID:  customerID,
		DisplayName: s.sanitize(cmd.DisplayName, 80),
		Rating:      cmd.Rating,
		Title:       s.sanitize(cmd.Title, maxReviewTitle),
		Comment:     comment,
		Status:      domain.ReviewPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	saved, err := s.reviews.Insert(ctx, review)
	if err != nil {
		return Review{}, s.translateRepoError(err)
	}
	return saved, nil
}

func (s *reviewService) ListByProduct(ctx context.Context, productID string, filter ReviewListFilter) (domain.CursorPage[Review], error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.CursorPage[Review]{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}
	page, err := s.reviews.ListByProduct(ctx, productID, repositories.ReviewListFilter{
		Status:     filter.Status,
		MinRating:  filter.MinRating,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Review]{}, s.translateRepoError(err)
	}
	return page, nil
}

// Moderate publishes or rejects a pending review. Already moderated reviews
// stay as they are.
func (s *reviewService) Moderate(ctx context.Context, cmd ModerateReviewCommand) (Review, error) {
	reviewID := strings.TrimSpace(cmd.ReviewID)
	if reviewID == "" {
		return Review{}, fmt.Errorf("%w: review id is required", ErrReviewInvalidInput)
	}
	if cmd.Status != domain.ReviewPublished && cmd.Status != domain.ReviewRejected {
		return Review{}, fmt.Errorf("%w: target status must be published or rejected", ErrReviewInvalidInput)
	}

	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return Review{}, s.translateRepoError(err)
	}
	if review.Status != domain.ReviewPending {
		return Review{}, fmt.Errorf("%w: %s -> %s", ErrReviewInvalidState, review.Status, cmd.Status)
	}

	now := s.clock()
	actor := strings.TrimSpace(cmd.Actor)
	if actor == "" {
		actor = "system"
	}

	updated, err := s.reviews.UpdateStatus(ctx, reviewID, cmd.Status, repositories.ReviewModerationUpdate{
		ModeratedBy: actor,
		ModeratedAt: now,
	})
	if err != nil {
		return Review{}, s.translateRepoError(err)
	}

	if s.audit != nil {
		s.audit.Record(ctx, AuditLogRecord{
			Actor:      actor,
			ActorType:  "staff",
			Action:     "review.moderated",
			TargetRef:  "reviews/" + reviewID,
			OccurredAt: now,
			Diff: map[string]AuditLogDiff{
				"status": {Before: string(domain.ReviewPending), After: string(cmd.Status)},
			},
		})
	}
	return updated, nil
}

func (s *reviewService) sanitize(input string, limit int) string {
	return sanitizeText(s.policy.Sanitize(input), limit)
}

func (s *reviewService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrReviewNotFound, repoErr.Error())
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %s", ErrReviewUnavailable, repoErr.Error())
		}
	}
	return fmt.Errorf("%w: %s", ErrReviewUnavailable, err.Error())
}
