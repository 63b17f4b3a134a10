package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/glowmane/api/internal/domain"
	pfirestore "github.com/glowmane/api/internal/platform/firestore"
	"github.com/glowmane/api/internal/repositories"
)

const categoryCollection = "categories"

// CategoryRepository stores the category tree within Firestore.
type CategoryRepository struct {
	base *pfirestore.BaseRepository[categoryDocument]
}

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[categoryDocument](provider, categoryCollection, nil, nil)
	return &CategoryRepository{base: base}, nil
}

func (r *CategoryRepository) Upsert(ctx context.Context, category domain.Category) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	categoryID := strings.TrimSpace(category.ID)
	if categoryID == "" {
		return domain.Category{}, errors.New("category repository: category id is required")
	}

	doc := encodeCategory(category)
	result, err := r.base.Set(ctx, categoryID, doc)
	if err != nil {
		return domain.Category{}, err
	}
	saved := decodeCategory(categoryID, doc)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

func (r *CategoryRepository) Delete(ctx context.Context, categoryID string) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	id := strings.TrimSpace(categoryID)
	if id == "" {
		return errors.New("category repository: category id is required")
	}
	return r.base.Delete(ctx, id)
}

func (r *CategoryRepository) FindBySlug(ctx context.Context, slug string) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return domain.Category{}, errors.New("category repository: slug is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("slug", "==", trimmed).Limit(1)
	})
	if err != nil {
		return domain.Category{}, err
	}
	if len(docs) == 0 {
		return domain.Category{}, pfirestore.NotFoundError("categories.find_by_slug", fmt.Errorf("category %s not found", trimmed))
	}
	return decodeCategory(docs[0].ID, docs[0].Data), nil
}

func (r *CategoryRepository) List(ctx context.Context, onlyActive bool) ([]domain.Category, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("category repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if onlyActive {
			q = q.Where("active", "==", true)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		categories = append(categories, decodeCategory(doc.ID, doc.Data))
	}
	return categories, nil
}

func encodeCategory(category domain.Category) categoryDocument {
	doc := categoryDocument{
		Slug:        category.Slug,
		Name:        category.Name,
		Description: category.Description,
		ParentID:    category.ParentID,
		Position:    category.Position,
		Active:      category.Active,
		CreatedAt:   category.CreatedAt.UTC(),
		UpdatedAt:   category.UpdatedAt.UTC(),
	}
	for _, attr := range category.Filters {
		doc.Filters = append(doc.Filters, filterAttributeDocument{
			Key:     attr.Key,
			Label:   attr.Label,
			Options: attr.Options,
		})
	}
	return doc
}

func decodeCategory(id string, doc categoryDocument) domain.Category {
	category := domain.Category{
		ID:          id,
		Slug:        doc.Slug,
		Name:        doc.Name,
		Description: doc.Description,
		ParentID:    doc.ParentID,
		Position:    doc.Position,
		Active:      doc.Active,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	for _, attr := range doc.Filters {
		category.Filters = append(category.Filters, domain.FilterAttribute{
			Key:     attr.Key,
			Label:   attr.Label,
			Options: attr.Options,
		})
	}
	return category
}

type categoryDocument struct {
	Slug        string                    `firestore:"slug"`
	Name        string                    `firestore:"name"`
	Description string                    `firestore:"description,omitempty"`
	ParentID    string                    `firestore:"parentId,omitempty"`
	Filters     []filterAttributeDocument `firestore:"filters,omitempty"`
	Position    int                       `firestore:"position"`
	Active      bool                      `firestore:"active"`
	CreatedAt   time.Time                 `firestore:"createdAt"`
	UpdatedAt   time.Time                 `firestore:"updatedAt"`
}

type filterAttributeDocument struct {
	Key     string   `firestore:"key"`
	Label   string   `firestore:"label"`
	Options []string `firestore:"options,omitempty"`
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)
