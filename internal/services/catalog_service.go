package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/repositories"
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog operation.
	ErrCatalogInvalidInput = errors.New("catalog service: invalid input")
	// ErrCatalogNotFound indicates the requested product or category does not exist.
	ErrCatalogNotFound = errors.New("catalog service: not found")
	// ErrCatalogUnavailable indicates the catalog backend cannot serve the request.
	ErrCatalogUnavailable = errors.New("catalog service: unavailable")
	// ErrCatalogConflict indicates a slug collision or concurrent modification.
	ErrCatalogConflict = errors.New("catalog service: conflict")
)

var slugSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Categories  repositories.CategoryRepository
	Audit       AuditLogService
	Locale      string
	Clock       func() time.Time
	IDGenerator func() string
}

type catalogService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	audit      AuditLogService
	collator   *collate.Collator
	clock      func() time.Time
	newID      func() string
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("catalog service: category repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	tag, err := language.Parse(strings.TrimSpace(deps.Locale))
	if err != nil {
		tag = language.Portuguese
	}
	return &catalogService{
		products:   deps.Products,
		categories: deps.Categories,
		audit:      deps.Audit,
		collator:   collate.New(tag, collate.IgnoreCase),
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	repoFilter := repositories.ProductListFilter{
		Brand:      strings.TrimSpace(filter.Brand),
		Attributes: filter.Attributes,
		PriceMin:   filter.PriceMin,
		PriceMax:   filter.PriceMax,
		Search:     strings.TrimSpace(filter.Search),
		OnlyActive: true,
		SortBy:     filter.SortBy,
		SortOrder:  filter.SortOrder,
		Pagination: filter.Pagination,
	}

	if slug := strings.TrimSpace(filter.CategorySlug); slug != "" {
		category, err := s.categories.FindBySlug(ctx, slug)
		if err != nil {
			return domain.CursorPage[Product]{}, s.translateRepoError(err)
		}
		repoFilter.CategoryID = category.ID
	}

	page, err := s.products.List(ctx, repoFilter)
	if err != nil {
		return domain.CursorPage[Product]{}, s.translateRepoError(err)
	}
	return page, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	return product, nil
}

func (s *catalogService) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Product{}, fmt.Errorf("%w: slug is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindBySlug(ctx, slug)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	return product, nil
}

// ListCategories returns the tree sorted by position, then locale-aware by
// name so accented brands sort the way the storefront displays them.
func (s *catalogService) ListCategories(ctx context.Context, onlyActive bool) ([]Category, error) {
	categories, err := s.categories.List(ctx, onlyActive)
	if err != nil {
		return nil, s.translateRepoError(err)
	}

	sortCategories(categories, s.collator)
	return categories, nil
}

func (s *catalogService) GetCategoryBySlug(ctx context.Context, slug string) (Category, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Category{}, fmt.Errorf("%w: slug is required", ErrCatalogInvalidInput)
	}
	category, err := s.categories.FindBySlug(ctx, slug)
	if err != nil {
		return Category{}, s.translateRepoError(err)
	}
	return category, nil
}

func (s *catalogService) UpsertProduct(ctx context.Context, product Product) (Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" {
		return Product{}, fmt.Errorf("%w: product name is required", ErrCatalogInvalidInput)
	}
	if product.Price < 0 {
		return Product{}, fmt.Errorf("%w: product price cannot be negative", ErrCatalogInvalidInput)
	}
	for _, variant := range product.Variants {
		if variant.Price != nil && *variant.Price < 0 {
			return Product{}, fmt.Errorf("%w: variant price cannot be negative", ErrCatalogInvalidInput)
		}
	}

	now := s.clock()
	isNew := product.ID == ""
	if isNew {
		product.ID = s.newID()
		product.CreatedAt = now
	}
	if product.Slug == "" {
		product.Slug = slugify(product.Name)
	}
	if product.Currency == "" {
		product.Currency = "EUR"
	}
	product.UpdatedAt = now

	saved, err := s.products.Upsert(ctx, product)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}

	action := "catalog.product_updated"
	if isNew {
		action = "catalog.product_created"
	}
	s.recordAudit(ctx, action, "products/"+saved.ID, now)
	return saved, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return s.translateRepoError(err)
	}
	s.recordAudit(ctx, "catalog.product_deleted", "products/"+productID, s.clock())
	return nil
}

func (s *catalogService) UpsertCategory(ctx context.Context, category Category) (Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return Category{}, fmt.Errorf("%w: category name is required", ErrCatalogInvalidInput)
	}

	now := s.clock()
	if category.ID == "" {
		category.ID = s.newID()
		category.CreatedAt = now
	}
	if category.Slug == "" {
		category.Slug = slugify(category.Name)
	}
	category.UpdatedAt = now

	saved, err := s.categories.Upsert(ctx, category)
	if err != nil {
		return Category{}, s.translateRepoError(err)
	}
	s.recordAudit(ctx, "catalog.category_upserted", "categories/"+saved.ID, now)
	return saved, nil
}

func (s *catalogService) recordAudit(ctx context.Context, action string, targetRef string, occurredAt time.Time) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		ActorType:  "staff",
		Action:     action,
		TargetRef:  targetRef,
		OccurredAt: occurredAt,
	})
}

func (s *catalogService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrCatalogNotFound, repoErr.Error())
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrCatalogConflict, repoErr.Error())
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %s", ErrCatalogUnavailable, repoErr.Error())
		}
	}
	return fmt.Errorf("%w: %s", ErrCatalogUnavailable, err.Error())
}

func sortCategories(categories []Category, collator *collate.Collator) {
	sort.SliceStable(categories, func(i, j int) bool {
		if categories[i].Position != categories[j].Position {
			return categories[i].Position < categories[j].Position
		}
		return collator.CompareString(categories[i].Name, categories[j].Name) < 0
	})
}

func slugify(name string) string {
	slug := slugSanitizer.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}
