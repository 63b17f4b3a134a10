package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/glowmane/api/internal/domain"
	pfirestore "github.com/glowmane/api/internal/platform/firestore"
	"github.com/glowmane/api/internal/repositories"
)

const (
	productCollection      = "products"
	defaultProductPageSize = 24
)

// ProductRepository stores catalog products within Firestore.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{
		base:     base,
		provider: provider,
	}, nil
}

func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	doc := encodeProduct(product)
	result, err := r.base.Set(ctx, productID, doc)
	if err != nil {
		return domain.Product{}, err
	}
	saved := decodeProduct(productID, doc)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	return r.base.Delete(ctx, id)
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProduct(doc.ID, doc.Data), nil
}

func (r *ProductRepository) FindBySlug(ctx context.Context, slug string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return domain.Product{}, errors.New("product repository: slug is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("slug", "==", trimmed).Limit(1)
	})
	if err != nil {
		return domain.Product{}, err
	}
	if len(docs) == 0 {
		return domain.Product{}, pfirestore.NotFoundError("products.find_by_slug", fmt.Errorf("product %s not found", trimmed))
	}
	return decodeProduct(docs[0].ID, docs[0].Data), nil
}

// List applies the structured filters in Firestore and the free-text and
// attribute filters in memory, which keeps the required composite indexes
// small.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	query := client.Collection(productCollection).Query
	if filter.OnlyActive {
		query = query.Where("active", "==", true)
	}
	if categoryID := strings.TrimSpace(filter.CategoryID); categoryID != "" {
		query = query.Where("categoryId", "==", categoryID)
	}
	if brand := strings.TrimSpace(filter.Brand); brand != "" {
		query = query.Where("brand", "==", brand)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var products []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("products.list: decode %s: %w", snap.Ref.ID, err)
		}
		product := decodeProduct(snap.Ref.ID, doc)
		if !matchesProductFilter(product, filter) {
			continue
		}
		products = append(products, product)
	}

	sortProducts(products, filter.SortBy, filter.SortOrder)
	return paginateProducts(products, filter.Pagination)
}

func matchesProductFilter(product domain.Product, filter repositories.ProductListFilter) bool {
	if filter.PriceMin != nil && product.Price < *filter.PriceMin {
		return false
	}
	if filter.PriceMax != nil && product.Price > *filter.PriceMax {
		return false
	}
	for key, want := range filter.Attributes {
		if product.Attributes[key] != want {
			return false
		}
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		haystack := strings.ToLower(product.Name + " " + product.Brand + " " + product.Description)
		if !strings.Contains(haystack, search) {
			return false
		}
	}
	return true
}

func sortProducts(products []domain.Product, sortBy string, order domain.SortOrder) {
	desc := order == domain.SortDesc
	less := func(a, b domain.Product) bool { return a.CreatedAt.After(b.CreatedAt) }
	switch sortBy {
	case "price":
		less = func(a, b domain.Product) bool { return a.Price < b.Price }
	case "name":
		less = func(a, b domain.Product) bool { return a.Name < b.Name }
	case "rating":
		less = func(a, b domain.Product) bool { return a.Rating > b.Rating }
	}
	sort.SliceStable(products, func(i, j int) bool {
		if desc {
			return less(products[j], products[i])
		}
		return less(products[i], products[j])
	})
}

// paginateProducts slices an in-memory result set with numeric offset tokens.
func paginateProducts(products []domain.Product, pager domain.Pagination) (domain.CursorPage[domain.Product], error) {
	limit := pager.PageSize
	if limit <= 0 {
		limit = defaultProductPageSize
	}
	offset := 0
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		parsed, err := decodeOffsetToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("products.list: invalid page token: %w", err)
		}
		offset = parsed
	}
	if offset >= len(products) {
		return domain.CursorPage[domain.Product]{Items: []domain.Product{}}, nil
	}

	end := offset + limit
	nextToken := ""
	if end < len(products) {
		nextToken = encodeOffsetToken(end)
	} else {
		end = len(products)
	}
	page := make([]domain.Product, end-offset)
	copy(page, products[offset:end])
	return domain.CursorPage[domain.Product]{
		Items:         page,
		NextPageToken: nextToken,
	}, nil
}

func encodeProduct(product domain.Product) productDocument {
	doc := productDocument{
		Slug:           product.Slug,
		Name:           product.Name,
		Brand:          product.Brand,
		Description:    product.Description,
		CategoryID:     product.CategoryID,
		Price:          product.Price,
		CompareAtPrice: product.CompareAtPrice,
		Currency:       product.Currency,
		Images:         product.Images,
		Attributes:     product.Attributes,
		WeightGrams:    product.WeightGrams,
		Rating:         product.Rating,
		ReviewCount:    product.ReviewCount,
		Active:         product.Active,
		CreatedAt:      product.CreatedAt.UTC(),
		UpdatedAt:      product.UpdatedAt.UTC(),
	}
	for _, variant := range product.Variants {
		doc.Variants = append(doc.Variants, productVariantDocument{
			ID:         variant.ID,
			Name:       variant.Name,
			SKU:        variant.SKU,
			Price:      variant.Price,
			Stock:      variant.Stock,
			Attributes: variant.Attributes,
		})
	}
	return doc
}

func decodeProduct(id string, doc productDocument) domain.Product {
	product := domain.Product{
		ID:             id,
		Slug:           doc.Slug,
		Name:           doc.Name,
		Brand:          doc.Brand,
		Description:    doc.Description,
		CategoryID:     doc.CategoryID,
		Price:          doc.Price,
		CompareAtPrice: doc.CompareAtPrice,
		Currency:       doc.Currency,
		Images:         doc.Images,
		Attributes:     doc.Attributes,
		WeightGrams:    doc.WeightGrams,
		Rating:         doc.Rating,
		ReviewCount:    doc.ReviewCount,
		Active:         doc.Active,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
	for _, variant := range doc.Variants {
		product.Variants = append(product.Variants, domain.ProductVariant{
			ID:         variant.ID,
			Name:       variant.Name,
			SKU:        variant.SKU,
			Price:      variant.Price,
			Stock:      variant.Stock,
			Attributes: variant.Attributes,
		})
	}
	return product
}

type productDocument struct {
	Slug           string                   `firestore:"slug"`
	Name           string                   `firestore:"name"`
	Brand          string                   `firestore:"brand,omitempty"`
	Description    string                   `firestore:"description,omitempty"`
	CategoryID     string                   `firestore:"categoryId,omitempty"`
	Price          float64                  `firestore:"price"`
	CompareAtPrice *float64                 `firestore:"compareAtPrice,omitempty"`
	Currency       string                   `firestore:"currency"`
	Images         []string                 `firestore:"images,omitempty"`
	Attributes     map[string]string        `firestore:"attributes,omitempty"`
	WeightGrams    int                      `firestore:"weightGrams,omitempty"`
	Rating         float64                  `firestore:"rating,omitempty"`
	ReviewCount    int                      `firestore:"reviewCount,omitempty"`
	Active         bool                     `firestore:"active"`
	Variants       []productVariantDocument `firestore:"variants,omitempty"`
	CreatedAt      time.Time                `firestore:"createdAt"`
	UpdatedAt      time.Time                `firestore:"updatedAt"`
}

type productVariantDocument struct {
	ID         string            `firestore:"id"`
	Name       string            `firestore:"name"`
	SKU        string            `firestore:"sku,omitempty"`
	Price      *float64          `firestore:"price,omitempty"`
	Stock      *int              `firestore:"stock,omitempty"`
	Attributes map[string]string `firestore:"attributes,omitempty"`
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
