package service

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/lib/pq"
	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/internal/repository"
	apperrors "github.com/nzskirting/orderdesk/pkg/errors"
	"github.com/nzskirting/orderdesk/pkg/logger"
	"gopkg.in/yaml.v3"
)

//go:embed fallback_products.yaml
var fallbackYAML []byte

// LoadFallbackProducts parses the built-in catalog
func LoadFallbackProducts() ([]*models.Product, error) {
	var products []*models.Product

	if err := yaml.Unmarshal(fallbackYAML, &products); err != nil {
		return nil, fmt.Errorf("failed to parse fallback catalog: %w", err)
	}

	for _, p := range products {
		p.ID = "fallback-" + p.Slug
		p.Images = models.NormalizeImages(p.Images)
	}

	return products, nil
}

// CatalogService reads and edits the product catalog
type CatalogService struct {
	products ProductStore
	fallback []*models.Product
	validate *validator.Validate
	logger   logger.Logger
	now      func() time.Time
}

func NewCatalogService(products ProductStore, fallback []*models.Product, logger logger.Logger) *CatalogService {
	return &CatalogService{
		products: products,
		fallback: fallback,
		validate: newValidator(),
		logger:   logger,
		now:      models.GetCurrentTime,
	}
}

// ListPublic returns active products by name. A store failure is logged and
// answered with the built-in catalog.
func (s *CatalogService) ListPublic(ctx context.Context) ([]*models.Product, error) {
	products, err := s.products.List(ctx, true)

	if err == nil {
		return products, nil
	}

	s.logger.Warn("Product store unavailable, serving fallback catalog", "error", err)

	active := make([]*models.Product, 0, len(s.fallback))
	for _, p := range s.fallback {
		if p.Active {
			active = append(active, p)
		}
	}

	sort.Slice(active, func(i, j int) bool { return active[i].Name < active[j].Name })
	return active, nil
}

// ListAdmin returns every product by name. Store errors are returned as is.
func (s *CatalogService) ListAdmin(ctx context.Context) ([]*models.Product, error) {
	return s.products.List(ctx, false)
}

// GetBySlug returns the product for slug; found is false for an unknown slug
func (s *CatalogService) GetBySlug(ctx context.Context, slug string) (product *models.Product, found bool, err error) {
	product, err = s.products.GetBySlug(ctx, slug)

	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	return product, true, nil
}

// applyInput validates in and copies it onto p
func (s *CatalogService) applyInput(p *models.Product, in models.ProductInput) error {
	in.Name = strings.TrimSpace(in.Name)

	if err := s.validate.Struct(in); err != nil {
		return validationError(err)
	}

	category := models.ProductCategory(strings.TrimSpace(in.Category))

	if !category.Valid() {
		return apperrors.NewInvalidInputError(fmt.Sprintf("invalid category %q", in.Category))
	}

	heights := make([]float64, 0, len(in.HeightOptions))
	seen := make(map[float64]bool)

	for _, h := range in.HeightOptions {
		if !models.IsAllowedHeight(h) {
			return apperrors.NewInvalidInputError(fmt.Sprintf("height %gcm is not an available option", h))
		}
		if !seen[h] {
			seen[h] = true
			heights = append(heights, h)
		}
	}

	sort.Float64s(heights)

	p.Name = in.Name
	p.Images = models.NormalizeImages(in.Images)
	p.LED = models.LEDWithout
	if in.LED {
		p.LED = models.LEDWith
	}
	p.HeightOptions = pq.Float64Array(heights)
	p.Height = strings.TrimSpace(in.Height)
	if p.Height == "" {
		p.Height = describeHeights(heights)
	}
	p.PricePerMeter = in.PricePerMeter
	p.Description = in.Description
	p.Category = category
	p.SEOTitle = in.SEOTitle
	p.SEODescription = in.SEODescription

	if in.Active != nil {
		p.Active = *in.Active
	} else if p.CreatedAt.IsZero() {
		p.Active = p.HasImage()
	}

	if in.InStock != nil {
		p.InStock = *in.InStock
	} else if p.CreatedAt.IsZero() {
		p.InStock = true
	}

	if p.Active && !p.HasImage() {
		return apperrors.NewInvalidInputError("an active product needs at least one image")
	}

	return nil
}

func describeHeights(heights []float64) string {
	parts := make([]string, len(heights))
	for i, h := range heights {
		parts[i] = strconv.FormatFloat(h, 'f', -1, 64) + "cm"
	}
	return strings.Join(parts, " / ")
}

// uniqueSlug returns base, or base-N with the smallest free N. own is the
// product's current slug and never counts as taken.
func (s *CatalogService) uniqueSlug(ctx context.Context, base, own string) (string, error) {
	existing, err := s.products.SlugsWithPrefix(ctx, base)

	if err != nil {
		return "", err
	}

	taken := make(map[string]bool, len(existing))
	for _, e := range existing {
		if e != own {
			taken[e] = true
		}
	}

	candidate := base
	for n := 1; taken[candidate]; n++ {
		candidate = fmt.Sprintf("%s-%d", base, n)
	}

	return candidate, nil
}

// slugMatches reports whether s is base or base-N
func slugMatches(s, base string) bool {
	if s == base {
		return true
	}

	suffix, ok := strings.CutPrefix(s, base+"-")

	if !ok {
		return false
	}

	_, err := strconv.Atoi(suffix)
	return err == nil
}

func slugBase(name string) (string, error) {
	base := slug.Make(name)

	if base == "" {
		return "", apperrors.NewInvalidInputError("name must contain letters or digits")
	}

	return base, nil
}

// CreateProduct validates in and inserts a product with a unique slug
func (s *CatalogService) CreateProduct(ctx context.Context, in models.ProductInput) (*models.Product, error) {
	now := s.now()
	product := &models.Product{ID: models.GenerateID()}

	if err := s.applyInput(product, in); err != nil {
		return nil, err
	}

	base, err := slugBase(product.Name)

	if err != nil {
		return nil, err
	}

	product.CreatedAt = now
	product.UpdatedAt = now

	// a concurrent insert can take the slug between lookup and insert
	for attempt := 0; attempt < 3; attempt++ {
		if product.Slug, err = s.uniqueSlug(ctx, base, ""); err != nil {
			return nil, err
		}

		err = s.products.Create(ctx, product)

		if !errors.Is(err, repository.ErrSlugTaken) {
			break
		}
	}

	if errors.Is(err, repository.ErrSlugTaken) {
		return nil, apperrors.NewConflictError(fmt.Sprintf("slug %q is already in use", product.Slug))
	}

	if err != nil {
		return nil, err
	}

	s.logger.Info("Product created", "productID", product.ID, "slug", product.Slug)
	return product, nil
}

// UpdateProduct validates in and overwrites the product. The slug is
// regenerated only when the name no longer matches it.
func (s *CatalogService) UpdateProduct(ctx context.Context, id string, in models.ProductInput) (*models.Product, error) {
	product, err := s.products.GetByID(ctx, id)

	if err != nil {
		return nil, notFound(err, "product")
	}

	if err := s.applyInput(product, in); err != nil {
		return nil, err
	}

	base, err := slugBase(product.Name)

	if err != nil {
		return nil, err
	}

	if !slugMatches(product.Slug, base) {
		if product.Slug, err = s.uniqueSlug(ctx, base, product.Slug); err != nil {
			return nil, err
		}
	}

	product.UpdatedAt = s.now()

	if err := s.products.Update(ctx, product); err != nil {
		if errors.Is(err, repository.ErrSlugTaken) {
			return nil, apperrors.NewConflictError(fmt.Sprintf("slug %q is already in use", product.Slug))
		}
		return nil, notFound(err, "product")
	}

	s.logger.Info("Product updated", "productID", product.ID, "slug", product.Slug)
	return product, nil
}

// DeleteProduct removes a product
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return notFound(err, "product")
	}

	s.logger.Info("Product deleted", "productID", id)
	return nil
}

// SeedFallback inserts every built-in product whose slug is not yet taken and
// returns how many were created
func (s *CatalogService) SeedFallback(ctx context.Context) (int, error) {
	created := 0
	now := s.now()

	for _, fb := range s.fallback {
		_, found, err := s.GetBySlug(ctx, fb.Slug)

		if err != nil {
			return created, err
		}

		if found {
			continue
		}

		product := *fb
		product.ID = models.GenerateID()
		product.CreatedAt = now
		product.UpdatedAt = now

		if err := s.products.Create(ctx, &product); err != nil {
			return created, err
		}

		created++
	}

	s.logger.Info("Seeded catalog", "created", created)
	return created, nil
}
