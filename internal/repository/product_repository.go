package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/nzskirting/orderdesk/internal/database"
	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/pkg/logger"
)

const productColumns = `id, name, slug, images, led, height, height_options, price_per_meter,
	description, category, seo_title, seo_description, active, in_stock, created_at, updated_at`

// ErrSlugTaken is returned when the unique slug constraint rejects a write
var ErrSlugTaken = errors.New("slug already exists")

// ProductRepository handles database operations for products
type ProductRepository struct {
	db     *database.Database
	logger logger.Logger
}

func NewProductRepository(db *database.Database, logger logger.Logger) *ProductRepository {
	return &ProductRepository{
		db:     db,
		logger: logger,
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// List returns products ordered by name, optionally only active ones
func (r *ProductRepository) List(ctx context.Context, activeOnly bool) ([]*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products
		WHERE ($1 = FALSE OR active = TRUE)
		ORDER BY name ASC`

	products := []*models.Product{}

	if err := r.db.DB.SelectContext(ctx, &products, query, activeOnly); err != nil {
		r.logger.Error("Failed to list products", "error", err, "activeOnly", activeOnly)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return products, nil
}

func (r *ProductRepository) getOne(ctx context.Context, column, value string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE ` + column + ` = $1`

	var product models.Product

	if err := r.db.DB.GetContext(ctx, &product, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get product", "error", err, column, value)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &product, nil
}

// GetBySlug retrieves a product by its slug
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	return r.getOne(ctx, "slug", slug)
}

// GetByID retrieves a product by its ID
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	return r.getOne(ctx, "id", id)
}

// SlugsWithPrefix returns every slug equal to base or shaped like base-N
func (r *ProductRepository) SlugsWithPrefix(ctx context.Context, base string) ([]string, error) {
	query := `SELECT slug FROM products WHERE slug = $1 OR slug LIKE $2`

	slugs := []string{}

	if err := r.db.DB.SelectContext(ctx, &slugs, query, base, base+"-%"); err != nil {
		r.logger.Error("Failed to list slugs", "error", err, "base", base)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return slugs, nil
}

// Create inserts a new product
func (r *ProductRepository) Create(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (
			id, name, slug, images, led, height, height_options, price_per_meter,
			description, category, seo_title, seo_description, active, in_stock,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.DB.ExecContext(
		ctx,
		query,
		p.ID,
		p.Name,
		p.Slug,
		p.Images,
		p.LED,
		p.Height,
		p.HeightOptions,
		p.PricePerMeter,
		p.Description,
		p.Category,
		p.SEOTitle,
		p.SEODescription,
		p.Active,
		p.InStock,
		p.CreatedAt,
		p.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		r.logger.Error("Failed to create product", "error", err, "slug", p.Slug)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// Update overwrites an existing product
func (r *ProductRepository) Update(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products
		SET name = $1, slug = $2, images = $3, led = $4, height = $5, height_options = $6,
			price_per_meter = $7, description = $8, category = $9, seo_title = $10,
			seo_description = $11, active = $12, in_stock = $13, updated_at = $14
		WHERE id = $15
	`

	result, err := r.db.DB.ExecContext(
		ctx,
		query,
		p.Name,
		p.Slug,
		p.Images,
		p.LED,
		p.Height,
		p.HeightOptions,
		p.PricePerMeter,
		p.Description,
		p.Category,
		p.SEOTitle,
		p.SEODescription,
		p.Active,
		p.InStock,
		p.UpdatedAt,
		p.ID,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		r.logger.Error("Failed to update product", "error", err, "productID", p.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	rowsAffected, err := result.RowsAffected()

	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a product by its ID
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)

	if err != nil {
		r.logger.Error("Failed to delete product", "error", err, "productID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	rowsAffected, err := result.RowsAffected()

	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
