package models

import (
	"time"

	"github.com/lib/pq"
)

// Image slot positions. Empty slots are kept as empty strings.
const (
	ImageSlotMain = iota
	ImageSlotParameters
	ImageSlotInstallation
	ImageSlotAccessories
	ImageSlotColours
	ImageSlotCount
)

const (
	LEDWith    = "With LED"
	LEDWithout = "Without LED"
)

// ProductCategory groups products on the storefront
type ProductCategory string

const (
	CategoryResidential ProductCategory = "residential"
	CategorySmart       ProductCategory = "smart"
	CategoryCommercial  ProductCategory = "commercial"
)

func (c ProductCategory) Valid() bool {
	switch c {
	case CategoryResidential, CategorySmart, CategoryCommercial:
		return true
	}
	return false
}

// AllowedHeights is the fixed domain of selectable board heights, in centimetres
// with millimetre precision.
var AllowedHeights = []float64{5.8, 6.0, 7.0, 8.0, 10.0, 12.0}

// IsAllowedHeight reports whether h is in AllowedHeights
func IsAllowedHeight(h float64) bool {
	for _, allowed := range AllowedHeights {
		if h == allowed {
			return true
		}
	}
	return false
}

// Product is a skirting board in the catalog
type Product struct {
	ID             string          `db:"id" json:"id" yaml:"-"`
	Name           string          `db:"name" json:"name" yaml:"name"`
	Slug           string          `db:"slug" json:"slug" yaml:"slug"`
	Images         pq.StringArray  `db:"images" json:"images" yaml:"images"`
	LED            string          `db:"led" json:"led" yaml:"led"`
	Height         string          `db:"height" json:"height" yaml:"height"`
	HeightOptions  pq.Float64Array `db:"height_options" json:"height_options" yaml:"height_options"`
	PricePerMeter  float64         `db:"price_per_meter" json:"price_per_meter" yaml:"price_per_meter"`
	Description    string          `db:"description" json:"description" yaml:"description"`
	Category       ProductCategory `db:"category" json:"category" yaml:"category"`
	SEOTitle       string          `db:"seo_title" json:"seo_title" yaml:"seo_title"`
	SEODescription string          `db:"seo_description" json:"seo_description" yaml:"seo_description"`
	Active         bool            `db:"active" json:"active" yaml:"active"`
	InStock        bool            `db:"in_stock" json:"in_stock" yaml:"in_stock"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at" yaml:"-"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at" yaml:"-"`
}

// HasImage reports whether at least one image slot is filled
func (p *Product) HasImage() bool {
	for _, img := range p.Images {
		if img != "" {
			return true
		}
	}
	return false
}

// NormalizeImages pads or trims images to exactly ImageSlotCount slots
func NormalizeImages(images []string) pq.StringArray {
	out := make(pq.StringArray, ImageSlotCount)
	copy(out, images)
	return out
}

// ProductInput is the admin create/edit payload
type ProductInput struct {
	Name           string    `json:"name" validate:"required,max=200"`
	Images         []string  `json:"images" validate:"max=5"`
	LED            bool      `json:"led"`
	Height         string    `json:"height"`
	HeightOptions  []float64 `json:"height_options" validate:"required,min=1"`
	PricePerMeter  float64   `json:"price_per_meter" validate:"gte=0"`
	Description    string    `json:"description"`
	Category       string    `json:"category" validate:"required"`
	SEOTitle       string    `json:"seo_title"`
	SEODescription string    `json:"seo_description"`
	Active         *bool     `json:"active"`
	InStock        *bool     `json:"in_stock"`
}
